package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
	"github.com/fairyhunter13/ai-assessment-engine/internal/usecase"
)

type sessionStateView struct {
	Status           domain.CandidateStatus                    `json:"status"`
	CurrentSection   domain.Section                            `json:"currentSection"`
	Sections         []domain.Section                          `json:"sections"`
	TotalTimeMinutes int                                       `json:"totalTimeMinutes"`
	RemainingSeconds int                                       `json:"remainingSeconds"`
	SectionProgress  map[domain.Section]domain.SectionProgress `json:"sectionProgress,omitempty"`
}

// GetSessionHandler resolves the session token and returns the live session
// state. Doubles as the resume endpoint after a page reload.
func (s *Server) GetSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, jd, remaining, err := s.Session.Authenticate(r.Context(), sessionToken(r, ""))
		if err != nil {
			writeError(w, r, err)
			return
		}
		view := sessionStateView{
			Status:           c.Status,
			CurrentSection:   c.CurrentSection,
			TotalTimeMinutes: jd.Config.TotalTimeMinutes,
			RemainingSeconds: int(remaining.Seconds()),
			SectionProgress:  c.SectionProgress,
		}
		for _, sec := range domain.SectionOrder {
			if sc, ok := jd.Config.Sections[sec]; ok && sc.Enabled && sc.QuestionCount > 0 {
				view.Sections = append(view.Sections, sec)
			}
		}
		writeData(w, http.StatusOK, view)
	}
}

// GetQuestionsHandler returns the candidate-safe questions of one section.
func (s *Server) GetQuestionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sec := domain.Section(chi.URLParam(r, "section"))
		questions, err := s.Session.GetQuestions(r.Context(), sessionToken(r, ""), sec)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, questions)
	}
}

type saveAnswerRequest struct {
	SessionToken string `json:"sessionToken"`
	usecase.SaveAnswerInput
}

// SaveAnswerHandler persists one answer. Last write wins per question.
func (s *Server) SaveAnswerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req saveAnswerRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		if err := s.Session.SaveAnswer(r.Context(), sessionToken(r, req.SessionToken), req.SaveAnswerInput); err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]bool{"saved": true})
	}
}

type submitSectionRequest struct {
	SessionToken string         `json:"sessionToken"`
	Section      domain.Section `json:"section" validate:"required"`
}

// SubmitSectionHandler finalizes one section and opens the next.
func (s *Server) SubmitSectionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitSectionRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		res, err := s.Session.SubmitSection(r.Context(), sessionToken(r, req.SessionToken), req.Section)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, res)
	}
}

type tokenOnlyRequest struct {
	SessionToken string `json:"sessionToken"`
}

// SubmitAllHandler ends the assessment and queues evaluation.
func (s *Server) SubmitAllHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tokenOnlyRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		c, err := s.Session.SubmitAll(r.Context(), sessionToken(r, req.SessionToken))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{
			"status":      c.Status,
			"submittedAt": c.SubmittedAt,
		})
	}
}

// HeartbeatHandler refreshes liveness and returns the remaining budget.
func (s *Server) HeartbeatHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tokenOnlyRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		remaining, err := s.Session.Heartbeat(r.Context(), sessionToken(r, req.SessionToken))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]int{"remainingSeconds": remaining})
	}
}

type proctoringEventRequest struct {
	SessionToken string `json:"sessionToken"`
	usecase.LogEventInput
}

// LogProctoringEventHandler records a browser-reported proctoring event
// against the authenticated session's candidate.
func (s *Server) LogProctoringEventHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req proctoringEventRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		c, _, _, err := s.Session.Authenticate(r.Context(), sessionToken(r, req.SessionToken))
		if err != nil {
			writeError(w, r, err)
			return
		}
		event, err := s.Proctoring.LogEvent(r.Context(), c.ID, req.LogEventInput)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusCreated, toProctoringEventView(event))
	}
}
