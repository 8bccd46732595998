package httpserver

import (
	"net/http"

	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
	"github.com/fairyhunter13/ai-assessment-engine/internal/usecase"
)

// followUpView is the candidate-safe shape of a follow-up question. Expected
// answers and detector reasoning never reach the candidate.
type followUpView struct {
	ID        string `json:"id"`
	BaseIndex int    `json:"baseIndex"`
	SortKey   int    `json:"sortKey"`
	Question  string `json:"question"`
}

func toFollowUpView(f domain.FollowUpQuestion) followUpView {
	return followUpView{ID: f.ID, BaseIndex: f.BaseIndex, SortKey: f.SortKey, Question: f.Question}
}

type interviewView struct {
	InterviewID           string                 `json:"interviewId"`
	Status                domain.InterviewStatus `json:"status"`
	BaseQuestionCount     int                    `json:"baseQuestionCount"`
	CurrentTotalQuestions int                    `json:"currentTotalQuestions"`
	FollowupCount         int                    `json:"followupCount"`
	MaxQuestions          int                    `json:"maxQuestions"`
	FollowUps             []followUpView         `json:"followUps"`
}

// StartInterviewHandler provisions follow-up budgeting over the subjective
// section. Base count is the subjective question count of the assigned set;
// the ceiling leaves room for the heuristic target. Idempotent.
func (s *Server) StartInterviewHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tokenOnlyRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		tok := sessionToken(r, req.SessionToken)
		c, _, _, err := s.Session.Authenticate(r.Context(), tok)
		if err != nil {
			writeError(w, r, err)
			return
		}
		questions, err := s.Session.GetQuestions(r.Context(), tok, domain.SectionSubjective)
		if err != nil {
			writeError(w, r, err)
			return
		}
		base := len(questions.Subjective)
		m, err := s.FollowUp.StartInterview(r.Context(), c.ID, base, base, base*2)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{
			"interviewId":       m.ID,
			"status":            m.Status,
			"baseQuestionCount": m.BaseQuestionCount,
			"maxQuestions":      m.MaxQuestions,
		})
	}
}

type interviewAnswerRequest struct {
	SessionToken string `json:"sessionToken"`
	QuestionID   string `json:"questionId" validate:"required"`
	BaseIndex    *int   `json:"baseIndex" validate:"required"`
	Question     string `json:"question" validate:"required"`
	Text         string `json:"text" validate:"required"`
}

// AnswerInterviewHandler saves a subjective answer and runs the follow-up
// detector. The answer save always succeeds or fails on its own; a null
// followUp in the response means the engine declined or degraded.
func (s *Server) AnswerInterviewHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req interviewAnswerRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		tok := sessionToken(r, req.SessionToken)
		c, _, _, err := s.Session.Authenticate(r.Context(), tok)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := s.Session.SaveAnswer(r.Context(), tok, usecase.SaveAnswerInput{
			Section:    domain.SectionSubjective,
			QuestionID: req.QuestionID,
			Text:       req.Text,
		}); err != nil {
			writeError(w, r, err)
			return
		}

		m, err := s.FollowUp.Interviews.GetMetadataByCandidate(r.Context(), c.ID)
		if err != nil {
			// No interview provisioned: the answer is saved, nothing more to do.
			writeData(w, http.StatusOK, map[string]any{"saved": true, "followUp": nil})
			return
		}
		fu, err := s.FollowUp.ProcessAnswer(r.Context(), m.ID, *req.BaseIndex, req.Question, req.Text)
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp := map[string]any{"saved": true, "followUp": nil}
		if fu != nil {
			resp["followUp"] = toFollowUpView(*fu)
		}
		writeData(w, http.StatusOK, resp)
	}
}

// GetInterviewHandler returns the interview budget state and follow-ups in
// display order.
func (s *Server) GetInterviewHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, _, _, err := s.Session.Authenticate(r.Context(), sessionToken(r, ""))
		if err != nil {
			writeError(w, r, err)
			return
		}
		m, err := s.FollowUp.Interviews.GetMetadataByCandidate(r.Context(), c.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		meta, fus, err := s.FollowUp.Interview(r.Context(), m.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		view := interviewView{
			InterviewID:           meta.ID,
			Status:                meta.Status,
			BaseQuestionCount:     meta.BaseQuestionCount,
			CurrentTotalQuestions: meta.CurrentTotalQuestions,
			FollowupCount:         meta.FollowupCount,
			MaxQuestions:          meta.MaxQuestions,
			FollowUps:             make([]followUpView, 0, len(fus)),
		}
		for _, f := range fus {
			view.FollowUps = append(view.FollowUps, toFollowUpView(f))
		}
		writeData(w, http.StatusOK, view)
	}
}
