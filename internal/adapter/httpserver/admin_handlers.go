package httpserver

import (
	"encoding/csv"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
	"github.com/fairyhunter13/ai-assessment-engine/internal/usecase"
)

// ListCandidatesHandler returns a page of candidates for a JD.
func (s *Server) ListCandidatesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jdID := r.URL.Query().Get("jdId")
		if jdID == "" {
			writeFieldErrors(w, []FieldError{{Field: "jdId", Message: "required"}})
			return
		}
		limit, offset := pagination(r)
		candidates, err := s.Admin.ListCandidates(r.Context(), jdID, limit, offset)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, toCandidateViews(candidates))
	}
}

// GetCandidateHandler returns one candidate with evaluation attached.
func (s *Server) GetCandidateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		detail, err := s.Admin.GetCandidate(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, toCandidateDetailView(detail))
	}
}

type decisionRequest struct {
	Decision domain.AdminDecision `json:"decision" validate:"required,oneof=PASS FAIL HOLD REVIEW_PENDING"`
	Note     string               `json:"note"`
}

// SetDecisionHandler records the human hiring decision.
func (s *Server) SetDecisionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req decisionRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		candidateID := chi.URLParam(r, "id")
		if err := s.Admin.SetDecision(r.Context(), candidateID, req.Decision, adminActor(r), req.Note); err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"candidateId": candidateID, "decision": req.Decision})
	}
}

// ListProctoringEventsHandler returns a candidate's proctoring events.
func (s *Server) ListProctoringEventsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := pagination(r)
		events, err := s.Proctoring.List(r.Context(), chi.URLParam(r, "id"), limit, offset)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, toProctoringEventViews(events))
	}
}

type reviewProctoringRequest struct {
	Note      string `json:"note"`
	ClearFlag bool   `json:"clearFlag"`
}

// ReviewProctoringHandler records the human verdict on a proctoring event,
// optionally clearing the integrity flag.
func (s *Server) ReviewProctoringHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reviewProctoringRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		candidateID := chi.URLParam(r, "id")
		eventID := chi.URLParam(r, "eventId")
		if err := s.Proctoring.Review(r.Context(), eventID, candidateID, adminActor(r), req.Note, req.ClearFlag); err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"eventId": eventID, "cleared": req.ClearFlag})
	}
}

// AnalyticsHandler returns the per-JD funnel aggregates.
func (s *Server) AnalyticsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		analytics, err := s.Admin.Analytics(r.Context(), chi.URLParam(r, "jdId"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, analytics)
	}
}

// ExportCSVHandler streams the candidate export as a CSV attachment.
func (s *Server) ExportCSVHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jdID := chi.URLParam(r, "jdId")
		rows, err := s.Admin.ExportRows(r.Context(), jdID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "candidates-"+jdID+".csv"))
		cw := csv.NewWriter(w)
		_ = cw.Write(usecase.ExportHeader)
		for _, row := range rows {
			_ = cw.Write(row)
		}
		cw.Flush()
	}
}

// ExportJSONHandler returns the candidate export as JSON objects keyed by the
// CSV header columns.
func (s *Server) ExportJSONHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := s.Admin.ExportRows(r.Context(), chi.URLParam(r, "jdId"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		out := make([]map[string]string, 0, len(rows))
		for _, row := range rows {
			obj := make(map[string]string, len(usecase.ExportHeader))
			for i, col := range usecase.ExportHeader {
				obj[col] = row[i]
			}
			out = append(out, obj)
		}
		writeData(w, http.StatusOK, out)
	}
}

// AuditLogHandler returns a page of admin audit entries, newest first.
func (s *Server) AuditLogHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := pagination(r)
		entries, err := s.Admin.AuditLog(r.Context(), limit, offset)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, toAuditEntryViews(entries))
	}
}
