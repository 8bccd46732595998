package httpserver

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
)

type uploadJDRequest struct {
	CompanyID   string `json:"companyId" validate:"required"`
	RecruiterID string `json:"recruiterId"`
	RawText     string `json:"rawText" validate:"required,min=50"`
}

// UploadJDHandler accepts either a JSON body with raw text or a multipart
// form with a file field plus companyId/recruiterId values.
func (s *Server) UploadJDHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			s.uploadJDFile(w, r)
			return
		}
		var req uploadJDRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		jd, err := s.JD.Upload(r.Context(), req.CompanyID, req.RecruiterID, req.RawText, "", "")
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusCreated, toJDView(jd, true))
	}
}

func (s *Server) uploadJDFile(w http.ResponseWriter, r *http.Request) {
	fileName, path, err := s.saveUpload(r, "file")
	if err != nil {
		writeError(w, r, err)
		return
	}
	companyID := r.FormValue("companyId")
	if companyID == "" {
		writeFieldErrors(w, []FieldError{{Field: "companyId", Message: "required"}})
		return
	}
	jd, err := s.JD.Upload(r.Context(), companyID, r.FormValue("recruiterId"), "", fileName, path)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toJDView(jd, true))
}

// ParseJDHandler triggers AI parsing of an uploaded JD.
func (s *Server) ParseJDHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jd, err := s.JD.Parse(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, toJDView(jd, false))
	}
}

// GetJDHandler returns one JD with raw text included.
func (s *Server) GetJDHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jd, err := s.JD.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, toJDView(jd, true))
	}
}

// ListJDsHandler returns a page of a company's JDs.
func (s *Server) ListJDsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		companyID := r.URL.Query().Get("companyId")
		if companyID == "" {
			writeFieldErrors(w, []FieldError{{Field: "companyId", Message: "required"}})
			return
		}
		limit, offset := pagination(r)
		jds, err := s.JD.List(r.Context(), companyID, limit, offset)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, toJDViews(jds))
	}
}

// UpdateJDConfigHandler replaces the assessment configuration.
func (s *Server) UpdateJDConfigHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cfg domain.AssessmentConfig
		if !decodeAndValidate(w, r, &cfg) {
			return
		}
		jd, err := s.JD.UpdateConfig(r.Context(), chi.URLParam(r, "id"), cfg)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, toJDView(jd, false))
	}
}

type updateSkillsRequest struct {
	Skills []string `json:"skills" validate:"required,min=1,dive,min=1"`
}

// UpdateJDSkillsHandler overrides the parsed skill list.
func (s *Server) UpdateJDSkillsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateSkillsRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		if err := s.JD.UpdateSkills(r.Context(), chi.URLParam(r, "id"), req.Skills); err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"skills": req.Skills})
	}
}

type updateRubricRequest struct {
	Rubric string `json:"rubric" validate:"required"`
}

// UpdateJDRubricHandler replaces the evaluation rubric.
func (s *Server) UpdateJDRubricHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateRubricRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		if err := s.JD.UpdateRubric(r.Context(), chi.URLParam(r, "id"), req.Rubric); err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]bool{"updated": true})
	}
}

type lockRequest struct {
	Locked *bool `json:"locked" validate:"required"`
}

// LockJDHandler toggles the recruiter configuration lock.
func (s *Server) LockJDHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req lockRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		if err := s.JD.SetLocked(r.Context(), chi.URLParam(r, "id"), *req.Locked); err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]bool{"locked": *req.Locked})
	}
}

// GenerateLinkHandler mints the public assessment link and provisions sets.
func (s *Server) GenerateLinkHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jd, err := s.JD.GenerateLink(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{
			"assessmentLink": jd.AssessmentLink,
			"url":            strings.TrimRight(s.Cfg.FrontendURL, "/") + "/assess/" + jd.AssessmentLink,
			"status":         jd.Status,
			"setIds":         jd.SetIDs,
		})
	}
}

// CloseJDHandler closes an assessment to new activity.
func (s *Server) CloseJDHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.JD.Close(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"status": domain.JDClosed})
	}
}

// DeleteJDHandler removes a JD and its question sets.
func (s *Server) DeleteJDHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.JD.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]bool{"deleted": true})
	}
}
