package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// AssessmentInfoHandler is the public landing payload behind an assessment
// link. No authentication; the link itself is the capability.
func (s *Server) AssessmentInfoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := s.Onboarding.Info(r.Context(), chi.URLParam(r, "link"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, info)
	}
}

type registerRequest struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"required,min=2"`
}

// RegisterHandler creates (or resumes) a candidate for an assessment link and
// sends the verification OTP.
func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		c, err := s.Onboarding.Register(r.Context(), chi.URLParam(r, "link"), req.Email, req.Name)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusCreated, map[string]any{
			"candidateId": c.ID,
			"status":      c.Status,
			"onboarding":  c.Onboarding,
		})
	}
}

type verifyEmailRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// VerifyEmailHandler checks the OTP and marks the email verified.
func (s *Server) VerifyEmailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req verifyEmailRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		if err := s.Onboarding.VerifyEmail(r.Context(), chi.URLParam(r, "id"), req.Code); err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]bool{"emailVerified": true})
	}
}

// ResendOTPHandler issues a fresh verification code.
func (s *Server) ResendOTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Onboarding.ResendOTP(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]bool{"sent": true})
	}
}

type capturePhotoRequest struct {
	PhotoRef string `json:"photoRef" validate:"required"`
}

// CapturePhotoHandler records the proctoring reference photo.
func (s *Server) CapturePhotoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req capturePhotoRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		if err := s.Onboarding.CapturePhoto(r.Context(), chi.URLParam(r, "id"), req.PhotoRef); err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]bool{"photoCaptured": true})
	}
}

// AcceptConsentHandler records the candidate's proctoring consent.
func (s *Server) AcceptConsentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Onboarding.AcceptConsent(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]bool{"consentAccepted": true})
	}
}

// UploadResumeHandler stores the resume file and runs the AI match against
// the JD. The match outcome comes back in the response so the candidate sees
// immediately whether they cleared the threshold.
func (s *Server) UploadResumeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fileName, path, err := s.saveUpload(r, "file")
		if err != nil {
			writeError(w, r, err)
			return
		}
		block, err := s.Onboarding.UploadResume(r.Context(), chi.URLParam(r, "id"), fileName, path)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, block)
	}
}

// CandidateStatusHandler returns the candidate's onboarding and assessment
// progress.
func (s *Server) CandidateStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := s.Onboarding.Status(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, toCandidateView(c))
	}
}

// StartAssessmentHandler opens the timed session once onboarding is complete.
func (s *Server) StartAssessmentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := s.Session.Start(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, res)
	}
}
