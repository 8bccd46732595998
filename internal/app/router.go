// Package app assembles the HTTP surface: middleware order, route layout,
// and readiness checks.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/ai-assessment-engine/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-assessment-engine/internal/adapter/observability"
	"github.com/fairyhunter13/ai-assessment-engine/internal/config"
)

// ParseOrigins splits a comma-separated origin list, trimming spaces. Empty
// input means allow-all.
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	out := make([]string, 0, 4)
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middleware and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Candidate-facing surface. Onboarding mutations are IP rate limited;
	// in-session traffic (answers, heartbeats) is not, it is already gated by
	// the session token and the time budget.
	r.Group(func(pub chi.Router) {
		pub.Use(httprate.LimitByIP(cfg.RateLimitPerMin, 1*time.Minute))
		pub.Post("/v1/assess/{link}/register", srv.RegisterHandler())
		pub.Route("/v1/candidates/{id}", func(c chi.Router) {
			c.Post("/verify-email", srv.VerifyEmailHandler())
			c.Post("/resend-otp", srv.ResendOTPHandler())
			c.Post("/photo", srv.CapturePhotoHandler())
			c.Post("/consent", srv.AcceptConsentHandler())
			c.Post("/resume", srv.UploadResumeHandler())
			c.Post("/start", srv.StartAssessmentHandler())
		})
		pub.Post("/v1/session/proctoring", srv.LogProctoringEventHandler())
		pub.Post("/v1/code/run", srv.RunCodeHandler())
		pub.Post("/v1/code/submit", srv.SubmitCodeHandler())
	})

	r.Get("/v1/assess/{link}", srv.AssessmentInfoHandler())
	r.Get("/v1/candidates/{id}/status", srv.CandidateStatusHandler())
	r.Get("/v1/code/languages", srv.ListLanguagesHandler())

	r.Route("/v1/session", func(sr chi.Router) {
		sr.Get("/", srv.GetSessionHandler())
		sr.Get("/questions/{section}", srv.GetQuestionsHandler())
		sr.Post("/answer", srv.SaveAnswerHandler())
		sr.Post("/submit-section", srv.SubmitSectionHandler())
		sr.Post("/submit-all", srv.SubmitAllHandler())
		sr.Post("/heartbeat", srv.HeartbeatHandler())
		sr.Get("/interview", srv.GetInterviewHandler())
		sr.Post("/interview/start", srv.StartInterviewHandler())
		sr.Post("/interview/answer", srv.AnswerInterviewHandler())
	})

	// Recruiter/admin surface behind Basic Auth when credentials are set.
	r.Group(func(adm chi.Router) {
		if cfg.AdminEnabled() {
			adm.Use(httpserver.AdminAuth(cfg.AdminUsername, cfg.AdminPasswordHash))
		}
		adm.Route("/v1/jd", func(jr chi.Router) {
			jr.Post("/", srv.UploadJDHandler())
			jr.Get("/", srv.ListJDsHandler())
			jr.Get("/{id}", srv.GetJDHandler())
			jr.Post("/{id}/parse", srv.ParseJDHandler())
			jr.Put("/{id}/config", srv.UpdateJDConfigHandler())
			jr.Put("/{id}/skills", srv.UpdateJDSkillsHandler())
			jr.Put("/{id}/rubric", srv.UpdateJDRubricHandler())
			jr.Post("/{id}/lock", srv.LockJDHandler())
			jr.Post("/{id}/generate-link", srv.GenerateLinkHandler())
			jr.Post("/{id}/close", srv.CloseJDHandler())
			jr.Delete("/{id}", srv.DeleteJDHandler())
		})
		adm.Route("/v1/admin", func(ar chi.Router) {
			ar.Get("/candidates", srv.ListCandidatesHandler())
			ar.Get("/candidates/{id}", srv.GetCandidateHandler())
			ar.Post("/candidates/{id}/decision", srv.SetDecisionHandler())
			ar.Get("/candidates/{id}/proctoring", srv.ListProctoringEventsHandler())
			ar.Post("/candidates/{id}/proctoring/{eventId}/review", srv.ReviewProctoringHandler())
			ar.Get("/analytics/{jdId}", srv.AnalyticsHandler())
			ar.Get("/export/{jdId}.csv", srv.ExportCSVHandler())
			ar.Get("/export/{jdId}.json", srv.ExportJSONHandler())
			ar.Get("/audit", srv.AuditLogHandler())
		})
	})

	r.Get("/healthz", srv.HealthzHandler())
	r.Get("/readyz", srv.ReadyzHandler())
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return httpserver.SecurityHeaders(r)
}
