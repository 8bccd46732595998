package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/ai-assessment-engine/internal/config"
	"github.com/fairyhunter13/ai-assessment-engine/internal/usecase"
)

// Server aggregates the handler dependencies.
type Server struct {
	Cfg        config.Config
	JD         usecase.JDService
	Onboarding usecase.OnboardingService
	Session    usecase.SessionService
	Code       usecase.CodeExecService
	Proctoring usecase.ProctoringService
	Admin      usecase.AdminService
	FollowUp   usecase.FollowUpService

	DBCheck      func(ctx context.Context) error
	RedisCheck   func(ctx context.Context) error
	SandboxCheck func(ctx context.Context) error
}

// NewServer constructs a Server with all handlers and checks wired.
func NewServer(cfg config.Config, jd usecase.JDService, onboarding usecase.OnboardingService, session usecase.SessionService, code usecase.CodeExecService, proctoring usecase.ProctoringService, admin usecase.AdminService, followUp usecase.FollowUpService, dbCheck, redisCheck, sandboxCheck func(context.Context) error) *Server {
	return &Server{
		Cfg:        cfg,
		JD:         jd,
		Onboarding: onboarding,
		Session:    session,
		Code:       code,
		Proctoring: proctoring,
		Admin:      admin,
		FollowUp:   followUp,

		DBCheck:      dbCheck,
		RedisCheck:   redisCheck,
		SandboxCheck: sandboxCheck,
	}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// decodeAndValidate decodes a capped JSON body into dst and runs the
// validator. It writes the error response itself and reports whether the
// handler may proceed.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeFieldErrors(w, []FieldError{{Field: "body", Message: "invalid json"}})
		return false
	}
	if err := getValidator().Struct(dst); err != nil {
		var fieldErrs []FieldError
		if ve, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range ve {
				fieldErrs = append(fieldErrs, FieldError{
					Field:   strings.ToLower(fe.Field()[:1]) + fe.Field()[1:],
					Message: fe.Tag(),
				})
			}
		}
		writeFieldErrors(w, fieldErrs)
		return false
	}
	return true
}

// pagination reads limit/offset query params with sane bounds.
func pagination(r *http.Request) (limit, offset int) {
	limit, offset = 50, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// HealthzHandler reports process liveness.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}

// ReadyzHandler runs the dependency checks and reports per-dependency status.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		name string
		fn   func(ctx context.Context) error
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		checks := []check{
			{"db", s.DBCheck},
			{"redis", s.RedisCheck},
			{"sandbox", s.SandboxCheck},
		}
		status := http.StatusOK
		results := map[string]string{}
		for _, c := range checks {
			if c.fn == nil {
				results[c.name] = "unconfigured"
				continue
			}
			if err := c.fn(ctx); err != nil {
				results[c.name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[c.name] = "ok"
		}
		writeJSON(w, status, map[string]any{"ready": status == http.StatusOK, "checks": results})
	}
}
