// Command server runs the assessment engine HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-assessment-engine/internal/adapter/ai"
	aistub "github.com/fairyhunter13/ai-assessment-engine/internal/adapter/ai/stub"
	"github.com/fairyhunter13/ai-assessment-engine/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-assessment-engine/internal/adapter/mail"
	"github.com/fairyhunter13/ai-assessment-engine/internal/adapter/observability"
	"github.com/fairyhunter13/ai-assessment-engine/internal/adapter/otpstore"
	"github.com/fairyhunter13/ai-assessment-engine/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-assessment-engine/internal/adapter/sandbox/judge0"
	"github.com/fairyhunter13/ai-assessment-engine/internal/adapter/textextractor/tika"
	"github.com/fairyhunter13/ai-assessment-engine/internal/app"
	"github.com/fairyhunter13/ai-assessment-engine/internal/config"
	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
	"github.com/fairyhunter13/ai-assessment-engine/internal/service/locker"
	"github.com/fairyhunter13/ai-assessment-engine/internal/service/ratelimiter"
	"github.com/fairyhunter13/ai-assessment-engine/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(observability.SetupLogger(cfg))
	observability.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := postgres.Migrate(ctx, cfg.DBURL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	jdRepo := postgres.NewJDRepo(pool)
	setRepo := postgres.NewSetRepo(pool)
	candRepo := postgres.NewCandidateRepo(pool)
	answerRepo := postgres.NewAnswerRepo(pool)
	proctorRepo := postgres.NewProctoringRepo(pool)
	evalRepo := postgres.NewEvaluationRepo(pool)
	interviewRepo := postgres.NewInterviewRepo(pool)
	auditRepo := postgres.NewAuditRepo(pool)

	var aiClient domain.AIClient
	if cfg.LLMAPIKey == "" && !cfg.IsProd() {
		slog.Warn("LLM_API_KEY unset, using deterministic AI stub")
		aiClient = aistub.New()
	} else {
		aiClient = ai.New(cfg)
	}

	sandbox := judge0.New(cfg)
	extractor := tika.New(cfg.TikaURL)
	mailer := mail.New(cfg)
	otp := otpstore.New(rdb, cfg.OTPMaxAttempts)
	limiter := ratelimiter.NewRedisLuaLimiter(rdb, map[string]ratelimiter.BucketConfig{
		"otp_resend": {Capacity: 3, RefillRate: 1.0 / 60},
		"code_run":   ratelimiter.NewBucketConfigFromPerMinute(10),
	})
	locks := locker.New(256)

	setgenSvc := usecase.NewSetGenService(aiClient, setRepo, cfg)
	jdSvc := usecase.NewJDService(jdRepo, setRepo, aiClient, extractor, setgenSvc, cfg)
	evalSvc := usecase.NewEvaluationService(candRepo, jdRepo, setRepo, answerRepo, evalRepo, aiClient, usecase.NopPlagiarismChecker{}, cfg)
	sessionSvc := usecase.NewSessionService(candRepo, jdRepo, setRepo, answerRepo, evalSvc, locks)
	codeSvc := usecase.NewCodeExecService(sessionSvc, setRepo, answerRepo, sandbox, limiter)
	onboardSvc := usecase.NewOnboardingService(jdRepo, candRepo, otp, mailer, extractor, aiClient, limiter, cfg)
	proctorSvc := usecase.NewProctoringService(candRepo, proctorRepo)
	adminSvc := usecase.NewAdminService(jdRepo, candRepo, evalRepo, auditRepo)
	followUpSvc := usecase.NewFollowUpService(interviewRepo, aiClient)

	srv := httpserver.NewServer(cfg, jdSvc, onboardSvc, sessionSvc, codeSvc, proctorSvc, adminSvc, followUpSvc,
		app.DBCheck(pool), app.RedisCheck(rdb), app.SandboxCheck(sandbox))

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      app.BuildRouter(cfg, srv),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", slog.Int("port", cfg.Port), slog.String("env", cfg.AppEnv))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down", slog.Duration("timeout", cfg.ServerShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
