package usecase

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-assessment-engine/internal/config"
	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
	"github.com/fairyhunter13/ai-assessment-engine/internal/service/ratelimiter"
	"github.com/fairyhunter13/ai-assessment-engine/pkg/textx"
)

// minResumeTextLength rejects extractions that produced no usable text.
const minResumeTextLength = 50

// OnboardingService walks a candidate through registration, email
// verification, photo capture, consent, and the resume gate.
type OnboardingService struct {
	JDs        domain.JDRepository
	Candidates domain.CandidateRepository
	OTP        domain.OTPStore
	Mail       domain.Mailer
	Extract    domain.TextExtractor
	AI         domain.AIClient
	Limiter    ratelimiter.Limiter
	Cfg        config.Config
	Now        func() time.Time
}

// NewOnboardingService constructs an OnboardingService.
func NewOnboardingService(jds domain.JDRepository, cands domain.CandidateRepository, otp domain.OTPStore, mail domain.Mailer, extract domain.TextExtractor, ai domain.AIClient, lim ratelimiter.Limiter, cfg config.Config) OnboardingService {
	return OnboardingService{JDs: jds, Candidates: cands, OTP: otp, Mail: mail, Extract: extract, AI: ai, Limiter: lim, Cfg: cfg, Now: time.Now}
}

func (s OnboardingService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// PublicJDInfo is the candidate-facing view of an assessment link.
type PublicJDInfo struct {
	JDID             string           `json:"jdId"`
	Title            string           `json:"title"`
	Summary          string           `json:"summary"`
	TotalTimeMinutes int              `json:"totalTimeMinutes"`
	StartTime        *time.Time       `json:"startTime,omitempty"`
	EndTime          *time.Time       `json:"endTime,omitempty"`
	Status           domain.JDStatus  `json:"status"`
	Sections         []domain.Section `json:"sections"`
}

// Info resolves a public assessment link to candidate-safe JD details.
func (s OnboardingService) Info(ctx domain.Context, link string) (PublicJDInfo, error) {
	jd, err := s.JDs.GetByLink(ctx, link)
	if err != nil {
		return PublicJDInfo{}, err
	}
	info := PublicJDInfo{
		JDID:             jd.ID,
		TotalTimeMinutes: jd.Config.TotalTimeMinutes,
		StartTime:        jd.Config.StartTime,
		EndTime:          jd.Config.EndTime,
		Status:           jd.EffectiveStatus(s.now()),
	}
	if jd.Parsed != nil {
		info.Title = jd.Parsed.Title
		info.Summary = jd.Parsed.Summary
	}
	for _, sec := range domain.SectionOrder {
		if sc, ok := jd.Config.Sections[sec]; ok && sc.Enabled && sc.QuestionCount > 0 {
			info.Sections = append(info.Sections, sec)
		}
	}
	return info, nil
}

// Register creates (or re-fetches) the candidate record for an assessment
// link and sends a verification code. Idempotent on (email, jd): registering
// twice returns the existing record and re-sends the code when the email is
// still unverified.
func (s OnboardingService) Register(ctx domain.Context, link, email, name string) (domain.CandidateAssessment, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	jd, err := s.JDs.GetByLink(ctx, link)
	if err != nil {
		return domain.CandidateAssessment{}, err
	}
	now := s.now()
	if !jd.Config.WithinWindow(now) {
		return domain.CandidateAssessment{}, fmt.Errorf("%w: assessment window is not open", domain.ErrForbidden)
	}

	if existing, err := s.Candidates.GetByEmailAndJD(ctx, email, jd.ID); err == nil {
		if !existing.Onboarding.EmailVerified {
			if err := s.sendOTP(ctx, jd, existing); err != nil {
				return domain.CandidateAssessment{}, err
			}
		}
		return existing, nil
	} else if !isNotFound(err) {
		return domain.CandidateAssessment{}, fmt.Errorf("op=onboarding.register: %w", err)
	}

	id, err := s.Candidates.Create(ctx, domain.CandidateAssessment{
		JDID:   jd.ID,
		Email:  email,
		Name:   name,
		Status: domain.CandidateOnboarding,
	})
	if err != nil {
		if isConflict(err) {
			// Lost a create race; the winner's record is authoritative.
			return s.Candidates.GetByEmailAndJD(ctx, email, jd.ID)
		}
		return domain.CandidateAssessment{}, fmt.Errorf("op=onboarding.register: %w", err)
	}
	if err := s.JDs.IncrementStat(ctx, jd.ID, "totalInvited", 1); err != nil {
		slog.Error("stat bump failed", slog.String("jd_id", jd.ID), slog.Any("error", err))
	}
	c, err := s.Candidates.Get(ctx, id)
	if err != nil {
		return domain.CandidateAssessment{}, fmt.Errorf("op=onboarding.register: %w", err)
	}
	if err := s.sendOTP(ctx, jd, c); err != nil {
		return domain.CandidateAssessment{}, err
	}
	return c, nil
}

// ResendOTP re-issues the verification code for an unverified candidate.
func (s OnboardingService) ResendOTP(ctx domain.Context, candidateID string) error {
	c, err := s.Candidates.Get(ctx, candidateID)
	if err != nil {
		return err
	}
	if c.Onboarding.EmailVerified {
		return fmt.Errorf("%w: email already verified", domain.ErrConflict)
	}
	jd, err := s.JDs.Get(ctx, c.JDID)
	if err != nil {
		return err
	}
	return s.sendOTP(ctx, jd, c)
}

func (s OnboardingService) sendOTP(ctx domain.Context, jd domain.JobDescription, c domain.CandidateAssessment) error {
	allowed, retryAfter, err := s.Limiter.Allow(ctx, "otp_resend:"+c.Email, 1)
	if err == nil && !allowed {
		return fmt.Errorf("%w: retry in %s", domain.ErrRateLimited, retryAfter.Round(time.Second))
	}
	code, err := s.OTP.Issue(ctx, c.Email, otpPurpose(jd.ID), s.Cfg.OTPTTL)
	if err != nil {
		return fmt.Errorf("op=onboarding.sendOTP: %w", err)
	}
	title := "your assessment"
	if jd.Parsed != nil && jd.Parsed.Title != "" {
		title = jd.Parsed.Title
	}
	body := fmt.Sprintf("Your verification code for %s is %s. It expires in %d minutes.",
		title, code, int(s.Cfg.OTPTTL.Minutes()))
	if err := s.Mail.Send(ctx, c.Email, "Verify your email", body); err != nil {
		return fmt.Errorf("op=onboarding.sendOTP: mail: %w", err)
	}
	if err := s.Candidates.AppendCommLog(ctx, c.ID, domain.CommEntry{
		Kind: "otp_email", Detail: "verification code sent", SentAt: s.now(),
	}); err != nil {
		slog.Error("comm log append failed", slog.String("candidate_id", c.ID), slog.Any("error", err))
	}
	return nil
}

func otpPurpose(jdID string) string { return "onboard:" + jdID }

// VerifyEmail checks the one-time code and marks the email verified. Wrong,
// expired, and attempt-exhausted codes all surface the same generic error.
func (s OnboardingService) VerifyEmail(ctx domain.Context, candidateID, code string) error {
	c, err := s.Candidates.Get(ctx, candidateID)
	if err != nil {
		return err
	}
	if c.Onboarding.EmailVerified {
		return nil
	}
	if err := s.OTP.Verify(ctx, c.Email, otpPurpose(c.JDID), code); err != nil {
		return err
	}
	if err := s.Candidates.SetEmailVerified(ctx, candidateID, s.now()); err != nil {
		return fmt.Errorf("op=onboarding.verifyEmail: %w", err)
	}
	return nil
}

// CapturePhoto records the proctoring reference photo.
func (s OnboardingService) CapturePhoto(ctx domain.Context, candidateID, photoRef string) error {
	if photoRef == "" {
		return fmt.Errorf("%w: photo reference required", domain.ErrValidation)
	}
	c, err := s.Candidates.Get(ctx, candidateID)
	if err != nil {
		return err
	}
	if !c.Onboarding.EmailVerified {
		return fmt.Errorf("%w: verify email first", domain.ErrForbidden)
	}
	if err := s.Candidates.SetProfilePhoto(ctx, candidateID, photoRef, s.now()); err != nil {
		return fmt.Errorf("op=onboarding.capturePhoto: %w", err)
	}
	return nil
}

// AcceptConsent records proctoring and data-processing consent.
func (s OnboardingService) AcceptConsent(ctx domain.Context, candidateID string) error {
	c, err := s.Candidates.Get(ctx, candidateID)
	if err != nil {
		return err
	}
	if !c.Onboarding.EmailVerified {
		return fmt.Errorf("%w: verify email first", domain.ErrForbidden)
	}
	if err := s.Candidates.SetConsent(ctx, candidateID, s.now()); err != nil {
		return fmt.Errorf("op=onboarding.acceptConsent: %w", err)
	}
	return nil
}

// UploadResume extracts resume text, runs the AI match against the JD, and
// moves the candidate to ready or resume_rejected based on the threshold
// verdict. Re-upload is allowed while the candidate has not passed the gate.
func (s OnboardingService) UploadResume(ctx domain.Context, candidateID, fileName, path string) (domain.ResumeBlock, error) {
	c, err := s.Candidates.Get(ctx, candidateID)
	if err != nil {
		return domain.ResumeBlock{}, err
	}
	if c.Status != domain.CandidateOnboarding && c.Status != domain.CandidateResumeReview {
		return domain.ResumeBlock{}, fmt.Errorf("%w: resume upload not allowed in status %s", domain.ErrConflict, c.Status)
	}
	if !c.Onboarding.EmailVerified || !c.Onboarding.ProfilePhotoCaptured || !c.Onboarding.ConsentAccepted {
		return domain.ResumeBlock{}, fmt.Errorf("%w: complete verification, photo, and consent first", domain.ErrForbidden)
	}
	jd, err := s.JDs.Get(ctx, c.JDID)
	if err != nil {
		return domain.ResumeBlock{}, err
	}

	text, err := s.Extract.ExtractPath(ctx, fileName, path)
	if err != nil {
		return domain.ResumeBlock{}, fmt.Errorf("op=onboarding.uploadResume: extract: %w", err)
	}
	text = textx.SanitizeText(text)
	if len(text) < minResumeTextLength {
		return domain.ResumeBlock{}, fmt.Errorf("%w: could not extract readable text from resume", domain.ErrValidation)
	}

	if c.Status == domain.CandidateOnboarding {
		if err := s.Candidates.UpdateStatus(ctx, candidateID, domain.CandidateOnboarding, domain.CandidateResumeReview); err != nil {
			return domain.ResumeBlock{}, fmt.Errorf("op=onboarding.uploadResume: %w", err)
		}
	}

	match, err := s.matchResume(ctx, jd, text)
	if err != nil {
		return domain.ResumeBlock{}, fmt.Errorf("op=onboarding.uploadResume: match: %w", err)
	}
	threshold := jd.Config.ResumeMatchThreshold
	if threshold <= 0 {
		threshold = domain.DefaultResumeMatchThreshold
	}
	now := s.now()
	block := domain.ResumeBlock{
		Text:            text,
		FileRef:         fileName,
		MatchScore:      match.MatchScore,
		IsFake:          match.IsFake,
		PassedThreshold: match.MatchScore >= threshold && !match.IsFake,
		MatchedSkills:   match.MatchedSkills,
		MissingSkills:   match.MissingSkills,
		Summary:         match.Summary,
		UploadedAt:      &now,
	}
	if err := s.Candidates.SetResume(ctx, candidateID, block); err != nil {
		return domain.ResumeBlock{}, fmt.Errorf("op=onboarding.uploadResume: persist: %w", err)
	}
	next := domain.CandidateResumeRejected
	if block.PassedThreshold {
		next = domain.CandidateReady
	}
	if err := s.Candidates.UpdateStatus(ctx, candidateID, domain.CandidateResumeReview, next); err != nil {
		return domain.ResumeBlock{}, fmt.Errorf("op=onboarding.uploadResume: %w", err)
	}
	slog.Info("resume gate decided", slog.String("candidate_id", candidateID),
		slog.Int("score", block.MatchScore), slog.Bool("passed", block.PassedThreshold))
	return block, nil
}

type resumeMatch struct {
	MatchScore    int      `json:"matchScore"`
	IsFake        bool     `json:"isFake"`
	MatchedSkills []string `json:"matchedSkills"`
	MissingSkills []string `json:"missingSkills"`
	Summary       string   `json:"summary"`
}

const resumeMatchSystem = "You are a resume screening assistant. Respond with JSON only."

const resumeMatchSchema = `{"matchScore":0,"isFake":false,"matchedSkills":["..."],"missingSkills":["..."],"summary":"..."}`

func (s OnboardingService) matchResume(ctx domain.Context, jd domain.JobDescription, resume string) (resumeMatch, error) {
	skills := jd.SkillsOverride
	if len(skills) == 0 && jd.Parsed != nil {
		skills = jd.Parsed.TechnicalSkills
	}
	prompt := fmt.Sprintf(
		"Score this resume against the role requirements on a 0-100 scale: up to 40 points for skill coverage, up to 40 for relevant project/work experience, up to 20 for overall role fit. Set isFake=true only for clearly fabricated or keyword-stuffed resumes.\n\nRequired skills: %s\n\nResume:\n%s",
		strings.Join(skills, ", "), resume)
	res, err := s.AI.Call(ctx, domain.AICallRequest{
		System:        resumeMatchSystem,
		Prompt:        prompt,
		JSONMode:      true,
		Temperature:   0.1,
		SchemaExample: resumeMatchSchema,
	})
	if err != nil {
		return resumeMatch{}, err
	}
	var m resumeMatch
	if err := json.Unmarshal([]byte(res.Content), &m); err != nil {
		return resumeMatch{}, fmt.Errorf("decode match result: %v: %w", err, domain.ErrLLMBadJSON)
	}
	if m.MatchScore < 0 {
		m.MatchScore = 0
	}
	if m.MatchScore > 100 {
		m.MatchScore = 100
	}
	return m, nil
}

// Status returns the candidate's current onboarding and lifecycle state.
func (s OnboardingService) Status(ctx domain.Context, candidateID string) (domain.CandidateAssessment, error) {
	return s.Candidates.Get(ctx, candidateID)
}
