package usecase

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
	"github.com/fairyhunter13/ai-assessment-engine/internal/service/ratelimiter"
)

// CodeExecService coordinates candidate code execution against the sandbox:
// sample runs during drafting and full submissions with weighted scoring and
// hidden-case redaction.
type CodeExecService struct {
	Session SessionService
	Sets    domain.SetRepository
	Answers domain.AnswerRepository
	Sandbox domain.SandboxClient
	Limiter ratelimiter.Limiter
}

// NewCodeExecService constructs a CodeExecService.
func NewCodeExecService(session SessionService, sets domain.SetRepository, answers domain.AnswerRepository, sandbox domain.SandboxClient, lim ratelimiter.Limiter) CodeExecService {
	return CodeExecService{Session: session, Sets: sets, Answers: answers, Sandbox: sandbox, Limiter: lim}
}

// CodeInput is one run or submit request.
type CodeInput struct {
	QuestionID string `json:"questionId"`
	Code       string `json:"code"`
	Language   string `json:"language"`
	LanguageID int    `json:"languageId"`
}

// RunOutput reports a sample-case run.
type RunOutput struct {
	Results []domain.TestCaseResult `json:"results"`
	Passed  int                     `json:"passed"`
	Total   int                     `json:"total"`
}

// SubmitOutput reports a full submission: visible case details plus hidden
// pass counts only.
type SubmitOutput struct {
	VisibleResults    []domain.TestCaseResult `json:"visibleResults"`
	HiddenTestsPassed int                     `json:"hiddenTestsPassed"`
	HiddenTestsTotal  int                     `json:"hiddenTestsTotal"`
	CorrectnessScore  float64                 `json:"correctnessScore"`
}

// Run executes the code against the sample test cases only. The run is
// recorded in history but never changes the question's score.
func (s CodeExecService) Run(ctx domain.Context, tok string, in CodeInput) (RunOutput, error) {
	c, _, _, err := s.Session.Authenticate(ctx, tok)
	if err != nil {
		return RunOutput{}, err
	}
	if err := s.allow(ctx, c.ID); err != nil {
		return RunOutput{}, err
	}
	q, err := s.question(ctx, c.AssignedSetID, in.QuestionID)
	if err != nil {
		return RunOutput{}, err
	}
	if in.Code == "" {
		return RunOutput{}, fmt.Errorf("%w: code required", domain.ErrValidation)
	}

	results, err := s.Sandbox.RunTestCases(ctx, in.Code, in.LanguageID, q.SampleTestCases())
	if err != nil {
		return RunOutput{}, fmt.Errorf("op=codeexec.run: %w", err)
	}
	passed := countPassed(results)
	s.recordRun(ctx, c.ID, in, passed, len(results))
	return RunOutput{Results: results, Passed: passed, Total: len(results)}, nil
}

// Submit executes the code against all test cases, scores it by test-case
// weight, and persists the attempt with hidden inputs and outputs redacted.
func (s CodeExecService) Submit(ctx domain.Context, tok string, in CodeInput) (SubmitOutput, error) {
	c, _, _, err := s.Session.Authenticate(ctx, tok)
	if err != nil {
		return SubmitOutput{}, err
	}
	if err := s.allow(ctx, c.ID); err != nil {
		return SubmitOutput{}, err
	}
	q, err := s.question(ctx, c.AssignedSetID, in.QuestionID)
	if err != nil {
		return SubmitOutput{}, err
	}
	if in.Code == "" {
		return SubmitOutput{}, fmt.Errorf("%w: code required", domain.ErrValidation)
	}

	results, err := s.Sandbox.RunTestCases(ctx, in.Code, in.LanguageID, q.TestCases)
	if err != nil {
		return SubmitOutput{}, fmt.Errorf("op=codeexec.submit: %w", err)
	}
	correctness := domain.WeightedCorrectness(results)
	now := s.Session.now()

	out := SubmitOutput{CorrectnessScore: correctness}
	for _, r := range results {
		if r.Hidden {
			out.HiddenTestsTotal++
			if r.Passed {
				out.HiddenTestsPassed++
			}
		} else {
			out.VisibleResults = append(out.VisibleResults, r)
		}
	}

	var persistErr error
	s.Session.Locks.Do(c.ID, func() {
		if _, err := s.Answers.EnsureSection(ctx, c.ID, domain.SectionProgramming, now); err != nil {
			persistErr = err
			return
		}
		entry := s.mergedEntry(ctx, c.ID, in, now)
		entry.TestCasesPassed = countPassed(results)
		entry.TotalTestCases = len(results)
		entry.CorrectnessScore = correctness
		entry.LastResults = redactHiddenResults(results)
		entry.RunHistory = append(entry.RunHistory, domain.RunRecord{
			Language: in.Language, Passed: entry.TestCasesPassed, Total: entry.TotalTestCases, RanAt: now,
		})
		persistErr = s.Answers.UpsertProgramming(ctx, c.ID, entry)
	})
	if persistErr != nil {
		return SubmitOutput{}, fmt.Errorf("op=codeexec.submit: persist: %w", persistErr)
	}
	slog.Info("code submitted", slog.String("candidate_id", c.ID),
		slog.String("question_id", in.QuestionID),
		slog.Int("passed", countPassed(results)), slog.Int("total", len(results)))
	return out, nil
}

// Languages lists the sandbox's runnable languages.
func (s CodeExecService) Languages(ctx domain.Context) ([]domain.SandboxLanguage, error) {
	return s.Sandbox.Languages(ctx)
}

func (s CodeExecService) allow(ctx domain.Context, candidateID string) error {
	allowed, retryAfter, err := s.Limiter.Allow(ctx, "code_run:"+candidateID, 1)
	if err == nil && !allowed {
		return fmt.Errorf("%w: retry in %s", domain.ErrRateLimited, retryAfter.Round(time.Second))
	}
	return nil
}

func (s CodeExecService) question(ctx domain.Context, setID, questionID string) (domain.ProgrammingQuestion, error) {
	set, err := s.Sets.Get(ctx, setID)
	if err != nil {
		return domain.ProgrammingQuestion{}, fmt.Errorf("op=codeexec: %w", err)
	}
	for _, q := range set.Programming {
		if q.QuestionID == questionID {
			return q, nil
		}
	}
	return domain.ProgrammingQuestion{}, fmt.Errorf("%w: programming question %s", domain.ErrNotFound, questionID)
}

// recordRun appends a history record without touching submission scores.
func (s CodeExecService) recordRun(ctx domain.Context, caID string, in CodeInput, passed, total int) {
	now := s.Session.now()
	s.Session.Locks.Do(caID, func() {
		if _, err := s.Answers.EnsureSection(ctx, caID, domain.SectionProgramming, now); err != nil {
			slog.Error("run record failed", slog.String("candidate_id", caID), slog.Any("error", err))
			return
		}
		entry := s.mergedEntry(ctx, caID, in, now)
		entry.RunHistory = append(entry.RunHistory, domain.RunRecord{
			Language: in.Language, Passed: passed, Total: total, RanAt: now,
		})
		if err := s.Answers.UpsertProgramming(ctx, caID, entry); err != nil {
			slog.Error("run record failed", slog.String("candidate_id", caID), slog.Any("error", err))
		}
	})
}

// mergedEntry loads the existing entry for the question (preserving prior
// scores and history) and overlays the new code.
func (s CodeExecService) mergedEntry(ctx domain.Context, caID string, in CodeInput, now time.Time) domain.ProgrammingAnswer {
	entry := domain.ProgrammingAnswer{
		QuestionID: in.QuestionID,
		Code:       in.Code,
		Language:   in.Language,
		LanguageID: in.LanguageID,
		AnsweredAt: now,
	}
	if doc, err := s.Answers.Get(ctx, caID, domain.SectionProgramming); err == nil {
		for _, prev := range doc.Programming {
			if prev.QuestionID == in.QuestionID {
				entry.TestCasesPassed = prev.TestCasesPassed
				entry.TotalTestCases = prev.TotalTestCases
				entry.CorrectnessScore = prev.CorrectnessScore
				entry.QualityScore = prev.QualityScore
				entry.EfficiencyScore = prev.EfficiencyScore
				entry.LastResults = prev.LastResults
				entry.RunHistory = prev.RunHistory
				break
			}
		}
	}
	return entry
}

func countPassed(results []domain.TestCaseResult) int {
	n := 0
	for _, r := range results {
		if r.Passed {
			n++
		}
	}
	return n
}

// redactHiddenResults replaces hidden-case inputs and outputs with the
// redaction marker before persistence.
func redactHiddenResults(results []domain.TestCaseResult) []domain.TestCaseResult {
	out := make([]domain.TestCaseResult, len(results))
	copy(out, results)
	for i := range out {
		if out[i].Hidden {
			out[i].Input = domain.HiddenRedaction
			out[i].ExpectedOutput = domain.HiddenRedaction
			out[i].ActualOutput = domain.HiddenRedaction
		}
	}
	return out
}
