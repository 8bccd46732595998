package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/fairyhunter13/ai-assessment-engine/internal/adapter/observability"
	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
	"github.com/fairyhunter13/ai-assessment-engine/internal/service/locker"
	"github.com/fairyhunter13/ai-assessment-engine/pkg/textx"
	"github.com/fairyhunter13/ai-assessment-engine/pkg/token"
)

// SessionGrace is the tolerance added to the global time budget before a
// touch forces submission.
const SessionGrace = 60 * time.Second

// Evaluator runs the post-submit evaluation pipeline.
type Evaluator interface {
	RunEvaluation(ctx domain.Context, candidateID string) (domain.Evaluation, error)
}

// SessionService owns the timed assessment session: start, per-request
// authentication with expiry-on-touch, question serving, answer saves,
// section grading, and final submission.
//
// Time-budget enforcement happens on every authenticated call, never via a
// background timer: a session past totalTime plus grace is force-submitted by
// whichever request touches it next.
type SessionService struct {
	Candidates domain.CandidateRepository
	JDs        domain.JDRepository
	Sets       domain.SetRepository
	Answers    domain.AnswerRepository
	Eval       Evaluator
	Locks      *locker.Keyed
	Now        func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(cands domain.CandidateRepository, jds domain.JDRepository, sets domain.SetRepository, answers domain.AnswerRepository, eval Evaluator, locks *locker.Keyed) SessionService {
	return SessionService{Candidates: cands, JDs: jds, Sets: sets, Answers: answers, Eval: eval, Locks: locks, Now: time.Now}
}

func (s SessionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// StartResult describes an established session.
type StartResult struct {
	SessionToken     string           `json:"sessionToken"`
	TotalTimeMinutes int              `json:"totalTimeMinutes"`
	CurrentSection   domain.Section   `json:"currentSection"`
	Sections         []domain.Section `json:"sections"`
	StartedAt        time.Time        `json:"startedAt"`
}

// Start establishes the assessment session: uniform-random set assignment,
// session token mint, and first-section setup. Idempotent: a candidate
// already in progress gets their existing session back.
func (s SessionService) Start(ctx domain.Context, candidateID string) (StartResult, error) {
	s.Locks.Lock(candidateID)
	defer s.Locks.Unlock(candidateID)

	c, err := s.Candidates.Get(ctx, candidateID)
	if err != nil {
		return StartResult{}, err
	}
	jd, err := s.JDs.Get(ctx, c.JDID)
	if err != nil {
		return StartResult{}, err
	}
	if c.Status == domain.CandidateInProgress && c.SessionToken != nil {
		return s.startResult(jd, *c.SessionToken, c.CurrentSection, *c.StartedAt), nil
	}
	if c.Status != domain.CandidateReady {
		return StartResult{}, fmt.Errorf("%w: cannot start in status %s", domain.ErrConflict, c.Status)
	}
	if !c.IsOnboardingComplete() {
		return StartResult{}, fmt.Errorf("%w: onboarding incomplete", domain.ErrForbidden)
	}
	now := s.now()
	if !jd.Config.WithinWindow(now) {
		return StartResult{}, fmt.Errorf("%w: assessment window is not open", domain.ErrForbidden)
	}

	sets, err := s.Sets.ListActiveByJD(ctx, jd.ID)
	if err != nil {
		return StartResult{}, fmt.Errorf("op=session.start: %w", err)
	}
	if len(sets) == 0 {
		return StartResult{}, fmt.Errorf("%w: no active question sets for jd", domain.ErrInternal)
	}
	assigned := sets[rand.IntN(len(sets))]
	tok := token.NewSessionToken()

	if err := s.Candidates.StartSession(ctx, candidateID, assigned.ID, tok, now); err != nil {
		return StartResult{}, fmt.Errorf("op=session.start: %w", err)
	}
	if err := s.JDs.IncrementStat(ctx, jd.ID, "inProgress", 1); err != nil {
		slog.Error("stat bump failed", slog.String("jd_id", jd.ID), slog.Any("error", err))
	}

	first := domain.NextEnabledSection(jd.Config, "")
	if first != "" {
		if err := s.openSection(ctx, c, first, now); err != nil {
			return StartResult{}, err
		}
	}
	slog.Info("session started", slog.String("candidate_id", candidateID),
		slog.String("set_id", assigned.ID), slog.String("section", string(first)))
	return s.startResult(jd, tok, first, now), nil
}

func (s SessionService) startResult(jd domain.JobDescription, tok string, cur domain.Section, startedAt time.Time) StartResult {
	res := StartResult{
		SessionToken:     tok,
		TotalTimeMinutes: jd.Config.TotalTimeMinutes,
		CurrentSection:   cur,
		StartedAt:        startedAt,
	}
	for _, sec := range domain.SectionOrder {
		if sc, ok := jd.Config.Sections[sec]; ok && sc.Enabled && sc.QuestionCount > 0 {
			res.Sections = append(res.Sections, sec)
		}
	}
	return res
}

func (s SessionService) openSection(ctx domain.Context, c domain.CandidateAssessment, sec domain.Section, now time.Time) error {
	if err := s.Candidates.SetCurrentSection(ctx, c.ID, sec); err != nil {
		return fmt.Errorf("op=session.openSection: %w", err)
	}
	prog := c.SectionProgress[sec]
	if !prog.Started {
		prog.Started = true
		prog.StartedAt = &now
		if err := s.Candidates.SetSectionProgress(ctx, c.ID, sec, prog); err != nil {
			return fmt.Errorf("op=session.openSection: %w", err)
		}
	}
	if _, err := s.Answers.EnsureSection(ctx, c.ID, sec, now); err != nil {
		return fmt.Errorf("op=session.openSection: %w", err)
	}
	return nil
}

// Authenticate resolves a session token and enforces the time budget. Expiry
// force-submits the session atomically and reports ErrSessionExpired; on
// success the heartbeat is refreshed and the remaining budget returned.
func (s SessionService) Authenticate(ctx domain.Context, tok string) (domain.CandidateAssessment, domain.JobDescription, time.Duration, error) {
	c, err := s.Candidates.GetBySessionToken(ctx, tok)
	if err != nil {
		if isNotFound(err) {
			return domain.CandidateAssessment{}, domain.JobDescription{}, 0, domain.ErrSessionInvalid
		}
		return domain.CandidateAssessment{}, domain.JobDescription{}, 0, fmt.Errorf("op=session.auth: %w", err)
	}
	if c.Status != domain.CandidateInProgress || c.StartedAt == nil {
		return domain.CandidateAssessment{}, domain.JobDescription{}, 0, domain.ErrSessionNotInProgress
	}
	jd, err := s.JDs.Get(ctx, c.JDID)
	if err != nil {
		return domain.CandidateAssessment{}, domain.JobDescription{}, 0, fmt.Errorf("op=session.auth: %w", err)
	}
	now := s.now()
	budget := time.Duration(jd.Config.TotalTimeMinutes) * time.Minute
	elapsed := now.Sub(*c.StartedAt)
	if elapsed > budget+SessionGrace {
		s.expire(ctx, c, jd, now, elapsed)
		return domain.CandidateAssessment{}, domain.JobDescription{}, 0, domain.ErrSessionExpired
	}
	if err := s.Candidates.Heartbeat(ctx, c.ID, now); err != nil {
		slog.Error("heartbeat write failed", slog.String("candidate_id", c.ID), slog.Any("error", err))
	}
	remaining := budget - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return c, jd, remaining, nil
}

// expire force-submits an over-budget session. Losing the FinishSession race
// to a concurrent toucher is fine: the session ends exactly once either way.
func (s SessionService) expire(ctx domain.Context, c domain.CandidateAssessment, jd domain.JobDescription, now time.Time, elapsed time.Duration) {
	s.Locks.Lock(c.ID)
	defer s.Locks.Unlock(c.ID)
	if err := s.Candidates.FinishSession(ctx, c.ID, now, int(elapsed.Seconds())); err != nil {
		if !isConflict(err) {
			slog.Error("forced submission failed", slog.String("candidate_id", c.ID), slog.Any("error", err))
		}
		return
	}
	observability.SessionsExpiredTotal.Inc()
	s.bumpCompletionStats(ctx, jd.ID)
	slog.Info("session expired and force-submitted",
		slog.String("candidate_id", c.ID), slog.Duration("elapsed", elapsed))
	s.evaluateDetached(c.ID)
}

func (s SessionService) bumpCompletionStats(ctx domain.Context, jdID string) {
	if err := s.JDs.IncrementStat(ctx, jdID, "inProgress", -1); err != nil {
		slog.Error("stat bump failed", slog.String("jd_id", jdID), slog.Any("error", err))
	}
	if err := s.JDs.IncrementStat(ctx, jdID, "completedAssessments", 1); err != nil {
		slog.Error("stat bump failed", slog.String("jd_id", jdID), slog.Any("error", err))
	}
}

// evaluateDetached runs evaluation off the request path; the submission is
// durable regardless of the outcome.
func (s SessionService) evaluateDetached(candidateID string) {
	if s.Eval == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := s.Eval.RunEvaluation(ctx, candidateID); err != nil {
			slog.Error("post-expiry evaluation failed",
				slog.String("candidate_id", candidateID), slog.Any("error", err))
		}
	}()
}

// CandidateObjectiveQuestion is the candidate-facing MCQ view: options are
// served as text only, with no correctness marker.
type CandidateObjectiveQuestion struct {
	QuestionID string   `json:"questionId"`
	Text       string   `json:"text"`
	Options    []string `json:"options"`
	Points     int      `json:"points"`
}

// CandidateSubjectiveQuestion strips the expected answer and rubric.
type CandidateSubjectiveQuestion struct {
	QuestionID string `json:"questionId"`
	Text       string `json:"text"`
	MaxWords   int    `json:"maxWords"`
	Points     int    `json:"points"`
}

// CandidateProgrammingQuestion serves the problem with sample test cases only.
type CandidateProgrammingQuestion struct {
	QuestionID  string            `json:"questionId"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	StarterCode string            `json:"starterCode,omitempty"`
	SampleTests []domain.TestCase `json:"sampleTests"`
	Points      int               `json:"points"`
}

// SectionQuestions is the candidate-facing payload of one section.
type SectionQuestions struct {
	Section          domain.Section                 `json:"section"`
	Objective        []CandidateObjectiveQuestion   `json:"objective,omitempty"`
	Subjective       []CandidateSubjectiveQuestion  `json:"subjective,omitempty"`
	Programming      []CandidateProgrammingQuestion `json:"programming,omitempty"`
	RemainingSeconds int                            `json:"remainingSeconds"`
}

// GetQuestions serves one section's questions with evaluator-only fields
// stripped, and marks the section as the candidate's current one.
func (s SessionService) GetQuestions(ctx domain.Context, tok string, sec domain.Section) (SectionQuestions, error) {
	c, jd, remaining, err := s.Authenticate(ctx, tok)
	if err != nil {
		return SectionQuestions{}, err
	}
	if err := s.requireEnabled(jd, sec); err != nil {
		return SectionQuestions{}, err
	}
	set, err := s.Sets.Get(ctx, c.AssignedSetID)
	if err != nil {
		return SectionQuestions{}, fmt.Errorf("op=session.getQuestions: %w", err)
	}
	if err := s.openSection(ctx, c, sec, s.now()); err != nil {
		return SectionQuestions{}, err
	}

	out := SectionQuestions{Section: sec, RemainingSeconds: int(remaining.Seconds())}
	switch sec {
	case domain.SectionObjective:
		for _, q := range set.Objective {
			opts := make([]string, len(q.Options))
			for i, o := range q.Options {
				opts[i] = o.Text
			}
			out.Objective = append(out.Objective, CandidateObjectiveQuestion{
				QuestionID: q.QuestionID, Text: q.Text, Options: opts, Points: q.Points,
			})
		}
	case domain.SectionSubjective:
		for _, q := range set.Subjective {
			out.Subjective = append(out.Subjective, CandidateSubjectiveQuestion{
				QuestionID: q.QuestionID, Text: q.Text, MaxWords: q.MaxWords, Points: q.Points,
			})
		}
	case domain.SectionProgramming:
		for _, q := range set.Programming {
			out.Programming = append(out.Programming, CandidateProgrammingQuestion{
				QuestionID:  q.QuestionID,
				Title:       q.Title,
				Description: q.Description,
				StarterCode: q.StarterCode,
				SampleTests: q.SampleTestCases(),
				Points:      q.Points,
			})
		}
	}
	return out, nil
}

func (s SessionService) requireEnabled(jd domain.JobDescription, sec domain.Section) error {
	if !domain.ValidSection(sec) {
		return fmt.Errorf("%w: unknown section %q", domain.ErrValidation, sec)
	}
	sc, ok := jd.Config.Sections[sec]
	if !ok || !sc.Enabled || sc.QuestionCount <= 0 {
		return fmt.Errorf("%w: section %s is not enabled", domain.ErrNotFound, sec)
	}
	return nil
}

// SaveAnswerInput is one answer save; the populated fields depend on section.
type SaveAnswerInput struct {
	Section             domain.Section `json:"section"`
	QuestionID          string         `json:"questionId"`
	SelectedOptionIndex *int           `json:"selectedOptionIndex,omitempty"`
	Text                string         `json:"text,omitempty"`
	Code                string         `json:"code,omitempty"`
	Language            string         `json:"language,omitempty"`
	LanguageID          int            `json:"languageId,omitempty"`
}

// SaveAnswer upserts one per-question answer under the candidate's lock.
// Saves of distinct questions never clobber each other; grading fields are
// untouched until section submit.
func (s SessionService) SaveAnswer(ctx domain.Context, tok string, in SaveAnswerInput) error {
	c, jd, _, err := s.Authenticate(ctx, tok)
	if err != nil {
		return err
	}
	if err := s.requireEnabled(jd, in.Section); err != nil {
		return err
	}
	if in.QuestionID == "" {
		return fmt.Errorf("%w: questionId required", domain.ErrValidation)
	}
	now := s.now()

	var saveErr error
	s.Locks.Do(c.ID, func() {
		if _, err := s.Answers.EnsureSection(ctx, c.ID, in.Section, now); err != nil {
			saveErr = fmt.Errorf("op=session.saveAnswer: %w", err)
			return
		}
		switch in.Section {
		case domain.SectionObjective:
			saveErr = s.Answers.UpsertObjective(ctx, c.ID, domain.ObjectiveAnswer{
				QuestionID:          in.QuestionID,
				SelectedOptionIndex: in.SelectedOptionIndex,
				AnsweredAt:          now,
			})
		case domain.SectionSubjective:
			saveErr = s.Answers.UpsertSubjective(ctx, c.ID, domain.SubjectiveAnswer{
				QuestionID: in.QuestionID,
				Text:       in.Text,
				WordCount:  textx.WordCount(in.Text),
				AnsweredAt: now,
			})
		case domain.SectionProgramming:
			saveErr = s.saveProgramming(ctx, c.ID, in, now)
		}
	})
	if saveErr != nil {
		return saveErr
	}

	count, err := s.Answers.CountEntries(ctx, c.ID, in.Section)
	if err != nil {
		slog.Error("entry count failed", slog.String("candidate_id", c.ID), slog.Any("error", err))
		return nil
	}
	prog := c.SectionProgress[in.Section]
	prog.QuestionsAnswered = count
	if err := s.Candidates.SetSectionProgress(ctx, c.ID, in.Section, prog); err != nil {
		slog.Error("progress write failed", slog.String("candidate_id", c.ID), slog.Any("error", err))
	}
	return nil
}

// saveProgramming preserves run history and last results across code edits.
func (s SessionService) saveProgramming(ctx domain.Context, caID string, in SaveAnswerInput, now time.Time) error {
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
	return s.Answers.UpsertProgramming(ctx, caID, entry)
}

// SubmitSectionResult reports one section's grading outcome.
type SubmitSectionResult struct {
	Section     domain.Section `json:"section"`
	Score       float64        `json:"score"`
	MaxScore    float64        `json:"maxScore"`
	NextSection domain.Section `json:"nextSection,omitempty"`
}

// SubmitSection closes a section: objective answers are graded
// deterministically against the assigned set, programming scores roll up from
// the last code submissions, subjective scoring waits for evaluation. A
// second submit of the same section fails with a conflict.
func (s SessionService) SubmitSection(ctx domain.Context, tok string, sec domain.Section) (SubmitSectionResult, error) {
	c, jd, _, err := s.Authenticate(ctx, tok)
	if err != nil {
		return SubmitSectionResult{}, err
	}
	if err := s.requireEnabled(jd, sec); err != nil {
		return SubmitSectionResult{}, err
	}
	set, err := s.Sets.Get(ctx, c.AssignedSetID)
	if err != nil {
		return SubmitSectionResult{}, fmt.Errorf("op=session.submitSection: %w", err)
	}
	now := s.now()

	var (
		res       SubmitSectionResult
		submitErr error
	)
	s.Locks.Do(c.ID, func() {
		ans, err := s.Answers.EnsureSection(ctx, c.ID, sec, now)
		if err != nil {
			submitErr = fmt.Errorf("op=session.submitSection: %w", err)
			return
		}
		if ans.IsSubmitted {
			submitErr = fmt.Errorf("%w: section %s already submitted", domain.ErrConflict, sec)
			return
		}

		var score, maxScore float64
		switch sec {
		case domain.SectionObjective:
			var graded []domain.ObjectiveAnswer
			graded, score, maxScore = domain.GradeObjectiveSection(set.Objective, ans.Objective)
			for _, g := range graded {
				if err := s.Answers.UpsertObjective(ctx, c.ID, g); err != nil {
					submitErr = fmt.Errorf("op=session.submitSection: grade: %w", err)
					return
				}
			}
		case domain.SectionSubjective:
			for _, q := range set.Subjective {
				maxScore += float64(q.Points)
			}
		case domain.SectionProgramming:
			score, maxScore = programmingSectionScore(set.Programming, ans.Programming)
		}

		timeSpent := 0
		if ans.SectionStartedAt != nil {
			timeSpent = int(now.Sub(*ans.SectionStartedAt).Seconds())
		}
		if err := s.Answers.SubmitSection(ctx, c.ID, sec, now, timeSpent, score, maxScore); err != nil {
			submitErr = fmt.Errorf("op=session.submitSection: %w", err)
			return
		}
		res = SubmitSectionResult{Section: sec, Score: score, MaxScore: maxScore}
	})
	if submitErr != nil {
		return SubmitSectionResult{}, submitErr
	}

	prog := c.SectionProgress[sec]
	prog.Completed = true
	prog.CompletedAt = &now
	if err := s.Candidates.SetSectionProgress(ctx, c.ID, sec, prog); err != nil {
		slog.Error("progress write failed", slog.String("candidate_id", c.ID), slog.Any("error", err))
	}

	if next := domain.NextEnabledSection(jd.Config, sec); next != "" {
		res.NextSection = next
		if err := s.openSection(ctx, c, next, now); err != nil {
			slog.Error("next section open failed", slog.String("candidate_id", c.ID), slog.Any("error", err))
		}
	}
	return res, nil
}

// programmingSectionScore rolls per-question correctness into section points.
func programmingSectionScore(questions []domain.ProgrammingQuestion, answers []domain.ProgrammingAnswer) (score, maxScore float64) {
	byID := make(map[string]domain.ProgrammingQuestion, len(questions))
	for _, q := range questions {
		byID[q.QuestionID] = q
		maxScore += float64(q.Points)
	}
	for _, a := range answers {
		if q, ok := byID[a.QuestionID]; ok {
			score += float64(q.Points) * a.CorrectnessScore / 100
		}
	}
	return score, maxScore
}

// SubmitAll finishes the session and hands off to evaluation. The submission
// is confirmed even when evaluation fails; a repeated submit is answered
// idempotently.
func (s SessionService) SubmitAll(ctx domain.Context, tok string) (domain.CandidateAssessment, error) {
	c, jd, _, err := s.Authenticate(ctx, tok)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotInProgress) {
			if done, ok := s.finishedByToken(ctx, tok); ok {
				return done, nil
			}
		}
		return domain.CandidateAssessment{}, err
	}
	now := s.now()
	elapsed := now.Sub(*c.StartedAt)

	var finishErr error
	s.Locks.Do(c.ID, func() {
		finishErr = s.Candidates.FinishSession(ctx, c.ID, now, int(elapsed.Seconds()))
	})
	if finishErr != nil {
		if isConflict(finishErr) {
			return s.Candidates.Get(ctx, c.ID)
		}
		return domain.CandidateAssessment{}, fmt.Errorf("op=session.submitAll: %w", finishErr)
	}
	s.bumpCompletionStats(ctx, jd.ID)
	slog.Info("assessment submitted", slog.String("candidate_id", c.ID),
		slog.Duration("elapsed", elapsed))

	if s.Eval != nil {
		if _, err := s.Eval.RunEvaluation(ctx, c.ID); err != nil {
			// Submission is durable; the report may be delayed.
			slog.Error("post-submit evaluation failed",
				slog.String("candidate_id", c.ID), slog.Any("error", err))
		}
	}
	return s.Candidates.Get(ctx, c.ID)
}

// finishedByToken resolves a token whose session has already ended. A repeat
// submit-all after submission answers with the stored result; evaluation is
// never re-run.
func (s SessionService) finishedByToken(ctx domain.Context, tok string) (domain.CandidateAssessment, bool) {
	c, err := s.Candidates.GetBySessionToken(ctx, tok)
	if err != nil {
		return domain.CandidateAssessment{}, false
	}
	switch c.Status {
	case domain.CandidateSubmitted, domain.CandidateEvaluating, domain.CandidateEvaluated, domain.CandidateDecided:
		return c, true
	}
	return domain.CandidateAssessment{}, false
}

// Heartbeat refreshes liveness and reports the remaining budget in seconds.
func (s SessionService) Heartbeat(ctx domain.Context, tok string) (int, error) {
	_, _, remaining, err := s.Authenticate(ctx, tok)
	if err != nil {
		return 0, err
	}
	return int(remaining.Seconds()), nil
}
