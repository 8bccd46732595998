package usecase

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
	"github.com/fairyhunter13/ai-assessment-engine/internal/service/locker"
)

type evalRecorder struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (e *evalRecorder) RunEvaluation(_ domain.Context, candidateID string) (domain.Evaluation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, candidateID)
	if e.err != nil {
		return domain.Evaluation{}, e.err
	}
	return domain.Evaluation{CandidateAssessmentID: candidateID}, nil
}

func (e *evalRecorder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

type sessionFixture struct {
	jds     *fakeJDRepo
	cands   *fakeCandidateRepo
	sets    *fakeSetRepo
	answers *fakeAnswerRepo
	eval    *evalRecorder
	svc     SessionService
	jdID    string
	candID  string
	setID   string
}

// newSessionFixture seeds a ready JD with one active set and one fully
// onboarded ready candidate. now drives the injectable clock.
func newSessionFixture(t *testing.T, totalMinutes int, now func() time.Time) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		jds:     newFakeJDRepo(),
		cands:   newFakeCandidateRepo(),
		sets:    newFakeSetRepo(),
		answers: newFakeAnswerRepo(),
		eval:    &evalRecorder{},
	}

	cfg := allSectionsConfig()
	cfg.TotalTimeMinutes = totalMinutes
	cfg.StartTime, cfg.EndTime = openWindow(now())
	jdID, err := f.jds.Create(context.Background(), domain.JobDescription{
		CompanyID: "acme",
		RawText:   "backend engineer role with Go and PostgreSQL, at least fifty characters of text",
		Status:    domain.JDReady,
		Config:    cfg,
	})
	require.NoError(t, err)
	f.jdID = jdID

	setID, err := f.sets.Create(context.Background(), sampleSet(jdID))
	require.NoError(t, err)
	f.setID = setID

	candID, err := f.cands.Create(context.Background(), domain.CandidateAssessment{
		JDID:   jdID,
		Email:  "dev@example.com",
		Name:   "Dev",
		Status: domain.CandidateReady,
		Onboarding: domain.OnboardingState{
			EmailVerified:        true,
			ProfilePhotoCaptured: true,
			ConsentAccepted:      true,
		},
		Resume: &domain.ResumeBlock{MatchScore: 80, PassedThreshold: true},
	})
	require.NoError(t, err)
	f.candID = candID

	f.svc = NewSessionService(f.cands, f.jds, f.sets, f.answers, f.eval, locker.New(16))
	f.svc.Now = now
	return f
}

func TestSessionStartAssignsSetAndOpensFirstSection(t *testing.T) {
	f := newSessionFixture(t, 30, time.Now)
	ctx := context.Background()

	res, err := f.svc.Start(ctx, f.candID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.SessionToken, "sess_"))
	assert.Equal(t, domain.SectionObjective, res.CurrentSection)
	assert.Equal(t, []domain.Section{domain.SectionObjective, domain.SectionSubjective, domain.SectionProgramming}, res.Sections)
	assert.Equal(t, 30, res.TotalTimeMinutes)

	c, err := f.cands.Get(ctx, f.candID)
	require.NoError(t, err)
	assert.Equal(t, domain.CandidateInProgress, c.Status)
	assert.Equal(t, f.setID, c.AssignedSetID)
	assert.True(t, c.SectionProgress[domain.SectionObjective].Started)

	_, err = f.answers.Get(ctx, f.candID, domain.SectionObjective)
	assert.NoError(t, err)

	jd, err := f.jds.Get(ctx, f.jdID)
	require.NoError(t, err)
	assert.Equal(t, 1, jd.Stats.InProgress)
}

func TestSessionStartIsIdempotent(t *testing.T) {
	f := newSessionFixture(t, 30, time.Now)
	ctx := context.Background()

	first, err := f.svc.Start(ctx, f.candID)
	require.NoError(t, err)
	second, err := f.svc.Start(ctx, f.candID)
	require.NoError(t, err)
	assert.Equal(t, first.SessionToken, second.SessionToken)

	jd, err := f.jds.Get(ctx, f.jdID)
	require.NoError(t, err)
	assert.Equal(t, 1, jd.Stats.InProgress)
}

func TestSessionStartGuards(t *testing.T) {
	t.Run("not ready", func(t *testing.T) {
		f := newSessionFixture(t, 30, time.Now)
		require.NoError(t, f.cands.update(f.candID, func(c *domain.CandidateAssessment) {
			c.Status = domain.CandidateOnboarding
		}))
		_, err := f.svc.Start(context.Background(), f.candID)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("onboarding incomplete", func(t *testing.T) {
		f := newSessionFixture(t, 30, time.Now)
		require.NoError(t, f.cands.update(f.candID, func(c *domain.CandidateAssessment) {
			c.Onboarding.ConsentAccepted = false
		}))
		_, err := f.svc.Start(context.Background(), f.candID)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("window closed", func(t *testing.T) {
		f := newSessionFixture(t, 30, time.Now)
		f.jds.mu.Lock()
		jd := f.jds.jds[f.jdID]
		past := time.Now().Add(-2 * time.Hour)
		jd.Config.EndTime = &past
		f.jds.jds[f.jdID] = jd
		f.jds.mu.Unlock()
		_, err := f.svc.Start(context.Background(), f.candID)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})
}

func TestSessionSurvivesWithinGrace(t *testing.T) {
	cur := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	f := newSessionFixture(t, 1, func() time.Time { return cur })
	ctx := context.Background()

	res, err := f.svc.Start(ctx, f.candID)
	require.NoError(t, err)

	// 119s elapsed on a 60s budget: inside the 60s grace, still alive.
	cur = cur.Add(119 * time.Second)
	remaining, err := f.svc.Heartbeat(ctx, res.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	c, err := f.cands.Get(ctx, f.candID)
	require.NoError(t, err)
	assert.Equal(t, domain.CandidateInProgress, c.Status)
}

func TestSessionExpiresPastGrace(t *testing.T) {
	cur := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	f := newSessionFixture(t, 1, func() time.Time { return cur })
	ctx := context.Background()

	res, err := f.svc.Start(ctx, f.candID)
	require.NoError(t, err)

	cur = cur.Add(121 * time.Second)
	_, err = f.svc.Heartbeat(ctx, res.SessionToken)
	assert.ErrorIs(t, err, domain.ErrSessionExpired)

	c, err := f.cands.Get(ctx, f.candID)
	require.NoError(t, err)
	assert.Equal(t, domain.CandidateSubmitted, c.Status)
	require.NotNil(t, c.SubmittedAt)
	assert.Equal(t, 121, c.TimeSpentSeconds)

	jd, err := f.jds.Get(ctx, f.jdID)
	require.NoError(t, err)
	assert.Equal(t, 0, jd.Stats.InProgress)
	assert.Equal(t, 1, jd.Stats.CompletedAssessments)

	// Evaluation runs detached from the expiring request.
	assert.Eventually(t, func() bool { return f.eval.callCount() == 1 }, time.Second, 10*time.Millisecond)

	// Every later touch of the dead token fails the same way.
	_, err = f.svc.Heartbeat(ctx, res.SessionToken)
	assert.ErrorIs(t, err, domain.ErrSessionNotInProgress)
}

func TestGetQuestionsStripsEvaluatorFields(t *testing.T) {
	f := newSessionFixture(t, 30, time.Now)
	ctx := context.Background()
	res, err := f.svc.Start(ctx, f.candID)
	require.NoError(t, err)

	obj, err := f.svc.GetQuestions(ctx, res.SessionToken, domain.SectionObjective)
	require.NoError(t, err)
	require.Len(t, obj.Objective, 3)
	assert.Equal(t, []string{"a", "b", "c", "d"}, obj.Objective[0].Options)
	assert.Positive(t, obj.RemainingSeconds)

	prog, err := f.svc.GetQuestions(ctx, res.SessionToken, domain.SectionProgramming)
	require.NoError(t, err)
	require.Len(t, prog.Programming, 1)
	require.Len(t, prog.Programming[0].SampleTests, 1)
	assert.False(t, prog.Programming[0].SampleTests[0].IsHidden)

	_, err = f.svc.GetQuestions(ctx, res.SessionToken, domain.Section("essay"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.GetQuestions(ctx, "sess_bogus", domain.SectionObjective)
	assert.ErrorIs(t, err, domain.ErrSessionInvalid)
}

func TestGetQuestionsDisabledSection(t *testing.T) {
	f := newSessionFixture(t, 30, time.Now)
	ctx := context.Background()
	res, err := f.svc.Start(ctx, f.candID)
	require.NoError(t, err)

	f.jds.mu.Lock()
	jd := f.jds.jds[f.jdID]
	sc := jd.Config.Sections[domain.SectionSubjective]
	sc.Enabled = false
	jd.Config.Sections[domain.SectionSubjective] = sc
	f.jds.jds[f.jdID] = jd
	f.jds.mu.Unlock()

	_, err = f.svc.GetQuestions(ctx, res.SessionToken, domain.SectionSubjective)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSubmitSectionGradesObjective(t *testing.T) {
	f := newSessionFixture(t, 30, time.Now)
	ctx := context.Background()
	res, err := f.svc.Start(ctx, f.candID)
	require.NoError(t, err)
	tok := res.SessionToken

	// Selections 0, 0, 2 against correct options 0, 1, 2.
	for i, sel := range []int{0, 0, 2} {
		sel := sel
		require.NoError(t, f.svc.SaveAnswer(ctx, tok, SaveAnswerInput{
			Section:             domain.SectionObjective,
			QuestionID:          []string{"objective_0", "objective_1", "objective_2"}[i],
			SelectedOptionIndex: &sel,
		}))
	}

	out, err := f.svc.SubmitSection(ctx, tok, domain.SectionObjective)
	require.NoError(t, err)
	assert.Equal(t, 4.0, out.Score)
	assert.Equal(t, 6.0, out.MaxScore)
	assert.Equal(t, domain.SectionSubjective, out.NextSection)

	doc, err := f.answers.Get(ctx, f.candID, domain.SectionObjective)
	require.NoError(t, err)
	assert.True(t, doc.IsSubmitted)
	wantCorrect := map[string]bool{"objective_0": true, "objective_1": false, "objective_2": true}
	for _, a := range doc.Objective {
		require.NotNil(t, a.IsCorrect, a.QuestionID)
		assert.Equal(t, wantCorrect[a.QuestionID], *a.IsCorrect, a.QuestionID)
	}

	c, err := f.cands.Get(ctx, f.candID)
	require.NoError(t, err)
	assert.True(t, c.SectionProgress[domain.SectionObjective].Completed)
	assert.Equal(t, 3, c.SectionProgress[domain.SectionObjective].QuestionsAnswered)

	_, err = f.svc.SubmitSection(ctx, tok, domain.SectionObjective)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestSaveAnswerNeverGrades(t *testing.T) {
	f := newSessionFixture(t, 30, time.Now)
	ctx := context.Background()
	res, err := f.svc.Start(ctx, f.candID)
	require.NoError(t, err)

	sel := 0
	require.NoError(t, f.svc.SaveAnswer(ctx, res.SessionToken, SaveAnswerInput{
		Section:             domain.SectionObjective,
		QuestionID:          "objective_0",
		SelectedOptionIndex: &sel,
	}))
	doc, err := f.answers.Get(ctx, f.candID, domain.SectionObjective)
	require.NoError(t, err)
	require.Len(t, doc.Objective, 1)
	assert.Nil(t, doc.Objective[0].IsCorrect)

	require.NoError(t, f.svc.SaveAnswer(ctx, res.SessionToken, SaveAnswerInput{
		Section:    domain.SectionSubjective,
		QuestionID: "subjective_0",
		Text:       "an index speeds up lookups at write cost",
	}))
	sub, err := f.answers.Get(ctx, f.candID, domain.SectionSubjective)
	require.NoError(t, err)
	require.Len(t, sub.Subjective, 1)
	assert.Equal(t, 8, sub.Subjective[0].WordCount)

	err = f.svc.SaveAnswer(ctx, res.SessionToken, SaveAnswerInput{Section: domain.SectionObjective})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSubmitAllRunsEvaluation(t *testing.T) {
	f := newSessionFixture(t, 30, time.Now)
	ctx := context.Background()
	res, err := f.svc.Start(ctx, f.candID)
	require.NoError(t, err)

	c, err := f.svc.SubmitAll(ctx, res.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, domain.CandidateSubmitted, c.Status)
	assert.Equal(t, []string{f.candID}, f.eval.calls)

	jd, err := f.jds.Get(ctx, f.jdID)
	require.NoError(t, err)
	assert.Equal(t, 1, jd.Stats.CompletedAssessments)
}

func TestSubmitAllIsIdempotent(t *testing.T) {
	f := newSessionFixture(t, 30, time.Now)
	ctx := context.Background()
	res, err := f.svc.Start(ctx, f.candID)
	require.NoError(t, err)

	first, err := f.svc.SubmitAll(ctx, res.SessionToken)
	require.NoError(t, err)
	second, err := f.svc.SubmitAll(ctx, res.SessionToken)
	require.NoError(t, err)

	assert.Equal(t, domain.CandidateSubmitted, second.Status)
	assert.Equal(t, first.SubmittedAt, second.SubmittedAt)
	assert.Equal(t, 1, f.eval.callCount(), "evaluation must not re-run")

	jd, err := f.jds.Get(ctx, f.jdID)
	require.NoError(t, err)
	assert.Equal(t, 1, jd.Stats.CompletedAssessments)

	// Still idempotent once the candidate has moved past submitted.
	require.NoError(t, f.cands.UpdateStatus(ctx, f.candID, domain.CandidateSubmitted, domain.CandidateEvaluated))
	third, err := f.svc.SubmitAll(ctx, res.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, domain.CandidateEvaluated, third.Status)
	assert.Equal(t, 1, f.eval.callCount())
}

func TestSubmitAllSurvivesEvaluationFailure(t *testing.T) {
	f := newSessionFixture(t, 30, time.Now)
	f.eval.err = assert.AnError
	ctx := context.Background()
	res, err := f.svc.Start(ctx, f.candID)
	require.NoError(t, err)

	c, err := f.svc.SubmitAll(ctx, res.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, domain.CandidateSubmitted, c.Status)
}
