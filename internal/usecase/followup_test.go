package usecase

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
)

func detectorJSON(need bool, confidence float64) string {
	return fmt.Sprintf(`{"need_follow_up":%t,"confidence":%g,"reason":"answer skipped failure modes","summarized_answer":"summary"}`, need, confidence)
}

// followupAIHandler answers detector and generator prompts.
func followupAIHandler(confidence float64) func(domain.AICallRequest) (string, error) {
	return func(req domain.AICallRequest) (string, error) {
		if strings.Contains(req.System, "follow-up detector") {
			return detectorJSON(true, confidence), nil
		}
		return `{"follow_up_question":"What happens under contention?","expected_answer":"lock queueing"}`, nil
	}
}

func startedInterview(t *testing.T, svc FollowUpService, baseCount, minQ, maxQ int) domain.InterviewMetadata {
	t.Helper()
	m, err := svc.StartInterview(context.Background(), "ca-1", baseCount, minQ, maxQ)
	require.NoError(t, err)
	return m
}

func TestStartInterviewIsIdempotent(t *testing.T) {
	repo := newFakeInterviewRepo()
	svc := NewFollowUpService(repo, &aiSpy{})

	first := startedInterview(t, svc, 4, 4, 12)
	assert.Equal(t, domain.InterviewActive, first.Status)
	assert.Equal(t, 4, first.CurrentTotalQuestions)

	second, err := svc.StartInterview(context.Background(), "ca-1", 4, 4, 12)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, err = svc.StartInterview(context.Background(), "ca-2", 0, 0, 5)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.StartInterview(context.Background(), "ca-2", 4, 4, 3)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestProcessAnswerGeneratesFollowUp(t *testing.T) {
	repo := newFakeInterviewRepo()
	ai := &aiSpy{handler: followupAIHandler(0.9)}
	svc := NewFollowUpService(repo, ai)
	m := startedInterview(t, svc, 4, 4, 12)
	ctx := context.Background()

	f, err := svc.ProcessAnswer(ctx, m.ID, 1, "How do mutexes work?", "They lock things.")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, domain.FollowUpSortKey(1, 1), f.SortKey)
	assert.Equal(t, "What happens under contention?", f.Question)
	assert.Equal(t, 0.9, f.Confidence)

	got, err := repo.GetMetadata(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.FollowupCount)
	assert.Equal(t, 5, got.CurrentTotalQuestions)
	assert.Equal(t, 1, got.ApprovedCount)
	assert.Equal(t, 1, got.DetectorCallCount)
	assert.InDelta(t, 0.9, got.AvgDetectorConfidence, 0.001)
}

func TestProcessAnswerRejectsAtTarget(t *testing.T) {
	// Base 3, max 6: target follow-ups = min(ceil(4.5), 3) = 3. With all three
	// granted, even a 0.9-confidence proposal is rejected.
	repo := newFakeInterviewRepo()
	ai := &aiSpy{handler: followupAIHandler(0.9)}
	svc := NewFollowUpService(repo, ai)
	m := startedInterview(t, svc, 3, 3, 6)
	ctx := context.Background()

	repo.mu.Lock()
	meta := repo.meta[m.ID]
	meta.FollowupCount = 3
	meta.CurrentTotalQuestions = 6
	repo.meta[m.ID] = meta
	repo.mu.Unlock()

	f, err := svc.ProcessAnswer(ctx, m.ID, 2, "q", "a")
	require.NoError(t, err)
	assert.Nil(t, f)

	got, err := repo.GetMetadata(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RejectedCount)
	assert.Equal(t, 3, got.FollowupCount)
}

func TestAdmitFollowUpHeuristics(t *testing.T) {
	det := func(need bool, conf float64) domain.DetectorResult {
		return domain.DetectorResult{NeedFollowUp: need, Confidence: conf}
	}
	meta := func(base, max, followups, total int) domain.InterviewMetadata {
		return domain.InterviewMetadata{
			BaseQuestionCount:     base,
			MaxQuestions:          max,
			FollowupCount:         followups,
			CurrentTotalQuestions: total,
		}
	}

	cases := []struct {
		name      string
		m         domain.InterviewMetadata
		det       domain.DetectorResult
		baseIndex int
		perBase   int
		approved  bool
		reason    string
	}{
		{
			name: "admitted", m: meta(4, 12, 0, 4), det: det(true, 0.7),
			baseIndex: 3, approved: true,
		},
		{
			name: "detector declined", m: meta(4, 12, 0, 4), det: det(false, 0.99),
			baseIndex: 0, reason: "detector declined follow-up",
		},
		{
			name: "below base threshold", m: meta(4, 12, 0, 4), det: det(true, 0.5),
			baseIndex: 3, reason: "confidence 0.50 below 0.65 threshold",
		},
		{
			name: "raised bar for the admission reaching target", m: meta(4, 8, 3, 7), det: det(true, 0.7),
			baseIndex: 3, reason: "confidence 0.70 below 0.75 threshold",
		},
		{
			name: "target reached", m: meta(3, 6, 3, 6), det: det(true, 0.9),
			baseIndex: 2, reason: "target follow-ups reached, limited slots remaining",
		},
		{
			name: "slots reserved for later bases", m: meta(4, 8, 3, 7), det: det(true, 0.9),
			baseIndex: 0, reason: "remaining slots reserved for later base questions",
		},
		{
			name: "per-question cap", m: meta(3, 12, 2, 5), det: det(true, 0.9),
			baseIndex: 2, perBase: 2, reason: "per-question cap of 2 follow-ups reached",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			approved, reason := admitFollowUp(tc.m, tc.det, tc.baseIndex, tc.perBase)
			assert.Equal(t, tc.approved, approved)
			assert.Equal(t, tc.reason, reason)
		})
	}
}

func TestProcessAnswerDetectorFailureDegrades(t *testing.T) {
	repo := newFakeInterviewRepo()
	ai := &aiSpy{handler: func(domain.AICallRequest) (string, error) {
		return "", domain.ErrLLMUnavailable
	}}
	svc := NewFollowUpService(repo, ai)
	m := startedInterview(t, svc, 4, 4, 12)

	f, err := svc.ProcessAnswer(context.Background(), m.ID, 0, "q", "a")
	assert.NoError(t, err)
	assert.Nil(t, f)

	got, err := repo.GetMetadata(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.DetectorCallCount)
}

func TestProcessAnswerRegeneratesDuplicates(t *testing.T) {
	repo := newFakeInterviewRepo()
	ai := &aiSpy{handler: func(req domain.AICallRequest) (string, error) {
		switch {
		case strings.Contains(req.System, "follow-up detector"):
			return detectorJSON(true, 0.9), nil
		case strings.Contains(req.Prompt, "clearly different"):
			return `{"follow_up_question":"How does the scheduler preempt goroutines?","expected_answer":"async preemption"}`, nil
		default:
			return `{"follow_up_question":"What happens   under CONTENTION?","expected_answer":"lock queueing"}`, nil
		}
	}}
	svc := NewFollowUpService(repo, ai)
	m := startedInterview(t, svc, 4, 4, 12)
	ctx := context.Background()

	// Pre-existing question that the first generation duplicates modulo
	// whitespace and case.
	_, err := repo.InsertFollowUp(ctx, domain.FollowUpQuestion{
		InterviewID: m.ID,
		BaseIndex:   0,
		SortKey:     domain.FollowUpSortKey(0, 1),
		Question:    "What happens under contention?",
	})
	require.NoError(t, err)

	f, err := svc.ProcessAnswer(ctx, m.ID, 1, "q", "a")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "How does the scheduler preempt goroutines?", f.Question)
}

func TestProcessAnswerGuards(t *testing.T) {
	repo := newFakeInterviewRepo()
	svc := NewFollowUpService(repo, &aiSpy{handler: followupAIHandler(0.9)})
	m := startedInterview(t, svc, 4, 4, 12)
	ctx := context.Background()

	_, err := svc.ProcessAnswer(ctx, m.ID, 4, "q", "a")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.ProcessAnswer(ctx, m.ID, -1, "q", "a")
	assert.ErrorIs(t, err, domain.ErrValidation)

	repo.mu.Lock()
	meta := repo.meta[m.ID]
	meta.Status = domain.InterviewCompleted
	repo.meta[m.ID] = meta
	repo.mu.Unlock()

	f, err := svc.ProcessAnswer(ctx, m.ID, 0, "q", "a")
	assert.NoError(t, err)
	assert.Nil(t, f)
}

func TestInterviewListsFollowUpsInSortOrder(t *testing.T) {
	repo := newFakeInterviewRepo()
	svc := NewFollowUpService(repo, &aiSpy{handler: followupAIHandler(0.9)})
	m := startedInterview(t, svc, 4, 4, 12)
	ctx := context.Background()

	for _, base := range []int{2, 0} {
		_, err := repo.InsertFollowUp(ctx, domain.FollowUpQuestion{
			InterviewID: m.ID,
			BaseIndex:   base,
			SortKey:     domain.FollowUpSortKey(base, 1),
			Question:    fmt.Sprintf("follow-up for base %d", base),
		})
		require.NoError(t, err)
	}

	_, fus, err := svc.Interview(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, fus, 2)
	assert.Equal(t, domain.FollowUpSortKey(0, 1), fus[0].SortKey)
	assert.Equal(t, domain.FollowUpSortKey(2, 1), fus[1].SortKey)
}
