package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
)

func newProctoringFixture(t *testing.T) (*fakeCandidateRepo, *fakeProctoringRepo, ProctoringService, string) {
	t.Helper()
	cands := newFakeCandidateRepo()
	candID, err := cands.Create(context.Background(), domain.CandidateAssessment{
		JDID:   "jd-1",
		Email:  "dev@example.com",
		Status: domain.CandidateInProgress,
	})
	require.NoError(t, err)
	events := &fakeProctoringRepo{}
	svc := NewProctoringService(cands, events)
	svc.Now = func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }
	return cands, events, svc, candID
}

func TestLogEventClassifiesSeverity(t *testing.T) {
	cands, _, svc, candID := newProctoringFixture(t)
	ctx := context.Background()

	ev, err := svc.LogEvent(ctx, candID, LogEventInput{Type: domain.EventTabSwitch, Section: domain.SectionObjective})
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityMedium, ev.Severity)
	assert.Equal(t, domain.SectionObjective, ev.Section)
	assert.False(t, ev.OccurredAt.IsZero())

	c, err := cands.Get(ctx, candID)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Proctoring.TotalEvents)
	assert.Equal(t, 1, c.Proctoring.TabSwitches)
	assert.Equal(t, 0, c.Proctoring.HighSeverityEvents)
	assert.NotEqual(t, domain.IntegrityFlaggedUnderReview, c.IntegrityStatus)
}

func TestLogEventHighSeverityFlagsIntegrity(t *testing.T) {
	cands, _, svc, candID := newProctoringFixture(t)
	ctx := context.Background()

	ev, err := svc.LogEvent(ctx, candID, LogEventInput{
		Type:     domain.EventCopyPaste,
		Evidence: map[string]any{"length": 412},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityHigh, ev.Severity)

	c, err := cands.Get(ctx, candID)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Proctoring.HighSeverityEvents)
	assert.Equal(t, domain.IntegrityFlaggedUnderReview, c.IntegrityStatus)
	// Lifecycle status is untouched by proctoring.
	assert.Equal(t, domain.CandidateInProgress, c.Status)
}

func TestLogEventCountsFaceIssues(t *testing.T) {
	cands, _, svc, candID := newProctoringFixture(t)
	ctx := context.Background()

	for _, typ := range []domain.ProctoringEventType{domain.EventNoFace, domain.EventFaceNotCentered} {
		_, err := svc.LogEvent(ctx, candID, LogEventInput{Type: typ})
		require.NoError(t, err)
	}

	c, err := cands.Get(ctx, candID)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Proctoring.FaceDetectionIssues)
	assert.Equal(t, 0, c.Proctoring.TabSwitches)
}

func TestLogEventRejectsUnknownType(t *testing.T) {
	_, events, svc, candID := newProctoringFixture(t)

	_, err := svc.LogEvent(context.Background(), candID, LogEventInput{Type: "mind_reading"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, events.events)

	_, err = svc.LogEvent(context.Background(), "nobody", LogEventInput{Type: domain.EventTabSwitch})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReviewClearsIntegrityOnDismissal(t *testing.T) {
	cands, _, svc, candID := newProctoringFixture(t)
	ctx := context.Background()

	ev, err := svc.LogEvent(ctx, candID, LogEventInput{Type: domain.EventCopyPaste})
	require.NoError(t, err)

	require.NoError(t, svc.Review(ctx, ev.ID, candID, "admin@acme.test", "pasted their own scratchpad", true))

	listed, err := svc.List(ctx, candID, 10, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.True(t, listed[0].AdminReviewed)
	assert.Equal(t, "admin@acme.test", listed[0].ReviewedBy)
	require.NotNil(t, listed[0].ReviewedAt)

	c, err := cands.Get(ctx, candID)
	require.NoError(t, err)
	assert.Equal(t, domain.IntegrityClear, c.IntegrityStatus)

	assert.ErrorIs(t, svc.Review(ctx, "ev-404", candID, "admin@acme.test", "", false), domain.ErrNotFound)
}
