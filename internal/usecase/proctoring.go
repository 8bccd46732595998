package usecase

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
)

// ProctoringService ingests browser proctoring events: classification,
// counter bumps, and the one-way integrity flag. It never transitions the
// candidate's lifecycle status.
type ProctoringService struct {
	Candidates domain.CandidateRepository
	Events     domain.ProctoringRepository
	Now        func() time.Time
}

// NewProctoringService constructs a ProctoringService.
func NewProctoringService(cands domain.CandidateRepository, events domain.ProctoringRepository) ProctoringService {
	return ProctoringService{Candidates: cands, Events: events, Now: time.Now}
}

func (s ProctoringService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// LogEventInput is one incoming proctoring event.
type LogEventInput struct {
	Type          domain.ProctoringEventType `json:"type"`
	Section       domain.Section             `json:"section,omitempty"`
	QuestionID    string                     `json:"questionId,omitempty"`
	ScreenshotRef string                     `json:"screenshotRef,omitempty"`
	Evidence      map[string]any             `json:"evidence,omitempty"`
}

// LogEvent validates and persists one event, bumps the typed counters
// atomically, and flags integrity on the first high-severity event.
func (s ProctoringService) LogEvent(ctx domain.Context, candidateID string, in LogEventInput) (domain.ProctoringEvent, error) {
	if !domain.ValidEventType(in.Type) {
		return domain.ProctoringEvent{}, fmt.Errorf("%w: unknown event type %q", domain.ErrValidation, in.Type)
	}
	c, err := s.Candidates.Get(ctx, candidateID)
	if err != nil {
		return domain.ProctoringEvent{}, err
	}

	severity := domain.SeverityForEvent(in.Type)
	event := domain.ProctoringEvent{
		CandidateAssessmentID: c.ID,
		Type:                  in.Type,
		Severity:              severity,
		OccurredAt:            s.now(),
		ScreenshotRef:         in.ScreenshotRef,
		Evidence:              in.Evidence,
		Section:               in.Section,
		QuestionID:            in.QuestionID,
	}
	id, err := s.Events.Append(ctx, event)
	if err != nil {
		return domain.ProctoringEvent{}, fmt.Errorf("op=proctoring.logEvent: %w", err)
	}
	event.ID = id

	tabSwitches, faceIssues, high := 0, 0, 0
	if in.Type == domain.EventTabSwitch {
		tabSwitches = 1
	}
	switch in.Type {
	case domain.EventNoFace, domain.EventMultipleFaces, domain.EventFaceNotCentered:
		faceIssues = 1
	}
	if severity == domain.SeverityHigh {
		high = 1
	}
	if err := s.Candidates.IncrementProctoring(ctx, c.ID, 1, tabSwitches, faceIssues, high); err != nil {
		slog.Error("proctoring counter bump failed", slog.String("candidate_id", c.ID), slog.Any("error", err))
	}
	if severity == domain.SeverityHigh {
		if err := s.Candidates.FlagIntegrity(ctx, c.ID); err != nil {
			slog.Error("integrity flag failed", slog.String("candidate_id", c.ID), slog.Any("error", err))
		}
	}
	return event, nil
}

// List returns a candidate's events in occurrence order.
func (s ProctoringService) List(ctx domain.Context, candidateID string, limit, offset int) ([]domain.ProctoringEvent, error) {
	return s.Events.ListByCandidate(ctx, candidateID, limit, offset)
}

// Review records an admin review on one event, optionally clearing the
// candidate's integrity flag when the reviewer dismisses the incident.
func (s ProctoringService) Review(ctx domain.Context, eventID, candidateID, reviewer, note string, clearFlag bool) error {
	if err := s.Events.Review(ctx, eventID, reviewer, note, s.now()); err != nil {
		return fmt.Errorf("op=proctoring.review: %w", err)
	}
	if clearFlag {
		if err := s.Candidates.ClearIntegrity(ctx, candidateID); err != nil {
			return fmt.Errorf("op=proctoring.review: clear flag: %w", err)
		}
	}
	return nil
}
