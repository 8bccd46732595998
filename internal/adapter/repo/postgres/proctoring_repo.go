package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
)

// ProctoringRepo is append-only except the admin review fields.
type ProctoringRepo struct{ Pool PgxPool }

// NewProctoringRepo constructs a ProctoringRepo with the given pool.
func NewProctoringRepo(p PgxPool) *ProctoringRepo { return &ProctoringRepo{Pool: p} }

// Append inserts one classified event and returns its id.
func (r *ProctoringRepo) Append(ctx domain.Context, e domain.ProctoringEvent) (string, error) {
	tracer := otel.Tracer("repo.proctoring")
	ctx, span := tracer.Start(ctx, "proctoring.Append")
	defer span.End()
	id := e.ID
	if id == "" {
		id = uuid.New().String()
	}
	var evidence []byte
	if e.Evidence != nil {
		evidence = mustJSON(e.Evidence)
	}
	q := `INSERT INTO proctoring_events (id, candidate_id, event_type, severity, occurred_at, screenshot_ref, evidence, section, question_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err := r.Pool.Exec(ctx, q, id, e.CandidateAssessmentID, e.Type, e.Severity, e.OccurredAt.UTC(), e.ScreenshotRef, evidence, e.Section, e.QuestionID)
	if err != nil {
		return "", fmt.Errorf("op=proctoring.append: %w", err)
	}
	return id, nil
}

// ListByCandidate returns events in occurrence order.
func (r *ProctoringRepo) ListByCandidate(ctx domain.Context, caID string, limit, offset int) ([]domain.ProctoringEvent, error) {
	tracer := otel.Tracer("repo.proctoring")
	ctx, span := tracer.Start(ctx, "proctoring.ListByCandidate")
	defer span.End()
	if limit <= 0 {
		limit = 200
	}
	q := `SELECT id, candidate_id, event_type, severity, occurred_at, screenshot_ref, evidence, section, question_id,
			admin_reviewed, admin_note, reviewed_by, reviewed_at
		FROM proctoring_events WHERE candidate_id=$1 ORDER BY occurred_at LIMIT $2 OFFSET $3`
	rows, err := r.Pool.Query(ctx, q, caID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("op=proctoring.list: %w", err)
	}
	defer rows.Close()
	var out []domain.ProctoringEvent
	for rows.Next() {
		var e domain.ProctoringEvent
		var evidence []byte
		if err := rows.Scan(&e.ID, &e.CandidateAssessmentID, &e.Type, &e.Severity, &e.OccurredAt, &e.ScreenshotRef,
			&evidence, &e.Section, &e.QuestionID, &e.AdminReviewed, &e.AdminNote, &e.ReviewedBy, &e.ReviewedAt); err != nil {
			return nil, fmt.Errorf("op=proctoring.list: %w", err)
		}
		if err := fromJSON(evidence, &e.Evidence); err != nil {
			return nil, fmt.Errorf("op=proctoring.list: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=proctoring.list: %w", err)
	}
	return out, nil
}

// Review sets the admin review fields on one event.
func (r *ProctoringRepo) Review(ctx domain.Context, id, reviewer, note string, at time.Time) error {
	tracer := otel.Tracer("repo.proctoring")
	ctx, span := tracer.Start(ctx, "proctoring.Review")
	defer span.End()
	q := `UPDATE proctoring_events SET admin_reviewed=TRUE, admin_note=$3, reviewed_by=$2, reviewed_at=$4 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id, reviewer, note, at.UTC())
	if err != nil {
		return fmt.Errorf("op=proctoring.review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=proctoring.review: %w", domain.ErrNotFound)
	}
	return nil
}
