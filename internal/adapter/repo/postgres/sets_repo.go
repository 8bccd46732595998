package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
)

// SetRepo persists assessment sets.
type SetRepo struct{ Pool PgxPool }

// NewSetRepo constructs a SetRepo with the given pool.
func NewSetRepo(p PgxPool) *SetRepo { return &SetRepo{Pool: p} }

const setColumns = `id, jd_id, idx, objective, subjective, programming, total_points, is_active, created_at`

// Create validates the set and inserts it. Invariant violations never reach
// the database.
func (r *SetRepo) Create(ctx domain.Context, s domain.AssessmentSet) (string, error) {
	tracer := otel.Tracer("repo.sets")
	ctx, span := tracer.Start(ctx, "sets.Create")
	defer span.End()
	if err := s.Validate(); err != nil {
		return "", fmt.Errorf("op=sets.create: %w", err)
	}
	id := s.ID
	if id == "" {
		id = uuid.New().String()
	}
	q := `INSERT INTO assessment_sets (id, jd_id, idx, objective, subjective, programming, total_points, is_active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err := r.Pool.Exec(ctx, q, id, s.JDID, s.Index, mustJSON(s.Objective), mustJSON(s.Subjective), mustJSON(s.Programming), s.TotalPoints, s.IsActive, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("op=sets.create: %w", err)
	}
	return id, nil
}

func scanSet(row pgx.Row) (domain.AssessmentSet, error) {
	var s domain.AssessmentSet
	var obj, subj, prog []byte
	if err := row.Scan(&s.ID, &s.JDID, &s.Index, &obj, &subj, &prog, &s.TotalPoints, &s.IsActive, &s.CreatedAt); err != nil {
		return domain.AssessmentSet{}, err
	}
	if err := fromJSON(obj, &s.Objective); err != nil {
		return domain.AssessmentSet{}, err
	}
	if err := fromJSON(subj, &s.Subjective); err != nil {
		return domain.AssessmentSet{}, err
	}
	if err := fromJSON(prog, &s.Programming); err != nil {
		return domain.AssessmentSet{}, err
	}
	return s, nil
}

// Get loads a set by id.
func (r *SetRepo) Get(ctx domain.Context, id string) (domain.AssessmentSet, error) {
	tracer := otel.Tracer("repo.sets")
	ctx, span := tracer.Start(ctx, "sets.Get")
	defer span.End()
	s, err := scanSet(r.Pool.QueryRow(ctx, `SELECT `+setColumns+` FROM assessment_sets WHERE id=$1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.AssessmentSet{}, fmt.Errorf("op=sets.get: %w", domain.ErrNotFound)
		}
		return domain.AssessmentSet{}, fmt.Errorf("op=sets.get: %w", err)
	}
	return s, nil
}

func (r *SetRepo) list(ctx domain.Context, q, op string, args ...any) ([]domain.AssessmentSet, error) {
	rows, err := r.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("op=%s: %w", op, err)
	}
	defer rows.Close()
	var out []domain.AssessmentSet
	for rows.Next() {
		s, err := scanSet(rows)
		if err != nil {
			return nil, fmt.Errorf("op=%s: %w", op, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=%s: %w", op, err)
	}
	return out, nil
}

// ListByJD returns all sets of a JD in index order.
func (r *SetRepo) ListByJD(ctx domain.Context, jdID string) ([]domain.AssessmentSet, error) {
	tracer := otel.Tracer("repo.sets")
	ctx, span := tracer.Start(ctx, "sets.ListByJD")
	defer span.End()
	return r.list(ctx, `SELECT `+setColumns+` FROM assessment_sets WHERE jd_id=$1 ORDER BY idx`, "sets.list_by_jd", jdID)
}

// ListActiveByJD returns only the active sets of a JD, index order.
func (r *SetRepo) ListActiveByJD(ctx domain.Context, jdID string) ([]domain.AssessmentSet, error) {
	tracer := otel.Tracer("repo.sets")
	ctx, span := tracer.Start(ctx, "sets.ListActiveByJD")
	defer span.End()
	return r.list(ctx, `SELECT `+setColumns+` FROM assessment_sets WHERE jd_id=$1 AND is_active ORDER BY idx`, "sets.list_active_by_jd", jdID)
}

// SetActive toggles a set's availability for assignment.
func (r *SetRepo) SetActive(ctx domain.Context, id string, active bool) error {
	tracer := otel.Tracer("repo.sets")
	ctx, span := tracer.Start(ctx, "sets.SetActive")
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `UPDATE assessment_sets SET is_active=$2 WHERE id=$1`, id, active)
	if err != nil {
		return fmt.Errorf("op=sets.set_active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=sets.set_active: %w", domain.ErrNotFound)
	}
	return nil
}

// DeleteByJD removes all sets of a JD, used on regeneration.
func (r *SetRepo) DeleteByJD(ctx domain.Context, jdID string) error {
	tracer := otel.Tracer("repo.sets")
	ctx, span := tracer.Start(ctx, "sets.DeleteByJD")
	defer span.End()
	_, err := r.Pool.Exec(ctx, `DELETE FROM assessment_sets WHERE jd_id=$1`, jdID)
	if err != nil {
		return fmt.Errorf("op=sets.delete_by_jd: %w", err)
	}
	return nil
}
