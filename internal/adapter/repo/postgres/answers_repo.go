package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
)

// AnswerRepo persists per-section answer documents. The section row carries
// timing and score; per-question entries live in answer_entries so concurrent
// saves of distinct questions never clobber each other.
type AnswerRepo struct{ Pool PgxPool }

// NewAnswerRepo constructs an AnswerRepo with the given pool.
func NewAnswerRepo(p PgxPool) *AnswerRepo { return &AnswerRepo{Pool: p} }

// EnsureSection upserts the section document and returns it with entries.
func (r *AnswerRepo) EnsureSection(ctx domain.Context, caID string, s domain.Section, startedAt time.Time) (domain.AssessmentAnswer, error) {
	tracer := otel.Tracer("repo.answers")
	ctx, span := tracer.Start(ctx, "answers.EnsureSection")
	defer span.End()
	q := `INSERT INTO assessment_answers (id, candidate_id, section, section_started_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (candidate_id, section) DO UPDATE SET section_started_at = COALESCE(assessment_answers.section_started_at, EXCLUDED.section_started_at)`
	_, err := r.Pool.Exec(ctx, q, uuid.New().String(), caID, s, startedAt.UTC())
	if err != nil {
		return domain.AssessmentAnswer{}, fmt.Errorf("op=answers.ensure_section: %w", err)
	}
	return r.Get(ctx, caID, s)
}

// Get loads one section document including its entries.
func (r *AnswerRepo) Get(ctx domain.Context, caID string, s domain.Section) (domain.AssessmentAnswer, error) {
	tracer := otel.Tracer("repo.answers")
	ctx, span := tracer.Start(ctx, "answers.Get")
	defer span.End()
	q := `SELECT id, candidate_id, section, section_started_at, section_submitted_at, time_spent_seconds, is_submitted, section_score, section_max_score
		FROM assessment_answers WHERE candidate_id=$1 AND section=$2`
	var a domain.AssessmentAnswer
	err := r.Pool.QueryRow(ctx, q, caID, s).Scan(&a.ID, &a.CandidateAssessmentID, &a.Section,
		&a.SectionStartedAt, &a.SectionSubmittedAt, &a.TimeSpentSeconds, &a.IsSubmitted, &a.SectionScore, &a.SectionMaxScore)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.AssessmentAnswer{}, fmt.Errorf("op=answers.get: %w", domain.ErrNotFound)
		}
		return domain.AssessmentAnswer{}, fmt.Errorf("op=answers.get: %w", err)
	}
	if err := r.loadEntries(ctx, &a); err != nil {
		return domain.AssessmentAnswer{}, fmt.Errorf("op=answers.get: %w", err)
	}
	return a, nil
}

func (r *AnswerRepo) loadEntries(ctx domain.Context, a *domain.AssessmentAnswer) error {
	rows, err := r.Pool.Query(ctx,
		`SELECT payload FROM answer_entries WHERE candidate_id=$1 AND section=$2 ORDER BY question_id`,
		a.CandidateAssessmentID, a.Section)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return err
		}
		switch a.Section {
		case domain.SectionObjective:
			var e domain.ObjectiveAnswer
			if err := fromJSON(payload, &e); err != nil {
				return err
			}
			a.Objective = append(a.Objective, e)
		case domain.SectionSubjective:
			var e domain.SubjectiveAnswer
			if err := fromJSON(payload, &e); err != nil {
				return err
			}
			a.Subjective = append(a.Subjective, e)
		case domain.SectionProgramming:
			var e domain.ProgrammingAnswer
			if err := fromJSON(payload, &e); err != nil {
				return err
			}
			a.Programming = append(a.Programming, e)
		}
	}
	return rows.Err()
}

// ListByCandidate returns all section documents of a candidate in serving order.
func (r *AnswerRepo) ListByCandidate(ctx domain.Context, caID string) ([]domain.AssessmentAnswer, error) {
	tracer := otel.Tracer("repo.answers")
	ctx, span := tracer.Start(ctx, "answers.ListByCandidate")
	defer span.End()
	var out []domain.AssessmentAnswer
	for _, s := range domain.SectionOrder {
		a, err := r.Get(ctx, caID, s)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("op=answers.list_by_candidate: %w", err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *AnswerRepo) upsertEntry(ctx domain.Context, caID string, s domain.Section, questionID string, payload []byte) error {
	q := `INSERT INTO answer_entries (candidate_id, section, question_id, payload, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (candidate_id, section, question_id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`
	_, err := r.Pool.Exec(ctx, q, caID, s, questionID, payload, time.Now().UTC())
	return err
}

// UpsertObjective saves one MCQ answer, last write per question wins.
func (r *AnswerRepo) UpsertObjective(ctx domain.Context, caID string, a domain.ObjectiveAnswer) error {
	tracer := otel.Tracer("repo.answers")
	ctx, span := tracer.Start(ctx, "answers.UpsertObjective")
	defer span.End()
	if err := r.upsertEntry(ctx, caID, domain.SectionObjective, a.QuestionID, mustJSON(a)); err != nil {
		return fmt.Errorf("op=answers.upsert_objective: %w", err)
	}
	return nil
}

// UpsertSubjective saves one free-text answer.
func (r *AnswerRepo) UpsertSubjective(ctx domain.Context, caID string, a domain.SubjectiveAnswer) error {
	tracer := otel.Tracer("repo.answers")
	ctx, span := tracer.Start(ctx, "answers.UpsertSubjective")
	defer span.End()
	if err := r.upsertEntry(ctx, caID, domain.SectionSubjective, a.QuestionID, mustJSON(a)); err != nil {
		return fmt.Errorf("op=answers.upsert_subjective: %w", err)
	}
	return nil
}

// UpsertProgramming saves one programming answer with its latest results.
func (r *AnswerRepo) UpsertProgramming(ctx domain.Context, caID string, a domain.ProgrammingAnswer) error {
	tracer := otel.Tracer("repo.answers")
	ctx, span := tracer.Start(ctx, "answers.UpsertProgramming")
	defer span.End()
	if err := r.upsertEntry(ctx, caID, domain.SectionProgramming, a.QuestionID, mustJSON(a)); err != nil {
		return fmt.Errorf("op=answers.upsert_programming: %w", err)
	}
	return nil
}

// CountEntries returns the number of saved entries for a section.
func (r *AnswerRepo) CountEntries(ctx domain.Context, caID string, s domain.Section) (int, error) {
	tracer := otel.Tracer("repo.answers")
	ctx, span := tracer.Start(ctx, "answers.CountEntries")
	defer span.End()
	var n int
	err := r.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM answer_entries WHERE candidate_id=$1 AND section=$2`, caID, s).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("op=answers.count_entries: %w", err)
	}
	return n, nil
}

// SubmitSection marks the section submitted with timing and score. Guarded so
// a second submit returns ErrConflict instead of overwriting the first.
func (r *AnswerRepo) SubmitSection(ctx domain.Context, caID string, s domain.Section, at time.Time, timeSpentSeconds int, score, maxScore float64) error {
	tracer := otel.Tracer("repo.answers")
	ctx, span := tracer.Start(ctx, "answers.SubmitSection")
	defer span.End()
	q := `UPDATE assessment_answers
		SET is_submitted=TRUE, section_submitted_at=$3, time_spent_seconds=$4, section_score=$5, section_max_score=$6
		WHERE candidate_id=$1 AND section=$2 AND NOT is_submitted`
	tag, err := r.Pool.Exec(ctx, q, caID, s, at.UTC(), timeSpentSeconds, score, maxScore)
	if err != nil {
		return fmt.Errorf("op=answers.submit_section: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=answers.submit_section: already submitted: %w", domain.ErrConflict)
	}
	return nil
}

// SetSubjectiveScore writes the AI score and feedback into one stored answer.
func (r *AnswerRepo) SetSubjectiveScore(ctx domain.Context, caID, questionID string, score float64, feedback string) error {
	tracer := otel.Tracer("repo.answers")
	ctx, span := tracer.Start(ctx, "answers.SetSubjectiveScore")
	defer span.End()
	q := `UPDATE answer_entries
		SET payload = payload || jsonb_build_object('aiScore', $3::double precision, 'aiFeedback', $4::text), updated_at=$5
		WHERE candidate_id=$1 AND section='subjective' AND question_id=$2`
	tag, err := r.Pool.Exec(ctx, q, caID, questionID, score, feedback, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=answers.set_subjective_score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=answers.set_subjective_score: %w", domain.ErrNotFound)
	}
	return nil
}
