package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
)

// EvaluationRepo persists evaluations, one per candidate assessment.
type EvaluationRepo struct{ Pool PgxPool }

// NewEvaluationRepo constructs an EvaluationRepo with the given pool.
func NewEvaluationRepo(p PgxPool) *EvaluationRepo { return &EvaluationRepo{Pool: p} }

// Upsert writes the evaluation; a re-evaluation replaces the previous scores
// but never touches an admin decision already recorded.
func (r *EvaluationRepo) Upsert(ctx domain.Context, e domain.Evaluation) (string, error) {
	tracer := otel.Tracer("repo.evaluations")
	ctx, span := tracer.Start(ctx, "evaluations.Upsert")
	defer span.End()
	id := e.ID
	if id == "" {
		id = uuid.New().String()
	}
	decision := e.AdminDecision
	if decision == "" {
		decision = domain.DecisionReviewPending
	}
	q := `INSERT INTO evaluations (id, candidate_id, sections, total_score, max_total_score, percentage, weighted_score,
			skill_scores, plagiarism, ai_recommendation, ai_confidence, ai_reason, admin_decision, report_ref, evaluated_at, duration_ms)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (candidate_id) DO UPDATE SET
			sections=EXCLUDED.sections, total_score=EXCLUDED.total_score, max_total_score=EXCLUDED.max_total_score,
			percentage=EXCLUDED.percentage, weighted_score=EXCLUDED.weighted_score, skill_scores=EXCLUDED.skill_scores,
			plagiarism=EXCLUDED.plagiarism, ai_recommendation=EXCLUDED.ai_recommendation,
			ai_confidence=EXCLUDED.ai_confidence, ai_reason=EXCLUDED.ai_reason,
			report_ref=EXCLUDED.report_ref, evaluated_at=EXCLUDED.evaluated_at, duration_ms=EXCLUDED.duration_ms`
	_, err := r.Pool.Exec(ctx, q, id, e.CandidateAssessmentID, mustJSON(e.Sections), e.TotalScore, e.MaxTotalScore,
		e.Percentage, e.WeightedScore, mustJSON(e.SkillScores), mustJSON(e.Plagiarism),
		e.AIRecommendation, e.AIConfidence, e.AIReason, decision, e.ReportRef, e.EvaluatedAt.UTC(), e.DurationMS)
	if err != nil {
		return "", fmt.Errorf("op=evaluations.upsert: %w", err)
	}
	return id, nil
}

// GetByCandidate loads the evaluation of one candidate assessment.
func (r *EvaluationRepo) GetByCandidate(ctx domain.Context, caID string) (domain.Evaluation, error) {
	tracer := otel.Tracer("repo.evaluations")
	ctx, span := tracer.Start(ctx, "evaluations.GetByCandidate")
	defer span.End()
	q := `SELECT id, candidate_id, sections, total_score, max_total_score, percentage, weighted_score,
			skill_scores, plagiarism, ai_recommendation, ai_confidence, ai_reason,
			admin_decision, admin_decision_by, admin_decision_note, admin_decision_at, report_ref, evaluated_at, duration_ms
		FROM evaluations WHERE candidate_id=$1`
	var e domain.Evaluation
	var sections, skills, plagiarism []byte
	err := r.Pool.QueryRow(ctx, q, caID).Scan(&e.ID, &e.CandidateAssessmentID, &sections, &e.TotalScore, &e.MaxTotalScore,
		&e.Percentage, &e.WeightedScore, &skills, &plagiarism, &e.AIRecommendation, &e.AIConfidence, &e.AIReason,
		&e.AdminDecision, &e.AdminDecisionBy, &e.AdminDecisionNote, &e.AdminDecisionAt, &e.ReportRef, &e.EvaluatedAt, &e.DurationMS)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Evaluation{}, fmt.Errorf("op=evaluations.get_by_candidate: %w", domain.ErrNotFound)
		}
		return domain.Evaluation{}, fmt.Errorf("op=evaluations.get_by_candidate: %w", err)
	}
	if err := fromJSON(sections, &e.Sections); err != nil {
		return domain.Evaluation{}, fmt.Errorf("op=evaluations.get_by_candidate: %w", err)
	}
	if err := fromJSON(skills, &e.SkillScores); err != nil {
		return domain.Evaluation{}, fmt.Errorf("op=evaluations.get_by_candidate: %w", err)
	}
	if err := fromJSON(plagiarism, &e.Plagiarism); err != nil {
		return domain.Evaluation{}, fmt.Errorf("op=evaluations.get_by_candidate: %w", err)
	}
	return e, nil
}

// SetAdminDecision records the human decision.
func (r *EvaluationRepo) SetAdminDecision(ctx domain.Context, caID string, d domain.AdminDecision, by, note string, at time.Time) error {
	tracer := otel.Tracer("repo.evaluations")
	ctx, span := tracer.Start(ctx, "evaluations.SetAdminDecision")
	defer span.End()
	q := `UPDATE evaluations SET admin_decision=$2, admin_decision_by=$3, admin_decision_note=$4, admin_decision_at=$5 WHERE candidate_id=$1`
	tag, err := r.Pool.Exec(ctx, q, caID, d, by, note, at.UTC())
	if err != nil {
		return fmt.Errorf("op=evaluations.set_admin_decision: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=evaluations.set_admin_decision: %w", domain.ErrNotFound)
	}
	return nil
}
