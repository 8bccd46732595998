package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
)

// InterviewRepo persists adaptive interview metadata and follow-up questions.
type InterviewRepo struct{ Pool PgxPool }

// NewInterviewRepo constructs an InterviewRepo with the given pool.
func NewInterviewRepo(p PgxPool) *InterviewRepo { return &InterviewRepo{Pool: p} }

const interviewColumns = `id, candidate_id, min_questions, max_questions, base_question_count,
	current_total_questions, followup_count, last_followup_position, avg_detector_confidence,
	detector_call_count, approved_count, rejected_count, status, created_at, updated_at`

// CreateMetadata inserts the interview record and returns its id.
func (r *InterviewRepo) CreateMetadata(ctx domain.Context, m domain.InterviewMetadata) (string, error) {
	tracer := otel.Tracer("repo.interviews")
	ctx, span := tracer.Start(ctx, "interviews.CreateMetadata")
	defer span.End()
	id := m.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	status := m.Status
	if status == "" {
		status = domain.InterviewActive
	}
	q := `INSERT INTO interviews (id, candidate_id, min_questions, max_questions, base_question_count,
			current_total_questions, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)`
	_, err := r.Pool.Exec(ctx, q, id, m.CandidateAssessmentID, m.MinQuestions, m.MaxQuestions,
		m.BaseQuestionCount, m.CurrentTotalQuestions, status, now)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("op=interviews.create: interview exists for candidate: %w", domain.ErrConflict)
		}
		return "", fmt.Errorf("op=interviews.create: %w", err)
	}
	return id, nil
}

func scanInterview(row pgx.Row) (domain.InterviewMetadata, error) {
	var m domain.InterviewMetadata
	err := row.Scan(&m.ID, &m.CandidateAssessmentID, &m.MinQuestions, &m.MaxQuestions, &m.BaseQuestionCount,
		&m.CurrentTotalQuestions, &m.FollowupCount, &m.LastFollowupPosition, &m.AvgDetectorConfidence,
		&m.DetectorCallCount, &m.ApprovedCount, &m.RejectedCount, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

// GetMetadata loads an interview by id.
func (r *InterviewRepo) GetMetadata(ctx domain.Context, id string) (domain.InterviewMetadata, error) {
	tracer := otel.Tracer("repo.interviews")
	ctx, span := tracer.Start(ctx, "interviews.GetMetadata")
	defer span.End()
	m, err := scanInterview(r.Pool.QueryRow(ctx, `SELECT `+interviewColumns+` FROM interviews WHERE id=$1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.InterviewMetadata{}, fmt.Errorf("op=interviews.get: %w", domain.ErrNotFound)
		}
		return domain.InterviewMetadata{}, fmt.Errorf("op=interviews.get: %w", err)
	}
	return m, nil
}

// GetMetadataByCandidate loads the interview of one candidate assessment.
func (r *InterviewRepo) GetMetadataByCandidate(ctx domain.Context, caID string) (domain.InterviewMetadata, error) {
	tracer := otel.Tracer("repo.interviews")
	ctx, span := tracer.Start(ctx, "interviews.GetMetadataByCandidate")
	defer span.End()
	m, err := scanInterview(r.Pool.QueryRow(ctx, `SELECT `+interviewColumns+` FROM interviews WHERE candidate_id=$1`, caID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.InterviewMetadata{}, fmt.Errorf("op=interviews.get_by_candidate: %w", domain.ErrNotFound)
		}
		return domain.InterviewMetadata{}, fmt.Errorf("op=interviews.get_by_candidate: %w", err)
	}
	return m, nil
}

// RecordDetectorCall bumps the call count and folds confidence into the
// running mean in one statement, so concurrent calls cannot skew the average.
func (r *InterviewRepo) RecordDetectorCall(ctx domain.Context, id string, confidence float64, approved bool) error {
	tracer := otel.Tracer("repo.interviews")
	ctx, span := tracer.Start(ctx, "interviews.RecordDetectorCall")
	defer span.End()
	q := `UPDATE interviews SET
			avg_detector_confidence = (avg_detector_confidence * detector_call_count + $2) / (detector_call_count + 1),
			detector_call_count = detector_call_count + 1,
			approved_count = approved_count + CASE WHEN $3 THEN 1 ELSE 0 END,
			rejected_count = rejected_count + CASE WHEN $3 THEN 0 ELSE 1 END,
			updated_at = $4
		WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id, confidence, approved, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=interviews.record_detector_call: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=interviews.record_detector_call: %w", domain.ErrNotFound)
	}
	return nil
}

// InsertFollowUp persists one follow-up and bumps the interview counters. A
// (interview, sortKey) collision means another writer owns that slot:
// ErrConflict, nothing inserted, counters untouched.
func (r *InterviewRepo) InsertFollowUp(ctx domain.Context, f domain.FollowUpQuestion) (string, error) {
	tracer := otel.Tracer("repo.interviews")
	ctx, span := tracer.Start(ctx, "interviews.InsertFollowUp")
	defer span.End()
	id := f.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	q := `WITH ins AS (
			INSERT INTO follow_up_questions (id, interview_id, base_index, sort_key, question, expected_answer, detector_reason, confidence, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			RETURNING interview_id, sort_key
		)
		UPDATE interviews i SET
			followup_count = followup_count + 1,
			current_total_questions = current_total_questions + 1,
			last_followup_position = GREATEST(last_followup_position, ins.sort_key),
			updated_at = $9
		FROM ins WHERE i.id = ins.interview_id`
	_, err := r.Pool.Exec(ctx, q, id, f.InterviewID, f.BaseIndex, f.SortKey, f.Question, f.ExpectedAnswer, f.DetectorReason, f.Confidence, now)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("op=interviews.insert_follow_up: sort key %d taken: %w", f.SortKey, domain.ErrConflict)
		}
		return "", fmt.Errorf("op=interviews.insert_follow_up: %w", err)
	}
	return id, nil
}

// ListFollowUps returns follow-ups in sort-key order.
func (r *InterviewRepo) ListFollowUps(ctx domain.Context, interviewID string) ([]domain.FollowUpQuestion, error) {
	tracer := otel.Tracer("repo.interviews")
	ctx, span := tracer.Start(ctx, "interviews.ListFollowUps")
	defer span.End()
	q := `SELECT id, interview_id, base_index, sort_key, question, expected_answer, detector_reason, confidence, created_at
		FROM follow_up_questions WHERE interview_id=$1 ORDER BY sort_key`
	rows, err := r.Pool.Query(ctx, q, interviewID)
	if err != nil {
		return nil, fmt.Errorf("op=interviews.list_follow_ups: %w", err)
	}
	defer rows.Close()
	var out []domain.FollowUpQuestion
	for rows.Next() {
		var f domain.FollowUpQuestion
		if err := rows.Scan(&f.ID, &f.InterviewID, &f.BaseIndex, &f.SortKey, &f.Question, &f.ExpectedAnswer,
			&f.DetectorReason, &f.Confidence, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=interviews.list_follow_ups: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=interviews.list_follow_ups: %w", err)
	}
	return out, nil
}

// CountFollowUpsForBase counts follow-ups already attached to one base question.
func (r *InterviewRepo) CountFollowUpsForBase(ctx domain.Context, interviewID string, baseIndex int) (int, error) {
	tracer := otel.Tracer("repo.interviews")
	ctx, span := tracer.Start(ctx, "interviews.CountFollowUpsForBase")
	defer span.End()
	var n int
	err := r.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM follow_up_questions WHERE interview_id=$1 AND base_index=$2`, interviewID, baseIndex).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("op=interviews.count_follow_ups_for_base: %w", err)
	}
	return n, nil
}

// RecentQuestions returns the text of the last n follow-ups in display order,
// used for repetition checks in generator prompts.
func (r *InterviewRepo) RecentQuestions(ctx domain.Context, interviewID string, n int) ([]string, error) {
	tracer := otel.Tracer("repo.interviews")
	ctx, span := tracer.Start(ctx, "interviews.RecentQuestions")
	defer span.End()
	if n <= 0 {
		n = 5
	}
	q := `SELECT question FROM (
			SELECT question, sort_key FROM follow_up_questions WHERE interview_id=$1 ORDER BY sort_key DESC LIMIT $2
		) sub ORDER BY sort_key`
	rows, err := r.Pool.Query(ctx, q, interviewID, n)
	if err != nil {
		return nil, fmt.Errorf("op=interviews.recent_questions: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("op=interviews.recent_questions: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=interviews.recent_questions: %w", err)
	}
	return out, nil
}
