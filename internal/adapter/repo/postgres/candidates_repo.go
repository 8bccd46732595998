package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
)

// CandidateRepo persists candidate assessments. Every write is a targeted
// field update; lifecycle moves are guarded in SQL.
type CandidateRepo struct{ Pool PgxPool }

// NewCandidateRepo constructs a CandidateRepo with the given pool.
func NewCandidateRepo(p PgxPool) *CandidateRepo { return &CandidateRepo{Pool: p} }

const caColumns = `id, jd_id, email, name, status, onboarding, resume, resume_text, assigned_set_id,
	session_token, current_section, started_at, submitted_at, last_heartbeat, time_spent_seconds,
	section_progress, proc_total, proc_tab_switches, proc_face_issues, proc_high_severity,
	integrity_status, comm_log, created_at, updated_at`

// Create inserts a new candidate assessment. A duplicate (email, jd) pair
// maps to ErrConflict.
func (r *CandidateRepo) Create(ctx domain.Context, c domain.CandidateAssessment) (string, error) {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "candidates.Create")
	defer span.End()
	id := c.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	q := `INSERT INTO candidate_assessments (id, jd_id, email, name, status, onboarding, section_progress, integrity_status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)`
	_, err := r.Pool.Exec(ctx, q, id, c.JDID, c.Email, c.Name, c.Status, mustJSON(c.Onboarding), mustJSON(c.SectionProgress), domain.IntegrityClear, now)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("op=candidates.create: email already registered for jd: %w", domain.ErrConflict)
		}
		return "", fmt.Errorf("op=candidates.create: %w", err)
	}
	return id, nil
}

func scanCandidate(row pgx.Row) (domain.CandidateAssessment, error) {
	var c domain.CandidateAssessment
	var onboarding, resume, progress, commLog []byte
	var resumeText string
	if err := row.Scan(&c.ID, &c.JDID, &c.Email, &c.Name, &c.Status, &onboarding, &resume, &resumeText,
		&c.AssignedSetID, &c.SessionToken, &c.CurrentSection, &c.StartedAt, &c.SubmittedAt, &c.LastHeartbeat,
		&c.TimeSpentSeconds, &progress, &c.Proctoring.TotalEvents, &c.Proctoring.TabSwitches,
		&c.Proctoring.FaceDetectionIssues, &c.Proctoring.HighSeverityEvents,
		&c.IntegrityStatus, &commLog, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return domain.CandidateAssessment{}, err
	}
	if len(resume) > 0 {
		c.Resume = &domain.ResumeBlock{}
		if err := fromJSON(resume, c.Resume); err != nil {
			return domain.CandidateAssessment{}, err
		}
		c.Resume.Text = resumeText
	}
	if err := fromJSON(onboarding, &c.Onboarding); err != nil {
		return domain.CandidateAssessment{}, err
	}
	if err := fromJSON(progress, &c.SectionProgress); err != nil {
		return domain.CandidateAssessment{}, err
	}
	if err := fromJSON(commLog, &c.CommLog); err != nil {
		return domain.CandidateAssessment{}, err
	}
	return c, nil
}

func (r *CandidateRepo) getWhere(ctx domain.Context, op, where string, args ...any) (domain.CandidateAssessment, error) {
	c, err := scanCandidate(r.Pool.QueryRow(ctx, `SELECT `+caColumns+` FROM candidate_assessments WHERE `+where, args...))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.CandidateAssessment{}, fmt.Errorf("op=%s: %w", op, domain.ErrNotFound)
		}
		return domain.CandidateAssessment{}, fmt.Errorf("op=%s: %w", op, err)
	}
	return c, nil
}

// Get loads a candidate assessment by id.
func (r *CandidateRepo) Get(ctx domain.Context, id string) (domain.CandidateAssessment, error) {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "candidates.Get")
	defer span.End()
	return r.getWhere(ctx, "candidates.get", "id=$1", id)
}

// GetByEmailAndJD loads the unique attempt for an (email, jd) pair.
func (r *CandidateRepo) GetByEmailAndJD(ctx domain.Context, email, jdID string) (domain.CandidateAssessment, error) {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "candidates.GetByEmailAndJD")
	defer span.End()
	return r.getWhere(ctx, "candidates.get_by_email_jd", "email=$1 AND jd_id=$2", email, jdID)
}

// GetBySessionToken loads a candidate by bearer session token.
func (r *CandidateRepo) GetBySessionToken(ctx domain.Context, tok string) (domain.CandidateAssessment, error) {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "candidates.GetBySessionToken")
	defer span.End()
	return r.getWhere(ctx, "candidates.get_by_token", "session_token=$1", tok)
}

// ListByJD returns candidates of a JD, oldest first.
func (r *CandidateRepo) ListByJD(ctx domain.Context, jdID string, limit, offset int) ([]domain.CandidateAssessment, error) {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "candidates.ListByJD")
	defer span.End()
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.Pool.Query(ctx, `SELECT `+caColumns+` FROM candidate_assessments WHERE jd_id=$1 ORDER BY created_at LIMIT $2 OFFSET $3`, jdID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("op=candidates.list_by_jd: %w", err)
	}
	defer rows.Close()
	var out []domain.CandidateAssessment
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("op=candidates.list_by_jd: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=candidates.list_by_jd: %w", err)
	}
	return out, nil
}

// UpdateStatus moves status from→to, guarded the same way as JD transitions.
func (r *CandidateRepo) UpdateStatus(ctx domain.Context, id string, from, to domain.CandidateStatus) error {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "candidates.UpdateStatus")
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `UPDATE candidate_assessments SET status=$3, updated_at=$4 WHERE id=$1 AND status=$2`, id, from, to, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=candidates.update_status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=candidates.update_status: %s->%s not applied: %w", from, to, domain.ErrConflict)
	}
	return nil
}

// SetEmailVerified flips the email-verified onboarding gate.
func (r *CandidateRepo) SetEmailVerified(ctx domain.Context, id string, at time.Time) error {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "candidates.SetEmailVerified")
	defer span.End()
	q := `UPDATE candidate_assessments SET onboarding = onboarding
		|| jsonb_build_object('emailVerified', true, 'emailVerifiedAt', to_jsonb($2::timestamptz)),
		updated_at=$3 WHERE id=$1`
	_, err := r.Pool.Exec(ctx, q, id, at.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=candidates.set_email_verified: %w", err)
	}
	return nil
}

// SetProfilePhoto records the captured photo reference.
func (r *CandidateRepo) SetProfilePhoto(ctx domain.Context, id, ref string, at time.Time) error {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "candidates.SetProfilePhoto")
	defer span.End()
	q := `UPDATE candidate_assessments SET onboarding = onboarding
		|| jsonb_build_object('profilePhotoCaptured', true, 'profilePhotoRef', $2::text, 'photoCapturedAt', to_jsonb($3::timestamptz)),
		updated_at=$4 WHERE id=$1`
	_, err := r.Pool.Exec(ctx, q, id, ref, at.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=candidates.set_profile_photo: %w", err)
	}
	return nil
}

// SetConsent records consent acceptance.
func (r *CandidateRepo) SetConsent(ctx domain.Context, id string, at time.Time) error {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "candidates.SetConsent")
	defer span.End()
	q := `UPDATE candidate_assessments SET onboarding = onboarding
		|| jsonb_build_object('consentAccepted', true, 'consentAcceptedAt', to_jsonb($2::timestamptz)),
		updated_at=$3 WHERE id=$1`
	_, err := r.Pool.Exec(ctx, q, id, at.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=candidates.set_consent: %w", err)
	}
	return nil
}

// SetResume stores the resume block; the extracted text goes to its own
// column and never appears in API payloads.
func (r *CandidateRepo) SetResume(ctx domain.Context, id string, rb domain.ResumeBlock) error {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "candidates.SetResume")
	defer span.End()
	_, err := r.Pool.Exec(ctx, `UPDATE candidate_assessments SET resume=$2, resume_text=$3, updated_at=$4 WHERE id=$1`,
		id, mustJSON(rb), rb.Text, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=candidates.set_resume: %w", err)
	}
	return nil
}

// StartSession atomically assigns set, token, and timing while moving
// ready→in_progress. Racing starts lose the WHERE clause and get ErrConflict.
func (r *CandidateRepo) StartSession(ctx domain.Context, id, setID, token string, startedAt time.Time) error {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "candidates.StartSession")
	defer span.End()
	q := `UPDATE candidate_assessments
		SET status=$5, assigned_set_id=$2, session_token=$3, started_at=$4, last_heartbeat=$4, updated_at=$4
		WHERE id=$1 AND status=$6`
	tag, err := r.Pool.Exec(ctx, q, id, setID, token, startedAt.UTC(), domain.CandidateInProgress, domain.CandidateReady)
	if err != nil {
		return fmt.Errorf("op=candidates.start_session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=candidates.start_session: not ready: %w", domain.ErrConflict)
	}
	return nil
}

// Heartbeat stamps liveness.
func (r *CandidateRepo) Heartbeat(ctx domain.Context, id string, at time.Time) error {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "candidates.Heartbeat")
	defer span.End()
	_, err := r.Pool.Exec(ctx, `UPDATE candidate_assessments SET last_heartbeat=$2 WHERE id=$1`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("op=candidates.heartbeat: %w", err)
	}
	return nil
}

// SetCurrentSection records which section the candidate is being served.
func (r *CandidateRepo) SetCurrentSection(ctx domain.Context, id string, s domain.Section) error {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "candidates.SetCurrentSection")
	defer span.End()
	_, err := r.Pool.Exec(ctx, `UPDATE candidate_assessments SET current_section=$2, updated_at=$3 WHERE id=$1`, id, s, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=candidates.set_current_section: %w", err)
	}
	return nil
}

// SetSectionProgress writes one section's progress entry.
func (r *CandidateRepo) SetSectionProgress(ctx domain.Context, id string, s domain.Section, p domain.SectionProgress) error {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "candidates.SetSectionProgress")
	defer span.End()
	q := `UPDATE candidate_assessments SET section_progress = jsonb_set(section_progress, ARRAY[$2::text], $3::jsonb), updated_at=$4 WHERE id=$1`
	_, err := r.Pool.Exec(ctx, q, id, string(s), mustJSON(p), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=candidates.set_section_progress: %w", err)
	}
	return nil
}

// FinishSession moves in_progress→submitted, stamping submission time and
// time spent and clearing the current section. Already-submitted candidates
// get ErrConflict, making the call idempotent for the caller to absorb.
func (r *CandidateRepo) FinishSession(ctx domain.Context, id string, submittedAt time.Time, timeSpentSeconds int) error {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "candidates.FinishSession")
	defer span.End()
	q := `UPDATE candidate_assessments
		SET status=$4, submitted_at=$2, time_spent_seconds=$3, current_section='', updated_at=$2
		WHERE id=$1 AND status=$5`
	tag, err := r.Pool.Exec(ctx, q, id, submittedAt.UTC(), timeSpentSeconds, domain.CandidateSubmitted, domain.CandidateInProgress)
	if err != nil {
		return fmt.Errorf("op=candidates.finish_session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=candidates.finish_session: not in progress: %w", domain.ErrConflict)
	}
	return nil
}

// IncrementProctoring bumps the typed counters atomically.
func (r *CandidateRepo) IncrementProctoring(ctx domain.Context, id string, total, tabSwitches, faceIssues, high int) error {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "candidates.IncrementProctoring")
	defer span.End()
	q := `UPDATE candidate_assessments
		SET proc_total = proc_total + $2, proc_tab_switches = proc_tab_switches + $3,
			proc_face_issues = proc_face_issues + $4, proc_high_severity = proc_high_severity + $5
		WHERE id=$1`
	_, err := r.Pool.Exec(ctx, q, id, total, tabSwitches, faceIssues, high)
	if err != nil {
		return fmt.Errorf("op=candidates.increment_proctoring: %w", err)
	}
	return nil
}

// FlagIntegrity is a monotone one-way write; an already-flagged candidate is
// left alone.
func (r *CandidateRepo) FlagIntegrity(ctx domain.Context, id string) error {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "candidates.FlagIntegrity")
	defer span.End()
	_, err := r.Pool.Exec(ctx, `UPDATE candidate_assessments SET integrity_status=$2, updated_at=$3 WHERE id=$1 AND integrity_status=$4`,
		id, domain.IntegrityFlaggedUnderReview, time.Now().UTC(), domain.IntegrityClear)
	if err != nil {
		return fmt.Errorf("op=candidates.flag_integrity: %w", err)
	}
	return nil
}

// ClearIntegrity is the admin-only reverse of FlagIntegrity.
func (r *CandidateRepo) ClearIntegrity(ctx domain.Context, id string) error {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "candidates.ClearIntegrity")
	defer span.End()
	_, err := r.Pool.Exec(ctx, `UPDATE candidate_assessments SET integrity_status=$2, updated_at=$3 WHERE id=$1`,
		id, domain.IntegrityClear, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=candidates.clear_integrity: %w", err)
	}
	return nil
}

// AppendCommLog appends one communication record.
func (r *CandidateRepo) AppendCommLog(ctx domain.Context, id string, e domain.CommEntry) error {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "candidates.AppendCommLog")
	defer span.End()
	q := `UPDATE candidate_assessments SET comm_log = comm_log || $2::jsonb, updated_at=$3 WHERE id=$1`
	_, err := r.Pool.Exec(ctx, q, id, mustJSON(e), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=candidates.append_comm_log: %w", err)
	}
	return nil
}
