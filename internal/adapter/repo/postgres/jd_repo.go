package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
)

// JDRepo persists job descriptions.
type JDRepo struct{ Pool PgxPool }

// NewJDRepo constructs a JDRepo with the given pool.
func NewJDRepo(p PgxPool) *JDRepo { return &JDRepo{Pool: p} }

const jdColumns = `id, company_id, recruiter_id, raw_text, file_ref, status, parsed, config, meta,
	total_invited, in_progress, completed_assessments,
	COALESCE(assessment_link,''), set_ids, skills_override, rubric, is_locked, locked_at, created_at, updated_at`

// Create inserts a new job description and returns its id.
func (r *JDRepo) Create(ctx domain.Context, jd domain.JobDescription) (string, error) {
	tracer := otel.Tracer("repo.jd")
	ctx, span := tracer.Start(ctx, "jd.Create")
	defer span.End()
	id := jd.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	q := `INSERT INTO job_descriptions (id, company_id, recruiter_id, raw_text, file_ref, status, config, meta, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)`
	_, err := r.Pool.Exec(ctx, q, id, jd.CompanyID, jd.RecruiterID, jd.RawText, jd.FileRef, jd.Status, mustJSON(jd.Config), mustJSON(jd.Meta), now)
	if err != nil {
		return "", fmt.Errorf("op=jd.create: %w", err)
	}
	return id, nil
}

func (r *JDRepo) scanJD(row pgx.Row) (domain.JobDescription, error) {
	var jd domain.JobDescription
	var parsed, config, meta []byte
	if err := row.Scan(&jd.ID, &jd.CompanyID, &jd.RecruiterID, &jd.RawText, &jd.FileRef, &jd.Status,
		&parsed, &config, &meta,
		&jd.Stats.TotalInvited, &jd.Stats.InProgress, &jd.Stats.CompletedAssessments,
		&jd.AssessmentLink, &jd.SetIDs, &jd.SkillsOverride, &jd.Rubric, &jd.IsLocked, &jd.LockedAt,
		&jd.CreatedAt, &jd.UpdatedAt); err != nil {
		return domain.JobDescription{}, err
	}
	if len(parsed) > 0 {
		jd.Parsed = &domain.ParsedContent{}
		if err := fromJSON(parsed, jd.Parsed); err != nil {
			return domain.JobDescription{}, err
		}
	}
	if err := fromJSON(config, &jd.Config); err != nil {
		return domain.JobDescription{}, err
	}
	if err := fromJSON(meta, &jd.Meta); err != nil {
		return domain.JobDescription{}, err
	}
	return jd, nil
}

// Get loads a job description by id.
func (r *JDRepo) Get(ctx domain.Context, id string) (domain.JobDescription, error) {
	tracer := otel.Tracer("repo.jd")
	ctx, span := tracer.Start(ctx, "jd.Get")
	defer span.End()
	jd, err := r.scanJD(r.Pool.QueryRow(ctx, `SELECT `+jdColumns+` FROM job_descriptions WHERE id=$1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.JobDescription{}, fmt.Errorf("op=jd.get: %w", domain.ErrNotFound)
		}
		return domain.JobDescription{}, fmt.Errorf("op=jd.get: %w", err)
	}
	return jd, nil
}

// GetByLink loads a job description by its assessment link.
func (r *JDRepo) GetByLink(ctx domain.Context, link string) (domain.JobDescription, error) {
	tracer := otel.Tracer("repo.jd")
	ctx, span := tracer.Start(ctx, "jd.GetByLink")
	defer span.End()
	jd, err := r.scanJD(r.Pool.QueryRow(ctx, `SELECT `+jdColumns+` FROM job_descriptions WHERE assessment_link=$1`, link))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.JobDescription{}, fmt.Errorf("op=jd.get_by_link: %w", domain.ErrNotFound)
		}
		return domain.JobDescription{}, fmt.Errorf("op=jd.get_by_link: %w", err)
	}
	return jd, nil
}

// List returns a company's job descriptions, newest first.
func (r *JDRepo) List(ctx domain.Context, companyID string, limit, offset int) ([]domain.JobDescription, error) {
	tracer := otel.Tracer("repo.jd")
	ctx, span := tracer.Start(ctx, "jd.List")
	defer span.End()
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.Pool.Query(ctx, `SELECT `+jdColumns+` FROM job_descriptions WHERE company_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, companyID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("op=jd.list: %w", err)
	}
	defer rows.Close()
	var out []domain.JobDescription
	for rows.Next() {
		jd, err := r.scanJD(rows)
		if err != nil {
			return nil, fmt.Errorf("op=jd.list: %w", err)
		}
		out = append(out, jd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=jd.list: %w", err)
	}
	return out, nil
}

// UpdateStatus moves the status from→to; a stored status other than `from`
// yields ErrConflict, serializing concurrent lifecycle moves.
func (r *JDRepo) UpdateStatus(ctx domain.Context, id string, from, to domain.JDStatus) error {
	tracer := otel.Tracer("repo.jd")
	ctx, span := tracer.Start(ctx, "jd.UpdateStatus")
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `UPDATE job_descriptions SET status=$3, updated_at=$4 WHERE id=$1 AND status=$2`, id, from, to, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=jd.update_status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=jd.update_status: %s->%s not applied: %w", from, to, domain.ErrConflict)
	}
	return nil
}

// SetParsed writes the parse output, derived config, and provenance in one go.
func (r *JDRepo) SetParsed(ctx domain.Context, id string, parsed domain.ParsedContent, cfg domain.AssessmentConfig, meta domain.ParsingMeta) error {
	tracer := otel.Tracer("repo.jd")
	ctx, span := tracer.Start(ctx, "jd.SetParsed")
	defer span.End()
	q := `UPDATE job_descriptions SET parsed=$2, config=$3, meta=$4, updated_at=$5 WHERE id=$1`
	_, err := r.Pool.Exec(ctx, q, id, mustJSON(parsed), mustJSON(cfg), mustJSON(meta), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=jd.set_parsed: %w", err)
	}
	return nil
}

// UpdateConfig replaces the assessment configuration.
func (r *JDRepo) UpdateConfig(ctx domain.Context, id string, cfg domain.AssessmentConfig) error {
	tracer := otel.Tracer("repo.jd")
	ctx, span := tracer.Start(ctx, "jd.UpdateConfig")
	defer span.End()
	_, err := r.Pool.Exec(ctx, `UPDATE job_descriptions SET config=$2, updated_at=$3 WHERE id=$1`, id, mustJSON(cfg), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=jd.update_config: %w", err)
	}
	return nil
}

// UpdateSkills replaces the recruiter skills override.
func (r *JDRepo) UpdateSkills(ctx domain.Context, id string, skills []string) error {
	tracer := otel.Tracer("repo.jd")
	ctx, span := tracer.Start(ctx, "jd.UpdateSkills")
	defer span.End()
	_, err := r.Pool.Exec(ctx, `UPDATE job_descriptions SET skills_override=$2, updated_at=$3 WHERE id=$1`, id, skills, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=jd.update_skills: %w", err)
	}
	return nil
}

// UpdateRubric replaces the evaluation rubric text.
func (r *JDRepo) UpdateRubric(ctx domain.Context, id string, rubric string) error {
	tracer := otel.Tracer("repo.jd")
	ctx, span := tracer.Start(ctx, "jd.UpdateRubric")
	defer span.End()
	_, err := r.Pool.Exec(ctx, `UPDATE job_descriptions SET rubric=$2, updated_at=$3 WHERE id=$1`, id, rubric, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=jd.update_rubric: %w", err)
	}
	return nil
}

// SetLocked toggles the recruiter lock.
func (r *JDRepo) SetLocked(ctx domain.Context, id string, locked bool, at time.Time) error {
	tracer := otel.Tracer("repo.jd")
	ctx, span := tracer.Start(ctx, "jd.SetLocked")
	defer span.End()
	var lockedAt *time.Time
	if locked {
		lockedAt = &at
	}
	_, err := r.Pool.Exec(ctx, `UPDATE job_descriptions SET is_locked=$2, locked_at=$3, updated_at=$4 WHERE id=$1`, id, locked, lockedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=jd.set_locked: %w", err)
	}
	return nil
}

// SetLink writes the assessment link; a unique-index collision maps to
// ErrConflict so the caller can mint another.
func (r *JDRepo) SetLink(ctx domain.Context, id, link string) error {
	tracer := otel.Tracer("repo.jd")
	ctx, span := tracer.Start(ctx, "jd.SetLink")
	defer span.End()
	_, err := r.Pool.Exec(ctx, `UPDATE job_descriptions SET assessment_link=$2, updated_at=$3 WHERE id=$1`, id, link, time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("op=jd.set_link: link taken: %w", domain.ErrConflict)
		}
		return fmt.Errorf("op=jd.set_link: %w", err)
	}
	return nil
}

// SetSetIDs stores the ordered generated-set id list.
func (r *JDRepo) SetSetIDs(ctx domain.Context, id string, setIDs []string) error {
	tracer := otel.Tracer("repo.jd")
	ctx, span := tracer.Start(ctx, "jd.SetSetIDs")
	defer span.End()
	_, err := r.Pool.Exec(ctx, `UPDATE job_descriptions SET set_ids=$2, updated_at=$3 WHERE id=$1`, id, setIDs, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=jd.set_set_ids: %w", err)
	}
	return nil
}

// AppendParseError appends a message to the parse-error list in meta.
func (r *JDRepo) AppendParseError(ctx domain.Context, id, msg string) error {
	tracer := otel.Tracer("repo.jd")
	ctx, span := tracer.Start(ctx, "jd.AppendParseError")
	defer span.End()
	q := `UPDATE job_descriptions SET meta = jsonb_set(meta, '{parseErrors}', COALESCE(meta->'parseErrors','[]'::jsonb) || to_jsonb($2::text)), updated_at=$3 WHERE id=$1`
	_, err := r.Pool.Exec(ctx, q, id, msg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=jd.append_parse_error: %w", err)
	}
	return nil
}

// statColumns whitelists stat names for IncrementStat.
var statColumns = map[string]string{
	"totalInvited":         "total_invited",
	"inProgress":           "in_progress",
	"completedAssessments": "completed_assessments",
}

// IncrementStat atomically bumps one denormalized counter.
func (r *JDRepo) IncrementStat(ctx domain.Context, id, stat string, delta int) error {
	tracer := otel.Tracer("repo.jd")
	ctx, span := tracer.Start(ctx, "jd.IncrementStat")
	defer span.End()
	col, ok := statColumns[stat]
	if !ok {
		return fmt.Errorf("op=jd.increment_stat: unknown stat %q: %w", stat, domain.ErrValidation)
	}
	q := fmt.Sprintf(`UPDATE job_descriptions SET %s = GREATEST(%s + $2, 0), updated_at=$3 WHERE id=$1`, col, col)
	_, err := r.Pool.Exec(ctx, q, id, delta, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=jd.increment_stat: %w", err)
	}
	return nil
}

// Delete removes a job description; dependents cascade.
func (r *JDRepo) Delete(ctx domain.Context, id string) error {
	tracer := otel.Tracer("repo.jd")
	ctx, span := tracer.Start(ctx, "jd.Delete")
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `DELETE FROM job_descriptions WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("op=jd.delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=jd.delete: %w", domain.ErrNotFound)
	}
	return nil
}
