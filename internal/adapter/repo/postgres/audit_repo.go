package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
)

// AuditRepo records admin actions, append-only.
type AuditRepo struct{ Pool PgxPool }

// NewAuditRepo constructs an AuditRepo with the given pool.
func NewAuditRepo(p PgxPool) *AuditRepo { return &AuditRepo{Pool: p} }

// Append inserts one audit record.
func (r *AuditRepo) Append(ctx domain.Context, actor, action, subject string, detail map[string]any) error {
	tracer := otel.Tracer("repo.audit")
	ctx, span := tracer.Start(ctx, "audit.Append")
	defer span.End()
	var d []byte
	if detail != nil {
		d = mustJSON(detail)
	}
	q := `INSERT INTO audit_log (id, actor, action, subject, detail, created_at) VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := r.Pool.Exec(ctx, q, uuid.New().String(), actor, action, subject, d, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=audit.append: %w", err)
	}
	return nil
}

// List returns audit records newest first.
func (r *AuditRepo) List(ctx domain.Context, limit, offset int) ([]domain.AuditEntry, error) {
	tracer := otel.Tracer("repo.audit")
	ctx, span := tracer.Start(ctx, "audit.List")
	defer span.End()
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT id, actor, action, subject, detail, created_at FROM audit_log ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.Pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("op=audit.list: %w", err)
	}
	defer rows.Close()
	var out []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var detail []byte
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.Subject, &detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=audit.list: %w", err)
		}
		if err := fromJSON(detail, &e.Detail); err != nil {
			return nil, fmt.Errorf("op=audit.list: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=audit.list: %w", err)
	}
	return out, nil
}
