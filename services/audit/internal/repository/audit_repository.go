package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/diagnosis/gatepass/services/audit/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AuditRepository interface {
	Insert(ctx context.Context, e *domain.Entry) error
	List(ctx context.Context, f domain.Filter, limit, offset int) ([]domain.Entry, error)
}

type auditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

const auditCols = `id, subject, subject_id, actor, summary, payload, occurred_at`

func (r *auditRepository) Insert(ctx context.Context, e *domain.Entry) error {
	const q = `INSERT INTO audit_log (subject, subject_id, actor, summary, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := r.pool.QueryRow(ctx, q, e.Subject, e.SubjectID, e.Actor, e.Summary, []byte(e.Payload), e.OccurredAt).Scan(&e.ID); err != nil {
		return fmt.Errorf("insert audit entry: %w: %w", domain.ErrStore, err)
	}
	return nil
}

func (r *auditRepository) List(ctx context.Context, f domain.Filter, limit, offset int) ([]domain.Entry, error) {
	q := `SELECT ` + auditCols + ` FROM audit_log WHERE 1=1`
	var args []any
	if f.Subject != "" {
		args = append(args, f.Subject)
		q += ` AND subject = $` + strconv.Itoa(len(args))
	}
	if f.SubjectID != "" {
		args = append(args, f.SubjectID)
		q += ` AND subject_id = $` + strconv.Itoa(len(args))
	}
	args = append(args, limit, offset)
	q += fmt.Sprintf(` ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w: %w", domain.ErrStore, err)
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		var (
			e       domain.Entry
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.Subject, &e.SubjectID, &e.Actor, &e.Summary, &payload, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w: %w", domain.ErrStore, err)
		}
		e.Payload = payload
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit entries: %w: %w", domain.ErrStore, err)
	}
	return entries, nil
}

var _ AuditRepository = (*auditRepository)(nil)
