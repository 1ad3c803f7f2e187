package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/diagnosis/gatepass/services/passes/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type VisitorRepository interface {
	Insert(ctx context.Context, v *domain.NewVisitor) (*domain.Visitor, error)
	Get(ctx context.Context, id string) (*domain.Visitor, error)
	// FindByContact matches email or phone case-insensitively, newest first.
	// exact=false performs a substring match.
	FindByContact(ctx context.Context, field domain.ContactField, value string, exact bool, limit int) ([]domain.Visitor, error)
	UpdateStatus(ctx context.Context, id string, status domain.VisitorStatus) (prev domain.VisitorStatus, v *domain.Visitor, err error)
	List(ctx context.Context, filter domain.ListFilter, limit, offset int) ([]domain.Visitor, error)
}

type visitorRepository struct {
	pool *pgxpool.Pool
}

func NewVisitorRepository(pool *pgxpool.Pool) VisitorRepository {
	return &visitorRepository{pool: pool}
}

const visitorCols = `id::text, name, email, phone, register_number, purpose,
visitor_category, qr_color, event_id::text, event_name,
date_of_visit_from, date_of_visit_to, status, issued_by, created_at, updated_at`

func scanVisitor(row pgx.Row) (*domain.Visitor, error) {
	var v domain.Visitor
	err := row.Scan(
		&v.ID, &v.Name, &v.Email, &v.Phone, &v.RegisterNumber, &v.Purpose,
		&v.Category, &v.QRColor, &v.EventID, &v.EventName,
		&v.Window.From, &v.Window.To, &v.Status, &v.IssuedBy, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStore, err)
}

func (r *visitorRepository) Insert(ctx context.Context, nv *domain.NewVisitor) (*domain.Visitor, error) {
	const q = `INSERT INTO visitors (
		name, email, phone, register_number, purpose,
		visitor_category, qr_color, event_id, event_name,
		date_of_visit_from, date_of_visit_to, status, issued_by
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8::uuid,$9,$10,$11,$12,$13)
	RETURNING ` + visitorCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	v, err := scanVisitor(r.pool.QueryRow(ctx, q,
		nv.Name, nv.Email, nv.Phone, nv.RegisterNumber, nv.Purpose,
		nv.Category, nv.QRColor, nv.EventID, nv.EventName,
		nv.Window.From, nv.Window.To, nv.Status, nv.IssuedBy,
	))
	if err != nil {
		return nil, storeErr("insert visitor", err)
	}
	return v, nil
}

func (r *visitorRepository) Get(ctx context.Context, id string) (*domain.Visitor, error) {
	const q = `SELECT ` + visitorCols + ` FROM visitors WHERE id=$1::uuid`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	v, err := scanVisitor(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get visitor", err)
	}
	return v, nil
}

func (r *visitorRepository) FindByContact(ctx context.Context, field domain.ContactField, value string, exact bool, limit int) ([]domain.Visitor, error) {
	var column string
	switch field {
	case domain.ByEmail:
		column = "email"
	case domain.ByPhone:
		column = "phone"
	default:
		return nil, fmt.Errorf("unsupported contact field %q", field)
	}
	if limit <= 0 {
		limit = 1
	}

	q := `SELECT ` + visitorCols + ` FROM visitors WHERE `
	arg := value
	if exact {
		q += `lower(` + column + `) = lower($1)`
	} else {
		q += column + ` ILIKE $1`
		arg = "%" + escapeLike(value) + "%"
	}
	q += ` ORDER BY created_at DESC LIMIT $2`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return r.query(ctx, "find visitor by contact", q, arg, limit)
}

func (r *visitorRepository) UpdateStatus(ctx context.Context, id string, status domain.VisitorStatus) (domain.VisitorStatus, *domain.Visitor, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", nil, storeErr("begin status update", err)
	}
	defer tx.Rollback(ctx)

	var prev domain.VisitorStatus
	err = tx.QueryRow(ctx, `SELECT status FROM visitors WHERE id=$1::uuid FOR UPDATE`, id).Scan(&prev)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, storeErr("lock visitor", err)
	}

	const q = `UPDATE visitors SET status=$2, updated_at=now() WHERE id=$1::uuid RETURNING ` + visitorCols
	v, err := scanVisitor(tx.QueryRow(ctx, q, id, status))
	if err != nil {
		return "", nil, storeErr("update visitor status", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", nil, storeErr("commit status update", err)
	}
	return prev, v, nil
}

func (r *visitorRepository) List(ctx context.Context, filter domain.ListFilter, limit, offset int) ([]domain.Visitor, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	q := `SELECT ` + visitorCols + ` FROM visitors WHERE 1=1`
	args := []any{}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		q += fmt.Sprintf(` AND status=$%d`, len(args))
	}
	if filter.EventName != "" {
		args = append(args, "%"+escapeLike(filter.EventName)+"%")
		q += fmt.Sprintf(` AND event_name ILIKE $%d`, len(args))
	}
	args = append(args, limit, offset)
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return r.query(ctx, "list visitors", q, args...)
}

func (r *visitorRepository) query(ctx context.Context, op, q string, args ...any) ([]domain.Visitor, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, storeErr(op, err)
	}
	defer rows.Close()

	var visitors []domain.Visitor
	for rows.Next() {
		v, err := scanVisitor(rows)
		if err != nil {
			return nil, storeErr(op, err)
		}
		visitors = append(visitors, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, err)
	}
	return visitors, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var _ VisitorRepository = (*visitorRepository)(nil)
