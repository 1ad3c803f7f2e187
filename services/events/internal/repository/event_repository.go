package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diagnosis/gatepass/services/events/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EventRepository interface {
	Create(ctx context.Context, organiserID int64, req *domain.SubmitRequest) (*domain.EventRequest, error)
	GetByID(ctx context.Context, id string) (*domain.EventRequest, error)
	ListByOrganiser(ctx context.Context, organiserID int64, limit, offset int) ([]domain.EventRequest, error)
	List(ctx context.Context, status *domain.RequestStatus, limit, offset int) ([]domain.EventRequest, error)
	// Decide moves a pending request to status. It returns nil, nil when the
	// request does not exist or is no longer pending.
	Decide(ctx context.Context, id string, status domain.RequestStatus, reason *string, decidedBy string) (*domain.EventRequest, error)
	ListApproved(ctx context.Context, onOrAfter time.Time) ([]domain.EventRequest, error)
}

type eventRepository struct {
	pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) EventRepository {
	return &eventRepository{pool: pool}
}

const eventCols = `id::text, organiser_id, department, event_name, event_description,
date_from, date_to, expected_students, max_capacity, status,
rejection_reason, approved_by, decided_at, created_at, updated_at`

func scanEvent(row pgx.Row) (*domain.EventRequest, error) {
	var e domain.EventRequest
	err := row.Scan(
		&e.ID, &e.OrganiserID, &e.Department, &e.EventName, &e.Description,
		&e.DateFrom.Time, &e.DateTo.Time, &e.ExpectedStudents, &e.MaxCapacity, &e.Status,
		&e.RejectionReason, &e.DecidedBy, &e.DecidedAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func wrap(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStore, err)
}

func (r *eventRepository) Create(ctx context.Context, organiserID int64, req *domain.SubmitRequest) (*domain.EventRequest, error) {
	const q = `INSERT INTO event_requests (
		organiser_id, department, event_name, event_description,
		date_from, date_to, expected_students, max_capacity, status
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'pending')
	RETURNING ` + eventCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	e, err := scanEvent(r.pool.QueryRow(ctx, q,
		organiserID, req.Department, req.EventName, req.Description,
		req.DateFrom.Time, req.DateTo.Time, req.ExpectedStudents, req.MaxCapacity,
	))
	if err != nil {
		return nil, wrap("create event request", err)
	}
	return e, nil
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (*domain.EventRequest, error) {
	const q = `SELECT ` + eventCols + ` FROM event_requests WHERE id=$1::uuid`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	e, err := scanEvent(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get event request", err)
	}
	return e, nil
}

func (r *eventRepository) ListByOrganiser(ctx context.Context, organiserID int64, limit, offset int) ([]domain.EventRequest, error) {
	const q = `SELECT ` + eventCols + ` FROM event_requests WHERE organiser_id=$1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	return r.list(ctx, "list organiser event requests", q, organiserID, limit, offset)
}

func (r *eventRepository) List(ctx context.Context, status *domain.RequestStatus, limit, offset int) ([]domain.EventRequest, error) {
	if status != nil {
		const q = `SELECT ` + eventCols + ` FROM event_requests WHERE status=$1
			ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		return r.list(ctx, "list event requests", q, *status, limit, offset)
	}
	const q = `SELECT ` + eventCols + ` FROM event_requests
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	return r.list(ctx, "list event requests", q, limit, offset)
}

func (r *eventRepository) Decide(ctx context.Context, id string, status domain.RequestStatus, reason *string, decidedBy string) (*domain.EventRequest, error) {
	const q = `UPDATE event_requests
		SET status=$2, rejection_reason=$3, approved_by=$4, decided_at=now(), updated_at=now()
		WHERE id=$1::uuid AND status='pending'
		RETURNING ` + eventCols
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	e, err := scanEvent(r.pool.QueryRow(ctx, q, id, status, reason, decidedBy))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("decide event request", err)
	}
	return e, nil
}

func (r *eventRepository) ListApproved(ctx context.Context, onOrAfter time.Time) ([]domain.EventRequest, error) {
	const q = `SELECT ` + eventCols + ` FROM event_requests
		WHERE status='approved' AND date_to >= $1
		ORDER BY date_from ASC LIMIT 200`
	return r.list(ctx, "list approved events", q, onOrAfter)
}

func (r *eventRepository) list(ctx context.Context, op, q string, args ...any) ([]domain.EventRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer rows.Close()

	var out []domain.EventRequest
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, wrap(op, err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(op, err)
	}
	return out, nil
}

var _ EventRepository = (*eventRepository)(nil)
