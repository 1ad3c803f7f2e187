package repository

import (
	"context"
	"errors"
	"time"

	"github.com/diagnosis/gatepass/services/passes/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventLookup reads event requests owned by the events service. Both
// services share one database.
type EventLookup interface {
	GetEvent(ctx context.Context, id string) (*domain.EventSummary, error)
}

type eventLookup struct {
	pool *pgxpool.Pool
}

func NewEventLookup(pool *pgxpool.Pool) EventLookup {
	return &eventLookup{pool: pool}
}

func (r *eventLookup) GetEvent(ctx context.Context, id string) (*domain.EventSummary, error) {
	const q = `SELECT id::text, event_name, status, date_from, date_to
		FROM event_requests WHERE id=$1::uuid`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var e domain.EventSummary
	err := r.pool.QueryRow(ctx, q, id).Scan(&e.ID, &e.Name, &e.Status, &e.Window.From, &e.Window.To)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get event", err)
	}
	return &e, nil
}

var _ EventLookup = (*eventLookup)(nil)
