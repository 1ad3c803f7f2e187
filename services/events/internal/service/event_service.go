package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/diagnosis/gatepass/pkg/auth"
	"github.com/diagnosis/gatepass/pkg/config"
	"github.com/diagnosis/gatepass/pkg/events"
	"github.com/diagnosis/gatepass/pkg/logger"
	"github.com/diagnosis/gatepass/services/events/internal/domain"
	"github.com/diagnosis/gatepass/services/events/internal/repository"
	"github.com/google/uuid"
)

type EventService interface {
	Submit(ctx context.Context, session *auth.Session, req domain.SubmitRequest) (*domain.EventRequest, error)
	ListMine(ctx context.Context, session *auth.Session, limit, offset int) ([]domain.EventRequest, error)
	List(ctx context.Context, session *auth.Session, status *domain.RequestStatus, limit, offset int) ([]domain.EventRequest, error)
	Decide(ctx context.Context, session *auth.Session, id string, d domain.Decision) (*domain.EventRequest, error)
	ListApproved(ctx context.Context) ([]domain.EventRequest, error)
}

type eventService struct {
	eventRepo repository.EventRepository
	eventBus  events.EventBus
	config    *config.Config
	now       func() time.Time
}

func NewEventService(eventRepo repository.EventRepository, eventBus events.EventBus, config *config.Config) EventService {
	return &eventService{
		eventRepo: eventRepo,
		eventBus:  eventBus,
		config:    config,
		now:       time.Now,
	}
}

func invalid(field, msg string) error {
	return &domain.ValidationError{Field: field, Message: msg}
}

func (s *eventService) Submit(ctx context.Context, session *auth.Session, req domain.SubmitRequest) (*domain.EventRequest, error) {
	if !session.Is(auth.RoleOrganiser) {
		return nil, domain.ErrForbidden
	}

	req.Department = strings.TrimSpace(req.Department)
	req.EventName = strings.TrimSpace(req.EventName)
	req.Description = strings.TrimSpace(req.Description)

	switch {
	case req.Department == "":
		return nil, invalid("department", "is required")
	case req.EventName == "":
		return nil, invalid("event_name", "is required")
	case req.DateFrom.IsZero():
		return nil, invalid("date_from", "is required")
	case req.DateTo.IsZero():
		return nil, invalid("date_to", "is required")
	case req.DateTo.Before(req.DateFrom.Time):
		return nil, invalid("date_to", "must not be before date_from")
	case req.MaxCapacity <= 0:
		return nil, invalid("max_capacity", "must be positive")
	case req.ExpectedStudents < 0:
		return nil, invalid("expected_students", "must not be negative")
	case req.ExpectedStudents > req.MaxCapacity:
		return nil, invalid("expected_students", "must not exceed max_capacity")
	}

	e, err := s.eventRepo.Create(ctx, session.UserID, &req)
	if err != nil {
		return nil, fmt.Errorf("failed to create event request: %w", err)
	}

	event := events.EventRequestSubmittedEvent{
		RequestID:   e.ID,
		OrganiserID: e.OrganiserID,
		EventName:   e.EventName,
		Department:  e.Department,
		SubmittedAt: e.CreatedAt,
	}
	if err := s.eventBus.Publish(ctx, events.EventRequestSubmitted, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish event request submitted", "error", err, "request_id", e.ID)
	}
	return e, nil
}

func (s *eventService) ListMine(ctx context.Context, session *auth.Session, limit, offset int) ([]domain.EventRequest, error) {
	if !session.Is(auth.RoleOrganiser) {
		return nil, domain.ErrForbidden
	}
	return s.eventRepo.ListByOrganiser(ctx, session.UserID, limit, offset)
}

func (s *eventService) List(ctx context.Context, session *auth.Session, status *domain.RequestStatus, limit, offset int) ([]domain.EventRequest, error) {
	if !session.Is(auth.RoleCSO) {
		return nil, domain.ErrForbidden
	}
	return s.eventRepo.List(ctx, status, limit, offset)
}

func (s *eventService) Decide(ctx context.Context, session *auth.Session, id string, d domain.Decision) (*domain.EventRequest, error) {
	if !session.Is(auth.RoleCSO) {
		return nil, domain.ErrForbidden
	}

	status, ok := domain.ParseRequestStatus(strings.ToLower(strings.TrimSpace(d.Status)))
	if !ok || status == domain.RequestPending {
		return nil, invalid("status", "must be approved or rejected")
	}
	var reason *string
	if status == domain.RequestRejected {
		r := strings.TrimSpace(d.RejectionReason)
		if r == "" {
			return nil, invalid("rejection_reason", "is required when rejecting")
		}
		reason = &r
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}

	existing, err := s.eventRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load event request: %w", err)
	}
	if existing == nil {
		return nil, domain.ErrNotFound
	}
	if existing.Status != domain.RequestPending {
		return nil, domain.ErrAlreadyFinal
	}

	updated, err := s.eventRepo.Decide(ctx, id, status, reason, session.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to decide event request: %w", err)
	}
	if updated == nil {
		// decided concurrently
		return nil, domain.ErrAlreadyFinal
	}

	event := events.EventRequestDecidedEvent{
		RequestID: updated.ID,
		EventName: updated.EventName,
		Status:    string(updated.Status),
		DecidedBy: session.Username,
		DecidedAt: s.now(),
	}
	if reason != nil {
		event.RejectionReason = *reason
	}
	if err := s.eventBus.Publish(ctx, events.EventRequestDecided, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish event request decided", "error", err, "request_id", updated.ID)
	}
	logger.InfoContext(ctx, "Event request decided", "request_id", updated.ID, "status", updated.Status)
	return updated, nil
}

// ListApproved returns approved events that have not ended yet in the pass
// time zone.
func (s *eventService) ListApproved(ctx context.Context) ([]domain.EventRequest, error) {
	y, m, d := s.now().In(s.config.Pass.Location()).Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return s.eventRepo.ListApproved(ctx, today)
}
