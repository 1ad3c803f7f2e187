package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/diagnosis/gatepass/pkg/auth"
	"github.com/diagnosis/gatepass/pkg/events"
	"github.com/diagnosis/gatepass/pkg/logger"
	"github.com/diagnosis/gatepass/services/audit/internal/domain"
	"github.com/diagnosis/gatepass/services/audit/internal/repository"
)

const queueGroup = "audit"

type AuditService interface {
	Start() error
	List(ctx context.Context, session *auth.Session, f domain.Filter, limit, offset int) ([]domain.Entry, error)
}

type auditService struct {
	repo       repository.AuditRepository
	subscriber events.Subscriber
}

func NewAuditService(repo repository.AuditRepository, subscriber events.Subscriber) AuditService {
	return &auditService{repo: repo, subscriber: subscriber}
}

// describe extracts the subject id, actor, summary and event time for a
// message. ok is false for payloads that cannot be decoded.
type describe func(msg *events.Message) (e domain.Entry, ok bool)

var subjects = map[string]describe{
	events.PassIssued: func(msg *events.Message) (domain.Entry, bool) {
		var p events.PassIssuedEvent
		if msg.Decode(&p) != nil {
			return domain.Entry{}, false
		}
		return domain.Entry{
			SubjectID:  p.VisitorID,
			Actor:      p.IssuedBy,
			Summary:    fmt.Sprintf("%s pass issued to %s for %s (%s)", p.Category, p.Name, p.EventName, p.Status),
			OccurredAt: p.IssuedAt,
		}, true
	},
	events.PassStatusChanged: func(msg *events.Message) (domain.Entry, bool) {
		var p events.PassStatusChangedEvent
		if msg.Decode(&p) != nil {
			return domain.Entry{}, false
		}
		return domain.Entry{
			SubjectID:  p.VisitorID,
			Actor:      p.ChangedBy,
			Summary:    fmt.Sprintf("status %s -> %s", p.From, p.To),
			OccurredAt: p.ChangedAt,
		}, true
	},
	events.PassScanned: func(msg *events.Message) (domain.Entry, bool) {
		var p events.PassScannedEvent
		if msg.Decode(&p) != nil {
			return domain.Entry{}, false
		}
		summary := "entry granted"
		if !p.Granted {
			summary = "entry denied: " + p.Reason
		}
		return domain.Entry{SubjectID: p.VisitorID, Actor: p.Guard, Summary: summary, OccurredAt: p.ScannedAt}, true
	},
	events.EventRequestSubmitted: func(msg *events.Message) (domain.Entry, bool) {
		var p events.EventRequestSubmittedEvent
		if msg.Decode(&p) != nil {
			return domain.Entry{}, false
		}
		return domain.Entry{
			SubjectID:  p.RequestID,
			Actor:      strconv.FormatInt(p.OrganiserID, 10),
			Summary:    fmt.Sprintf("event request %q submitted by %s", p.EventName, p.Department),
			OccurredAt: p.SubmittedAt,
		}, true
	},
	events.EventRequestDecided: func(msg *events.Message) (domain.Entry, bool) {
		var p events.EventRequestDecidedEvent
		if msg.Decode(&p) != nil {
			return domain.Entry{}, false
		}
		summary := fmt.Sprintf("event request %q %s", p.EventName, p.Status)
		if p.RejectionReason != "" {
			summary += ": " + p.RejectionReason
		}
		return domain.Entry{SubjectID: p.RequestID, Actor: p.DecidedBy, Summary: summary, OccurredAt: p.DecidedAt}, true
	},
	events.StaffUserCreated: func(msg *events.Message) (domain.Entry, bool) {
		var p events.StaffUserCreatedEvent
		if msg.Decode(&p) != nil {
			return domain.Entry{}, false
		}
		return domain.Entry{
			SubjectID:  strconv.FormatInt(p.UserID, 10),
			Actor:      p.CreatedBy,
			Summary:    fmt.Sprintf("%s account %s created", p.Role, p.Username),
			OccurredAt: p.CreatedAt,
		}, true
	},
}

// Start subscribes to every recorded subject in the audit queue group, so
// replicas share the stream instead of duplicating rows.
func (s *auditService) Start() error {
	for subject, fn := range subjects {
		if err := s.subscriber.QueueSubscribe(subject, queueGroup, s.handler(fn)); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
	}
	return nil
}

func (s *auditService) handler(fn describe) func(msg *events.Message) {
	return func(msg *events.Message) {
		ctx := context.Background()
		entry, ok := fn(msg)
		if !ok {
			logger.WarnContext(ctx, "Dropping undecodable event", "subject", msg.Subject, "id", msg.ID)
			return
		}
		entry.Subject = msg.Subject
		entry.Payload = append([]byte(nil), msg.Data...)
		if entry.OccurredAt.IsZero() {
			entry.OccurredAt = msg.Timestamp
		}
		if entry.OccurredAt.IsZero() {
			entry.OccurredAt = time.Now()
		}

		if err := s.repo.Insert(ctx, &entry); err != nil {
			logger.ErrorContext(ctx, "Failed to record audit entry", "error", err, "subject", msg.Subject)
			return
		}
		logger.DebugContext(ctx, "Audit entry recorded", "subject", msg.Subject, "subject_id", entry.SubjectID)
	}
}

func (s *auditService) List(ctx context.Context, session *auth.Session, f domain.Filter, limit, offset int) ([]domain.Entry, error) {
	if !session.Is(auth.RoleCSO) {
		return nil, domain.ErrForbidden
	}
	entries, err := s.repo.List(ctx, f, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}
