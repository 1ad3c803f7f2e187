package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/diagnosis/gatepass/pkg/logger"
	"github.com/nats-io/nats.go"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

// Decode unmarshals the message payload into v.
func (m *Message) Decode(v any) error {
	return json.Unmarshal(m.Data, v)
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url, name string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "bytes", len(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(toMessage(msg))
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(toMessage(msg))
	})
	return err
}

func (n *NATSEventBus) Close() error {
	return n.conn.Drain()
}

func toMessage(msg *nats.Msg) *Message {
	now := time.Now()
	return &Message{
		Subject:   msg.Subject,
		Data:      msg.Data,
		Timestamp: now,
		ID:        fmt.Sprintf("%d", now.UnixNano()),
	}
}

// Subjects
const (
	PassIssued        = "pass.issued"
	PassStatusChanged = "pass.status_changed"
	PassScanned       = "pass.scanned"

	EventRequestSubmitted = "event_request.submitted"
	EventRequestDecided   = "event_request.decided"

	StaffUserCreated = "staff.user_created"
)

// Event payloads
type PassIssuedEvent struct {
	VisitorID string    `json:"visitor_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Category  string    `json:"category"`
	EventName string    `json:"event_name"`
	Status    string    `json:"status"`
	IssuedBy  string    `json:"issued_by,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
}

type PassStatusChangedEvent struct {
	VisitorID string    `json:"visitor_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ChangedBy string    `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
}

type PassScannedEvent struct {
	VisitorID string    `json:"visitor_id"`
	Guard     string    `json:"guard"`
	Granted   bool      `json:"granted"`
	Reason    string    `json:"reason,omitempty"`
	ScannedAt time.Time `json:"scanned_at"`
}

type EventRequestSubmittedEvent struct {
	RequestID   string    `json:"request_id"`
	OrganiserID int64     `json:"organiser_id"`
	EventName   string    `json:"event_name"`
	Department  string    `json:"department"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type EventRequestDecidedEvent struct {
	RequestID       string    `json:"request_id"`
	EventName       string    `json:"event_name"`
	Status          string    `json:"status"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	DecidedBy       string    `json:"decided_by"`
	DecidedAt       time.Time `json:"decided_at"`
}

type StaffUserCreatedEvent struct {
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}
