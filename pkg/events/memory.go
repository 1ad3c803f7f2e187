package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryBus is an in-process EventBus. Services fall back to it when NATS_URL
// is empty, and tests use it to assert on published events.
type MemoryBus struct {
	mu        sync.Mutex
	published []Message
	handlers  map[string][]func(*Message)
	failWith  error
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[string][]func(*Message))}
}

// FailWith makes every subsequent Publish return err.
func (b *MemoryBus) FailWith(err error) {
	b.mu.Lock()
	b.failWith = err
	b.mu.Unlock()
}

func (b *MemoryBus) Publish(_ context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	b.mu.Lock()
	if b.failWith != nil {
		err := b.failWith
		b.mu.Unlock()
		return err
	}
	now := time.Now()
	msg := Message{Subject: subject, Data: payload, Timestamp: now, ID: fmt.Sprintf("%d", now.UnixNano())}
	b.published = append(b.published, msg)
	hs := append([]func(*Message){}, b.handlers[subject]...)
	b.mu.Unlock()

	for _, h := range hs {
		m := msg
		h(&m)
	}
	return nil
}

func (b *MemoryBus) Subscribe(subject string, handler func(msg *Message)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[subject] = append(b.handlers[subject], handler)
	return nil
}

func (b *MemoryBus) QueueSubscribe(subject, _ string, handler func(msg *Message)) error {
	return b.Subscribe(subject, handler)
}

func (b *MemoryBus) Close() error { return nil }

// Published returns the messages sent on subject, oldest first.
func (b *MemoryBus) Published(subject string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Message
	for _, m := range b.published {
		if m.Subject == subject {
			out = append(out, m)
		}
	}
	return out
}

var (
	_ EventBus = (*NATSEventBus)(nil)
	_ EventBus = (*MemoryBus)(nil)
)
