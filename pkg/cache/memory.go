package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value   string
	count   int64
	expires time.Time
}

// Memory is a process-local stand-in for Client, used when REDIS_URL is empty
// and in tests.
type Memory struct {
	mu   sync.Mutex
	data map[string]*entry
	now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]*entry), now: time.Now}
}

func (m *Memory) live(key string) *entry {
	e, ok := m.data[key]
	if !ok {
		return nil
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.data, key)
		return nil
	}
	return e
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.live(key); e != nil {
		return e.value, nil
	}
	return "", nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &entry{value: value}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.data[key] = e
	return nil
}

func (m *Memory) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.live(key)
	if e == nil {
		e = &entry{expires: m.now().Add(window)}
		m.data[key] = e
	}
	e.count++
	return e.count, nil
}

func (m *Memory) Close() error { return nil }
