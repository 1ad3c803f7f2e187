package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/diagnosis/gatepass/services/passes/internal/domain"
	"github.com/google/uuid"
)

// MemoryVisitors is an in-process VisitorRepository and EventLookup used by
// tests. Fail, when set, is returned from every call.
type MemoryVisitors struct {
	mu       sync.Mutex
	visitors map[string]*domain.Visitor
	events   map[string]*domain.EventSummary
	seq      int64
	Fail     error
}

func NewMemoryVisitors() *MemoryVisitors {
	return &MemoryVisitors{
		visitors: make(map[string]*domain.Visitor),
		events:   make(map[string]*domain.EventSummary),
	}
}

func (m *MemoryVisitors) PutEvent(e domain.EventSummary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.ID] = &e
}

func (m *MemoryVisitors) failure(op string) error {
	if m.Fail != nil {
		return storeErr(op, m.Fail)
	}
	return nil
}

func (m *MemoryVisitors) Insert(_ context.Context, nv *domain.NewVisitor) (*domain.Visitor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("insert visitor"); err != nil {
		return nil, err
	}

	m.seq++
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(m.seq) * time.Second)
	v := &domain.Visitor{
		ID:             uuid.NewString(),
		Name:           nv.Name,
		Email:          nv.Email,
		Phone:          nv.Phone,
		RegisterNumber: nv.RegisterNumber,
		Purpose:        nv.Purpose,
		Category:       nv.Category,
		QRColor:        nv.QRColor,
		EventID:        nv.EventID,
		EventName:      nv.EventName,
		Window:         nv.Window,
		Status:         nv.Status,
		IssuedBy:       nv.IssuedBy,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
	m.visitors[v.ID] = v
	out := *v
	return &out, nil
}

func (m *MemoryVisitors) Get(_ context.Context, id string) (*domain.Visitor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("get visitor"); err != nil {
		return nil, err
	}
	v, ok := m.visitors[id]
	if !ok {
		return nil, nil
	}
	out := *v
	return &out, nil
}

func (m *MemoryVisitors) FindByContact(_ context.Context, field domain.ContactField, value string, exact bool, limit int) ([]domain.Visitor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("find visitor by contact"); err != nil {
		return nil, err
	}

	needle := strings.ToLower(value)
	var out []domain.Visitor
	for _, v := range m.visitors {
		var hay string
		switch field {
		case domain.ByEmail:
			hay = strings.ToLower(v.Email)
		case domain.ByPhone:
			hay = strings.ToLower(v.Phone)
		default:
			return nil, fmt.Errorf("unsupported contact field %q", field)
		}
		if (exact && hay == needle) || (!exact && strings.Contains(hay, needle)) {
			out = append(out, *v)
		}
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryVisitors) UpdateStatus(_ context.Context, id string, status domain.VisitorStatus) (domain.VisitorStatus, *domain.Visitor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("update visitor status"); err != nil {
		return "", nil, err
	}
	v, ok := m.visitors[id]
	if !ok {
		return "", nil, nil
	}
	prev := v.Status
	v.Status = status
	v.UpdatedAt = v.UpdatedAt.Add(time.Minute)
	out := *v
	return prev, &out, nil
}

func (m *MemoryVisitors) List(_ context.Context, filter domain.ListFilter, limit, offset int) ([]domain.Visitor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("list visitors"); err != nil {
		return nil, err
	}
	var out []domain.Visitor
	for _, v := range m.visitors {
		if filter.Status != nil && v.Status != *filter.Status {
			continue
		}
		if filter.EventName != "" && !strings.Contains(strings.ToLower(v.EventName), strings.ToLower(filter.EventName)) {
			continue
		}
		out = append(out, *v)
	}
	sortNewestFirst(out)
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryVisitors) GetEvent(_ context.Context, id string) (*domain.EventSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("get event"); err != nil {
		return nil, err
	}
	e, ok := m.events[id]
	if !ok {
		return nil, nil
	}
	out := *e
	return &out, nil
}

func sortNewestFirst(vs []domain.Visitor) {
	sort.Slice(vs, func(i, j int) bool { return vs[i].CreatedAt.After(vs[j].CreatedAt) })
}

var (
	_ VisitorRepository = (*MemoryVisitors)(nil)
	_ EventLookup       = (*MemoryVisitors)(nil)
)
