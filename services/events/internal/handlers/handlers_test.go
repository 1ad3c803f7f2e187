package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/diagnosis/gatepass/pkg/auth"
	"github.com/diagnosis/gatepass/pkg/config"
	"github.com/diagnosis/gatepass/pkg/events"
	"github.com/diagnosis/gatepass/services/events/internal/domain"
	"github.com/diagnosis/gatepass/services/events/internal/handlers"
	"github.com/diagnosis/gatepass/services/events/internal/service"
	"github.com/google/uuid"
)

// ---------- Mocks ----------

type memRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.EventRequest
}

func (m *memRepo) Create(_ context.Context, organiserID int64, req *domain.SubmitRequest) (*domain.EventRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &domain.EventRequest{
		ID: uuid.NewString(), OrganiserID: organiserID, Department: req.Department,
		EventName: req.EventName, Description: req.Description,
		DateFrom: req.DateFrom, DateTo: req.DateTo,
		ExpectedStudents: req.ExpectedStudents, MaxCapacity: req.MaxCapacity,
		Status: domain.RequestPending, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	m.rows[e.ID] = e
	out := *e
	return &out, nil
}

func (m *memRepo) GetByID(_ context.Context, id string) (*domain.EventRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.rows[id]; ok {
		out := *e
		return &out, nil
	}
	return nil, nil
}

func (m *memRepo) ListByOrganiser(_ context.Context, organiserID int64, _, _ int) ([]domain.EventRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.EventRequest
	for _, e := range m.rows {
		if e.OrganiserID == organiserID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memRepo) List(_ context.Context, status *domain.RequestStatus, _, _ int) ([]domain.EventRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.EventRequest
	for _, e := range m.rows {
		if status == nil || e.Status == *status {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memRepo) Decide(_ context.Context, id string, status domain.RequestStatus, reason *string, decidedBy string) (*domain.EventRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[id]
	if !ok || e.Status != domain.RequestPending {
		return nil, nil
	}
	now := time.Now()
	e.Status, e.RejectionReason, e.DecidedBy, e.DecidedAt = status, reason, &decidedBy, &now
	out := *e
	return &out, nil
}

func (m *memRepo) ListApproved(_ context.Context, onOrAfter time.Time) ([]domain.EventRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.EventRequest
	for _, e := range m.rows {
		if e.Status == domain.RequestApproved && !e.DateTo.Before(onOrAfter) {
			out = append(out, *e)
		}
	}
	return out, nil
}

// ---------- Helpers ----------

const secret = "test-secret"

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := &config.Config{Pass: config.PassConfig{TimeZone: "UTC"}}
	svc := service.NewEventService(&memRepo{rows: map[string]*domain.EventRequest{}}, events.NewMemoryBus(), cfg)
	srv := httptest.NewServer(handlers.Router(handlers.New(svc), secret))
	t.Cleanup(srv.Close)
	return srv
}

func bearer(t *testing.T, id int64, username string, role auth.Role) string {
	t.Helper()
	tok, err := auth.NewAccessToken(id, username, role, secret, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func call(t *testing.T, srv *httptest.Server, method, path, tok string, body any) (int, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, srv.URL+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	out.ReadFrom(resp.Body)
	return resp.StatusCode, out.Bytes()
}

// ---------- Tests ----------

func TestEventRequestWorkflow(t *testing.T) {
	srv := newServer(t)
	org := bearer(t, 5, "org1", auth.RoleOrganiser)
	chief := bearer(t, 1, "chief", auth.RoleCSO)

	today := time.Now().UTC()
	submit := map[string]any{
		"department":        "Physics",
		"event_name":        "Star Party",
		"event_description": "Night sky viewing",
		"date_from":         today.Format(domain.DateLayout),
		"date_to":           today.AddDate(0, 0, 1).Format(domain.DateLayout),
		"expected_students": 40,
		"max_capacity":      60,
	}
	code, body := call(t, srv, http.MethodPost, "/organiser/requests", org, submit)
	if code != http.StatusCreated {
		t.Fatalf("submit: %d %s", code, body)
	}
	var created domain.EventRequest
	json.Unmarshal(body, &created)

	code, body = call(t, srv, http.MethodGet, "/approved", "", nil)
	if code != http.StatusOK || bytes.Contains(body, []byte("Star Party")) {
		t.Fatalf("pending event must not be listed: %d %s", code, body)
	}

	if code, _ := call(t, srv, http.MethodPost, "/cso/requests/"+created.ID+"/decision", org, map[string]string{"status": "approved"}); code != http.StatusForbidden {
		t.Fatalf("organiser decide: %d", code)
	}

	code, body = call(t, srv, http.MethodPost, "/cso/requests/"+created.ID+"/decision", chief, map[string]string{"status": "approved"})
	if code != http.StatusOK {
		t.Fatalf("approve: %d %s", code, body)
	}
	if !bytes.Contains(body, []byte(`"approved_by":"chief"`)) {
		t.Fatalf("approved_by missing: %s", body)
	}

	code, _ = call(t, srv, http.MethodPost, "/cso/requests/"+created.ID+"/decision", chief, map[string]string{"status": "rejected", "rejection_reason": "changed mind"})
	if code != http.StatusConflict {
		t.Fatalf("second decision: %d", code)
	}

	code, body = call(t, srv, http.MethodGet, "/approved", "", nil)
	if code != http.StatusOK || !bytes.Contains(body, []byte("Star Party")) {
		t.Fatalf("approved list: %d %s", code, body)
	}

	code, body = call(t, srv, http.MethodGet, "/organiser/requests", org, nil)
	if code != http.StatusOK || !bytes.Contains(body, []byte(created.ID)) {
		t.Fatalf("list mine: %d %s", code, body)
	}
}

func TestSubmitRejectsBadDates(t *testing.T) {
	srv := newServer(t)
	org := bearer(t, 5, "org1", auth.RoleOrganiser)

	code, _ := call(t, srv, http.MethodPost, "/organiser/requests", org, map[string]any{
		"department": "CSE", "event_name": "X", "date_from": "01/02/2025", "date_to": "2025-02-02", "max_capacity": 10,
	})
	if code != http.StatusBadRequest {
		t.Fatalf("bad date format: %d", code)
	}

	code, _ = call(t, srv, http.MethodPost, "/organiser/requests", org, map[string]any{
		"department": "CSE", "event_name": "X", "date_from": "2025-02-03", "date_to": "2025-02-02", "max_capacity": 10,
	})
	if code != http.StatusBadRequest {
		t.Fatalf("reversed window: %d", code)
	}
}

func TestUnknownRequestIs404(t *testing.T) {
	srv := newServer(t)
	chief := bearer(t, 1, "chief", auth.RoleCSO)
	code, _ := call(t, srv, http.MethodPost, "/cso/requests/"+uuid.NewString()+"/decision", chief, map[string]string{"status": "approved"})
	if code != http.StatusNotFound {
		t.Fatalf("got %d", code)
	}
}
