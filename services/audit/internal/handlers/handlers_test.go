package handlers_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/diagnosis/gatepass/pkg/auth"
	"github.com/diagnosis/gatepass/services/audit/internal/domain"
	"github.com/diagnosis/gatepass/services/audit/internal/handlers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

type mockAudit struct {
	mock.Mock
}

func (m *mockAudit) Start() error { return nil }

func (m *mockAudit) List(ctx context.Context, session *auth.Session, f domain.Filter, limit, offset int) ([]domain.Entry, error) {
	args := m.Called(session.Username, f, limit, offset)
	entries, _ := args.Get(0).([]domain.Entry)
	return entries, args.Error(1)
}

func get(t *testing.T, h http.Handler, target string, role auth.Role) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if role != "" {
		tok, err := auth.NewAccessToken(1, "chief", role, secret, time.Minute)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestListEntries_FiltersAndPaging(t *testing.T) {
	svc := &mockAudit{}
	f := domain.Filter{Subject: "pass.scanned", SubjectID: "abc"}
	svc.On("List", "chief", f, 20, 40).Return([]domain.Entry{
		{ID: 9, Subject: "pass.scanned", SubjectID: "abc", Actor: "gate1", Summary: "entry granted"},
	}, nil)

	r := handlers.Router(handlers.New(svc), secret)
	rec := get(t, r, "/cso/entries?subject=pass.scanned&subject_id=abc&limit=20&offset=40", auth.RoleCSO)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Entries []domain.Entry `json:"entries"`
		Limit   int            `json:"limit"`
		Offset  int            `json:"offset"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "gate1", body.Entries[0].Actor)
	assert.Equal(t, 20, body.Limit)
	assert.Equal(t, 40, body.Offset)
	svc.AssertExpectations(t)
}

func TestListEntries_DefaultsOutOfRangeLimit(t *testing.T) {
	svc := &mockAudit{}
	svc.On("List", "chief", domain.Filter{}, 50, 0).Return(nil, nil)

	r := handlers.Router(handlers.New(svc), secret)
	rec := get(t, r, "/cso/entries?limit=5000&offset=-3", auth.RoleCSO)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"entries":[],"limit":50,"offset":0}`, rec.Body.String())
}

func TestListEntries_Auth(t *testing.T) {
	svc := &mockAudit{}
	r := handlers.Router(handlers.New(svc), secret)

	assert.Equal(t, http.StatusUnauthorized, get(t, r, "/cso/entries", "").Code)
	assert.Equal(t, http.StatusForbidden, get(t, r, "/cso/entries", auth.RoleGuard).Code)
	svc.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestListEntries_StoreFailure(t *testing.T) {
	svc := &mockAudit{}
	svc.On("List", "chief", domain.Filter{}, 50, 0).Return(nil, fmt.Errorf("list: %w", domain.ErrStore))

	r := handlers.Router(handlers.New(svc), secret)
	rec := get(t, r, "/cso/entries", auth.RoleCSO)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}
