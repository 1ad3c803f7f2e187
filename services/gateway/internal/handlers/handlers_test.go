package handlers_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/diagnosis/gatepass/services/gateway/internal/handlers"
	"github.com/diagnosis/gatepass/services/gateway/internal/proxy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seen struct {
	Upstream  string `json:"upstream"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Query     string `json:"query"`
	Body      string `json:"body"`
	RequestID string `json:"request_id"`
	Forwarded string `json:"forwarded_for"`
	Auth      string `json:"auth"`
}

func echo(name string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(seen{
			Upstream:  name,
			Method:    r.Method,
			Path:      r.URL.Path,
			Query:     r.URL.RawQuery,
			Body:      string(body),
			RequestID: r.Header.Get("X-Request-ID"),
			Forwarded: r.Header.Get("X-Forwarded-For"),
			Auth:      r.Header.Get("Authorization"),
		})
	}))
}

func newGateway(t *testing.T) http.Handler {
	t.Helper()
	authSrv, eventsSrv, passesSrv, auditSrv := echo("auth"), echo("events"), echo("passes"), echo("audit")
	t.Cleanup(func() {
		authSrv.Close()
		eventsSrv.Close()
		passesSrv.Close()
		auditSrv.Close()
	})
	h := handlers.New(
		proxy.NewServiceProxy("auth", authSrv.URL, 5*time.Second),
		proxy.NewServiceProxy("events", eventsSrv.URL, 5*time.Second),
		proxy.NewServiceProxy("passes", passesSrv.URL, 5*time.Second),
		proxy.NewServiceProxy("audit", auditSrv.URL, 5*time.Second),
	)
	return handlers.Router(h, []string{"https://gate.example.edu"})
}

func call(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, seen) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var s seen
	if rec.Code == http.StatusAccepted {
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&s))
	}
	return rec, s
}

func TestRouting(t *testing.T) {
	gw := newGateway(t)

	cases := []struct {
		method, path       string
		upstream, wantPath string
	}{
		{http.MethodPost, "/v1/auth/login", "auth", "/login"},
		{http.MethodGet, "/v1/events/approved", "events", "/approved"},
		{http.MethodPost, "/v1/events/cso/requests/abc/decision", "events", "/cso/requests/abc/decision"},
		{http.MethodPost, "/v1/passes", "passes", "/passes"},
		{http.MethodPatch, "/v1/cso/visitors/abc/status", "passes", "/cso/visitors/abc/status"},
		{http.MethodGet, "/verify", "passes", "/verify"},
		{http.MethodGet, "/v1/audit/cso/entries", "audit", "/cso/entries"},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rec, s := call(t, gw, httptest.NewRequest(tc.method, tc.path, nil))
			require.Equal(t, http.StatusAccepted, rec.Code)
			assert.Equal(t, tc.upstream, s.Upstream)
			assert.Equal(t, tc.wantPath, s.Path)
			assert.Equal(t, tc.method, s.Method)
		})
	}
}

func TestForwardsQueryBodyAndHeaders(t *testing.T) {
	gw := newGateway(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/organiser/passes/bulk?dry=1", strings.NewReader(`{"entries":[]}`))
	req.RemoteAddr = "198.51.100.4:4000"
	req.Header.Set("Authorization", "Bearer abc")
	req.Header.Set("X-Request-ID", "req-42")
	req.Header.Set("X-Forwarded-For", "6.6.6.6")

	rec, s := call(t, gw, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "dry=1", s.Query)
	assert.Equal(t, `{"entries":[]}`, s.Body)
	assert.Equal(t, "Bearer abc", s.Auth)
	assert.Equal(t, "req-42", s.RequestID)
	assert.Equal(t, "198.51.100.4", s.Forwarded, "client supplied forwarding headers are replaced")
	assert.Equal(t, "7", rec.Header().Get("Retry-After"))
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestUpstreamDown(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()

	h := handlers.New(
		proxy.NewServiceProxy("auth", dead.URL, time.Second),
		proxy.NewServiceProxy("events", dead.URL, time.Second),
		proxy.NewServiceProxy("passes", dead.URL, time.Second),
		proxy.NewServiceProxy("audit", dead.URL, time.Second),
	)
	rec := httptest.NewRecorder()
	handlers.Router(h, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/verify?id=x", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	gw := newGateway(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/passes", nil)
	req.Header.Set("Origin", "https://gate.example.edu")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)

	assert.Equal(t, "https://gate.example.edu", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newGateway(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
