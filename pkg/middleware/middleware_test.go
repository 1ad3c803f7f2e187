package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/diagnosis/gatepass/pkg/auth"
	"github.com/go-chi/chi/v5"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	return m.data[key], nil
}

func (m *memStore) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	return nil
}

func TestIdempotencyReplaysResponse(t *testing.T) {
	store := &memStore{data: map[string]string{}}
	calls := 0
	r := chi.NewRouter()
	r.Use(Idempotency(store))
	r.Post("/bulk", func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"n":1}`))
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/bulk", nil)
		req.Header.Set("Idempotency-Key", "abc")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated || rec.Body.String() != `{"n":1}` {
			t.Fatalf("attempt %d: got %d %q", i, rec.Code, rec.Body.String())
		}
		if i == 1 && rec.Header().Get("Idempotent-Replayed") != "true" {
			t.Fatalf("second attempt should be a replay")
		}
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times, want 1", calls)
	}
}

func TestIdempotencyStoreFailureDoesNotBlock(t *testing.T) {
	store := &memStore{data: map[string]string{}, err: errors.New("redis down")}
	r := chi.NewRouter()
	r.Use(Idempotency(store))
	r.Post("/bulk", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/bulk", nil)
	req.Header.Set("Idempotency-Key", "abc")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d", rec.Code)
	}
}

func TestRequireJWT(t *testing.T) {
	r := chi.NewRouter()
	r.With(RequireJWT("s", auth.RoleCSO)).Get("/cso", func(w http.ResponseWriter, r *http.Request) {
		if s := auth.SessionFrom(r.Context()); s == nil || s.Username != "chief" {
			t.Errorf("session missing from context")
		}
		w.WriteHeader(http.StatusNoContent)
	})

	do := func(token string) int {
		req := httptest.NewRequest(http.MethodGet, "/cso", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := do(""); code != http.StatusUnauthorized {
		t.Fatalf("no token: got %d", code)
	}
	guard, _ := auth.NewAccessToken(1, "gate", auth.RoleGuard, "s", time.Minute)
	if code := do(guard); code != http.StatusForbidden {
		t.Fatalf("guard: got %d", code)
	}
	cso, _ := auth.NewAccessToken(2, "chief", auth.RoleCSO, "s", time.Minute)
	if code := do(cso); code != http.StatusNoContent {
		t.Fatalf("cso: got %d", code)
	}
}

func TestHealth(t *testing.T) {
	h := Health(http.NotFoundHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d", rec.Code)
	}
}

func TestReady(t *testing.T) {
	var down error
	h := Ready(func(context.Context) error { return down })(http.NotFoundHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ready: got %d", rec.Code)
	}

	down = errors.New("pool closed")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("down: got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/other", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("passthrough: got %d", rec.Code)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Request-ID")
	}))

	cases := map[string]bool{
		"req-42":                  true,
		"":                        false,
		"has space":               false,
		"line\nbreak":             false,
		strings.Repeat("a", 65):   false,
		"7d0f8d5e.6c1b_4a39-9f3e": true,
	}
	for in, kept := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", in)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		got := rec.Header().Get("X-Request-ID")
		if got != seen {
			t.Fatalf("%q: response id %q differs from forwarded id %q", in, got, seen)
		}
		if kept && got != in {
			t.Fatalf("%q: replaced with %q", in, got)
		}
		if !kept && got == in {
			t.Fatalf("%q: should have been replaced", in)
		}
	}
}

func TestIdempotencyScopedToCallerAndBody(t *testing.T) {
	store := &memStore{data: map[string]string{}}
	var got []string
	r := chi.NewRouter()
	r.With(RequireJWT("s", auth.RoleOrganiser), Idempotency(store)).Post("/bulk", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = append(got, auth.SessionFrom(r.Context()).Username+" "+string(b))
		w.WriteHeader(http.StatusOK)
		w.Write(b)
	})

	alice, _ := auth.NewAccessToken(1, "alice", auth.RoleOrganiser, "s", time.Minute)
	bob, _ := auth.NewAccessToken(2, "bob", auth.RoleOrganiser, "s", time.Minute)
	post := func(token, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/bulk", strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Idempotency-Key", "1")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	if rec := post(alice, `{"n":"alice"}`); rec.Code != http.StatusOK {
		t.Fatalf("alice: got %d", rec.Code)
	}
	rec := post(bob, `{"n":"bob"}`)
	if rec.Code != http.StatusOK || rec.Header().Get("Idempotent-Replayed") != "" || rec.Body.String() != `{"n":"bob"}` {
		t.Fatalf("bob saw another caller's response: %d %q", rec.Code, rec.Body.String())
	}

	rec = post(alice, `{"n":"alice"}`)
	if rec.Header().Get("Idempotent-Replayed") != "true" || rec.Body.String() != `{"n":"alice"}` {
		t.Fatalf("alice retry should replay, got %q", rec.Body.String())
	}

	rec = post(alice, `{"n":"changed"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("reused key with new body: got %d", rec.Code)
	}

	if len(got) != 2 || got[0] != `alice {"n":"alice"}` || got[1] != `bob {"n":"bob"}` {
		t.Fatalf("handler calls = %q", got)
	}
}
