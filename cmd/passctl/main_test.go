package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/diagnosis/gatepass/internal/importer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBulk fails every entry whose name starts with "bad" and replays
// responses for repeated idempotency keys.
type fakeBulk struct {
	mu      sync.Mutex
	keys    []string
	batches []importer.Batch
	seen    map[string][]byte
}

func (f *fakeBulk) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Path != "/v1/organiser/passes/bulk" || r.Header.Get("Authorization") != "Bearer tok" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	key := r.Header.Get("Idempotency-Key")
	f.keys = append(f.keys, key)
	w.Header().Set("Content-Type", "application/json")
	if body, ok := f.seen[key]; ok {
		w.Header().Set("Idempotent-Replayed", "true")
		w.Write(body)
		return
	}

	var b importer.Batch
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.batches = append(f.batches, b)

	res := map[string]any{"requested": len(b.Entries)}
	var failures []map[string]any
	for i, e := range b.Entries {
		if strings.HasPrefix(e.Name, "bad") {
			failures = append(failures, map[string]any{"index": i, "name": e.Name, "error": "date_of_visit_from: is required"})
		}
	}
	res["failed"] = len(failures)
	res["succeeded"] = len(b.Entries) - len(failures)
	res["failures"] = failures
	body, _ := json.Marshal(res)
	f.seen[key] = body
	w.Write(body)
}

func TestRunImport_BatchesAndReplays(t *testing.T) {
	fake := &fakeBulk{seen: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	res, err := importer.Read(strings.NewReader("name,date_of_visit\nAsha,2025-02-01\nbad one,\nRavi,2025-02-01\n"))
	require.NoError(t, err)

	c := newAPIClient(srv.URL+"/v1", "tok", 5*time.Second)
	opts := importOptions{EventName: "Alumni Meet", Category: "speaker", BatchSize: 2}

	var out bytes.Buffer
	require.NoError(t, runImport(context.Background(), c, &out, res, opts))
	assert.Contains(t, out.String(), `row 2 "bad one"`)
	assert.Contains(t, out.String(), "done: 3 requested, 2 issued, 1 failed")

	require.Len(t, fake.batches, 2)
	assert.Equal(t, "Alumni Meet", fake.batches[0].EventName)
	assert.Equal(t, "2025-02-01", fake.batches[0].Entries[0].DateTo)
	assert.NotEqual(t, fake.keys[0], fake.keys[1])

	// second run of the same file replays both batches
	out.Reset()
	require.NoError(t, runImport(context.Background(), c, &out, res, opts))
	assert.Len(t, fake.batches, 2)
	assert.Equal(t, 2, strings.Count(out.String(), "(replayed)"))
}

func TestClient_DecodesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "id=abc", r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"Too many requests. Try again later.","code":"RATE_LIMIT_EXCEEDED"}`))
	}))
	defer srv.Close()

	c := newAPIClient(srv.URL, "", time.Second)
	_, err := c.do(context.Background(), request{method: http.MethodGet, path: "/verify", query: verifyQuery{ID: "abc"}}, nil, nil)

	var apiErr *apiError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", apiErr.Code)
}
