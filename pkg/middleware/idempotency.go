package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/diagnosis/gatepass/internal/http/response"
	"github.com/diagnosis/gatepass/pkg/auth"
	"github.com/diagnosis/gatepass/pkg/logger"
)

type IdempotencyStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

const (
	idempotencyTTL = 24 * time.Hour
	// Bodies above this size are served without replay protection.
	maxIdempotentBody = 4 << 20
)

type cachedResponse struct {
	BodyHash    string `json:"body_hash"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        string `json:"body"`
}

// Idempotency replays the stored 2xx response for a repeated POST carrying the
// same Idempotency-Key. Keys are scoped to the caller's session and the path;
// reusing a key with a different body is rejected with 422. Mount it behind
// RequireJWT so the session is known. Store errors never fail the request.
func Idempotency(store IdempotencyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			if r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBody+1))
			if err != nil {
				response.BadRequest(w, "Could not read request body")
				return
			}
			r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), r.Body))
			if len(body) > maxIdempotentBody {
				next.ServeHTTP(w, r)
				return
			}

			bodySum := sha256.Sum256(body)
			bodyHash := hex.EncodeToString(bodySum[:])
			hashedKey := idempotencyKey(auth.SessionFrom(r.Context()), r.URL.Path, key)

			if existing, err := store.Get(r.Context(), hashedKey); err != nil {
				logger.WarnContext(r.Context(), "Idempotency lookup failed", "error", err)
			} else if existing != "" {
				var cached cachedResponse
				if json.Unmarshal([]byte(existing), &cached) == nil {
					if cached.BodyHash != bodyHash {
						response.WriteError(w, http.StatusUnprocessableEntity,
							"Idempotency-Key was already used with a different request body", response.CodeIdempotencyReuse)
						return
					}
					w.Header().Set("Content-Type", cached.ContentType)
					w.Header().Set("Idempotent-Replayed", "true")
					w.WriteHeader(cached.Status)
					w.Write([]byte(cached.Body))
					return
				}
			}

			recorder := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r)

			if recorder.statusCode < 200 || recorder.statusCode >= 300 {
				return
			}
			payload, _ := json.Marshal(cachedResponse{
				BodyHash:    bodyHash,
				Status:      recorder.statusCode,
				ContentType: recorder.Header().Get("Content-Type"),
				Body:        string(recorder.body),
			})
			if err := store.Set(r.Context(), hashedKey, string(payload), idempotencyTTL); err != nil {
				logger.WarnContext(r.Context(), "Idempotency store failed", "error", err)
			}
		})
	}
}

func idempotencyKey(session *auth.Session, path, key string) string {
	caller := "anonymous"
	if session != nil {
		caller = fmt.Sprintf("%d:%s", session.UserID, session.Username)
	}
	sum := sha256.Sum256([]byte(caller + "\x00" + path + "\x00" + key))
	return fmt.Sprintf("idempotency:%x", sum)
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       []byte
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *responseRecorder) Write(body []byte) (int, error) {
	r.body = append(r.body, body...)
	return r.ResponseWriter.Write(body)
}
