package handlers

import (
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/diagnosis/gatepass/internal/http/response"
	"github.com/diagnosis/gatepass/pkg/logger"
	mw "github.com/diagnosis/gatepass/pkg/middleware"
	"github.com/diagnosis/gatepass/services/gateway/internal/proxy"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const maxBodyBytes = 4 << 20

type Handlers struct {
	authProxy   *proxy.ServiceProxy
	eventsProxy *proxy.ServiceProxy
	passesProxy *proxy.ServiceProxy
	auditProxy  *proxy.ServiceProxy
}

func New(authProxy, eventsProxy, passesProxy, auditProxy *proxy.ServiceProxy) *Handlers {
	return &Handlers{
		authProxy:   authProxy,
		eventsProxy: eventsProxy,
		passesProxy: passesProxy,
		auditProxy:  auditProxy,
	}
}

func Router(h *Handlers, allowedOrigins []string) chi.Router {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("gateway"))
	r.Use(mw.Logging)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After", "Idempotent-Replayed", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(mw.Health)

	// QR codes encode <public-url>/verify?id=..., so the bare path must resolve here.
	r.Get("/verify", h.forward(h.passesProxy, ""))

	r.Route("/v1", func(r chi.Router) {
		r.HandleFunc("/auth/*", h.forward(h.authProxy, "/v1/auth"))
		r.HandleFunc("/events/*", h.forward(h.eventsProxy, "/v1/events"))
		r.HandleFunc("/audit/*", h.forward(h.auditProxy, "/v1/audit"))
		r.HandleFunc("/*", h.forward(h.passesProxy, "/v1"))
	})
	return r
}

// forward returns a handler that strips prefix from the path and relays the
// request to p.
func (h *Handlers) forward(p *proxy.ServiceProxy, prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, prefix)
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}

		header := r.Header.Clone()
		// Upstream rate limits key on the first X-Forwarded-For entry; only the
		// address the gateway observed is passed on.
		header.Del("X-Real-IP")
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		header.Set("X-Forwarded-For", host)

		var body io.Reader
		if r.ContentLength != 0 {
			limited := http.MaxBytesReader(w, r.Body, maxBodyBytes)
			defer limited.Close()
			body = limited
		}

		resp, err := p.ProxyRequest(r.Context(), r.Method, path, r.URL.RawQuery, body, header)
		if err != nil {
			logger.ErrorContext(r.Context(), "Service proxy error", "error", err, "upstream", p.Name(), "path", path)
			response.WriteError(w, http.StatusBadGateway, "Upstream service unavailable", response.CodeStoreUnavailable)
			return
		}
		defer resp.Body.Close()

		proxy.StripHopHeaders(resp.Header)
		for key, values := range resp.Header {
			if strings.EqualFold(key, "X-Request-ID") {
				continue
			}
			for _, value := range values {
				w.Header().Add(key, value)
			}
		}
		w.WriteHeader(resp.StatusCode)

		if _, err := io.Copy(w, resp.Body); err != nil {
			logger.ErrorContext(r.Context(), "Failed to copy response body", "error", err)
		}
	}
}
