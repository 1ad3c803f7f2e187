package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/diagnosis/gatepass/internal/http/response"
	"github.com/diagnosis/gatepass/pkg/auth"
	"github.com/diagnosis/gatepass/pkg/logger"
	mw "github.com/diagnosis/gatepass/pkg/middleware"
	"github.com/diagnosis/gatepass/services/auth/internal/domain"
	"github.com/diagnosis/gatepass/services/auth/internal/service"
	"github.com/go-chi/chi/v5"
)

type Handlers struct {
	authService service.AuthService
}

func New(authService service.AuthService) *Handlers {
	return &Handlers{authService: authService}
}

type RouterOptions struct {
	JWTSecret string
	// LoginLimit caps raw login traffic per client address. Nil disables it.
	LoginLimit func(http.Handler) http.Handler
}

func Router(h *Handlers, opts RouterOptions) chi.Router {
	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("auth"))
	r.Use(mw.Logging)
	r.Use(mw.Health)

	if opts.LoginLimit != nil {
		r.With(opts.LoginLimit).Post("/login", h.Login)
	} else {
		r.Post("/login", h.Login)
	}

	r.Route("/cso/users", func(r chi.Router) {
		r.Use(mw.RequireJWT(opts.JWTSecret, auth.RoleCSO))
		r.Post("/", h.CreateUser)
		r.Get("/", h.ListUsers)
	})
	return r
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.WriteErrorWithDetails(w, http.StatusBadRequest, "Invalid JSON format", response.CodeInvalidInput, err.Error())
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		response.WriteErrorWithDetails(w, http.StatusBadRequest, verr.Error(), response.CodeInvalidInput, verr.Field)
	case errors.Is(err, domain.ErrInvalidCredentials):
		response.Unauthorized(w, "Invalid username or password")
	case errors.Is(err, domain.ErrTooManyAttempts):
		response.RateLimit(w, "Too many failed login attempts. Try again later.")
	case errors.Is(err, domain.ErrUsernameTaken):
		response.Conflict(w, "Username already exists")
	case errors.Is(err, domain.ErrForbidden):
		response.Forbidden(w, "Insufficient permissions")
	case errors.Is(err, domain.ErrNotFound):
		response.NotFound(w, "User not found")
	case errors.Is(err, domain.ErrStore):
		logger.ErrorContext(r.Context(), "Store failure", "error", err)
		response.StoreUnavailable(w)
	default:
		logger.ErrorContext(r.Context(), "Unhandled error", "error", err)
		response.InternalError(w, "Internal server error")
	}
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit = 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
