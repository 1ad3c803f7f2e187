package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/diagnosis/gatepass/internal/http/response"
	"github.com/diagnosis/gatepass/pkg/auth"
	"github.com/diagnosis/gatepass/pkg/logger"
	mw "github.com/diagnosis/gatepass/pkg/middleware"
	"github.com/diagnosis/gatepass/services/audit/internal/domain"
	"github.com/diagnosis/gatepass/services/audit/internal/service"
	"github.com/go-chi/chi/v5"
)

type Handlers struct {
	auditService service.AuditService
}

func New(auditService service.AuditService) *Handlers {
	return &Handlers{auditService: auditService}
}

func Router(h *Handlers, jwtSecret string) chi.Router {
	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("audit"))
	r.Use(mw.Logging)
	r.Use(mw.Health)

	r.With(mw.RequireJWT(jwtSecret, auth.RoleCSO)).Get("/cso/entries", h.ListEntries)
	return r
}

// ListEntries supports ?subject=pass.scanned and ?subject_id=<visitor id>.
func (h *Handlers) ListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 50
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 && n <= 200 {
		limit = n
	}
	offset := 0
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n >= 0 {
		offset = n
	}

	f := domain.Filter{Subject: q.Get("subject"), SubjectID: q.Get("subject_id")}
	entries, err := h.auditService.List(r.Context(), auth.SessionFrom(r.Context()), f, limit, offset)
	switch {
	case errors.Is(err, domain.ErrForbidden):
		response.Forbidden(w, "Insufficient permissions")
		return
	case errors.Is(err, domain.ErrStore):
		logger.ErrorContext(r.Context(), "Store failure", "error", err)
		response.StoreUnavailable(w)
		return
	case err != nil:
		logger.ErrorContext(r.Context(), "Unhandled error", "error", err)
		response.InternalError(w, "Internal server error")
		return
	}

	if entries == nil {
		entries = []domain.Entry{}
	}
	response.JSON(w, http.StatusOK, map[string]any{"entries": entries, "limit": limit, "offset": offset})
}
