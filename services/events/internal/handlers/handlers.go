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
	"github.com/diagnosis/gatepass/services/events/internal/domain"
	"github.com/diagnosis/gatepass/services/events/internal/service"
	"github.com/go-chi/chi/v5"
)

type Handlers struct {
	eventService service.EventService
}

func New(eventService service.EventService) *Handlers {
	return &Handlers{eventService: eventService}
}

func Router(h *Handlers, jwtSecret string) chi.Router {
	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("events"))
	r.Use(mw.Logging)
	r.Use(mw.Health)

	r.Get("/approved", h.ListApproved)

	r.Route("/organiser/requests", func(r chi.Router) {
		r.Use(mw.RequireJWT(jwtSecret, auth.RoleOrganiser))
		r.Post("/", h.Submit)
		r.Get("/", h.ListMine)
	})

	r.Route("/cso/requests", func(r chi.Router) {
		r.Use(mw.RequireJWT(jwtSecret, auth.RoleCSO))
		r.Get("/", h.List)
		r.Post("/{id}/decision", h.Decide)
	})
	return r
}

func (h *Handlers) Submit(w http.ResponseWriter, r *http.Request) {
	var req domain.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteErrorWithDetails(w, http.StatusBadRequest, "Invalid JSON body", response.CodeInvalidInput, err.Error())
		return
	}
	e, err := h.eventService.Submit(r.Context(), auth.SessionFrom(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, e)
}

func (h *Handlers) ListMine(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	list, err := h.eventService.ListMine(r.Context(), auth.SessionFrom(r.Context()), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, list, limit, offset)
}

func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	var status *domain.RequestStatus
	if v := r.URL.Query().Get("status"); v != "" {
		st, ok := domain.ParseRequestStatus(v)
		if !ok {
			response.BadRequest(w, "status must be pending, approved or rejected")
			return
		}
		status = &st
	}
	list, err := h.eventService.List(r.Context(), auth.SessionFrom(r.Context()), status, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, list, limit, offset)
}

func (h *Handlers) Decide(w http.ResponseWriter, r *http.Request) {
	var d domain.Decision
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		response.WriteErrorWithDetails(w, http.StatusBadRequest, "Invalid JSON body", response.CodeInvalidInput, err.Error())
		return
	}
	e, err := h.eventService.Decide(r.Context(), auth.SessionFrom(r.Context()), chi.URLParam(r, "id"), d)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, e)
}

func (h *Handlers) ListApproved(w http.ResponseWriter, r *http.Request) {
	list, err := h.eventService.ListApproved(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []domain.EventRequest{}
	}
	response.JSON(w, http.StatusOK, map[string]any{"events": list})
}

func writeList(w http.ResponseWriter, list []domain.EventRequest, limit, offset int) {
	if list == nil {
		list = []domain.EventRequest{}
	}
	response.JSON(w, http.StatusOK, map[string]any{"requests": list, "limit": limit, "offset": offset})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		response.WriteErrorWithDetails(w, http.StatusBadRequest, verr.Error(), response.CodeInvalidInput, verr.Field)
	case errors.Is(err, domain.ErrNotFound):
		response.NotFound(w, "Event request not found")
	case errors.Is(err, domain.ErrForbidden):
		response.Forbidden(w, "Insufficient permissions")
	case errors.Is(err, domain.ErrAlreadyFinal):
		response.WriteError(w, http.StatusConflict, "Event request has already been decided", response.CodeInvalidState)
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
