package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/diagnosis/gatepass/internal/http/response"
	"github.com/diagnosis/gatepass/pkg/logger"
	"github.com/diagnosis/gatepass/services/passes/internal/domain"
	"github.com/diagnosis/gatepass/services/passes/internal/service"
)

const maxBodyBytes = 1 << 20

type Handlers struct {
	passService service.PassService
}

func New(passService service.PassService) *Handlers {
	return &Handlers{passService: passService}
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	response.JSON(w, statusCode, data)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			response.BadRequest(w, "Request body is required")
		} else {
			response.WriteErrorWithDetails(w, http.StatusBadRequest, "Invalid JSON body", response.CodeInvalidInput, err.Error())
		}
		return false
	}
	return true
}

// writeServiceError maps service errors onto the JSON error envelope.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		response.WriteErrorWithDetails(w, http.StatusBadRequest, verr.Error(), response.CodeInvalidInput, verr.Field)
	case errors.Is(err, domain.ErrNotFound):
		response.NotFound(w, "Pass not found")
	case errors.Is(err, domain.ErrForbidden):
		response.Forbidden(w, "Insufficient permissions")
	case errors.Is(err, domain.ErrAmbiguousContact):
		response.WriteError(w, http.StatusConflict, "More than one pass matches; enter the full email or phone", response.CodeAmbiguous)
	case errors.Is(err, domain.ErrEventNotApproved):
		response.WriteError(w, http.StatusConflict, "Event is not approved", response.CodeEventNotApproved)
	case errors.Is(err, domain.ErrInvalidTransition):
		response.WriteError(w, http.StatusConflict, err.Error(), response.CodeInvalidState)
	case errors.Is(err, domain.ErrStore):
		logger.ErrorContext(r.Context(), "Store failure", "error", err)
		response.StoreUnavailable(w)
	default:
		logger.ErrorContext(r.Context(), "Unhandled error", "error", err)
		response.InternalError(w, "Internal server error")
	}
}

// parsePagination reads limit/offset with limit defaulting to 20, max 100.
func parsePagination(r *http.Request) (limit, offset int) {
	limit = 20
	offset = 0

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

func attachmentName(id string) string {
	return fmt.Sprintf("attachment; filename=\"pass-%s.png\"", id)
}
