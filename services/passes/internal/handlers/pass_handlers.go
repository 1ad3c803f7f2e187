package handlers

import (
	"net/http"
	"strconv"

	"github.com/diagnosis/gatepass/internal/http/response"
	"github.com/diagnosis/gatepass/pkg/auth"
	"github.com/diagnosis/gatepass/services/passes/internal/domain"
	"github.com/go-chi/chi/v5"
)

// IssuePass handles public self-registration.
func (h *Handlers) IssuePass(w http.ResponseWriter, r *http.Request) {
	var req domain.IssueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	pass, err := h.passService.Issue(r.Context(), nil, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pass)
}

func (h *Handlers) IssueStaffPass(w http.ResponseWriter, r *http.Request) {
	var req domain.IssueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	pass, err := h.passService.Issue(r.Context(), auth.SessionFrom(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pass)
}

func (h *Handlers) BulkIssue(w http.ResponseWriter, r *http.Request) {
	var req domain.BulkIssueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.passService.BulkIssue(r.Context(), auth.SessionFrom(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Verify is the public QR target. Denials are 200 responses.
func (h *Handlers) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.passService.Verify(r.Context(), domain.VerifyRequest{
		ID:            q.Get("id"),
		GuardUsername: q.Get("guard_username"),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, res)
}

type scanRequest struct {
	ID string `json:"id"`
}

func (h *Handlers) GuardScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	session := auth.SessionFrom(r.Context())
	res, err := h.passService.Verify(r.Context(), domain.VerifyRequest{
		ID:            req.ID,
		GuardUsername: session.Username,
		Gate:          true,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req domain.RetrieveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	pass, err := h.passService.Retrieve(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pass)
}

func (h *Handlers) QRCode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	png, err := h.passService.RenderQR(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	if r.URL.Query().Get("download") == "1" {
		w.Header().Set("Content-Disposition", attachmentName(id))
	}
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (h *Handlers) ListVisitors(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	filter := domain.ListFilter{EventName: r.URL.Query().Get("event")}
	if v := r.URL.Query().Get("status"); v != "" {
		st, ok := domain.ParseVisitorStatus(v)
		if !ok {
			response.BadRequest(w, "status must be pending, approved or revoked")
			return
		}
		filter.Status = &st
	}

	visitors, err := h.passService.List(r.Context(), auth.SessionFrom(r.Context()), filter, limit, offset)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if visitors == nil {
		visitors = []domain.Visitor{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"visitors": visitors,
		"limit":    limit,
		"offset":   offset,
	})
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handlers) UpdateVisitorStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	v, err := h.passService.UpdateStatus(r.Context(), auth.SessionFrom(r.Context()), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
