package handlers

import (
	"net/http"

	ratelimit "github.com/diagnosis/gatepass/internal/http/middleware"
	"github.com/diagnosis/gatepass/internal/http/response"
	"github.com/diagnosis/gatepass/pkg/auth"
	"github.com/diagnosis/gatepass/services/auth/internal/domain"
)

// Login exchanges staff credentials for an access token.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.authService.Login(r.Context(), &req, ratelimit.ClientIP(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, resp)
}

func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.authService.CreateUser(r.Context(), auth.SessionFrom(r.Context()), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, user.Info())
}

func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	users, err := h.authService.ListUsers(r.Context(), auth.SessionFrom(r.Context()), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}

	infos := make([]*domain.UserInfo, 0, len(users))
	for i := range users {
		infos = append(infos, users[i].Info())
	}
	response.JSON(w, http.StatusOK, map[string]any{"users": infos, "limit": limit, "offset": offset})
}
