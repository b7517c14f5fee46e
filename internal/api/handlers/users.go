// users.go — обработчики управления пользователями (только администраторы).
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/submission-portal/internal/api/errors"
	"github.com/bigkaa/submission-portal/internal/domain/model"
	"github.com/bigkaa/submission-portal/internal/service"
)

type userResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

type userListResponse struct {
	Items []userResponse `json:"items"`
	Total int            `json:"total"`
}

type registerRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      string(u.Role),
		CreatedAt: formatTime(u.CreatedAt),
	}
}

// requireAdmin — actor запроса, если это администратор.
func (h *APIHandler) requireAdmin(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	actor, ok := h.actor(w, r)
	if !ok {
		return nil, false
	}
	if !actor.IsAdmin() {
		apierrors.Forbidden(w, "Доступно только администраторам")
		return nil, false
	}
	return actor, true
}

// ListUsers — GET /api/v1/users.
func (h *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	users, err := h.users.List(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	items := make([]userResponse, 0, len(users))
	for _, u := range users {
		items = append(items, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, userListResponse{Items: items, Total: len(items)})
}

// RegisterUser — POST /api/v1/users.
func (h *APIHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Невалидный JSON: "+err.Error())
		return
	}

	u, err := h.users.Register(r.Context(), actor, service.RegisterParams{
		ID:    req.ID,
		Name:  req.Name,
		Email: req.Email,
		Role:  req.Role,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(u))
}

// GetUser — GET /api/v1/users/{id}.
func (h *APIHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	u, err := h.users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// DeleteUser — DELETE /api/v1/users/{id}. Работа студента удаляется вместе с ним.
func (h *APIHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	if _, err := h.users.DeleteUser(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
