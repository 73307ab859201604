package handler

import (
	"log/slog"
	"net/http"

	"github.com/yourorg/qualityhub/internal/apperr"
	"github.com/yourorg/qualityhub/internal/domain"
	"github.com/yourorg/qualityhub/internal/service"
)

// UsersHandler serves the tenant admin's user management.
type UsersHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

func NewUsersHandler(users *service.UserService, logger *slog.Logger) *UsersHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UsersHandler{users: users, logger: logger}
}

// CreateUserRequest is the body of POST /api/users.
type CreateUserRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// List handles GET /api/users
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeOf(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	users, err := h.users.List(r.Context(), scope)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(users, toUser))
}

// Get handles GET /api/users/{id}
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeOf(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	u, err := h.users.Get(r.Context(), scope, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUser(u))
}

// Create handles POST /api/users
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeOf(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req CreateUserRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	var role domain.Role
	if req.Role != "" {
		if role, err = domain.ParseRole(req.Role); err != nil {
			writeError(w, h.logger, apperr.Invalid("users.Create", err.Error()))
			return
		}
	}

	u, err := h.users.Create(r.Context(), scope, service.CreateUserInput{
		Email:     req.Email,
		Password:  req.Password,
		Role:      role,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUser(u))
}

// Deactivate handles DELETE /api/users/{id}
func (h *UsersHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeOf(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.users.Deactivate(r.Context(), scope, id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
