package handler

import (
	"log/slog"
	"net/http"

	"github.com/yourorg/qualityhub/internal/service"
)

// TenantsHandler serves superadmin tenant management.
type TenantsHandler struct {
	tenants *service.TenantService
	logger  *slog.Logger
}

func NewTenantsHandler(tenants *service.TenantService, logger *slog.Logger) *TenantsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantsHandler{tenants: tenants, logger: logger}
}

// CreateTenantRequest is the body of POST /api/admin/tenants.
type CreateTenantRequest struct {
	Name          string   `json:"name"`
	Subdomain     string   `json:"subdomain"`
	Modules       []string `json:"modules"`
	AdminEmail    string   `json:"adminEmail"`
	AdminPassword string   `json:"adminPassword"`
}

// CreateTenantResponse is the new tenant and, when requested, its admin.
type CreateTenantResponse struct {
	Tenant tenantResponse `json:"tenant"`
	Admin  *userResponse  `json:"admin,omitempty"`
}

// ModulesRequest is the body of PUT /api/admin/tenants/{id}/modules.
type ModulesRequest struct {
	Modules []string `json:"modules"`
}

// List handles GET /api/admin/tenants
func (h *TenantsHandler) List(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.tenants.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(tenants, toTenant))
}

// Get handles GET /api/admin/tenants/{id}
func (h *TenantsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	t, err := h.tenants.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toTenant(t))
}

// Create handles POST /api/admin/tenants
func (h *TenantsHandler) Create(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeOf(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req CreateTenantRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	res, err := h.tenants.Create(r.Context(), scope, service.CreateTenantInput{
		Name:          req.Name,
		Subdomain:     req.Subdomain,
		Modules:       req.Modules,
		AdminEmail:    req.AdminEmail,
		AdminPassword: req.AdminPassword,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := CreateTenantResponse{Tenant: toTenant(res.Tenant)}
	if res.Admin != nil {
		admin := toUser(res.Admin)
		out.Admin = &admin
	}
	writeJSON(w, http.StatusCreated, out)
}

// SetModules handles PUT /api/admin/tenants/{id}/modules
func (h *TenantsHandler) SetModules(w http.ResponseWriter, r *http.Request) {
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
	var req ModulesRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	t, err := h.tenants.SetModules(r.Context(), scope, id, req.Modules)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toTenant(t))
}

// Deactivate handles POST /api/admin/tenants/{id}/deactivate
func (h *TenantsHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
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
	if err := h.tenants.Deactivate(r.Context(), scope, id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /api/admin/tenants/{id}
func (h *TenantsHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
	if err := h.tenants.Delete(r.Context(), scope, id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
