package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/yourorg/qualityhub/internal/domain"
	"github.com/yourorg/qualityhub/internal/service"
)

// ChecklistsHandler serves the checklists module.
type ChecklistsHandler struct {
	checklists *service.ChecklistService
	logger     *slog.Logger
}

func NewChecklistsHandler(checklists *service.ChecklistService, logger *slog.Logger) *ChecklistsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChecklistsHandler{checklists: checklists, logger: logger}
}

// CreateChecklistRequest is the body of POST /api/checklists.
type CreateChecklistRequest struct {
	Title string   `json:"title"`
	Items []string `json:"items"`
}

// List handles GET /api/checklists
func (h *ChecklistsHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeOf(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	list, err := h.checklists.List(r.Context(), scope)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(list, toChecklist))
}

// Get handles GET /api/checklists/{id}
func (h *ChecklistsHandler) Get(w http.ResponseWriter, r *http.Request) {
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
	c, err := h.checklists.Get(r.Context(), scope, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toChecklist(c))
}

// Create handles POST /api/checklists
func (h *ChecklistsHandler) Create(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeOf(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req CreateChecklistRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	c, err := h.checklists.Create(r.Context(), scope, req.Title, req.Items)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toChecklist(c))
}

// MaintenanceHandler serves maintenance work orders.
type MaintenanceHandler struct {
	orders *service.MaintenanceService
	logger *slog.Logger
}

func NewMaintenanceHandler(orders *service.MaintenanceService, logger *slog.Logger) *MaintenanceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MaintenanceHandler{orders: orders, logger: logger}
}

// CreateWorkOrderRequest is the body of POST /api/maintenance/orders.
type CreateWorkOrderRequest struct {
	Asset   string     `json:"asset"`
	Summary string     `json:"summary"`
	DueAt   *time.Time `json:"dueAt"`
}

func toWorkOrder(o *domain.WorkOrder) workOrderResponse {
	return workOrderResponse{ID: o.ID, TenantID: o.TenantID, Asset: o.Asset, Summary: o.Summary, DueAt: o.DueAt, CreatedBy: o.CreatedBy, CreatedAt: o.CreatedAt}
}

// List handles GET /api/maintenance/orders
func (h *MaintenanceHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeOf(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	list, err := h.orders.List(r.Context(), scope)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(list, toWorkOrder))
}

// Create handles POST /api/maintenance/orders
func (h *MaintenanceHandler) Create(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeOf(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req CreateWorkOrderRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	o, err := h.orders.Create(r.Context(), scope, req.Asset, req.Summary, req.DueAt)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkOrder(o))
}
