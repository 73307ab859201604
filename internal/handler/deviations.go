package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/yourorg/qualityhub/internal/apperr"
	"github.com/yourorg/qualityhub/internal/domain"
	"github.com/yourorg/qualityhub/internal/service"
)

// DeviationsHandler serves the deviations module.
type DeviationsHandler struct {
	deviations *service.DeviationService
	logger     *slog.Logger
}

func NewDeviationsHandler(deviations *service.DeviationService, logger *slog.Logger) *DeviationsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeviationsHandler{deviations: deviations, logger: logger}
}

// CreateDeviationRequest is the body of POST /api/deviations.
type CreateDeviationRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	AssigneeID  *int64 `json:"assigneeId"`
}

// UpdateDeviationRequest is the body of PATCH /api/deviations/{id}. An
// explicit null assigneeId unassigns.
type UpdateDeviationRequest struct {
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	Status      *string         `json:"status"`
	Priority    *string         `json:"priority"`
	AssigneeID  json.RawMessage `json:"assigneeId"`
}

func (req UpdateDeviationRequest) patch() (service.DeviationPatch, error) {
	p := service.DeviationPatch{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
	}
	switch {
	case len(req.AssigneeID) == 0:
	case bytes.Equal(req.AssigneeID, []byte("null")):
		p.Unassign = true
	default:
		var id int64
		if err := json.Unmarshal(req.AssigneeID, &id); err != nil {
			return p, apperr.Invalid("deviations.Update", "assigneeId must be a number or null")
		}
		p.AssigneeID = &id
	}
	return p, nil
}

// List handles GET /api/deviations?status=&assigneeId=
func (h *DeviationsHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeOf(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var assignee int64
	if v := r.URL.Query().Get("assigneeId"); v != "" {
		if assignee, err = strconv.ParseInt(v, 10, 64); err != nil {
			writeError(w, h.logger, apperr.Invalid("deviations.List", "assigneeId must be a number"))
			return
		}
	}
	list, err := h.deviations.List(r.Context(), scope, r.URL.Query().Get("status"), assignee)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(list, toDeviation))
}

// Get handles GET /api/deviations/{id}
func (h *DeviationsHandler) Get(w http.ResponseWriter, r *http.Request) {
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
	d, err := h.deviations.Get(r.Context(), scope, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toDeviation(d))
}

// Create handles POST /api/deviations
func (h *DeviationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeOf(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req CreateDeviationRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	d, err := h.deviations.Create(r.Context(), scope, service.DeviationInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		AssigneeID:  req.AssigneeID,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDeviation(d))
}

// Update handles PATCH /api/deviations/{id}
func (h *DeviationsHandler) Update(w http.ResponseWriter, r *http.Request) {
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
	var req UpdateDeviationRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	p, err := req.patch()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	d, err := h.deviations.Update(r.Context(), scope, id, p)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toDeviation(d))
}

// Delete handles DELETE /api/deviations/{id}
func (h *DeviationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
	if err := h.deviations.Delete(r.Context(), scope, id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Activity handles GET /api/deviations/{id}/activity
func (h *DeviationsHandler) Activity(w http.ResponseWriter, r *http.Request) {
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
	acts, err := h.deviations.Activity(r.Context(), scope, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(acts, func(a *domain.DeviationActivity) activityResponse {
		return activityResponse{ID: a.ID, UserID: a.UserID, Action: a.Action, Detail: a.Detail, CreatedAt: a.CreatedAt}
	}))
}
