package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/yourorg/qualityhub/internal/apperr"
	"github.com/yourorg/qualityhub/internal/domain"
	"github.com/yourorg/qualityhub/internal/tenancy"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	apperr.WriteJSON(w, logger, err)
}

// decode reads a JSON body into v. Unknown fields are ignored so that a
// client-supplied tenantId never fails a request.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Invalid("handler.decode", "request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Invalid("handler.decode", "request body too large")
		}
		return apperr.Invalid("handler.decode", "invalid JSON body")
	}
	return nil
}

// pathID parses the {id} wildcard. Malformed ids are reported as not found,
// the same as ids that do not exist.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.NotFound("handler.pathID", "")
	}
	return id, nil
}

// scopeOf returns the Scope bound by the authorization gate.
func scopeOf(r *http.Request) (tenancy.Scope, error) {
	s, ok := tenancy.FromContext(r.Context())
	if !ok {
		return s, &apperr.Error{Code: apperr.EUnauthenticated, Op: "handler.scope"}
	}
	return s, nil
}

// tenantOf returns the tenant attached by the resolver.
func tenantOf(r *http.Request) (*domain.Tenant, error) {
	t, ok := tenancy.TenantFromContext(r.Context())
	if !ok {
		return nil, apperr.Invalid("handler.tenant", "no tenant indicated")
	}
	return t, nil
}

type userResponse struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenantId"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

func toUser(u *domain.User) userResponse {
	return userResponse{
		ID: u.ID, TenantID: u.TenantID, Email: u.Email, Role: string(u.Role),
		FirstName: u.FirstName, LastName: u.LastName, IsActive: u.IsActive, CreatedAt: u.CreatedAt,
	}
}

type tenantResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Subdomain string    `json:"subdomain"`
	Modules   []string  `json:"modules"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

func toTenant(t *domain.Tenant) tenantResponse {
	return tenantResponse{
		ID: t.ID, Name: t.Name, Subdomain: t.Subdomain, Modules: t.Modules.Names(),
		IsActive: t.IsActive, CreatedAt: t.CreatedAt,
	}
}

type deviationResponse struct {
	ID          int64     `json:"id"`
	TenantID    int64     `json:"tenantId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Priority    string    `json:"priority"`
	ReporterID  int64     `json:"reporterId"`
	AssigneeID  *int64    `json:"assigneeId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toDeviation(d *domain.Deviation) deviationResponse {
	return deviationResponse{
		ID: d.ID, TenantID: d.TenantID, Title: d.Title, Description: d.Description,
		Status: string(d.Status), Priority: string(d.Priority), ReporterID: d.ReporterID,
		AssigneeID: d.AssigneeID, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

type activityResponse struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type checklistResponse struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenantId"`
	Title     string    `json:"title"`
	Items     []string  `json:"items"`
	CreatedBy int64     `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

func toChecklist(c *domain.Checklist) checklistResponse {
	items := c.Items
	if items == nil {
		items = []string{}
	}
	return checklistResponse{ID: c.ID, TenantID: c.TenantID, Title: c.Title, Items: items, CreatedBy: c.CreatedBy, CreatedAt: c.CreatedAt}
}

type workOrderResponse struct {
	ID        int64      `json:"id"`
	TenantID  int64      `json:"tenantId"`
	Asset     string     `json:"asset"`
	Summary   string     `json:"summary"`
	DueAt     *time.Time `json:"dueAt,omitempty"`
	CreatedBy int64      `json:"createdBy"`
	CreatedAt time.Time  `json:"createdAt"`
}

// mapSlice converts a slice of domain values to response values.
func mapSlice[T any, R any](in []T, f func(T) R) []R {
	out := make([]R, 0, len(in))
	for _, v := range in {
		out = append(out, f(v))
	}
	return out
}
