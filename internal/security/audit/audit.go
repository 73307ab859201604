package audit

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/yourorg/qualityhub/internal/observability/requestid"
)

// Event statuses.
const (
	StatusSuccess   = "success"
	StatusFailure   = "failure"
	StatusDenied    = "denied"
	StatusCorrected = "corrected"
)

// Event is one security-relevant action.
type Event struct {
	Time       time.Time `json:"time"`
	TenantID   int64     `json:"tenantId"`
	UserID     int64     `json:"userId,omitempty"`
	Action     string    `json:"action"`
	Resource   string    `json:"resource,omitempty"`
	ResourceID string    `json:"resourceId,omitempty"`
	Status     string    `json:"status"`
	Details    string    `json:"details,omitempty"`
	RequestID  string    `json:"requestId,omitempty"`
}

type Logger struct {
	logger *slog.Logger
	hub    *Hub
	now    func() time.Time
}

// NewLogger returns an audit logger. hub may be nil when no live feed is
// served.
func NewLogger(logger *slog.Logger, hub *Hub) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger, hub: hub, now: time.Now}
}

// Record logs e and publishes it to subscribers of e.TenantID.
func (al *Logger) Record(ctx context.Context, e Event) {
	if al == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = al.now()
	}
	if e.RequestID == "" {
		e.RequestID = requestid.From(ctx)
	}

	al.logger.Info("audit",
		slog.String("action", e.Action),
		slog.String("resource", e.Resource),
		slog.String("resource_id", e.ResourceID),
		slog.Int64("tenant_id", e.TenantID),
		slog.Int64("user_id", e.UserID),
		slog.String("status", e.Status),
		slog.String("details", e.Details),
		slog.String("request_id", e.RequestID),
		slog.Time("timestamp", e.Time),
	)
	if al.hub != nil && e.TenantID != 0 {
		al.hub.Publish(e)
	}
}

func (al *Logger) LogAction(ctx context.Context, tenantID, userID int64, action, resource string, resourceID int64, status, details string) {
	id := ""
	if resourceID != 0 {
		id = strconv.FormatInt(resourceID, 10)
	}
	al.Record(ctx, Event{
		TenantID: tenantID, UserID: userID, Action: action,
		Resource: resource, ResourceID: id, Status: status, Details: details,
	})
}

// LogLogin records a login attempt. userID is zero for unknown principals.
func (al *Logger) LogLogin(ctx context.Context, tenantID, userID int64, status, details string) {
	al.Record(ctx, Event{TenantID: tenantID, UserID: userID, Action: "login", Status: status, Details: details})
}

// LogDenied records a request stopped by the authorization gate.
func (al *Logger) LogDenied(ctx context.Context, tenantID, userID int64, stage, path, reason string) {
	al.Record(ctx, Event{
		TenantID: tenantID, UserID: userID, Action: "access_denied",
		Resource: path, Status: StatusDenied, Details: stage + ": " + reason,
	})
}

// LogTenantOverride records a request body whose tenantId was rewritten to
// the caller's own tenant.
func (al *Logger) LogTenantOverride(ctx context.Context, tenantID, userID int64, path string, supplied any) {
	al.Record(ctx, Event{
		TenantID: tenantID, UserID: userID, Action: "tenant_override_corrected",
		Resource: path, Status: StatusCorrected, Details: "supplied tenantId " + formatSupplied(supplied),
	})
}

func formatSupplied(v any) string {
	switch s := v.(type) {
	case string:
		return strconv.Quote(s)
	case nil:
		return "null"
	default:
		b, _ := jsonMarshal(s)
		return string(b)
	}
}
