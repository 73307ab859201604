package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yourorg/qualityhub/internal/observability/metrics"
	"github.com/yourorg/qualityhub/internal/security/audit"
)

const (
	activityWriteWait  = 5 * time.Second
	activityPingPeriod = 15 * time.Second
)

// ActivityHandler streams the caller's tenant audit events over a websocket.
type ActivityHandler struct {
	hub            *audit.Hub
	allowedOrigins []string
	logger         *slog.Logger
}

func NewActivityHandler(hub *audit.Hub, allowedOrigins []string, logger *slog.Logger) *ActivityHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivityHandler{hub: hub, allowedOrigins: allowedOrigins, logger: logger}
}

func (h *ActivityHandler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// non-browser clients
				return true
			}
			for _, allowed := range h.allowedOrigins {
				if origin == allowed || allowed == "*" {
					return true
				}
			}
			h.logger.Warn("websocket origin rejected", slog.String("origin", origin))
			return false
		},
	}
}

// ServeHTTP handles GET /ws/activity
func (h *ActivityHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeOf(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	up := h.upgrader()
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	events, cancel := h.hub.Subscribe(scope.TenantID())
	defer cancel()
	metrics.AddActivitySubscribers(1)
	defer metrics.AddActivitySubscribers(-1)

	h.logger.Debug("activity stream opened",
		slog.Int64("tenant_id", scope.TenantID()),
		slog.Int64("user_id", scope.UserID()),
	)

	// The reader only exists to notice the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(activityPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(activityWriteWait))
			if err := ws.WriteJSON(e); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.logger.Debug("websocket closed", slog.Int64("tenant_id", scope.TenantID()))
				}
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(activityWriteWait)); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}
