package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/qualityhub/internal/observability/requestid"
)

func TestHubIsPartitionedByTenant(t *testing.T) {
	hub := NewHub(4)
	acme, cancelAcme := hub.Subscribe(7)
	defer cancelAcme()
	globex, cancelGlobex := hub.Subscribe(8)
	defer cancelGlobex()

	hub.Publish(Event{TenantID: 7, Action: "login"})

	select {
	case e := <-acme:
		assert.Equal(t, "login", e.Action)
	case <-time.After(time.Second):
		t.Fatal("acme subscriber did not receive its event")
	}
	select {
	case e := <-globex:
		t.Fatalf("globex received a foreign event: %+v", e)
	default:
	}
}

func TestHubCancelUnsubscribes(t *testing.T) {
	hub := NewHub(1)
	ch, cancel := hub.Subscribe(7)
	assert.Equal(t, 1, hub.Subscribers(7))
	cancel()
	cancel()
	assert.Equal(t, 0, hub.Subscribers(7))
	_, open := <-ch
	assert.False(t, open)
	hub.Publish(Event{TenantID: 7})
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub(1)
	_, cancel := hub.Subscribe(7)
	defer cancel()
	hub.Publish(Event{TenantID: 7})
	done := make(chan struct{})
	go func() {
		hub.Publish(Event{TenantID: 7})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestRecordLogsAndPublishes(t *testing.T) {
	var buf bytes.Buffer
	hub := NewHub(2)
	ch, cancel := hub.Subscribe(7)
	defer cancel()

	al := NewLogger(slog.New(slog.NewJSONHandler(&buf, nil)), hub)
	ctx := requestid.With(context.Background(), "req-1")
	al.LogTenantOverride(ctx, 7, 11, "/api/deviations", float64(8))

	e := <-ch
	assert.Equal(t, "tenant_override_corrected", e.Action)
	assert.Equal(t, "req-1", e.RequestID)
	assert.Equal(t, "supplied tenantId 8", e.Details)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "audit", line["msg"])
	assert.Equal(t, float64(7), line["tenant_id"])
}

func TestNilLoggerIsNoop(t *testing.T) {
	var al *Logger
	al.LogLogin(context.Background(), 7, 0, StatusFailure, "bad password")
}
