package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG") != slog.LevelDebug || ParseLevel("warn") != slog.LevelWarn ||
		ParseLevel("error") != slog.LevelError || ParseLevel("bogus") != slog.LevelInfo {
		t.Fatal("unexpected level mapping")
	}
}

func TestRedactsSensitiveAttributes(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info")
	log.Info("login", slog.String("email", "a@acme.test"), slog.String("password", "hunter22"), slog.String("token", "eyJ"))

	out := buf.String()
	if strings.Contains(out, "hunter22") || strings.Contains(out, "eyJ") {
		t.Fatalf("sensitive value leaked: %s", out)
	}
	if !strings.Contains(out, "a@acme.test") {
		t.Fatalf("expected email in output: %s", out)
	}
}
