package debug

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestWithDebug(t *testing.T) {
	ctx := WithDebug(context.Background(), true)
	if !IsEnabled(ctx) {
		t.Error("IsEnabled should return true when debug is enabled")
	}
	if IsEnabled(WithDebug(ctx, false)) {
		t.Error("IsEnabled should return false after disabling")
	}
	if IsEnabled(context.Background()) {
		t.Error("IsEnabled should return false by default")
	}
}

func TestSetupLoggerLevels(t *testing.T) {
	defer SetupLogger(false)

	SetupLogger(true)
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("SetupLogger(true) should enable debug level logging")
	}

	SetupLogger(false)
	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("SetupLogger(false) should disable debug level logging")
	}
	if !slog.Default().Enabled(context.Background(), slog.LevelWarn) {
		t.Error("SetupLogger(false) should keep warn level logging")
	}
}

func TestComponentTagsLines(t *testing.T) {
	var buf bytes.Buffer
	SetupLoggerTo(&buf, true)
	defer SetupLogger(false)

	Component("realtime").Warn("socket closed", "attempt", 3)

	out := buf.String()
	if !strings.Contains(out, "component=realtime") {
		t.Errorf("expected component attribute, got %q", out)
	}
	if !strings.Contains(out, "attempt=3") {
		t.Errorf("expected attempt attribute, got %q", out)
	}
}

func TestSetupLoggerJSONFormat(t *testing.T) {
	t.Setenv(EnvLogFormat, "json")
	var buf bytes.Buffer
	SetupLoggerTo(&buf, false)
	defer SetupLogger(false)

	Component("tags").Error("sync failed", "page", "100")

	out := buf.String()
	if !strings.Contains(out, `"component":"tags"`) || !strings.Contains(out, `"page":"100"`) {
		t.Errorf("expected JSON log line, got %q", out)
	}
}
