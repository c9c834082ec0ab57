package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestLoggerInit(t *testing.T) {
	// Test development mode
	err := Init()
	if err != nil {
		t.Fatalf("failed to initialize development logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	logger := Get()
	if logger == nil {
		t.Fatal("logger is nil after initialization")
	}

	// Test production mode
	err = Init()
	if err != nil {
		t.Fatalf("failed to initialize production logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	logger = Get()
	if logger == nil {
		t.Fatal("logger is nil after initialization")
	}
}

// Basic logging test (slog-backed; no Sugar)
func TestLoggerBasic(t *testing.T) {
	err := Init()
	if err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	logger := Get()
	if logger == nil {
		t.Fatal("logger is nil")
	}

	ctx := context.Background()
	logger.Info(ctx, "test message", String("k", "v"))
}

func TestLoggerNamed(t *testing.T) {
	err := Init()
	if err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	namedLogger := Named("test")
	if namedLogger == nil {
		t.Fatal("named logger is nil")
	}

	ctx := context.Background()
	namedLogger.Info(ctx, "test message")
}

func TestLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithFormat("JSON"), WithOutput(&buf)); err != nil {
		t.Fatalf("failed to initialize json logger: %v", err)
	}

	ctx := context.Background()
	Get().With(String("request_id", "abc")).Info(ctx, "scored", Float64("fatigue", 42.5), Bool("clamped", false))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not a json record: %v (%q)", err, buf.String())
	}
	if record["msg"] != "scored" {
		t.Errorf("msg = %v, want scored", record["msg"])
	}
	if record["request_id"] != "abc" {
		t.Errorf("request_id = %v, want abc", record["request_id"])
	}
	if record["fatigue"] != 42.5 {
		t.Errorf("fatigue = %v, want 42.5", record["fatigue"])
	}
	if _, ok := record["source"]; !ok {
		t.Error("missing source field")
	}
}

func TestLoggerUnknownFormat(t *testing.T) {
	if err := Init(WithFormat("xml")); err == nil {
		t.Fatal("expected an error for unknown format")
	}
}

func TestSetLevelString(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithOutput(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	ctx := context.Background()

	Get().Debug(ctx, "hidden")
	if strings.Contains(buf.String(), "hidden") {
		t.Error("debug record written at info level")
	}

	if err := SetLevelString("DEBUG"); err != nil {
		t.Fatalf("SetLevelString(DEBUG): %v", err)
	}
	Get().Debug(ctx, "visible", Duration("took", 3*time.Millisecond))
	if !strings.Contains(buf.String(), "visible") {
		t.Error("debug record missing after switching to debug")
	}

	for _, level := range []string{"info", "warn", "warning", "error", ""} {
		if err := SetLevelString(level); err != nil {
			t.Errorf("SetLevelString(%q): %v", level, err)
		}
	}
	if err := SetLevelString("verbose"); err == nil {
		t.Error("expected an error for unknown level")
	}
}
