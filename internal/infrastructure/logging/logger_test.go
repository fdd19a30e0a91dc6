package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nerrad567/starterkit-core/internal/infrastructure/config"
)

func TestNewWithWriter_Formats(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"json", `"msg":"opened"`},
		{"JSON", `"msg":"opened"`},
		{"text", "msg=opened"},
		{"", `"msg":"opened"`},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			NewWithWriter(&buf, config.LoggingConfig{Level: "info", Format: tt.format}, "1.0.0").Info("opened")
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("format %q output = %q, want it to contain %q", tt.format, buf.String(), tt.want)
			}
		})
	}
}

func TestNew_ConsoleOutputs(t *testing.T) {
	for _, output := range []string{"stdout", "stderr", "none", "discard", ""} {
		logger := New(config.LoggingConfig{Level: "error", Format: "json", Output: output}, "1.0.0")
		if logger == nil || logger.Logger == nil {
			t.Fatalf("New(output=%q) returned nil", output)
		}
		if err := logger.Close(); err != nil {
			t.Errorf("Close() without file error = %v", err)
		}
	}
	if Default() == nil {
		t.Fatal("Default() returned nil")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}

	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLogger_WithAddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	parent := NewWithWriter(&buf, config.LoggingConfig{Level: "info", Format: "text"}, "1.0.0")

	child := parent.With("component", "mqtt")
	if child == parent {
		t.Fatal("With() returned the parent logger")
	}
	child.Info("connected")
	parent.Info("plain")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "component=mqtt") {
		t.Errorf("child line = %q, want component=mqtt", lines[0])
	}
	if strings.Contains(lines[1], "component=") {
		t.Errorf("parent line = %q, should not carry the child's attribute", lines[1])
	}
}

func TestLogger_OutputContainsDefaultFields(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "info", Format: "json"}, "test")
	logger.Info("test message", "key", "value")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	want := map[string]string{"service": "starterkit", "version": "test", "msg": "test message", "key": "value"}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %q", k, entry[k], v)
		}
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "warn", Format: "text"}, "test")
	logger.Info("dropped")
	logger.Warn("kept")

	output := buf.String()
	if strings.Contains(output, "dropped") {
		t.Error("info record written at warn level")
	}
	if !strings.Contains(output, "msg=kept") {
		t.Errorf("expected warn record in text output, got %q", output)
	}
}

func TestNew_FileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "app.log")
	cfg := config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "none",
		File: config.FileLoggingConfig{
			Enabled: true,
			Path:    logPath,
			MaxSize: 1,
		},
	}

	logger := New(cfg, "1.0.0")
	logger.With("component", "database").Info("written to file")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("log file missing record: %q", data)
	}
	if !strings.Contains(string(data), `"component":"database"`) {
		t.Errorf("log file missing derived attribute: %q", data)
	}
}

func TestMultiHandler(t *testing.T) {
	var debugBuf, errorBuf bytes.Buffer

	h := MultiHandler{
		slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&errorBuf, &slog.HandlerOptions{Level: slog.LevelError}),
	}
	logger := slog.New(h).With("request_id", "abc").WithGroup("db")

	logger.Debug("debug only", "op", "query")
	logger.Error("both", "op", "commit")

	if !strings.Contains(debugBuf.String(), "debug only") || !strings.Contains(debugBuf.String(), "both") {
		t.Errorf("debug handler output = %q", debugBuf.String())
	}
	if strings.Contains(errorBuf.String(), "debug only") {
		t.Error("error handler received debug record")
	}
	if !strings.Contains(errorBuf.String(), "request_id=abc") || !strings.Contains(errorBuf.String(), "db.op=commit") {
		t.Errorf("error handler output = %q", errorBuf.String())
	}
}
