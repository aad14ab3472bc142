package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSlogAdapter_WithNil(t *testing.T) {
	adapter := NewSlogAdapter(nil)
	if adapter == nil {
		t.Fatal("NewSlogAdapter returned nil")
	}
	if adapter.logger == nil {
		t.Error("adapter.logger should not be nil when created with nil")
	}
}

func TestSlogAdapter_Levels(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(New(&buf, FormatText, true))

	adapter.Debug("debug message", "key", "value")
	adapter.Info("info message")
	adapter.Warn("warn message")
	adapter.Error("error message")

	out := buf.String()
	for _, msg := range []string{"debug message", "info message", "warn message", "error message"} {
		assert.Contains(t, out, msg)
	}
	assert.Contains(t, out, "key=value")
}

func TestSlogAdapter_With(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(New(&buf, FormatText, false)).With(KeyCompany, "acme")
	adapter.Info("hello")
	assert.Contains(t, buf.String(), "company=acme")
}

func TestSlogAdapter_Logger(t *testing.T) {
	logger := slog.Default()
	adapter := NewSlogAdapter(logger)
	if adapter.Logger() != logger {
		t.Error("Logger() should return the underlying logger")
	}
}

func TestDiscard(t *testing.T) {
	// Should not panic
	Discard().Error("dropped", "key", "value")
}

func TestLoggerInterface(t *testing.T) {
	var _ Logger = (*SlogAdapter)(nil)
}
