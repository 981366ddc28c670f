package logging

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		service string
		level   string
		format  string
	}{
		{"json logger", "test-service", "info", "json"},
		{"text logger", "test-service", "debug", "text"},
		{"invalid level", "test-service", "invalid", "json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.service, tt.level, tt.format)
			if logger == nil {
				t.Fatal("New() returned nil")
			}
			if logger.service != tt.service {
				t.Errorf("service = %v, want %v", logger.service, tt.service)
			}
		})
	}
}

func TestLogger_WithFields(t *testing.T) {
	logger := New("test", "info", "json")
	fields := map[string]interface{}{
		"key1": "value1",
		"key2": 123,
	}

	entry := logger.WithFields(fields)

	if entry.Data["key1"] != "value1" {
		t.Errorf("key1 = %v, want value1", entry.Data["key1"])
	}
	if entry.Data["key2"] != 123 {
		t.Errorf("key2 = %v, want 123", entry.Data["key2"])
	}
	if entry.Data["service"] != "test" {
		t.Errorf("service = %v, want test", entry.Data["service"])
	}
}

func TestLogger_WithFields_NilFields(t *testing.T) {
	logger := New("test", "info", "json")

	entry := logger.WithFields(nil)

	if entry.Data["service"] != "test" {
		t.Errorf("service = %v, want test", entry.Data["service"])
	}
}

func TestLogger_WithError(t *testing.T) {
	logger := New("test", "info", "json")
	err := errors.New("test error")

	entry := logger.WithError(err)

	if entry.Data["error"] != "test error" {
		t.Errorf("error = %v, want test error", entry.Data["error"])
	}
	if entry.Data["service"] != "test" {
		t.Errorf("service = %v, want test", entry.Data["service"])
	}
}

func TestLogger_LogLevels(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		logLevel logrus.Level
	}{
		{"debug level", "debug", logrus.DebugLevel},
		{"info level", "info", logrus.InfoLevel},
		{"warn level", "warn", logrus.WarnLevel},
		{"error level", "error", logrus.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New("test", tt.level, "json")
			if logger.Logger.Level != tt.logLevel {
				t.Errorf("Level = %v, want %v", logger.Logger.Level, tt.logLevel)
			}
		})
	}
}

func TestLogger_JSONFormatter(t *testing.T) {
	logger := New("test", "info", "json")
	buf := &bytes.Buffer{}
	logger.Logger.SetOutput(buf)

	logger.Logger.Info("test")

	output := buf.String()
	if output == "" {
		t.Error("JSON formatter did not produce output")
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"`)) {
		t.Error("output does not appear to be JSON")
	}
}

func TestLogger_TextFormatter(t *testing.T) {
	logger := New("test", "info", "text")
	buf := &bytes.Buffer{}
	logger.Logger.SetOutput(buf)

	logger.Logger.Info("test")

	if buf.Len() == 0 {
		t.Error("text formatter did not produce output")
	}
}
