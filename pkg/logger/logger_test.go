package logger

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"buildsite/pkg/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{"info level", &config.LoggingConfig{Level: "info"}, false},
		{"debug level json", &config.LoggingConfig{Level: "debug", Format: "json"}, false},
		{"invalid log level", &config.LoggingConfig{Level: "invalid"}, true},
		{"file output", &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "buildsite.log")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
			if tt.cfg.File != "" {
				_, statErr := os.Stat(tt.cfg.File)
				assert.NoError(t, statErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"invalid", zerolog.InfoLevel, true},
		{"", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestNewWithWriterRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, zerolog.WarnLevel)

	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), `"app":"buildsite"`)
}

func TestFieldChaining(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, zerolog.DebugLevel)

	log.WithField("route", "/api/contact").
		WithFields(map[string]interface{}{"attempt": 2, "retryable": true}).
		WithError(errors.New("connection reset")).
		Info("chained fields")

	output := buf.String()
	assert.Contains(t, output, "chained fields")
	assert.Contains(t, output, `"route":"/api/contact"`)
	assert.Contains(t, output, `"attempt":2`)
	assert.Contains(t, output, `"retryable":true`)
	assert.Contains(t, output, `"error":"connection reset"`)
}

func TestWithFieldsDoesNotLeakIntoParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewWithWriter(&buf, zerolog.DebugLevel)

	_ = parent.WithField("child_only", "x")
	parent.Info("parent message")

	assert.NotContains(t, buf.String(), "child_only")
}

func TestWithErrorNil(t *testing.T) {
	log := NewWithWriter(&bytes.Buffer{}, zerolog.DebugLevel)
	assert.Same(t, log, log.WithError(nil))
}

func TestFieldTypes(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, zerolog.DebugLevel)

	log.InfoWithFields("all types", map[string]interface{}{
		"string":   "test",
		"int64":    int64(456),
		"float":    3.5,
		"time":     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		"duration": 5 * time.Second,
		"strings":  []string{"a", "b"},
		"ints":     []int{1, 2},
		"cause":    errors.New("boom"),
		"custom":   struct{ Name string }{Name: "x"},
	})

	output := buf.String()
	assert.Contains(t, output, `"int64":456`)
	assert.Contains(t, output, `"strings":["a","b"]`)
	assert.Contains(t, output, `"cause":"boom"`)
	assert.Contains(t, output, `"custom":{"Name":"x"}`)
}

func TestLogRequestLevels(t *testing.T) {
	log := NewTestLogger()

	LogRequest(log, "GET", "http://backend/contact-info", 200, time.Millisecond)
	LogRequest(log, "GET", "http://backend/pages/x", 404, time.Millisecond)
	LogRequest(log, "PUT", "http://backend/pages/x", 502, time.Millisecond)

	assert.Len(t, log.GetMessagesByLevel("DEBUG"), 1)
	assert.Len(t, log.GetMessagesByLevel("WARN"), 1)
	assert.Len(t, log.GetMessagesByLevel("ERROR"), 1)
}

func TestTestLoggerCapturesFields(t *testing.T) {
	log := NewTestLogger()
	child := log.WithField("component", "server").WithError(errors.New("bind failed"))

	child.ErrorWithFields("listen failed", map[string]interface{}{"addr": ":8080"})

	messages := log.GetMessages()
	require.Len(t, messages, 1)
	assert.Equal(t, "server", messages[0].Fields["component"])
	assert.Equal(t, ":8080", messages[0].Fields["addr"])
	assert.EqualError(t, messages[0].Error, "bind failed")
	assert.True(t, log.HasError())
	assert.True(t, strings.Contains(log.String(), "listen failed"))

	log.Clear()
	assert.Empty(t, log.GetMessages())
}

func TestNopLogger(t *testing.T) {
	log := NewNopLogger()
	log.WithField("k", "v").Info("ignored")
	assert.NotNil(t, log.GetZerolog())
}
