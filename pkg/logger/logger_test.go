package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"warn", WarnLevel},
		{"warning", WarnLevel},
		{"error", ErrorLevel},
		{"unknown", InfoLevel},
		{"", InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "debug", DebugLevel.String())
	assert.Equal(t, "error", ErrorLevel.String())
	assert.Equal(t, "unknown", Level(99).String())
}

func TestSlogLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, WarnLevel, "json")

	log.Info("dropped")
	assert.Zero(t, buf.Len())

	log.Warn("kept", "memory_id", "m1")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "kept", rec["message"])
	assert.Equal(t, "m1", rec["memory_id"])
}

func TestSlogLogger_SetLevelReachesNamedChildren(t *testing.T) {
	var buf bytes.Buffer
	root := NewWithWriter(&buf, ErrorLevel, "text")
	child := root.Named("retrieval")

	child.Info("before")
	assert.Zero(t, buf.Len())

	root.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, child.GetLevel())
	child.Debug("after")
	assert.Contains(t, buf.String(), "component=retrieval")
	assert.Contains(t, buf.String(), "after")
}

func TestSlogLogger_ContextAddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, InfoLevel, "json")

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	log.InfoContext(ctx, "traced")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, traceID.String(), rec["trace_id"])
	assert.Equal(t, spanID.String(), rec["span_id"])
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, InfoLevel, "json")
	ctx := log.WithContext(context.Background())
	assert.Same(t, log, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestSetGlobal(t *testing.T) {
	prev := Global()
	t.Cleanup(func() { SetGlobal(prev) })

	var buf bytes.Buffer
	SetGlobal(NewWithWriter(&buf, InfoLevel, "text"))
	Info("hello from global")
	assert.Contains(t, buf.String(), "hello from global")
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mnemo.log")
	log := New(&Config{Level: InfoLevel, Format: "json", Output: path})
	log.Info("to file")
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}
