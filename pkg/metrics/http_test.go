package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func durationExemplars(t *testing.T, m *Manager, path string) []*dto.Exemplar {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var out []*dto.Exemplar
	for _, mf := range families {
		if mf.GetName() != "mnemo_http_request_duration_seconds" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			matched := false
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "path" && lp.GetValue() == path {
					matched = true
				}
			}
			if !matched {
				continue
			}
			for _, b := range metric.GetHistogram().GetBucket() {
				if b.GetExemplar() != nil {
					out = append(out, b.GetExemplar())
				}
			}
		}
	}
	return out
}

func TestRecordHTTPRequestContext_AttachesSpanExemplar(t *testing.T) {
	m := NewManager(DefaultConfig())
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		SpanID:     trace.SpanID{9, 8, 7, 6, 5, 4, 3, 2},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	m.RecordHTTPRequestContext(ctx, "POST", "/api/v1/retrieve", "200", 12*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "/api/v1/retrieve", "200")))
	exemplars := durationExemplars(t, m, "/api/v1/retrieve")
	require.Len(t, exemplars, 1)
	labels := map[string]string{}
	for _, lp := range exemplars[0].GetLabel() {
		labels[lp.GetName()] = lp.GetValue()
	}
	assert.Equal(t, sc.TraceID().String(), labels["trace_id"])
	assert.Equal(t, sc.SpanID().String(), labels["span_id"])
	assert.InDelta(t, 0.012, exemplars[0].GetValue(), 1e-9)
}

func TestRecordHTTPRequestContext_NoSpanNoExemplar(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.RecordHTTPRequestContext(context.Background(), "GET", "/api/v1/status", "200", time.Millisecond)
	m.RecordHTTPRequest("GET", "/api/v1/status", "200", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/v1/status", "200")))
	assert.Empty(t, durationExemplars(t, m, "/api/v1/status"))

	_, ok := traceExemplarLabels(context.Background())
	assert.False(t, ok)
}

func TestRecordHTTPRequest_DisabledIsNoop(t *testing.T) {
	m := NoOpManager()
	assert.NotPanics(t, func() {
		m.RecordHTTPRequestContext(context.Background(), "POST", "/api/v1/memories", "201", time.Millisecond)
		m.RecordHTTPRequest("POST", "/api/v1/memories", "201", time.Millisecond)
		m.IncActiveConnections()
		m.DecActiveConnections()
		m.SetWebSocketClients(2)
	})
}
