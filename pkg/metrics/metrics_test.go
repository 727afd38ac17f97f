package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Manager) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestNewManager(t *testing.T) {
	m := NewManager(DefaultConfig())
	require.NotNil(t, m)
	assert.True(t, m.Enabled())
	assert.NotNil(t, m.Registry())
}

func TestNewManager_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	m := NewManager(cfg)
	assert.False(t, m.Enabled())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNoOpManager_AcceptsCalls(t *testing.T) {
	m := NoOpManager()
	assert.NotPanics(t, func() {
		m.RecordRetrieval("hybrid", 2, 5, time.Millisecond, nil)
		m.RecordConsolidation(1, 2, 3, 4, 5, time.Second)
		m.RecordEvolution(true, "")
		m.SetWeights(0.3, 0.3, 0.4, map[string]float64{"session": 1.5})
		m.RecordMemoryWrite("remember")
		m.RecordCacheLookup(true)
		m.RecordEmbedding("ollama", nil)
		m.RecordHTTPRequest("GET", "/health", "200", time.Millisecond)
		m.SetWebSocketClients(3)
	})
}

func TestRecordRetrieval(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.RecordRetrieval("hybrid", 3, 4, 20*time.Millisecond, nil)
	m.RecordRetrieval("lexical", 1, 0, time.Millisecond, errors.New("index down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.retrievals.WithLabelValues("hybrid", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retrievals.WithLabelValues("lexical", "error")))
	assert.Contains(t, scrape(t, m), "mnemo_retrieval_duration_seconds")
}

func TestRecordConsolidation(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.RecordConsolidation(2, 1, 3, 0, 1, time.Second)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.consolidationItems.WithLabelValues("promoted")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.consolidationItems.WithLabelValues("merged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.consolidationItems.WithLabelValues("failed")))
}

func TestRecordEvolutionAndWeights(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.RecordEvolution(false, "insufficient_samples")
	m.RecordEvolution(true, "")
	m.SetWeights(0.25, 0.35, 0.4, map[string]float64{"session": 1.5, "user": 0.7})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.evolutionPasses.WithLabelValues("rejected", "insufficient_samples")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.evolutionPasses.WithLabelValues("accepted", "")))
	assert.Equal(t, 0.35, testutil.ToFloat64(m.rankingWeight.WithLabelValues("vector")))
	assert.Equal(t, 0.7, testutil.ToFloat64(m.scopeWeight.WithLabelValues("user")))
}

func TestStorageMetrics(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)
	m.RecordCacheLookup(false)
	m.RecordEmbedding("ollama", errors.New("timeout"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.embeddings.WithLabelValues("ollama", "error")))
}

func TestHTTPMetrics(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.RecordHTTPRequestContext(context.Background(), "POST", "/api/v1/retrieve", "200", 5*time.Millisecond)
	m.IncActiveConnections()
	m.IncActiveConnections()
	m.DecActiveConnections()
	m.SetWebSocketClients(4)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "/api/v1/retrieve", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpConnections))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.wsClients))
	body := scrape(t, m)
	assert.True(t, strings.Contains(body, "mnemo_http_request_duration_seconds"))
}

func TestStartServer_DisabledReturnsImmediately(t *testing.T) {
	m := NoOpManager()
	assert.NoError(t, m.StartServer(context.Background(), 0, "/metrics"))
}

func TestStartServer_StopsOnContextCancel(t *testing.T) {
	m := NewManager(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- m.StartServer(ctx, 0, "/metrics") }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}
