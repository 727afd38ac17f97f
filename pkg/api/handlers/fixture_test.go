package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/goclaw/mnemo/config"
	"github.com/goclaw/mnemo/pkg/api/response"
	"github.com/goclaw/mnemo/pkg/index"
	"github.com/goclaw/mnemo/pkg/memory"
	"github.com/goclaw/mnemo/pkg/storage/badger"
	"github.com/stretchr/testify/require"
)

type handlerFixture struct {
	hub         *memory.Hub
	memory      *MemoryHandler
	retrieval   *RetrievalHandler
	maintenance *MaintenanceHandler
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	store, err := badger.New(&badger.Config{InMemory: true}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.DefaultConfig().Memory
	hub := memory.NewHub(&cfg, store, index.New(nil, nil))
	require.NoError(t, hub.Open(context.Background()))

	log := testLogger()
	return &handlerFixture{
		hub:         hub,
		memory:      NewMemoryHandler(hub, log),
		retrieval:   NewRetrievalHandler(hub, log),
		maintenance: NewMaintenanceHandler(hub, log),
	}
}

func (f *handlerFixture) remember(t *testing.T, content string) *memory.Memory {
	t.Helper()
	m, err := f.hub.Remember(context.Background(), memory.RememberRequest{
		Content:    content,
		Scope:      memory.ScopeSession,
		Owners:     memory.Owners{SessionID: "s1", ProjectID: "p1", UserID: "u1"},
		Importance: 0.6,
	})
	require.NoError(t, err)
	return m
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[response.ErrorResponse](t, w).Error.Code
}

