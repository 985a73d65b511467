package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntrixbase/msgstore/internal/core/msgid"
	"github.com/syntrixbase/msgstore/internal/core/priority"
	"github.com/syntrixbase/msgstore/internal/core/storage/memory"
	"github.com/syntrixbase/msgstore/internal/engine"
	"github.com/syntrixbase/msgstore/internal/gateway/config"
	"github.com/syntrixbase/msgstore/internal/gateway/realtime"
)

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.New(engine.Options{Index: priority.New(msgid.NewGenerator()), Records: memory.New()})
	require.NoError(t, err)
	return e
}

func TestNewServer(t *testing.T) {
	server := NewServer(newEngine(t), nil)
	assert.NotNil(t, server.rest)
	assert.Nil(t, server.realtime)
}

func TestServer_RegisterRoutes(t *testing.T) {
	e := newEngine(t)
	rt := realtime.NewServer(e, nil, "", config.DefaultGatewayConfig().Realtime)
	server := NewServer(e, rt, WithLogger(nil))

	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/api/stats", http.StatusOK},
		{http.MethodGet, "/api/msg", http.StatusNoContent},
		// Plain GET without upgrade headers is rejected by the upgrader.
		{http.MethodGet, "/api/ws", http.StatusBadRequest},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.status, rr.Code)
		})
	}
}

func TestServer_RegisterRoutes_NoRealtime(t *testing.T) {
	mux := http.NewServeMux()
	NewServer(newEngine(t), nil).RegisterRoutes(mux)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/ws", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
