package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T, cfg Config) (Service, context.CancelFunc) {
	t.Helper()
	srv := New(cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() { errChan <- srv.Start(ctx) }()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", srv.Addr())
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	t.Cleanup(func() {
		cancel()
		_ = srv.Stop(context.Background())
		select {
		case err := <-errChan:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Error("server did not stop in time")
		}
	})
	return srv, cancel
}

func TestNew(t *testing.T) {
	srv := New(Config{Host: "localhost", HTTPPort: 8080}, nil)
	require.NotNil(t, srv)
	assert.Equal(t, "localhost:8080", srv.Addr())
}

func TestServer_ServesRegisteredHandlersAndMetrics(t *testing.T) {
	srv := New(Config{Host: "127.0.0.1"}, nil)
	srv.RegisterHTTPHandler("GET /hello", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "hi")
	}))
	SetDefault(srv)
	defer SetDefault(nil)
	HandleFunc("GET /bye", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Start(ctx) }()
	defer srv.Stop(context.Background())

	var addr string
	require.Eventually(t, func() bool {
		addr = srv.Addr()
		resp, err := http.Get("http://" + addr + "/hello")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return string(body) == "hi" && resp.Header.Get("X-Request-ID") != ""
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + addr + "/bye")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "msgstore_http_requests_total")
}

func TestServer_StartStop(t *testing.T) {
	startTestServer(t, Config{Host: "127.0.0.1"})
}

func TestServer_Start_AlreadyStarted(t *testing.T) {
	srv, _ := startTestServer(t, Config{Host: "127.0.0.1"})

	err := srv.Start(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server already started")
}

func TestServer_Start_PortConflict(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	port := l.Addr().(*net.TCPAddr).Port
	srv := New(Config{Host: "127.0.0.1", HTTPPort: port}, nil)

	err = srv.Start(context.Background())
	assert.Error(t, err)
}

func TestServer_StopWithRateLimiters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HTTPPort = 0
	cfg.RateLimit.Enabled = true
	srv := New(cfg, nil)
	assert.NoError(t, srv.Stop(context.Background()))
}

func TestGlobalHelpers_NoInit(t *testing.T) {
	SetDefault(nil)
	assert.Nil(t, Default())
	assert.NotPanics(t, func() {
		RegisterHTTP("/test", nil)
		HandleFunc("/test", nil)
	})
}

func TestInitDefault(t *testing.T) {
	InitDefault(Config{Host: "localhost"}, nil)
	defer SetDefault(nil)
	require.NotNil(t, Default())
	assert.NotNil(t, Default().HTTPMux())
}
