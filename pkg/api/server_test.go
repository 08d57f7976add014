package api

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goran-ethernal/DIDIndexor/internal/common"
	"github.com/goran-ethernal/DIDIndexor/internal/logger"
	"github.com/goran-ethernal/DIDIndexor/pkg/config"
	"github.com/goran-ethernal/DIDIndexor/pkg/indexer"
	"github.com/stretchr/testify/require"
)

func testAPIConfig(addr string) *config.APIConfig {
	return &config.APIConfig{
		Enabled:       true,
		ListenAddress: addr,
		ReadTimeout:   common.Duration{Duration: 5 * time.Second},
		WriteTimeout:  common.Duration{Duration: 10 * time.Second},
		IdleTimeout:   common.Duration{Duration: 60 * time.Second},
	}
}

func TestNewServer(t *testing.T) {
	t.Parallel()

	server := NewServer(testAPIConfig("localhost:8080"), &fakeController{}, nil, logger.NewNopLogger())

	require.NotNil(t, server.handler)
	require.Equal(t, "localhost:8080", server.server.Addr)
	require.Equal(t, 5*time.Second, server.server.ReadTimeout)
	require.Equal(t, 10*time.Second, server.server.WriteTimeout)
	require.Equal(t, 60*time.Second, server.server.IdleTimeout)
}

func TestServer_CORS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		cors       config.CORSConfig
		wantOrigin string
	}{
		{
			name:       "enabled",
			cors:       config.CORSConfig{Enabled: true, AllowedOrigins: []string{"http://localhost:3000"}},
			wantOrigin: "http://localhost:3000",
		},
		{
			name:       "disabled",
			cors:       config.CORSConfig{Enabled: false, AllowedOrigins: []string{"http://localhost:3000"}},
			wantOrigin: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := testAPIConfig(":0")
			cfg.CORS = tt.cors
			server := NewServer(cfg, &fakeController{}, nil, logger.NewNopLogger())

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.Header.Set("Origin", "http://localhost:3000")
			w := httptest.NewRecorder()
			server.Handler().ServeHTTP(w, req)

			require.Equal(t, http.StatusOK, w.Code)
			require.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestServer_SwaggerDoc(t *testing.T) {
	t.Parallel()

	server := NewServer(testAPIConfig(":0"), &fakeController{}, nil, logger.NewNopLogger())

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "DIDIndexor API")
	require.Contains(t, w.Body.String(), "/dids/{didHash}/pointers")
}

func TestServer_Start_Disabled(t *testing.T) {
	t.Parallel()

	cfg := testAPIConfig(":8080")
	cfg.Enabled = false
	server := NewServer(cfg, &fakeController{}, nil, logger.NewNopLogger())

	done := make(chan error, 1)
	go func() {
		done <- server.Start(t.Context())
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start() did not return when server is disabled")
	}
}

func TestServer_Start_GracefulShutdown(t *testing.T) {
	t.Parallel()

	ctl := &fakeController{}
	server := NewServer(testAPIConfig("localhost:0"), ctl, nil, logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- server.Start(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(shutdownCtxTimeout + 5*time.Second):
		t.Fatal("Server did not shutdown gracefully within timeout")
	}

	// runs started through the API end with the server
	server.handler.StartIndexer(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/indexer/start", nil))
	require.Equal(t, indexer.StateRunning, ctl.Health().Status)
	require.ErrorIs(t, ctl.startCtx.Err(), context.Canceled)
}

func TestServer_Start_AddressInUse(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	server := NewServer(testAPIConfig(ln.Addr().String()), &fakeController{}, nil, logger.NewNopLogger())

	done := make(chan error, 1)
	go func() {
		done <- server.Start(t.Context())
	}()

	select {
	case err := <-done:
		require.ErrorContains(t, err, "API server error")
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not report the listen error")
	}
}
