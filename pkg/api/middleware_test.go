package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goran-ethernal/DIDIndexor/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	})
}

func TestCORSMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantOrigin string
	}{
		{name: "wildcard echoes origin", allowed: []string{"*"}, origin: "https://example.com", method: http.MethodGet, wantOrigin: "https://example.com"},
		{name: "wildcard without origin", allowed: []string{"*"}, method: http.MethodGet, wantOrigin: "*"},
		{name: "listed origin", allowed: []string{"https://a.com", "https://b.com"}, origin: "https://b.com", method: http.MethodGet, wantOrigin: "https://b.com"},
		{name: "unlisted origin", allowed: []string{"https://a.com"}, origin: "https://evil.com", method: http.MethodGet},
		{name: "empty list", allowed: []string{}, origin: "https://a.com", method: http.MethodGet},
		{name: "preflight", allowed: []string{"https://a.com"}, origin: "https://a.com", method: http.MethodOptions, wantOrigin: "https://a.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(tt.method, "/api/v1/stats", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()

			CORSMiddleware(tt.allowed)(okHandler("OK")).ServeHTTP(w, req)

			require.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantOrigin != "" {
				require.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
				require.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Content-Type")
				require.Equal(t, corsMaxAge, w.Header().Get("Access-Control-Max-Age"))
			}

			require.Equal(t, http.StatusOK, w.Code)
			if tt.method == http.MethodOptions {
				require.Empty(t, w.Body.String())
			} else {
				require.Equal(t, "OK", w.Body.String())
			}
		})
	}
}

func TestLoggingMiddleware_KeepsStatus(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusOK, http.StatusCreated, http.StatusNotFound, http.StatusInternalServerError} {
		h := LoggingMiddleware(logger.NewNopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))
		require.Equal(t, status, w.Code)
	}
}

func TestResponseWriter(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
	wrapped.WriteHeader(http.StatusAccepted)
	wrapped.WriteHeader(http.StatusBadRequest)

	require.Equal(t, http.StatusAccepted, wrapped.statusCode)
	require.Equal(t, http.StatusAccepted, w.Code)

	w = httptest.NewRecorder()
	wrapped = &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
	_, err := wrapped.Write([]byte("implicit"))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, wrapped.statusCode)
}

func TestRecoveryMiddleware(t *testing.T) {
	t.Parallel()

	for _, p := range []any{"boom", assert.AnError, 42} {
		h := RecoveryMiddleware(logger.NewNopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic(p)
		}))

		w := httptest.NewRecorder()
		require.NotPanics(t, func() {
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
		})
		require.Equal(t, http.StatusInternalServerError, w.Code)
		require.Equal(t, "Internal Server Error\n", w.Body.String())
	}

	w := httptest.NewRecorder()
	RecoveryMiddleware(logger.NewNopLogger())(okHandler("fine")).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, "fine", w.Body.String())
}
