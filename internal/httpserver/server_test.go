package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/CePseudoBE/digitaltwin-sub001/internal/auth"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := Config{Host: "127.0.0.1", AuthDisabled: true, AnonymousUserID: "anon"}
	return New(cfg, auth.NewNoneProvider("anon"), nil, nil, zerolog.Nop())
}

// TestHealthzReportsHealthyUntilStop covers §4.2's shutdown step 1: /healthz
// flips to 503 once Stop has been called, and stays clean before that.
func TestHealthzReportsHealthyUntilStop(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)

	s.mu.Lock()
	s.shuttingDown = true
	s.mu.Unlock()

	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// TestReadyzFailsWhenHealthCheckErrors exercises the §6 /readyz aggregation
// of registered HealthChecks.
func TestReadyzFailsWhenHealthCheckErrors(t *testing.T) {
	s := newTestServer(t)
	s.AddHealthCheck("downstream", func(_ context.Context) error {
		return errors.New("unreachable")
	})

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), "downstream")
}

// TestReadyzOkWhenAllChecksPass confirms the built-in host-memory check and
// a passing custom check both let /readyz report ready.
func TestReadyzOkWhenAllChecksPass(t *testing.T) {
	s := newTestServer(t)
	s.AddHealthCheck("downstream", func(_ context.Context) error { return nil })

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

// TestRegisterRouteRunsAuthDisabledRequestThroughHandler verifies a
// component route mounted via RegisterRoute is reachable, and that
// AuthDisabled populates httpctx with the mock user rather than rejecting
// the request.
func TestRegisterRouteRunsAuthDisabledRequestThroughHandler(t *testing.T) {
	s := newTestServer(t)
	s.RegisterRoute(http.MethodGet, "/widgets", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/widgets", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", w.Body.String())
}

// TestUnknownRouteReturnsEnvelopeNotFound covers the notFound handler's use
// of the structured error envelope.
func TestUnknownRouteReturnsEnvelopeNotFound(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/does-not-exist", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), `"error"`)
}

// TestBodyLimitMiddlewareRejectsOversizedBody covers §6's request body cap.
func TestBodyLimitMiddlewareRejectsOversizedBody(t *testing.T) {
	cfg := Config{Host: "127.0.0.1", AuthDisabled: true, BodyLimitBytes: 4}
	s := New(cfg, auth.NewNoneProvider("anon"), nil, nil, zerolog.Nop())
	s.RegisterRoute(http.MethodPost, "/upload", func(w http.ResponseWriter, r *http.Request) {
		_, err := http.MaxBytesReader(w, r.Body, 4).Read(make([]byte, 1024))
		if err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("this body is too long"))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

// TestStopIsIdempotent confirms a repeated Stop call (no listener started)
// does not error.
func TestStopIsIdempotent(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
}

// TestPortBeforeStartReturnsConfiguredPort ensures Port() falls back to the
// configured value before Start binds a listener.
func TestPortBeforeStartReturnsConfiguredPort(t *testing.T) {
	cfg := Config{Host: "127.0.0.1", Port: 9999}
	s := New(cfg, auth.NewNoneProvider("anon"), nil, nil, zerolog.Nop())
	require.Equal(t, 9999, s.Port())
}

// TestStartBindsEphemeralPortAndServes exercises the full bind-then-stop
// lifecycle with an OS-assigned port.
func TestStartBindsEphemeralPortAndServes(t *testing.T) {
	s := newTestServer(t)
	s.RegisterRoute(http.MethodGet, "/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, s.Start(context.Background()))
	require.NotZero(t, s.Port())

	require.NoError(t, s.Stop(context.Background()))
}
