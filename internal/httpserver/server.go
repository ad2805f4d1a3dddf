// Package httpserver builds the HTTP surface of spec §4.6/§6 on
// github.com/go-chi/chi/v5, grounded in structure on the teacher's
// applications/httpapi/router.go and middleware.go: an ordered middleware
// chain (body limit -> access log -> metrics -> auth, with auth attaching the
// request id) wrapping every component-contributed route, optional gzip over
// the whole router, plus the global /healthz and /readyz handlers of §4.2/§6.
package httpserver

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/CePseudoBE/digitaltwin-sub001/internal/auth"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/httpctx"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/httpenvelope"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/metrics"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/record"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/twinerr"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/user"
	"github.com/CePseudoBE/digitaltwin-sub001/pkg/logger"
)

// Config controls the listener and request-handling defaults of §6.
type Config struct {
	Host           string
	Port           int
	BodyLimitBytes int64
	EnableGzip     bool

	// AuthDisabled bypasses reconciliation and hands every request the
	// stable mock user, per §4.4 ("When auth is disabled, reconciliation is
	// bypassed and a stable mock user is returned").
	AuthDisabled    bool
	AnonymousUserID string
}

// HealthCheck is one named readiness probe; Check returning an error marks
// /readyz unhealthy with that error's message attached.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server is the engine's HTTP surface: a chi router plus an *http.Server,
// wired with the auth provider and access-log/metrics middleware.
type Server struct {
	cfg          Config
	router       *chi.Mux
	httpServer   *http.Server
	listener     net.Listener
	authProvider auth.Provider
	reconciler   *user.Reconciler
	log          *logger.Logger
	access       zerolog.Logger

	mu           sync.Mutex
	shuttingDown bool

	healthChecks []HealthCheck
}

// New builds a Server. Routes are not mounted until RegisterRoute is
// called for each component endpoint; /healthz and /readyz are mounted
// immediately.
func New(cfg Config, authProvider auth.Provider, reconciler *user.Reconciler, log *logger.Logger, access zerolog.Logger) *Server {
	if log == nil {
		log = logger.NewDefault("httpserver")
	}
	s := &Server{
		cfg:          cfg,
		router:       chi.NewRouter(),
		authProvider: authProvider,
		reconciler:   reconciler,
		log:          log,
		access:       access,
	}
	s.router.NotFound(s.notFound)
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)
	s.AddHealthCheck("host-memory", MemoryHealthCheck(95))
	return s
}

// AddHealthCheck registers an additional probe consulted by /readyz.
func (s *Server) AddHealthCheck(name string, check func(ctx context.Context) error) {
	s.healthChecks = append(s.healthChecks, HealthCheck{Name: name, Check: check})
}

// RegisterRoute mounts one endpoint at fullPath, wrapped with the middleware
// chain of wrap (body limit, access log, metrics, auth) ahead of the handler
// itself. No panic-recovery middleware is installed.
func (s *Server) RegisterRoute(method, fullPath string, handler http.HandlerFunc) {
	wrapped := s.wrap(handler)
	s.router.Method(method, fullPath, wrapped)
}

// wrap applies the middleware chain of §4.6 to a single component handler:
// body limit, access log, metrics, then auth (which populates httpctx before
// the handler runs).
func (s *Server) wrap(next http.HandlerFunc) http.HandlerFunc {
	h := http.Handler(next)
	h = s.authMiddleware(h)
	h = s.metricsMiddleware(h)
	h = s.accessLogMiddleware(h)
	h = s.bodyLimitMiddleware(h)
	return h.ServeHTTP
}

// Router exposes the underlying chi.Mux, for tests that drive requests
// directly through it without a bound listener.
func (s *Server) Router() *chi.Mux { return s.router }

// bodyLimitMiddleware caps request body size at cfg.BodyLimitBytes (§6).
func (s *Server) bodyLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.BodyLimitBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.BodyLimitBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// accessLogMiddleware logs one line of request context per request, at
// error level for 5xx responses and at info level otherwise (§4.6d),
// grounded on the teacher's wrapWithAudit (applications/httpapi/
// middleware_audit.go): a lightweight zerolog line distinct from the
// component-level structured (logrus) logger.
func (s *Server) accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		evt := s.access.Info()
		if ww.Status() >= 500 {
			evt = s.access.Error()
		}
		evt.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("requestId", httpenvelope.RequestID(r)).
			Str("userId", httpenvelope.CallerID(r)).
			Msg("http request")
	})
}

// metricsMiddleware records the request's outcome against internal/metrics.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		metrics.ObserveHTTP(r.Method, route, ww.Status(), start)
	})
}

// authMiddleware implements §4.3/§4.4: classify the request under the
// configured auth provider, reconcile (or mock) the caller, and attach both
// the caller and a request id to the request context before the handler
// runs.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := httpctx.WithRequestID(r.Context(), httpenvelope.RequestID(r))

		if !s.authProvider.HasValidAuth(r) {
			httpenvelope.Error(w, r, twinerr.New(twinerr.Authentication, "missing or invalid credentials"))
			return
		}
		identity, err := s.authProvider.ParseRequest(r)
		if err != nil {
			httpenvelope.Error(w, r, err)
			return
		}

		reconciled, err := s.resolveUser(ctx, identity)
		if err != nil {
			httpenvelope.Error(w, r, twinerr.Wrap(twinerr.Database, "failed to reconcile user", err))
			return
		}

		ctx = httpctx.WithUser(ctx, reconciled)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) resolveUser(ctx context.Context, identity auth.Identity) (record.User, error) {
	if s.cfg.AuthDisabled {
		return user.MockUser(s.cfg.AnonymousUserID), nil
	}
	return s.reconciler.Reconcile(ctx, identity)
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	httpenvelope.Error(w, r, twinerr.New(twinerr.NotFound, "no route matches "+r.Method+" "+r.URL.Path))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	down := s.shuttingDown
	s.mu.Unlock()
	if down {
		httpenvelope.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	httpenvelope.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	down := s.shuttingDown
	checks := append([]HealthCheck(nil), s.healthChecks...)
	s.mu.Unlock()

	if down {
		httpenvelope.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "reason": "shutting down"})
		return
	}

	failures := map[string]string{}
	for _, c := range checks {
		if err := c.Check(r.Context()); err != nil {
			failures[c.Name] = err.Error()
		}
	}
	if len(failures) > 0 {
		httpenvelope.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unhealthy", "failures": failures})
		return
	}
	httpenvelope.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Start binds the listener and begins serving (§4.2 step 4). Port 0 means
// "any free port"; call Port after Start to retrieve the one the OS chose.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return twinerr.Wrap(twinerr.Configuration, "failed to bind http listener", err)
	}
	s.listener = ln

	handler := http.Handler(s.router)
	if s.cfg.EnableGzip {
		handler = chimiddleware.Compress(5)(handler)
	}
	s.httpServer = &http.Server{Handler: handler}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("http server exited: ", err)
		}
	}()
	return nil
}

// Port returns the bound listener's port, resolving a requested port=0 to
// the OS-assigned value.
func (s *Server) Port() int {
	if s.listener == nil {
		return s.cfg.Port
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Stop implements §4.2's shutdown steps 1-2: mark shutting down (so
// subsequent health checks report unhealthy) and refuse new connections.
// Idempotent: a second call returns immediately.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return nil
	}
	s.shuttingDown = true
	s.mu.Unlock()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
