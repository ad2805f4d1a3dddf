// Package engine composes the blob store, record store, auth provider,
// scheduler, and HTTP server into the single startup/shutdown unit of
// spec §4.2, grounded on the teacher's system/core/engine.go
// facade-over-subsystems shape and system/core/lifecycle.go (ordered
// start, reverse-order stop, per-module error isolation during stop).
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/CePseudoBE/digitaltwin-sub001/internal/auth"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/blob"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/component"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/httpenvelope"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/httpserver"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/queue"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/record"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/scheduler"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/twinerr"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/user"
	"github.com/CePseudoBE/digitaltwin-sub001/pkg/config"
	"github.com/CePseudoBE/digitaltwin-sub001/pkg/logger"
)

// Engine is the facade over every subsystem a running instance needs: it
// owns component registration and drives the startup/shutdown sequence of
// §4.2. One Engine is built per process.
type Engine struct {
	cfg *config.Config
	log *logger.Logger

	records record.Store
	blobs   blob.Store
	q       queue.Queue

	authProvider auth.Provider
	reconciler   *user.Reconciler
	scheduler    *scheduler.Scheduler
	http         *httpserver.Server

	mu             sync.Mutex
	components     []component.Component
	keys           map[string]bool
	started        bool
	isShuttingDown bool
}

// New builds an Engine over the given record store, blob store, and job
// queue. Call Register for each component, then Start.
func New(cfg *config.Config, records record.Store, blobs blob.Store, q queue.Queue, log *logger.Logger) (*Engine, error) {
	if log == nil {
		log = logger.NewDefault("engine")
	}
	authProvider, err := auth.NewFromConfig(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("build auth provider: %w", err)
	}
	httpenvelope.SetProduction(cfg.IsProduction())

	e := &Engine{
		cfg:          cfg,
		log:          log,
		records:      records,
		blobs:        blobs,
		q:            q,
		authProvider: authProvider,
		reconciler:   user.New(records),
		keys:         make(map[string]bool),
	}

	e.scheduler = scheduler.New(q, records, blobs, log,
		scheduler.WithLegacySingleQueue(cfg.Queue.LegacySingleQueue),
		scheduler.WithUploadConcurrency(cfg.Queue.UploadConcurrency),
	)

	e.http = httpserver.New(httpserver.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		BodyLimitBytes:  cfg.Server.BodyLimitBytes,
		EnableGzip:      cfg.Server.EnableGzip,
		AuthDisabled:    cfg.Auth.Mode_() == config.AuthModeNone,
		AnonymousUserID: cfg.Auth.AnonymousUserID,
	}, authProvider, e.reconciler, log, httpserver.NewAccessLogger(cfg.Logging))

	return e, nil
}

// Register adds a component to the engine, rejecting a duplicate
// {name, variant} pair (§3.2 invariant). Call before Start.
func (e *Engine) Register(c component.Component) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return twinerr.New(twinerr.Configuration, "cannot register a component after the engine has started")
	}
	cfg := c.Configuration()
	key := cfg.Name + "|" + string(cfg.Variant)
	if e.keys[key] {
		return twinerr.New(twinerr.Configuration, fmt.Sprintf("duplicate component %s (%s)", cfg.Name, cfg.Variant))
	}
	e.keys[key] = true
	e.components = append(e.components, c)
	return nil
}

// HTTPServer exposes the underlying HTTP server for tests and for hosts
// that need the bound port after Start.
func (e *Engine) HTTPServer() *httpserver.Server { return e.http }

// hasTable reports whether c is backed by a record-store table per §3.1: all
// variants except Handler.
func hasTable(c component.Component) bool {
	switch c.(type) {
	case *component.Collector, *component.Harvester, *component.AssetsManager, *component.CustomTableManager:
		return true
	default:
		return false
	}
}

// tableColumns returns the column schema to pass to EnsureTable: a
// TableOwner declares its own, everything else backed by a table relies on
// the store's fixed schema (an empty slice).
func tableColumns(c component.Component) []record.ColumnSpec {
	if owner, ok := c.(component.TableOwner); ok {
		return owner.TableColumns()
	}
	return nil
}

// Start runs the §4.2 startup sequence: ensure tables, inject dependencies,
// start the HTTP server, hand components to the scheduler.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return twinerr.New(twinerr.Configuration, "engine already started")
	}
	components := append([]component.Component(nil), e.components...)
	e.started = true
	e.mu.Unlock()

	// Step 2: ensure/migrate each component's backing table, reporting diffs.
	for _, c := range components {
		if !hasTable(c) {
			continue
		}
		name := c.Configuration().Name
		if err := record.ValidateTableName(name); err != nil {
			return err
		}
		migration, err := e.records.EnsureTable(ctx, name, tableColumns(c))
		if err != nil {
			return fmt.Errorf("ensure table %s: %w", name, err)
		}
		if migration.Changed() {
			e.log.WithField("table", name).Infof("migrated table: created=%v addedColumns=%v", migration.TableCreated, migration.ColumnsAdded)
		}
	}

	// Step 3: inject stores and the upload queue.
	for _, c := range components {
		if consumer, ok := c.(component.DependencyConsumer); ok {
			consumer.SetStores(e.records, e.blobs)
		}
		if consumer, ok := c.(component.UploadQueueConsumer); ok {
			consumer.SetUploadQueue(e.scheduler.UploadEnqueuer())
		}
	}

	// Step 4: mount global handlers (already done in httpserver.New) and
	// each component's endpoints, then start the listener.
	for _, c := range components {
		servable, ok := c.(component.Servable)
		if !ok {
			continue
		}
		endpoints := servable.Endpoints()
		if err := component.ValidateEndpoints(endpoints); err != nil {
			return fmt.Errorf("component %s: %w", c.Configuration().Name, err)
		}
		base := c.Configuration().Endpoint
		for _, ep := range endpoints {
			e.http.RegisterRoute(ep.Method, base+ep.Path, ep.Handler)
		}
	}
	if err := e.http.Start(ctx); err != nil {
		return err
	}

	// Step 5: hand the component set to the scheduler.
	if err := e.scheduler.Register(ctx, components); err != nil {
		return fmt.Errorf("register scheduler jobs: %w", err)
	}
	if err := e.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	e.log.WithField("port", e.http.Port()).Info("engine started")
	return nil
}

// Stop implements the §4.2 shutdown sequence: idempotent, bounded by
// cfg.Server.ShutdownTimeoutDuration(). A second call returns promptly.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.isShuttingDown {
		e.mu.Unlock()
		return nil
	}
	e.isShuttingDown = true
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Server.ShutdownTimeoutDuration())
	defer cancel()

	var firstErr error
	note := func(step string, err error) {
		if err == nil {
			return
		}
		e.log.Error(step+": ", err)
		if firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", step, err)
		}
	}

	note("stop http listener", e.http.Stop(ctx))
	note("close scheduler", e.scheduler.Close(ctx))
	note("close record store", e.records.Close())

	return firstErr
}
