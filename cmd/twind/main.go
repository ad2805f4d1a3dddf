// Command twind runs the digital twin component engine: it wires the
// configured record store, blob store, and job queue together, registers
// the example component set below, and serves until an interrupt signal
// arrives. Grounded on the teacher's cmd/appserver/main.go (flag overrides
// layered on config, explicit store wiring, signal-driven graceful
// shutdown).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/CePseudoBE/digitaltwin-sub001/internal/blob"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/component"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/engine"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/httpenvelope"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/queue"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/queue/memqueue"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/queue/redisqueue"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/record"
	recordmemory "github.com/CePseudoBE/digitaltwin-sub001/internal/record/memory"
	recordpostgres "github.com/CePseudoBE/digitaltwin-sub001/internal/record/postgres"
	"github.com/CePseudoBE/digitaltwin-sub001/pkg/config"
	"github.com/CePseudoBE/digitaltwin-sub001/pkg/logger"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "validate configuration and registered components, print the report, and exit")
	blobDir := flag.String("blob-dir", "", "local filesystem directory for blob storage (defaults to in-memory)")
	queueBackend := flag.String("queue-backend", "memory", "job queue backend: memory or redis")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	log := logger.New("engine", cfg.Logging)

	ctx := context.Background()

	records, closeRecords, err := buildRecordStore(ctx, cfg)
	if err != nil {
		log.Error("build record store: ", err)
		os.Exit(1)
	}
	defer closeRecords()

	blobs := buildBlobStore(*blobDir)
	q := buildQueue(*queueBackend, cfg, log)

	eng, err := engine.New(cfg, records, blobs, q, log)
	if err != nil {
		log.Error("build engine: ", err)
		os.Exit(1)
	}

	for _, c := range exampleComponents() {
		if err := eng.Register(c); err != nil {
			log.Error("register component: ", err)
			os.Exit(1)
		}
	}

	report := eng.Validate()
	if *dryRun {
		fmt.Println(report.String())
		if !report.OK() {
			os.Exit(1)
		}
		return
	}
	if !report.OK() {
		log.Error("validation failed: ", report.String())
		os.Exit(1)
	}

	if err := eng.Start(ctx); err != nil {
		log.Error("start engine: ", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeoutDuration())
	defer cancel()
	if err := eng.Stop(shutdownCtx); err != nil {
		log.Error("shutdown: ", err)
		os.Exit(1)
	}
}

func buildRecordStore(ctx context.Context, cfg *config.Config) (record.Store, func(), error) {
	dsn := strings.TrimSpace(cfg.Database.DSN)
	if dsn == "" {
		store := recordmemory.New()
		return store, func() {}, nil
	}
	store, err := recordpostgres.Open(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

func buildBlobStore(dir string) blob.Store {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return blob.NewMemoryStore("/blobs")
	}
	store, err := blob.NewFilesystemStore(dir, "/blobs")
	if err != nil {
		fmt.Fprintln(os.Stderr, "build filesystem blob store:", err)
		os.Exit(1)
	}
	return store
}

func buildQueue(backend string, cfg *config.Config, log *logger.Logger) queue.Queue {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "redis":
		return redisqueue.New(cfg.Queue.RedisAddr, log)
	default:
		return memqueue.New(log)
	}
}

// exampleComponents demonstrates one of each of the five component variants
// (§4.1) wired against the engine: a Collector producing raw readings, a
// Harvester deriving a daily summary from them, a stateless Handler, an
// AssetsManager for user uploads (with tileset async-upload enabled), and a
// CustomTableManager over a caller-declared schema.
func exampleComponents() []component.Component {
	collector := component.NewCollector(
		"weather-readings", "application/json", "/weather", "0 */15 * * * *",
		func(ctx context.Context) ([]byte, error) {
			return json.Marshal(map[string]any{
				"capturedAt":  time.Now().UTC(),
				"temperature": 0.0,
			})
		},
	)

	harvester := component.NewHarvester(
		"weather-daily-summary", "application/json", "/weather-summary", "weather-readings",
		func(ctx context.Context, in component.HarvestInput) (component.HarvestResult, error) {
			payload, err := json.Marshal(map[string]any{
				"readingCount": len(in.Source),
				"summarizedAt": time.Now().UTC(),
			})
			return component.HarvestResult{Single: payload}, err
		},
	)
	harvester.SourceRange = "1d"

	systemInfo := component.NewHandler("system-info", "/system", []component.EndpointSpec{
		{Method: http.MethodGet, Path: "", Handler: func(w http.ResponseWriter, r *http.Request) {
			httpenvelope.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		}},
	})

	documents := component.NewAssetsManager("documents", "application/octet-stream", "/documents", "admin")
	documents.EnableTilesetUploads = true

	devices := component.NewCustomTableManager("devices", "application/json", "/devices", []record.ColumnSpec{
		{Name: "serial", Type: "text"},
		{Name: "active", Type: "bool"},
	})
	devices.AdminRole = "admin"

	return []component.Component{collector, harvester, systemInfo, documents, devices}
}
