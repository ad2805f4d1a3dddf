// Package component declares the shared contract and capability interfaces
// of spec §4.1/§9 Design Notes: a tagged union of five variants plus the
// capability interfaces consumers check via type assertion, mirroring the
// teacher's ServiceModule + capability-interface pattern in
// system/core/interfaces.go rather than reflection or struct tags.
package component

import (
	"net/http"

	"github.com/CePseudoBE/digitaltwin-sub001/internal/blob"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/record"
)

// Variant names the five component shapes of §4.1.
type Variant string

const (
	VariantCollector          Variant = "collector"
	VariantHarvester          Variant = "harvester"
	VariantHandler            Variant = "handler"
	VariantAssetsManager      Variant = "assets_manager"
	VariantCustomTableManager Variant = "custom_table_manager"
)

// Configuration is the shared declaration every variant carries (§3.1).
type Configuration struct {
	Name        string
	Variant     Variant
	ContentType string
	Endpoint    string
	Description string
	Tags        []string
}

// Component is the contract every variant satisfies.
type Component interface {
	Configuration() Configuration
}

// Schedulable is implemented by variants the scheduler registers a
// cron-pattern job for (Collector, Harvester in scheduled mode).
type Schedulable interface {
	Component
	CronPattern() string
}

// EndpointSpec is the builder-pattern endpoint declaration of Design Notes
// §9: each Servable constructs a slice of these in its constructor; the
// engine consumes the slice directly with zero reflection.
type EndpointSpec struct {
	Method      string
	Path        string
	Handler     http.HandlerFunc
	ContentType string
}

// Servable is implemented by variants that contribute HTTP routes.
type Servable interface {
	Component
	Endpoints() []EndpointSpec
}

// DependencyConsumer receives the shared record/blob stores at startup
// (§4.2 step 3), before Start.
type DependencyConsumer interface {
	SetStores(records record.Store, blobs blob.Store)
}

// UploadEnqueuer is the subset of the upload queue a component needs to
// submit an async upload job (§4.5.2); kept local to avoid a component ->
// queue package dependency beyond this one method.
type UploadEnqueuer interface {
	EnqueueUpload(componentName, jobID string, payload map[string]any) error
}

// UploadQueueConsumer receives the upload queue (§4.2 step 3, for
// upload-heavy variants; AssetsManager is the variant that implements it).
type UploadQueueConsumer interface {
	SetUploadQueue(q UploadEnqueuer)
}

// TableOwner is implemented by variants backed by a record-store table whose
// column schema the engine must pass to EnsureTable at startup (§4.2 step
// 2). Collector and Harvester use the store's fixed schema and do not
// implement this; CustomTableManager declares caller-defined columns.
type TableOwner interface {
	Component
	TableColumns() []record.ColumnSpec
}

var validMethods = map[string]bool{
	http.MethodGet: true, http.MethodPost: true, http.MethodPut: true,
	http.MethodPatch: true, http.MethodDelete: true,
}

// ValidateEndpoints rejects any endpoint declaring an unsupported HTTP
// method, per §4.6 ("Unsupported HTTP methods fail startup").
func ValidateEndpoints(endpoints []EndpointSpec) error {
	for _, e := range endpoints {
		if !validMethods[e.Method] {
			return &UnsupportedMethodError{Method: e.Method, Path: e.Path}
		}
	}
	return nil
}

// UnsupportedMethodError reports an endpoint declaring a method the engine
// does not route.
type UnsupportedMethodError struct {
	Method string
	Path   string
}

func (e *UnsupportedMethodError) Error() string {
	return "unsupported HTTP method " + e.Method + " for path " + e.Path
}
