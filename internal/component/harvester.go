package component

import (
	"context"

	"github.com/CePseudoBE/digitaltwin-sub001/internal/record"
)

// TriggerMode selects when a Harvester runs (§4.1, §4.5).
type TriggerMode string

const (
	TriggerOnSource  TriggerMode = "onSource"
	TriggerScheduled TriggerMode = "scheduled"
	TriggerBoth      TriggerMode = "both"
)

// Dependency is one entry of a Harvester's dependencies[]/dependenciesLimit[]
// pair (§4.5.1 step 8).
type Dependency struct {
	Name  string
	Limit int
}

// HarvestInput is what the framework passes to a Harvester's harvest
// function: either a single source record (when limit==1 and no endDate) or
// a slice, plus fetched dependency data keyed by dependency name.
type HarvestInput struct {
	Source    []record.Record
	SourceOne bool // true when Source should be treated as a single-record call
	Deps      map[string][]record.Record
}

// HarvestResult is what a Harvester's harvest function returns: either a
// single payload or, when MultipleResults is set, one payload per source
// record.
type HarvestResult struct {
	Single  []byte
	Results [][]byte
}

// Harvester is the derivation variant of §4.1; HarvestFn implements the
// user-code half of the algorithm described in §4.5.1.
type Harvester struct {
	Base

	Source          string
	SourceRange     string // numeric (count) or "<N><d|h|m|s>" (time window); defaults to "1"
	TriggerMode     TriggerMode
	DebounceMs      int
	Dependencies    []Dependency
	MultipleResults bool
	SourceRangeMin  bool

	schedule string

	HarvestFn func(ctx context.Context, in HarvestInput) (HarvestResult, error)
}

// NewHarvester builds a Harvester with the §4.5.1 defaults applied where the
// caller leaves a field zero-valued.
func NewHarvester(name, contentType, endpoint, source string, harvest func(ctx context.Context, in HarvestInput) (HarvestResult, error)) *Harvester {
	return &Harvester{
		Base:        Base{Name: name, Variant: VariantHarvester, ContentType: contentType, Endpoint: endpoint},
		Source:      source,
		SourceRange: "1",
		TriggerMode: TriggerOnSource,
		DebounceMs:  1000,
		HarvestFn:   harvest,
	}
}

// CronPattern satisfies Schedulable when the Harvester's trigger mode calls
// for a scheduled registration; callers set the pattern via SetSchedule.
func (h *Harvester) CronPattern() string { return h.schedule }

// SetSchedule declares the cron pattern used when TriggerMode is Scheduled
// or Both.
func (h *Harvester) SetSchedule(pattern string) *Harvester {
	h.schedule = pattern
	return h
}

var _ Schedulable = (*Harvester)(nil)
