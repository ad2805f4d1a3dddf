// Package scheduler implements §4.5/§5: cron-pattern job registration for
// Collectors and scheduled Harvesters, debounced event-triggered Harvester
// runs, and the worker pools that dispatch queued jobs to component run
// steps. It is grounded on the teacher's system/core/bus.go (pub/sub) and
// system/core/lifecycle.go (ordered start/stop), adapted to the fixed
// four-queue topology of §4.5 rather than the teacher's open-ended module
// registry.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/CePseudoBE/digitaltwin-sub001/internal/blob"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/component"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/metrics"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/queue"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/record"
	"github.com/CePseudoBE/digitaltwin-sub001/pkg/logger"
)

// sourceEventRetry is the debounced harvester trigger's one-shot enqueue
// retention of §4.5 ("retention 3 attempts and exponential backoff"),
// distinct from the harvesters queue's default 5-attempt policy which
// governs scheduled/legacy-enqueued jobs.
var sourceEventRetry = queue.RetryPolicy{Attempts: 3, BackoffBase: 5 * time.Second, ExponentialBO: true}

// Scheduler owns the name->component map, the name->debounced-trigger map,
// and the queue set (§4.5). It is constructed once per engine instance.
type Scheduler struct {
	q       queue.Queue
	records record.Store
	blobs   blob.Store
	bus     *Bus
	log     *logger.Logger

	components map[string]component.Component
	triggers   map[string]*DebouncedTrigger

	legacySingleQueue bool
	uploadConcurrency int

	uploader             *UploadWorker
	uploadEnqueuerOnce   sync.Once
	sharedUploadEnqueuer component.UploadEnqueuer
}

// Option configures a Scheduler at construction.
type Option func(*Scheduler)

// WithLegacySingleQueue collapses collectors/harvesters/priority onto the
// collectors queue (§4.5's explicitly-unrecommended legacy mode).
func WithLegacySingleQueue(enabled bool) Option {
	return func(s *Scheduler) { s.legacySingleQueue = enabled }
}

// WithUploadConcurrency overrides the uploads queue worker concurrency
// (default 2, per §4.5's table).
func WithUploadConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.uploadConcurrency = n
		}
	}
}

// New builds a Scheduler over the given queue, record store, and blob
// store.
func New(q queue.Queue, records record.Store, blobs blob.Store, log *logger.Logger, opts ...Option) *Scheduler {
	if log == nil {
		log = logger.NewDefault("scheduler")
	}
	s := &Scheduler{
		q:                 q,
		records:           records,
		blobs:             blobs,
		bus:               NewBus(),
		log:               log,
		components:        make(map[string]component.Component),
		triggers:          make(map[string]*DebouncedTrigger),
		uploadConcurrency: 2,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.uploader = NewUploadWorker(records, blobs, log)
	s.bus.Subscribe(s.onEvent)
	return s
}

// Register wires cron registration and debounced triggers for every
// Collector and Harvester in components (§4.5 "Registration"). It does not
// start the worker pools; call Start for that.
func (s *Scheduler) Register(ctx context.Context, components []component.Component) error {
	for _, c := range components {
		name := c.Configuration().Name
		s.components[name] = c

		switch v := c.(type) {
		case *component.Collector:
			payload := map[string]any{"type": queue.JobCollector, "triggeredBy": queue.BySchedule}
			if err := s.q.UpsertRepeating(ctx, queue.Collectors, name, v.CronPattern(), payload); err != nil {
				return fmt.Errorf("register collector %s: %w", name, err)
			}

		case *component.Harvester:
			if v.TriggerMode != component.TriggerOnSource && v.CronPattern() != "" {
				payload := map[string]any{"type": queue.JobHarvester, "triggeredBy": queue.BySchedule}
				if err := s.q.UpsertRepeating(ctx, s.harvesterQueue(), name, v.CronPattern(), payload); err != nil {
					return fmt.Errorf("register harvester %s: %w", name, err)
				}
			}
			if v.TriggerMode == component.TriggerOnSource || v.TriggerMode == component.TriggerBoth {
				harvester := v
				debounceMs := harvester.DebounceMs
				if debounceMs <= 0 {
					debounceMs = 1000
				}
				s.triggers[name] = NewDebouncedTrigger(time.Duration(debounceMs)*time.Millisecond, func() {
					s.enqueueSourceTriggeredHarvest(harvester)
				})
			}
		}
	}
	return nil
}

// enqueueSourceTriggeredHarvest enqueues a one-shot harvester job in
// response to the harvester's declared source completing (§4.5).
func (s *Scheduler) enqueueSourceTriggeredHarvest(h *component.Harvester) {
	payload := map[string]any{
		"type":        queue.JobHarvester,
		"triggeredBy": queue.BySourceEvent,
		"source":      h.Source,
	}
	retry := sourceEventRetry
	if err := s.q.Enqueue(context.Background(), s.harvesterQueue(), h.Name, payload, queue.EnqueueOptions{Retry: retry}); err != nil {
		s.log.WithField("harvester", h.Name).Error("failed to enqueue source-triggered harvest: ", err)
	}
}

// onEvent is the single "component:event" subscriber of §4.5: it filters
// for collector:completed and invokes the debounced trigger of every
// Harvester whose declared source matches.
func (s *Scheduler) onEvent(evt Event) {
	if evt.Kind != EventCollectorCompleted {
		return
	}
	for _, c := range s.components {
		h, ok := c.(*component.Harvester)
		if !ok || h.Source != evt.ComponentName {
			continue
		}
		if trig, ok := s.triggers[h.Name]; ok {
			trig.Fire()
		}
	}
}

// harvesterQueue returns the queue that scheduled- and source-triggered
// harvester jobs should land on: the dedicated harvesters queue normally,
// or the collectors queue when legacySingleQueue has collapsed every
// primary queue onto it (§4.5's legacy mode) — Start only subscribes a
// worker to the collectors queue in that mode, so harvester jobs enqueued
// anywhere else would never be picked up.
func (s *Scheduler) harvesterQueue() queue.Name {
	if s.legacySingleQueue {
		return queue.Collectors
	}
	return queue.Harvesters
}

// Start registers the queue subscriptions for every worker pool of §4.5's
// table and starts the async upload worker. It does not block.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.legacySingleQueue {
		s.log.Warn("legacy single-queue mode is enabled: collectors/harvesters/priority share one queue; this mode is not recommended")
		concurrency := len(s.components)
		if concurrency < 1 {
			concurrency = 1
		}
		if err := s.q.Subscribe(queue.Collectors, concurrency, 0, s.dispatch); err != nil {
			return err
		}
	} else {
		if err := s.q.Subscribe(queue.Collectors, queue.DefaultConcurrency[queue.Collectors], queue.DefaultRateLimitPerMinute[queue.Collectors], s.dispatch); err != nil {
			return err
		}
		if err := s.q.Subscribe(queue.Harvesters, queue.DefaultConcurrency[queue.Harvesters], queue.DefaultRateLimitPerMinute[queue.Harvesters], s.dispatch); err != nil {
			return err
		}
		if err := s.q.Subscribe(queue.Priority, queue.DefaultConcurrency[queue.Priority], queue.DefaultRateLimitPerMinute[queue.Priority], s.dispatch); err != nil {
			return err
		}
	}
	if err := s.q.Subscribe(queue.Uploads, s.uploadConcurrency, queue.DefaultRateLimitPerMinute[queue.Uploads], s.uploader.Handle); err != nil {
		return err
	}
	return nil
}

// dispatch resolves job.JobName to a registered component and runs it
// (§4.5 "Job dispatch"). A job naming an unregistered component is a no-op
// success, not an error.
func (s *Scheduler) dispatch(ctx context.Context, job queue.Job) error {
	c, ok := s.components[job.JobName]
	if !ok {
		return nil
	}
	started := time.Now()
	var err error
	switch v := c.(type) {
	case *component.Collector:
		err = s.runCollector(ctx, v)
	case *component.Harvester:
		err = s.runHarvester(ctx, v)
	}
	metrics.ObserveJob(string(job.Queue), err, started)
	return err
}

func (s *Scheduler) runCollector(ctx context.Context, c *component.Collector) error {
	data, err := c.Collect(ctx)
	if err != nil {
		return err
	}
	handle, err := s.blobs.Save(ctx, c.Name, data, "")
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if _, err := s.records.Insert(ctx, c.Name, record.Record{
		Name:        c.Name,
		ContentType: c.ContentType,
		URL:         handle,
		Date:        now,
	}); err != nil {
		return err
	}
	s.bus.Publish(Event{Kind: EventCollectorCompleted, ComponentName: c.Name, Timestamp: now.UnixNano()})
	return nil
}

func (s *Scheduler) runHarvester(ctx context.Context, h *component.Harvester) error {
	ran, err := RunHarvest(ctx, h, s.records, s.blobs)
	if err != nil {
		return err
	}
	if ran {
		s.bus.Publish(Event{Kind: EventHarvesterCompleted, ComponentName: h.Name, Timestamp: time.Now().UTC().UnixNano()})
	}
	return nil
}

// Close stops the worker pools and queue (§4.2 step 4), bounded by the
// caller's context deadline.
func (s *Scheduler) Close(ctx context.Context) error {
	return s.q.Close(ctx)
}

// uploadEnqueuer adapts queue.Queue to component.UploadEnqueuer so that
// AssetsManager (and any other UploadQueueConsumer) can submit async upload
// jobs without importing the queue package directly.
type uploadEnqueuer struct {
	q queue.Queue
}

func (e *uploadEnqueuer) EnqueueUpload(componentName, jobID string, payload map[string]any) error {
	body := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["jobID"] = jobID
	return e.q.Enqueue(context.Background(), queue.Uploads, componentName, body, queue.EnqueueOptions{
		Retry: queue.DefaultPolicies[queue.Uploads],
	})
}

// UploadEnqueuer returns the component.UploadEnqueuer the engine injects into
// every registered UploadQueueConsumer (§4.2 step 3). Built lazily and once,
// since it is stateless beyond the queue reference it wraps.
func (s *Scheduler) UploadEnqueuer() component.UploadEnqueuer {
	s.uploadEnqueuerOnce.Do(func() {
		s.sharedUploadEnqueuer = &uploadEnqueuer{q: s.q}
	})
	return s.sharedUploadEnqueuer
}
