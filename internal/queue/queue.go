// Package queue defines the abstract job queue of spec §4.5/§6: four named
// queues with per-queue retry/retention policy, plus cron-pattern "job
// schedulers" for repeating entries. Concrete transports (Redis-backed
// lists, an in-process channel queue) are external collaborators per spec
// §1; this package ships the interface plus the two reference
// implementations under redisqueue/ and memqueue/.
package queue

import (
	"context"
	"time"
)

// Name identifies one of the four queues of §4.5's worker-pool table.
type Name string

const (
	Collectors Name = "collectors"
	Harvesters Name = "harvesters"
	Priority   Name = "priority"
	Uploads    Name = "uploads"
)

// JobType distinguishes the payload shapes the scheduler enqueues (§4.5).
type JobType string

const (
	JobCollector JobType = "collector"
	JobHarvester JobType = "harvester"
)

// TriggeredBy records why a job was enqueued, carried in its payload.
type TriggeredBy string

const (
	BySchedule    TriggeredBy = "schedule"
	BySourceEvent TriggeredBy = "source-event"
)

// Job is one in-flight unit pulled off a queue by a worker (§3.1). The core
// does not persist jobs; their lifetime is owned by the queue implementation.
type Job struct {
	ID           string
	Queue        Name
	JobName      string // component name the job targets
	Type         JobType
	TriggeredBy  TriggeredBy
	Source       string // set for source-event harvester jobs
	Data         map[string]any
	AttemptCount int

	// Retry overrides the queue's default retry policy for this job alone
	// (e.g. the debounced harvester trigger's 3-attempt exponential
	// backoff, distinct from the harvester queue's default of 5).
	Retry *RetryPolicy
}

// RetryPolicy controls how a queue re-enqueues a failed job (§4.5 table).
type RetryPolicy struct {
	Attempts      int
	BackoffBase   time.Duration
	ExponentialBO bool
}

// EnqueueOptions customizes one-shot enqueue calls (e.g. the debounced
// harvester trigger's retention/backoff of §4.5).
type EnqueueOptions struct {
	Retry RetryPolicy
}

// Stats reports point-in-time queue depth/activity, as returned by
// Queue.Stats.
type Stats struct {
	Queued     int
	InFlight   int
	Failed     int
	Completed  int
}

// Handler processes one job. Returning an error causes the queue to apply
// its retry policy (§4.5: "the framework invokes run() and propagates
// thrown errors to the queue").
type Handler func(ctx context.Context, job Job) error

// Queue is the abstract job queue every scheduler/worker depends on.
type Queue interface {
	// UpsertRepeating registers (or updates) a cron-pattern repeating job
	// keyed by jobName on the given queue (§4.5: "register a repeating job
	// ... with its cron pattern").
	UpsertRepeating(ctx context.Context, q Name, jobName, cronPattern string, payload map[string]any) error

	// Enqueue submits a one-shot job for immediate (or retry-scheduled)
	// processing.
	Enqueue(ctx context.Context, q Name, jobName string, payload map[string]any, opts EnqueueOptions) error

	// Subscribe registers the handler invoked for jobs pulled off q, using
	// the given worker concurrency and rate limit. Subscribe starts the
	// worker pool; it does not block.
	Subscribe(q Name, concurrency int, rateLimitPerMinute int, handler Handler) error

	// Close stops all worker pools and disconnects the underlying
	// transport, forcing disconnection if graceful close exceeds the
	// caller's deadline (§4.2 step 4).
	Close(ctx context.Context) error

	// Stats reports the named queue's current depth/activity.
	Stats(q Name) Stats
}

// DefaultPolicies mirrors the per-queue retry/backoff table of §4.5.
var DefaultPolicies = map[Name]RetryPolicy{
	Collectors: {Attempts: 3, BackoffBase: 2 * time.Second, ExponentialBO: true},
	Harvesters: {Attempts: 5, BackoffBase: 5 * time.Second, ExponentialBO: true},
	Priority:   {Attempts: 2, BackoffBase: time.Second, ExponentialBO: false},
	Uploads:    {Attempts: 1, BackoffBase: 0, ExponentialBO: false},
}

// DefaultConcurrency mirrors the per-queue worker concurrency of §4.5.
var DefaultConcurrency = map[Name]int{
	Collectors: 5,
	Harvesters: 3,
	Priority:   1,
	Uploads:    2,
}

// DefaultRateLimitPerMinute mirrors the per-queue rate limit of §4.5 (0
// means unlimited, as for the priority queue).
var DefaultRateLimitPerMinute = map[Name]int{
	Collectors: 10,
	Harvesters: 20,
	Priority:   0,
	Uploads:    5,
}
