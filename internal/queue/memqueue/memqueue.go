// Package memqueue is an in-process, channel-backed queue.Queue, used by
// tests, the dry-run validation path, and the legacy single-queue mode of
// §4.5. Repeating registrations are driven by github.com/robfig/cron/v3,
// the same cron library the redisqueue implementation uses, so the two
// backends share scheduling semantics.
package memqueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/CePseudoBE/digitaltwin-sub001/internal/queue"
	"github.com/CePseudoBE/digitaltwin-sub001/pkg/logger"
)

type worker struct {
	ch        chan queue.Job
	cancel    context.CancelFunc
	done      chan struct{}
	limiter   *rate.Limiter
	completed int
	failed    int
	mu        sync.Mutex
}

// Queue is an in-memory queue.Queue implementation.
type Queue struct {
	mu      sync.Mutex
	workers map[queue.Name]*worker
	cron    *cron.Cron
	log     *logger.Logger
}

var _ queue.Queue = (*Queue)(nil)

// New creates an empty Queue with its cron scheduler running.
func New(log *logger.Logger) *Queue {
	if log == nil {
		log = logger.NewDefault("memqueue")
	}
	c := cron.New(cron.WithSeconds())
	c.Start()
	return &Queue{workers: make(map[queue.Name]*worker), cron: c, log: log}
}

func (q *Queue) UpsertRepeating(_ context.Context, qn queue.Name, jobName, cronPattern string, payload map[string]any) error {
	_, err := q.cron.AddFunc(cronPattern, func() {
		_ = q.Enqueue(context.Background(), qn, jobName, payload, queue.EnqueueOptions{})
	})
	return err
}

func (q *Queue) Enqueue(ctx context.Context, qn queue.Name, jobName string, payload map[string]any, opts queue.EnqueueOptions) error {
	w := q.workerFor(qn)
	job := queue.Job{ID: uuid.NewString(), Queue: qn, JobName: jobName, Data: payload}
	if t, ok := payload["type"].(queue.JobType); ok {
		job.Type = t
	}
	if tb, ok := payload["triggeredBy"].(queue.TriggeredBy); ok {
		job.TriggeredBy = tb
	}
	if s, ok := payload["source"].(string); ok {
		job.Source = s
	}
	if opts.Retry.Attempts > 0 {
		r := opts.Retry
		job.Retry = &r
	}
	select {
	case w.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) Subscribe(qn queue.Name, concurrency int, rateLimitPerMinute int, handler queue.Handler) error {
	w := q.workerFor(qn)
	if concurrency <= 0 {
		concurrency = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	var limiter *rate.Limiter
	if rateLimitPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(rateLimitPerMinute)/60.0), rateLimitPerMinute)
	}
	w.limiter = limiter

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()
			q.runWorkerLoop(ctx, w, handler)
		}()
	}
	go func() {
		wg.Wait()
		close(w.done)
	}()
	return nil
}

func (q *Queue) runWorkerLoop(ctx context.Context, w *worker, handler queue.Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-w.ch:
			if !ok {
				return
			}
			if w.limiter != nil {
				_ = w.limiter.Wait(ctx)
			}
			q.dispatch(ctx, w, job, handler)
		}
	}
}

func (q *Queue) dispatch(ctx context.Context, w *worker, job queue.Job, handler queue.Handler) {
	policy, ok := queue.DefaultPolicies[job.Queue]
	if !ok {
		policy = queue.RetryPolicy{Attempts: 1}
	}
	if job.Retry != nil {
		policy = *job.Retry
	}
	err := handler(ctx, job)
	if err == nil {
		w.mu.Lock()
		w.completed++
		w.mu.Unlock()
		return
	}
	job.AttemptCount++
	if job.AttemptCount >= policy.Attempts {
		w.mu.Lock()
		w.failed++
		w.mu.Unlock()
		q.log.WithField("job", job.JobName).WithField("attempts", job.AttemptCount).Warn("job exhausted retries")
		return
	}
	delay := policy.BackoffBase
	if policy.ExponentialBO {
		for i := 1; i < job.AttemptCount; i++ {
			delay *= 2
		}
	}
	time.AfterFunc(delay, func() {
		select {
		case w.ch <- job:
		default:
			q.log.WithField("job", job.JobName).Warn("retry enqueue dropped: queue full")
		}
	})
}

func (q *Queue) workerFor(qn queue.Name) *worker {
	q.mu.Lock()
	defer q.mu.Unlock()
	w, ok := q.workers[qn]
	if !ok {
		w = &worker{ch: make(chan queue.Job, 256), done: make(chan struct{})}
		q.workers[qn] = w
	}
	return w
}

func (q *Queue) Close(ctx context.Context) error {
	stopped := make(chan struct{})
	go func() {
		q.cron.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
	}

	q.mu.Lock()
	workers := make([]*worker, 0, len(q.workers))
	for _, w := range q.workers {
		workers = append(workers, w)
	}
	q.mu.Unlock()

	for _, w := range workers {
		if w.cancel != nil {
			w.cancel()
		}
	}
	for _, w := range workers {
		if w.done == nil {
			continue
		}
		select {
		case <-w.done:
		case <-ctx.Done():
		}
	}
	return nil
}

func (q *Queue) Stats(qn queue.Name) queue.Stats {
	q.mu.Lock()
	w, ok := q.workers[qn]
	q.mu.Unlock()
	if !ok {
		return queue.Stats{}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return queue.Stats{Queued: len(w.ch), Completed: w.completed, Failed: w.failed}
}
