// Package redisqueue backs queue.Queue with github.com/go-redis/redis/v8
// lists (LPUSH/BRPOP for one-shot jobs) and github.com/robfig/cron/v3 for
// the repeating/cron-pattern registrations of §4.5. Retry/retention
// bookkeeping is stored as job metadata fields re-enqueued on failure — the
// spec treats concrete queue libraries as an external collaborator
// (§1 Non-goals), so this is the reference implementation rather than a
// prescribed one.
package redisqueue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/CePseudoBE/digitaltwin-sub001/internal/queue"
	"github.com/CePseudoBE/digitaltwin-sub001/pkg/logger"
)

type wireJob struct {
	ID           string             `json:"id"`
	JobName      string             `json:"job_name"`
	Type         queue.JobType      `json:"type,omitempty"`
	TriggeredBy  string             `json:"triggered_by,omitempty"`
	Source       string             `json:"source,omitempty"`
	Data         map[string]any     `json:"data,omitempty"`
	AttemptCount int                `json:"attempt_count"`
	Retry        *queue.RetryPolicy `json:"retry,omitempty"`
}

func listKey(q queue.Name) string { return "digitaltwin:queue:" + string(q) }

type subscription struct {
	cancel    context.CancelFunc
	done      chan struct{}
	completed int
	failed    int
	mu        sync.Mutex
}

// Queue is a Redis-backed queue.Queue implementation.
type Queue struct {
	client *redis.Client
	cron   *cron.Cron
	log    *logger.Logger

	mu   sync.Mutex
	subs map[queue.Name]*subscription
}

var _ queue.Queue = (*Queue)(nil)

// New builds a Queue connected to a Redis instance at addr.
func New(addr string, log *logger.Logger) *Queue {
	if log == nil {
		log = logger.NewDefault("redisqueue")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	c := cron.New(cron.WithSeconds())
	c.Start()
	return &Queue{client: client, cron: c, log: log, subs: make(map[queue.Name]*subscription)}
}

func (q *Queue) UpsertRepeating(_ context.Context, qn queue.Name, jobName, cronPattern string, payload map[string]any) error {
	_, err := q.cron.AddFunc(cronPattern, func() {
		if err := q.Enqueue(context.Background(), qn, jobName, payload, queue.EnqueueOptions{}); err != nil {
			q.log.WithField("queue", qn).WithField("job", jobName).Error("repeating enqueue failed: ", err)
		}
	})
	return err
}

func (q *Queue) Enqueue(ctx context.Context, qn queue.Name, jobName string, payload map[string]any, opts queue.EnqueueOptions) error {
	wj := wireJob{
		ID:          uuid.NewString(),
		JobName:     jobName,
		Type:        jobType(payload),
		TriggeredBy: string(triggeredBy(payload)),
		Source:      stringField(payload, "source"),
		Data:        payload,
	}
	if opts.Retry.Attempts > 0 {
		r := opts.Retry
		wj.Retry = &r
	}
	return q.push(ctx, qn, wj)
}

func (q *Queue) push(ctx context.Context, qn queue.Name, wj wireJob) error {
	raw, err := json.Marshal(wj)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, listKey(qn), raw).Err()
}

func (q *Queue) Subscribe(qn queue.Name, concurrency int, rateLimitPerMinute int, handler queue.Handler) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{cancel: cancel, done: make(chan struct{})}
	q.mu.Lock()
	q.subs[qn] = sub
	q.mu.Unlock()

	var limiter *rate.Limiter
	if rateLimitPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(rateLimitPerMinute)/60.0), rateLimitPerMinute)
	}

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()
			q.workerLoop(ctx, qn, sub, limiter, handler)
		}()
	}
	go func() {
		wg.Wait()
		close(sub.done)
	}()
	return nil
}

func (q *Queue) workerLoop(ctx context.Context, qn queue.Name, sub *subscription, limiter *rate.Limiter, handler queue.Handler) {
	for {
		if ctx.Err() != nil {
			return
		}
		res, err := q.client.BRPop(ctx, 2*time.Second, listKey(qn)).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			time.Sleep(time.Second)
			continue
		}
		if limiter != nil {
			_ = limiter.Wait(ctx)
		}
		var wj wireJob
		if err := json.Unmarshal([]byte(res[1]), &wj); err != nil {
			q.log.WithField("queue", qn).Error("malformed job payload dropped: ", err)
			continue
		}
		q.dispatch(ctx, qn, sub, wj, handler)
	}
}

func (q *Queue) dispatch(ctx context.Context, qn queue.Name, sub *subscription, wj wireJob, handler queue.Handler) {
	job := queue.Job{
		ID:           wj.ID,
		Queue:        qn,
		JobName:      wj.JobName,
		Type:         wj.Type,
		TriggeredBy:  queue.TriggeredBy(wj.TriggeredBy),
		Source:       wj.Source,
		Data:         wj.Data,
		AttemptCount: wj.AttemptCount,
	}
	err := handler(ctx, job)
	if err == nil {
		sub.mu.Lock()
		sub.completed++
		sub.mu.Unlock()
		return
	}

	policy, ok := queue.DefaultPolicies[qn]
	if !ok {
		policy = queue.RetryPolicy{Attempts: 1}
	}
	if wj.Retry != nil {
		policy = *wj.Retry
	}
	wj.AttemptCount++
	if wj.AttemptCount >= policy.Attempts {
		sub.mu.Lock()
		sub.failed++
		sub.mu.Unlock()
		q.log.WithField("job", wj.JobName).WithField("attempts", wj.AttemptCount).Warn("job exhausted retries: ", err)
		return
	}
	delay := policy.BackoffBase
	if policy.ExponentialBO {
		for i := 1; i < wj.AttemptCount; i++ {
			delay *= 2
		}
	}
	time.AfterFunc(delay, func() {
		if pushErr := q.push(context.Background(), qn, wj); pushErr != nil {
			q.log.WithField("job", wj.JobName).Error("retry re-enqueue failed: ", pushErr)
		}
	})
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
	subs := make([]*subscription, 0, len(q.subs))
	for _, s := range q.subs {
		subs = append(subs, s)
	}
	q.mu.Unlock()

	for _, s := range subs {
		s.cancel()
	}
	graceful := make(chan struct{})
	go func() {
		for _, s := range subs {
			<-s.done
		}
		close(graceful)
	}()
	select {
	case <-graceful:
	case <-time.After(3 * time.Second):
		q.log.Warn("redisqueue graceful close exceeded 3s, force-disconnecting")
	}
	return q.client.Close()
}

func (q *Queue) Stats(qn queue.Name) queue.Stats {
	q.mu.Lock()
	sub, ok := q.subs[qn]
	q.mu.Unlock()

	depth, err := q.client.LLen(context.Background(), listKey(qn)).Result()
	if err != nil {
		depth = 0
	}
	st := queue.Stats{Queued: int(depth)}
	if ok {
		sub.mu.Lock()
		st.Completed = sub.completed
		st.Failed = sub.failed
		sub.mu.Unlock()
	}
	return st
}

func jobType(payload map[string]any) queue.JobType {
	if t, ok := payload["type"]; ok {
		if jt, ok := t.(queue.JobType); ok {
			return jt
		}
		if s, ok := t.(string); ok {
			return queue.JobType(s)
		}
	}
	return ""
}

func triggeredBy(payload map[string]any) queue.TriggeredBy {
	if t, ok := payload["triggeredBy"]; ok {
		if tb, ok := t.(queue.TriggeredBy); ok {
			return tb
		}
		if s, ok := t.(string); ok {
			return queue.TriggeredBy(s)
		}
	}
	return ""
}

func stringField(payload map[string]any, key string) string {
	if v, ok := payload[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
