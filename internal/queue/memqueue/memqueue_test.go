package memqueue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/CePseudoBE/digitaltwin-sub001/internal/queue"
)

func TestQueue_EnqueueAndSubscribe(t *testing.T) {
	q := New(nil)
	defer q.Close(context.Background())

	var processed int32
	require.NoError(t, q.Subscribe(queue.Priority, 1, 0, func(_ context.Context, job queue.Job) error {
		atomic.AddInt32(&processed, 1)
		require.Equal(t, "widget", job.JobName)
		return nil
	}))

	require.NoError(t, q.Enqueue(context.Background(), queue.Priority, "widget", map[string]any{}, queue.EnqueueOptions{}))

	require.Eventually(t, func() bool { return atomic.LoadInt32(&processed) == 1 }, time.Second, 5*time.Millisecond)
}

func TestQueue_RetryThenExhaust(t *testing.T) {
	q := New(nil)
	defer q.Close(context.Background())

	var attempts int32
	require.NoError(t, q.Subscribe(queue.Uploads, 1, 0, func(_ context.Context, job queue.Job) error {
		atomic.AddInt32(&attempts, 1)
		return assertAlwaysFails()
	}))

	require.NoError(t, q.Enqueue(context.Background(), queue.Uploads, "bad-upload", map[string]any{}, queue.EnqueueOptions{}))

	// Uploads queue policy is Attempts=1 (no retry), so exactly one attempt.
	require.Eventually(t, func() bool { return atomic.LoadInt32(&attempts) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.EqualValues(t, 1, atomic.LoadInt32(&attempts))
}

func TestQueue_UpsertRepeatingFiresOnCron(t *testing.T) {
	q := New(nil)
	defer q.Close(context.Background())

	var fired int32
	require.NoError(t, q.Subscribe(queue.Collectors, 1, 0, func(_ context.Context, job queue.Job) error {
		atomic.AddInt32(&fired, 1)
		return nil
	}))

	require.NoError(t, q.UpsertRepeating(context.Background(), queue.Collectors, "weather", "* * * * * *", map[string]any{
		"type":        queue.JobCollector,
		"triggeredBy": queue.BySchedule,
	}))

	require.Eventually(t, func() bool { return atomic.LoadInt32(&fired) >= 1 }, 2*time.Second, 20*time.Millisecond)
}

func assertAlwaysFails() error {
	return errAlways
}

var errAlways = &staticError{"boom"}

type staticError struct{ msg string }

func (e *staticError) Error() string { return e.msg }
