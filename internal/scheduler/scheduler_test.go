package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/CePseudoBE/digitaltwin-sub001/internal/blob"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/component"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/queue"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/queue/memqueue"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/record/memory"
)

func newTestScheduler(t *testing.T) (*Scheduler, *memory.Store, blob.Store, *memqueue.Queue) {
	t.Helper()
	records := memory.New()
	blobs := blob.NewMemoryStore("")
	q := memqueue.New(nil)
	t.Cleanup(func() { _ = q.Close(context.Background()) })
	return New(q, records, blobs, nil), records, blobs, q
}

// TestRunCollectorSavesBlobRecordAndPublishesEvent covers §4.5's
// collector-completed pairing: a successful Collect call saves a blob,
// inserts a record, and publishes collector:completed on the bus.
func TestRunCollectorSavesBlobRecordAndPublishesEvent(t *testing.T) {
	s, records, _, _ := newTestScheduler(t)
	_, err := records.EnsureTable(context.Background(), "weather", nil)
	require.NoError(t, err)

	var published []Event
	s.bus.Subscribe(func(evt Event) { published = append(published, evt) })

	c := component.NewCollector("weather", "application/json", "/weather", "@every 1h", func(_ context.Context) ([]byte, error) {
		return []byte(`{"t":10}`), nil
	})

	require.NoError(t, s.runCollector(context.Background(), c))

	latest, ok, err := records.Latest(context.Background(), "weather")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, latest.URL)
	require.Len(t, published, 1)
	require.Equal(t, EventCollectorCompleted, published[0].Kind)
	require.Equal(t, "weather", published[0].ComponentName)
}

// TestOnEventFiresDebouncedTriggerForMatchingHarvester covers the
// source-triggered wiring of §4.5's Registration: a collector:completed
// event fires the debounced trigger of every harvester declaring that
// source, and no others.
func TestOnEventFiresDebouncedTriggerForMatchingHarvester(t *testing.T) {
	s, _, _, _ := newTestScheduler(t)

	var fired int32
	s.triggers["avg"] = NewDebouncedTrigger(10*time.Millisecond, func() {
		atomic.AddInt32(&fired, 1)
	})
	s.components["avg"] = component.NewHarvester("avg", "application/json", "/avg", "weather", func(_ context.Context, _ component.HarvestInput) (component.HarvestResult, error) {
		return component.HarvestResult{}, nil
	})
	s.components["other"] = component.NewHarvester("other", "application/json", "/other", "unrelated-source", func(_ context.Context, _ component.HarvestInput) (component.HarvestResult, error) {
		return component.HarvestResult{}, nil
	})

	s.onEvent(Event{Kind: EventCollectorCompleted, ComponentName: "weather"})

	require.Eventually(t, func() bool { return atomic.LoadInt32(&fired) == 1 }, time.Second, 5*time.Millisecond)
}

// TestRegisterWiresCollectorCronAndHarvesterDebounce covers §4.5's
// Registration step end to end against a real queue.
func TestRegisterWiresCollectorCronAndHarvesterDebounce(t *testing.T) {
	s, _, _, _ := newTestScheduler(t)

	collector := component.NewCollector("weather", "application/json", "/weather", "@every 1h", func(_ context.Context) ([]byte, error) {
		return nil, nil
	})
	harvester := component.NewHarvester("avg", "application/json", "/avg", "weather", func(_ context.Context, _ component.HarvestInput) (component.HarvestResult, error) {
		return component.HarvestResult{}, nil
	})
	harvester.TriggerMode = component.TriggerOnSource

	require.NoError(t, s.Register(context.Background(), []component.Component{collector, harvester}))
	require.Contains(t, s.components, "weather")
	require.Contains(t, s.components, "avg")
	require.Contains(t, s.triggers, "avg")
}

// TestDispatchRunsRegisteredComponentAndIgnoresUnknownJob covers §4.5's job
// dispatch: a job naming a registered collector runs it, and a job naming an
// unregistered component is a no-op success rather than an error.
func TestDispatchRunsRegisteredComponentAndIgnoresUnknownJob(t *testing.T) {
	s, records, _, _ := newTestScheduler(t)
	_, err := records.EnsureTable(context.Background(), "weather", nil)
	require.NoError(t, err)

	collected := false
	c := component.NewCollector("weather", "application/json", "/weather", "@every 1h", func(_ context.Context) ([]byte, error) {
		collected = true
		return []byte("x"), nil
	})
	s.components["weather"] = c

	require.NoError(t, s.dispatch(context.Background(), queue.Job{Queue: queue.Collectors, JobName: "weather"}))
	require.True(t, collected)

	require.NoError(t, s.dispatch(context.Background(), queue.Job{Queue: queue.Collectors, JobName: "ghost"}))
}

// TestLegacySingleQueueRoutesHarvesterJobsOntoCollectors covers §4.5's
// legacy single-queue mode: since Start only subscribes a worker to
// queue.Collectors in that mode, both scheduled and source-triggered
// harvester jobs must land there too, or they would enqueue onto a queue
// nothing consumes.
func TestLegacySingleQueueRoutesHarvesterJobsOntoCollectors(t *testing.T) {
	s, _, _, q := newTestScheduler(t)
	s.legacySingleQueue = true
	require.Equal(t, queue.Collectors, s.harvesterQueue())

	harvester := component.NewHarvester("avg", "application/json", "/avg", "weather", func(_ context.Context, _ component.HarvestInput) (component.HarvestResult, error) {
		return component.HarvestResult{}, nil
	})
	harvester.TriggerMode = component.TriggerBoth
	harvester.SetSchedule("@every 1h")

	require.NoError(t, s.Register(context.Background(), []component.Component{harvester}))
	s.enqueueSourceTriggeredHarvest(harvester)

	require.Equal(t, 1, q.Stats(queue.Collectors).Queued)
	require.Equal(t, 0, q.Stats(queue.Harvesters).Queued)
}

// TestUploadEnqueuerIsSharedAcrossCalls covers the once-built shared
// UploadEnqueuer the engine injects into UploadQueueConsumer components.
func TestUploadEnqueuerIsSharedAcrossCalls(t *testing.T) {
	s, _, _, q := newTestScheduler(t)
	require.NoError(t, q.Subscribe(queue.Uploads, 1, 0, func(_ context.Context, _ queue.Job) error { return nil }))

	e1 := s.UploadEnqueuer()
	e2 := s.UploadEnqueuer()
	require.Same(t, e1, e2)

	require.NoError(t, e1.EnqueueUpload("documents", "job-1", map[string]any{"sourceURL": "http://example.com/a.zip"}))
}
