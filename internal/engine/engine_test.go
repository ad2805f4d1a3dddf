package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/CePseudoBE/digitaltwin-sub001/internal/blob"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/component"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/queue/memqueue"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/record/memory"
	"github.com/CePseudoBE/digitaltwin-sub001/pkg/config"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Port = 0
	cfg.Auth.Mode = string(config.AuthModeNone)
	cfg.Auth.DisableAuth = true

	e, err := New(cfg, memory.New(), blob.NewMemoryStore(""), memqueue.New(nil), nil)
	require.NoError(t, err)
	return e
}

// TestEngineStartThenStopIsClean exercises the §4.2 startup/shutdown
// sequence end to end with a single Collector registered.
func TestEngineStartThenStopIsClean(t *testing.T) {
	e := newTestEngine(t)

	c := component.NewCollector("weather", "application/json", "/weather", "@every 1h", func(_ context.Context) ([]byte, error) {
		return []byte(`{"t":22}`), nil
	})
	require.NoError(t, e.Register(c))

	ctx := context.Background()
	require.NoError(t, e.Start(ctx))
	require.NotZero(t, e.HTTPServer().Port())

	require.NoError(t, e.Stop(ctx))
}

// TestEngineRegisterRejectsDuplicateComponent covers §3.2 invariant 1 /
// §4.2's duplicate-registration rejection.
func TestEngineRegisterRejectsDuplicateComponent(t *testing.T) {
	e := newTestEngine(t)
	c1 := component.NewCollector("weather", "application/json", "/weather", "@every 1h", func(_ context.Context) ([]byte, error) {
		return nil, nil
	})
	c2 := component.NewCollector("weather", "application/json", "/weather", "@every 1h", func(_ context.Context) ([]byte, error) {
		return nil, nil
	})
	require.NoError(t, e.Register(c1))
	require.Error(t, e.Register(c2))
}

// TestEngineStopIsIdempotent is §8 property 9: a second Stop call must not
// error and must return promptly.
func TestEngineStopIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.Start(ctx))
	require.NoError(t, e.Stop(ctx))

	start := time.Now()
	require.NoError(t, e.Stop(ctx))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

// TestEngineRejectsRegisterAfterStart ensures components cannot be added
// once the engine has begun serving.
func TestEngineRejectsRegisterAfterStart(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.Start(ctx))
	defer e.Stop(ctx)

	c := component.NewCollector("late", "application/json", "/late", "@every 1h", func(_ context.Context) ([]byte, error) {
		return nil, nil
	})
	require.Error(t, e.Register(c))
}
