package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestDebouncedTriggerCollapsesBurst is §8 property 5 / scenario S4: firing
// a debounced trigger many times within its window must invoke its action
// exactly once.
func TestDebouncedTriggerCollapsesBurst(t *testing.T) {
	var calls int32
	trig := NewDebouncedTrigger(100*time.Millisecond, func() {
		atomic.AddInt32(&calls, 1)
	})

	for i := 0; i < 20; i++ {
		trig.Fire()
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 1
	}, time.Second, 10*time.Millisecond)

	// Give any spurious extra timer a chance to land before asserting it
	// never does.
	time.Sleep(150 * time.Millisecond)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

// TestDebouncedTriggerFiresAgainAfterQuietPeriod ensures the trigger is
// reusable across bursts, not a one-shot: a second burst after the window
// elapses produces a second invocation.
func TestDebouncedTriggerFiresAgainAfterQuietPeriod(t *testing.T) {
	var calls int32
	trig := NewDebouncedTrigger(30*time.Millisecond, func() {
		atomic.AddInt32(&calls, 1)
	})

	trig.Fire()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)

	trig.Fire()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, time.Second, 5*time.Millisecond)
}

// TestDebouncedTriggerDefaultsWindow covers the §4.5 default of 1000ms when
// constructed with a non-positive window.
func TestDebouncedTriggerDefaultsWindow(t *testing.T) {
	trig := NewDebouncedTrigger(0, func() {})
	require.Equal(t, time.Second, trig.window)
}
