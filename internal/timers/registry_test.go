package timers

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAfterFiresOnce(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	defer registry.Close()

	var fired atomic.Int32
	handle := registry.After(10*time.Millisecond, func() { fired.Add(1) })
	require.NotZero(t, handle)

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
	assert.Zero(t, registry.Active())
}

func TestStopPreventsCallback(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	defer registry.Close()

	var fired atomic.Int32
	handle := registry.After(20*time.Millisecond, func() { fired.Add(1) })
	registry.Stop(handle)

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, fired.Load())
}

func TestStopIsIdempotent(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	defer registry.Close()

	handle := registry.After(5*time.Millisecond, func() {})
	registry.Stop(handle)
	registry.Stop(handle)
	registry.Stop(0)

	fired := make(chan struct{})
	done := registry.After(5*time.Millisecond, func() { close(fired) })
	<-fired
	registry.Stop(done) // already fired, still a no-op
}

func TestEveryRepeatsUntilStopped(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	defer registry.Close()

	var ticks atomic.Int32
	handle := registry.Every(10*time.Millisecond, func() { ticks.Add(1) })
	require.NotZero(t, handle)

	assert.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, 5*time.Millisecond)
	registry.Stop(handle)
	settled := ticks.Load()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, ticks.Load(), settled+1)
}

func TestCloseCancelsEverything(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()

	var fired atomic.Int32
	registry.After(20*time.Millisecond, func() { fired.Add(1) })
	registry.Every(20*time.Millisecond, func() { fired.Add(1) })
	registry.Close()

	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, fired.Load())
	assert.Zero(t, registry.Active())
}

func TestClosedRegistryRejectsNewTimers(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	registry.Close()
	registry.Close() // double close is safe

	assert.Zero(t, registry.After(time.Millisecond, func() { t.Error("must not fire") }))
	assert.Zero(t, registry.Every(time.Millisecond, func() { t.Error("must not fire") }))
	time.Sleep(20 * time.Millisecond)
}
