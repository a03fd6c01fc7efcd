package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimers_Fire(t *testing.T) {
	timers := NewTimers()
	defer timers.Stop()

	var fired atomic.Int32
	require.True(t, timers.After(time.Millisecond, func() { fired.Add(1) }))
	require.True(t, timers.After(2*time.Millisecond, func() { fired.Add(1) }))

	require.Eventually(t, func() bool { return fired.Load() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, 0, timers.Pending())
}

func TestTimers_StopCancelsPending(t *testing.T) {
	timers := NewTimers()

	var fired atomic.Int32
	timers.After(time.Hour, func() { fired.Add(1) })
	assert.Equal(t, 1, timers.Pending())

	timers.Stop()
	assert.Equal(t, 0, timers.Pending())
	assert.False(t, timers.After(time.Millisecond, func() { fired.Add(1) }))

	time.Sleep(10 * time.Millisecond)
	assert.EqualValues(t, 0, fired.Load())
}

func TestTimers_StopWaitsForRunning(t *testing.T) {
	timers := NewTimers()

	started := make(chan struct{})
	var done atomic.Bool
	timers.After(0, func() {
		close(started)
		time.Sleep(20 * time.Millisecond)
		done.Store(true)
	})

	<-started
	timers.Stop()
	assert.True(t, done.Load())
}
