package eventloop

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLoop_DoSerializes(t *testing.T) {
	l := New(0)
	l.Start()
	defer l.Stop()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Do(func() { counter++ })
		}()
	}
	wg.Wait()

	var got int
	l.Do(func() { got = counter })
	assert.Equal(t, 200, got)
}

func TestEventLoop_AfterFuncRunsOnLoop(t *testing.T) {
	l := New(16)
	l.Start()
	defer l.Stop()

	fired := make(chan struct{})
	l.AfterFunc(10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestEventLoop_StopFromLoopIsFinal(t *testing.T) {
	l := New(16)
	l.Start()
	defer l.Stop()

	var fired bool
	var timer Timer
	l.Do(func() {
		timer = l.AfterFunc(20*time.Millisecond, func() { fired = true })
	})
	l.Do(func() { timer.Stop() })

	time.Sleep(50 * time.Millisecond)
	var got bool
	l.Do(func() { got = fired })
	assert.False(t, got)
}

func TestEventLoop_SurvivesPanic(t *testing.T) {
	l := New(16)
	l.Start()
	defer l.Stop()

	l.Do(func() { panic("bad task") })

	ran := false
	l.Do(func() { ran = true })
	require.True(t, ran)
}

func TestEventLoop_DoAfterStopReturns(t *testing.T) {
	l := New(1)
	l.Start()
	l.Stop()

	done := make(chan struct{})
	go func() {
		l.Do(func() {})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Do blocked after Stop")
	}
}
