package eventloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestManual_FiresInDeadlineOrder(t *testing.T) {
	m := NewManual(epoch)
	var got []string

	m.AfterFunc(300*time.Millisecond, func() { got = append(got, "c") })
	m.AfterFunc(100*time.Millisecond, func() { got = append(got, "a") })
	m.AfterFunc(100*time.Millisecond, func() { got = append(got, "b") })

	m.Advance(250 * time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, epoch.Add(250*time.Millisecond), m.Now())

	m.Advance(50 * time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Equal(t, 0, m.Pending())
}

func TestManual_CallbackTimeIsDeadline(t *testing.T) {
	m := NewManual(epoch)
	var seen time.Time
	m.AfterFunc(time.Second, func() { seen = m.Now() })

	m.Advance(5 * time.Second)
	assert.Equal(t, epoch.Add(time.Second), seen)
}

func TestManual_SelfReschedulingTicker(t *testing.T) {
	m := NewManual(epoch)
	ticks := 0
	var tick func()
	tick = func() {
		ticks++
		m.AfterFunc(100*time.Millisecond, tick)
	}
	m.AfterFunc(100*time.Millisecond, tick)

	m.Advance(time.Second)
	assert.Equal(t, 10, ticks)
}

func TestManual_Stop(t *testing.T) {
	m := NewManual(epoch)
	fired := false
	timer := m.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	m.Advance(2 * time.Second)
	assert.False(t, fired)
}

func TestManual_PanicDoesNotStopLaterTimers(t *testing.T) {
	m := NewManual(epoch)
	after := false
	m.AfterFunc(time.Second, func() { panic("tick exploded") })
	m.AfterFunc(2*time.Second, func() { after = true })

	assert.NotPanics(t, func() { m.Advance(3 * time.Second) })
	assert.True(t, after)
}

func TestManual_DoRunsInline(t *testing.T) {
	m := NewManual(epoch)
	ran := false
	m.Do(func() { ran = true })
	assert.True(t, ran)
	assert.NotPanics(t, func() { m.Do(func() { panic("boom") }) })
}
