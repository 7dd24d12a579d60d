package jobs

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skinbet/internal/game"
)

type fakePlatform struct {
	watchdogs atomic.Int32
	stats     atomic.Int32
}

func (f *fakePlatform) Watchdog() int {
	f.watchdogs.Add(1)
	return 1
}

func (f *fakePlatform) Stats() game.Stats {
	f.stats.Add(1)
	return game.Stats{ConnectedUsers: 3}
}

func TestScheduler_RunsJobs(t *testing.T) {
	p := &fakePlatform{}
	s := NewScheduler(p)
	require.NoError(t, s.Start("@every 1s", "@every 1s"))
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return p.watchdogs.Load() > 0 && p.stats.Load() > 0
	}, 3*time.Second, 50*time.Millisecond)
}

func TestScheduler_EmptyScheduleDisablesJob(t *testing.T) {
	p := &fakePlatform{}
	s := NewScheduler(p)
	require.NoError(t, s.Start("@every 1s", ""))
	defer s.Stop()

	assert.Eventually(t, func() bool { return p.watchdogs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
	assert.Equal(t, int32(0), p.stats.Load())
}

func TestScheduler_BadSchedule(t *testing.T) {
	s := NewScheduler(&fakePlatform{})
	err := s.Start("every now and then", "")
	assert.Error(t, err)
}
