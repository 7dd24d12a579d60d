// Package jobs runs the periodic maintenance tasks: the engine watchdog and a
// stats log line.
package jobs

import (
	"fmt"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"skinbet/internal/game"
)

// Platform is the part of the game platform the jobs drive.
type Platform interface {
	Watchdog() int
	Stats() game.Stats
}

type Scheduler struct {
	cron     *cron.Cron
	platform Platform
}

func NewScheduler(platform Platform) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		platform: platform,
	}
}

// Start registers the jobs on their schedules and starts the cron runner.
// An empty schedule disables that job.
func (s *Scheduler) Start(watchdogSchedule, statsSchedule string) error {
	if watchdogSchedule != "" {
		if _, err := s.cron.AddFunc(watchdogSchedule, s.runWatchdog); err != nil {
			return fmt.Errorf("watchdog schedule %q: %w", watchdogSchedule, err)
		}
	}
	if statsSchedule != "" {
		if _, err := s.cron.AddFunc(statsSchedule, s.logStats); err != nil {
			return fmt.Errorf("stats schedule %q: %w", statsSchedule, err)
		}
	}

	s.cron.Start()
	log.WithFields(log.Fields{"watchdog": watchdogSchedule, "stats": statsSchedule}).Info("[CRON] Scheduler started")
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("[CRON] Scheduler stopped")
}

func (s *Scheduler) runWatchdog() {
	if n := s.platform.Watchdog(); n > 0 {
		log.WithField("engines", n).Warn("[CRON] Watchdog restarted stalled engines")
	}
}

func (s *Scheduler) logStats() {
	stats := s.platform.Stats()
	fields := log.Fields{
		"users":        stats.ConnectedUsers,
		"connections":  stats.Connections,
		"crash_phase":  stats.Crash.Phase,
		"crash_bets":   len(stats.Crash.Bets),
		"jackpot_pot":  stats.Jackpot.TotalPot.StringFixed(2),
		"jackpot_left": stats.Jackpot.TimeLeft,
		"rain_active":  stats.Rain != nil,
	}
	log.WithFields(fields).Info("[CRON] Platform stats")
}
