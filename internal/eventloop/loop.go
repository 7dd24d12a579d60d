// Package eventloop serializes all game-state mutation onto one logical thread.
//
// Connection goroutines hand work to the loop with Do, and timers scheduled with
// AfterFunc fire on the loop as well, so tick handlers never overlap each other or
// a client command. Every task runs under panic recovery; a failing task is logged
// and the loop carries on with the next one.
package eventloop

import (
	"fmt"
	"runtime/debug"
	"time"

	log "github.com/sirupsen/logrus"

	"skinbet/internal/metrics"
)

// Loop runs tasks one at a time.
type Loop interface {
	// Do runs fn on the loop and returns once it has finished.
	// It must not be called from inside a loop task.
	Do(fn func())
	// AfterFunc schedules fn to run on the loop after d.
	AfterFunc(d time.Duration, fn func()) Timer
	Now() time.Time
}

// Timer cancels a pending AfterFunc. Stop called from a loop task is final: the
// callback will not run afterwards even if its deadline already passed.
type Timer interface {
	Stop() bool
}

// run executes fn and converts a panic into a logged, counted failure.
func run(fn func()) (failed bool) {
	defer func() {
		if r := recover(); r != nil {
			failed = true
			metrics.LoopPanics.Inc()
			log.WithFields(log.Fields{
				"panic": fmt.Sprintf("%v", r),
				"stack": string(debug.Stack()),
			}).Error("[LOOP] Task panicked, recovered")
		}
	}()
	fn()
	return false
}
