package eventloop

import (
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

const DefaultQueueSize = 1024

// EventLoop is the production Loop: a single goroutine draining a task queue.
type EventLoop struct {
	tasks    chan func()
	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

func New(queueSize int) *EventLoop {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &EventLoop{
		tasks:    make(chan func(), queueSize),
		stopChan: make(chan struct{}),
	}
}

func (l *EventLoop) Start() {
	l.wg.Add(1)
	go l.loop()
	log.Println("[LOOP] Event loop started")
}

// Stop ends the loop. Queued tasks that have not started are dropped.
func (l *EventLoop) Stop() {
	l.once.Do(func() {
		close(l.stopChan)
	})
	l.wg.Wait()
	log.Println("[LOOP] Event loop stopped")
}

func (l *EventLoop) loop() {
	defer l.wg.Done()
	for {
		select {
		case fn := <-l.tasks:
			run(fn)
		case <-l.stopChan:
			return
		}
	}
}

func (l *EventLoop) post(fn func()) bool {
	select {
	case l.tasks <- fn:
		return true
	case <-l.stopChan:
		return false
	}
}

func (l *EventLoop) Do(fn func()) {
	done := make(chan struct{})
	if !l.post(func() {
		defer close(done)
		fn()
	}) {
		return
	}
	select {
	case <-done:
	case <-l.stopChan:
	}
}

func (l *EventLoop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &loopTimer{}
	t.timer = time.AfterFunc(d, func() {
		l.post(func() {
			if t.stopped.Load() {
				return
			}
			fn()
		})
	})
	return t
}

func (l *EventLoop) Now() time.Time {
	return time.Now()
}

type loopTimer struct {
	timer   *time.Timer
	stopped atomic.Bool
}

func (t *loopTimer) Stop() bool {
	t.stopped.Store(true)
	return t.timer.Stop()
}
