package course

import (
	"sync"
	"time"
)

// Scheduler abstracts periodic and one-shot timers behind cancellation
// handles so that the player can be driven deterministically in tests.
type Scheduler interface {
	// Every runs fn every interval until the returned stop func is called.
	Every(interval time.Duration, fn func()) (stop func())
	// After runs fn once after delay unless the returned stop func is called first.
	After(delay time.Duration, fn func()) (stop func())
}

type timeScheduler struct{}

// NewScheduler returns the real, time.Ticker-backed Scheduler.
func NewScheduler() Scheduler {
	return timeScheduler{}
}

func (timeScheduler) Every(interval time.Duration, fn func()) (stop func()) {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

func (timeScheduler) After(delay time.Duration, fn func()) (stop func()) {
	timer := time.AfterFunc(delay, fn)
	return func() { timer.Stop() }
}
