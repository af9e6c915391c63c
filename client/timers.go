package client

import (
	"sync"
	"time"
)

// timerRegistry keys pending timers by resource so teardown can cancel all
// of them deterministically instead of leaking timers across reconnect
// cycles.
type timerRegistry struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newTimerRegistry() *timerRegistry {
	return &timerRegistry{timers: make(map[string]*time.Timer)}
}

// set arms fn to run after d, replacing any pending timer under the same key.
func (r *timerRegistry) set(key string, d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.timers[key]; ok {
		t.Stop()
	}
	r.timers[key] = time.AfterFunc(d, func() {
		r.mu.Lock()
		delete(r.timers, key)
		r.mu.Unlock()
		fn()
	})
}

func (r *timerRegistry) cancel(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.timers[key]; ok {
		t.Stop()
		delete(r.timers, key)
	}
}

func (r *timerRegistry) cancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, t := range r.timers {
		t.Stop()
		delete(r.timers, key)
	}
}

func (r *timerRegistry) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}
