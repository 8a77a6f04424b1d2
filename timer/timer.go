// Package timer implements the reactor's periodic event service: a map
// of (client, id) -> {cycle, last-fire, user-param}, swept from the main
// loop, safe under add/remove mutation from within a firing callback.
package timer

import (
	"sync"
	"time"
)

// Key identifies one timer entry. Client is any comparable token the
// owner chooses (the original used a client pointer; Go code typically
// uses the owning Channel's or Job's name).
type Key struct {
	Client any
	ID     int
}

// Hook is invoked when a timer entry fires.
type Hook func(client any, id int, userParam any)

type entry struct {
	cycle     time.Duration
	lastFire  time.Time
	userParam any
	hook      Hook
}

// minInterCheckGap suppresses fires if Check is called more often than
// this, per spec.md §4.10's 100ms guard against pathological tight loops.
const minInterCheckGap = 100 * time.Millisecond

// Timer holds timer entries for one reactor context. The spec's
// process-wide singleton is modeled as an explicit context object so
// tests (and multiple Instances in one process) don't share state.
type Timer struct {
	mu          sync.Mutex
	entries     map[Key]*entry
	order       []Key
	invalidated bool
	lastCheck   time.Time
}

func New() *Timer {
	return &Timer{entries: make(map[Key]*entry)}
}

// Add registers a new periodic event. Replaces any existing entry for
// the same key.
func (t *Timer) Add(client any, id int, cycle time.Duration, userParam any, hook Hook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := Key{client, id}
	if _, exists := t.entries[k]; !exists {
		t.order = append(t.order, k)
	}
	t.entries[k] = &entry{cycle: cycle, lastFire: time.Now(), userParam: userParam, hook: hook}
	t.invalidated = true
}

// Remove unregisters a timer entry. Safe to call from within a firing
// callback.
func (t *Timer) Remove(client any, id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := Key{client, id}
	if _, exists := t.entries[k]; !exists {
		return
	}
	delete(t.entries, k)
	for i, o := range t.order {
		if o == k {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	t.invalidated = true
}

// Check walks all entries; for each whose elapsed time since its last
// fire is at least its cycle, it records the new last-fire time and
// invokes its hook. If a hook mutates the timer (Add/Remove), the sweep
// restarts from the first entry instead of risking a stale slice index;
// entries that already fired in this sweep are not due again unless
// their cycle has elapsed, matching spec.md §4.10's invalidation-flag
// design.
func (t *Timer) Check() {
	t.mu.Lock()
	now := time.Now()
	if !t.lastCheck.IsZero() && now.Sub(t.lastCheck) < minInterCheckGap {
		t.mu.Unlock()
		return
	}
	t.lastCheck = now
	t.mu.Unlock()

	i := 0
	for {
		t.mu.Lock()
		if i >= len(t.order) {
			t.mu.Unlock()
			return
		}
		k := t.order[i]
		e, ok := t.entries[k]
		if !ok {
			t.mu.Unlock()
			i++
			continue
		}
		due := time.Since(e.lastFire) >= e.cycle
		if due {
			e.lastFire = time.Now()
		}
		t.invalidated = false
		hook := e.hook
		userParam := e.userParam
		t.mu.Unlock()

		if due && hook != nil {
			hook(k.Client, k.ID, userParam)
		}

		t.mu.Lock()
		if t.invalidated {
			t.invalidated = false
			t.mu.Unlock()
			i = 0
			continue
		}
		t.mu.Unlock()
		i++
	}
}
