package channel

import (
	"sync"

	libatm "github.com/nabbar/reactor/atomic"
)

// Registry hands out unique 32-bit channel names and tracks live
// channels by name (not by pointer, so JobManager's deferred dispatch
// can reference a channel that may be gone by the time it fires).
type Registry struct {
	mu      sync.RWMutex
	live    map[uint32]*Channel
	counter uint32
}

func NewRegistry() *Registry {
	return &Registry{live: make(map[uint32]*Channel)}
}

func (r *Registry) alloc(ch *Channel) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		r.counter++
		if r.counter == 0 {
			continue // 0 is never a valid name
		}
		if _, taken := r.live[r.counter]; !taken {
			r.live[r.counter] = ch
			return r.counter
		}
	}
}

func (r *Registry) release(name uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.live, name)
}

// Lookup returns the live channel for name, or nil if it has since been
// released.
func (r *Registry) Lookup(name uint32) *Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.live[name]
}

var globalGeneration = libatm.NewValue[uint32]()

// nextGeneration hands out a monotonic generation id used to distinguish
// a channel's successive incarnations sharing the same name slot.
func nextGeneration() uint32 {
	for {
		old := globalGeneration.Load()
		next := old + 1
		if globalGeneration.CompareAndSwap(old, next) {
			return next
		}
	}
}
