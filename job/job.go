// Package job implements JobManager/Job: key-addressed outstanding
// transactions, dispatch by key, a deferred reserve queue for callers
// that cannot safely enter a job synchronously, and a periodic timeout
// sweep.
package job

import (
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/nabbar/reactor/packet"
)

// Hooks is the set of callbacks a Job fires. Any hook may set *delThis
// to request the manager delete the job after the call returns.
type Hooks struct {
	OnPacket  func(channelName uint32, pkt packet.Packet, userParam any, delThis *bool)
	OnError   func(channelName uint32, kind ErrorKind, errno error, userParam any, delThis *bool)
	OnTimeout func(userParam any, delThis *bool)
}

type ErrorKind uint8

const (
	ErrNormal ErrorKind = iota
	ErrConnect
	ErrReadClose
	ErrRead
	ErrWrite
	ErrInvalidPacket
)

// Job is a correlation record keyed by a monotonic 32-bit id.
type Job struct {
	Key       uint32
	CreatedAt time.Time
	UserParam any
	hooks     Hooks
}

type reservedPacket struct {
	key         uint32
	channelName string
	pkt         packet.Packet
	userParam   any
}

type reservedError struct {
	key         uint32
	channelName string
	kind        ErrorKind
	errno       error
	userParam   any
}

// Manager correlates outbound requests with responses that arrive later,
// possibly on a different channel.
type Manager struct {
	mu      sync.Mutex
	jobs    map[uint32]*Job
	counter uint32

	qmu      sync.Mutex
	reservedP []reservedPacket
	reservedE []reservedError
	killSet   []uint32

	log hclog.Logger
}

func NewManager(log hclog.Logger) *Manager {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Manager{jobs: make(map[uint32]*Job), log: log}
}

// Create allocates a new Job with a monotonic, never-zero, collision-free
// key.
func (m *Manager) Create(hooks Hooks, userParam any) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := m.nextKeyLocked()
	j := &Job{Key: key, CreatedAt: time.Now(), UserParam: userParam, hooks: hooks}
	m.jobs[key] = j
	return j
}

func (m *Manager) nextKeyLocked() uint32 {
	for {
		m.counter++
		if m.counter == 0 {
			continue
		}
		if _, taken := m.jobs[m.counter]; !taken {
			return m.counter
		}
	}
}

// Lookup returns the live job for key, if any.
func (m *Manager) Lookup(key uint32) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[key]
}

func (m *Manager) delete(key uint32) {
	m.mu.Lock()
	delete(m.jobs, key)
	m.mu.Unlock()
}

// DispatchPacket looks up the job for key and invokes its packet hook;
// if the hook sets delThis, the manager deletes the job.
func (m *Manager) DispatchPacket(key uint32, channelName uint32, pkt packet.Packet, userParam any) {
	j := m.Lookup(key)
	if j == nil || j.hooks.OnPacket == nil {
		return
	}
	del := false
	j.hooks.OnPacket(channelName, pkt, userParam, &del)
	if del {
		m.delete(key)
	}
}

// DispatchError is the symmetric error path.
func (m *Manager) DispatchError(key uint32, channelName uint32, kind ErrorKind, errno error, userParam any) {
	j := m.Lookup(key)
	if j == nil || j.hooks.OnError == nil {
		return
	}
	del := false
	j.hooks.OnError(channelName, kind, errno, userParam, &del)
	if del {
		m.delete(key)
	}
}

// ReservePacket enqueues a deferred packet dispatch, keyed by channel
// name rather than pointer since the channel may be destroyed before the
// main loop drains the queue.
func (m *Manager) ReservePacket(key uint32, channelName string, pkt packet.Packet, userParam any) {
	m.qmu.Lock()
	m.reservedP = append(m.reservedP, reservedPacket{key, channelName, pkt, userParam})
	m.qmu.Unlock()
}

// ReserveError is the symmetric deferred error enqueue.
func (m *Manager) ReserveError(key uint32, channelName string, kind ErrorKind, errno error, userParam any) {
	m.qmu.Lock()
	m.reservedE = append(m.reservedE, reservedError{key, channelName, kind, errno, userParam})
	m.qmu.Unlock()
}

// Kill schedules key for deletion on the next DispatchReserve sweep.
func (m *Manager) Kill(key uint32) {
	m.qmu.Lock()
	m.killSet = append(m.killSet, key)
	m.qmu.Unlock()
}

// ChannelResolver maps a reserved entry's channel name back to a
// numeric channel id at dispatch time; callers inject their own
// registry lookup since job does not depend on channel.
type ChannelResolver func(name string) (id uint32, ok bool)

// DispatchReserve drains the kill-set, then the reserve queue, in that
// order, matching spec.md §4.8's sweep ordering.
func (m *Manager) DispatchReserve(resolve ChannelResolver) {
	m.qmu.Lock()
	kills := m.killSet
	m.killSet = nil
	pkts := m.reservedP
	m.reservedP = nil
	errs := m.reservedE
	m.reservedE = nil
	m.qmu.Unlock()

	for _, k := range kills {
		m.delete(k)
	}
	for _, p := range pkts {
		id, ok := resolve(p.channelName)
		if !ok {
			continue
		}
		m.DispatchPacket(p.key, id, p.pkt, p.userParam)
	}
	for _, e := range errs {
		id, ok := resolve(e.channelName)
		if !ok {
			continue
		}
		m.DispatchError(e.key, id, e.kind, e.errno, e.userParam)
	}
}

// CheckTimeout fires the timeout hook of every job older than limit.
// The kill-set is drained before and after the sweep, per spec.md §4.8.
func (m *Manager) CheckTimeout(limit time.Duration, resolve ChannelResolver) {
	m.DispatchReserve(resolve)

	m.mu.Lock()
	now := time.Now()
	var expired []*Job
	for _, j := range m.jobs {
		if now.Sub(j.CreatedAt) > limit {
			expired = append(expired, j)
		}
	}
	m.mu.Unlock()

	for _, j := range expired {
		if j.hooks.OnTimeout == nil {
			m.delete(j.Key)
			continue
		}
		del := false
		j.hooks.OnTimeout(j.UserParam, &del)
		if del {
			m.delete(j.Key)
		}
	}

	m.DispatchReserve(resolve)
}
