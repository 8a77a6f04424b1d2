// Package chpool implements MultiChannelPool: a connection pool grouped
// as group -> host -> redundant channels, each with a reconnect backoff
// state machine, plus full/per-host/per-group broadcast strategies.
// Hello-packet negotiation runs only for a dialed channel that
// implements HelloNegotiator; *channel.Channel does not, so members are
// marked hello-complete as soon as they connect.
package chpool

import (
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/nabbar/reactor/channel"
	"github.com/nabbar/reactor/packet"
	"github.com/nabbar/reactor/timer"
)

// Member wraps one pooled channel with the reconnect/hello state the
// pool drives on top of the plain Channel state machine.
type Member struct {
	Host string
	Ch   *channel.Channel

	connected bool
	helloSent bool
	helloOK   bool
	peerName  string
}

// HelloNegotiator lets a concrete protocol channel decide whether to
// send a hello and how to validate the peer's response, per spec.md
// §4.9's getHelloPacket/checkHelloPacket hooks.
type HelloNegotiator interface {
	GetHelloPacket(send, wait bool) (pkt packet.Packet, shouldSend, shouldWait bool)
	CheckHelloPacket(pkt packet.Packet) (peerName string, ok bool)
}

type hostBucket struct {
	members []*Member
	cursor  int
}

func (b *hostBucket) next() *Member {
	if len(b.members) == 0 {
		return nil
	}
	start := b.cursor
	for i := 0; i < len(b.members); i++ {
		idx := (start + i) % len(b.members)
		b.cursor = (idx + 1) % len(b.members)
		if b.members[idx].connected {
			return b.members[idx]
		}
	}
	return nil
}

type group struct {
	hosts      map[string]*hostBucket
	hostOrder  []string
	cursor     int
}

func (g *group) next() *Member {
	if len(g.hostOrder) == 0 {
		return nil
	}
	start := g.cursor
	for i := 0; i < len(g.hostOrder); i++ {
		idx := (start + i) % len(g.hostOrder)
		g.cursor = (idx + 1) % len(g.hostOrder)
		if m := g.hosts[g.hostOrder[idx]].next(); m != nil {
			return m
		}
	}
	return nil
}

// BroadcastStrategy selects how Broadcast fans a packet out.
type BroadcastStrategy uint8

const (
	BroadcastFull BroadcastStrategy = iota
	BroadcastPerHost
	BroadcastPerGroup
)

// ReconnectConfig controls the per-member backoff timers.
type ReconnectConfig struct {
	InitBackoff  time.Duration // TIMER_RECONNECT_INIT
	ResponseWait time.Duration // TIMER_RECONNECT_RESPONSE; defaults to 2x InitBackoff
}

// Dialer opens a new channel to host, wired the same way every other
// channel in the pool is (framer, handler, TLS).
type Dialer func(host string) (*channel.Channel, error)

// Pool is the three-level group -> host -> channel structure.
type Pool struct {
	mu         sync.Mutex
	groups     map[string]*group
	groupOrder []string
	poolCursor int

	dialer  Dialer
	timer   *timer.Timer
	recfg   ReconnectConfig
	log     hclog.Logger
	metrics *Metrics
}

func New(dialer Dialer, t *timer.Timer, recfg ReconnectConfig, log hclog.Logger) *Pool {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	if recfg.ResponseWait == 0 {
		recfg.ResponseWait = 2 * recfg.InitBackoff
	}
	return &Pool{
		groups: make(map[string]*group),
		dialer: dialer,
		timer:  t,
		recfg:  recfg,
		log:    log,
	}
}

// SetMetrics attaches a Metrics set the pool updates on every membership
// or connection-state change. Pass nil to disable (the default).
func (p *Pool) SetMetrics(m *Metrics) {
	p.mu.Lock()
	p.metrics = m
	p.mu.Unlock()
}

// reportLocked recomputes group/host gauges for one host bucket. Callers
// must hold p.mu.
func (p *Pool) reportLocked(groupName, host string, b *hostBucket) {
	if p.metrics == nil {
		return
	}
	connected := 0
	for _, m := range b.members {
		if m.connected {
			connected++
		}
	}
	p.metrics.observe(groupName, host, len(b.members), connected)
}

// AddMember registers host under groupName with n redundant channel
// slots, all initially disconnected; the reconnect timer immediately
// arms a connect attempt for each.
func (p *Pool) AddMember(groupName, host string, n int) {
	p.mu.Lock()
	g, ok := p.groups[groupName]
	if !ok {
		g = &group{hosts: make(map[string]*hostBucket)}
		p.groups[groupName] = g
		p.groupOrder = append(p.groupOrder, groupName)
	}
	b, ok := g.hosts[host]
	if !ok {
		b = &hostBucket{}
		g.hosts[host] = b
		g.hostOrder = append(g.hostOrder, host)
	}
	p.mu.Unlock()

	for i := 0; i < n; i++ {
		m := &Member{Host: host}
		p.mu.Lock()
		b.members = append(b.members, m)
		p.reportLocked(groupName, host, b)
		p.mu.Unlock()
		p.armReconnect(groupName, host, m)
	}
}

func (p *Pool) armReconnect(groupName, host string, m *Member) {
	p.timer.Add(m, 0, p.recfg.InitBackoff, nil, func(any, int, any) {
		p.tryConnect(groupName, host, m)
	})
}

func (p *Pool) tryConnect(groupName, host string, m *Member) {
	ch, err := p.dialer(host)
	if err != nil {
		p.log.Warn("reconnect failed", "host", host, "error", err)
		return
	}
	p.mu.Lock()
	m.Ch = ch
	m.connected = true
	m.helloSent = false
	m.helloOK = false
	if g, ok := p.groups[groupName]; ok {
		if b, ok := g.hosts[host]; ok {
			p.reportLocked(groupName, host, b)
		}
	}
	p.mu.Unlock()
	p.timer.Remove(m, 0)

	if hn, ok := any(ch).(HelloNegotiator); ok {
		pkt, send, wait := hn.GetHelloPacket(true, true)
		if send && pkt != nil {
			_ = ch.Write(pkt)
			m.helloSent = true
		}
		if wait {
			p.timer.Add(m, 1, p.recfg.ResponseWait, nil, func(any, int, any) {
				p.mu.Lock()
				ok := m.helloOK
				p.mu.Unlock()
				if !ok {
					p.dropMember(groupName, host, m)
				}
			})
		} else {
			m.helloOK = true
		}
	} else {
		m.helloOK = true
	}
}

// AcceptHello marks a member's hello negotiation complete; call this
// from the channel's packet hook once CheckHelloPacket succeeds.
func (p *Pool) AcceptHello(m *Member, peerName string) {
	p.mu.Lock()
	m.helloOK = true
	m.peerName = peerName
	p.mu.Unlock()
	p.timer.Remove(m, 1)
}

func (p *Pool) dropMember(groupName, host string, m *Member) {
	p.mu.Lock()
	if m.Ch != nil {
		m.Ch.SetExpired()
	}
	m.connected = false
	m.Ch = nil
	if g, ok := p.groups[groupName]; ok {
		if b, ok := g.hosts[host]; ok {
			p.reportLocked(groupName, host, b)
		}
	}
	p.mu.Unlock()
	p.armReconnect(groupName, host, m)
}

// NotifyDisconnected is called by the owning channel's error hook so the
// pool re-arms the reconnect timer for a member whose connection died.
func (p *Pool) NotifyDisconnected(groupName, host string, m *Member) {
	p.dropMember(groupName, host, m)
}

// GetNextFull returns the next live member pool-wide, round-robin across
// groups then hosts then channels within a host.
func (p *Pool) GetNextFull() *Member {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.groupOrder) == 0 {
		return nil
	}
	start := p.poolCursor
	for i := 0; i < len(p.groupOrder); i++ {
		idx := (start + i) % len(p.groupOrder)
		p.poolCursor = (idx + 1) % len(p.groupOrder)
		if m := p.groups[p.groupOrder[idx]].next(); m != nil {
			return m
		}
	}
	return nil
}

// GetNextPerGroup returns the next live member in groupName.
func (p *Pool) GetNextPerGroup(groupName string) *Member {
	p.mu.Lock()
	defer p.mu.Unlock()
	g, ok := p.groups[groupName]
	if !ok {
		return nil
	}
	return g.next()
}

// GetNextPerHost returns the next live member for host within groupName.
func (p *Pool) GetNextPerHost(groupName, host string) *Member {
	p.mu.Lock()
	defer p.mu.Unlock()
	g, ok := p.groups[groupName]
	if !ok {
		return nil
	}
	b, ok := g.hosts[host]
	if !ok {
		return nil
	}
	return b.next()
}

// Broadcast sends pkt according to strategy: full sends to every live
// channel; per-host sends to exactly one live channel per host; per-group
// sends to exactly one live channel per group.
func (p *Pool) Broadcast(pkt packet.Packet, strategy BroadcastStrategy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch strategy {
	case BroadcastFull:
		for _, gname := range p.groupOrder {
			g := p.groups[gname]
			for _, hname := range g.hostOrder {
				for _, m := range g.hosts[hname].members {
					if m.connected && m.Ch != nil {
						_ = m.Ch.Write(pkt)
					}
				}
			}
		}
	case BroadcastPerHost:
		for _, gname := range p.groupOrder {
			g := p.groups[gname]
			for _, hname := range g.hostOrder {
				if m := g.hosts[hname].next(); m != nil && m.Ch != nil {
					_ = m.Ch.Write(pkt)
				}
			}
		}
	case BroadcastPerGroup:
		for _, gname := range p.groupOrder {
			if m := p.groups[gname].next(); m != nil && m.Ch != nil {
				_ = m.Ch.Write(pkt)
			}
		}
	}
}

// RemoveMember drops m from its host bucket entirely (not a disconnect:
// it stops being reconnected). Any cursor pointing at m is advanced
// before removal, per spec.md §3's MultiChannelPool invariant.
func (p *Pool) RemoveMember(groupName, host string, m *Member) {
	p.mu.Lock()
	defer p.mu.Unlock()
	g, ok := p.groups[groupName]
	if !ok {
		return
	}
	b, ok := g.hosts[host]
	if !ok {
		return
	}
	for i, mm := range b.members {
		if mm == m {
			if b.cursor > i {
				b.cursor--
			}
			b.members = append(b.members[:i], b.members[i+1:]...)
			p.reportLocked(groupName, host, b)
			p.timer.Remove(m, 0)
			p.timer.Remove(m, 1)
			break
		}
	}
}
