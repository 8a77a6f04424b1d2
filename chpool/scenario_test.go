package chpool_test

import (
	"errors"
	"net"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hashicorp/go-hclog"

	"github.com/nabbar/reactor/channel"
	"github.com/nabbar/reactor/chpool"
	"github.com/nabbar/reactor/iobuf"
	"github.com/nabbar/reactor/job"
	"github.com/nabbar/reactor/packet"
	"github.com/nabbar/reactor/packet/resp"
	"github.com/nabbar/reactor/poller"
	"github.com/nabbar/reactor/socket"
	"github.com/nabbar/reactor/timer"
)

// rawFramer treats every readable byte as belonging to a single Blob
// packet, delivered as soon as any bytes arrive. It has no header or
// length field of its own, matching the minimal echo service of S1.
type rawFramer struct{}

func (rawFramer) Feed(buf *iobuf.Buffer) ([]packet.Packet, [][]byte, channel.RecvState, error) {
	n := buf.Len()
	if n == 0 {
		return nil, nil, channel.RecvStart, nil
	}
	b := make([]byte, n)
	buf.ReadFromBuffer(b, n)
	return []packet.Packet{packet.NewBlob(b)}, nil, channel.RecvDone, nil
}

func (rawFramer) BodyKeepOpen() bool                     { return false }
func (rawFramer) FinalizeOnClose() (packet.Packet, bool) { return nil, false }

type echoHandler struct{ channel.BaseHandler }

func (echoHandler) EventReadPacket(ch *channel.Channel, pkt packet.Packet) {
	_ = ch.Write(pkt)
}

type captureHandler struct {
	channel.BaseHandler
	out chan []byte
}

func (h *captureHandler) EventReadPacket(ch *channel.Channel, pkt packet.Packet) {
	if b, ok := pkt.(*packet.Blob); ok {
		select {
		case h.out <- append([]byte(nil), b.Body...):
		default:
		}
	}
}

var _ = Describe("Pool rotation", func() {
	// P10: three live members in one group, visited round-robin; removing
	// the middle one leaves the remaining two rotating between themselves.
	It("visits every member exactly once per lap and recovers after removal", func() {
		tmr := timer.New()
		dialer := func(host string) (*channel.Channel, error) {
			return channel.New(channel.Config{
				Registry: channel.NewRegistry(),
				Handler:  echoHandler{},
				Log:      hclog.NewNullLogger(),
			}), nil
		}
		pool := chpool.New(dialer, tmr, chpool.ReconnectConfig{InitBackoff: 0}, hclog.NewNullLogger())
		pool.AddMember("g1", "h1", 3)

		// InitBackoff is zero, so every member's reconnect entry is already
		// due; one sweep connects all three synchronously.
		tmr.Check()

		first := pool.GetNextPerGroup("g1")
		second := pool.GetNextPerGroup("g1")
		third := pool.GetNextPerGroup("g1")
		wrap := pool.GetNextPerGroup("g1")

		Expect(first).ToNot(BeNil())
		Expect(second).ToNot(BeNil())
		Expect(third).ToNot(BeNil())
		Expect([]*chpool.Member{first, second, third}).To(ConsistOf(first, second, third))
		Expect(first).ToNot(BeIdenticalTo(second))
		Expect(second).ToNot(BeIdenticalTo(third))
		Expect(wrap).To(BeIdenticalTo(first))

		pool.RemoveMember("g1", "h1", second)

		n1 := pool.GetNextPerGroup("g1")
		n2 := pool.GetNextPerGroup("g1")
		n3 := pool.GetNextPerGroup("g1")

		Expect(n1).ToNot(BeIdenticalTo(n2))
		Expect(n3).To(BeIdenticalTo(n1))
		Expect([]*chpool.Member{n1, n2}).To(ConsistOf(first, third))
	})
})

var _ = Describe("S1: echo service", func() {
	It("echoes bytes back and releases the server channel once the peer closes", func() {
		ln, err := socket.Bind("127.0.0.1:0", socket.FamilyAuto)
		Expect(err).ToNot(HaveOccurred())
		defer ln.Close()

		p, err := poller.New(poller.KindAuto, hclog.NewNullLogger())
		Expect(err).ToNot(HaveOccurred())
		defer p.Close()

		reg := channel.NewRegistry()

		accepted := make(chan *socket.Socket, 1)
		go func() {
			s, _, _ := ln.Accept()
			accepted <- s
		}()

		host, port, err := net.SplitHostPort(ln.Listener().Addr().String())
		Expect(err).ToNot(HaveOccurred())
		cli, err := socket.Connect(host, port, socket.FamilyAuto, false)
		Expect(err).ToNot(HaveOccurred())

		var srv *socket.Socket
		Eventually(accepted, time.Second).Should(Receive(&srv))

		serverCh := channel.New(channel.Config{
			Registry: reg,
			Poller:   p,
			Handler:  echoHandler{},
			Framer:   rawFramer{},
			IsServer: true,
			Log:      hclog.NewNullLogger(),
		})
		Expect(serverCh.Attach(srv.Conn(), srv.Fd())).To(Succeed())

		captured := make(chan []byte, 1)
		clientCh := channel.New(channel.Config{
			Registry: reg,
			Poller:   p,
			Handler:  &captureHandler{out: captured},
			Framer:   rawFramer{},
			Log:      hclog.NewNullLogger(),
		})
		Expect(clientCh.Attach(cli.Conn(), cli.Fd())).To(Succeed())

		Expect(clientCh.Write(packet.NewBlob([]byte("hello!")))).To(Succeed())

		Eventually(func() []byte {
			_, _ = p.Dispatch(50 * time.Millisecond)
			select {
			case b := <-captured:
				return b
			default:
				return nil
			}
		}, 2*time.Second, 10*time.Millisecond).Should(Equal([]byte("hello!")))

		name := serverCh.Name()
		Expect(reg.Lookup(name)).ToNot(BeNil())

		Expect(cli.Close()).To(Succeed())

		Eventually(func() *channel.Channel {
			_, _ = p.Dispatch(50 * time.Millisecond)
			return reg.Lookup(name)
		}, 2*time.Second, 10*time.Millisecond).Should(BeNil())
	})
})

var _ = Describe("S4: job timeout", func() {
	It("fires the timeout hook exactly once and destroys the job", func() {
		m := job.NewManager(hclog.NewNullLogger())
		fired := 0
		j := m.Create(job.Hooks{
			OnTimeout: func(userParam any, delThis *bool) {
				fired++
				*delThis = true
			},
		}, nil)

		time.Sleep(250 * time.Millisecond)
		resolve := func(string) (uint32, bool) { return 0, false }

		m.CheckTimeout(200*time.Millisecond, resolve)
		Expect(fired).To(Equal(1))
		Expect(m.Lookup(j.Key)).To(BeNil())

		m.CheckTimeout(200*time.Millisecond, resolve)
		Expect(fired).To(Equal(1))
	})
})

var _ = Describe("S5: RESP parse", func() {
	It("parses \"*2\\r\\n$5\\r\\nhello\\r\\n:42\\r\\n\" fed one byte at a time into one array", func() {
		raw := []byte("*2\r\n$5\r\nhello\r\n:42\r\n")
		r := resp.NewReader()
		dst := iobuf.New(len(raw), 16)
		for _, b := range raw {
			dst.WriteToBuffer([]byte{b}, 1)
			Expect(r.Feed(dst)).To(Succeed())
		}

		got, ok := r.Next()
		Expect(ok).To(BeTrue())
		Expect(got.Kind).To(Equal(resp.KindArray))
		Expect(got.Array).To(Equal([]resp.Value{
			{Kind: resp.KindBulkString, Str: "hello"},
			{Kind: resp.KindInteger, Int: 42},
		}))
	})
})

var _ = Describe("S6: multi pool reconnect", func() {
	It("reconnects both members once the peer comes back and keeps alternating", func() {
		var mu sync.Mutex
		down := true

		dialer := func(host string) (*channel.Channel, error) {
			mu.Lock()
			d := down
			mu.Unlock()
			if d {
				return nil, errors.New("peer down")
			}
			return channel.New(channel.Config{
				Registry: channel.NewRegistry(),
				Handler:  echoHandler{},
				Log:      hclog.NewNullLogger(),
			}), nil
		}

		tmr := timer.New()
		cycle := 120 * time.Millisecond
		pool := chpool.New(dialer, tmr, chpool.ReconnectConfig{InitBackoff: cycle}, hclog.NewNullLogger())
		pool.AddMember("g", "h", 2)

		// First sweep: peer still down, both attempts fail, members stay
		// disconnected but their reconnect entries remain armed.
		time.Sleep(cycle + 20*time.Millisecond)
		tmr.Check()
		Expect(pool.GetNextPerHost("g", "h")).To(BeNil())

		// Peer restarts; the next due sweep should bring both members up
		// within 2x the reconnect cycle.
		mu.Lock()
		down = false
		mu.Unlock()
		time.Sleep(cycle + 20*time.Millisecond)
		tmr.Check()

		a := pool.GetNextPerHost("g", "h")
		b := pool.GetNextPerHost("g", "h")
		c := pool.GetNextPerHost("g", "h")

		Expect(a).ToNot(BeNil())
		Expect(b).ToNot(BeNil())
		Expect(a).ToNot(BeIdenticalTo(b))
		Expect(c).To(BeIdenticalTo(a))
	})
})
