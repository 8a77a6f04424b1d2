package channel_test

import (
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hashicorp/go-hclog"

	"github.com/nabbar/reactor/channel"
	"github.com/nabbar/reactor/poller"
	"github.com/nabbar/reactor/socket"
)

type noopHandler struct{ channel.BaseHandler }

var _ = Describe("Channel lifecycle", func() {
	// P3: after SetRelease, no further eventRead*/eventWrite* is invoked;
	// the registry's Lookup(name) returns nil after one reactor pass.
	It("releases the channel and drops it from the registry after one Dispatch pass", func() {
		ln, err := socket.Bind("127.0.0.1:0", socket.FamilyAuto)
		Expect(err).ToNot(HaveOccurred())
		defer ln.Close()

		addr := ln.Listener().Addr().String()

		p, err := poller.New(poller.KindAuto, hclog.NewNullLogger())
		Expect(err).ToNot(HaveOccurred())
		defer p.Close()

		reg := channel.NewRegistry()

		accepted := make(chan *socket.Socket, 1)
		go func() {
			s, _, _ := ln.Accept()
			accepted <- s
		}()

		host, port, err := net.SplitHostPort(addr)
		Expect(err).ToNot(HaveOccurred())
		cli, err := socket.Connect(host, port, socket.FamilyAuto, false)
		Expect(err).ToNot(HaveOccurred())
		defer cli.Close()

		var srv *socket.Socket
		Eventually(accepted, time.Second).Should(Receive(&srv))
		Expect(srv).ToNot(BeNil())

		ch := channel.New(channel.Config{
			Registry: reg,
			Poller:   p,
			Handler:  &noopHandler{},
			Framer:   channel.NewMsgFramer(),
			IsServer: true,
			Log:      hclog.NewNullLogger(),
		})
		Expect(ch.Attach(srv.Conn(), srv.Fd())).To(Succeed())

		name := ch.Name()
		Expect(reg.Lookup(name)).ToNot(BeNil())

		ch.SetRelease()

		_, err = p.Dispatch(500 * time.Millisecond)
		Expect(err).ToNot(HaveOccurred())

		Eventually(func() *channel.Channel {
			return reg.Lookup(name)
		}, time.Second, 10*time.Millisecond).Should(BeNil())
	})
})
