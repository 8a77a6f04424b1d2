package socket_test

import (
	"net"
	"syscall"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/reactor/socket"
)

var _ = Describe("Socket", func() {
	It("binds, accepts, connects and exposes a usable fd on both ends", func() {
		ln, err := socket.Bind("127.0.0.1:0", socket.FamilyAuto)
		Expect(err).ToNot(HaveOccurred())
		defer ln.Close()
		Expect(ln.Fd()).To(BeNumerically(">", 0))

		host, port, err := net.SplitHostPort(ln.Listener().Addr().String())
		Expect(err).ToNot(HaveOccurred())

		accepted := make(chan *socket.Socket, 1)
		go func() {
			s, _, _ := ln.Accept()
			accepted <- s
		}()

		cli, err := socket.Connect(host, port, socket.FamilyAuto, false)
		Expect(err).ToNot(HaveOccurred())
		defer cli.Close()
		Expect(cli.Fd()).To(BeNumerically(">", 0))
		Expect(cli.IsConnected()).To(BeTrue())

		var srv *socket.Socket
		Eventually(accepted, time.Second).Should(Receive(&srv))
		Expect(srv).ToNot(BeNil())
		Expect(srv.Fd()).To(BeNumerically(">", 0))
		defer srv.Close()

		n, err := cli.Conn().Write([]byte("ping"))
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal(4))

		buf := make([]byte, 4)
		_, err = srv.Conn().Read(buf)
		Expect(err).ToNot(HaveOccurred())
		Expect(buf).To(Equal([]byte("ping")))
	})

	It("fails to connect to a closed port", func() {
		ln, err := socket.Bind("127.0.0.1:0", socket.FamilyAuto)
		Expect(err).ToNot(HaveOccurred())
		host, port, err := net.SplitHostPort(ln.Listener().Addr().String())
		Expect(err).ToNot(HaveOccurred())
		Expect(ln.Close()).To(Succeed())

		_, err = socket.Connect(host, port, socket.FamilyAuto, false)
		Expect(err).To(HaveOccurred())
	})

	It("classifies EAGAIN/EWOULDBLOCK/EINTR as retryable", func() {
		Expect(socket.IsAgain(syscall.EAGAIN)).To(BeTrue())
		Expect(socket.IsAgain(syscall.EWOULDBLOCK)).To(BeTrue())
		Expect(socket.IsAgain(syscall.EINTR)).To(BeTrue())
		Expect(socket.IsAgain(nil)).To(BeFalse())
	})
})
