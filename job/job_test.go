package job_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hashicorp/go-hclog"

	"github.com/nabbar/reactor/job"
	"github.com/nabbar/reactor/packet"
)

var _ = Describe("Job key uniqueness", func() {
	// P5: over any sequence of n Job creations and deletions, the set of
	// live Jobs has no two elements with equal keys; no key equals 0.
	It("never hands out a zero key or a key shared by two live jobs", func() {
		m := job.NewManager(hclog.NewNullLogger())

		seen := make(map[uint32]bool)
		for i := 0; i < 1000; i++ {
			j := m.Create(job.Hooks{}, i)
			Expect(j.Key).ToNot(BeZero())
			Expect(seen[j.Key]).To(BeFalse(), "key %d reused while still live", j.Key)
			seen[j.Key] = true
		}
	})

	It("DispatchPacket deletes the job only when the hook requests it", func() {
		m := job.NewManager(hclog.NewNullLogger())
		var gotPkt bool
		j := m.Create(job.Hooks{
			OnPacket: func(channelName uint32, pkt packet.Packet, userParam any, delThis *bool) {
				gotPkt = true
				*delThis = true
			},
		}, nil)

		m.DispatchPacket(j.Key, 7, nil, nil)
		Expect(gotPkt).To(BeTrue())
		Expect(m.Lookup(j.Key)).To(BeNil())
	})

	It("CheckTimeout fires OnTimeout exactly once for jobs past the limit", func() {
		m := job.NewManager(hclog.NewNullLogger())
		fired := 0
		j := m.Create(job.Hooks{
			OnTimeout: func(userParam any, delThis *bool) {
				fired++
				*delThis = true
			},
		}, nil)

		m.CheckTimeout(0, func(name string) (uint32, bool) { return 0, false })
		Expect(fired).To(Equal(1))
		Expect(m.Lookup(j.Key)).To(BeNil())

		// a second sweep must not re-fire a now-deleted job.
		m.CheckTimeout(0, func(name string) (uint32, bool) { return 0, false })
		Expect(fired).To(Equal(1))
	})
})
