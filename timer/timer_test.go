package timer_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/reactor/timer"
)

var _ = Describe("Timer fairness and mutation safety", func() {
	// P6: over a run of length T with a timer of cycle C, the number of
	// fires is in [floor(T/C)-1, floor(T/C)+1]. The cycle is a multiple of
	// Check's 100ms guard, so the guard does not stretch the intervals.
	It("fires roughly T/C times over a run of length T", func() {
		tm := timer.New()
		var mu sync.Mutex
		fires := 0
		cycle := 200 * time.Millisecond
		tm.Add("client", 1, cycle, nil, func(client any, id int, userParam any) {
			mu.Lock()
			fires++
			mu.Unlock()
		})

		const runLen = 900 * time.Millisecond
		deadline := time.Now().Add(runLen)
		for time.Now().Before(deadline) {
			tm.Check()
			time.Sleep(20 * time.Millisecond)
		}

		expect := int(runLen / cycle)
		mu.Lock()
		got := fires
		mu.Unlock()
		Expect(got).To(BeNumerically(">=", expect-1))
		Expect(got).To(BeNumerically("<=", expect+1))
	})

	// P7: a callback that removes itself or adds a new timer entry must
	// not crash, and the sweep must not double-visit the mutated entry
	// within the call that triggered the mutation.
	It("survives a hook removing itself mid-sweep and fires only once", func() {
		tm := timer.New()
		fires := 0
		tm.Add("self", 1, time.Millisecond, nil, func(client any, id int, userParam any) {
			fires++
			tm.Remove(client, id)
		})

		Expect(func() { tm.Check() }).ToNot(Panic())
		time.Sleep(110 * time.Millisecond)
		Expect(func() { tm.Check() }).ToNot(Panic())

		Expect(fires).To(Equal(1))
	})

	It("survives a hook adding a new timer entry mid-sweep", func() {
		tm := timer.New()
		var added bool
		childFires := 0

		tm.Add("parent", 1, time.Millisecond, nil, func(client any, id int, userParam any) {
			if !added {
				added = true
				tm.Add("child", 2, time.Millisecond, nil, func(client any, id int, userParam any) {
					childFires++
				})
			}
		})

		Expect(func() { tm.Check() }).ToNot(Panic())
		time.Sleep(110 * time.Millisecond)
		Expect(func() { tm.Check() }).ToNot(Panic())
		time.Sleep(110 * time.Millisecond)
		Expect(func() { tm.Check() }).ToNot(Panic())

		Expect(childFires).To(BeNumerically(">=", 1))
	})
})
