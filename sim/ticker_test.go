package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// countingTicker reports progress for the first n ticks, then stalls.
type countingTicker struct {
	calls int
	n     int
}

func (t *countingTicker) Tick() bool {
	t.calls++
	return t.calls <= t.n
}

// Handle lets countingTicker stand in as a Handler for TickScheduler tests
// that don't need a full TickingComponent.
func (t *countingTicker) Handle(e Event) error {
	t.Tick()
	return nil
}

var _ = Describe("TickingComponent", func() {
	It("reschedules only while the ticker keeps making progress", func() {
		engine := NewSerialEngine()
		ticker := &countingTicker{n: 3}
		tc := NewTickingComponent("Ticker", engine, 1*GHz, ticker)

		tc.TickNow()

		Expect(engine.Run()).To(Succeed())
		Expect(ticker.calls).To(Equal(4))
	})

	It("starts ticking again when notified of a free port or new arrival", func() {
		engine := NewSerialEngine()
		ticker := &countingTicker{n: 0}
		tc := NewTickingComponent("Ticker", engine, 1*GHz, ticker)

		tc.NotifyPortFree(nil)
		Expect(engine.Run()).To(Succeed())
		Expect(ticker.calls).To(Equal(1))

		tc.NotifyRecv(nil)
		Expect(engine.Run()).To(Succeed())
		Expect(ticker.calls).To(Equal(2))
	})
})

var _ = Describe("TickScheduler", func() {
	It("does not schedule a second tick for the same time", func() {
		engine := NewSerialEngine()
		handler := &countingTicker{n: 100}
		scheduler := NewTickScheduler(handler, engine, 1*GHz)

		scheduler.TickNow()
		scheduler.TickNow()

		Expect(engine.queue.Len()).To(Equal(1))
	})
})
