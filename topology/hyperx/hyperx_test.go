package hyperx_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sst-elements/merlin/events"
	"github.com/sst-elements/merlin/topology"
	"github.com/sst-elements/merlin/topology/hyperx"
)

func routedEvent(dst int64, vn int) *events.RoutedEvent {
	req := events.RequestBuilder{}.WithDst(dst).WithVN(vn).WithSizeInBits(64).Build()
	return events.RoutedEventBuilder{}.WithRequest(req).WithFlitSizeBits(64).Build()
}

var _ = Describe("Policy", func() {
	// a single dimension of 4 routers, one endpoint per router, this
	// router at position 0
	It("hops toward the destination's location under DOR", func() {
		p := hyperx.Builder{}.
			WithRouterID(0).
			WithShape([]int{4}).
			WithLocalPorts(1).
			WithAlgorithm(hyperx.DOR).
			Build()

		ev := p.ProcessInput(routedEvent(2, 0))
		p.Route(0, 0, ev)

		Expect(ev.NextPort).To(Equal(1))
	})

	It("delivers locally once the location matches under DOR", func() {
		p := hyperx.Builder{}.
			WithRouterID(0).
			WithShape([]int{4}).
			WithLocalPorts(1).
			WithAlgorithm(hyperx.DOR).
			Build()

		ev := p.ProcessInput(routedEvent(0, 0))
		p.Route(0, 0, ev)

		Expect(ev.NextPort).To(Equal(3)) // local port start
	})

	It("doubles VCs for VALIANT and VDAL, not the other algorithms", func() {
		dor := hyperx.Builder{}.WithRouterID(0).WithShape([]int{4}).WithLocalPorts(1).WithAlgorithm(hyperx.DOR).Build()
		val := hyperx.Builder{}.WithRouterID(0).WithShape([]int{4}).WithLocalPorts(1).WithAlgorithm(hyperx.VALIANT).Build()

		Expect(dor.ComputeNumVCs(2)).To(Equal(2))
		Expect(val.ComputeNumVCs(2)).To(Equal(4))
	})

	It("classifies local and router-to-router ports", func() {
		p := hyperx.Builder{}.WithRouterID(0).WithShape([]int{4}).WithLocalPorts(1).Build()

		Expect(p.PortState(0)).To(Equal(topology.RouterToRouter))
		Expect(p.PortState(3)).To(Equal(topology.RouterToNIC))
		Expect(p.PortState(4)).To(Equal(topology.Unconnected))
	})

	It("MINA prefers the unaligned dimension with the most downstream credit", func() {
		p := hyperx.Builder{}.
			WithRouterID(0).
			WithShape([]int{4, 4}).
			WithLocalPorts(1).
			WithAlgorithm(hyperx.MINA).
			Build()

		// router 0 is at [0,0]; destination router 5 is at [1,1]: both
		// dims are unaligned, giving MINA a genuine choice.
		ev := p.ProcessInput(routedEvent(5, 0))

		credits := make([]int, 12)
		// dim0's hop port is 0, dim1's hop port is 3 (after dim0's 3 peer slots)
		credits[0] = 1
		credits[3] = 100
		p.SetOutputBufferCreditArray(credits, 1)

		p.Route(0, 0, ev)

		Expect(ev.NextPort).To(Equal(3))
	})

	It("panics when built with no shape", func() {
		Expect(func() {
			hyperx.Builder{}.Build()
		}).To(Panic())
	})
})
