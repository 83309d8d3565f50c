package mesh_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sst-elements/merlin/events"
	"github.com/sst-elements/merlin/topology"
	"github.com/sst-elements/merlin/topology/mesh"
)

func routedEvent(dst int64) *events.RoutedEvent {
	req := events.RequestBuilder{}.WithDst(dst).WithVN(0).WithSizeInBits(64).Build()
	return events.RoutedEventBuilder{}.WithRequest(req).WithFlitSizeBits(64).Build()
}

var _ = Describe("Policy", func() {
	// a 2x2 mesh, one endpoint per router, router 0 at location [0,0]
	var p *mesh.Policy

	BeforeEach(func() {
		p = mesh.Builder{}.
			WithRouterID(0).
			WithShape([]int{2, 2}).
			WithLocalPorts(1).
			Build()
	})

	It("advances the lowest unaligned dimension toward the destination", func() {
		ev := p.ProcessInput(routedEvent(3)) // router 3 is at [1,1]
		p.Route(0, 0, ev)
		Expect(ev.NextPort).To(Equal(0)) // dim-0 positive direction, width 1
	})

	It("delivers locally once every dimension matches", func() {
		ev := p.ProcessInput(routedEvent(0)) // router 0 is this router
		p.Route(0, 0, ev)
		Expect(ev.NextPort).To(Equal(4)) // local port start, after 2 dims x 2 directions
	})

	It("classifies router-to-router and router-to-NIC ports", func() {
		Expect(p.PortState(0)).To(Equal(topology.RouterToRouter))
		Expect(p.PortState(4)).To(Equal(topology.RouterToNIC))
		Expect(p.PortState(5)).To(Equal(topology.Unconnected))
	})

	It("reports the endpoint reachable through a local port", func() {
		Expect(p.EndpointID(4)).To(Equal(0))
		Expect(p.EndpointID(0)).To(Equal(-1))
	})

	It("panics when built with no shape", func() {
		Expect(func() {
			mesh.Builder{}.Build()
		}).To(Panic())
	})
})
