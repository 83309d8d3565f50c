package dragonfly_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sst-elements/merlin/events"
	"github.com/sst-elements/merlin/topology"
	"github.com/sst-elements/merlin/topology/dragonfly"
)

func routedEvent(dst int64) *events.RoutedEvent {
	req := events.RequestBuilder{}.WithDst(dst).WithVN(0).WithSizeInBits(64).Build()
	return events.RoutedEventBuilder{}.WithRequest(req).WithFlitSizeBits(64).Build()
}

// 2 groups of 2 routers, 2 hosts per router, 1 global link per group-pair,
// router 0 of group 0 carrying the only link out to group 1.
func newPolicy() *dragonfly.Policy {
	params := dragonfly.Params{
		HostsPerRouter:   2,
		RoutersPerGroup:  2,
		IntergroupPerRtr: 1,
		IntergroupLinks:  1,
		NumGroups:        2,
	}

	rtg := dragonfly.NewRouteToGroup(2, 1)
	rtg.Set(1, 0, dragonfly.RouterPortPair{Router: 0, Port: 3})

	return dragonfly.Builder{}.
		WithParams(params).
		WithRadix(4).
		WithPosition(0, 0).
		WithRouteToGroup(rtg).
		Build()
}

var _ = Describe("Policy", func() {
	It("routes minimally out the global port reaching the destination group", func() {
		p := newPolicy()

		ev := p.ProcessInput(routedEvent(4)) // group1, router0, host0
		p.Route(0, 0, ev)

		Expect(ev.NextPort).To(Equal(3))
	})

	It("routes minimally within the group to the router holding the host", func() {
		p := newPolicy()

		ev := p.ProcessInput(routedEvent(2)) // group0, router1, host0
		p.Route(0, 0, ev)

		Expect(ev.NextPort).To(Equal(2)) // intra-group port toward router1
	})

	It("delivers locally once the router matches", func() {
		p := newPolicy()

		ev := p.ProcessInput(routedEvent(1)) // group0, router0, host1
		p.Route(0, 0, ev)

		Expect(ev.NextPort).To(Equal(1))
	})

	It("computes 3 VCs per VN", func() {
		p := newPolicy()
		Expect(p.ComputeNumVCs(2)).To(Equal(6))
	})

	It("classifies host and router-to-router ports", func() {
		p := newPolicy()

		Expect(p.PortState(0)).To(Equal(topology.RouterToNIC))
		Expect(p.PortState(2)).To(Equal(topology.RouterToRouter))
		Expect(p.PortState(4)).To(Equal(topology.Unconnected))
	})

	It("reports the endpoint reachable through a host port", func() {
		p := newPolicy()

		Expect(p.EndpointID(0)).To(Equal(0))
		Expect(p.EndpointID(2)).To(Equal(-1))
	})

	It("panics when built with no route-to-group table", func() {
		Expect(func() {
			dragonfly.Builder{}.Build()
		}).To(Panic())
	})
})
