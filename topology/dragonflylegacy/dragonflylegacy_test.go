package dragonflylegacy_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sst-elements/merlin/events"
	"github.com/sst-elements/merlin/topology"
	"github.com/sst-elements/merlin/topology/dragonflylegacy"
)

func routedEvent(dst int64) *events.RoutedEvent {
	req := events.RequestBuilder{}.WithDst(dst).WithVN(0).WithSizeInBits(64).Build()
	return events.RoutedEventBuilder{}.WithRequest(req).WithFlitSizeBits(64).Build()
}

// 3 groups, 2 routers per group, 2 hosts per router, 1 global link per
// group-pair, radix 4 (2 host + 1 intra + 1 global), this router at
// group 0, router 0.
func newPolicy(algo dragonflylegacy.Algorithm, numGroups int) *dragonflylegacy.Policy {
	params := dragonflylegacy.Params{
		HostsPerRouter:   2,
		RoutersPerGroup:  2,
		Radix:            4,
		IntergroupPerRtr: 1,
		NumGroups:        numGroups,
	}

	return dragonflylegacy.Builder{}.
		WithParams(params).
		WithPosition(0, 0).
		WithAlgorithm(algo).
		Build()
}

var _ = Describe("Policy", func() {
	It("routes minimally out the global port reaching a reachable group", func() {
		p := newPolicy(dragonflylegacy.Minimal, 3)

		ev := p.ProcessInput(routedEvent(4)) // group1, router0, host0
		p.Route(0, 0, ev)

		Expect(ev.NextPort).To(Equal(3))
	})

	It("routes within the group toward the router carrying the global link", func() {
		p := newPolicy(dragonflylegacy.Minimal, 3)

		ev := p.ProcessInput(routedEvent(8)) // group2, router0, host0
		p.Route(0, 0, ev)

		Expect(ev.NextPort).To(Equal(2))
	})

	It("routes within the group to the router holding the destination host", func() {
		p := newPolicy(dragonflylegacy.Minimal, 3)

		ev := p.ProcessInput(routedEvent(2)) // group0, router1, host0
		p.Route(0, 0, ev)

		Expect(ev.NextPort).To(Equal(2))
	})

	It("delivers locally once group and router match", func() {
		p := newPolicy(dragonflylegacy.Minimal, 3)

		ev := p.ProcessInput(routedEvent(1)) // group0, router0, host1
		p.Route(0, 0, ev)

		Expect(ev.NextPort).To(Equal(1))
	})

	It("degrades Valiant to minimal when there are only 2 groups", func() {
		p := newPolicy(dragonflylegacy.Valiant, 2)

		ev := p.ProcessInput(routedEvent(4)) // group1, router0, host0
		dest := ev.Ext.(*dragonflylegacy.Addr)

		// had Valiant actually run, MidGroup would be a random group
		// distinct from both endpoints; degraded to minimal it always
		// equals Group.
		Expect(dest.MidGroup).To(Equal(dest.Group))
	})

	It("computes 3 VCs per VN", func() {
		p := newPolicy(dragonflylegacy.Minimal, 3)
		Expect(p.ComputeNumVCs(2)).To(Equal(6))
	})

	It("classifies host and router-to-router ports", func() {
		p := newPolicy(dragonflylegacy.Minimal, 3)

		Expect(p.PortState(0)).To(Equal(topology.RouterToNIC))
		Expect(p.PortState(2)).To(Equal(topology.RouterToRouter))
		Expect(p.PortState(4)).To(Equal(topology.Unconnected))
	})

	It("reports the endpoint reachable through a host port", func() {
		p := newPolicy(dragonflylegacy.Minimal, 3)

		Expect(p.EndpointID(0)).To(Equal(0))
		Expect(p.EndpointID(2)).To(Equal(-1))
	})

	It("fans a broadcast arriving over a global link out to local ports only", func() {
		p := newPolicy(dragonflylegacy.Minimal, 3)

		req := events.RequestBuilder{}.WithDst(int64(events.InitBroadcastAddr)).WithVN(0).WithSizeInBits(64).Build()
		rev := events.RoutedEventBuilder{}.WithRequest(req).WithFlitSizeBits(64).Build()
		ev := p.ProcessInitDataInput(rev)

		var outPorts []int
		p.RouteInitData(3, ev, &outPorts)

		Expect(outPorts).To(Equal([]int{0, 1, 2}))
	})

	It("fans a broadcast arriving from a group-mate to hosts, plus onward when it originated here", func() {
		p := newPolicy(dragonflylegacy.Minimal, 3)

		req := events.RequestBuilder{}.WithDst(int64(events.InitBroadcastAddr)).WithVN(0).WithSizeInBits(64).WithPayload(0).Build()
		rev := events.RoutedEventBuilder{}.WithRequest(req).WithFlitSizeBits(64).Build()
		ev := p.ProcessInitDataInput(rev)

		var outPorts []int
		p.RouteInitData(2, ev, &outPorts)

		Expect(outPorts).To(Equal([]int{0, 1, 3}))
	})

	It("fans a broadcast arriving from a group-mate to hosts only when it originated elsewhere", func() {
		p := newPolicy(dragonflylegacy.Minimal, 3)

		req := events.RequestBuilder{}.WithDst(int64(events.InitBroadcastAddr)).WithVN(0).WithSizeInBits(64).WithPayload(1).Build()
		rev := events.RoutedEventBuilder{}.WithRequest(req).WithFlitSizeBits(64).Build()
		ev := p.ProcessInitDataInput(rev)

		var outPorts []int
		p.RouteInitData(2, ev, &outPorts)

		Expect(outPorts).To(Equal([]int{0, 1}))
	})

	It("fans a broadcast arriving from a host out to everything else", func() {
		p := newPolicy(dragonflylegacy.Minimal, 3)

		req := events.RequestBuilder{}.WithDst(int64(events.InitBroadcastAddr)).WithVN(0).WithSizeInBits(64).Build()
		rev := events.RoutedEventBuilder{}.WithRequest(req).WithFlitSizeBits(64).Build()
		ev := p.ProcessInitDataInput(rev)

		var outPorts []int
		p.RouteInitData(0, ev, &outPorts)

		Expect(outPorts).To(Equal([]int{1, 2, 3}))
	})
})
