package router

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sst-elements/merlin/events"
	"github.com/sst-elements/merlin/sim"
	"github.com/sst-elements/merlin/topology/single"
)

func newComp() *Comp {
	policy := single.Builder{}.WithNumPorts(2).Build()

	return Builder{}.
		WithEngine(sim.NewSerialEngine()).
		WithFreq(1 * sim.GHz).
		WithPolicy(policy).
		WithNumPorts(2).
		WithRequestedVNs(1).
		WithFlitSizeBits(8).
		WithBufferDepth(4).
		Build()
}

var _ = Describe("Comp", func() {
	It("answers a VN request with this router's VC count", func() {
		c := newComp()

		req := events.NewInitEvent("peer", c.PortName(0), events.RequestVNs, 1)
		c.ports[0].port.Deliver(req)

		c.startProcessing()

		reply := c.ports[0].port.PeekOutgoing()
		Expect(reply).NotTo(BeNil())

		ie, ok := reply.(*events.InitEvent)
		Expect(ok).To(BeTrue())
		Expect(ie.Command).To(Equal(events.SetVCs))
		Expect(ie.IntValue).To(Equal(1))
	})

	It("answers a VN request with the full three-message handshake in order", func() {
		policy := single.Builder{}.WithNumPorts(2).Build()
		c := Builder{}.
			WithEngine(sim.NewSerialEngine()).
			WithFreq(1 * sim.GHz).
			WithPolicy(policy).
			WithNumPorts(2).
			WithRequestedVNs(1).
			WithFlitSizeBits(8).
			WithBufferDepth(4).
			WithRouterID(42).
			Build()

		req := events.NewInitEvent("peer", c.PortName(0), events.RequestVNs, 1)
		c.ports[0].port.Deliver(req)

		c.startProcessing()

		port := c.ports[0].port

		first := port.RetrieveOutgoing().(*events.InitEvent)
		Expect(first.Command).To(Equal(events.SetVCs))

		second := port.RetrieveOutgoing().(*events.InitEvent)
		Expect(second.Command).To(Equal(events.ReportFlitSize))
		Expect(second.IntValue).To(Equal(8))

		third := port.RetrieveOutgoing().(*events.InitEvent)
		Expect(third.Command).To(Equal(events.ReportID))
		Expect(third.IntValue).To(Equal(42))

		Expect(port.PeekOutgoing()).To(BeNil())
	})

	It("applies incoming credit to the port's credit model", func() {
		c := newComp()

		credit := events.NewCreditEvent("peer", c.PortName(0), 0, 3)
		c.ports[0].port.Deliver(credit)

		c.startProcessing()

		Expect(c.ports[0].outputCredits[0]).To(Equal(4 + 3))
	})

	It("routes an arriving packet to the destination port and returns credit upstream", func() {
		c := newComp()
		c.SetRemoteName(1, "Endpoint1")

		req := events.RequestBuilder{}.WithDst(1).WithVN(0).WithSizeInBits(8).Build()
		routed := events.RoutedEventBuilder{}.
			WithSrc("LC0").
			WithDst(c.PortName(0)).
			WithRequest(req).
			WithFlitSizeBits(8).
			Build()

		c.ports[0].port.Deliver(routed)

		c.startProcessing()
		c.route()
		c.sendOut()

		out := c.ports[1].port.PeekOutgoing()
		Expect(out).NotTo(BeNil())

		outRouted, ok := out.(*events.RoutedEvent)
		Expect(ok).To(BeTrue())
		Expect(outRouted.Meta().Dst).To(Equal(sim.RemotePort("Endpoint1")))
		Expect(outRouted.Request.Dst).To(Equal(int64(1)))

		credit := c.ports[0].port.PeekOutgoing()
		Expect(credit).NotTo(BeNil())

		creditEv, ok := credit.(*events.CreditEvent)
		Expect(ok).To(BeTrue())
		Expect(creditEv.VC).To(Equal(0))
		Expect(creditEv.Credits).To(Equal(1))
		Expect(creditEv.Meta().Dst).To(Equal(sim.RemotePort("LC0")))
	})

	It("drives routing entirely through the injected topology.Policy", func() {
		ctrl := gomock.NewController(GinkgoT())
		policy := NewMockPolicy(ctrl)
		policy.EXPECT().ComputeNumVCs(1).Return(1)

		c := Builder{}.
			WithEngine(sim.NewSerialEngine()).
			WithFreq(1 * sim.GHz).
			WithPolicy(policy).
			WithNumPorts(2).
			WithRequestedVNs(1).
			WithFlitSizeBits(8).
			WithBufferDepth(4).
			Build()

		req := events.RequestBuilder{}.WithDst(1).WithVN(0).WithSizeInBits(8).Build()
		routed := events.RoutedEventBuilder{}.
			WithSrc("LC0").
			WithDst(c.PortName(0)).
			WithRequest(req).
			WithFlitSizeBits(8).
			Build()

		c.ports[0].port.Deliver(routed)

		ie := &events.InternalEvent{Encapsulated: routed, VC: 0}
		policy.EXPECT().ProcessInput(routed).Return(ie)
		policy.EXPECT().Route(0, 0, ie).DoAndReturn(func(inPort, inVC int, ev *events.InternalEvent) {
			ev.NextPort = 1
		})

		Expect(c.startProcessing()).To(BeTrue())
		Expect(c.route()).To(BeTrue())

		Expect(c.ports[1].outputCredits[0]).To(Equal(3))
	})

	It("panics when built with no policy", func() {
		Expect(func() {
			Builder{}.WithNumPorts(2).Build()
		}).To(Panic())
	})

	It("panics when built with a non-positive port count", func() {
		policy := single.Builder{}.WithNumPorts(2).Build()
		Expect(func() {
			Builder{}.WithPolicy(policy).Build()
		}).To(Panic())
	})
})
