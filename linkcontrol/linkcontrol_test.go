package linkcontrol

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sst-elements/merlin/events"
	"github.com/sst-elements/merlin/sim"
)

func newComp() *Comp {
	engine := sim.NewSerialEngine()

	return Builder{}.
		WithEngine(engine).
		WithFreq(1 * sim.GHz).
		WithName("LC").
		WithEndpointID(0).
		WithRequestedVNs(2).
		WithFlitSizeBits(8).
		WithBufferSize(4).
		Build()
}

// fakeRouter answers the init handshake and otherwise just accumulates
// whatever arrives on its port, standing in for a router.Comp without
// pulling in the whole router package.
type fakeRouter struct {
	*sim.ComponentBase

	port     sim.Port
	peer     sim.RemotePort
	vcsPerVN int
	received []sim.Msg
}

func newFakeRouter(vcsPerVN int) *fakeRouter {
	r := &fakeRouter{
		ComponentBase: sim.NewComponentBase("Router"),
		vcsPerVN:      vcsPerVN,
	}
	r.port = sim.NewPort(r, 4, 4, "Router.Port")
	r.AddPort("Port", r.port)

	return r
}

func (r *fakeRouter) Handle(_ sim.Event) error { return nil }

func (r *fakeRouter) NotifyPortFree(_ sim.Port) {}

func (r *fakeRouter) NotifyRecv(_ sim.Port) {
	for {
		msg := r.port.PeekIncoming()
		if msg == nil {
			return
		}

		ie, ok := msg.(*events.InitEvent)
		if !ok || ie.Command != events.RequestVNs {
			return
		}

		r.port.RetrieveIncoming()
		r.peer = ie.Meta().Src

		r.port.Send(events.NewInitEvent(r.port.AsRemote(), r.peer, events.SetVCs, r.vcsPerVN))
		r.port.Send(events.NewInitEvent(r.port.AsRemote(), r.peer, events.ReportFlitSize, 8))
		r.port.Send(events.NewInitEvent(r.port.AsRemote(), r.peer, events.ReportID, 1))
	}
}

var _ = Describe("Comp", func() {
	It("rejects sending on an out-of-range VN instead of panicking", func() {
		c := newComp()
		req := events.RequestBuilder{}.WithDst(1).WithSizeInBits(8).Build()

		Expect(c.Send(req, 5)).To(BeFalse())
		Expect(c.Send(req, -1)).To(BeFalse())
	})

	It("reports no space to send on an out-of-range VN", func() {
		c := newComp()

		Expect(c.SpaceToSend(5, 8)).To(BeFalse())
	})

	It("rejects a send once the per-VN output buffer is full, without mutating state", func() {
		c := newComp() // flit size 8 bits, buffer depth 4 flits

		for i := 0; i < 4; i++ {
			req := events.RequestBuilder{}.WithDst(1).WithSizeInBits(8).Build()
			Expect(c.Send(req, 0)).To(BeTrue())
		}

		Expect(c.SpaceToSend(0, 8)).To(BeFalse())

		overflow := events.RequestBuilder{}.WithDst(1).WithSizeInBits(8).Build()
		Expect(c.Send(overflow, 0)).To(BeFalse())

		Expect(c.outQueues[0].Len()).To(Equal(4))
		Expect(c.outBufFlits[0]).To(Equal(4))
	})

	It("reports no space once a request would overflow the per-VN buffer", func() {
		c := newComp()
		req := events.RequestBuilder{}.WithDst(1).WithSizeInBits(32).Build() // 4 flits

		Expect(c.SpaceToSend(0, 8)).To(BeTrue())
		c.Send(req, 0)
		Expect(c.SpaceToSend(0, 8)).To(BeFalse())
	})

	It("has nothing to receive before any request arrives", func() {
		c := newComp()

		Expect(c.RequestToReceive(0)).To(BeFalse())
		Expect(c.Recv(0)).To(BeNil())
	})

	It("reports its own endpoint id and link bandwidth", func() {
		engine := sim.NewSerialEngine()
		c := Builder{}.
			WithEngine(engine).
			WithFreq(1 * sim.GHz).
			WithEndpointID(7).
			WithRequestedVNs(1).
			WithFlitSizeBits(8).
			WithLinkBW(1e9).
			Build()

		Expect(c.GetEndpointID()).To(Equal(int64(7)))
		Expect(c.GetLinkBW()).To(Equal(1e9))
		Expect(c.IsNetworkInitialized()).To(BeFalse())
	})

	It("selects a deterministic VC stable across repeated calls for the same request", func() {
		c := newComp()
		c.vcsPerVN = 2
		c.cbAlg = Deterministic

		req := events.RequestBuilder{}.WithSrc(3).WithDst(9).WithSizeInBits(8).Build()
		c.outQueues[0].PushBack(req)

		first := c.selectVC(0)
		second := c.selectVC(0)

		Expect(first).To(Equal(second))
		Expect(first).To(BeNumerically(">=", 0))
		Expect(first).To(BeNumerically("<", 2))
	})

	It("rotates VCs round-robin every cbFactor sends", func() {
		c := newComp()
		c.vcsPerVN = 2
		c.cbAlg = RoundRobin
		c.cbFactor = 1

		req := events.RequestBuilder{}.WithSrc(3).WithDst(9).WithSizeInBits(8).Build()
		c.outQueues[1].PushBack(req)

		base := 1 * c.vcsPerVN
		Expect(c.selectVC(1)).To(Equal(base + 0))
		Expect(c.selectVC(1)).To(Equal(base + 1))
		Expect(c.selectVC(1)).To(Equal(base + 0))
	})

	It("completes the init handshake against a router that answers RequestVNs", func() {
		engine := sim.NewSerialEngine()
		router := newFakeRouter(2)

		c := Builder{}.
			WithEngine(engine).
			WithFreq(1 * sim.GHz).
			WithName("LC").
			WithEndpointID(0).
			WithRequestedVNs(2).
			WithFlitSizeBits(8).
			WithBufferSize(4).
			WithRemotePortName(router.port.AsRemote()).
			Build()

		conn := sim.NewDirectConnection("Conn", engine, 1*sim.GHz)
		conn.PlugIn(c.rtrPort)
		conn.PlugIn(router.port)

		c.TickNow()

		Expect(engine.Run()).To(Succeed())

		Expect(c.IsNetworkInitialized()).To(BeTrue())
		Expect(c.vcsPerVN).To(Equal(2))
		Expect(c.totalVNs).To(Equal(2))
	})

	It("serializes a packet over a number of ticks proportional to its flits and linkBW", func() {
		engine := sim.NewSerialEngine()

		c := Builder{}.
			WithEngine(engine).
			WithFreq(1 * sim.Hz).
			WithName("LC").
			WithEndpointID(0).
			WithRequestedVNs(1).
			WithFlitSizeBits(8).
			WithLinkBW(8). // 1 flit/sec at 8 bits/flit
			WithBufferSize(16).
			WithRemotePortName("Router.Port").
			Build()

		c.networkInitialized = true
		c.vcsPerVN = 1
		c.rtrCredits = []int{100}
		c.inRetCredits = []int{0}

		req := events.RequestBuilder{}.WithDst(1).WithSizeInBits(32).Build() // 4 flits
		Expect(c.Send(req, 0)).To(BeTrue())

		for i := 0; i < 3; i++ {
			progress := c.sendToNetwork()
			Expect(progress).To(BeTrue())
			Expect(c.outQueues[0].Len()).To(Equal(1), "packet should still be in flight on tick %d", i+1)
		}

		Expect(c.sendToNetwork()).To(BeTrue())
		Expect(c.outQueues[0].Len()).To(Equal(0))
		Expect(c.outBufFlits[0]).To(Equal(0))
	})
})
