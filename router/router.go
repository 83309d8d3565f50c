// Package router implements the switching element every topology sits
// behind (spec.md §4.4): per-port, per-VC input and output queues, a
// topology.Policy consulted on every arrival, and the init-phase
// handshake that negotiates VN/VC counts with attached link controllers.
// Grounded on the Tick-stage shape of
// noc/networking/switching/switches/switch.go, with the fixed routing
// table replaced by a topology.Policy.
package router

import (
	"container/list"
	"log"

	"github.com/sst-elements/merlin/events"
	"github.com/sst-elements/merlin/sim"
	"github.com/sst-elements/merlin/topology"
)

// inflight is router-local bookkeeping for a packet in transit: the
// wrapped event, where it came from, and the remote port name to send
// credit back to, needed once the packet is forwarded.
type inflight struct {
	ev           *events.InternalEvent
	inPort, inVC int
	replyTo      sim.RemotePort
	routed       bool
}

// portComplex holds everything the router tracks for one port: the
// physical sim.Port, the name of the remote port wired to its far end
// (topology wiring, filled in by SetRemoteName after Build), its per-VC
// input queue (events awaiting a routing decision), per-VC output queue
// (events awaiting send), and the credits this router believes are
// available in the downstream neighbor's input buffer for each VC.
type portComplex struct {
	port       sim.Port
	remoteName sim.RemotePort

	inputQueues  []list.List
	outputQueues []list.List

	outputCredits []int

	initStage initStage
}

type initStage int

const (
	initIdle initStage = iota
	initDone
)

// Comp is a router: a TickingComponent owning one portComplex per port
// and a topology.Policy that decides routing.
type Comp struct {
	*sim.TickingComponent

	policy topology.Policy

	id           int64
	numPorts     int
	numVCs       int
	reqVNs       int
	flitSizeBits int
	bufDepth     int

	ports []*portComplex

	stats StatRegistry
}

// StatRegistry names the counters a Comp reports through a
// sim.StatRegistry.
type StatRegistry struct {
	PacketsRouted sim.Counter
	OutputStalls  sim.Counter
}

// Builder builds a Comp.
type Builder struct {
	engine       sim.Engine
	freq         sim.Freq
	name         string
	id           int64
	policy       topology.Policy
	numPorts     int
	reqVNs       int
	flitSizeBits int
	bufDepth     int
	stats        sim.StatRegistry
}

// WithEngine sets the discrete-event engine driving the component.
func (b Builder) WithEngine(e sim.Engine) Builder {
	b.engine = e
	return b
}

// WithFreq sets the tick frequency.
func (b Builder) WithFreq(f sim.Freq) Builder {
	b.freq = f
	return b
}

// WithName sets the component name.
func (b Builder) WithName(name string) Builder {
	b.name = name
	return b
}

// WithRouterID sets the id this router reports to attached link
// controllers during the init-phase handshake's REPORT_ID step.
func (b Builder) WithRouterID(id int64) Builder {
	b.id = id
	return b
}

// WithPolicy sets the topology.Policy deciding routes. Required.
func (b Builder) WithPolicy(p topology.Policy) Builder {
	b.policy = p
	return b
}

// WithNumPorts sets the number of ports on the router.
func (b Builder) WithNumPorts(n int) Builder {
	b.numPorts = n
	return b
}

// WithRequestedVNs sets the number of virtual networks attached link
// controllers may request; the policy's ComputeNumVCs turns this into
// the router's physical VC count.
func (b Builder) WithRequestedVNs(vns int) Builder {
	b.reqVNs = vns
	return b
}

// WithFlitSizeBits sets the flit width used for credit accounting.
func (b Builder) WithFlitSizeBits(bits int) Builder {
	b.flitSizeBits = bits
	return b
}

// WithBufferDepth sets the per-VC input/output queue depth in flits.
func (b Builder) WithBufferDepth(flits int) Builder {
	b.bufDepth = flits
	return b
}

// WithStats sets the registry statistics are recorded into.
func (b Builder) WithStats(r sim.StatRegistry) Builder {
	b.stats = r
	return b
}

// Build creates the Comp and its ports, named "Port0".."PortN-1".
func (b Builder) Build() *Comp {
	if b.policy == nil {
		panic("router: policy is required")
	}
	if b.numPorts <= 0 {
		panic("router: num_ports must be positive")
	}
	if b.reqVNs <= 0 {
		b.reqVNs = 1
	}
	if b.bufDepth <= 0 {
		b.bufDepth = 16
	}

	numVCs := b.policy.ComputeNumVCs(b.reqVNs)

	name := b.name
	if name == "" {
		name = "Router"
	}

	c := &Comp{
		policy:       b.policy,
		id:           b.id,
		numPorts:     b.numPorts,
		numVCs:       numVCs,
		reqVNs:       b.reqVNs,
		flitSizeBits: b.flitSizeBits,
		bufDepth:     b.bufDepth,
		ports:        make([]*portComplex, b.numPorts),
	}

	if b.stats != nil {
		c.stats = StatRegistry{
			PacketsRouted: b.stats.GetCounter(name + ".PacketsRouted"),
			OutputStalls:  b.stats.GetCounter(name + ".OutputStalls"),
		}
	}

	c.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, c)

	creditArray := make([]int, b.numPorts*numVCs)
	queueLenArray := make([]int, b.numPorts*numVCs)

	for i := 0; i < b.numPorts; i++ {
		pc := &portComplex{
			inputQueues:   make([]list.List, numVCs),
			outputQueues:  make([]list.List, numVCs),
			outputCredits: creditArray[i*numVCs : (i+1)*numVCs],
		}

		for vc := 0; vc < numVCs; vc++ {
			pc.outputCredits[vc] = b.bufDepth
			creditArray[i*numVCs+vc] = b.bufDepth
		}

		portName := "Port" + itoa(i)
		pc.port = sim.NewPort(c, b.bufDepth, b.bufDepth, name+"."+portName)
		c.AddPort(portName, pc.port)

		c.ports[i] = pc
	}

	if ci, ok := b.policy.(topology.CreditInspector); ok {
		ci.SetOutputBufferCreditArray(creditArray, numVCs)
	}
	if qi, ok := b.policy.(topology.QueueInspector); ok {
		qi.SetOutputQueueLengthsArray(queueLenArray, numVCs)
	}

	return c
}

// SetRemoteName records the name of the port wired to the far end of
// one of this router's ports, so packets forwarded out that port carry
// the right destination address. Topology wiring code calls this once
// both endpoints of a link exist.
func (c *Comp) SetRemoteName(portIdx int, name sim.RemotePort) {
	c.ports[portIdx].remoteName = name
}

// PortName returns the full name of one of this router's ports, for
// wiring code on the other end of a link to address packets to.
func (c *Comp) PortName(portIdx int) sim.RemotePort {
	return c.ports[portIdx].port.AsRemote()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}

	neg := n < 0
	if neg {
		n = -n
	}

	var buf [20]byte
	i := len(buf)

	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}

	if neg {
		i--
		buf[i] = '-'
	}

	return string(buf[i:])
}

// Tick runs one cycle: drain every port's incoming queue into a routing
// decision, forward routed packets into their output queue when the
// downstream neighbor has credit, and send whatever is queued for
// output. Grounded on switch.go's sendOut/forward/route/startProcessing
// stage sequence.
func (c *Comp) Tick() bool {
	progress := false

	progress = c.startProcessing() || progress
	progress = c.route() || progress
	progress = c.sendOut() || progress

	return progress
}

// startProcessing consumes every port's incoming message: init-phase
// commands are answered directly, credit returns update the local
// credit model, and routed packets are handed to the policy and queued
// for routing.
func (c *Comp) startProcessing() bool {
	progress := false

	for portIdx, pc := range c.ports {
		for {
			msg := pc.port.PeekIncoming()
			if msg == nil {
				break
			}

			switch ev := msg.(type) {
			case *events.InitEvent:
				pc.port.RetrieveIncoming()
				c.handleInit(portIdx, pc, ev)
				progress = true

			case *events.CreditEvent:
				pc.port.RetrieveIncoming()
				pc.outputCredits[ev.VC] += ev.Credits
				progress = true

			case *events.RoutedEvent:
				pc.port.RetrieveIncoming()
				ie := c.policy.ProcessInput(ev)
				in := &inflight{ev: ie, inPort: portIdx, inVC: ie.VC, replyTo: ev.Meta().Src}
				pc.inputQueues[ie.VC].PushBack(in)
				progress = true

			default:
				return progress
			}
		}
	}

	return progress
}

// handleInit answers the init-phase handshake: on REQUEST_VNS, reply in
// order with SET_VCS (this port's per-VN VC count), REPORT_FLIT_SIZE
// (the flit width credits are counted in), and REPORT_ID (this router's
// id), matching spec.md §4.1's fixed three-message router reply.
func (c *Comp) handleInit(portIdx int, pc *portComplex, ev *events.InitEvent) {
	switch ev.Command {
	case events.RequestVNs:
		vcsPerVN := c.numVCs / c.reqVNs

		setVCs := events.NewInitEvent(pc.port.AsRemote(), ev.Meta().Src, events.SetVCs, vcsPerVN)
		_ = pc.port.Send(setVCs)

		flitSize := events.NewInitEvent(pc.port.AsRemote(), ev.Meta().Src, events.ReportFlitSize, c.flitSizeBits)
		_ = pc.port.Send(flitSize)

		id := events.NewInitEvent(pc.port.AsRemote(), ev.Meta().Src, events.ReportID, int(c.id))
		_ = pc.port.Send(id)

		pc.initStage = initDone

	default:
		log.Printf("%s: unhandled init command %s on port %d", c.Name(), ev.Command, portIdx)
	}
}

// route walks every port's input queues, asking the policy for a routing
// decision (Route on a packet's first attempt, Reroute on every later
// cycle it is still held) and moving the packet into its destination
// port's output queue when the downstream neighbor has credit for it.
func (c *Comp) route() bool {
	progress := false

	for _, pc := range c.ports {
		for vc := 0; vc < c.numVCs; vc++ {
			e := pc.inputQueues[vc].Front()
			if e == nil {
				continue
			}

			in := e.Value.(*inflight)
			if in.routed {
				c.policy.Reroute(in.inPort, in.inVC, in.ev)
			} else {
				c.policy.Route(in.inPort, in.inVC, in.ev)
				in.routed = true
			}

			outPc := c.ports[in.ev.NextPort]
			size := in.ev.Encapsulated.SizeInFlits
			outVC := in.ev.VC

			if outPc.outputCredits[outVC] < size {
				if c.stats.OutputStalls != nil {
					c.stats.OutputStalls.Add(1)
				}

				continue
			}

			pc.inputQueues[vc].Remove(e)
			outPc.outputCredits[outVC] -= size
			outPc.outputQueues[outVC].PushBack(in)

			progress = true
		}
	}

	return progress
}

// sendOut sends at most one packet per port per tick, taken from the
// lowest-numbered VC whose output queue is non-empty, and returns credit
// upstream to whichever input port it arrived on.
func (c *Comp) sendOut() bool {
	progress := false

	for _, pc := range c.ports {
		if !pc.port.CanSend() {
			continue
		}

		for vc := 0; vc < c.numVCs; vc++ {
			e := pc.outputQueues[vc].Front()
			if e == nil {
				continue
			}

			in := e.Value.(*inflight)

			routed := events.RoutedEventBuilder{}.
				WithSrc(pc.port.AsRemote()).
				WithDst(pc.remoteName).
				WithRequest(in.ev.Encapsulated.Request).
				WithInjectionTime(in.ev.Encapsulated.InjectionTime).
				WithFlitSizeBits(c.flitSizeBits).
				Build()

			if pc.port.Send(routed) != nil {
				continue
			}

			pc.outputQueues[vc].Remove(e)

			if c.stats.PacketsRouted != nil {
				c.stats.PacketsRouted.Add(1)
			}

			c.returnCredit(in)

			progress = true

			break
		}
	}

	return progress
}

// returnCredit sends a CreditEvent for the forwarded packet's size in
// flits back through the input port it arrived on.
func (c *Comp) returnCredit(in *inflight) {
	inPc := c.ports[in.inPort]
	size := in.ev.Encapsulated.SizeInFlits

	credit := events.NewCreditEvent(inPc.port.AsRemote(), in.replyTo, in.inVC, size)
	_ = inPc.port.Send(credit)
}
