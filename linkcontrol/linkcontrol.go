// Package linkcontrol implements the endpoint-facing link controller
// (spec.md §4.1): the component an endpoint talks to in order to inject
// and receive packets, hiding virtual-channel checker-boarding,
// credit-based flow control, and the init-phase handshake with the
// attached router. Grounded on original_source/linkControl.h and the
// Tick-stage shape of
// noc/networking/switching/endpoint/endpoint.go.
package linkcontrol

import (
	"container/list"
	"fmt"
	"hash/fnv"
	"log"

	"github.com/sst-elements/merlin/events"
	"github.com/sst-elements/merlin/sim"
)

// CheckerboardAlg selects how an outgoing packet's VC is chosen among the
// VCs assigned to its VN.
type CheckerboardAlg int

// Checker-boarding algorithms (spec.md §4.1, "VC selection").
const (
	Deterministic CheckerboardAlg = iota
	RoundRobin
)

// Interface is the contract an endpoint uses to talk to its link
// controller, independent of whether packets are reordered on top
// (reorderlinkcontrol.Comp implements the same contract by wrapping a
// Comp).
type Interface interface {
	Send(req *events.Request, vn int) bool
	SpaceToSend(vn int, sizeInBits int) bool
	Recv(vn int) *events.Request
	RequestToReceive(vn int) bool

	SetNotifyOnSend(vn int, fn func())
	SetNotifyOnReceive(vn int, fn func())

	IsNetworkInitialized() bool
	GetEndpointID() int64
	GetLinkBW() float64
}

// Comp is an endpoint's link controller: a TickingComponent with one port
// to the attached router and a set of per-VN queues the owning endpoint
// drives through the Interface methods.
type Comp struct {
	*sim.TickingComponent

	id int64

	reqVNs   int
	totalVNs int
	vcsPerVN int
	cbAlg    CheckerboardAlg
	cbFactor int

	flitSizeBits int
	linkBW       float64

	outQueues   []list.List // per VN, pending *events.Request awaiting send
	outVCCurr   []int       // per VN, round-robin VC cursor
	outBufFlits []int       // per VN, flits currently queued for send
	outBufSize  int         // per-VN output buffer capacity, in flits

	rtrCredits   []int // per VC, credits available to send downstream
	inRetCredits []int // per VC, credits owed upstream, batched before return

	recvQueues []list.List // per VN, received *events.Request awaiting RequestToReceive

	notifyOnSend    map[int]func()
	notifyOnReceive map[int]func()

	networkInitialized bool
	initStage           initStage
	rtrID               int64

	outState  outputState
	xmitVN    int
	xmitVC    int
	xmitFlits int     // flits remaining to serialize for the packet in flight
	xmitSent  float64 // fractional flits already sent this packet

	idleStart sim.VTimeInSec
	isIdle    bool

	stats StatRegistry

	rtrPort    sim.Port
	remotePort sim.RemotePort
}

// outputState drives the per-tick output pipeline: a packet occupies the
// port for ceil(flits/xmitFlitsPerTick) ticks before the next one may
// begin, modeling link bandwidth rather than sending a whole packet in
// a single Tick. Grounded on original_source/linkControl.h's output_busy
// accounting.
type outputState int

const (
	outputIdle outputState = iota
	outputWaiting
	outputTransmitting
)

// StatRegistry names the counters and histograms a Comp reports through
// a sim.StatRegistry.
type StatRegistry struct {
	PacketLatency    sim.Histogram
	SendBitCount     sim.Counter
	OutputPortStalls sim.Counter
	IdleTime         sim.Counter
}

type initStage int

const (
	initNotStarted initStage = iota
	initVNsRequested
	initVCsSet
	initFlitSizeSet
	initDone
)

// Builder builds a Comp.
type Builder struct {
	engine       sim.Engine
	freq         sim.Freq
	name         string
	id           int64
	reqVNs       int
	vcsPerVN     int
	cbAlg        CheckerboardAlg
	cbFactor     int
	flitSizeBits int
	linkBW       float64
	bufSize      int
	stats        sim.StatRegistry
	remotePort   sim.RemotePort
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

// WithEndpointID sets the endpoint id this link controller speaks for.
func (b Builder) WithEndpointID(id int64) Builder {
	b.id = id
	return b
}

// WithRequestedVNs sets the number of virtual networks the endpoint uses.
func (b Builder) WithRequestedVNs(vns int) Builder {
	b.reqVNs = vns
	return b
}

// WithCheckerboard sets the VC-selection algorithm and, for RoundRobin,
// the number of packets sent on a VC before rotating to the next.
func (b Builder) WithCheckerboard(alg CheckerboardAlg, factor int) Builder {
	b.cbAlg = alg
	b.cbFactor = factor
	return b
}

// WithFlitSizeBits sets the flit width used to quantize request sizes.
func (b Builder) WithFlitSizeBits(bits int) Builder {
	b.flitSizeBits = bits
	return b
}

// WithLinkBW sets the link bandwidth, in bits per second.
func (b Builder) WithLinkBW(bw float64) Builder {
	b.linkBW = bw
	return b
}

// WithBufferSize sets the per-VN output buffer depth in flits. The same
// number sizes the network port's incoming and outgoing buffers, in
// messages.
func (b Builder) WithBufferSize(flits int) Builder {
	b.bufSize = flits
	return b
}

// WithStats sets the registry statistics are recorded into.
func (b Builder) WithStats(r sim.StatRegistry) Builder {
	b.stats = r
	return b
}

// WithRemotePortName sets the name of the router port this link
// controller's network port will be connected to, used to stamp Dst on
// outgoing events.
func (b Builder) WithRemotePortName(name sim.RemotePort) Builder {
	b.remotePort = name
	return b
}

// Build creates the Comp. The init-phase handshake with the router (VN
// request, VC assignment) runs lazily on the first Tick, once the remote
// port is connected.
func (b Builder) Build() *Comp {
	if b.reqVNs <= 0 {
		panic("linkcontrol: requested VNs must be positive")
	}
	if b.cbAlg == RoundRobin && b.cbFactor <= 0 {
		b.cbFactor = 1
	}
	if b.bufSize <= 0 {
		b.bufSize = 16
	}

	name := b.name
	if name == "" {
		name = fmt.Sprintf("LinkControl[%d]", b.id)
	}

	c := &Comp{
		id:           b.id,
		reqVNs:       b.reqVNs,
		cbAlg:        b.cbAlg,
		cbFactor:     b.cbFactor,
		flitSizeBits: b.flitSizeBits,
		linkBW:       b.linkBW,
		remotePort:   b.remotePort,

		outQueues:   make([]list.List, b.reqVNs),
		outVCCurr:   make([]int, b.reqVNs),
		outBufFlits: make([]int, b.reqVNs),
		outBufSize:  b.bufSize,
		recvQueues:  make([]list.List, b.reqVNs),

		notifyOnSend:    make(map[int]func()),
		notifyOnReceive: make(map[int]func()),
	}

	if b.stats != nil {
		c.stats = StatRegistry{
			PacketLatency:    b.stats.GetHistogram(name + ".PacketLatency"),
			SendBitCount:     b.stats.GetCounter(name + ".SendBitCount"),
			OutputPortStalls: b.stats.GetCounter(name + ".OutputPortStalls"),
			IdleTime:         b.stats.GetCounter(name + ".IdleTime"),
		}
	}

	c.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, c)

	rtrPort := sim.NewPort(c, b.bufSize, b.bufSize, name+".RtrPort")
	c.AddPort("Rtr", rtrPort)
	c.rtrPort = rtrPort

	return c
}

// Send enqueues req on vn for transmission. Returns false, without
// mutating any state, if vn is out of range or the per-VN output
// buffer has no room for the request's flits (spec.md §4.1/§7): the
// endpoint is expected to check SpaceToSend first, but Send enforces
// the same capacity so a skipped check degrades to a rejected send
// rather than unbounded buffering.
func (c *Comp) Send(req *events.Request, vn int) bool {
	c.Lock()
	defer c.Unlock()

	if vn < 0 || vn >= c.reqVNs {
		return false
	}

	flits := c.requestFlits(req)
	if c.outBufFlits[vn]+flits > c.outBufSize {
		return false
	}

	req.VN = vn
	c.outQueues[vn].PushBack(req)
	c.outBufFlits[vn] += flits
	c.TickLater()

	return true
}

// SpaceToSend reports whether vn has room for a request of sizeInBits
// without rejecting the send, so an endpoint can check before building
// the request. Returns false for an out-of-range vn instead of
// panicking.
func (c *Comp) SpaceToSend(vn int, sizeInBits int) bool {
	c.Lock()
	defer c.Unlock()

	if vn < 0 || vn >= c.reqVNs {
		return false
	}

	flits := events.SizeInFlits(sizeInBits, c.effectiveFlitSizeBits())

	return c.outBufFlits[vn]+flits <= c.outBufSize
}

// requestFlits quantizes req's size using whatever flit width is
// currently known; before the init handshake negotiates one, it falls
// back to the builder-configured value so early Sends are still
// accounted for.
func (c *Comp) requestFlits(req *events.Request) int {
	return events.SizeInFlits(req.SizeInBits, c.effectiveFlitSizeBits())
}

func (c *Comp) effectiveFlitSizeBits() int {
	if c.flitSizeBits > 0 {
		return c.flitSizeBits
	}

	return 1
}

// Recv pops the oldest received request on vn, or nil if none is waiting.
func (c *Comp) Recv(vn int) *events.Request {
	c.Lock()
	defer c.Unlock()

	e := c.recvQueues[vn].Front()
	if e == nil {
		return nil
	}

	c.recvQueues[vn].Remove(e)

	return e.Value.(*events.Request)
}

// RequestToReceive reports whether vn has a received request waiting.
func (c *Comp) RequestToReceive(vn int) bool {
	c.Lock()
	defer c.Unlock()

	return c.recvQueues[vn].Len() > 0
}

// SetNotifyOnSend registers a one-shot callback invoked the next time vn
// has room to send again.
func (c *Comp) SetNotifyOnSend(vn int, fn func()) {
	c.Lock()
	defer c.Unlock()

	c.notifyOnSend[vn] = fn
}

// SetNotifyOnReceive registers a one-shot callback invoked the next time
// vn receives a packet.
func (c *Comp) SetNotifyOnReceive(vn int, fn func()) {
	c.Lock()
	defer c.Unlock()

	c.notifyOnReceive[vn] = fn
}

// IsNetworkInitialized reports whether the init-phase handshake with the
// router has completed.
func (c *Comp) IsNetworkInitialized() bool {
	c.Lock()
	defer c.Unlock()

	return c.networkInitialized
}

// GetEndpointID returns the endpoint id this link controller speaks for.
func (c *Comp) GetEndpointID() int64 {
	return c.id
}

// GetLinkBW returns the link bandwidth in bits per second.
func (c *Comp) GetLinkBW() float64 {
	return c.linkBW
}

// PortName returns the full name of this link controller's network port,
// for wiring code on the router's end of the link to address packets to.
func (c *Comp) PortName() sim.RemotePort {
	return c.rtrPort.AsRemote()
}

// Tick runs the init handshake to completion, resends any credit still
// owed upstream, then drains received network events and advances the
// output pipeline's Idle/Transmitting state machine by one tick.
// Grounded on endpoint.go's fixed stage sequence.
func (c *Comp) Tick() bool {
	c.Lock()
	defer c.Unlock()

	progress := false

	if !c.networkInitialized {
		progress = c.tickInit() || progress
	}

	for vc, owed := range c.inRetCredits {
		if owed == 0 {
			continue
		}

		ev := events.NewCreditEvent(c.rtrPort.AsRemote(), c.remotePort, vc, owed)
		if c.rtrPort.Send(ev) == nil {
			c.inRetCredits[vc] = 0
			progress = true
		}
	}

	progress = c.recvFromNetwork() || progress
	progress = c.sendToNetwork() || progress

	c.updateIdle(progress)

	return progress
}

func (c *Comp) tickInit() bool {
	switch c.initStage {
	case initNotStarted:
		ev := events.NewInitEvent(c.rtrPort.AsRemote(), c.remotePort, events.RequestVNs, c.reqVNs)
		if c.rtrPort.Send(ev) == nil {
			c.initStage = initVNsRequested
			return true
		}

		return false
	case initVNsRequested:
		msg := c.rtrPort.PeekIncoming()
		if msg == nil {
			return false
		}

		ie, ok := msg.(*events.InitEvent)
		if !ok || ie.Command != events.SetVCs {
			return false
		}

		c.rtrPort.RetrieveIncoming()
		c.vcsPerVN = ie.IntValue
		c.totalVNs = c.reqVNs

		numVCs := c.reqVNs * c.vcsPerVN
		c.rtrCredits = make([]int, numVCs)
		c.inRetCredits = make([]int, numVCs)

		c.initStage = initVCsSet

		return true
	case initVCsSet:
		msg := c.rtrPort.PeekIncoming()
		if msg == nil {
			return false
		}

		ie, ok := msg.(*events.InitEvent)
		if !ok || ie.Command != events.ReportFlitSize {
			return false
		}

		c.rtrPort.RetrieveIncoming()

		negotiated := ie.IntValue
		if c.flitSizeBits == 0 {
			c.flitSizeBits = negotiated
		} else if c.flitSizeBits != negotiated {
			log.Panicf("%s: flit size mismatch: configured %d bits, router negotiated %d bits",
				c.Name(), c.flitSizeBits, negotiated)
		}

		c.initStage = initFlitSizeSet

		return true
	case initFlitSizeSet:
		msg := c.rtrPort.PeekIncoming()
		if msg == nil {
			return false
		}

		ie, ok := msg.(*events.InitEvent)
		if !ok || ie.Command != events.ReportID {
			return false
		}

		c.rtrPort.RetrieveIncoming()
		c.rtrID = int64(ie.IntValue)

		c.networkInitialized = true
		c.initStage = initDone
		log.Printf("%s: network initialized, %d VNs x %d VCs, router id %d",
			c.Name(), c.reqVNs, c.vcsPerVN, c.rtrID)

		return true
	default:
		return false
	}
}

func (c *Comp) recvFromNetwork() bool {
	progress := false

	for {
		msg := c.rtrPort.PeekIncoming()
		if msg == nil {
			break
		}

		switch ev := msg.(type) {
		case *events.CreditEvent:
			c.rtrPort.RetrieveIncoming()
			c.rtrCredits[ev.VC] += ev.Credits
			progress = true

		case *events.RoutedEvent:
			c.rtrPort.RetrieveIncoming()
			vn := ev.Request.VN
			c.recvQueues[vn].PushBack(ev.Request)

			if c.stats.PacketLatency != nil {
				latency := c.CurrentTime() - ev.InjectionTime
				c.stats.PacketLatency.Record(uint64(latency))
			}

			c.returnCredit(vn, ev.SizeInFlits)

			if fn, ok := c.notifyOnReceive[vn]; ok {
				delete(c.notifyOnReceive, vn)
				fn()
			}

			progress = true

		default:
			return progress
		}
	}

	return progress
}

// sendToNetwork drives the output pipeline's Idle/Transmitting state
// machine: a packet occupies the port for the number of ticks its
// flits take to serialize at linkBW, instead of leaving in a single
// Tick regardless of size. Grounded on original_source/linkControl.h's
// output_busy cycle accounting.
func (c *Comp) sendToNetwork() bool {
	progress := false

	if c.outState == outputIdle {
		if c.networkInitialized && c.beginXmit() {
			progress = true
		} else {
			return progress
		}
	}

	if c.outState == outputTransmitting {
		c.xmitSent += c.xmitFlitsPerTick()

		if c.xmitSent+1e-9 < float64(c.xmitFlits) {
			return true
		}

		c.outState = outputWaiting
	}

	if c.outState == outputWaiting {
		if c.finishXmit() {
			c.outState = outputIdle
			progress = true
		} else if c.stats.OutputPortStalls != nil {
			c.stats.OutputPortStalls.Add(1)
		}
	}

	return progress
}

// beginXmit picks the first VN (round-robin from xmitVN) with a queued
// request whose selected VC has credit, and starts serializing it.
// Returns false if no VN is currently sendable.
func (c *Comp) beginXmit() bool {
	for i := 0; i < c.reqVNs; i++ {
		vn := (c.xmitVN + i) % c.reqVNs

		e := c.outQueues[vn].Front()
		if e == nil {
			continue
		}

		req := e.Value.(*events.Request)
		vc := c.selectVC(vn)
		flits := c.requestFlits(req)

		if c.rtrCredits[vc] < flits {
			if c.stats.OutputPortStalls != nil {
				c.stats.OutputPortStalls.Add(1)
			}

			continue
		}

		c.xmitVN = vn
		c.xmitVC = vc
		c.xmitFlits = flits
		c.xmitSent = 0
		c.outState = outputTransmitting

		return true
	}

	return false
}

// finishXmit sends the fully-serialized packet at the head of xmitVN's
// queue, retrying on a later tick if the port cannot currently accept a
// send. It leaves the queue and credit state untouched until the send
// actually succeeds.
func (c *Comp) finishXmit() bool {
	if !c.rtrPort.CanSend() {
		return false
	}

	e := c.outQueues[c.xmitVN].Front()
	req := e.Value.(*events.Request)

	routed := events.RoutedEventBuilder{}.
		WithSrc(c.rtrPort.AsRemote()).
		WithDst(c.remotePort).
		WithRequest(req).
		WithFlitSizeBits(c.effectiveFlitSizeBits()).
		Build()

	if c.rtrPort.Send(routed) != nil {
		return false
	}

	c.outQueues[c.xmitVN].Remove(e)
	c.outBufFlits[c.xmitVN] -= c.xmitFlits
	c.rtrCredits[c.xmitVC] -= c.xmitFlits

	if c.stats.SendBitCount != nil {
		c.stats.SendBitCount.Add(uint64(req.SizeInBits))
	}

	if fn, ok := c.notifyOnSend[c.xmitVN]; ok {
		delete(c.notifyOnSend, c.xmitVN)
		fn()
	}

	c.xmitVN = (c.xmitVN + 1) % c.reqVNs

	return true
}

// xmitFlitsPerTick is how many flits the link serializes in one Tick
// period, derived from linkBW (bits/sec). A non-positive bandwidth or
// flit size (not yet negotiated, or left unconfigured) degrades to
// sending a whole packet per tick rather than dividing by zero.
func (c *Comp) xmitFlitsPerTick() float64 {
	flitSizeBits := c.effectiveFlitSizeBits()

	if c.linkBW <= 0 || flitSizeBits <= 0 {
		return float64(c.xmitFlits)
	}

	flitsPerSec := c.linkBW / float64(flitSizeBits)

	return flitsPerSec * float64(c.Freq.Period())
}

// selectVC picks a VC within vn's assigned range: deterministically by
// hashing (src, dst), or by round-robin rotation every cbFactor sends.
func (c *Comp) selectVC(vn int) int {
	base := vn * c.vcsPerVN

	if c.vcsPerVN <= 1 {
		return base
	}

	if c.cbAlg == Deterministic {
		req := c.outQueues[vn].Front().Value.(*events.Request)

		h := fnv.New32a()
		_, _ = h.Write([]byte{
			byte(req.Src), byte(req.Src >> 8), byte(req.Src >> 16), byte(req.Src >> 24),
			byte(req.Dst), byte(req.Dst >> 8), byte(req.Dst >> 16), byte(req.Dst >> 24),
		})

		return base + int(h.Sum32())%c.vcsPerVN
	}

	vc := base + c.outVCCurr[vn]/c.cbFactor%c.vcsPerVN
	c.outVCCurr[vn]++

	return vc
}

// returnCredit sends the router a CreditEvent for the flits just freed on
// vn's first VC, best-effort: if the port cannot accept the send this
// tick, the credit is batched into inRetCredits and retried next tick.
func (c *Comp) returnCredit(vn, flits int) {
	vc := vn * c.vcsPerVN
	c.inRetCredits[vc] += flits

	ev := events.NewCreditEvent(c.rtrPort.AsRemote(), c.remotePort, vc, c.inRetCredits[vc])
	if c.rtrPort.Send(ev) == nil {
		c.inRetCredits[vc] = 0
	}
}

func (c *Comp) updateIdle(progress bool) {
	now := c.CurrentTime()

	if progress {
		if c.isIdle && c.stats.IdleTime != nil {
			c.stats.IdleTime.Add(uint64(now - c.idleStart))
		}

		c.isIdle = false

		return
	}

	if !c.isIdle {
		c.isIdle = true
		c.idleStart = now
	}
}
