// Package bridge implements a two-network bridge (spec.md §4.5): a
// component with one linkcontrol.Interface on each side that translates
// requests crossing from one network's address space into the other's
// and forwards them on, subject to the destination side's flow control.
// Grounded on original_source/bridge.h.
package bridge

import (
	"container/list"

	"github.com/sst-elements/merlin/events"
	"github.com/sst-elements/merlin/linkcontrol"
	"github.com/sst-elements/merlin/sim"
)

// Translator converts a request arriving on one network into the request
// to inject on the other, and the same for the one-shot init-phase
// handshake data that precedes timed traffic.
type Translator interface {
	Translate(req *events.Request, fromNetwork int) *events.Request
	InitTranslate(req *events.Request, fromNetwork int) *events.Request
}

// StatRegistry names the per-side counters a Comp reports through a
// sim.StatRegistry.
type StatRegistry struct {
	PktsReceived [2]sim.Counter
	PktsSent     [2]sim.Counter
}

// Comp is a bridge: a TickingComponent holding one linkcontrol.Interface
// per side and a Translator that maps requests between them.
type Comp struct {
	*sim.TickingComponent

	ifaces     [2]linkcontrol.Interface
	translator Translator
	numVNs     int

	sendQueues [2][]list.List // sendQueues[side][vn]: requests awaiting a send slot on side

	stats StatRegistry
}

// Builder builds a Comp.
type Builder struct {
	engine     sim.Engine
	freq       sim.Freq
	name       string
	ifaceA     linkcontrol.Interface
	ifaceB     linkcontrol.Interface
	translator Translator
	numVNs     int
	stats      sim.StatRegistry
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

// WithInterfaces sets the two link controllers the bridge forwards
// between: network 0 and network 1.
func (b Builder) WithInterfaces(a, c linkcontrol.Interface) Builder {
	b.ifaceA = a
	b.ifaceB = c
	return b
}

// WithTranslator sets the request translator. Required.
func (b Builder) WithTranslator(t Translator) Builder {
	b.translator = t
	return b
}

// WithRequestedVNs sets the number of virtual networks forwarded.
func (b Builder) WithRequestedVNs(vns int) Builder {
	b.numVNs = vns
	return b
}

// WithStats sets the registry statistics are recorded into.
func (b Builder) WithStats(r sim.StatRegistry) Builder {
	b.stats = r
	return b
}

// Build creates the Comp.
func (b Builder) Build() *Comp {
	if b.ifaceA == nil || b.ifaceB == nil {
		panic("bridge: both interfaces are required")
	}
	if b.translator == nil {
		panic("bridge: translator is required")
	}
	if b.numVNs <= 0 {
		b.numVNs = 1
	}

	name := b.name
	if name == "" {
		name = "Bridge"
	}

	c := &Comp{
		ifaces:     [2]linkcontrol.Interface{b.ifaceA, b.ifaceB},
		translator: b.translator,
		numVNs:     b.numVNs,
	}
	c.sendQueues[0] = make([]list.List, b.numVNs)
	c.sendQueues[1] = make([]list.List, b.numVNs)

	if b.stats != nil {
		c.stats = StatRegistry{
			PktsReceived: [2]sim.Counter{
				b.stats.GetCounter(name + ".PktsReceivedNet0"),
				b.stats.GetCounter(name + ".PktsReceivedNet1"),
			},
			PktsSent: [2]sim.Counter{
				b.stats.GetCounter(name + ".PktsSentNet0"),
				b.stats.GetCounter(name + ".PktsSentNet1"),
			},
		}
	}

	c.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, c)
	c.armNotifications()

	return c
}

// armNotifications (re-)registers a one-shot receive callback on every
// (side, vn) so the bridge wakes up and ticks whenever either side's
// link controller has something pending, rather than being polled.
// Grounded on bridge.h's handleIncoming callback.
func (c *Comp) armNotifications() {
	for side := 0; side < 2; side++ {
		side := side

		for vn := 0; vn < c.numVNs; vn++ {
			vn := vn

			c.ifaces[side].SetNotifyOnReceive(vn, func() {
				c.TickNow()
			})
		}
	}
}

// Tick drains each side's received packets into the opposite side's send
// queue, translating as it goes, then attempts one send per VN on each
// side.
func (c *Comp) Tick() bool {
	progress := false

	for side := 0; side < 2; side++ {
		progress = c.recvSide(side) || progress
	}

	for side := 0; side < 2; side++ {
		progress = c.sendSide(side) || progress
	}

	c.armNotifications()

	return progress
}

func (c *Comp) recvSide(side int) bool {
	progress := false
	other := 1 - side

	for vn := 0; vn < c.numVNs; vn++ {
		if !c.ifaces[side].RequestToReceive(vn) {
			continue
		}

		req := c.ifaces[side].Recv(vn)
		if req == nil {
			continue
		}

		if c.stats.PktsReceived[side] != nil {
			c.stats.PktsReceived[side].Add(1)
		}

		translated := c.translator.Translate(req, side)
		if translated == nil {
			progress = true
			continue
		}

		c.sendQueues[other][vn].PushBack(translated)

		progress = true
	}

	return progress
}

func (c *Comp) sendSide(side int) bool {
	progress := false

	for vn := 0; vn < c.numVNs; vn++ {
		e := c.sendQueues[side][vn].Front()
		if e == nil {
			continue
		}

		req := e.Value.(*events.Request)

		if !c.ifaces[side].SpaceToSend(vn, req.SizeInBits) {
			continue
		}

		if !c.ifaces[side].Send(req, vn) {
			continue
		}

		c.sendQueues[side][vn].Remove(e)

		if c.stats.PktsSent[side] != nil {
			c.stats.PktsSent[side].Add(1)
		}

		progress = true
	}

	return progress
}
