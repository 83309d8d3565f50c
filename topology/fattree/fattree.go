// Package fattree implements the fat-tree topology (spec.md §4.3.4):
// per-level down/up port counts parsed from a shape string, deterministic
// (hash-based) or credit-adaptive up-port selection, and exact
// down-routing by subtree.
package fattree

import (
	"hash/fnv"

	"github.com/sst-elements/merlin/events"
	"github.com/sst-elements/merlin/topology"
)

// LevelShape is one level of a fat-tree shape: the number of down ports
// (toward hosts or the subtree below) and up ports (toward the level
// above) each router at that level has.
type LevelShape struct {
	Down int
	Up   int
}

// RoutingAlgorithm selects deterministic or credit-adaptive up-routing.
type RoutingAlgorithm int

// Algorithms a fat-tree Policy can run.
const (
	Deterministic RoutingAlgorithm = iota
	Adaptive
)

// Policy implements fat-tree routing. Grounded on
// original_source/topology/fattree.h.
type Policy struct {
	shape []LevelShape
	level int
	pos   int // position of this router within its level

	idLow, idHigh int // [idLow, idHigh) endpoint ids served by this subtree

	downPorts, upPorts int

	algorithm         RoutingAlgorithm
	adaptiveThreshold float64

	numVCs        int
	outputCredits []int
}

// Builder builds a fat-tree Policy.
type Builder struct {
	shape             []LevelShape
	level             int
	pos               int
	algorithm         RoutingAlgorithm
	adaptiveThreshold float64
}

// WithShape sets the per-level down/up port counts, leaf level first.
func (b Builder) WithShape(shape []LevelShape) Builder {
	b.shape = shape
	return b
}

// WithPosition sets this router's level and position within that level.
func (b Builder) WithPosition(level, pos int) Builder {
	b.level = level
	b.pos = pos
	return b
}

// WithAlgorithm sets deterministic or adaptive up-routing.
func (b Builder) WithAlgorithm(a RoutingAlgorithm) Builder {
	b.algorithm = a
	return b
}

// WithAdaptiveThreshold sets the credit-comparison threshold the adaptive
// algorithm falls back to deterministic routing below.
func (b Builder) WithAdaptiveThreshold(t float64) Builder {
	b.adaptiveThreshold = t
	return b
}

// Build creates the Policy.
func (b Builder) Build() *Policy {
	if len(b.shape) == 0 {
		panic("topology/fattree: shape must be given")
	}
	if b.level < 0 || b.level >= len(b.shape) {
		panic("topology/fattree: level out of range")
	}

	subtreeSize := 1
	for l := 0; l <= b.level; l++ {
		subtreeSize *= b.shape[l].Down
	}

	p := &Policy{
		shape:             append([]LevelShape{}, b.shape...),
		level:             b.level,
		pos:               b.pos,
		downPorts:         b.shape[b.level].Down,
		upPorts:           b.shape[b.level].Up,
		algorithm:         b.algorithm,
		adaptiveThreshold: b.adaptiveThreshold,
	}
	if p.adaptiveThreshold == 0 {
		p.adaptiveThreshold = 2.0
	}

	p.idLow = b.pos * subtreeSize
	p.idHigh = p.idLow + subtreeSize

	return p
}

// SetOutputBufferCreditArray implements topology.CreditInspector for the
// adaptive algorithm's up-port credit comparison.
func (p *Policy) SetOutputBufferCreditArray(array []int, vcs int) {
	p.outputCredits = array
	p.numVCs = vcs
}

func (p *Policy) creditsAt(port int) int {
	if p.outputCredits == nil || p.numVCs == 0 {
		return 0
	}

	total := 0
	for vc := 0; vc < p.numVCs; vc++ {
		idx := port*p.numVCs + vc
		if idx < len(p.outputCredits) {
			total += p.outputCredits[idx]
		}
	}

	return total
}

// ProcessInput stamps VC = VN. Fat-tree does not checker-board beyond VNs.
func (p *Policy) ProcessInput(ev *events.RoutedEvent) *events.InternalEvent {
	return &events.InternalEvent{Encapsulated: ev, VC: ev.Request.VN}
}

// downPortFor returns the down port leading to dest, assuming dest is
// within this router's subtree.
func (p *Policy) downPortFor(dest int) int {
	subtreeSize := (p.idHigh - p.idLow) / p.downPorts

	return (dest - p.idLow) / subtreeSize
}

func (p *Policy) hashUpPort(src, dest int64) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte{
		byte(src), byte(src >> 8), byte(src >> 16), byte(src >> 24),
		byte(dest), byte(dest >> 8), byte(dest >> 16), byte(dest >> 24),
	})

	return p.downPorts + int(h.Sum32())%p.upPorts
}

// Route delivers within the subtree when the destination is served here,
// otherwise picks an up-port: by hash under the deterministic algorithm;
// under the adaptive algorithm, the up-port with the most credits (lowest
// index on ties), falling back to the hashed port when that count is
// below adaptiveThreshold.
func (p *Policy) Route(_, _ int, ev *events.InternalEvent) {
	dest := int(ev.Encapsulated.Request.Dst)

	if dest >= p.idLow && dest < p.idHigh {
		ev.NextPort = p.downPortFor(dest)
		return
	}

	detPort := p.hashUpPort(ev.Encapsulated.Request.Src, ev.Encapsulated.Request.Dst)

	if p.algorithm == Deterministic || p.upPorts <= 1 {
		ev.NextPort = detPort
		return
	}

	best := p.downPorts
	bestCredits := p.creditsAt(best)

	for up := 1; up < p.upPorts; up++ {
		port := p.downPorts + up
		c := p.creditsAt(port)

		if c > bestCredits {
			best = port
			bestCredits = c
		}
	}

	if float64(bestCredits) < p.adaptiveThreshold {
		best = detPort
	}

	ev.NextPort = best
}

// Reroute rechecks the adaptive decision for a packet held at an input.
func (p *Policy) Reroute(inPort, inVC int, ev *events.InternalEvent) {
	p.Route(inPort, inVC, ev)
}

// RouteInitData fans out to every port but the arrival port on broadcast,
// otherwise routes exactly like Route.
func (p *Policy) RouteInitData(inPort int, ev *events.InternalEvent, outPorts *[]int) {
	if ev.Encapsulated.Request.Dst == events.InitBroadcastAddr {
		total := p.downPorts + p.upPorts
		for i := 0; i < total; i++ {
			if i != inPort {
				*outPorts = append(*outPorts, i)
			}
		}

		return
	}

	p.Route(inPort, 0, ev)
	*outPorts = append(*outPorts, ev.NextPort)
}

// ProcessInitDataInput is the init-phase variant of ProcessInput.
func (p *Policy) ProcessInitDataInput(ev *events.RoutedEvent) *events.InternalEvent {
	return &events.InternalEvent{Encapsulated: ev}
}

// PortState classifies down ports as router-to-NIC only at the leaf level;
// every other port in range is router-to-router.
func (p *Policy) PortState(port int) topology.PortState {
	total := p.downPorts + p.upPorts
	if port >= total {
		return topology.Unconnected
	}

	if p.level == 0 && port < p.downPorts {
		return topology.RouterToNIC
	}

	return topology.RouterToRouter
}

// ComputeNumVCs returns reqVNs unchanged.
func (p *Policy) ComputeNumVCs(reqVNs int) int {
	return reqVNs
}

// EndpointID returns the endpoint id reachable through a leaf-level down
// port, or -1.
func (p *Policy) EndpointID(port int) int {
	if p.level != 0 || port >= p.downPorts {
		return -1
	}

	return p.idLow + port
}
