// Package hyperx implements the hyperX topology (spec.md §4.3.3): every
// pair of routers within a dimension is directly connected, and a packet
// may advance along any dimension that is not yet aligned with its
// destination. Six algorithms are supported: DOR, DORND, MINA, VALIANT,
// DOAL, and VDAL.
package hyperx

import (
	"hash/fnv"

	"github.com/iti/rngstream"

	"github.com/sst-elements/merlin/events"
	"github.com/sst-elements/merlin/topology"
)

// Algorithm selects one of the six hyperX routing algorithms.
type Algorithm int

// Algorithms a hyperX Policy can run (spec.md §4.3.3).
const (
	DOR Algorithm = iota
	DORND
	MINA
	VALIANT
	DOAL
	VDAL
)

// DestLoc is the per-hop routing state carried in InternalEvent.Ext.
type DestLoc struct {
	Loc          []int
	LocalPort    int
	ValLoc       []int
	ValRouteDest bool
}

// Policy implements hyperX routing. Grounded on
// original_source/topology/hyperx.h.
type Policy struct {
	routerID int
	idLoc    []int

	dimSize  []int
	dimWidth []int

	portStart []int

	numLocalPorts  int
	localPortStart int
	totalRouters   int

	algorithm         Algorithm
	adaptiveThreshold float64

	numVCs         int
	outputCredits  []int
	outputQueueLen []int

	rng *rngstream.RngStream
}

// Builder builds a hyperX Policy.
type Builder struct {
	routerID          int
	dimSize           []int
	dimWidth          []int
	numLocalPorts     int
	algorithm         Algorithm
	adaptiveThreshold float64
	rng               *rngstream.RngStream
}

// WithRouterID sets this router's flat id within the hyperX.
func (b Builder) WithRouterID(id int) Builder {
	b.routerID = id
	return b
}

// WithShape sets the number of routers in each dimension.
func (b Builder) WithShape(dimSize []int) Builder {
	b.dimSize = dimSize
	return b
}

// WithWidth sets the number of parallel links per hop in each dimension.
func (b Builder) WithWidth(dimWidth []int) Builder {
	b.dimWidth = dimWidth
	return b
}

// WithLocalPorts sets the number of endpoints attached to each router.
func (b Builder) WithLocalPorts(n int) Builder {
	b.numLocalPorts = n
	return b
}

// WithAlgorithm sets the routing algorithm.
func (b Builder) WithAlgorithm(a Algorithm) Builder {
	b.algorithm = a
	return b
}

// WithAdaptiveThreshold sets the MINA/adaptive comparison threshold.
func (b Builder) WithAdaptiveThreshold(t float64) Builder {
	b.adaptiveThreshold = t
	return b
}

// WithRNG sets the per-router random stream used by DORND and VALIANT.
func (b Builder) WithRNG(rng *rngstream.RngStream) Builder {
	b.rng = rng
	return b
}

// Build creates the Policy.
func (b Builder) Build() *Policy {
	if len(b.dimSize) == 0 {
		panic("topology/hyperx: shape must be given")
	}

	dims := len(b.dimSize)

	width := b.dimWidth
	if width == nil {
		width = make([]int, dims)
		for i := range width {
			width[i] = 1
		}
	}

	p := &Policy{
		routerID:          b.routerID,
		dimSize:           append([]int{}, b.dimSize...),
		dimWidth:          append([]int{}, width...),
		numLocalPorts:     b.numLocalPorts,
		algorithm:         b.algorithm,
		adaptiveThreshold: b.adaptiveThreshold,
		rng:               b.rng,
	}
	if p.adaptiveThreshold == 0 {
		p.adaptiveThreshold = 2.0
	}
	if p.rng == nil {
		p.rng = rngstream.New("hyperx")
	}

	p.portStart = make([]int, dims)
	port := 0

	for d := 0; d < dims; d++ {
		p.portStart[d] = port
		port += p.dimWidth[d] * (p.dimSize[d] - 1)
	}
	p.localPortStart = port

	p.totalRouters = 1
	for _, s := range p.dimSize {
		p.totalRouters *= s
	}

	p.idLoc = make([]int, dims)
	p.idToLocation(b.routerID, p.idLoc)

	return p
}

func (p *Policy) idToLocation(id int, out []int) {
	for d := 0; d < len(p.dimSize); d++ {
		out[d] = id % p.dimSize[d]
		id /= p.dimSize[d]
	}
}

func (p *Policy) routerOf(dst int) []int {
	loc := make([]int, len(p.dimSize))
	p.idToLocation(dst/p.numLocalPorts, loc)

	return loc
}

func (p *Policy) localPortOf(dst int) int {
	return dst % p.numLocalPorts
}

func hashMod(a, b, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte{byte(a), byte(a >> 8), byte(b), byte(b >> 8)})

	return int(h.Sum32()) % n
}

// ComputeNumVCs returns reqVNs times the VC multiplier this algorithm
// needs: VALIANT and
// VDAL need 2 (one per Valiant half, to separate the phase before and after
// the randomly chosen intermediate router and avoid deadlock); the rest
// need only 1.
func (p *Policy) ComputeNumVCs(reqVNs int) int {
	switch p.algorithm {
	case VALIANT, VDAL:
		return reqVNs * 2
	default:
		return reqVNs
	}
}

// SetOutputBufferCreditArray implements topology.CreditInspector, used by
// MINA to pick the unaligned dimension link with the most downstream
// credit.
func (p *Policy) SetOutputBufferCreditArray(array []int, vcs int) {
	p.outputCredits = array
	p.numVCs = vcs
}

// SetOutputQueueLengthsArray implements topology.QueueInspector.
func (p *Policy) SetOutputQueueLengthsArray(array []int, vcs int) {
	p.outputQueueLen = array
	p.numVCs = vcs
}

// ProcessInput decodes the destination and, for VALIANT/VDAL, picks a
// random intermediate router distinct from source and destination.
func (p *Policy) ProcessInput(ev *events.RoutedEvent) *events.InternalEvent {
	dest := p.routerOf(int(ev.Request.Dst))
	d := &DestLoc{Loc: dest, LocalPort: p.localPortOf(int(ev.Request.Dst))}

	switch p.algorithm {
	case VALIANT, VDAL:
		d.ValLoc = p.randomIntermediate(dest)
		d.ValRouteDest = sameLoc(d.ValLoc, p.idLoc)
	}

	return &events.InternalEvent{
		Encapsulated: ev,
		VC:           ev.Request.VN * p.ComputeNumVCs(1),
		Ext:          d,
	}
}

func sameLoc(a, b []int) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

func (p *Policy) randomIntermediate(dest []int) []int {
	for {
		loc := make([]int, len(p.dimSize))
		for d := range loc {
			loc[d] = p.rng.RandInt(0, p.dimSize[d]-1)
		}

		if !sameLoc(loc, p.idLoc) && !sameLoc(loc, dest) {
			return loc
		}
	}
}

func (p *Policy) unalignedDims(target []int) []int {
	var dims []int
	for d := range p.dimSize {
		if p.idLoc[d] != target[d] {
			dims = append(dims, d)
		}
	}

	return dims
}

// hopTo returns the output port advancing one hop toward target on
// dimension d: always the first of the dimWidth[d] parallel links to that
// peer.
func (p *Policy) hopTo(d int, target []int) int {
	peer := target[d]
	if peer > p.idLoc[d] {
		peer--
	}

	base := p.portStart[d] + peer*p.dimWidth[d]

	return base
}

// Route executes the configured algorithm.
func (p *Policy) Route(inPort, inVC int, ev *events.InternalEvent) {
	dest := ev.Ext.(*DestLoc)

	switch p.algorithm {
	case DOR:
		p.routeDOR(ev, dest)
	case DORND:
		p.routeDORND(ev, dest)
	case MINA:
		p.routeMINA(ev, dest)
	case VALIANT:
		p.routeValiant(ev, dest)
	case DOAL:
		p.routeDOAL(ev, dest)
	case VDAL:
		p.routeVDAL(ev, dest)
	}
}

func (p *Policy) routeDOR(ev *events.InternalEvent, dest *DestLoc) {
	dims := p.unalignedDims(dest.Loc)
	if len(dims) == 0 {
		ev.NextPort = p.localPortStart + dest.LocalPort
		return
	}

	ev.NextPort = p.hopTo(dims[0], dest.Loc)
}

func (p *Policy) routeDORND(ev *events.InternalEvent, dest *DestLoc) {
	dims := p.unalignedDims(dest.Loc)
	if len(dims) == 0 {
		ev.NextPort = p.localPortStart + dest.LocalPort
		return
	}

	perm := p.rng.RandInt(0, len(dims)-1)
	ev.NextPort = p.hopTo(dims[perm], dest.Loc)
}

func (p *Policy) routeMINA(ev *events.InternalEvent, dest *DestLoc) {
	dims := p.unalignedDims(dest.Loc)
	if len(dims) == 0 {
		ev.NextPort = p.localPortStart + dest.LocalPort
		return
	}

	best := -1
	bestCredits := -1
	bestPort := 0

	for _, d := range dims {
		port := p.hopTo(d, dest.Loc)
		credits := p.creditsAt(port)

		if credits > bestCredits || (credits == bestCredits && port < bestPort) {
			best = d
			bestCredits = credits
			bestPort = port
		}
	}

	_ = best
	ev.NextPort = bestPort
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

func (p *Policy) routeValiant(ev *events.InternalEvent, dest *DestLoc) {
	if dest.ValRouteDest {
		p.routeDOR(ev, dest)
		return
	}

	dims := p.unalignedDims(dest.ValLoc)
	if len(dims) == 0 {
		dest.ValRouteDest = true
		ev.VC++
		p.routeDOR(ev, dest)

		return
	}

	ev.NextPort = p.hopTo(dims[0], dest.ValLoc)
}

func (p *Policy) routeDOAL(ev *events.InternalEvent, dest *DestLoc) {
	dims := p.unalignedDims(dest.Loc)
	if len(dims) == 0 {
		ev.NextPort = p.localPortStart + dest.LocalPort
		return
	}

	d := dims[0]
	peer := dest.Loc[d]

	if peer > p.idLoc[d] {
		peer--
	}

	base := p.portStart[d] + peer*p.dimWidth[d]
	ev.NextPort = base + hashMod(int(ev.Encapsulated.Request.Src), int(ev.Encapsulated.Request.Dst), p.dimWidth[d])
}

func (p *Policy) routeVDAL(ev *events.InternalEvent, dest *DestLoc) {
	if dest.ValRouteDest {
		p.routeDOAL(ev, dest)
		return
	}

	dims := p.unalignedDims(dest.ValLoc)
	if len(dims) == 0 {
		dest.ValRouteDest = true
		ev.VC++
		p.routeDOAL(ev, dest)

		return
	}

	d := dims[0]
	peer := dest.ValLoc[d]

	if peer > p.idLoc[d] {
		peer--
	}

	base := p.portStart[d] + peer*p.dimWidth[d]
	ev.NextPort = base + hashMod(int(ev.Encapsulated.Request.Src), int(ev.Encapsulated.Request.Dst), p.dimWidth[d])
}

// Reroute rechecks the routing decision, used by the router when a packet
// has been held at an input without advancing (Design Note §9 and
// DESIGN.md's Open Question resolution).
func (p *Policy) Reroute(inPort, inVC int, ev *events.InternalEvent) {
	p.Route(inPort, inVC, ev)
}

// RouteInitData fans out on broadcast, otherwise routes via DOR.
func (p *Policy) RouteInitData(inPort int, ev *events.InternalEvent, outPorts *[]int) {
	if ev.Encapsulated.Request.Dst == events.InitBroadcastAddr {
		total := p.localPortStart + p.numLocalPorts
		for i := 0; i < total; i++ {
			if i != inPort {
				*outPorts = append(*outPorts, i)
			}
		}

		return
	}

	dest := ev.Ext.(*DestLoc)
	p.routeDOR(ev, dest)
	*outPorts = append(*outPorts, ev.NextPort)
}

// ProcessInitDataInput is the init-phase variant of ProcessInput.
func (p *Policy) ProcessInitDataInput(ev *events.RoutedEvent) *events.InternalEvent {
	dest := p.routerOf(int(ev.Request.Dst))

	return &events.InternalEvent{
		Encapsulated: ev,
		Ext:          &DestLoc{Loc: dest, LocalPort: p.localPortOf(int(ev.Request.Dst))},
	}
}

// PortState classifies local ports as router-to-NIC and every other
// in-range port as router-to-router.
func (p *Policy) PortState(port int) topology.PortState {
	total := p.localPortStart + p.numLocalPorts
	if port >= total {
		return topology.Unconnected
	}

	if port >= p.localPortStart {
		return topology.RouterToNIC
	}

	return topology.RouterToRouter
}

// EndpointID returns the endpoint id reachable through a local port, or -1.
func (p *Policy) EndpointID(port int) int {
	if port < p.localPortStart || port >= p.localPortStart+p.numLocalPorts {
		return -1
	}

	localIdx := port - p.localPortStart
	flatRouter := 0
	mul := 1

	for d := 0; d < len(p.dimSize); d++ {
		flatRouter += p.idLoc[d] * mul
		mul *= p.dimSize[d]
	}

	return flatRouter*p.numLocalPorts + localIdx
}
