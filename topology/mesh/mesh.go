// Package mesh implements the k-ary n-cube (non-wrap) mesh topology
// (spec.md §4.3.2): dimension-order routing over a configurable shape and
// per-dimension link width.
package mesh

import (
	"hash/fnv"

	"github.com/sst-elements/merlin/events"
	"github.com/sst-elements/merlin/topology"
)

// DestLoc is the per-hop decoded destination location, carried in the
// InternalEvent's Ext slot (Design Note §9).
type DestLoc struct {
	Loc       []int
	LocalPort int
}

// Policy routes by dimension order: the first dimension where the current
// router's location differs from the destination's is advanced one hop,
// choosing among parallel links with choose_multipath.
// Grounded on original_source/topology/mesh.h.
type Policy struct {
	routerID int
	idLoc    []int

	dimSize  []int
	dimWidth []int

	portStart [][2]int // portStart[dim][0]=positive range start, [1]=negative

	numLocalPorts  int
	localPortStart int
}

// Builder builds a mesh Policy.
type Builder struct {
	routerID      int
	dimSize       []int
	dimWidth      []int
	numLocalPorts int
}

// WithRouterID sets this router's flat id within the mesh.
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
// Defaults to 1 per dimension when not called.
func (b Builder) WithWidth(dimWidth []int) Builder {
	b.dimWidth = dimWidth
	return b
}

// WithLocalPorts sets the number of endpoints attached to each router.
func (b Builder) WithLocalPorts(n int) Builder {
	b.numLocalPorts = n
	return b
}

// Build creates the Policy, laying out ports as: for each dimension,
// [positive range][negative range], then local ports at the tail.
func (b Builder) Build() *Policy {
	if len(b.dimSize) == 0 {
		panic("topology/mesh: shape must be given")
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
		routerID:      b.routerID,
		dimSize:       append([]int{}, b.dimSize...),
		dimWidth:      append([]int{}, width...),
		numLocalPorts: b.numLocalPorts,
		portStart:     make([][2]int, dims),
	}

	port := 0
	for d := 0; d < dims; d++ {
		p.portStart[d][0] = port
		port += p.dimWidth[d]
		p.portStart[d][1] = port
		port += p.dimWidth[d]
	}
	p.localPortStart = port

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

// chooseMultipath picks among the dimWidth parallel links for a hop,
// defaulting to hashing the remaining distance modulo the width.
func (p *Policy) chooseMultipath(startPort, numPorts, destDist int) int {
	if numPorts <= 1 {
		return startPort
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte{byte(destDist), byte(destDist >> 8)})

	return startPort + int(h.Sum32())%numPorts
}

// ProcessInput decodes the destination and stamps VC = VN (mesh does not
// checker-board across dimensions; request.VN selects the VC directly).
func (p *Policy) ProcessInput(ev *events.RoutedEvent) *events.InternalEvent {
	destLoc := p.routerOf(int(ev.Request.Dst))

	return &events.InternalEvent{
		Encapsulated: ev,
		VC:           ev.Request.VN,
		Ext:          &DestLoc{Loc: destLoc, LocalPort: p.localPortOf(int(ev.Request.Dst))},
	}
}

// Route advances one hop in the lowest dimension not yet aligned with the
// destination, or delivers locally once every dimension matches.
func (p *Policy) Route(_, _ int, ev *events.InternalEvent) {
	dest := ev.Ext.(*DestLoc)

	for d := 0; d < len(p.dimSize); d++ {
		if dest.Loc[d] == p.idLoc[d] {
			continue
		}

		dist := dest.Loc[d] - p.idLoc[d]

		var startPort int
		if dist > 0 {
			startPort = p.portStart[d][0]
		} else {
			startPort = p.portStart[d][1]
			dist = -dist
		}

		ev.NextPort = p.chooseMultipath(startPort, p.dimWidth[d], dist)

		return
	}

	ev.NextPort = p.localPortStart + dest.LocalPort
}

// Reroute is identical to Route; dimension-order mesh routing is never
// adaptive.
func (p *Policy) Reroute(inPort, inVC int, ev *events.InternalEvent) {
	p.Route(inPort, inVC, ev)
}

// RouteInitData fans out to every port but the arrival port on broadcast,
// otherwise routes like Route.
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

	p.Route(inPort, 0, ev)
	*outPorts = append(*outPorts, ev.NextPort)
}

// ProcessInitDataInput is the init-phase variant of ProcessInput.
func (p *Policy) ProcessInitDataInput(ev *events.RoutedEvent) *events.InternalEvent {
	destLoc := p.routerOf(int(ev.Request.Dst))

	return &events.InternalEvent{
		Encapsulated: ev,
		Ext:          &DestLoc{Loc: destLoc, LocalPort: p.localPortOf(int(ev.Request.Dst))},
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

// ComputeNumVCs returns reqVNs unchanged: mesh uses request.VN as the VC
// directly, with no checker-boarding multiplier of its own.
func (p *Policy) ComputeNumVCs(reqVNs int) int {
	return reqVNs
}

// EndpointID returns the endpoint id reachable through a local port, or -1
// for a router-to-router port.
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
