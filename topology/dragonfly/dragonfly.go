// Package dragonfly implements the current dragonfly topology (spec.md
// §4.3.5): three port tiers per router (local hosts, intra-group,
// inter-group), minimal/Valiant/adaptive-local routing, and a shared
// group-to-global-port routing table.
package dragonfly

import (
	"github.com/iti/rngstream"

	"github.com/sst-elements/merlin/events"
	"github.com/sst-elements/merlin/topology"
)

// Algorithm selects one of the three dragonfly routing algorithms.
type Algorithm int

// Algorithms a dragonfly Policy can run (spec.md §4.3.5).
const (
	Minimal Algorithm = iota
	Valiant
	AdaptiveLocal
)

// GlobalRouteMode selects whether RouteToGroup's group indices are
// absolute or relative to the current group.
type GlobalRouteMode int

// Global route modes (spec.md §6, "global_route_mode").
const (
	Absolute GlobalRouteMode = iota
	Relative
)

// RouterPortPair names a (router-in-group, port-on-that-router) pair a
// global link lands on.
type RouterPortPair struct {
	Router int
	Port   int
}

// RouteToGroup is the shared, read-mostly (group, routeNumber) -> global
// link table, built once at init and referenced by every router on a node
// (Design Note §9, "shared routing table").
type RouteToGroup struct {
	groups int
	routes int
	data   []RouterPortPair
}

// NewRouteToGroup creates a RouteToGroup for the given group/route-slot
// counts.
func NewRouteToGroup(groups, routes int) *RouteToGroup {
	return &RouteToGroup{
		groups: groups,
		routes: routes,
		data:   make([]RouterPortPair, groups*routes),
	}
}

// Set stores the router/port pair for (group, routeNumber).
func (t *RouteToGroup) Set(group, routeNumber int, pair RouterPortPair) {
	t.data[group*t.routes+routeNumber] = pair
}

// Get returns the router/port pair for (group, routeNumber).
func (t *RouteToGroup) Get(group, routeNumber int) RouterPortPair {
	return t.data[group*t.routes+routeNumber]
}

// Params are the dragonfly shape parameters (spec.md §6).
type Params struct {
	HostsPerRouter    int // p
	RoutersPerGroup   int // a
	IntergroupPerRtr  int // h
	IntergroupLinks   int // n
	NumGroups         int // g
}

// Addr is a decoded dragonfly endpoint address.
type Addr struct {
	Group    int
	MidGroup int
	Router   int
	Host     int
}

// DestLoc is the per-hop routing state carried in InternalEvent.Ext.
type DestLoc struct {
	Dest        Addr
	GlobalSlice int
}

// Policy implements dragonfly routing. Grounded on
// original_source/topology/dragonfly.h.
type Policy struct {
	params Params
	radix  int // k: total ports per router

	groupID  int
	routerID int

	algorithm         Algorithm
	adaptiveThreshold float64
	globalRouteMode   GlobalRouteMode

	routeToGroup *RouteToGroup

	numVCs        int
	outputCredits []int

	rng *rngstream.RngStream
}

// Builder builds a dragonfly Policy.
type Builder struct {
	params            Params
	radix             int
	groupID, routerID int
	algorithm         Algorithm
	adaptiveThreshold float64
	globalRouteMode   GlobalRouteMode
	routeToGroup      *RouteToGroup
	rng               *rngstream.RngStream
}

// WithParams sets the dragonfly shape.
func (b Builder) WithParams(p Params) Builder {
	b.params = p
	return b
}

// WithRadix sets the router's total port count k.
func (b Builder) WithRadix(k int) Builder {
	b.radix = k
	return b
}

// WithPosition sets this router's group and in-group index.
func (b Builder) WithPosition(group, router int) Builder {
	b.groupID = group
	b.routerID = router
	return b
}

// WithAlgorithm sets minimal, Valiant, or adaptive-local routing.
func (b Builder) WithAlgorithm(a Algorithm) Builder {
	b.algorithm = a
	return b
}

// WithAdaptiveThreshold sets the adaptive-local occupancy-ratio threshold.
func (b Builder) WithAdaptiveThreshold(t float64) Builder {
	b.adaptiveThreshold = t
	return b
}

// WithGlobalRouteMode sets whether the shared table's group indices are
// absolute or relative to the current group.
func (b Builder) WithGlobalRouteMode(m GlobalRouteMode) Builder {
	b.globalRouteMode = m
	return b
}

// WithRouteToGroup sets the shared group-to-global-port table.
func (b Builder) WithRouteToGroup(t *RouteToGroup) Builder {
	b.routeToGroup = t
	return b
}

// WithRNG sets the per-router random stream used by Valiant mid-group
// selection.
func (b Builder) WithRNG(rng *rngstream.RngStream) Builder {
	b.rng = rng
	return b
}

// Build creates the Policy.
func (b Builder) Build() *Policy {
	if b.routeToGroup == nil {
		panic("topology/dragonfly: route-to-group table must be given")
	}

	p := &Policy{
		params:            b.params,
		radix:             b.radix,
		groupID:           b.groupID,
		routerID:          b.routerID,
		algorithm:         b.algorithm,
		adaptiveThreshold: b.adaptiveThreshold,
		globalRouteMode:   b.globalRouteMode,
		routeToGroup:      b.routeToGroup,
		rng:               b.rng,
	}
	if p.adaptiveThreshold == 0 {
		p.adaptiveThreshold = 2.0
	}
	if p.rng == nil {
		p.rng = rngstream.New("dragonfly")
	}

	return p
}

func (p *Policy) idToAddr(id int) Addr {
	hostsPerGroup := p.params.HostsPerRouter * p.params.RoutersPerGroup
	group := id / hostsPerGroup
	rem := id % hostsPerGroup

	return Addr{
		Group:  group,
		Router: rem / p.params.HostsPerRouter,
		Host:   rem % p.params.HostsPerRouter,
	}
}

func (p *Policy) intraGroupPort(router int) int {
	start := p.params.HostsPerRouter
	if router > p.routerID {
		router--
	}

	return start + router
}

// globalPort returns the port on this router landing on a global link
// toward group via the shared routing table, or -1 if this router has no
// such link.
func (p *Policy) globalPort(group int) int {
	target := group
	if p.globalRouteMode == Relative {
		target = (group - p.groupID + int(p.params.NumGroups)) % int(p.params.NumGroups)
	}

	for route := 0; route < p.params.IntergroupLinks; route++ {
		pair := p.routeToGroup.Get(target, route)
		if pair.Router == p.routerID {
			return pair.Port
		}
	}

	return -1
}

// routerForGroup returns the in-group router id hosting a link toward
// group, to be reached by an intra-group hop first.
func (p *Policy) routerForGroup(group int) int {
	target := group
	if p.globalRouteMode == Relative {
		target = (group - p.groupID + int(p.params.NumGroups)) % int(p.params.NumGroups)
	}

	pair := p.routeToGroup.Get(target, 0)

	return pair.Router
}

// ComputeNumVCs returns 3x reqVNs: one tier for local/intra routing, one
// for before the global hop, one for after (spec.md §4.3.5, "three VCs
// required per VN").
func (p *Policy) ComputeNumVCs(reqVNs int) int {
	return reqVNs * 3
}

// SetOutputBufferCreditArray implements topology.CreditInspector for
// adaptive-local's occupancy comparison.
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

// ProcessInput decodes the destination and, for Valiant, picks a random
// mid-group distinct from both source and destination group.
func (p *Policy) ProcessInput(ev *events.RoutedEvent) *events.InternalEvent {
	dest := p.idToAddr(int(ev.Request.Dst))

	if p.algorithm == Valiant && dest.Group != p.groupID {
		dest.MidGroup = p.randomMidGroup(dest.Group)
	} else {
		dest.MidGroup = dest.Group
	}

	return &events.InternalEvent{
		Encapsulated: ev,
		VC:           ev.Request.VN * 3,
		Ext:          &DestLoc{Dest: dest},
	}
}

func (p *Policy) randomMidGroup(destGroup int) int {
	if p.params.NumGroups <= 2 {
		return p.groupID
	}

	for {
		g := p.rng.RandInt(0, p.params.NumGroups-1)
		if g != p.groupID && g != destGroup {
			return g
		}
	}
}

// Route executes minimal, Valiant, or adaptive-local routing, bumping the
// VC on each tier crossing to preserve deadlock freedom.
func (p *Policy) Route(inPort, inVC int, ev *events.InternalEvent) {
	loc := ev.Ext.(*DestLoc)

	if inPort >= p.params.HostsPerRouter+p.params.RoutersPerGroup-1 {
		// arrived over a global link: advance to the next VC tier.
		ev.VC = inVC + 1
	}

	switch p.algorithm {
	case Valiant:
		p.routeValiant(ev, loc)
	case AdaptiveLocal:
		p.routeAdaptiveLocal(ev, loc)
	default:
		p.routeMinimal(ev, loc)
	}
}

func (p *Policy) routeMinimal(ev *events.InternalEvent, loc *DestLoc) {
	dest := loc.Dest

	if dest.Group != p.groupID {
		if gp := p.globalPort(dest.Group); gp >= 0 {
			ev.NextPort = gp
			return
		}

		ev.NextPort = p.intraGroupPort(p.routerForGroup(dest.Group))

		return
	}

	if dest.Router != p.routerID {
		ev.NextPort = p.intraGroupPort(dest.Router)
		return
	}

	ev.NextPort = dest.Host
}

func (p *Policy) routeValiant(ev *events.InternalEvent, loc *DestLoc) {
	dest := loc.Dest

	if dest.MidGroup != p.groupID {
		if gp := p.globalPort(dest.MidGroup); gp >= 0 {
			ev.NextPort = gp
			return
		}

		ev.NextPort = p.intraGroupPort(p.routerForGroup(dest.MidGroup))

		return
	}

	// arrived in the mid-group: switch to minimal routing to the true
	// destination.
	loc.Dest.MidGroup = dest.Group
	p.routeMinimal(ev, loc)
}

func (p *Policy) routeAdaptiveLocal(ev *events.InternalEvent, loc *DestLoc) {
	dest := loc.Dest

	if dest.Group == p.groupID {
		p.routeMinimal(ev, loc)
		return
	}

	minimalPort := p.globalPort(dest.Group)
	if minimalPort < 0 {
		minimalPort = p.intraGroupPort(p.routerForGroup(dest.Group))
	}

	bestAlt := -1
	bestAltCredits := -1

	for port := p.params.HostsPerRouter; port < p.radix; port++ {
		if port == minimalPort {
			continue
		}

		c := p.creditsAt(port)
		if c > bestAltCredits {
			bestAlt = port
			bestAltCredits = c
		}
	}

	minimalOccupancy := float64(p.creditsAt(minimalPort))
	if bestAlt >= 0 && minimalOccupancy > p.adaptiveThreshold*float64(bestAltCredits) {
		ev.NextPort = bestAlt
		return
	}

	ev.NextPort = minimalPort
}

// Reroute rechecks adaptive-local's decision for a packet held at an
// input; minimal and Valiant routing are deterministic once the VC tier is
// fixed, so Reroute is identical to Route there too.
func (p *Policy) Reroute(inPort, inVC int, ev *events.InternalEvent) {
	p.Route(inPort, inVC, ev)
}

// RouteInitData fans out to every port but the arrival port on broadcast,
// otherwise routes minimally.
func (p *Policy) RouteInitData(inPort int, ev *events.InternalEvent, outPorts *[]int) {
	if ev.Encapsulated.Request.Dst == events.InitBroadcastAddr {
		for i := 0; i < p.radix; i++ {
			if i != inPort {
				*outPorts = append(*outPorts, i)
			}
		}

		return
	}

	loc := ev.Ext.(*DestLoc)
	loc.Dest.MidGroup = loc.Dest.Group
	p.routeMinimal(ev, loc)
	*outPorts = append(*outPorts, ev.NextPort)
}

// ProcessInitDataInput is the init-phase variant of ProcessInput.
func (p *Policy) ProcessInitDataInput(ev *events.RoutedEvent) *events.InternalEvent {
	dest := p.idToAddr(int(ev.Request.Dst))
	dest.MidGroup = dest.Group

	return &events.InternalEvent{Encapsulated: ev, Ext: &DestLoc{Dest: dest}}
}

// PortState classifies host ports as router-to-NIC and every other
// in-range port as router-to-router.
func (p *Policy) PortState(port int) topology.PortState {
	if port >= p.radix {
		return topology.Unconnected
	}

	if port < p.params.HostsPerRouter {
		return topology.RouterToNIC
	}

	return topology.RouterToRouter
}

// EndpointID returns the endpoint id reachable through a host port, or -1.
func (p *Policy) EndpointID(port int) int {
	if port >= p.params.HostsPerRouter {
		return -1
	}

	hostsPerGroup := p.params.HostsPerRouter * p.params.RoutersPerGroup

	return p.groupID*hostsPerGroup + p.routerID*p.params.HostsPerRouter + port
}
