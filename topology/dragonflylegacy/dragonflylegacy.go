// Package dragonflylegacy implements the legacy dragonfly topology
// variant (spec.md §4.3.6): a single global link per (router, group)
// pair, no shared global-link map, and minimal/Valiant only. Flagged
// unsupported (spec.md Open Questions); construction logs a warning but
// does not refuse to build.
package dragonflylegacy

import (
	"fmt"
	"log"

	"github.com/iti/rngstream"

	"github.com/sst-elements/merlin/events"
	"github.com/sst-elements/merlin/topology"
)

// Algorithm selects minimal or Valiant routing.
type Algorithm int

// Algorithms the legacy dragonfly can run.
const (
	Minimal Algorithm = iota
	Valiant
)

// Params are the legacy dragonfly shape parameters.
type Params struct {
	HostsPerRouter   int // p
	RoutersPerGroup  int // a
	Radix            int // k
	IntergroupPerRtr int // h
	NumGroups        int // g
}

// Addr is a decoded legacy dragonfly endpoint address.
type Addr struct {
	Group    int
	MidGroup int
	Router   int
	Host     int
}

// Policy implements legacy dragonfly routing: one global link per
// (router, group) pair, computed structurally rather than from a shared
// table. Grounded on
// original_source/topology/dragonfly_legacy.{h,cc}.
type Policy struct {
	params    Params
	groupID   int
	routerID  int
	algorithm Algorithm
	rng       *rngstream.RngStream
}

// Builder builds a legacy dragonfly Policy.
type Builder struct {
	params            Params
	groupID, routerID int
	algorithm         Algorithm
	rng               *rngstream.RngStream
}

// WithParams sets the legacy dragonfly shape.
func (b Builder) WithParams(p Params) Builder {
	b.params = p
	return b
}

// WithPosition sets this router's group and in-group index.
func (b Builder) WithPosition(group, router int) Builder {
	b.groupID = group
	b.routerID = router
	return b
}

// WithAlgorithm sets minimal or Valiant routing. Valiant silently
// degrades to minimal when NumGroups <= 2, matching the original's
// "no point in valiant" guard.
func (b Builder) WithAlgorithm(a Algorithm) Builder {
	b.algorithm = a
	return b
}

// WithRNG sets the per-router random stream used by Valiant mid-group
// selection.
func (b Builder) WithRNG(rng *rngstream.RngStream) Builder {
	b.rng = rng
	return b
}

// Build creates the Policy, logging a construction-time warning per
// spec.md's Open Question: this variant is preserved for compatibility
// but is no longer supported.
func (b Builder) Build() *Policy {
	log.Printf(
		"dragonflylegacy: constructing a legacy dragonfly topology (group=%d router=%d); "+
			"this variant is no longer supported, use topology/dragonfly instead",
		b.groupID, b.routerID,
	)

	algo := b.algorithm
	if algo == Valiant && b.params.NumGroups <= 2 {
		algo = Minimal
	}

	rng := b.rng
	if rng == nil {
		rng = rngstream.New(fmt.Sprintf("dragonflylegacy.%d.%d", b.groupID, b.routerID))
	}

	return &Policy{
		params:    b.params,
		groupID:   b.groupID,
		routerID:  b.routerID,
		algorithm: algo,
		rng:       rng,
	}
}

func (p *Policy) idToAddr(id int) Addr {
	if int64(id) == events.InitBroadcastAddr {
		return Addr{Group: -1, MidGroup: -1, Router: -1, Host: -1}
	}

	hostsPerGroup := p.params.HostsPerRouter * p.params.RoutersPerGroup

	return Addr{
		Group:  id / hostsPerGroup,
		Router: (id % hostsPerGroup) / p.params.HostsPerRouter,
		Host:   id % p.params.HostsPerRouter,
	}
}

// routerToGroup returns the in-group router id hosting the single global
// link to group, assuming exactly one link per group.
func (p *Policy) routerToGroup(group int) int {
	if group < p.groupID {
		return group / p.params.IntergroupPerRtr
	}

	return (group - 1) / p.params.IntergroupPerRtr
}

func (p *Policy) portForRouter(router int) int {
	tgt := p.params.HostsPerRouter + router
	if router > p.routerID {
		tgt--
	}

	return tgt
}

func (p *Policy) portForGroup(group int) int {
	tgtRouter := p.routerToGroup(group)

	if tgtRouter == p.routerID {
		port := p.params.HostsPerRouter + p.params.RoutersPerGroup - 1
		if group < p.groupID {
			port += group % p.params.IntergroupPerRtr
		} else {
			port += (group - 1) % p.params.IntergroupPerRtr
		}

		return port
	}

	return p.portForRouter(tgtRouter)
}

// ComputeNumVCs returns 3x reqVNs, matching the current dragonfly's
// deadlock-avoidance VC budget.
func (p *Policy) ComputeNumVCs(reqVNs int) int {
	return reqVNs * 3
}

// ProcessInput decodes the destination and, for Valiant, picks a random
// mid-group.
func (p *Policy) ProcessInput(ev *events.RoutedEvent) *events.InternalEvent {
	dest := p.idToAddr(int(ev.Request.Dst))

	if p.algorithm == Valiant && dest.Group != p.groupID {
		for {
			g := p.rng.RandInt(0, p.params.NumGroups-1)
			if g != p.groupID && g != dest.Group {
				dest.MidGroup = g
				break
			}
		}
	} else {
		dest.MidGroup = dest.Group
	}

	return &events.InternalEvent{
		Encapsulated: ev,
		VC:           ev.Request.VN * 3,
		Ext:          &dest,
	}
}

// Route increments VC on arrival over a global link, then routes minimally
// toward MidGroup (which equals Group once there, or at origin under
// minimal routing).
func (p *Policy) Route(inPort, inVC int, ev *events.InternalEvent) {
	dest := ev.Ext.(*Addr)

	if inPort >= p.params.HostsPerRouter+p.params.RoutersPerGroup-1 {
		ev.VC = inVC + 1
	}

	switch {
	case dest.Group != p.groupID:
		if dest.MidGroup != p.groupID {
			ev.NextPort = p.portForGroup(dest.MidGroup)
		} else {
			ev.NextPort = p.portForGroup(dest.Group)
		}
	case dest.Router != p.routerID:
		ev.NextPort = p.portForRouter(dest.Router)
	default:
		ev.NextPort = dest.Host
	}
}

// Reroute is identical to Route: the legacy variant never reroutes
// adaptively.
func (p *Policy) Reroute(inPort, inVC int, ev *events.InternalEvent) {
	p.Route(inPort, inVC, ev)
}

// RouteInitData mirrors the original's tiered broadcast fanout: a
// broadcast arriving from a global link fans out locally only; one
// arriving from a group-mate fans out to hosts, and onward to other
// groups only if this router is in the originating group; one arriving
// from a host fans out to everything else.
func (p *Policy) RouteInitData(inPort int, ev *events.InternalEvent, outPorts *[]int) {
	dest := ev.Ext.(*Addr)
	k := p.params.Radix

	if dest.Host == -1 {
		switch {
		case inPort >= p.params.HostsPerRouter+p.params.RoutersPerGroup-1:
			for i := 0; i < p.params.HostsPerRouter+p.params.RoutersPerGroup-1; i++ {
				*outPorts = append(*outPorts, i)
			}
		case inPort >= p.params.HostsPerRouter:
			for i := 0; i < p.params.HostsPerRouter; i++ {
				*outPorts = append(*outPorts, i)
			}

			if srcGroup, ok := ev.Encapsulated.Request.Payload.(int); ok && srcGroup == p.groupID {
				for i := p.params.HostsPerRouter + p.params.RoutersPerGroup - 1; i < k; i++ {
					*outPorts = append(*outPorts, i)
				}
			}
		default:
			for i := 0; i < k; i++ {
				if i != inPort {
					*outPorts = append(*outPorts, i)
				}
			}
		}

		return
	}

	p.Route(inPort, 0, ev)
	*outPorts = append(*outPorts, ev.NextPort)
}

// ProcessInitDataInput is the init-phase variant of ProcessInput.
func (p *Policy) ProcessInitDataInput(ev *events.RoutedEvent) *events.InternalEvent {
	dest := p.idToAddr(int(ev.Request.Dst))

	return &events.InternalEvent{Encapsulated: ev, Ext: &dest}
}

// PortState classifies host ports as router-to-NIC and every other
// in-range port as router-to-router.
func (p *Policy) PortState(port int) topology.PortState {
	if port >= p.params.Radix {
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

	return p.groupID*(p.params.RoutersPerGroup*p.params.HostsPerRouter) +
		p.routerID*p.params.HostsPerRouter + port
}
