// Package single implements the single-router topology (spec.md §4.3.1):
// port index equals endpoint id.
package single

import (
	"github.com/sst-elements/merlin/events"
	"github.com/sst-elements/merlin/topology"
)

// Policy routes every packet to the port matching its destination id.
// Grounded on original_source/topology/singlerouter.{h,cc}.
type Policy struct {
	numPorts int
}

// Builder builds a Policy.
type Builder struct {
	numPorts int
}

// WithNumPorts sets the number of ports on the router.
func (b Builder) WithNumPorts(n int) Builder {
	b.numPorts = n
	return b
}

// Build creates the Policy.
func (b Builder) Build() *Policy {
	if b.numPorts <= 0 {
		panic("topology/single: num_ports must be positive")
	}

	return &Policy{numPorts: b.numPorts}
}

// ProcessInput wraps ev, stamping the VC from the request's VN.
func (p *Policy) ProcessInput(ev *events.RoutedEvent) *events.InternalEvent {
	return &events.InternalEvent{Encapsulated: ev, VC: ev.Request.VN}
}

// Route sets the next port to the destination endpoint id.
func (p *Policy) Route(_, _ int, ev *events.InternalEvent) {
	ev.NextPort = int(ev.Encapsulated.Request.Dst)
}

// Reroute is identical to Route; single-router routing is never adaptive.
func (p *Policy) Reroute(inPort, inVC int, ev *events.InternalEvent) {
	p.Route(inPort, inVC, ev)
}

// RouteInitData fans out to every port but the arrival port on broadcast,
// otherwise routes exactly like Route.
func (p *Policy) RouteInitData(inPort int, ev *events.InternalEvent, outPorts *[]int) {
	if ev.Encapsulated.Request.Dst == events.InitBroadcastAddr {
		for i := 0; i < p.numPorts; i++ {
			if i != inPort {
				*outPorts = append(*outPorts, i)
			}
		}

		return
	}

	p.Route(inPort, 0, ev)
	*outPorts = append(*outPorts, ev.NextPort)
}

// ProcessInitDataInput wraps ev without stamping a VC (init events are
// untimed and VC-less).
func (p *Policy) ProcessInitDataInput(ev *events.RoutedEvent) *events.InternalEvent {
	return &events.InternalEvent{Encapsulated: ev}
}

// PortState reports every port as router-to-NIC; a single router has no
// router-to-router links.
func (p *Policy) PortState(port int) topology.PortState {
	if port < p.numPorts {
		return topology.RouterToNIC
	}

	return topology.Unconnected
}

// ComputeNumVCs returns reqVNs unchanged: single-router needs no
// checker-boarding multiplier.
func (p *Policy) ComputeNumVCs(reqVNs int) int {
	return reqVNs
}

// EndpointID returns port, since port index equals endpoint id.
func (p *Policy) EndpointID(port int) int {
	return port
}
