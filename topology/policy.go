// Package topology defines the routing contract every topology algorithm
// implements (spec.md §4.3) and the optional capability interfaces adaptive
// algorithms declare by implementing them.
package topology

import "github.com/sst-elements/merlin/events"

// PortState classifies a router port by what it connects to.
type PortState int

// Port states a topology can report for one of its ports.
const (
	Unconnected PortState = iota
	RouterToRouter
	RouterToNIC
)

// Policy is the contract every topology (single, mesh, hyperx, fattree,
// dragonfly, dragonflylegacy) implements. A router owns exactly one Policy
// and consults it on every packet; the router writes port/credit state, the
// policy only reads it (spec.md §5, "ownership").
type Policy interface {
	// ProcessInput decodes the destination of a just-arrived RoutedEvent and
	// wraps it in a topology-owned InternalEvent, stamping the VC from the
	// request's VN.
	ProcessInput(ev *events.RoutedEvent) *events.InternalEvent

	// Route sets NextPort (and possibly VC) on ev, arriving on inPort/inVC.
	Route(inPort, inVC int, ev *events.InternalEvent)

	// Reroute makes a fresh routing decision for a packet held at an input.
	// Non-adaptive topologies default this to Route.
	Reroute(inPort, inVC int, ev *events.InternalEvent)

	// RouteInitData populates outPorts for an init-phase event, supporting
	// broadcast to events.InitBroadcastAddr.
	RouteInitData(inPort int, ev *events.InternalEvent, outPorts *[]int)

	// ProcessInitDataInput is the init-phase variant of ProcessInput.
	ProcessInitDataInput(ev *events.RoutedEvent) *events.InternalEvent

	// PortState reports what a given port connects to.
	PortState(port int) PortState

	// ComputeNumVCs returns the total number of VCs the router needs to
	// carry reqVNs virtual networks on this topology.
	ComputeNumVCs(reqVNs int) int

	// EndpointID returns the endpoint id reachable through port, or -1.
	EndpointID(port int) int
}

// CreditInspector is implemented by adaptive topologies that need to see
// downstream output-buffer credit occupancy to make a routing decision
// (hyperx MINA, fattree adaptive, dragonfly adaptive-local).
type CreditInspector interface {
	// SetOutputBufferCreditArray is called once by the router at Build with
	// the router's own output credit storage, indexed port*vcs+vc; the
	// router updates that array in place as credits are spent and returned.
	SetOutputBufferCreditArray(array []int, vcs int)
}

// QueueInspector is implemented by adaptive topologies that inspect
// downstream output-queue occupancy in flits, instead of (or in addition
// to) credits.
type QueueInspector interface {
	SetOutputQueueLengthsArray(array []int, vcs int)
}
