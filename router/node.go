package router

import (
	"github.com/sst-elements/merlin/linkcontrol"
	"github.com/sst-elements/merlin/sim"
)

// Node groups a router with the link controllers attached to its local
// (RouterToNIC) ports into one named sim.Domain, so wiring code and
// diagnostics can look up any port belonging to the pair without caring
// whether it physically lives on the router or on one of its endpoints.
// Grounded on sim.Domain's "group of components that are closely
// connected", applied here to the one grouping spec.md §4.4 actually
// needs: a router and the endpoints it terminates.
type Node struct {
	*sim.Domain

	Router    *Comp
	Endpoints []*linkcontrol.Comp
}

// NewNode builds a Node, registering every port of router and of each
// endpoint under the domain, keyed by the port's full (simulation-wide
// unique) name.
func NewNode(name string, router *Comp, endpoints ...*linkcontrol.Comp) *Node {
	n := &Node{
		Domain:    sim.NewDomain(name),
		Router:    router,
		Endpoints: endpoints,
	}

	for _, port := range router.Ports() {
		n.AddPort(string(port.AsRemote()), port)
	}

	for _, ep := range endpoints {
		for _, port := range ep.Ports() {
			n.AddPort(string(port.AsRemote()), port)
		}
	}

	return n
}
