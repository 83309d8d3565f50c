// Package config loads a network description from YAML into the builder
// parameters the topology, linkcontrol, and router packages expect,
// grounded on dcg3-illinois-mrnes-python/mrnes/desc-topo.go's
// file-extension-dispatched load/save pattern.
package config

import (
	"fmt"
	"os"
	"path"

	"gopkg.in/yaml.v3"

	"github.com/sst-elements/merlin/linkcontrol"
	"github.com/sst-elements/merlin/router"
	"github.com/sst-elements/merlin/topology/dragonfly"
	"github.com/sst-elements/merlin/topology/dragonflylegacy"
	"github.com/sst-elements/merlin/topology/fattree"
	"github.com/sst-elements/merlin/topology/hyperx"
	"github.com/sst-elements/merlin/topology/mesh"
	"github.com/sst-elements/merlin/topology/single"
)

// Network is the root of a network description: exactly one of its
// topology-shaped fields should be populated, selected by Topology.
type Network struct {
	Topology string `yaml:"topology"`

	Single          *SingleConfig          `yaml:"single,omitempty"`
	Mesh            *MeshConfig            `yaml:"mesh,omitempty"`
	HyperX          *HyperXConfig          `yaml:"hyperx,omitempty"`
	FatTree         *FatTreeConfig         `yaml:"fattree,omitempty"`
	Dragonfly       *DragonflyConfig       `yaml:"dragonfly,omitempty"`
	DragonflyLegacy *DragonflyLegacyConfig `yaml:"dragonfly_legacy,omitempty"`

	LinkControl LinkControlConfig `yaml:"linkcontrol"`
	Router      RouterConfig      `yaml:"router"`
}

// SingleConfig describes a single-switch network (spec.md §4.3.1).
type SingleConfig struct {
	NumPorts int `yaml:"num_ports"`
}

// MeshConfig describes a mesh network without wraparound links (spec.md
// §4.3.2).
type MeshConfig struct {
	Shape      []int `yaml:"shape"`
	Width      []int `yaml:"width"`
	LocalPorts int   `yaml:"local_ports"`
}

// HyperXConfig describes a HyperX network (spec.md §4.3.3).
type HyperXConfig struct {
	Shape             []int   `yaml:"shape"`
	Width             []int   `yaml:"width"`
	LocalPorts        int     `yaml:"local_ports"`
	Algorithm         string  `yaml:"algorithm"`
	AdaptiveThreshold float64 `yaml:"adaptive_threshold"`
}

// FatTreeLevelConfig describes one level of a fat-tree's down/up port
// counts.
type FatTreeLevelConfig struct {
	Down int `yaml:"down"`
	Up   int `yaml:"up"`
}

// FatTreeConfig describes a fat-tree network (spec.md §4.3.4).
type FatTreeConfig struct {
	Shape             []FatTreeLevelConfig `yaml:"shape"`
	Algorithm         string               `yaml:"algorithm"`
	AdaptiveThreshold float64              `yaml:"adaptive_threshold"`
}

// GlobalLinkEntry names the router and port a dragonfly global route
// slot lands on.
type GlobalLinkEntry struct {
	Router int `yaml:"router"`
	Port   int `yaml:"port"`
}

// DragonflyConfig describes a dragonfly network (spec.md §4.3.5).
type DragonflyConfig struct {
	HostsPerRouter    int     `yaml:"hosts_per_router"`
	RoutersPerGroup   int     `yaml:"routers_per_group"`
	IntergroupPerRtr  int     `yaml:"intergroup_per_router"`
	IntergroupLinks   int     `yaml:"intergroup_links"`
	NumGroups         int     `yaml:"num_groups"`
	Algorithm         string  `yaml:"algorithm"`
	AdaptiveThreshold float64 `yaml:"adaptive_threshold"`
	GlobalRouteMode   string  `yaml:"global_route_mode"`

	// GlobalLinkMap holds, for each group g (0-indexed outer list) and
	// each of that group's IntergroupLinks route slots (0-indexed inner
	// list), the (router, port) pair carrying that route. Mirrors
	// RouteToGroup's (group, routeNumber) -> RouterPortPair shape in
	// topology/dragonfly directly, so loading is a flat double loop.
	GlobalLinkMap [][]GlobalLinkEntry `yaml:"global_link_map"`
}

// DragonflyLegacyConfig describes a legacy (single-global-link)
// dragonfly network (spec.md §4.3.6).
type DragonflyLegacyConfig struct {
	HostsPerRouter   int    `yaml:"hosts_per_router"`
	RoutersPerGroup  int    `yaml:"routers_per_group"`
	Radix            int    `yaml:"radix"`
	IntergroupPerRtr int    `yaml:"intergroup_per_router"`
	NumGroups        int    `yaml:"num_groups"`
	Algorithm        string `yaml:"algorithm"`
}

// LinkControlConfig describes the parameters shared by every endpoint's
// link controller.
type LinkControlConfig struct {
	RequestedVNs int     `yaml:"requested_vns"`
	Checkerboard string  `yaml:"checkerboard"`
	CBFactor     int     `yaml:"cb_factor"`
	FlitSizeBits int     `yaml:"flit_size_bits"`
	LinkBW       float64 `yaml:"link_bw"`
	BufferSize   int     `yaml:"buffer_size"`
}

// RouterConfig describes the parameters shared by every router in the
// network.
type RouterConfig struct {
	RequestedVNs int `yaml:"requested_vns"`
	FlitSizeBits int `yaml:"flit_size_bits"`
	BufferDepth  int `yaml:"buffer_depth"`
}

// Load reads and parses a network description. The format (YAML or
// JSON) is selected by filename extension, matching
// DevExecList.WriteToFile/ReadDevExecList's dispatch convention; only
// YAML is implemented, since nothing in this network description needs
// JSON's wire-interop properties.
func Load(filename string) (*Network, error) {
	ext := path.Ext(filename)
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config: unsupported extension %q, want .yaml or .yml", ext)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", filename, err)
	}

	var n Network
	if err := yaml.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", filename, err)
	}

	return &n, nil
}

// SingleBuilder returns a single.Builder pre-populated from the
// single-switch section.
func (n *Network) SingleBuilder() single.Builder {
	if n.Single == nil {
		panic("config: network has no single section")
	}

	return single.Builder{}.WithNumPorts(n.Single.NumPorts)
}

// MeshBuilder returns a mesh.Builder pre-populated from the mesh
// section, for the router at routerID.
func (n *Network) MeshBuilder(routerID int) mesh.Builder {
	if n.Mesh == nil {
		panic("config: network has no mesh section")
	}

	b := mesh.Builder{}.
		WithRouterID(routerID).
		WithShape(n.Mesh.Shape).
		WithLocalPorts(n.Mesh.LocalPorts)

	if len(n.Mesh.Width) > 0 {
		b = b.WithWidth(n.Mesh.Width)
	}

	return b
}

// HyperXBuilder returns a hyperx.Builder pre-populated from the hyperx
// section, for the router at routerID.
func (n *Network) HyperXBuilder(routerID int) hyperx.Builder {
	if n.HyperX == nil {
		panic("config: network has no hyperx section")
	}

	b := hyperx.Builder{}.
		WithRouterID(routerID).
		WithShape(n.HyperX.Shape).
		WithLocalPorts(n.HyperX.LocalPorts).
		WithAlgorithm(hyperXAlgorithm(n.HyperX.Algorithm)).
		WithAdaptiveThreshold(n.HyperX.AdaptiveThreshold)

	if len(n.HyperX.Width) > 0 {
		b = b.WithWidth(n.HyperX.Width)
	}

	return b
}

func hyperXAlgorithm(name string) hyperx.Algorithm {
	switch name {
	case "dor":
		return hyperx.DOR
	case "dor_nd":
		return hyperx.DORND
	case "min_a":
		return hyperx.MINA
	case "valiant":
		return hyperx.VALIANT
	case "do_al":
		return hyperx.DOAL
	case "vdal":
		return hyperx.VDAL
	default:
		return hyperx.DOR
	}
}

// FatTreeBuilder returns a fattree.Builder pre-populated from the
// fattree section, for the switch at (level, pos).
func (n *Network) FatTreeBuilder(level, pos int) fattree.Builder {
	if n.FatTree == nil {
		panic("config: network has no fattree section")
	}

	shape := make([]fattree.LevelShape, len(n.FatTree.Shape))
	for i, s := range n.FatTree.Shape {
		shape[i] = fattree.LevelShape{Down: s.Down, Up: s.Up}
	}

	alg := fattree.Deterministic
	if n.FatTree.Algorithm == "adaptive" {
		alg = fattree.Adaptive
	}

	return fattree.Builder{}.
		WithShape(shape).
		WithPosition(level, pos).
		WithAlgorithm(alg).
		WithAdaptiveThreshold(n.FatTree.AdaptiveThreshold)
}

// DragonflyParams converts the dragonfly section into a dragonfly.Params.
func (n *Network) DragonflyParams() dragonfly.Params {
	if n.Dragonfly == nil {
		panic("config: network has no dragonfly section")
	}

	d := n.Dragonfly

	return dragonfly.Params{
		HostsPerRouter:   d.HostsPerRouter,
		RoutersPerGroup:  d.RoutersPerGroup,
		IntergroupPerRtr: d.IntergroupPerRtr,
		IntergroupLinks:  d.IntergroupLinks,
		NumGroups:        d.NumGroups,
	}
}

// DragonflyRouteToGroup builds the shared dragonfly.RouteToGroup table
// from the section's global_link_map.
func (n *Network) DragonflyRouteToGroup() *dragonfly.RouteToGroup {
	if n.Dragonfly == nil {
		panic("config: network has no dragonfly section")
	}

	d := n.Dragonfly
	rtg := dragonfly.NewRouteToGroup(d.NumGroups, d.IntergroupLinks)

	for group, routes := range d.GlobalLinkMap {
		for route, entry := range routes {
			rtg.Set(group, route, dragonfly.RouterPortPair{
				Router: entry.Router, Port: entry.Port,
			})
		}
	}

	return rtg
}

// DragonflyBuilder returns a dragonfly.Builder pre-populated from the
// dragonfly section, for the router at (group, router).
func (n *Network) DragonflyBuilder(group, routerID int) dragonfly.Builder {
	alg := dragonfly.Minimal

	switch n.Dragonfly.Algorithm {
	case "valiant":
		alg = dragonfly.Valiant
	case "adaptive_local":
		alg = dragonfly.AdaptiveLocal
	}

	mode := dragonfly.Absolute
	if n.Dragonfly.GlobalRouteMode == "relative" {
		mode = dragonfly.Relative
	}

	return dragonfly.Builder{}.
		WithParams(n.DragonflyParams()).
		WithPosition(group, routerID).
		WithAlgorithm(alg).
		WithAdaptiveThreshold(n.Dragonfly.AdaptiveThreshold).
		WithGlobalRouteMode(mode)
}

// DragonflyLegacyParams converts the dragonfly_legacy section into a
// dragonflylegacy.Params.
func (n *Network) DragonflyLegacyParams() dragonflylegacy.Params {
	if n.DragonflyLegacy == nil {
		panic("config: network has no dragonfly_legacy section")
	}

	d := n.DragonflyLegacy

	return dragonflylegacy.Params{
		HostsPerRouter:   d.HostsPerRouter,
		RoutersPerGroup:  d.RoutersPerGroup,
		Radix:            d.Radix,
		IntergroupPerRtr: d.IntergroupPerRtr,
		NumGroups:        d.NumGroups,
	}
}

// DragonflyLegacyBuilder returns a dragonflylegacy.Builder pre-populated
// from the dragonfly_legacy section, for the router at (group, router).
func (n *Network) DragonflyLegacyBuilder(group, routerID int) dragonflylegacy.Builder {
	alg := dragonflylegacy.Minimal
	if n.DragonflyLegacy.Algorithm == "valiant" {
		alg = dragonflylegacy.Valiant
	}

	return dragonflylegacy.Builder{}.
		WithParams(n.DragonflyLegacyParams()).
		WithPosition(group, routerID).
		WithAlgorithm(alg)
}

// LinkControlBuilder returns a linkcontrol.Builder pre-populated from
// the linkcontrol section.
func (n *Network) LinkControlBuilder() linkcontrol.Builder {
	cb := linkcontrol.Deterministic
	if n.LinkControl.Checkerboard == "round_robin" {
		cb = linkcontrol.RoundRobin
	}

	return linkcontrol.Builder{}.
		WithRequestedVNs(n.LinkControl.RequestedVNs).
		WithCheckerboard(cb, n.LinkControl.CBFactor).
		WithFlitSizeBits(n.LinkControl.FlitSizeBits).
		WithLinkBW(n.LinkControl.LinkBW).
		WithBufferSize(n.LinkControl.BufferSize)
}

// RouterBuilder returns a router.Builder pre-populated from the router
// section.
func (n *Network) RouterBuilder() router.Builder {
	return router.Builder{}.
		WithRequestedVNs(n.Router.RequestedVNs).
		WithFlitSizeBits(n.Router.FlitSizeBits).
		WithBufferDepth(n.Router.BufferDepth)
}
