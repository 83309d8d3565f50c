// Package trafficgen implements a synthetic traffic generator endpoint
// (spec.md §4.6): a ticking component that injects packets through a
// linkcontrol.Interface at a configured rate, picking destinations, sizes,
// and inter-packet delays from independent distributions. Grounded on
// original_source/trafficgen/trafficgen.cc, with distributions backed by
// gonum.org/v1/gonum/stat/distuv and per-generator seeding by
// github.com/iti/rngstream.
package trafficgen

import (
	"fmt"

	"github.com/iti/rngstream"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sst-elements/merlin/events"
	"github.com/sst-elements/merlin/linkcontrol"
	"github.com/sst-elements/merlin/sim"
)

// AddressMode selects how a destination id is encoded on the wire.
type AddressMode int

// Address modes a generator can use (spec.md §4.6, "Addressing").
const (
	Sequential AddressMode = iota
	FatTreeIP
)

// Generator produces the next value of a traffic-shaping distribution:
// destination, packet size, or inter-packet delay.
type Generator interface {
	Next() int
}

// uniformGen draws uniformly over [min, max].
type uniformGen struct {
	dist distuv.Uniform
}

// NewUniformGenerator creates a Generator drawing uniformly over
// [min, max], seeded independently of other generators.
func NewUniformGenerator(min, max int, seed uint64) Generator {
	return &uniformGen{dist: distuv.Uniform{
		Min: float64(min), Max: float64(max) + 1,
		Src: rngSource(seed),
	}}
}

func (g *uniformGen) Next() int {
	return int(g.dist.Rand())
}

// hotSpotGen sends most draws to a single target, the rest uniform over
// [min, max).
type hotSpotGen struct {
	min, max int
	target   int
	prob     float64
	uniform  distuv.Uniform
	coin     distuv.Uniform
}

// NewHotSpotGenerator creates a Generator that returns target with
// probability targetProb, otherwise a uniform draw over [min, max).
func NewHotSpotGenerator(min, max, target int, targetProb float64, seed uint64) Generator {
	return &hotSpotGen{
		min: min, max: max, target: target, prob: targetProb,
		uniform: distuv.Uniform{Min: float64(min), Max: float64(max), Src: rngSource(seed)},
		coin:    distuv.Uniform{Min: 0, Max: 1, Src: rngSource(seed + 1)},
	}
}

func (g *hotSpotGen) Next() int {
	if g.coin.Rand() < g.prob {
		return g.target
	}

	return int(g.uniform.Rand())
}

// normalGen draws from a normal distribution, clamped to [min, max].
type normalGen struct {
	min, max int
	dist     distuv.Normal
}

// NewNormalGenerator creates a Generator drawing from Normal(mean, sigma),
// clamped to [min, max].
func NewNormalGenerator(min, max int, mean, sigma float64, seed uint64) Generator {
	return &normalGen{min: min, max: max, dist: distuv.Normal{
		Mu: mean, Sigma: sigma, Src: rngSource(seed),
	}}
}

func (g *normalGen) Next() int {
	v := int(g.dist.Rand())
	if v < g.min {
		return g.min
	}
	if v > g.max {
		return g.max
	}

	return v
}

// exponentialGen draws from an exponential distribution.
type exponentialGen struct {
	dist distuv.Exponential
}

// NewExponentialGenerator creates a Generator drawing from
// Exponential(lambda).
func NewExponentialGenerator(lambda float64, seed uint64) Generator {
	return &exponentialGen{dist: distuv.Exponential{Rate: lambda, Src: rngSource(seed)}}
}

func (g *exponentialGen) Next() int {
	return int(g.dist.Rand())
}

// binomialGen draws from a binomial distribution, offset by min; the
// result is not clamped to any maximum.
type binomialGen struct {
	min  int
	dist distuv.Binomial
}

// NewBinomialGenerator creates a Generator drawing Binomial(trials, p),
// offset by min.
func NewBinomialGenerator(min, _ int, trials int, prob float64, seed uint64) Generator {
	return &binomialGen{min: min, dist: distuv.Binomial{
		N: float64(trials), P: prob, Src: rngSource(seed),
	}}
}

func (g *binomialGen) Next() int {
	return g.min + int(g.dist.Rand())
}

// nearestNeighborGen sends every packet to one of the 6 grid-neighbors
// (±1 in each of x, y, z) of this generator's position on a 3D torus,
// chosen uniformly.
type nearestNeighborGen struct {
	id               int
	maxX, maxY, maxZ int
	pick             distuv.Uniform
}

// NewNearestNeighborGenerator creates a Generator that addresses one of
// the 6 grid-neighbors of id on a maxX x maxY x maxZ 3D torus.
func NewNearestNeighborGenerator(id, maxX, maxY, maxZ int, seed uint64) Generator {
	return &nearestNeighborGen{
		id: id, maxX: maxX, maxY: maxY, maxZ: maxZ,
		pick: distuv.Uniform{Min: 0, Max: 6, Src: rngSource(seed)},
	}
}

func (g *nearestNeighborGen) Next() int {
	x := g.id % g.maxX
	y := (g.id / g.maxX) % g.maxY
	z := g.id / (g.maxX * g.maxY)

	switch int(g.pick.Rand()) {
	case 0:
		x = (x + 1) % g.maxX
	case 1:
		x = (x - 1 + g.maxX) % g.maxX
	case 2:
		y = (y + 1) % g.maxY
	case 3:
		y = (y - 1 + g.maxY) % g.maxY
	case 4:
		z = (z + 1) % g.maxZ
	default:
		z = (z - 1 + g.maxZ) % g.maxZ
	}

	return z*g.maxX*g.maxY + y*g.maxX + x
}

func rngSource(seed uint64) *rngSourceAdapter {
	return &rngSourceAdapter{rng: rngstream.New(fmt.Sprintf("trafficgen.%d", seed))}
}

// rngSourceAdapter adapts rngstream.RngStream to gonum's rand.Source,
// since the pack's distributions expect a math/rand-shaped source and
// the rest of this module standardizes on rngstream for reproducible,
// independent per-component streams.
type rngSourceAdapter struct {
	rng *rngstream.RngStream
}

// Uint64 implements rand.Source.
func (a *rngSourceAdapter) Uint64() uint64 {
	return uint64(a.rng.RandU01() * (1 << 53))
}

// Seed implements rand.Source. It is a no-op since rngstream.RngStream
// manages its own seeding internally.
func (a *rngSourceAdapter) Seed(seed uint64) {}

// FatTreeShape names the fat-tree parameters needed to convert between a
// flat endpoint id and its IP-style address.
type FatTreeShape struct {
	Radix   int
	Loading int
}

// idToIP packs id into the 10.pod.subnet.host scheme spec.md's fat-tree
// addressing table describes.
func idToIP(id int, shape FatTreeShape) int32 {
	edgeSwitch := id / shape.Loading
	pod := edgeSwitch / (shape.Radix / 2)
	subnet := edgeSwitch % (shape.Radix / 2)
	host := 2 + id%shape.Loading

	return int32(10)<<24 | int32(pod)<<16 | int32(subnet)<<8 | int32(host)
}

// Comp is a traffic generator: a TickingComponent that injects packets
// through a linkcontrol.Interface.
type Comp struct {
	*sim.TickingComponent

	id             int64
	numPeers       int
	packetsToSend  uint64
	packetsSent    uint64
	packetsRecd    uint64
	done           bool
	packetDelay    int

	addressMode  AddressMode
	fatTreeShape FatTreeShape

	destGen  Generator
	sizeGen  Generator
	delayGen Generator

	basePacketSizeBits int
	baseDelayTicks     int

	link linkcontrol.Interface

	stats StatRegistry
}

// StatRegistry names the counters a Comp reports through a
// sim.StatRegistry.
type StatRegistry struct {
	PacketsSent     sim.Counter
	PacketsReceived sim.Counter
}

// Builder builds a Comp.
type Builder struct {
	engine sim.Engine
	freq   sim.Freq
	name   string

	id       int64
	numPeers int
	link     linkcontrol.Interface

	packetsToSend uint64

	addressMode  AddressMode
	fatTreeShape FatTreeShape

	destGen  Generator
	sizeGen  Generator
	delayGen Generator

	basePacketSizeBits int
	baseDelayTicks     int

	stats sim.StatRegistry
}

// WithEngine sets the discrete-event engine driving the component.
func (b Builder) WithEngine(e sim.Engine) Builder {
	b.engine = e
	return b
}

// WithFreq sets the tick frequency, i.e. the message rate.
func (b Builder) WithFreq(f sim.Freq) Builder {
	b.freq = f
	return b
}

// WithName sets the component name.
func (b Builder) WithName(name string) Builder {
	b.name = name
	return b
}

// WithEndpointID sets this generator's own endpoint id.
func (b Builder) WithEndpointID(id int64) Builder {
	b.id = id
	return b
}

// WithNumPeers sets the number of endpoints in the network.
func (b Builder) WithNumPeers(n int) Builder {
	b.numPeers = n
	return b
}

// WithLink sets the link controller packets are sent and received
// through. Required.
func (b Builder) WithLink(link linkcontrol.Interface) Builder {
	b.link = link
	return b
}

// WithPacketsToSend sets how many packets this generator sends before
// going idle.
func (b Builder) WithPacketsToSend(n uint64) Builder {
	b.packetsToSend = n
	return b
}

// WithAddressMode sets how destination ids are encoded on the wire.
func (b Builder) WithAddressMode(m AddressMode, shape FatTreeShape) Builder {
	b.addressMode = m
	b.fatTreeShape = shape
	return b
}

// WithDestinationGenerator sets the distribution destinations are drawn
// from. Required.
func (b Builder) WithDestinationGenerator(g Generator) Builder {
	b.destGen = g
	return b
}

// WithSizeGenerator sets the distribution packet sizes are drawn from.
// When nil, every packet uses basePacketSizeBits.
func (b Builder) WithSizeGenerator(g Generator, basePacketSizeBits int) Builder {
	b.sizeGen = g
	b.basePacketSizeBits = basePacketSizeBits
	return b
}

// WithDelayGenerator sets the distribution inter-packet delays are drawn
// from, in ticks. When nil, every gap uses baseDelayTicks.
func (b Builder) WithDelayGenerator(g Generator, baseDelayTicks int) Builder {
	b.delayGen = g
	b.baseDelayTicks = baseDelayTicks
	return b
}

// WithStats sets the registry statistics are recorded into.
func (b Builder) WithStats(r sim.StatRegistry) Builder {
	b.stats = r
	return b
}

// Build creates the Comp.
func (b Builder) Build() *Comp {
	if b.link == nil {
		panic("trafficgen: link controller is required")
	}
	if b.destGen == nil {
		panic("trafficgen: destination generator is required")
	}
	if b.packetsToSend == 0 {
		b.packetsToSend = 1000
	}
	if b.basePacketSizeBits == 0 {
		b.basePacketSizeBits = 64
	}

	name := b.name
	if name == "" {
		name = fmt.Sprintf("TrafficGen_%d", b.id)
	}

	c := &Comp{
		id:                 b.id,
		numPeers:           b.numPeers,
		packetsToSend:      b.packetsToSend,
		addressMode:        b.addressMode,
		fatTreeShape:       b.fatTreeShape,
		destGen:            b.destGen,
		sizeGen:            b.sizeGen,
		delayGen:           b.delayGen,
		basePacketSizeBits: b.basePacketSizeBits,
		baseDelayTicks:     b.baseDelayTicks,
		link:               b.link,
	}

	if b.stats != nil {
		c.stats = StatRegistry{
			PacketsSent:     b.stats.GetCounter(name + ".PacketsSent"),
			PacketsReceived: b.stats.GetCounter(name + ".PacketsReceived"),
		}
	}

	c.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, c)

	c.link.SetNotifyOnReceive(0, c.armReceive)

	return c
}

func (c *Comp) armReceive() {
	req := c.link.Recv(0)
	if req != nil {
		c.packetsRecd++

		if c.stats.PacketsReceived != nil {
			c.stats.PacketsReceived.Add(1)
		}
	}

	c.link.SetNotifyOnReceive(0, c.armReceive)
}

// Tick sends at most one packet per cycle, once packetDelay cycles of
// spacing have elapsed, stopping once packetsToSend is reached. Grounded
// on trafficgen.cc's clock_handler.
func (c *Comp) Tick() bool {
	if c.done {
		return false
	}

	if c.packetsSent >= c.packetsToSend {
		c.done = true
		return false
	}

	if c.packetDelay > 0 {
		c.packetDelay--
		return true
	}

	size := c.basePacketSizeBits
	if c.sizeGen != nil {
		size = c.sizeGen.Next()
	}

	if !c.link.SpaceToSend(0, size) {
		c.link.SetNotifyOnSend(0, func() { c.TickNow() })
		return true
	}

	dest := c.destGen.Next()

	req := events.RequestBuilder{}.
		WithSrc(c.endpointAddr(int(c.id))).
		WithDst(c.endpointAddr(dest)).
		WithVN(0).
		WithSizeInBits(size).
		WithHeadTail(true, true).
		Build()

	if !c.link.Send(req, 0) {
		return true
	}

	c.packetsSent++

	if c.stats.PacketsSent != nil {
		c.stats.PacketsSent.Add(1)
	}

	c.packetDelay = c.baseDelayTicks
	if c.delayGen != nil {
		c.packetDelay = c.delayGen.Next()
	}

	return true
}

func (c *Comp) endpointAddr(id int) int64 {
	if c.addressMode == FatTreeIP {
		return int64(idToIP(id, c.fatTreeShape))
	}

	return int64(id)
}
