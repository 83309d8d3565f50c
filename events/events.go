// Package events defines the tagged event variants that flow between link
// controllers, routers, and bridges: data packets, credit returns,
// topology-internal control, and the init-phase handshake.
package events

import (
	"fmt"
	"math"

	"github.com/sst-elements/merlin/sim"
)

// TraceMode selects how much detail a Request reports to the tracing
// subsystem it travels through.
type TraceMode int

// Trace modes a Request may carry, mirroring SimpleNetwork's trace levels.
const (
	TraceNone TraceMode = iota
	TraceRoutes
	TraceFull
)

// InitBroadcastAddr is the destination id that means "every endpoint",
// valid only during the init phase (spec.md §7, "Broadcast").
const InitBroadcastAddr int64 = -1

// Request is the endpoint-visible unit of data: it is created by an
// endpoint, owned by the link controller until handoff, then by the
// routing fabric, and finally by the receiving endpoint.
type Request struct {
	sim.MsgMeta

	Src, Dst    int64
	VN          int
	SizeInBits  int
	Head, Tail  bool
	Payload     interface{}
	TraceID     int
	TraceMode   TraceMode
}

// Meta returns the message metadata attached to the request.
func (r *Request) Meta() *sim.MsgMeta {
	return &r.MsgMeta
}

// Clone returns a copy of the request with a freshly generated ID.
func (r *Request) Clone() sim.Msg {
	clone := *r
	clone.ID = sim.GetIDGenerator().Generate()

	return &clone
}

// RequestBuilder builds Requests.
type RequestBuilder struct {
	src, dst   int64
	vn         int
	sizeInBits int
	head, tail bool
	payload    interface{}
	traceID    int
	traceMode  TraceMode
}

// WithSrc sets the source endpoint id.
func (b RequestBuilder) WithSrc(src int64) RequestBuilder {
	b.src = src
	return b
}

// WithDst sets the destination endpoint id.
func (b RequestBuilder) WithDst(dst int64) RequestBuilder {
	b.dst = dst
	return b
}

// WithVN sets the virtual network index.
func (b RequestBuilder) WithVN(vn int) RequestBuilder {
	b.vn = vn
	return b
}

// WithSizeInBits sets the size of the request, in bits.
func (b RequestBuilder) WithSizeInBits(bits int) RequestBuilder {
	b.sizeInBits = bits
	return b
}

// WithHeadTail sets the head/tail flags.
func (b RequestBuilder) WithHeadTail(head, tail bool) RequestBuilder {
	b.head = head
	b.tail = tail
	return b
}

// WithPayload sets the opaque payload carried by the request.
func (b RequestBuilder) WithPayload(p interface{}) RequestBuilder {
	b.payload = p
	return b
}

// WithTrace sets the trace id and trace mode.
func (b RequestBuilder) WithTrace(id int, mode TraceMode) RequestBuilder {
	b.traceID = id
	b.traceMode = mode
	return b
}

// Build creates the Request.
func (b RequestBuilder) Build() *Request {
	return &Request{
		MsgMeta:    sim.MsgMeta{ID: sim.GetIDGenerator().Generate()},
		Src:        b.src,
		Dst:        b.dst,
		VN:         b.vn,
		SizeInBits: b.sizeInBits,
		Head:       b.head,
		Tail:       b.tail,
		Payload:    b.payload,
		TraceID:    b.traceID,
		TraceMode:  b.traceMode,
	}
}

// SizeInFlits quantizes bits to whole flits given a flit width.
func SizeInFlits(sizeInBits, flitSizeBits int) int {
	if flitSizeBits <= 0 {
		panic("flit size must be positive")
	}

	n := int(math.Ceil(float64(sizeInBits) / float64(flitSizeBits)))
	if n < 1 {
		n = 1
	}

	return n
}

// RoutedEvent (wire tag PACKET) wraps a Request for in-fabric transport.
type RoutedEvent struct {
	sim.MsgMeta

	Request       *Request
	InjectionTime sim.VTimeInSec
	SizeInFlits   int
}

// Meta returns the message metadata attached to the event.
func (e *RoutedEvent) Meta() *sim.MsgMeta {
	return &e.MsgMeta
}

// Clone returns a copy of the event with a freshly generated ID. The
// wrapped Request is cloned too, since ownership of a RoutedEvent is
// exclusive (Design Note §9: "pass events by move; never alias").
func (e *RoutedEvent) Clone() sim.Msg {
	clone := *e
	clone.ID = sim.GetIDGenerator().Generate()
	clone.Request = e.Request.Clone().(*Request)

	return &clone
}

// RoutedEventBuilder builds RoutedEvents.
type RoutedEventBuilder struct {
	src, dst      sim.RemotePort
	request       *Request
	injectionTime sim.VTimeInSec
	flitSizeBits  int
}

// WithSrc sets the originating port of the event.
func (b RoutedEventBuilder) WithSrc(src sim.RemotePort) RoutedEventBuilder {
	b.src = src
	return b
}

// WithDst sets the destination port of the event.
func (b RoutedEventBuilder) WithDst(dst sim.RemotePort) RoutedEventBuilder {
	b.dst = dst
	return b
}

// WithRequest sets the wrapped request.
func (b RoutedEventBuilder) WithRequest(r *Request) RoutedEventBuilder {
	b.request = r
	return b
}

// WithInjectionTime sets the time the request entered the fabric.
func (b RoutedEventBuilder) WithInjectionTime(t sim.VTimeInSec) RoutedEventBuilder {
	b.injectionTime = t
	return b
}

// WithFlitSizeBits sets the flit width used to quantize the request's size.
func (b RoutedEventBuilder) WithFlitSizeBits(bits int) RoutedEventBuilder {
	b.flitSizeBits = bits
	return b
}

// Build creates the RoutedEvent.
func (b RoutedEventBuilder) Build() *RoutedEvent {
	if b.request == nil {
		panic("routed event requires a request")
	}

	return &RoutedEvent{
		MsgMeta:       sim.MsgMeta{ID: sim.GetIDGenerator().Generate(), Src: b.src, Dst: b.dst},
		Request:       b.request,
		InjectionTime: b.injectionTime,
		SizeInFlits:   SizeInFlits(b.request.SizeInBits, b.flitSizeBits),
	}
}

// InternalEvent is the topology-side envelope around a RoutedEvent,
// produced by a topology's ProcessInput hook and consumed by router output
// control. Ext holds a typed, topology-owned extension (e.g. mesh
// destination-location, dragonfly group/mid-group) instead of a second
// inheritance hierarchy (Design Note §9).
type InternalEvent struct {
	sim.MsgMeta

	Encapsulated  *RoutedEvent
	NextPort      int
	VC            int
	CreditRtnVC   int
	Ext           interface{}
}

// Meta returns the message metadata attached to the event.
func (e *InternalEvent) Meta() *sim.MsgMeta {
	return &e.MsgMeta
}

// Clone returns a copy of the event with a freshly generated ID.
func (e *InternalEvent) Clone() sim.Msg {
	clone := *e
	clone.ID = sim.GetIDGenerator().Generate()
	clone.Encapsulated = e.Encapsulated.Clone().(*RoutedEvent)

	return &clone
}

// CreditEvent (wire tag CREDIT) returns buffer capacity upstream.
type CreditEvent struct {
	sim.MsgMeta

	VC      int
	Credits int
}

// Meta returns the message metadata attached to the event.
func (e *CreditEvent) Meta() *sim.MsgMeta {
	return &e.MsgMeta
}

// Clone returns a copy of the event with a freshly generated ID.
func (e *CreditEvent) Clone() sim.Msg {
	clone := *e
	clone.ID = sim.GetIDGenerator().Generate()

	return &clone
}

// NewCreditEvent creates a CreditEvent from src to dst returning the given
// number of flits of credit on vc.
func NewCreditEvent(src, dst sim.RemotePort, vc, credits int) *CreditEvent {
	return &CreditEvent{
		MsgMeta: sim.MsgMeta{ID: sim.GetIDGenerator().Generate(), Src: src, Dst: dst},
		VC:      vc,
		Credits: credits,
	}
}

// InitCommand enumerates the small command protocol link controllers and
// routers use to negotiate link parameters during the init phase.
type InitCommand int

// Init-phase commands (spec.md §4.1, "Init protocol").
const (
	RequestVNs InitCommand = iota
	SetVCs
	ReportID
	ReportBW
	ReportFlitSize
	ReportPort
)

// InitEvent (wire tag INITIALIZATION) carries one init-phase command.
type InitEvent struct {
	sim.MsgMeta

	Command  InitCommand
	IntValue int
	UAValue  float64
}

// Meta returns the message metadata attached to the event.
func (e *InitEvent) Meta() *sim.MsgMeta {
	return &e.MsgMeta
}

// Clone returns a copy of the event with a freshly generated ID.
func (e *InitEvent) Clone() sim.Msg {
	clone := *e
	clone.ID = sim.GetIDGenerator().Generate()

	return &clone
}

// NewInitEvent creates an InitEvent carrying the given command.
func NewInitEvent(src, dst sim.RemotePort, cmd InitCommand, intValue int) *InitEvent {
	return &InitEvent{
		MsgMeta:  sim.MsgMeta{ID: sim.GetIDGenerator().Generate(), Src: src, Dst: dst},
		Command:  cmd,
		IntValue: intValue,
	}
}

// String renders a command name for diagnostics.
func (c InitCommand) String() string {
	switch c {
	case RequestVNs:
		return "REQUEST_VNS"
	case SetVCs:
		return "SET_VCS"
	case ReportID:
		return "REPORT_ID"
	case ReportBW:
		return "REPORT_BW"
	case ReportFlitSize:
		return "REPORT_FLIT_SIZE"
	case ReportPort:
		return "REPORT_PORT"
	default:
		return fmt.Sprintf("InitCommand(%d)", int(c))
	}
}

// ReorderedRequest is a Request plus a 32-bit sequence number, used by the
// reorder link controller to recover in-order delivery on top of
// round-robin checker-boarding. Sequence numbers are strictly monotonic
// per (src, dst); 32-bit wraparound is a declared limitation (spec.md §3),
// not handled here.
type ReorderedRequest struct {
	sim.MsgMeta

	Req *Request
	Seq uint32
}

// Meta returns the message metadata attached to the request.
func (r *ReorderedRequest) Meta() *sim.MsgMeta {
	return &r.MsgMeta
}

// Clone returns a copy of the request with a freshly generated ID.
func (r *ReorderedRequest) Clone() sim.Msg {
	clone := *r
	clone.ID = sim.GetIDGenerator().Generate()
	clone.Req = r.Req.Clone().(*Request)

	return &clone
}
