// Package reorderlinkcontrol wraps a linkcontrol.Interface to recover
// in-order delivery on top of round-robin checker-boarding (spec.md
// §4.2). Every send is stamped with a per-(dst,vn) sequence number; the
// receive side holds a per-(src,vn) min-heap and only releases a request
// once it is the lowest unseen sequence number, sacrificing latency for
// ordering. Grounded on original_source/reorderLinkControl.h.
package reorderlinkcontrol

import (
	"container/heap"
	"math"

	"github.com/sst-elements/merlin/events"
	"github.com/sst-elements/merlin/linkcontrol"
)

// sentinelSeq is pushed onto every reorder queue at construction so the
// queue is never empty, matching the original's 0xffffffff guard entry.
const sentinelSeq = math.MaxUint32

// reorderInfo tracks the send/receive sequence state for one peer.
type reorderInfo struct {
	nextSendSeq uint32
	queue       reorderQueue
}

func newReorderInfo() *reorderInfo {
	ri := &reorderInfo{}
	heap.Init(&ri.queue)
	heap.Push(&ri.queue, &events.ReorderedRequest{Seq: sentinelSeq})

	return ri
}

// reorderQueue is a container/heap min-heap ordered by sequence number.
type reorderQueue []*events.ReorderedRequest

func (q reorderQueue) Len() int           { return len(q) }
func (q reorderQueue) Less(i, j int) bool { return q[i].Seq < q[j].Seq }
func (q reorderQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *reorderQueue) Push(x interface{}) {
	*q = append(*q, x.(*events.ReorderedRequest))
}

func (q *reorderQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]

	return item
}

// peerVN identifies one (peer endpoint, virtual network) ordering
// stream: checker-boarding scrambles order independently per VN, so
// sequence numbers and reorder heaps are tracked per stream, not merely
// per peer.
type peerVN struct {
	peer int64
	vn   int
}

// Comp wraps a linkcontrol.Interface with sequence stamping on send and
// heap-ordered release on receive.
type Comp struct {
	inner linkcontrol.Interface

	sendInfo map[peerVN]*reorderInfo // keyed by (dst, vn)
	recvInfo map[peerVN]*reorderInfo // keyed by (src, vn)

	expectedSeq map[peerVN]uint32 // next seq due for release, per (src, vn)

	pending map[int]*events.Request // per vn, the released-but-unread request
}

// Builder builds a Comp.
type Builder struct {
	inner linkcontrol.Interface
}

// WithInner sets the linkcontrol.Interface carrying packets.
func (b Builder) WithInner(inner linkcontrol.Interface) Builder {
	b.inner = inner
	return b
}

// Build creates the Comp.
func (b Builder) Build() *Comp {
	if b.inner == nil {
		panic("reorderlinkcontrol: inner link control is required")
	}

	return &Comp{
		inner:       b.inner,
		sendInfo:    make(map[peerVN]*reorderInfo),
		recvInfo:    make(map[peerVN]*reorderInfo),
		expectedSeq: make(map[peerVN]uint32),
		pending:     make(map[int]*events.Request),
	}
}

func (c *Comp) sendInfoFor(key peerVN) *reorderInfo {
	ri, ok := c.sendInfo[key]
	if !ok {
		ri = newReorderInfo()
		c.sendInfo[key] = ri
	}

	return ri
}

func (c *Comp) recvInfoFor(key peerVN) *reorderInfo {
	ri, ok := c.recvInfo[key]
	if !ok {
		ri = newReorderInfo()
		c.recvInfo[key] = ri
	}

	return ri
}

// Send wraps req in a ReorderedRequest carrying the next sequence number
// for its destination, then forwards the wrapper through the inner link
// control. req itself is untouched (its TraceID and Payload stay exactly
// as the endpoint set them) since it rides inside the wrapper's Req
// field, recovered by drain on the receive side. The sequence is only
// consumed once the inner send actually succeeds, so a capacity
// rejection leaves the stream's numbering unchanged.
func (c *Comp) Send(req *events.Request, vn int) bool {
	ri := c.sendInfoFor(peerVN{peer: req.Dst, vn: vn})
	seq := ri.nextSendSeq

	wrapped := events.RequestBuilder{}.
		WithSrc(req.Src).
		WithDst(req.Dst).
		WithVN(vn).
		WithSizeInBits(req.SizeInBits).
		WithHeadTail(req.Head, req.Tail).
		WithTrace(req.TraceID, req.TraceMode).
		WithPayload(&events.ReorderedRequest{Req: req, Seq: seq}).
		Build()

	if !c.inner.Send(wrapped, vn) {
		return false
	}

	ri.nextSendSeq++

	return true
}

// SpaceToSend delegates to the inner link control.
func (c *Comp) SpaceToSend(vn int, sizeInBits int) bool {
	return c.inner.SpaceToSend(vn, sizeInBits)
}

// RequestToReceive reports whether a request is ready for release on vn,
// pulling newly arrived requests from the inner link control into the
// per-source reorder heaps until none remain in order.
func (c *Comp) RequestToReceive(vn int) bool {
	if _, ok := c.pending[vn]; ok {
		return true
	}

	c.drain(vn)

	_, ok := c.pending[vn]

	return ok
}

// Recv returns the next in-order request on vn, or nil.
func (c *Comp) Recv(vn int) *events.Request {
	if !c.RequestToReceive(vn) {
		return nil
	}

	req := c.pending[vn]
	delete(c.pending, vn)

	return req
}

// drain pulls every request the inner link control is holding on vn into
// its source's reorder heap, unwrapping each ReorderedRequest back to the
// original request Send was given, then, if vn's pending slot is empty,
// releases one request into it: the top of the first source heap found
// whose top holds that source's expected sequence number. Later in-order
// requests stay in their heaps until a following call.
func (c *Comp) drain(vn int) {
	for c.inner.RequestToReceive(vn) {
		wrapped := c.inner.Recv(vn)
		if wrapped == nil {
			break
		}

		rr, ok := wrapped.Payload.(*events.ReorderedRequest)
		if !ok {
			break
		}

		key := peerVN{peer: rr.Req.Src, vn: vn}
		ri := c.recvInfoFor(key)
		heap.Push(&ri.queue, &events.ReorderedRequest{Req: rr.Req, Seq: rr.Seq})
	}

	if _, already := c.pending[vn]; already {
		return
	}

	for key, ri := range c.recvInfo {
		if key.vn != vn {
			continue
		}

		expected := c.expectedSeq[key]

		top := ri.queue[0]
		if top.Seq == sentinelSeq || top.Seq != expected {
			continue
		}

		heap.Pop(&ri.queue)
		c.expectedSeq[key] = expected + 1
		c.pending[vn] = top.Req

		return
	}
}

// SetNotifyOnSend delegates to the inner link control.
func (c *Comp) SetNotifyOnSend(vn int, fn func()) {
	c.inner.SetNotifyOnSend(vn, fn)
}

// SetNotifyOnReceive delegates to the inner link control.
func (c *Comp) SetNotifyOnReceive(vn int, fn func()) {
	c.inner.SetNotifyOnReceive(vn, fn)
}

// IsNetworkInitialized delegates to the inner link control.
func (c *Comp) IsNetworkInitialized() bool {
	return c.inner.IsNetworkInitialized()
}

// GetEndpointID delegates to the inner link control.
func (c *Comp) GetEndpointID() int64 {
	return c.inner.GetEndpointID()
}

// GetLinkBW delegates to the inner link control.
func (c *Comp) GetLinkBW() float64 {
	return c.inner.GetLinkBW()
}
