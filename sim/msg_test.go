package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("GeneralRsp", func() {
	It("builds a response carrying its originating request", func() {
		req := &GeneralRsp{MsgMeta: MsgMeta{ID: "req1"}}

		rsp := GeneralRspBuilder{}.
			WithSrc(RemotePort("A.Port")).
			WithDst(RemotePort("B.Port")).
			WithTrafficBytes(64).
			WithOriginalReq(req).
			Build()

		Expect(rsp.Meta().Src).To(Equal(RemotePort("A.Port")))
		Expect(rsp.Meta().Dst).To(Equal(RemotePort("B.Port")))
		Expect(rsp.Meta().TrafficBytes).To(Equal(64))
		Expect(rsp.GetRspTo()).To(Equal("req1"))
	})

	It("clones with a fresh ID but identical routing", func() {
		rsp := GeneralRspBuilder{}.
			WithSrc(RemotePort("A.Port")).
			WithDst(RemotePort("B.Port")).
			Build()

		clone := rsp.Clone().(*GeneralRsp)

		Expect(clone.ID).NotTo(Equal(rsp.ID))
		Expect(clone.Meta().Src).To(Equal(rsp.Meta().Src))
		Expect(clone.Meta().Dst).To(Equal(rsp.Meta().Dst))
	})
})
