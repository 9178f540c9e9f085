package distidx_test

import (
	"math/rand"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/distdir-go/distdir/distidx"
)

var _ = Describe("IndexList", func() {
	Context("when constructed from a slice", func() {
		It("should copy the contents rather than alias them", func() {
			raw := []int64{1, 2, 3, 4, 5}
			list := distidx.New(raw)

			raw[0] = 99
			Expect(list.At(0)).To(Equal(int64(1)))
			Expect(list.Len()).To(Equal(5))
		})

		It("should preserve order, since position is the local slot", func() {
			raw := make([]int64, 20)
			for i := range raw {
				raw[i] = rand.Int63n(1000)
			}
			list := distidx.New(raw)

			for i, want := range raw {
				Expect(list.At(i)).To(Equal(want))
			}
		})

		It("should allow duplicate global indices", func() {
			list := distidx.New([]int64{7, 7, 7})
			Expect(list.Len()).To(Equal(3))
			Expect(list.At(0)).To(Equal(list.At(1)))
		})
	})

	Context("when empty", func() {
		It("should be legal and report zero length", func() {
			list := distidx.NewEmpty()
			Expect(list.Len()).To(Equal(0))
			Expect(list.Slice()).To(BeEmpty())
		})
	})

	Context("Slice", func() {
		It("should not let the caller mutate the list's internal state", func() {
			list := distidx.New([]int64{10, 20, 30})
			s := list.Slice()
			s[0] = -1
			Expect(list.At(0)).To(Equal(int64(10)))
		})
	})
})
