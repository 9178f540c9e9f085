package distexchange_test

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/distdir-go/distdir/distexchange"
	"github.com/distdir-go/distdir/distidx"
	"github.com/distdir-go/distdir/distmap"
	"github.com/distdir-go/distdir/distnet"
)

// runExchange builds one Exchanger per rank against maps[r], allocates a
// dst buffer of the right size, and runs Go concurrently across ranks.
func runExchange(maps []*distmap.Map, typ distnet.ElementType, srcBufs [][]byte) ([][]byte, []error) {
	n := len(maps)
	dstBufs := make([][]byte, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for r := 0; r < n; r++ {
		go func(r int) {
			defer wg.Done()
			ex, err := distexchange.New(maps[r], typ, distexchange.HOST)
			if err != nil {
				errs[r] = err
				return
			}
			dst := make([]byte, maps[r].DstLen()*typ.ByteSize)
			errs[r] = ex.Go(context.Background(), srcBufs[r], dst)
			dstBufs[r] = dst
		}(r)
	}
	wg.Wait()
	return dstBufs, errs
}

var _ = Describe("Exchanger", func() {
	It("should move a round-trip payload back to its originating rank unchanged (P1)", func() {
		// A: rank0 owns {0,1}, rank1 owns {2,3}. B: a different partition
		// of the same universe, rank0 owns {0,2}, rank1 owns {1,3}.
		a := []distidx.IndexList{idx(0, 1), idx(2, 3)}
		b := []distidx.IndexList{idx(0, 2), idx(1, 3)}

		value := func(i int64) int64 { return 1000 + i }
		localValues := func(list distidx.IndexList) []int64 {
			out := make([]int64, list.Len())
			for i := range out {
				out[i] = value(list.At(i))
			}
			return out
		}

		mapsAB := buildMaps(a, b)
		srcA := [][]byte{encodeInt64s(localValues(a[0])), encodeInt64s(localValues(a[1]))}
		onB, errs := runExchange(mapsAB, distnet.Int64, srcA)
		for _, err := range errs {
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(decodeInt64s(onB[0])).To(Equal(localValues(b[0])))
		Expect(decodeInt64s(onB[1])).To(Equal(localValues(b[1])))

		mapsBA := buildMaps(b, a)
		onA, errs := runExchange(mapsBA, distnet.Int64, onB)
		for _, err := range errs {
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(decodeInt64s(onA[0])).To(Equal(localValues(a[0])))
		Expect(decodeInt64s(onA[1])).To(Equal(localValues(a[1])))
	})

	It("should produce the same result when src and dst buffers alias (P5)", func() {
		a := []distidx.IndexList{idx(0, 1, 2, 3)}
		b := []distidx.IndexList{idx(3, 2, 1, 0)}
		maps := buildMaps(a, b)

		ex, err := distexchange.New(maps[0], distnet.Int64, distexchange.HOST)
		Expect(err).NotTo(HaveOccurred())

		shared := encodeInt64s([]int64{100, 101, 102, 103})
		Expect(ex.Go(context.Background(), shared, shared)).To(Succeed())
		Expect(decodeInt64s(shared)).To(Equal([]int64{103, 102, 101, 100}))

		ex2, err := distexchange.New(maps[0], distnet.Int64, distexchange.HOST)
		Expect(err).NotTo(HaveOccurred())
		separate := encodeInt64s([]int64{100, 101, 102, 103})
		out := make([]byte, len(separate))
		Expect(ex2.Go(context.Background(), separate, out)).To(Succeed())
		Expect(decodeInt64s(out)).To(Equal([]int64{103, 102, 101, 100}))
	})

	It("should reject undersized buffers before any transport traffic", func() {
		a := []distidx.IndexList{idx(0, 1, 2, 3)}
		b := []distidx.IndexList{idx(3, 2, 1, 0)}
		maps := buildMaps(a, b)

		ex, err := distexchange.New(maps[0], distnet.Int64, distexchange.HOST)
		Expect(err).NotTo(HaveOccurred())

		tooSmall := make([]byte, 8)
		dst := make([]byte, maps[0].DstLen()*8)
		err = ex.Go(context.Background(), tooSmall, dst)
		Expect(err).To(MatchError(distexchange.ErrShapeMismatch))
	})

	It("should reject a DEVICE hardware hint, since no accelerator bindings are carried", func() {
		a := []distidx.IndexList{idx(0)}
		b := []distidx.IndexList{idx(0)}
		maps := buildMaps(a, b)

		_, err := distexchange.New(maps[0], distnet.Int64, distexchange.DEVICE)
		Expect(err).To(MatchError(distexchange.ErrDeviceUnsupported))
	})
})
