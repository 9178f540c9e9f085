package distlift_test

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/distdir-go/distdir/distidx"
	"github.com/distdir-go/distdir/distlift"
	"github.com/distdir-go/distdir/distlog"
	"github.com/distdir-go/distdir/distmap"
	"github.com/distdir-go/distdir/distnet/simnet"
)

func buildMaps(srcs, dsts []distidx.IndexList) []*distmap.Map {
	n := len(srcs)
	hub := simnet.NewHub(n)
	handles := hub.Handles()

	maps := make([]*distmap.Map, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for r := 0; r < n; r++ {
		go func(r int) {
			defer wg.Done()
			m, err := distmap.New(context.Background(), srcs[r], dsts[r], -1, handles[r], distlog.Discard())
			Expect(err).NotTo(HaveOccurred())
			maps[r] = m
		}(r)
	}
	wg.Wait()
	return maps
}

func idx(vals ...int64) distidx.IndexList {
	return distidx.New(vals)
}

var _ = Describe("LevelLift", func() {
	It("should reject a non-positive level count", func() {
		srcs := []distidx.IndexList{idx(0, 1), idx(2, 3)}
		dsts := []distidx.IndexList{idx(0, 2), idx(1, 3)}
		maps := buildMaps(srcs, dsts)

		_, err := distlift.Lift(maps[0], 0)
		Expect(err).To(MatchError(distlift.ErrInvalidLevels))

		_, err = distlift.Lift(maps[0], -3)
		Expect(err).To(MatchError(distlift.ErrInvalidLevels))
	})

	It("should return an equivalent map for nlevels == 1", func() {
		srcs := []distidx.IndexList{idx(0, 1), idx(2, 3)}
		dsts := []distidx.IndexList{idx(0, 2), idx(1, 3)}
		maps := buildMaps(srcs, dsts)

		lifted, err := distlift.Lift(maps[0], 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(lifted.Send()).To(Equal(maps[0].Send()))
		Expect(lifted.Recv()).To(Equal(maps[0].Recv()))
	})

	It("should multiply every leg size by nlevels and expand buffer_indices by the level stride", func() {
		srcs := []distidx.IndexList{idx(0, 1, 2, 3), idx(4, 5, 6, 7)}
		dsts := []distidx.IndexList{idx(0, 1, 4, 5), idx(2, 3, 6, 7)}
		maps := buildMaps(srcs, dsts)

		const nlevels = 3
		lifted, err := distlift.Lift(maps[0], nlevels)
		Expect(err).NotTo(HaveOccurred())

		base := maps[0].Send()
		send := lifted.Send()
		Expect(send.LegCount()).To(Equal(base.LegCount()))

		stride := maps[0].SrcLen()
		for i, leg := range base.Peers {
			liftedLeg := send.Peers[i]
			Expect(liftedLeg.PeerRank).To(Equal(leg.PeerRank))
			Expect(liftedLeg.LegSize).To(Equal(leg.LegSize * nlevels))

			baseVals := base.BufferIndices[base.BufferOffsets[i]:base.BufferOffsets[i+1]]
			liftedVals := send.BufferIndices[send.BufferOffsets[i]:send.BufferOffsets[i+1]]
			Expect(liftedVals).To(HaveLen(len(baseVals) * nlevels))

			for level := 0; level < nlevels; level++ {
				chunk := liftedVals[level*len(baseVals) : (level+1)*len(baseVals)]
				for k, v := range baseVals {
					Expect(chunk[k]).To(Equal(v + level*stride))
				}
			}
		}
	})

	It("should preserve symmetry between a lifted send leg and its peer's lifted recv leg", func() {
		srcs := []distidx.IndexList{idx(0, 1, 2, 3), distidx.NewEmpty()}
		dsts := []distidx.IndexList{distidx.NewEmpty(), idx(3, 2, 1, 0)}
		maps := buildMaps(srcs, dsts)

		const nlevels = 2
		liftedSender, err := distlift.Lift(maps[0], nlevels)
		Expect(err).NotTo(HaveOccurred())
		liftedReceiver, err := distlift.Lift(maps[1], nlevels)
		Expect(err).NotTo(HaveOccurred())

		send := liftedSender.Send()
		recv := liftedReceiver.Recv()
		Expect(send.BufferSize).To(Equal(recv.BufferSize))

		for k := 0; k < send.BufferSize; k++ {
			sentIndex := srcs[0].At(send.BufferIndices[k] % maps[0].SrcLen())
			wantedIndex := dsts[1].At(recv.BufferIndices[k] % maps[1].DstLen())
			Expect(sentIndex).To(Equal(wantedIndex))
		}
	})
})
