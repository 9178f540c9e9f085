package distmap_test

import (
	"context"
	"sync"

	ginkgo "github.com/onsi/ginkgo"

	"github.com/distdir-go/distdir/distidx"
	"github.com/distdir-go/distdir/distlog"
	"github.com/distdir-go/distdir/distmap"
	"github.com/distdir-go/distdir/distnet/simnet"
)

// mapResult is one rank's outcome from a collective distmap.New call.
type mapResult struct {
	m   *distmap.Map
	err error
}

// buildMaps runs distmap.New concurrently across every rank of a fresh Hub,
// one goroutine per rank, and returns every rank's result in rank order.
func buildMaps(srcs, dsts []distidx.IndexList, strideHint int) []mapResult {
	n := len(srcs)
	hub := simnet.NewHub(n)
	handles := hub.Handles()

	results := make([]mapResult, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for r := 0; r < n; r++ {
		go func(r int) {
			defer wg.Done()
			m, err := distmap.New(context.Background(), srcs[r], dsts[r], strideHint, handles[r], distlog.Discard())
			results[r] = mapResult{m: m, err: err}
		}(r)
	}
	wg.Wait()
	return results
}

func idx(vals ...int64) distidx.IndexList {
	return distidx.New(vals)
}

func seq(from, to int64) []int64 {
	out := make([]int64, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}

// toPeerLegs copies a schedule's peer legs into the test-local type so
// assertions don't need to import distmap.PeerLeg directly.
func toPeerLegs(s distmap.ExchangeSchedule) []distmapPeerLeg {
	out := make([]distmapPeerLeg, s.LegCount())
	for i, p := range s.Peers {
		out[i] = distmapPeerLeg{PeerRank: p.PeerRank, LegSize: p.LegSize}
	}
	return out
}

// unmatchedIndices calls fn with the offending indices if err is an
// *distmap.UnmatchedIndexError, and fails the test otherwise.
func unmatchedIndices(err error, fn func([]int64)) {
	unmatched, ok := err.(*distmap.UnmatchedIndexError)
	if !ok {
		ginkgo.Fail("expected *distmap.UnmatchedIndexError, got different error type")
		return
	}
	indices := make([]int64, len(unmatched.Indices))
	copy(indices, unmatched.Indices)
	fn(indices)
}
