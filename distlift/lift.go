// Package distlift derives a higher-rank Map from a base Map by replicating
// its schedule across a contiguous extra dimension of levels. Unlike
// distmap.New, LevelLift involves no transport traffic: it is a pure local
// function over a Map already negotiated by distmap.New.
package distlift

import (
	"fmt"

	"github.com/distdir-go/distdir/distmap"
)

// ErrInvalidLevels signifies that Lift was asked to produce zero or a
// negative number of levels.
var ErrInvalidLevels = distmap.ErrInvalidLevels

// Lift produces a new Map whose logical index space is base x
// {0..nlevels-1}. Each PeerLeg's leg size is multiplied by nlevels; for
// every original buffer-index value s in a leg, the lifted leg carries
// s + L*stride for L = 0..nlevels-1, where stride is the length of the
// local IndexList on that schedule's role side (SrcLen for the send
// schedule, DstLen for the recv schedule). The level dimension is the
// outermost stride in the lifted buffer: level L occupies the local slots
// [L*stride, (L+1)*stride) of the user's buffer, so a single Exchanger.Go
// on the lifted Map is equivalent to nlevels independent Go calls on base
// against the corresponding slices.
func Lift(base *distmap.Map, nlevels int) (*distmap.Map, error) {
	if nlevels < 1 {
		return nil, fmt.Errorf("distlift: %w: got %d", ErrInvalidLevels, nlevels)
	}
	if nlevels == 1 {
		return distmap.FromLiftedSchedules(base.Send(), base.Recv(), base.Group(), base.SrcLen(), base.DstLen()), nil
	}

	send := liftSchedule(base.Send(), nlevels, base.SrcLen())
	recv := liftSchedule(base.Recv(), nlevels, base.DstLen())
	return distmap.FromLiftedSchedules(send, recv, base.Group(), base.SrcLen()*nlevels, base.DstLen()*nlevels), nil
}

func liftSchedule(s distmap.ExchangeSchedule, nlevels, stride int) distmap.ExchangeSchedule {
	peers := make([]distmap.PeerLeg, len(s.Peers))
	offsets := make([]int, len(s.Peers)+1)
	indices := make([]int, 0, len(s.BufferIndices)*nlevels)

	for i, leg := range s.Peers {
		base := s.BufferIndices[s.BufferOffsets[i]:s.BufferOffsets[i+1]]
		offsets[i] = len(indices)
		for level := 0; level < nlevels; level++ {
			for _, v := range base {
				indices = append(indices, v+level*stride)
			}
		}
		peers[i] = distmap.PeerLeg{PeerRank: leg.PeerRank, LegSize: leg.LegSize * nlevels}
	}
	offsets[len(s.Peers)] = len(indices)

	return distmap.ExchangeSchedule{
		Peers:         peers,
		BufferSize:    len(indices),
		BufferIndices: indices,
		BufferOffsets: offsets,
	}
}
