package distmap

import (
	"fmt"

	"github.com/renproject/surge"
)

// PeerLeg is the data exchange with one specific peer in one direction: a
// rank on the other end and the number of elements this leg carries.
type PeerLeg struct {
	PeerRank int
	LegSize  int
}

// SizeHint implements the surge.SizeHinter interface.
func (l PeerLeg) SizeHint() int {
	return surge.SizeHint(int32(l.PeerRank)) + surge.SizeHint(int32(l.LegSize))
}

// Marshal implements the surge.Marshaler interface.
func (l PeerLeg) Marshal(buf []byte, rem int) ([]byte, int, error) {
	buf, rem, err := surge.MarshalI32(int32(l.PeerRank), buf, rem)
	if err != nil {
		return buf, rem, fmt.Errorf("marshaling peer rank: %v", err)
	}
	return surge.MarshalI32(int32(l.LegSize), buf, rem)
}

// Unmarshal implements the surge.Unmarshaler interface.
func (l *PeerLeg) Unmarshal(buf []byte, rem int) ([]byte, int, error) {
	var peerRank, legSize int32
	buf, rem, err := surge.UnmarshalI32(&peerRank, buf, rem)
	if err != nil {
		return buf, rem, fmt.Errorf("unmarshaling peer rank: %v", err)
	}
	buf, rem, err = surge.UnmarshalI32(&legSize, buf, rem)
	if err != nil {
		return buf, rem, fmt.Errorf("unmarshaling leg size: %v", err)
	}
	l.PeerRank = int(peerRank)
	l.LegSize = int(legSize)
	return buf, rem, nil
}

// ExchangeSchedule is the ordered set of legs for one direction (send or
// recv) on one rank.
//
// Peers is sorted by PeerRank ascending. BufferIndices is the
// gather/scatter permutation between the user buffer and the wire buffer:
// on the send side it holds local source slots, on the recv side it holds
// local destination slots. BufferOffsets has length len(Peers)+1; the k-th
// leg occupies BufferIndices[BufferOffsets[k]:BufferOffsets[k+1]].
type ExchangeSchedule struct {
	Peers         []PeerLeg
	BufferSize    int
	BufferIndices []int
	BufferOffsets []int
}

// emptySchedule returns a schedule with no peers and no traffic, used for
// ranks that don't send (or don't receive) anything in a given Map.
func emptySchedule() ExchangeSchedule {
	return ExchangeSchedule{
		Peers:         nil,
		BufferSize:    0,
		BufferIndices: nil,
		BufferOffsets: []int{0},
	}
}

// LegCount returns the number of peers in the schedule.
func (s ExchangeSchedule) LegCount() int { return len(s.Peers) }

// Offset returns the start position within BufferIndices of the i-th leg.
func (s ExchangeSchedule) Offset(i int) int { return s.BufferOffsets[i] }

// buildSchedule sorts groups (keyed by peer rank) into a schedule, given a
// map from peer rank to the ordered buffer-index values for that leg. The
// caller is responsible for having ordered each leg's slice according to
// the tie-break rule (ascending dst_slot, ties broken by ascending owner
// then ascending src_slot) before calling buildSchedule.
func buildSchedule(legsByPeer map[int][]int, peers []int) ExchangeSchedule {
	offsets := make([]int, len(peers)+1)
	var indices []int
	peerLegs := make([]PeerLeg, len(peers))
	for i, peer := range peers {
		leg := legsByPeer[peer]
		peerLegs[i] = PeerLeg{PeerRank: peer, LegSize: len(leg)}
		offsets[i] = len(indices)
		indices = append(indices, leg...)
	}
	offsets[len(peers)] = len(indices)
	return ExchangeSchedule{
		Peers:         peerLegs,
		BufferSize:    len(indices),
		BufferIndices: indices,
		BufferOffsets: offsets,
	}
}

// SizeHint implements the surge.SizeHinter interface.
func (s ExchangeSchedule) SizeHint() int {
	return surge.SizeHint(s.Peers) +
		surge.SizeHint(int32(s.BufferSize)) +
		surge.SizeHint(intsToI32(s.BufferIndices)) +
		surge.SizeHint(intsToI32(s.BufferOffsets))
}

// Marshal implements the surge.Marshaler interface.
func (s ExchangeSchedule) Marshal(buf []byte, rem int) ([]byte, int, error) {
	buf, rem, err := surge.Marshal(s.Peers, buf, rem)
	if err != nil {
		return buf, rem, fmt.Errorf("marshaling peers: %v", err)
	}
	buf, rem, err = surge.MarshalI32(int32(s.BufferSize), buf, rem)
	if err != nil {
		return buf, rem, fmt.Errorf("marshaling buffer size: %v", err)
	}
	buf, rem, err = surge.Marshal(intsToI32(s.BufferIndices), buf, rem)
	if err != nil {
		return buf, rem, fmt.Errorf("marshaling buffer indices: %v", err)
	}
	return surge.Marshal(intsToI32(s.BufferOffsets), buf, rem)
}

// Unmarshal implements the surge.Unmarshaler interface.
func (s *ExchangeSchedule) Unmarshal(buf []byte, rem int) ([]byte, int, error) {
	buf, rem, err := surge.Unmarshal(&s.Peers, buf, rem)
	if err != nil {
		return buf, rem, fmt.Errorf("unmarshaling peers: %v", err)
	}
	var bufferSize int32
	buf, rem, err = surge.UnmarshalI32(&bufferSize, buf, rem)
	if err != nil {
		return buf, rem, fmt.Errorf("unmarshaling buffer size: %v", err)
	}
	s.BufferSize = int(bufferSize)
	var indices, offsets []int32
	buf, rem, err = surge.Unmarshal(&indices, buf, rem)
	if err != nil {
		return buf, rem, fmt.Errorf("unmarshaling buffer indices: %v", err)
	}
	buf, rem, err = surge.Unmarshal(&offsets, buf, rem)
	if err != nil {
		return buf, rem, fmt.Errorf("unmarshaling buffer offsets: %v", err)
	}
	s.BufferIndices = i32ToInts(indices)
	s.BufferOffsets = i32ToInts(offsets)
	return buf, rem, nil
}

func intsToI32(in []int) []int32 {
	out := make([]int32, len(in))
	for i, v := range in {
		out[i] = int32(v)
	}
	return out
}

func i32ToInts(in []int32) []int {
	out := make([]int, len(in))
	for i, v := range in {
		out[i] = int(v)
	}
	return out
}
