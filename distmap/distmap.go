// Package distmap implements the negotiated redistribution plan between a
// source IndexList and a destination IndexList: the three-phase all-to-all
// construction algorithm that is the heart of this module, and the Map type
// that holds its result.
package distmap

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/distdir-go/distdir/distidx"
	"github.com/distdir-go/distdir/distlog"
	"github.com/distdir-go/distdir/distnet"
)

// Map is the negotiated redistribution plan between a source IndexList and
// a destination IndexList over a transport group: send and recv schedules,
// bound to the group they were negotiated over. A Map is immutable and
// read-only once New returns; it may be shared by multiple Exchangers of
// different element types.
type Map struct {
	send   ExchangeSchedule
	recv   ExchangeSchedule
	group  distnet.Transport
	srcLen int
	dstLen int
}

// Send returns this rank's outgoing schedule.
func (m *Map) Send() ExchangeSchedule { return m.send }

// Recv returns this rank's incoming schedule.
func (m *Map) Recv() ExchangeSchedule { return m.recv }

// Group returns the transport this Map was negotiated over.
func (m *Map) Group() distnet.Transport { return m.group }

// SrcLen returns the length of the local source IndexList this Map was
// built from. LevelLift needs this as the stride for expanding send-side
// buffer indices across levels.
func (m *Map) SrcLen() int { return m.srcLen }

// DstLen returns the length of the local destination IndexList this Map
// was built from. LevelLift needs this as the stride for expanding
// recv-side buffer indices across levels.
func (m *Map) DstLen() int { return m.dstLen }

// New negotiates a Map between src (this rank's contribution as a source:
// indices it owns) and dst (this rank's contribution as a destination:
// indices it wants), over transport. It is collective: every rank in the
// group must call New with the same strideHint semantics (stride_hint < 0,
// canonically -1, disables any stride optimization; it is otherwise
// advisory only and never changes the resulting schedules). A rank that
// only sends passes an empty dst; a rank that only receives passes an
// empty src.
//
// New returns *UnmatchedIndexError if any rank's dst contains a global
// index that no rank's src contains — surfaced identically on every rank
// that entered the call. Any transport error is wrapped as
// *distnet.TransportFailure and the call's partial state is discarded
// before returning.
func New(ctx context.Context, src, dst distidx.IndexList, strideHint int, transport distnet.Transport, logger distlog.Logger) (*Map, error) {
	epoch := uuid.New()
	log := logger.With("epoch", epoch.String(), "rank", transport.Rank())
	log.Info("map construction starting", "src_len", src.Len(), "dst_len", dst.Len(), "stride_hint", strideHint)

	groupSize := transport.Size()
	rank := transport.Rank()
	if groupSize <= 0 {
		return nil, fmt.Errorf("%w: group size %d", ErrGroupTooSmall, groupSize)
	}
	if rank < 0 || rank >= groupSize {
		return nil, fmt.Errorf("%w: rank %d not in [0, %d)", ErrGroupInconsistent, rank, groupSize)
	}

	myTuples, unmatchedHere, warnings, err := negotiate(ctx, transport, src, dst, groupSize, rank)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		log.Warn(w.String())
	}

	unmatched, err := disseminateUnmatched(ctx, transport, unmatchedHere, groupSize)
	if err != nil {
		return nil, err
	}
	if len(unmatched) > 0 {
		log.Error("unmatched indices found", "count", len(unmatched))
		return nil, &UnmatchedIndexError{Indices: unmatched}
	}

	send := buildGroupedSchedule(myTuples, roleOwner, func(t wireTuple) int32 { return t.Wanter }, func(t wireTuple) int32 { return t.SrcSlot })
	recv := buildGroupedSchedule(myTuples, roleWanter, func(t wireTuple) int32 { return t.Owner }, func(t wireTuple) int32 { return t.DstSlot })

	log.Info("map construction complete",
		"send_peers", send.LegCount(), "send_buffer_size", send.BufferSize,
		"recv_peers", recv.LegCount(), "recv_buffer_size", recv.BufferSize,
	)

	return &Map{send: send, recv: recv, group: transport, srcLen: src.Len(), dstLen: dst.Len()}, nil
}

// negotiate runs Phases 1-3 up to (but not including) the unmatched-index
// broadcast: it returns the wireTuples every broker disseminated to this
// rank (each tagged with the role this rank plays), this rank's own local unmatched
// diagnostics (destination records its own broker bucket could not match),
// and any DuplicateOwner warnings observed while building the owner map.
func negotiate(ctx context.Context, transport distnet.Transport, src, dst distidx.IndexList, groupSize, rank int) (
	myTuples []wireTuple,
	unmatchedHere []unmatchedRecord,
	warnings []DuplicateOwnerWarning,
	err error,
) {
	// Phase 1: bucket this rank's own src/dst entries, purely local CPU
	// work, so the two streams are partitioned concurrently ahead of the
	// single combined network round that follows.
	var srcByBucket, dstByBucket [][]byte
	var eg errgroup.Group
	eg.Go(func() error {
		srcByBucket = bucketSourceRecords(src, rank, groupSize)
		return nil
	})
	eg.Go(func() error {
		dstByBucket = bucketDestRecords(dst, rank, groupSize)
		return nil
	})
	_ = eg.Wait() // neither goroutine can fail; Wait only synchronizes.

	recvBufs, err := exchangeBucketed(ctx, transport, combinePayloads(srcByBucket, dstByBucket), groupSize)
	if err != nil {
		return nil, nil, nil, err
	}

	// Phase 2: this rank is the broker for bucket == rank. Parse every
	// peer's contribution, build the owner map (lowest rank wins ties),
	// and match destination records against it.
	owners := make(map[int64]sourceRecord)
	var allDst []destRecord
	for peer := 0; peer < groupSize; peer++ {
		srcs, dsts := splitCombinedPayload(recvBufs[peer])
		for _, rec := range srcs {
			existing, ok := owners[rec.Index]
			if !ok {
				owners[rec.Index] = rec
				continue
			}
			winner, loser := existing.Owner, rec.Owner
			if rec.Owner < existing.Owner {
				winner, loser = rec.Owner, existing.Owner
				owners[rec.Index] = rec
			}
			warnings = append(warnings, DuplicateOwnerWarning{
				Index: rec.Index, WinnerRank: int(winner), LoserRank: int(loser),
			})
		}
		allDst = append(allDst, dsts...)
	}

	tuplesByTarget := make(map[int][]wireTuple)
	for _, d := range allDst {
		owner, ok := owners[d.Index]
		if !ok {
			unmatchedHere = append(unmatchedHere, unmatchedRecord{Index: d.Index, Wanter: d.Wanter})
			continue
		}
		tuplesByTarget[int(owner.Owner)] = append(tuplesByTarget[int(owner.Owner)], wireTuple{
			Owner: owner.Owner, SrcSlot: owner.SrcSlot, Wanter: d.Wanter, DstSlot: d.DstSlot, Role: roleOwner,
		})
		tuplesByTarget[int(d.Wanter)] = append(tuplesByTarget[int(d.Wanter)], wireTuple{
			Owner: owner.Owner, SrcSlot: owner.SrcSlot, Wanter: d.Wanter, DstSlot: d.DstSlot, Role: roleWanter,
		})
	}

	// Phase 3a: disseminate match tuples, routed by target rank.
	perTarget := make([][]byte, groupSize)
	for target := 0; target < groupSize; target++ {
		perTarget[target] = marshalTuples(tuplesByTarget[target])
	}
	received, err := exchangeBucketed(ctx, transport, perTarget, groupSize)
	if err != nil {
		return nil, nil, nil, err
	}

	for _, payload := range received {
		tuples, uerr := unmarshalTuples(payload)
		if uerr != nil {
			return nil, nil, nil, fmt.Errorf("distmap: decoding disseminated tuples: %w", uerr)
		}
		myTuples = append(myTuples, tuples...)
	}

	return myTuples, unmatchedHere, warnings, nil
}

// bucketSourceRecords partitions this rank's src IndexList entries into R
// per-bucket wire payloads, per spec §4.2.1 Phase 1.
func bucketSourceRecords(src distidx.IndexList, rank, groupSize int) [][]byte {
	perBucket := make([][]sourceRecord, groupSize)
	for slot := 0; slot < src.Len(); slot++ {
		idx := src.At(slot)
		b := bucket(idx, groupSize)
		perBucket[b] = append(perBucket[b], sourceRecord{Index: idx, Owner: int32(rank), SrcSlot: int32(slot)})
	}
	out := make([][]byte, groupSize)
	for b, recs := range perBucket {
		out[b] = marshalSourceRecords(recs)
	}
	return out
}

// bucketDestRecords partitions this rank's dst IndexList entries into R
// per-bucket wire payloads, per spec §4.2.1 Phase 1.
func bucketDestRecords(dst distidx.IndexList, rank, groupSize int) [][]byte {
	perBucket := make([][]destRecord, groupSize)
	for slot := 0; slot < dst.Len(); slot++ {
		idx := dst.At(slot)
		b := bucket(idx, groupSize)
		perBucket[b] = append(perBucket[b], destRecord{Index: idx, Wanter: int32(rank), DstSlot: int32(slot)})
	}
	out := make([][]byte, groupSize)
	for b, recs := range perBucket {
		out[b] = marshalDestRecords(recs)
	}
	return out
}

func marshalSourceRecords(recs []sourceRecord) []byte {
	buf := make([]byte, 0, len(recs)*sourceRecordWireSize)
	for _, r := range recs {
		buf = appendI64(buf, r.Index)
		buf = appendI32(buf, r.Owner)
		buf = appendI32(buf, r.SrcSlot)
	}
	return buf
}

func marshalDestRecords(recs []destRecord) []byte {
	buf := make([]byte, 0, len(recs)*destRecordWireSize)
	for _, r := range recs {
		buf = appendI64(buf, r.Index)
		buf = appendI32(buf, r.Wanter)
		buf = appendI32(buf, r.DstSlot)
	}
	return buf
}

func marshalTuples(tuples []wireTuple) []byte {
	buf := make([]byte, 0, len(tuples)*wireTupleWireSize)
	for _, t := range tuples {
		buf = appendI32(buf, t.Owner)
		buf = appendI32(buf, t.SrcSlot)
		buf = appendI32(buf, t.Wanter)
		buf = appendI32(buf, t.DstSlot)
		buf = append(buf, byte(t.Role))
	}
	return buf
}

func unmarshalTuples(buf []byte) ([]wireTuple, error) {
	if len(buf)%wireTupleWireSize != 0 {
		return nil, fmt.Errorf("malformed tuple stream: %d bytes not a multiple of %d", len(buf), wireTupleWireSize)
	}
	n := len(buf) / wireTupleWireSize
	tuples := make([]wireTuple, n)
	for i := 0; i < n; i++ {
		off := i * wireTupleWireSize
		tuples[i] = wireTuple{
			Owner:   readI32(buf[off:]),
			SrcSlot: readI32(buf[off+4:]),
			Wanter:  readI32(buf[off+8:]),
			DstSlot: readI32(buf[off+12:]),
			Role:    tupleRole(buf[off+16]),
		}
	}
	return tuples, nil
}

// combinePayloads bundles, for every bucket, a small header (record counts)
// followed by that bucket's source records then its destination records,
// so Phase 1 uses a single network round for both streams.
func combinePayloads(srcByBucket, dstByBucket [][]byte) [][]byte {
	groupSize := len(srcByBucket)
	out := make([][]byte, groupSize)
	for b := 0; b < groupSize; b++ {
		numSrc := int32(len(srcByBucket[b]) / sourceRecordWireSize)
		numDst := int32(len(dstByBucket[b]) / destRecordWireSize)
		buf := make([]byte, 0, 8+len(srcByBucket[b])+len(dstByBucket[b]))
		buf = appendI32(buf, numSrc)
		buf = appendI32(buf, numDst)
		buf = append(buf, srcByBucket[b]...)
		buf = append(buf, dstByBucket[b]...)
		out[b] = buf
	}
	return out
}

func splitCombinedPayload(buf []byte) ([]sourceRecord, []destRecord) {
	if len(buf) < 8 {
		return nil, nil
	}
	numSrc := int(readI32(buf))
	numDst := int(readI32(buf[4:]))
	off := 8
	srcs := make([]sourceRecord, numSrc)
	for i := 0; i < numSrc; i++ {
		srcs[i] = sourceRecord{
			Index:   readI64(buf[off:]),
			Owner:   readI32(buf[off+8:]),
			SrcSlot: readI32(buf[off+12:]),
		}
		off += sourceRecordWireSize
	}
	dsts := make([]destRecord, numDst)
	for i := 0; i < numDst; i++ {
		dsts[i] = destRecord{
			Index:   readI64(buf[off:]),
			Wanter:  readI32(buf[off+8:]),
			DstSlot: readI32(buf[off+12:]),
		}
		off += destRecordWireSize
	}
	return srcs, dsts
}

// exchangeBucketed performs the count-negotiation AllToAll followed by the
// AllToAllV payload exchange that both Phase 1 and Phase 3a need, and
// returns each peer's payload to this rank as a separate slice.
func exchangeBucketed(ctx context.Context, transport distnet.Transport, perPeer [][]byte, groupSize int) ([][]byte, error) {
	sendCounts := make([]int, groupSize)
	sendDispls := make([]int, groupSize)
	var sendBuf []byte
	for p := 0; p < groupSize; p++ {
		sendDispls[p] = len(sendBuf)
		sendBuf = append(sendBuf, perPeer[p]...)
		sendCounts[p] = len(perPeer[p])
	}

	recvCounts, err := transport.AllToAll(ctx, sendCounts)
	if err != nil {
		return nil, err
	}
	recvDispls := make([]int, groupSize)
	total := 0
	for p := 0; p < groupSize; p++ {
		recvDispls[p] = total
		total += recvCounts[p]
	}

	recvBuf, err := transport.AllToAllV(ctx, sendBuf, sendCounts, sendDispls, recvCounts, recvDispls)
	if err != nil {
		return nil, err
	}

	out := make([][]byte, groupSize)
	for p := 0; p < groupSize; p++ {
		out[p] = recvBuf[recvDispls[p] : recvDispls[p]+recvCounts[p]]
	}
	return out, nil
}

// disseminateUnmatched broadcasts every broker's local unmatched
// diagnostics to every rank (an all-to-all-v where every target receives
// the same per-sender payload), so UnmatchedIndex is observed identically
// everywhere (spec P6), and returns the deduplicated, sorted set of
// offending global indices.
func disseminateUnmatched(ctx context.Context, transport distnet.Transport, mine []unmatchedRecord, groupSize int) ([]int64, error) {
	payload := make([]byte, 0, len(mine)*unmatchedRecordWireSize)
	for _, r := range mine {
		payload = appendI64(payload, r.Index)
		payload = appendI32(payload, r.Wanter)
	}

	sendCounts := make([]int, groupSize)
	sendDispls := make([]int, groupSize)
	for p := 0; p < groupSize; p++ {
		sendCounts[p] = len(payload)
		sendDispls[p] = 0
	}

	recvCounts, err := transport.AllToAll(ctx, sendCounts)
	if err != nil {
		return nil, err
	}
	recvDispls := make([]int, groupSize)
	total := 0
	for p := 0; p < groupSize; p++ {
		recvDispls[p] = total
		total += recvCounts[p]
	}

	recvBuf, err := transport.AllToAllV(ctx, payload, sendCounts, sendDispls, recvCounts, recvDispls)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{})
	var indices []int64
	for p := 0; p < groupSize; p++ {
		seg := recvBuf[recvDispls[p] : recvDispls[p]+recvCounts[p]]
		for off := 0; off+unmatchedRecordWireSize <= len(seg); off += unmatchedRecordWireSize {
			idx := readI64(seg[off:])
			if _, ok := seen[idx]; !ok {
				seen[idx] = struct{}{}
				indices = append(indices, idx)
			}
		}
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	return indices, nil
}

// buildGroupedSchedule groups tuples whose Role matches want by peerOf(t),
// sorted within each group by the spec's tie-break rule (ascending
// DstSlot, then ascending Owner, then ascending SrcSlot), and assembles the
// resulting ExchangeSchedule using valueOf(t) as the buffer-index value.
func buildGroupedSchedule(tuples []wireTuple, want tupleRole, peerOf, valueOf func(wireTuple) int32) ExchangeSchedule {
	groups := make(map[int][]wireTuple)
	for _, t := range tuples {
		if t.Role != want {
			continue
		}
		p := int(peerOf(t))
		groups[p] = append(groups[p], t)
	}
	if len(groups) == 0 {
		return emptySchedule()
	}

	peers := make([]int, 0, len(groups))
	for p := range groups {
		peers = append(peers, p)
	}
	sort.Ints(peers)

	legsByPeer := make(map[int][]int, len(groups))
	for _, p := range peers {
		g := groups[p]
		sort.Slice(g, func(i, j int) bool {
			if g[i].DstSlot != g[j].DstSlot {
				return g[i].DstSlot < g[j].DstSlot
			}
			if g[i].Owner != g[j].Owner {
				return g[i].Owner < g[j].Owner
			}
			return g[i].SrcSlot < g[j].SrcSlot
		})
		vals := make([]int, len(g))
		for i, t := range g {
			vals[i] = int(valueOf(t))
		}
		legsByPeer[p] = vals
	}
	return buildSchedule(legsByPeer, peers)
}
