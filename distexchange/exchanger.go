// Package distexchange implements Exchanger, the typed executor that moves
// values between a contiguous input buffer and a contiguous output buffer
// using a Map's negotiated schedule. Exchanger never interprets element
// bytes; it only ever copies ElementType.ByteSize-sized strides according
// to the permutation the Map's schedules describe.
package distexchange

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/distdir-go/distdir/distmap"
	"github.com/distdir-go/distdir/distnet"
)

// HardwareHint selects where an Exchanger's staging buffers live and which
// pack/unpack kernel runs over them. The schedule itself — peer ranks,
// offsets, permutation — is independent of this choice; only the
// allocator and the copy loop change.
type HardwareHint int

const (
	// HOST stages in ordinary process memory and packs/unpacks with plain
	// Go slice copies.
	HOST HardwareHint = iota
	// DEVICE stages in accelerator memory. This module carries no
	// accelerator bindings (out of scope); DEVICE is accepted so callers
	// can thread the hint through their own transport and buffer types,
	// but New returns ErrDeviceUnsupported for it today.
	DEVICE
)

// State is one position in an Exchanger's per-call state machine.
type State int32

const (
	Idle State = iota
	Posting
	Waiting
	Unpacking
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Posting:
		return "posting"
	case Waiting:
		return "waiting"
	case Unpacking:
		return "unpacking"
	default:
		return "unknown"
	}
}

var (
	tagMu       sync.Mutex
	tagCounters = make(map[distnet.Transport]int)
)

// nextTag numbers Exchangers per transport group: the k-th Exchanger
// created on a group gets tag k. Every rank holds its own group handle, so
// ranks that create their Exchangers in the same order agree on each tag.
func nextTag(group distnet.Transport) int {
	tagMu.Lock()
	defer tagMu.Unlock()
	tagCounters[group]++
	return tagCounters[group]
}

// Exchanger binds a Map to a concrete element type and hardware hint and
// allocates the staging buffers Go needs to execute one exchange at a
// time. An Exchanger is not safe for concurrent Go calls; Go enforces this
// with ErrBusy rather than corrupting staging state.
type Exchanger struct {
	m    *distmap.Map
	typ  distnet.ElementType
	hint HardwareHint
	tag  int

	sendStage []byte
	recvStage []byte

	state int32 // atomic, holds a State
}

// New binds m to typ and hint, and allocates staging buffers sized
// send.buffer_size*typ.ByteSize and recv.buffer_size*typ.ByteSize.
func New(m *distmap.Map, typ distnet.ElementType, hint HardwareHint) (*Exchanger, error) {
	if hint == DEVICE {
		return nil, ErrDeviceUnsupported
	}
	return &Exchanger{
		m:         m,
		typ:       typ,
		hint:      hint,
		tag:       nextTag(m.Group()),
		sendStage: make([]byte, m.Send().BufferSize*typ.ByteSize),
		recvStage: make([]byte, m.Recv().BufferSize*typ.ByteSize),
	}, nil
}

// State returns the Exchanger's current position in its IDLE -> POSTING ->
// WAITING -> UNPACKING -> IDLE state machine.
func (e *Exchanger) State() State {
	return State(atomic.LoadInt32(&e.state))
}

// Go executes one exchange: pack srcBuffer into the send staging buffer,
// post the Map's legs as non-blocking transport operations, wait for them
// to complete, and unpack the recv staging buffer into dstBuffer.
// srcBuffer and dstBuffer may alias: packing fully reads srcBuffer before
// any transport traffic is posted, and the wire never touches either
// buffer directly, so an aliased Go produces the same result as packing a
// copy first.
func (e *Exchanger) Go(ctx context.Context, srcBuffer, dstBuffer []byte) error {
	if !atomic.CompareAndSwapInt32(&e.state, int32(Idle), int32(Posting)) {
		return ErrBusy
	}
	defer atomic.StoreInt32(&e.state, int32(Idle))

	send := e.m.Send()
	recv := e.m.Recv()
	byteSize := e.typ.ByteSize

	if want := e.m.SrcLen() * byteSize; len(srcBuffer) < want {
		return shapeError("src", len(srcBuffer), want)
	}
	if want := e.m.DstLen() * byteSize; len(dstBuffer) < want {
		return shapeError("dst", len(dstBuffer), want)
	}

	if err := pack(srcBuffer, e.sendStage, send.BufferIndices, byteSize); err != nil {
		return err
	}

	reqs, err := e.post(ctx, send, recv)
	if err != nil {
		return err
	}

	atomic.StoreInt32(&e.state, int32(Waiting))
	if err := waitAll(ctx, reqs); err != nil {
		return err
	}

	atomic.StoreInt32(&e.state, int32(Unpacking))
	return unpack(e.recvStage, dstBuffer, recv.BufferIndices, byteSize)
}

// post posts one non-blocking send per send leg and one non-blocking recv
// per recv leg, using this Exchanger's tag (unique among the Exchangers
// created on its group) so concurrently posted Exchangers of different
// element types never share a mailbox.
func (e *Exchanger) post(ctx context.Context, send, recv distmap.ExchangeSchedule) ([]distnet.Request, error) {
	group := e.m.Group()
	reqs := make([]distnet.Request, 0, send.LegCount()+recv.LegCount())

	for i, leg := range send.Peers {
		lo, hi := send.Offset(i)*e.typ.ByteSize, send.Offset(i+1)*e.typ.ByteSize
		req, err := group.ISend(ctx, leg.PeerRank, e.tag, e.typ, e.sendStage[lo:hi])
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	for i, leg := range recv.Peers {
		lo, hi := recv.Offset(i)*e.typ.ByteSize, recv.Offset(i+1)*e.typ.ByteSize
		req, err := group.IRecv(ctx, leg.PeerRank, e.tag, e.typ, e.recvStage[lo:hi])
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func waitAll(ctx context.Context, reqs []distnet.Request) error {
	var eg errgroup.Group
	for _, r := range reqs {
		r := r
		eg.Go(func() error { return r.Wait(ctx) })
	}
	return eg.Wait()
}

// pack and unpack are fully local and embarrassingly parallel over k (spec
// §4.4); both split the permutation across a small worker pool rather than
// spawning one goroutine per element.
func pack(src, stage []byte, indices []int, byteSize int) error {
	return stride(len(indices), func(k int) {
		s := indices[k] * byteSize
		copy(stage[k*byteSize:(k+1)*byteSize], src[s:s+byteSize])
	})
}

func unpack(stage, dst []byte, indices []int, byteSize int) error {
	return stride(len(indices), func(k int) {
		d := indices[k] * byteSize
		copy(dst[d:d+byteSize], stage[k*byteSize:(k+1)*byteSize])
	})
}

func stride(n int, fn func(k int)) error {
	if n == 0 {
		return nil
	}
	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for k := 0; k < n; k++ {
			fn(k)
		}
		return nil
	}

	chunk := (n + workers - 1) / workers
	var eg errgroup.Group
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if lo >= n {
			break
		}
		if hi > n {
			hi = n
		}
		eg.Go(func() error {
			for k := lo; k < hi; k++ {
				fn(k)
			}
			return nil
		})
	}
	return eg.Wait()
}
