// Package simnet is an in-memory distnet.Transport used by this module's own
// test suites and by callers who want to exercise distmap/distexchange
// inside a single process before wiring up a real transport. It is grounded
// on the same idea as the teacher corpus's in-process network simulators: a
// shared hub that every rank's handle talks to, instead of real sockets.
package simnet

import (
	"context"
	"fmt"
	"sync"

	"github.com/distdir-go/distdir/distnet"
)

// Hub is the shared rendezvous point for a simulated group of n ranks. Every
// rank obtains a *Handle bound to the same Hub via Handle.
type Hub struct {
	n int

	atMu  sync.Mutex
	atCur *allToAllGen

	avMu  sync.Mutex
	avCur *allToAllVGen

	mailMu  sync.Mutex
	mailbox map[mailKey]chan []byte
}

type mailKey struct {
	from, to, tag int
}

// NewHub creates a Hub for a group of n simulated ranks.
func NewHub(n int) *Hub {
	if n <= 0 {
		panic("simnet: hub size must be positive")
	}
	return &Hub{
		n:       n,
		mailbox: make(map[mailKey]chan []byte),
	}
}

// Handle returns the distnet.Transport seen by rank r, 0 <= r < Size().
func (h *Hub) Handle(r int) *Handle {
	if r < 0 || r >= h.n {
		panic(fmt.Sprintf("simnet: rank %d out of range [0, %d)", r, h.n))
	}
	return &Handle{hub: h, rank: r}
}

// Handles returns a Handle for every rank in the group, in rank order —
// a convenience for tests that spin up one goroutine per rank.
func (h *Hub) Handles() []*Handle {
	handles := make([]*Handle, h.n)
	for r := range handles {
		handles[r] = h.Handle(r)
	}
	return handles
}

// Handle is one rank's view of a simulated Hub. It implements
// distnet.Transport.
type Handle struct {
	hub  *Hub
	rank int
}

var _ distnet.Transport = (*Handle)(nil)

// Rank implements distnet.Transport.
func (hd *Handle) Rank() int { return hd.rank }

// Size implements distnet.Transport.
func (hd *Handle) Size() int { return hd.hub.n }

type allToAllGen struct {
	send    [][]int
	arrived int
	done    chan struct{}
	result  [][]int
}

// AllToAll implements distnet.Transport. Every rank must call AllToAll
// exactly once per logical round for the round to complete; the call
// blocks until the last rank arrives.
func (hd *Handle) AllToAll(ctx context.Context, sendCounts []int) ([]int, error) {
	h := hd.hub
	if len(sendCounts) != h.n {
		return nil, fmt.Errorf("simnet: AllToAll sendCounts length %d, want %d", len(sendCounts), h.n)
	}

	h.atMu.Lock()
	if h.atCur == nil {
		h.atCur = &allToAllGen{
			send: make([][]int, h.n),
			done: make(chan struct{}),
		}
	}
	gen := h.atCur
	gen.send[hd.rank] = sendCounts
	gen.arrived++
	if gen.arrived == h.n {
		gen.result = transposeCounts(gen.send, h.n)
		h.atCur = nil
		close(gen.done)
	}
	h.atMu.Unlock()

	select {
	case <-gen.done:
		return gen.result[hd.rank], nil
	case <-ctx.Done():
		return nil, distnet.Fail("AllToAll", ctx.Err())
	}
}

func transposeCounts(send [][]int, n int) [][]int {
	result := make([][]int, n)
	for r := 0; r < n; r++ {
		result[r] = make([]int, n)
		for s := 0; s < n; s++ {
			result[r][s] = send[s][r]
		}
	}
	return result
}

type allToAllVGen struct {
	sendBuf     [][]byte
	sendCounts  [][]int
	sendDispls  [][]int
	recvCounts  [][]int
	recvDispls  [][]int
	arrived     int
	done        chan struct{}
	result      [][]byte
}

// AllToAllV implements distnet.Transport.
func (hd *Handle) AllToAllV(ctx context.Context, sendBuf []byte, sendCounts, sendDispls, recvCounts, recvDispls []int) ([]byte, error) {
	h := hd.hub
	n := h.n
	if len(sendCounts) != n || len(sendDispls) != n || len(recvCounts) != n || len(recvDispls) != n {
		return nil, fmt.Errorf("simnet: AllToAllV count/displ slices must have length %d", n)
	}

	h.avMu.Lock()
	if h.avCur == nil {
		h.avCur = &allToAllVGen{
			sendBuf:    make([][]byte, n),
			sendCounts: make([][]int, n),
			sendDispls: make([][]int, n),
			recvCounts: make([][]int, n),
			recvDispls: make([][]int, n),
			done:       make(chan struct{}),
		}
	}
	gen := h.avCur
	gen.sendBuf[hd.rank] = sendBuf
	gen.sendCounts[hd.rank] = sendCounts
	gen.sendDispls[hd.rank] = sendDispls
	gen.recvCounts[hd.rank] = recvCounts
	gen.recvDispls[hd.rank] = recvDispls
	gen.arrived++
	if gen.arrived == n {
		gen.result = assembleAllToAllV(gen, n)
		h.avCur = nil
		close(gen.done)
	}
	h.avMu.Unlock()

	select {
	case <-gen.done:
		return gen.result[hd.rank], nil
	case <-ctx.Done():
		return nil, distnet.Fail("AllToAllV", ctx.Err())
	}
}

func assembleAllToAllV(gen *allToAllVGen, n int) [][]byte {
	result := make([][]byte, n)
	for r := 0; r < n; r++ {
		total := 0
		for p := 0; p < n; p++ {
			if end := gen.recvDispls[r][p] + gen.recvCounts[r][p]; end > total {
				total = end
			}
		}
		buf := make([]byte, total)
		for p := 0; p < n; p++ {
			count := gen.recvCounts[r][p]
			if count == 0 {
				continue
			}
			src := gen.sendBuf[p][gen.sendDispls[p][r] : gen.sendDispls[p][r]+gen.sendCounts[p][r]]
			copy(buf[gen.recvDispls[r][p]:], src)
		}
		result[r] = buf
	}
	return result
}

func (h *Hub) mailboxFor(from, to, tag int) chan []byte {
	h.mailMu.Lock()
	defer h.mailMu.Unlock()
	key := mailKey{from, to, tag}
	ch, ok := h.mailbox[key]
	if !ok {
		ch = make(chan []byte, 64)
		h.mailbox[key] = ch
	}
	return ch
}

type sendRequest struct{}

func (sendRequest) Wait(ctx context.Context) error { return nil }

// ISend implements distnet.Transport. The simulated send is delivered into
// an internal mailbox immediately; Wait on the returned Request always
// succeeds once posted, since the copy has already happened.
func (hd *Handle) ISend(ctx context.Context, peer int, tag int, typ distnet.ElementType, data []byte) (distnet.Request, error) {
	if peer < 0 || peer >= hd.hub.n {
		return nil, fmt.Errorf("simnet: ISend peer %d out of range", peer)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	ch := hd.hub.mailboxFor(hd.rank, peer, tag)
	select {
	case ch <- cp:
		return sendRequest{}, nil
	case <-ctx.Done():
		return nil, distnet.Fail("ISend", ctx.Err())
	}
}

type recvRequest struct {
	ch  chan []byte
	buf []byte
}

func (r recvRequest) Wait(ctx context.Context) error {
	select {
	case data := <-r.ch:
		if len(data) != len(r.buf) {
			return fmt.Errorf("simnet: recv size mismatch: got %d bytes, buffer has %d", len(data), len(r.buf))
		}
		copy(r.buf, data)
		return nil
	case <-ctx.Done():
		return distnet.Fail("IRecv", ctx.Err())
	}
}

// IRecv implements distnet.Transport.
func (hd *Handle) IRecv(ctx context.Context, peer int, tag int, typ distnet.ElementType, buf []byte) (distnet.Request, error) {
	if peer < 0 || peer >= hd.hub.n {
		return nil, fmt.Errorf("simnet: IRecv peer %d out of range", peer)
	}
	ch := hd.hub.mailboxFor(peer, hd.rank, tag)
	return recvRequest{ch: ch, buf: buf}, nil
}
