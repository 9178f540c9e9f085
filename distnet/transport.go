// Package distnet defines the transport contract that distmap and
// distexchange are built against. The transport itself — a reliable,
// in-order, typed point-to-point layer over a named communicator — is an
// external collaborator per the library's design: this package only
// describes the seam, leaving concrete implementations (an in-memory
// simulation for tests, a TCP-backed one for real deployments) to the
// distnet/simnet and distnet/tcpnet subpackages.
package distnet

import (
	"context"
	"fmt"
)

// ElementType describes a fixed-width element moved across the transport: a
// byte size and a tag the transport can use to pick a wire representation.
// The permutation logic in distmap and distexchange never interprets the
// bytes of an element; it only ever copies ByteSize-sized strides.
type ElementType struct {
	Tag      string
	ByteSize int
}

// The common fixed-width integer and floating-point element types required
// by the library's configuration surface.
var (
	Int8    = ElementType{Tag: "int8", ByteSize: 1}
	Int16   = ElementType{Tag: "int16", ByteSize: 2}
	Int32   = ElementType{Tag: "int32", ByteSize: 4}
	Int64   = ElementType{Tag: "int64", ByteSize: 8}
	Uint8   = ElementType{Tag: "uint8", ByteSize: 1}
	Uint16  = ElementType{Tag: "uint16", ByteSize: 2}
	Uint32  = ElementType{Tag: "uint32", ByteSize: 4}
	Uint64  = ElementType{Tag: "uint64", ByteSize: 8}
	Float32 = ElementType{Tag: "float32", ByteSize: 4}
	Float64 = ElementType{Tag: "float64", ByteSize: 8}
)

// Request is a handle to a posted non-blocking point-to-point operation.
// Wait blocks until the operation completes or ctx is cancelled.
type Request interface {
	Wait(ctx context.Context) error
}

// Transport is the group-communication primitive required from the
// environment (spec §6). It is assumed reliable, in-order, and typed. Every
// method that can observe a peer failure returns a *TransportFailure so
// callers can distinguish it from a local programming error.
type Transport interface {
	// Rank returns this process's identity within the group, in [0, Size()).
	Rank() int

	// Size returns the number of ranks in the group.
	Size() int

	// AllToAll performs a symmetric all-to-all of equal-sized small
	// payloads: sendCounts[p] is the value this rank sends to peer p, and
	// the returned slice's p-th entry is the value peer p sent to this
	// rank. Used for count negotiation ahead of AllToAllV.
	AllToAll(ctx context.Context, sendCounts []int) ([]int, error)

	// AllToAllV performs a vector all-to-all: sendBuf is the concatenation
	// of this rank's per-peer payloads, sendCounts/sendDispls give each
	// peer's byte count and starting offset within sendBuf. recvCounts and
	// recvDispls describe the layout the caller wants the returned buffer
	// assembled into (typically obtained from a prior AllToAll of byte
	// counts). The returned buffer has length recvDispls[Size()-1] +
	// recvCounts[Size()-1] (0 if Size() == 0).
	AllToAllV(ctx context.Context, sendBuf []byte, sendCounts, sendDispls, recvCounts, recvDispls []int) ([]byte, error)

	// ISend posts a non-blocking send of data, typed as typ, to peer. The
	// returned Request completes once the transport has taken ownership of
	// data (data must not be mutated until Wait returns).
	ISend(ctx context.Context, peer int, tag int, typ ElementType, data []byte) (Request, error)

	// IRecv posts a non-blocking receive typed as typ from peer into buf.
	// The returned Request completes once buf has been filled.
	IRecv(ctx context.Context, peer int, tag int, typ ElementType, buf []byte) (Request, error)
}

// TransportFailure wraps any error surfaced by a Transport during a
// collective call or a point-to-point wait. Per spec §7 it is always fatal
// to the call that observed it.
type TransportFailure struct {
	Op  string
	Err error
}

func (e *TransportFailure) Error() string {
	return fmt.Sprintf("transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportFailure) Unwrap() error { return e.Err }

// Fail wraps err as a *TransportFailure tagged with op, the operation that
// observed it. It returns nil if err is nil.
func Fail(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportFailure{Op: op, Err: err}
}
