package distmap

import (
	"fmt"

	"github.com/renproject/surge"
)

// bucket deterministically assigns a global index to one of R broker
// buckets. It must be identical on every rank; R is the group size.
func bucket(index int64, groupSize int) int {
	r := int64(groupSize)
	return int(((index % r) + r) % r)
}

// sourceRecord is Phase 1's wire payload for a single entry in a rank's
// source IndexList, routed to the broker for bucket(Index).
type sourceRecord struct {
	Index   int64
	Owner   int32
	SrcSlot int32
}

// SizeHint implements the surge.SizeHinter interface.
func (r sourceRecord) SizeHint() int {
	return surge.SizeHint(r.Index) + surge.SizeHint(r.Owner) + surge.SizeHint(r.SrcSlot)
}

// Marshal implements the surge.Marshaler interface.
func (r sourceRecord) Marshal(buf []byte, rem int) ([]byte, int, error) {
	buf, rem, err := surge.MarshalI64(r.Index, buf, rem)
	if err != nil {
		return buf, rem, fmt.Errorf("marshaling index: %v", err)
	}
	buf, rem, err = surge.MarshalI32(r.Owner, buf, rem)
	if err != nil {
		return buf, rem, fmt.Errorf("marshaling owner: %v", err)
	}
	return surge.MarshalI32(r.SrcSlot, buf, rem)
}

// Unmarshal implements the surge.Unmarshaler interface.
func (r *sourceRecord) Unmarshal(buf []byte, rem int) ([]byte, int, error) {
	buf, rem, err := surge.UnmarshalI64(&r.Index, buf, rem)
	if err != nil {
		return buf, rem, fmt.Errorf("unmarshaling index: %v", err)
	}
	buf, rem, err = surge.UnmarshalI32(&r.Owner, buf, rem)
	if err != nil {
		return buf, rem, fmt.Errorf("unmarshaling owner: %v", err)
	}
	return surge.UnmarshalI32(&r.SrcSlot, buf, rem)
}

const sourceRecordWireSize = 8 + 4 + 4

// destRecord is Phase 1's wire payload for a single entry in a rank's
// destination IndexList, routed to the broker for bucket(Index).
type destRecord struct {
	Index  int64
	Wanter int32
	DstSlot int32
}

// SizeHint implements the surge.SizeHinter interface.
func (r destRecord) SizeHint() int {
	return surge.SizeHint(r.Index) + surge.SizeHint(r.Wanter) + surge.SizeHint(r.DstSlot)
}

// Marshal implements the surge.Marshaler interface.
func (r destRecord) Marshal(buf []byte, rem int) ([]byte, int, error) {
	buf, rem, err := surge.MarshalI64(r.Index, buf, rem)
	if err != nil {
		return buf, rem, fmt.Errorf("marshaling index: %v", err)
	}
	buf, rem, err = surge.MarshalI32(r.Wanter, buf, rem)
	if err != nil {
		return buf, rem, fmt.Errorf("marshaling wanter: %v", err)
	}
	return surge.MarshalI32(r.DstSlot, buf, rem)
}

// Unmarshal implements the surge.Unmarshaler interface.
func (r *destRecord) Unmarshal(buf []byte, rem int) ([]byte, int, error) {
	buf, rem, err := surge.UnmarshalI64(&r.Index, buf, rem)
	if err != nil {
		return buf, rem, fmt.Errorf("unmarshaling index: %v", err)
	}
	buf, rem, err = surge.UnmarshalI32(&r.Wanter, buf, rem)
	if err != nil {
		return buf, rem, fmt.Errorf("unmarshaling wanter: %v", err)
	}
	return surge.UnmarshalI32(&r.DstSlot, buf, rem)
}

const destRecordWireSize = 8 + 4 + 4

// tupleRole tags a Phase 3 wire tuple with which role the recipient plays,
// since the same physical rank can be simultaneously the owner of one
// match and the wanter of another.
type tupleRole uint8

const (
	roleOwner  tupleRole = 0
	roleWanter tupleRole = 1
)

// wireTuple is Phase 3's dissemination payload: a single match between a
// source slot and a destination slot, addressed to whichever rank is meant
// to receive this copy (see Role).
type wireTuple struct {
	Owner   int32
	SrcSlot int32
	Wanter  int32
	DstSlot int32
	Role    tupleRole
}

// SizeHint implements the surge.SizeHinter interface.
func (t wireTuple) SizeHint() int {
	return surge.SizeHint(t.Owner) + surge.SizeHint(t.SrcSlot) +
		surge.SizeHint(t.Wanter) + surge.SizeHint(t.DstSlot) + 1
}

// Marshal implements the surge.Marshaler interface.
func (t wireTuple) Marshal(buf []byte, rem int) ([]byte, int, error) {
	buf, rem, err := surge.MarshalI32(t.Owner, buf, rem)
	if err != nil {
		return buf, rem, fmt.Errorf("marshaling owner: %v", err)
	}
	buf, rem, err = surge.MarshalI32(t.SrcSlot, buf, rem)
	if err != nil {
		return buf, rem, fmt.Errorf("marshaling src slot: %v", err)
	}
	buf, rem, err = surge.MarshalI32(t.Wanter, buf, rem)
	if err != nil {
		return buf, rem, fmt.Errorf("marshaling wanter: %v", err)
	}
	buf, rem, err = surge.MarshalI32(t.DstSlot, buf, rem)
	if err != nil {
		return buf, rem, fmt.Errorf("marshaling dst slot: %v", err)
	}
	return surge.MarshalU8(uint8(t.Role), buf, rem)
}

// Unmarshal implements the surge.Unmarshaler interface.
func (t *wireTuple) Unmarshal(buf []byte, rem int) ([]byte, int, error) {
	buf, rem, err := surge.UnmarshalI32(&t.Owner, buf, rem)
	if err != nil {
		return buf, rem, fmt.Errorf("unmarshaling owner: %v", err)
	}
	buf, rem, err = surge.UnmarshalI32(&t.SrcSlot, buf, rem)
	if err != nil {
		return buf, rem, fmt.Errorf("unmarshaling src slot: %v", err)
	}
	buf, rem, err = surge.UnmarshalI32(&t.Wanter, buf, rem)
	if err != nil {
		return buf, rem, fmt.Errorf("unmarshaling wanter: %v", err)
	}
	buf, rem, err = surge.UnmarshalI32(&t.DstSlot, buf, rem)
	if err != nil {
		return buf, rem, fmt.Errorf("unmarshaling dst slot: %v", err)
	}
	var role uint8
	buf, rem, err = surge.UnmarshalU8(&role, buf, rem)
	t.Role = tupleRole(role)
	return buf, rem, err
}

const wireTupleWireSize = 4 + 4 + 4 + 4 + 1

// unmatchedRecord is the diagnostic Phase 2 emits for a destination index
// with no matching source, and disseminated to every rank so UnmatchedIndex
// is surfaced everywhere the collective was entered (spec P6).
type unmatchedRecord struct {
	Index  int64
	Wanter int32
}

const unmatchedRecordWireSize = 8 + 4

// SizeHint implements the surge.SizeHinter interface.
func (r unmatchedRecord) SizeHint() int {
	return surge.SizeHint(r.Index) + surge.SizeHint(r.Wanter)
}

// Marshal implements the surge.Marshaler interface.
func (r unmatchedRecord) Marshal(buf []byte, rem int) ([]byte, int, error) {
	buf, rem, err := surge.MarshalI64(r.Index, buf, rem)
	if err != nil {
		return buf, rem, fmt.Errorf("marshaling index: %v", err)
	}
	return surge.MarshalI32(r.Wanter, buf, rem)
}

// Unmarshal implements the surge.Unmarshaler interface.
func (r *unmatchedRecord) Unmarshal(buf []byte, rem int) ([]byte, int, error) {
	buf, rem, err := surge.UnmarshalI64(&r.Index, buf, rem)
	if err != nil {
		return buf, rem, fmt.Errorf("unmarshaling index: %v", err)
	}
	return surge.UnmarshalI32(&r.Wanter, buf, rem)
}
