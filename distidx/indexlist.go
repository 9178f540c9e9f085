// Package distidx defines the rank-local index list: the leaf type that
// every other package in this module builds on.
package distidx

// IndexList is an immutable, rank-local list of global integer indices that
// this process owns in one role (source or destination) of a redistribution.
//
// Position i in the list is the local slot for indices[i] on this rank: the
// slot is what a Map's ExchangeSchedule references, never the global index
// itself. An IndexList imposes no ordering on its contents and tolerates
// duplicates — a rank may request the same global index twice and receive it
// into two distinct local slots.
type IndexList struct {
	indices []int64
}

// New creates an IndexList from a caller-owned slice of global indices. The
// contents are copied; mutating indices after New returns has no effect on
// the returned IndexList.
func New(indices []int64) IndexList {
	cp := make([]int64, len(indices))
	copy(cp, indices)
	return IndexList{indices: cp}
}

// NewEmpty creates an IndexList with zero elements. A rank that does not
// participate in a given role (source or destination) of a redistribution
// passes an empty IndexList for that role.
func NewEmpty() IndexList {
	return IndexList{}
}

// Len returns the number of indices in the list.
func (l IndexList) Len() int {
	return len(l.indices)
}

// At returns the global index stored at local slot i. It panics if i is out
// of range, the same as a slice index out of range.
func (l IndexList) At(i int) int64 {
	return l.indices[i]
}

// Slice returns a copy of the underlying indices in slot order. Callers are
// free to mutate the result; it does not alias the IndexList's state.
func (l IndexList) Slice() []int64 {
	cp := make([]int64, len(l.indices))
	copy(cp, l.indices)
	return cp
}
