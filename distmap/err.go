package distmap

import (
	"errors"
	"fmt"
)

var (
	// ErrGroupTooSmall signifies that the transport reported a group size
	// that cannot possibly hold the calling rank.
	ErrGroupTooSmall = errors.New("group too small")

	// ErrGroupInconsistent signifies that the transport's view of the group
	// is inconsistent: New returns it when the reported rank lies outside
	// [0, size). Ranks observing different group sizes are not detected.
	ErrGroupInconsistent = errors.New("group inconsistent")

	// ErrShapeMismatch signifies that a caller-supplied buffer does not
	// have enough room for a schedule's buffer size.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrInvalidLevels signifies that LevelLift was asked to produce zero
	// or a negative number of levels.
	ErrInvalidLevels = errors.New("nlevels must be >= 1")
)

// UnmatchedIndexError signifies that at least one destination index has no
// source owner anywhere in the group. It carries every offending index this
// rank learned about, sorted ascending, so diagnostics are deterministic
// (spec P6: every participating rank observes the same condition).
type UnmatchedIndexError struct {
	Indices []int64
}

func (e *UnmatchedIndexError) Error() string {
	if len(e.Indices) == 1 {
		return fmt.Sprintf("distmap: unmatched index %d: no rank owns it as a source", e.Indices[0])
	}
	return fmt.Sprintf("distmap: %d unmatched indices, first is %d: no rank owns it as a source", len(e.Indices), e.Indices[0])
}

// DuplicateOwnerWarning signifies that the same global index was found in
// more than one rank's source IndexList. The lowest rank wins the tie-break
// and the map remains well-defined. It is a non-fatal diagnostic, logged
// by distlog on the broker rank that observed it; it is never returned as
// an error and is not recorded on the resulting Map, and there is no strict
// mode that makes it fatal.
type DuplicateOwnerWarning struct {
	Index      int64
	WinnerRank int
	LoserRank  int
}

func (w DuplicateOwnerWarning) String() string {
	return fmt.Sprintf(
		"distmap: index %d claimed as source by ranks %d and %d; rank %d wins",
		w.Index, w.WinnerRank, w.LoserRank, w.WinnerRank,
	)
}
