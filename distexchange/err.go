package distexchange

import (
	"errors"
	"fmt"
)

// ErrBusy signifies that Go was called on an Exchanger that has a Go call
// already in flight. Two Go calls on the same Exchanger must be serialized
// by the caller (spec: "go is not re-entrant on a single Exchanger"); this
// is the library refusing to silently interleave two in-flight calls.
var ErrBusy = errors.New("exchanger: go already in flight")

// shapeError reports that a user buffer is too small for the schedule it
// is being packed from or unpacked into.
func shapeError(side string, have, want int) error {
	return fmt.Errorf("distexchange: %s buffer has %d bytes, need at least %d: %w", side, have, want, ErrShapeMismatch)
}

// ErrShapeMismatch signifies that a caller-supplied buffer does not have
// enough room for the bound Map's schedule. Detected before any transport
// traffic, per spec §7.
var ErrShapeMismatch = errors.New("shape mismatch")

// ErrDeviceUnsupported signifies that New was asked for a DEVICE hardware
// hint. This module carries no accelerator bindings.
var ErrDeviceUnsupported = errors.New("distexchange: DEVICE hardware hint not supported")
