package distmap

import "github.com/distdir-go/distdir/distnet"

// FromLiftedSchedules constructs a Map directly from already-computed
// schedules, bound to the same transport group they were derived from. It
// is the only way to build a Map outside of New, and exists so LevelLift
// (a pure local transform living in its own package) can assemble its
// result without reimplementing Map's internal shape.
func FromLiftedSchedules(send, recv ExchangeSchedule, group distnet.Transport, srcLen, dstLen int) *Map {
	return &Map{send: send, recv: recv, group: group, srcLen: srcLen, dstLen: dstLen}
}
