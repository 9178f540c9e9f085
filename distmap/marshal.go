package distmap

import (
	"fmt"

	"github.com/renproject/surge"
)

// MarshalSchedules encodes this Map's send and recv schedules (but not its
// transport group, which is a live handle with no wire representation) so
// a distnet.Transport implementation that only understands bytes can ship
// a constructed Map to, say, a logging or debugging sidecar without
// re-running the negotiation.
func (m *Map) MarshalSchedules(buf []byte, rem int) ([]byte, int, error) {
	buf, rem, err := surge.Marshal(m.send, buf, rem)
	if err != nil {
		return buf, rem, fmt.Errorf("marshaling send schedule: %v", err)
	}
	return surge.Marshal(m.recv, buf, rem)
}

// UnmarshalSchedules decodes send/recv schedules produced by
// MarshalSchedules into a detached Map that is not bound to any transport
// group; such a Map is only useful for inspection. Its Group is nil and its
// SrcLen and DstLen are zero, and distexchange.New does not check for this.
func UnmarshalSchedules(buf []byte, rem int) (*Map, []byte, int, error) {
	var m Map
	buf, rem, err := surge.Unmarshal(&m.send, buf, rem)
	if err != nil {
		return nil, buf, rem, fmt.Errorf("unmarshaling send schedule: %v", err)
	}
	buf, rem, err = surge.Unmarshal(&m.recv, buf, rem)
	if err != nil {
		return nil, buf, rem, fmt.Errorf("unmarshaling recv schedule: %v", err)
	}
	return &m, buf, rem, nil
}
