package distmap

import "encoding/binary"

// These are the fixed-width big-endian helpers used to hand-pack Phase
// 1/3 negotiation payloads: the records are few-field, fixed-size structs
// moved in bulk, so a direct binary.BigEndian encode/decode is simpler and
// allocates less than routing every record through surge's general-purpose
// Marshaler machinery. surge.Marshaler is still implemented on these types
// (record.go) for callers that want to serialize a single record outside
// of the bulk Phase 1/3 exchange, e.g. logging or debugging.

func appendI32(buf []byte, v int32) []byte {
	var bs [4]byte
	binary.BigEndian.PutUint32(bs[:], uint32(v))
	return append(buf, bs[:]...)
}

func appendI64(buf []byte, v int64) []byte {
	var bs [8]byte
	binary.BigEndian.PutUint64(bs[:], uint64(v))
	return append(buf, bs[:]...)
}

func readI32(buf []byte) int32 {
	return int32(binary.BigEndian.Uint32(buf))
}

func readI64(buf []byte) int64 {
	return int64(binary.BigEndian.Uint64(buf))
}
