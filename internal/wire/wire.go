package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const version byte = 1

var (
	ErrCorrupt = errors.New("availcache: corrupt entry")
	magic4     = [...]byte{'A', 'V', 'L', 'C'}
)

// Header carries what the store needs to judge validity without decoding
// the payload.
type Header struct {
	Schema     uint16
	ResolvedAt time.Time // millisecond precision
	TTLDays    uint32
}

const hdrLen = 4 + 1 + 2 + 8 + 4 + 4

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Encode frames payload:
//
//	magic(4) | ver(1) | schema(u16 be) | resolvedAt ms(i64 be) | ttlDays(u32 be) | vlen(u32 be) | payload(vlen)
func Encode(h Header, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(hdrLen + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint16(u2[:], h.Schema)
	buf.Write(u2[:])

	binary.BigEndian.PutUint64(u8[:], uint64(h.ResolvedAt.UnixMilli()))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], h.TTLDays)
	buf.Write(u4[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// DecodeHeader validates framing and returns the header only.
func DecodeHeader(b []byte) (Header, error) {
	h, _, err := Decode(b)
	return h, err
}

// Decode validates framing strictly: trailing bytes are corruption.
func Decode(b []byte) (Header, []byte, error) {
	if len(b) < hdrLen || !hasMagic(b) || b[4] != version {
		return Header{}, nil, ErrCorrupt
	}
	off := 5

	var h Header
	h.Schema = binary.BigEndian.Uint16(b[off : off+2])
	off += 2

	h.ResolvedAt = time.UnixMilli(int64(binary.BigEndian.Uint64(b[off : off+8])))
	off += 8

	h.TTLDays = binary.BigEndian.Uint32(b[off : off+4])
	off += 4

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off {
		return Header{}, nil, ErrCorrupt
	}
	return h, b[off:], nil
}
