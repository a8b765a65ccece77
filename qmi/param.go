package qmi

import (
	"encoding/binary"
	"errors"
)

// ErrZeroType is returned by Param.Append when type 0 is used; type 0 is
// reserved (it would collide with the implicit "no TLV" case on the wire).
var ErrZeroType = errors.New("qmi: TLV type 0 is reserved")

// ErrNilData is returned when a non-zero length is given with nil data.
var ErrNilData = errors.New("qmi: non-zero length TLV with nil data")

// Param is a growable buffer of concatenated {type, length, value} TLVs
// used to build an outbound message's payload.
type Param struct {
	buf []byte
}

// NewParam returns an empty parameter buffer.
func NewParam() *Param {
	return &Param{}
}

// Append adds one TLV built from value's full length. It is shorthand for
// AppendN(typ, len(value), value) — the common case where the caller's
// slice length already is the intended TLV length.
func (p *Param) Append(typ uint8, value []byte) error {
	return p.AppendN(typ, len(value), value)
}

// AppendN adds one TLV, with length given explicitly and independent of
// value's own length — mirroring the original C API's separate
// (length, data) parameters, where a caller can promise a length the data
// pointer doesn't back. A zero type is rejected. A zero length is a no-op
// success regardless of value (matching the original's permissive "you
// said there's nothing here" case); a non-zero length with nil value is an
// error.
func (p *Param) AppendN(typ uint8, length int, value []byte) error {
	if typ == 0 {
		return ErrZeroType
	}
	if length == 0 {
		return nil
	}
	if value == nil {
		return ErrNilData
	}

	entry := make([]byte, tlvHeaderSize+length)
	entry[0] = typ
	binary.LittleEndian.PutUint16(entry[1:3], uint16(length))
	copy(entry[3:], value)

	p.buf = append(p.buf, entry...)
	return nil
}

// AppendUint8 appends a single-byte TLV.
func (p *Param) AppendUint8(typ uint8, v uint8) error {
	return p.Append(typ, []byte{v})
}

// AppendUint16 appends a little-endian 2-byte TLV.
func (p *Param) AppendUint16(typ uint8, v uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return p.Append(typ, b[:])
}

// AppendUint32 appends a little-endian 4-byte TLV.
func (p *Param) AppendUint32(typ uint8, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return p.Append(typ, b[:])
}

// Bytes returns the encoded TLV area built so far. The returned slice is
// owned by the caller; further Appends do not alias it.
func (p *Param) Bytes() []byte {
	out := make([]byte, len(p.buf))
	copy(out, p.buf)
	return out
}

// NewParamUint8 is a convenience constructor for a parameter buffer holding
// a single uint8 TLV.
func NewParamUint8(typ uint8, v uint8) *Param {
	p := NewParam()
	_ = p.AppendUint8(typ, v)
	return p
}

// NewParamUint16 is a convenience constructor for a parameter buffer holding
// a single uint16 TLV.
func NewParamUint16(typ uint8, v uint16) *Param {
	p := NewParam()
	_ = p.AppendUint16(typ, v)
	return p
}

// NewParamUint32 is a convenience constructor for a parameter buffer holding
// a single uint32 TLV.
func NewParamUint32(typ uint8, v uint32) *Param {
	p := NewParam()
	_ = p.AppendUint32(typ, v)
	return p
}
