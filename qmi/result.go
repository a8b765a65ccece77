package qmi

import "encoding/binary"

// Result wraps one decoded response's result code and TLV area, grounded on
// the original driver's struct qmi_result and its qmi_result_get_* family.
type Result struct {
	code resultCode
	data []byte
}

// newResult builds a Result from a decoded response frame's TLV area. ok is
// false if the mandatory result-code TLV (type 0x02) is missing or
// malformed, matching the original's treatment of that case as "no result".
func newResult(data []byte) (Result, bool) {
	var rc resultCode
	var found bool

	enumerateTLVs(data, func(typ uint8, value []byte) {
		if found || typ != tlvResultCode {
			return
		}
		if decoded, ok := decodeResultCode(value); ok {
			rc = decoded
			found = true
		}
	})

	if !found {
		return Result{}, false
	}

	return Result{code: rc, data: data}, true
}

// Err returns a *ResultError if the result code indicates failure, nil
// otherwise. Callers that only care whether a request succeeded can check
// this and ignore the rest of the Result.
func (r Result) Err() error {
	if r.code.Result == 0 {
		return nil
	}
	return &ResultError{Code: r.code.Error}
}

// get returns the raw value of the first TLV of the given type, or
// (nil, false) if absent. Type 0 never matches, matching the original's
// rejection of a zero type at the qmi_result_get layer.
func (r Result) get(typ uint8) ([]byte, bool) {
	if typ == 0 {
		return nil, false
	}

	var value []byte
	var found bool

	enumerateTLVs(r.data, func(t uint8, v []byte) {
		if found || t != typ {
			return
		}
		value = v
		found = true
	})

	return value, found
}

// Get returns the raw bytes of the first TLV of the given type.
func (r Result) Get(typ uint8) ([]byte, bool) {
	return r.get(typ)
}

// GetString returns the TLV's value interpreted as a string, with no
// assumption of NUL-termination on the wire (the original strndup()s the
// full TLV length; we just convert the full slice).
func (r Result) GetString(typ uint8) (string, bool) {
	value, ok := r.get(typ)
	if !ok {
		return "", false
	}
	return string(value), true
}

// GetUint8 returns the TLV's value interpreted as a single byte.
func (r Result) GetUint8(typ uint8) (uint8, bool) {
	value, ok := r.get(typ)
	if !ok || len(value) < 1 {
		return 0, false
	}
	return value[0], true
}

// GetInt16 returns the TLV's value interpreted as a little-endian int16.
func (r Result) GetInt16(typ uint8) (int16, bool) {
	value, ok := r.get(typ)
	if !ok || len(value) < 2 {
		return 0, false
	}
	return int16(binary.LittleEndian.Uint16(value)), true
}

// GetUint16 returns the TLV's value interpreted as a little-endian uint16.
func (r Result) GetUint16(typ uint8) (uint16, bool) {
	value, ok := r.get(typ)
	if !ok || len(value) < 2 {
		return 0, false
	}
	return binary.LittleEndian.Uint16(value), true
}

// GetUint32 returns the TLV's value interpreted as a little-endian uint32.
func (r Result) GetUint32(typ uint8) (uint32, bool) {
	value, ok := r.get(typ)
	if !ok || len(value) < 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(value), true
}

// GetUint64 returns the TLV's value interpreted as a little-endian uint64.
func (r Result) GetUint64(typ uint8) (uint64, bool) {
	value, ok := r.get(typ)
	if !ok || len(value) < 8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(value), true
}
