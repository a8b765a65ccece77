package qmi

import "encoding/binary"

// Wire layout sizes, little-endian throughout. These mirror the C structs
// `qmi_mux_hdr`/`qmi_control_hdr`/`qmi_service_hdr`/`qmi_message_hdr`/
// `qmi_tlv_hdr` from the original QMI driver, packed with no padding.
const (
	muxHeaderSize     = 6
	controlHeaderSize = 2
	serviceHeaderSize = 3
	messageHeaderSize = 4
	tlvHeaderSize     = 3
)

// muxFrameByte is the one fixed value the mux frame byte may take.
const muxFrameByte = 0x01

// muxFlagsOut / muxFlagsIn are the only legal flag values on the wire.
const (
	muxFlagsOut = 0x00
	muxFlagsIn  = 0x80
)

// Control-header `type` values (CTL transport class).
const (
	controlTypeRequest    = 0x00
	controlTypeResponse   = 0x01
	controlTypeIndication = 0x02
)

// Service-header `type` values (non-CTL transport class). Note these do not
// line up numerically with the control values above.
const (
	serviceTypeRequest    = 0x00
	serviceTypeResponse   = 0x02
	serviceTypeIndication = 0x04
)

// muxHeader is the 6-byte frame envelope common to both transports on the
// mux wire format (QRTR strips it before sending, but still constructs it
// for uniform demux handling).
type muxHeader struct {
	Frame   uint8
	Length  uint16 // total frame size minus 1 (the frame byte itself)
	Flags   uint8
	Service uint8
	Client  uint8
}

func encodeMuxHeader(buf []byte, h muxHeader) {
	buf[0] = h.Frame
	binary.LittleEndian.PutUint16(buf[1:3], h.Length)
	buf[3] = h.Flags
	buf[4] = h.Service
	buf[5] = h.Client
}

func decodeMuxHeader(buf []byte) muxHeader {
	return muxHeader{
		Frame:   buf[0],
		Length:  binary.LittleEndian.Uint16(buf[1:3]),
		Flags:   buf[3],
		Service: buf[4],
		Client:  buf[5],
	}
}

// messageHeader is the {message id, TLV-area length} pair that follows the
// control/service header on every QMI message.
type messageHeader struct {
	Message uint16
	Length  uint16
}

func encodeMessageHeader(buf []byte, h messageHeader) {
	binary.LittleEndian.PutUint16(buf[0:2], h.Message)
	binary.LittleEndian.PutUint16(buf[2:4], h.Length)
}

func decodeMessageHeader(buf []byte) messageHeader {
	return messageHeader{
		Message: binary.LittleEndian.Uint16(buf[0:2]),
		Length:  binary.LittleEndian.Uint16(buf[2:4]),
	}
}

// encodeRequest builds a complete on-wire mux frame for a request: mux
// header, then either the 2-byte control header or 3-byte service header
// depending on whether service == ServiceControl, then the message header,
// then the TLV payload.
//
// tid is the transaction id to stamp into the control/service header; a tid
// of 0 is valid on the wire (callers allocate tids at submission time, not
// at encode time, per the transaction-id scheme in §4.6).
func encodeRequest(service, client uint8, tid uint16, message uint16, params []byte) []byte {
	headroom := serviceHeaderSize
	if service == ServiceControl {
		headroom = controlHeaderSize
	}

	total := muxHeaderSize + headroom + messageHeaderSize + len(params)
	buf := make([]byte, total)

	encodeMuxHeader(buf, muxHeader{
		Frame:   muxFrameByte,
		Length:  uint16(total - 1),
		Flags:   muxFlagsOut,
		Service: service,
		Client:  client,
	})

	if service == ServiceControl {
		buf[muxHeaderSize] = controlTypeRequest
		buf[muxHeaderSize+1] = byte(tid)
	} else {
		buf[muxHeaderSize] = serviceTypeRequest
		binary.LittleEndian.PutUint16(buf[muxHeaderSize+1:muxHeaderSize+3], tid)
	}

	encodeMessageHeader(buf[muxHeaderSize+headroom:], messageHeader{
		Message: message,
		Length:  uint16(len(params)),
	})

	copy(buf[muxHeaderSize+headroom+messageHeaderSize:], params)

	return buf
}

// decodedFrame is a frame that has passed mux-header validation and had its
// control/service header parsed, ready for demultiplexing.
type decodedFrame struct {
	Mux         muxHeader
	IsControl   bool
	Type        uint8 // controlType* or serviceType* depending on IsControl
	Transaction uint16
	Message     uint16
	Data        []byte // TLV area, not including the message header
}

// scanMuxFrames walks buf left-to-right looking for well-formed mux frames.
// Per §4.3, any mismatch (too short, wrong frame byte, wrong flags, frame
// incomplete) discards the *remainder* of the buffer silently — there is no
// cross-call reassembly for the char-device transport. It returns every
// fully decoded frame found before that point.
func scanMuxFrames(buf []byte) []decodedFrame {
	var out []decodedFrame
	offset := 0

	for {
		remaining := buf[offset:]
		if len(remaining) < muxHeaderSize {
			return out
		}

		hdr := decodeMuxHeader(remaining)
		if hdr.Frame != muxFrameByte || hdr.Flags != muxFlagsIn {
			return out
		}

		frameLen := int(hdr.Length) + 1
		if len(remaining) < frameLen {
			return out
		}

		frame := remaining[:frameLen]
		decoded, ok := decodeFrameBody(hdr, frame[muxHeaderSize:])
		if ok {
			out = append(out, decoded)
		}

		offset += frameLen
	}
}

// decodeFrameBody parses the control/service header and message header that
// follow the mux header, given the already-validated mux header.
func decodeFrameBody(hdr muxHeader, body []byte) (decodedFrame, bool) {
	isControl := hdr.Service == ServiceControl

	headroom := serviceHeaderSize
	if isControl {
		headroom = controlHeaderSize
	}

	if len(body) < headroom+messageHeaderSize {
		return decodedFrame{}, false
	}

	var typ uint8
	var tid uint16
	if isControl {
		typ = body[0]
		tid = uint16(body[1])
	} else {
		typ = body[0]
		tid = binary.LittleEndian.Uint16(body[1:3])
	}

	msg := decodeMessageHeader(body[headroom:])
	dataStart := headroom + messageHeaderSize
	dataEnd := dataStart + int(msg.Length)
	if dataEnd > len(body) {
		return decodedFrame{}, false
	}

	return decodedFrame{
		Mux:         hdr,
		IsControl:   isControl,
		Type:        typ,
		Transaction: tid,
		Message:     msg.Message,
		Data:        body[dataStart:dataEnd],
	}, true
}

// enumerateTLVs walks a TLV area invoking fn for each well-formed TLV. Per
// §4.1, enumeration continues while remaining > tlvHeaderSize and advances
// by 3+length each step; a truncated trailing TLV header or value simply
// ends enumeration early.
func enumerateTLVs(data []byte, fn func(typ uint8, value []byte)) {
	offset := 0
	for len(data)-offset > tlvHeaderSize {
		typ := data[offset]
		length := int(binary.LittleEndian.Uint16(data[offset+1 : offset+3]))

		valueStart := offset + tlvHeaderSize
		valueEnd := valueStart + length
		if valueEnd > len(data) {
			return
		}

		fn(typ, data[valueStart:valueEnd])
		offset = valueEnd
	}
}

// resultCodeSize is the fixed size of the standard result-code TLV value.
const resultCodeSize = 4

type resultCode struct {
	Result uint16
	Error  uint16
}

func decodeResultCode(value []byte) (resultCode, bool) {
	if len(value) != resultCodeSize {
		return resultCode{}, false
	}
	return resultCode{
		Result: binary.LittleEndian.Uint16(value[0:2]),
		Error:  binary.LittleEndian.Uint16(value[2:4]),
	}, true
}
