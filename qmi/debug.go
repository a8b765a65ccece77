package qmi

import (
	"fmt"
	"strings"
)

// DebugFunc receives one formatted line at a time: a hexdump line prefixed
// with a direction marker ('>' outbound, '<' inbound, ' ' decoded), or a
// decoded one-line summary of a message. This mirrors the C driver's
// qmi_debug_func_t contract byte-for-byte, kept separate from the
// structured *log.Logger the Device also accepts (see SPEC_FULL.md's
// ambient-stack section on logging).
type DebugFunc func(line string)

// hexdump renders buf as 16-bytes-per-line hex + ASCII, each line prefixed
// with dir, matching the C driver's __hexdump layout.
func hexdump(dir byte, buf []byte, fn DebugFunc) {
	if fn == nil || len(buf) == 0 {
		return
	}

	const hexdigits = "0123456789abcdef"

	for offset := 0; offset < len(buf); offset += 16 {
		end := offset + 16
		if end > len(buf) {
			end = len(buf)
		}
		chunk := buf[offset:end]

		var line strings.Builder
		line.WriteByte(dir)

		for i := 0; i < 16; i++ {
			if i < len(chunk) {
				b := chunk[i]
				line.WriteByte(' ')
				line.WriteByte(hexdigits[b>>4])
				line.WriteByte(hexdigits[b&0xf])
			} else {
				line.WriteString("   ")
			}
		}

		line.WriteString("  ")

		for _, b := range chunk {
			if b >= 0x20 && b < 0x7f {
				line.WriteByte(b)
			} else {
				line.WriteByte('.')
			}
		}

		fn(line.String())
	}
}

// debugMessage decodes the leading mux frame in buf and emits one summary
// line (message id, length, {client,type,tid,len}) plus one line per TLV,
// matching the C driver's __debug_msg.
func debugMessage(dir byte, buf []byte, fn DebugFunc) {
	if fn == nil || len(buf) < muxHeaderSize {
		return
	}

	hdr := decodeMuxHeader(buf)
	frame, ok := decodeFrameBody(hdr, buf[muxHeaderSize:])
	if !ok {
		return
	}

	var typeLabel string
	if frame.IsControl {
		switch frame.Type {
		case controlTypeRequest:
			typeLabel = "_req"
		case controlTypeResponse:
			typeLabel = "_resp"
		case controlTypeIndication:
			typeLabel = "_ind"
		}
	} else {
		switch frame.Type {
		case serviceTypeRequest:
			typeLabel = "_req"
		case serviceTypeResponse:
			typeLabel = "_resp"
		case serviceTypeIndication:
			typeLabel = "_ind"
		}
	}

	fn(fmt.Sprintf("%c   %s%s msg=%d len=%d [client=%d,type=%d,tid=%d,len=%d]",
		dir, serviceTypeString(hdr.Service), typeLabel,
		frame.Message, len(frame.Data),
		hdr.Client, frame.Type, frame.Transaction, hdr.Length))

	if len(frame.Data) == 0 {
		return
	}

	var line strings.Builder
	line.WriteString("      ")
	flush := func() {
		if line.Len() > len("      ") {
			fn(line.String())
			line.Reset()
			line.WriteString("      ")
		}
	}

	enumerateTLVs(frame.Data, func(typ uint8, value []byte) {
		if typ == tlvResultCode {
			if rc, ok := decodeResultCode(value); ok {
				if name := errorString(rc.Error); name != "" {
					fmt.Fprintf(&line, " {type=%d,error=%s}", typ, name)
				} else {
					fmt.Fprintf(&line, " {type=%d,error=%d}", typ, rc.Error)
				}
				if line.Len() > 60 {
					flush()
				}
				return
			}
		}

		fmt.Fprintf(&line, " {type=%d,len=%d}", typ, len(value))
		if line.Len() > 60 {
			flush()
		}
	})

	flush()
}
