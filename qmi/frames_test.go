package qmi

// Helpers for synthesizing already-decoded frames, so demux/service/
// discovery tests can drive Device.handleFrame without a real transport.

func controlTID(encoded []byte) uint8 {
	return encoded[muxHeaderSize+1]
}

func serviceTID(encoded []byte) uint16 {
	return uint16(encoded[muxHeaderSize+1]) | uint16(encoded[muxHeaderSize+2])<<8
}

func deliverControlReply(d *Device, tid uint8, data []byte) {
	d.handleFrame(decodedFrame{
		Mux:         muxHeader{Service: ServiceControl, Client: 0},
		IsControl:   true,
		Type:        controlTypeResponse,
		Transaction: uint16(tid),
		Data:        data,
	})
}

func deliverServiceReply(d *Device, service, clientID uint8, tid uint16, message uint16, data []byte) {
	d.handleFrame(decodedFrame{
		Mux:         muxHeader{Service: service, Client: clientID},
		IsControl:   false,
		Type:        serviceTypeResponse,
		Transaction: tid,
		Message:     message,
		Data:        data,
	})
}

func deliverIndication(d *Device, service, client uint8, message uint16, data []byte) {
	isControl := service == ServiceControl
	typ := uint8(serviceTypeIndication)
	if isControl {
		typ = controlTypeIndication
	}
	d.handleFrame(decodedFrame{
		Mux:       muxHeader{Service: service, Client: client},
		IsControl: isControl,
		Type:      typ,
		Message:   message,
		Data:      data,
	})
}
