package qmi

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// QRTR control packet layout (struct qrtr_ctrl_pkt, uapi/linux/qrtr.h):
// a 4-byte little-endian command followed by a 16-byte union big enough for
// the NEW_SERVER/DEL_SERVER {service, instance, node, port} record and the
// NEW_LOOKUP {service, instance} record (zero-padded to the same size).
const qrtrCtrlPktSize = 20

const (
	qrtrTypeNewServer  = 4
	qrtrTypeDelServer  = 5
	qrtrTypeNewLookup  = 10
)

// qrtrPortCtrl is QRTR_PORT_CTRL: the reserved port every node's control
// service listens on.
const qrtrPortCtrl = 0xfffffffe

const qrtrReadBufSize = 4096

// qrtrTransport speaks the Linux AF_QIPCRTR datagram addressing of §4.4:
// control packets carry service lookup/advertisement events, everything
// else is a service response or indication addressed by (node, port).
type qrtrTransport struct {
	dev *Device
	fd  int

	localNode uint32

	cancelRead  func()
	cancelWrite func()
	writeArmed  bool
}

func newQRTRTransport(dev *Device, nodeID uint16) (*qrtrTransport, int, error) {
	fd, err := unix.Socket(unix.AF_QIPCRTR, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return nil, -1, fmt.Errorf("qmi: socket(AF_QIPCRTR): %w", err)
	}

	sa, err := unix.Getsockname(fd)
	if err != nil {
		_ = unix.Close(fd)
		return nil, -1, fmt.Errorf("qmi: getsockname: %w", err)
	}
	qsa, ok := sa.(*unix.SockaddrQrtr)
	if !ok {
		_ = unix.Close(fd)
		return nil, -1, fmt.Errorf("qmi: unexpected sockaddr type %T for AF_QIPCRTR socket", sa)
	}

	return &qrtrTransport{dev: dev, fd: fd, localNode: uint32(qsa.Node)}, fd, nil
}

func (t *qrtrTransport) startReading() {
	t.cancelRead = t.dev.scheduler.WatchRead(t.fd, t.onReadable)
}

// sendLookup emits a single NEW_LOOKUP control packet, per §4.7's QRTR
// discovery mode.
func (t *qrtrTransport) sendLookup() error {
	pkt := make([]byte, qrtrCtrlPktSize)
	binary.LittleEndian.PutUint32(pkt[0:4], qrtrTypeNewLookup)

	addr := &unix.SockaddrQrtr{Port: qrtrPortCtrl, Node: t.localNode}
	return unix.Sendto(t.fd, pkt, 0, addr)
}

func (t *qrtrTransport) onReadable() {
	buf := make([]byte, qrtrReadBufSize)
	n, from, err := unix.Recvfrom(t.fd, buf, 0)
	if err != nil || n <= 0 {
		return
	}
	data := buf[:n]

	qsa, ok := from.(*unix.SockaddrQrtr)
	if !ok {
		return
	}

	if qsa.Port == qrtrPortCtrl {
		t.handleControlPacket(data)
		return
	}

	t.dispatchServicePacket(qsa, data)
}

// handleControlPacket parses a NEW_SERVER/DEL_SERVER/NEW_LOOKUP-shaped
// packet. Only NEW_SERVER and DEL_SERVER events naming the device's
// target node update the version table; everything else (including our
// own NEW_LOOKUP echoed back, and unrecognized command ids) is ignored.
func (t *qrtrTransport) handleControlPacket(data []byte) {
	if len(data) < qrtrCtrlPktSize {
		return
	}

	cmd := binary.LittleEndian.Uint32(data[0:4])
	service := binary.LittleEndian.Uint32(data[4:8])
	instance := binary.LittleEndian.Uint32(data[8:12])
	node := binary.LittleEndian.Uint32(data[12:16])
	port := binary.LittleEndian.Uint32(data[16:20])

	if uint16(node) != t.dev.nodeID {
		return
	}

	switch cmd {
	case qrtrTypeNewServer:
		t.dev.applyNewServer(uint8(service), uint16(node), uint16(port),
			uint16(instance&0xff), uint16((instance>>8)&0xff))
	case qrtrTypeDelServer:
		t.dev.applyDelServer(uint16(node), uint16(port))
	}
}

// dispatchServicePacket synthesizes a mux header for a service response or
// indication datagram by finding the registered service whose port matches
// the sender's, then decodes and dispatches it exactly as the mux
// transport would.
func (t *qrtrTransport) dispatchServicePacket(from *unix.SockaddrQrtr, data []byte) {
	svc := t.dev.findServiceByPort(uint16(from.Port))
	if svc == nil {
		return
	}

	hdr := muxHeader{Frame: muxFrameByte, Flags: muxFlagsIn, Service: svc.typ, Client: svc.clientID}
	frame, ok := decodeFrameBody(hdr, data)
	if !ok {
		return
	}

	t.dev.trace('<', data)
	t.dev.handleFrame(frame)
}

func (t *qrtrTransport) armWrite() {
	if t.writeArmed {
		return
	}
	t.writeArmed = true
	t.cancelWrite = t.dev.scheduler.WatchWrite(t.fd, t.onWritable)
}

// onWritable strips the mux-header bytes before putting a request on the
// wire (§4.4): only the control/service + message headers and TLVs are
// QRTR payload, addressed to the request's (node, port) destination.
func (t *qrtrTransport) onWritable() {
	for {
		r := t.dev.queues.popWrite()
		if r == nil {
			t.disarm()
			return
		}

		t.dev.trace('>', r.encoded)

		payload := r.encoded[muxHeaderSize:]
		addr := &unix.SockaddrQrtr{Node: uint32(r.qrtrNode), Port: uint32(r.qrtrPort)}

		if err := unix.Sendto(t.fd, payload, 0, addr); err != nil {
			t.disarm()
			return
		}

		t.dev.queues.moveToAwaiting(r)
	}
}

func (t *qrtrTransport) disarm() {
	if t.cancelWrite != nil {
		t.cancelWrite()
		t.cancelWrite = nil
	}
	t.writeArmed = false
}

func (t *qrtrTransport) close() error {
	if t.cancelRead != nil {
		t.cancelRead()
	}
	t.disarm()
	return unix.Close(t.fd)
}
