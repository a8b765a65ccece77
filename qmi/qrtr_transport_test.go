package qmi

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// buildCtrlPacket encodes a qrtr_ctrl_pkt-shaped buffer: cmd, service,
// instance (major in the low byte, minor in the next), node, port — all
// little-endian u32, per original_source's qrtr_handle_ctrl_packet.
func buildCtrlPacket(cmd, service, major, minor, node, port uint32) []byte {
	pkt := make([]byte, qrtrCtrlPktSize)
	binary.LittleEndian.PutUint32(pkt[0:4], cmd)
	binary.LittleEndian.PutUint32(pkt[4:8], service)
	binary.LittleEndian.PutUint32(pkt[8:12], major|(minor<<8))
	binary.LittleEndian.PutUint32(pkt[12:16], node)
	binary.LittleEndian.PutUint32(pkt[16:20], port)
	return pkt
}

func Test_QRTRTransport_HandleControlPacket_NewServerAddsVersionEntry(t *testing.T) {
	d, _, _ := newTestQRTRDevice(9)
	qt := &qrtrTransport{dev: d}

	pkt := buildCtrlPacket(qrtrTypeNewServer, uint32(ServiceWDS), 1, 2, 9, 100)
	qt.handleControlPacket(pkt)

	major, minor, ok := d.GetServiceVersion(ServiceWDS)
	require.True(t, ok)
	assert.Equal(t, uint16(1), major)
	assert.Equal(t, uint16(2), minor)

	svc := d.findServiceByPort(100)
	assert.Nil(t, svc, "NEW_SERVER only populates the version table, not the service registry")
}

func Test_QRTRTransport_HandleControlPacket_IgnoresOtherNodes(t *testing.T) {
	d, _, _ := newTestQRTRDevice(9)
	qt := &qrtrTransport{dev: d}

	pkt := buildCtrlPacket(qrtrTypeNewServer, uint32(ServiceWDS), 1, 0, 42, 100)
	qt.handleControlPacket(pkt)

	assert.False(t, d.HasService(ServiceWDS))
}

func Test_QRTRTransport_HandleControlPacket_DelServerRemovesEntry(t *testing.T) {
	d, _, _ := newTestQRTRDevice(9)
	qt := &qrtrTransport{dev: d}

	qt.handleControlPacket(buildCtrlPacket(qrtrTypeNewServer, uint32(ServiceWDS), 1, 0, 9, 100))
	require.True(t, d.HasService(ServiceWDS))

	qt.handleControlPacket(buildCtrlPacket(qrtrTypeDelServer, uint32(ServiceWDS), 1, 0, 9, 100))
	assert.False(t, d.HasService(ServiceWDS))
}

func Test_QRTRTransport_HandleControlPacket_TruncatedPacketIsIgnored(t *testing.T) {
	d, _, _ := newTestQRTRDevice(9)
	qt := &qrtrTransport{dev: d}
	qt.handleControlPacket(make([]byte, qrtrCtrlPktSize-1)) // must not panic
}

// Test_QRTRTransport_ServiceCreateThenDispatch exercises the NEW_SERVER ->
// createService -> inbound service-packet path end to end (spec scenario:
// QRTR NEW_SERVER then service_create yields client_id=1, port=100).
func Test_QRTRTransport_ServiceCreateThenDispatch(t *testing.T) {
	d, sched, _ := newTestQRTRDevice(9)
	qt := &qrtrTransport{dev: d}

	qt.handleControlPacket(buildCtrlPacket(qrtrTypeNewServer, uint32(ServiceWDS), 1, 0, 9, 100))

	var svc *Service
	d.CreateService(ServiceWDS, func(s *Service, err error) {
		require.NoError(t, err)
		svc = s
	})
	sched.flush()

	require.NotNil(t, svc)
	assert.Equal(t, uint8(1), svc.ClientID())
	assert.Equal(t, uint16(100), svc.port)
	assert.Same(t, svc, d.findServiceByPort(100))

	var indicated bool
	svc.Register(0x30, func(Result) { indicated = true })

	body := make([]byte, serviceHeaderSize+messageHeaderSize)
	body[0] = serviceTypeIndication
	encodeMessageHeader(body[serviceHeaderSize:], messageHeader{Message: 0x30, Length: 0})

	from := &unix.SockaddrQrtr{Node: 9, Port: 100}
	qt.dispatchServicePacket(from, body)

	assert.True(t, indicated)
}

func Test_QRTRTransport_DispatchServicePacket_UnknownPortIsDropped(t *testing.T) {
	d, _, _ := newTestQRTRDevice(9)
	qt := &qrtrTransport{dev: d}

	body := make([]byte, serviceHeaderSize+messageHeaderSize)
	body[0] = serviceTypeIndication
	encodeMessageHeader(body[serviceHeaderSize:], messageHeader{Message: 0x30, Length: 0})

	from := &unix.SockaddrQrtr{Node: 9, Port: 555}
	qt.dispatchServicePacket(from, body) // must not panic
}

func Test_QRTRTransport_SendLookup_SmokeIfKernelSupportsQRTR(t *testing.T) {
	fd, err := unix.Socket(unix.AF_QIPCRTR, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Skipf("AF_QIPCRTR unavailable in this environment: %v", err)
	}
	defer unix.Close(fd)

	sa, err := unix.Getsockname(fd)
	require.NoError(t, err)
	qsa, ok := sa.(*unix.SockaddrQrtr)
	require.True(t, ok)

	qt := &qrtrTransport{fd: fd, localNode: uint32(qsa.Node)}
	assert.NoError(t, qt.sendLookup())
}
