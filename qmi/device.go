package qmi

import (
	"context"
	"fmt"
	"time"

	charmlog "github.com/charmbracelet/log"

	"github.com/kb1lqd/qmimodem/internal/netdisc"
)

// ServiceVersion is one entry of a device's discovered service table: a
// service type paired with its negotiated major/minor version, plus the
// QRTR address that reaches it (zero on mux, where addressing is implicit
// in the fd).
type ServiceVersion struct {
	Type       uint8
	Major      uint16
	Minor      uint16
	Node       uint16
	Port       uint16
	Name       string
}

// DataFormat is the logical link-layer framing a WDS client intends to use.
// It mirrors the original driver's qmi_device_expected_data_format enum and
// is tracked independently of internal/sysfsnet, which is the mechanism
// that pushes this value down to the kernel net device; nothing in this
// package touches sysfs itself.
type DataFormat int

const (
	DataFormatUnknown DataFormat = iota
	DataFormat8023
	DataFormatRawIP
)

// transport is the abstraction over the two wire variants (§4.3, §4.4): it
// drains the device's pending-write queue once armed, and reports fatal
// close. The device picks an implementation at construction and never
// branches on transport kind again outside this package.
type transport interface {
	armWrite()
	startReading()
	close() error
}

// Device is the root handle for one modem connection: exactly one
// transport, its request queues and TID allocator, the service registry
// and discovered version table, and shutdown bookkeeping. All mutation
// happens from Scheduler callbacks on a single goroutine; Device carries no
// internal locking (§5).
type Device struct {
	scheduler Scheduler
	transport transport

	queues *requestQueues
	tids   *tidAllocator

	registry map[uint16]*Service

	versions                   []ServiceVersion
	controlMajor, controlMinor uint16
	versionString              string

	expectedDataFormat DataFormat

	debugFunc DebugFunc
	logger    *charmlog.Logger

	isQRTR bool
	nodeID uint16
	nextCID uint8

	lanAdvertise     bool
	advertiser       *netdisc.Advertiser
	advertiserCancel context.CancelFunc

	rawFD        int
	closeOnUnref bool

	shuttingDown bool
	destroyed    bool
	releaseUsers int
	shutdownCB   func()
}

// Option configures a Device at construction.
type Option func(*Device)

// WithDebugFunc installs a raw hexdump/one-liner trace sink, mirroring the
// original driver's qmi_device_set_debug.
func WithDebugFunc(fn DebugFunc) Option {
	return func(d *Device) { d.debugFunc = fn }
}

// WithLogger installs a structured logger for device-level operational
// messages. The device logs LAN-advertise setup and announce failures
// through it, at Debug level; transport errors, discovery timeouts and
// shutdown are not logged. This is separate from WithDebugFunc, which is
// the wire-level trace.
func WithLogger(l *charmlog.Logger) Option {
	return func(d *Device) { d.logger = l }
}

// WithCloseOnUnref controls whether the owned file descriptor (mux) or
// socket (QRTR) is closed by Close. Defaults to true.
func WithCloseOnUnref(v bool) Option {
	return func(d *Device) { d.closeOnUnref = v }
}

// WithLANAdvertise makes a QRTR-backed device announce every service it
// discovers over mDNS/DNS-SD, so companion tooling on the same LAN can find
// it. It has no effect on a mux device, which has no LAN presence to
// announce in the first place. Off by default.
func WithLANAdvertise(v bool) Option {
	return func(d *Device) { d.lanAdvertise = v }
}

func newDevice(opts ...Option) *Device {
	d := &Device{
		queues:       newRequestQueues(),
		tids:         newTIDAllocator(),
		registry:     make(map[uint16]*Service),
		closeOnUnref: true,
		logger:       charmlog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewMux opens a device over a character-device fd carrying framed QMI mux
// packets. fd must already be in non-blocking mode.
func NewMux(fd int, scheduler Scheduler, opts ...Option) (*Device, error) {
	d := newDevice(opts...)
	d.scheduler = scheduler
	d.rawFD = fd

	d.transport = newMuxTransport(d, fd)
	d.transport.startReading()

	return d, nil
}

// NewQRTR opens a device over an AF_QIPCRTR datagram socket addressed to
// nodeID.
func NewQRTR(nodeID uint16, scheduler Scheduler, opts ...Option) (*Device, error) {
	d := newDevice(opts...)
	d.scheduler = scheduler
	d.isQRTR = true
	d.nodeID = nodeID
	d.nextCID = 1

	qt, fd, err := newQRTRTransport(d, nodeID)
	if err != nil {
		return nil, err
	}
	d.transport = qt
	d.rawFD = fd
	d.transport.startReading()

	if d.lanAdvertise {
		advCtx, cancel := context.WithCancel(context.Background())
		adv, advErr := netdisc.NewAdvertiser(advCtx)
		if advErr != nil {
			d.logf("LAN advertise disabled: %v", advErr)
			cancel()
		} else {
			d.advertiser = adv
			d.advertiserCancel = cancel
		}
	}

	return d, nil
}

// Run pumps the device's scheduler until ctx is cancelled. Most hosts embed
// the scheduler directly rather than calling this, but it's convenient for
// a device that owns its own EpollScheduler.
func (d *Device) Run(ctx context.Context) error {
	type runner interface {
		Run(context.Context) error
	}
	r, ok := d.scheduler.(runner)
	if !ok {
		return fmt.Errorf("qmi: scheduler %T does not implement Run", d.scheduler)
	}
	return r.Run(ctx)
}

// HasService reports whether typ appears in the discovered version table.
func (d *Device) HasService(typ uint8) bool {
	for _, v := range d.versions {
		if v.Type == typ {
			return true
		}
	}
	return false
}

// GetServiceVersion returns the negotiated major/minor for typ, if known.
func (d *Device) GetServiceVersion(typ uint8) (major, minor uint16, ok bool) {
	for _, v := range d.versions {
		if v.Type == typ {
			return v.Major, v.Minor, true
		}
	}
	return 0, 0, false
}

// VersionString returns the free-form version string from the most recent
// GET_VERSION_INFO reply's optional 0x10 TLV, or "" if none was present.
func (d *Device) VersionString() string {
	return d.versionString
}

// ExpectedDataFormat returns the link-layer framing a higher layer has
// declared it intends to use. It starts as DataFormatUnknown.
func (d *Device) ExpectedDataFormat() DataFormat {
	return d.expectedDataFormat
}

// SetExpectedDataFormat records the link-layer framing a higher layer
// intends to use. It does not itself touch internal/sysfsnet; callers that
// need the kernel net device to match do that separately.
func (d *Device) SetExpectedDataFormat(f DataFormat) {
	d.expectedDataFormat = f
}

// IsSyncSupported reports whether the control interface's negotiated
// version is at least 1.5, the floor below which CTL SYNC is unsupported.
func (d *Device) IsSyncSupported() bool {
	if d.controlMajor != 1 {
		return d.controlMajor > 1
	}
	return d.controlMinor >= 5
}

func (d *Device) logf(format string, args ...interface{}) {
	if d.logger != nil {
		d.logger.Debugf(format, args...)
	}
}

// trace feeds raw outbound/inbound bytes to the debug sink, if installed.
func (d *Device) trace(dir byte, buf []byte) {
	if d.debugFunc == nil {
		return
	}
	hexdump(dir, buf, d.debugFunc)
	debugMessage(dir, buf, d.debugFunc)
}

// submitControl allocates a control TID, encodes and queues a CTL request.
// It is a no-op error on QRTR devices, which never speak CTL (§4.4, §4.7).
func (d *Device) submitControl(message uint16, params []byte, cb func(Result)) (uint16, error) {
	if d.isQRTR {
		return 0, fmt.Errorf("qmi: CTL message 0x%04x has no meaning over QRTR", message)
	}

	tid := uint16(d.tids.control())
	r := &request{
		tid:      tid,
		service:  ServiceControl,
		clientID: 0,
		encoded:  encodeRequest(ServiceControl, 0, tid, message, params),
		callback: cb,
	}
	d.queues.enqueue(r)
	d.armWriter()
	return tid, nil
}

// submitService allocates a service TID, encodes and queues a service
// request addressed at (service, clientID), optionally carrying a QRTR
// destination (node, port) for the QRTR transport to address the datagram
// to; both are ignored by the mux transport.
func (d *Device) submitService(service, clientID uint8, qrtrNode, qrtrPort uint16, message uint16, params []byte, cb func(Result)) uint16 {
	tid := d.tids.service()
	r := &request{
		tid:      tid,
		service:  service,
		clientID: clientID,
		qrtrNode: qrtrNode,
		qrtrPort: qrtrPort,
		encoded:  encodeRequest(service, clientID, tid, message, params),
		callback: cb,
	}
	d.queues.enqueue(r)
	d.armWriter()
	return tid
}

// armWriter asks the transport to ensure the pending-write queue gets
// drained as soon as the fd is writable.
func (d *Device) armWriter() {
	d.transport.armWrite()
}

// afterTimeout is a small wrapper so discovery/create timeouts read as
// named durations instead of bare numbers scattered through the file.
func (d *Device) afterTimeout(d2 time.Duration, fn func()) func() {
	return d.scheduler.AfterFunc(d2, fn)
}

// registryKey computes the composite service-map key from §3's invariant:
// type | (client_id << 8).
func registryKey(typ, clientID uint8) uint16 {
	return uint16(typ) | uint16(clientID)<<8
}
