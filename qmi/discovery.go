package qmi

import (
	"encoding/binary"
	"fmt"
	"time"
)

// discoverTimeout bounds a mux CTL GET_VERSION_INFO round trip (§4.7).
const discoverTimeout = 5 * time.Second

// serviceCreateTimeout bounds a mux CTL GET_CLIENT_ID round trip (§7).
const serviceCreateTimeout = 8 * time.Second

// Discover enumerates available services and their versions. On mux this
// sends CTL GET_VERSION_INFO and waits up to discoverTimeout; on QRTR it
// sends a single NEW_LOOKUP and completes on the next scheduler turn with
// whatever the version table holds at that point, which may be empty; the
// table keeps being populated by NEW_SERVER events afterwards.
func (d *Device) Discover(cb func([]ServiceVersion)) {
	if cb == nil {
		cb = func([]ServiceVersion) {}
	}
	if d.isQRTR {
		d.discoverQRTR(cb)
		return
	}
	d.discoverMux(cb)
}

func (d *Device) discoverMux(cb func([]ServiceVersion)) {
	var done bool
	var cancelTimer func()

	tid, err := d.submitControl(ctlMsgGetVersionInfo, nil, func(res Result) {
		if done {
			return
		}
		done = true
		if cancelTimer != nil {
			cancelTimer()
		}
		d.applyVersionInfo(res)
		cb(d.versionsSnapshot())
	})
	if err != nil {
		d.scheduler.Defer(func() { cb(nil) })
		return
	}

	cancelTimer = d.afterTimeout(discoverTimeout, func() {
		if done {
			return
		}
		done = true
		d.queues.cancel(ServiceControl, tid)
		cb(d.versionsSnapshot())
	})
}

func (d *Device) discoverQRTR(cb func([]ServiceVersion)) {
	qt := d.transport.(*qrtrTransport)
	_ = qt.sendLookup()

	d.scheduler.Defer(func() { cb(d.versionsSnapshot()) })
}

// applyVersionInfo parses a GET_VERSION_INFO reply per §4.7: the result
// code TLV must be present (its value is not required to be success, to
// match the original driver), the service-list TLV (0x01) is a one-byte
// count followed by {type, major, minor} entries — the CTL entry sets
// control_major/minor and is not added to the version table — and the
// optional version-string TLV (0x10) is a one-byte length followed by
// that many string bytes.
func (d *Device) applyVersionInfo(res Result) {
	if _, ok := res.get(tlvResultCode); !ok {
		return
	}

	if raw, ok := res.Get(tlvServiceList); ok {
		parseServiceList(raw, func(typ uint8, major, minor uint16) {
			if typ == ServiceControl {
				d.controlMajor, d.controlMinor = major, minor
				return
			}
			d.upsertVersion(ServiceVersion{Type: typ, Major: major, Minor: minor})
		})
	}

	if raw, ok := res.Get(tlvVersionString); ok && len(raw) >= 1 {
		n := int(raw[0])
		if n <= len(raw)-1 {
			d.versionString = string(raw[1 : 1+n])
		}
	}
}

func parseServiceList(raw []byte, fn func(typ uint8, major, minor uint16)) {
	if len(raw) < 1 {
		return
	}
	count := int(raw[0])
	offset := 1

	for i := 0; i < count; i++ {
		if offset+5 > len(raw) {
			return
		}
		typ := raw[offset]
		major := binary.LittleEndian.Uint16(raw[offset+1 : offset+3])
		minor := binary.LittleEndian.Uint16(raw[offset+3 : offset+5])
		fn(typ, major, minor)
		offset += 5
	}
}

// upsertVersion replaces an existing entry whose type, node and port all
// match v (on mux node and port are zero, so the type alone decides),
// appending otherwise.
func (d *Device) upsertVersion(v ServiceVersion) {
	if v.Name == "" {
		v.Name = serviceTypeString(v.Type)
	}
	for i := range d.versions {
		if d.versions[i].Type == v.Type && d.versions[i].Node == v.Node && d.versions[i].Port == v.Port {
			d.versions[i] = v
			return
		}
	}
	d.versions = append(d.versions, v)
}

func (d *Device) versionsSnapshot() []ServiceVersion {
	out := make([]ServiceVersion, len(d.versions))
	copy(out, d.versions)
	return out
}

// applyNewServer handles a QRTR NEW_SERVER control event: insert or
// replace-in-place the version-table entry for this (type, node, port), then
// advertise it on the LAN if WithLANAdvertise was set.
func (d *Device) applyNewServer(typ uint8, node, port, major, minor uint16) {
	d.upsertVersion(ServiceVersion{Type: typ, Major: major, Minor: minor, Node: node, Port: port})

	if d.advertiser != nil {
		host := fmt.Sprintf("qrtr-node%d", node)
		if err := d.advertiser.Announce(host, int(port), typ, major, minor); err != nil {
			d.logf("LAN advertise failed for service %s: %v", serviceTypeString(typ), err)
		}
	}
}

// applyDelServer handles a QRTR DEL_SERVER control event: remove the
// version-table entry whose (node, port) match.
func (d *Device) applyDelServer(node, port uint16) {
	for i := range d.versions {
		if d.versions[i].Node == node && d.versions[i].Port == port {
			d.versions = append(d.versions[:i], d.versions[i+1:]...)
			return
		}
	}
}

// findServiceByPort returns the registered service whose QRTR port matches,
// or nil.
func (d *Device) findServiceByPort(port uint16) *Service {
	for _, svc := range d.registry {
		if svc.port == port {
			return svc
		}
	}
	return nil
}

// Sync sends CTL SYNC to reset modem-side state. It is mux-only and
// requires a negotiated control version of at least 1.5 (IsSyncSupported);
// cb is invoked with an error otherwise.
func (d *Device) Sync(cb func(error)) {
	if d.isQRTR {
		cb(errNotSupportedOnQRTR)
		return
	}
	if !d.IsSyncSupported() {
		cb(errSyncUnsupported)
		return
	}

	_, err := d.submitControl(ctlMsgSync, nil, func(res Result) {
		cb(res.Err())
	})
	if err != nil {
		cb(err)
	}
}
