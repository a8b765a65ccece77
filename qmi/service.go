package qmi

import "fmt"

// notification is one subscription on a service's indication stream.
type notification struct {
	id       uint16
	message  uint16
	callback func(Result)
	destroy  func()
}

// Service is a per-client handle over a Device for one service type
// (§3, §4.8). Multiple callers can share one Service via
// CreateSharedService; the underlying client id is only released once the
// last reference drops.
type Service struct {
	device *Device

	typ          uint8
	major, minor uint16
	clientID     uint8
	node, port   uint16 // QRTR only

	refCount      int
	notifications []*notification
	nextNotifyID  uint16

	released bool
}

// Type returns the service's type identifier.
func (s *Service) Type() uint8 { return s.typ }

// ClientID returns the client id allocated for this service (CTL-assigned
// on mux, locally assigned on QRTR).
func (s *Service) ClientID() uint8 { return s.clientID }

// Version returns the service's negotiated major/minor version.
func (s *Service) Version() (major, minor uint16) { return s.major, s.minor }

// CreateService allocates a new, unshared client for typ.
func (d *Device) CreateService(typ uint8, cb func(*Service, error)) {
	d.createService(typ, false, cb)
}

// CreateSharedService returns an existing registered client for typ with
// its reference count bumped, or allocates a new one if none exists.
func (d *Device) CreateSharedService(typ uint8, cb func(*Service, error)) {
	d.createService(typ, true, cb)
}

func (d *Device) createService(typ uint8, shared bool, cb func(*Service, error)) {
	if shared {
		for _, svc := range d.registry {
			if svc.typ == typ {
				svc.refCount++
				d.scheduler.Defer(func() { cb(svc, nil) })
				return
			}
		}
	}

	if d.isQRTR {
		d.createQRTRService(typ, cb)
		return
	}

	d.createMuxService(typ, cb)
}

func (d *Device) createQRTRService(typ uint8, cb func(*Service, error)) {
	var entry *ServiceVersion
	for i := range d.versions {
		if d.versions[i].Type == typ {
			entry = &d.versions[i]
			break
		}
	}
	if entry == nil {
		d.scheduler.Defer(func() { cb(nil, fmt.Errorf("qmi: service %d not found in version table", typ)) })
		return
	}

	cid := d.nextCID
	d.nextCID++

	svc := &Service{
		device:   d,
		typ:      typ,
		major:    entry.Major,
		minor:    entry.Minor,
		clientID: cid,
		node:     entry.Node,
		port:     entry.Port,
		refCount: 1,
	}
	d.registry[registryKey(typ, cid)] = svc
	d.scheduler.Defer(func() { cb(svc, nil) })
}

func (d *Device) createMuxService(typ uint8, cb func(*Service, error)) {
	var done bool
	var cancelTimer func()

	p := NewParamUint8(tlvGetClientIDReq, typ)

	tid, err := d.submitControl(ctlMsgGetClientID, p.Bytes(), func(res Result) {
		if done {
			return
		}
		done = true
		if cancelTimer != nil {
			cancelTimer()
		}

		if resErr := res.Err(); resErr != nil {
			cb(nil, resErr)
			return
		}

		raw, ok := res.Get(tlvGetClientIDRsp)
		if !ok || len(raw) < 2 {
			cb(nil, fmt.Errorf("qmi: malformed GET_CLIENT_ID response"))
			return
		}

		svcType, clientID := raw[0], raw[1]
		major, minor, _ := d.GetServiceVersion(svcType)

		svc := &Service{
			device:   d,
			typ:      svcType,
			major:    major,
			minor:    minor,
			clientID: clientID,
			refCount: 1,
		}
		d.registry[registryKey(svcType, clientID)] = svc
		cb(svc, nil)
	})
	if err != nil {
		d.scheduler.Defer(func() { cb(nil, err) })
		return
	}

	cancelTimer = d.afterTimeout(serviceCreateTimeout, func() {
		if done {
			return
		}
		done = true
		d.queues.cancel(ServiceControl, tid)
		cb(nil, fmt.Errorf("qmi: service create for type %d timed out", typ))
	})
}

// Send encodes and queues a service request, returning its TID.
func (s *Service) Send(message uint16, params []byte, cb func(Result)) uint16 {
	return s.device.submitService(s.typ, s.clientID, s.node, s.port, message, params, cb)
}

// Cancel removes the pending or awaiting-reply request with tid. It
// reports false if no such request exists (already answered, or never
// existed).
func (s *Service) Cancel(tid uint16) bool {
	_, ok := s.device.queues.cancel(s.typ, tid)
	return ok
}

// CancelAll removes every outstanding request belonging to this service's
// client id.
func (s *Service) CancelAll() {
	s.device.queues.cancelAll(s.typ, s.clientID)
}

// Register subscribes cb to indications carrying the given message id,
// returning a notification id usable with Unregister.
func (s *Service) Register(message uint16, cb func(Result)) uint16 {
	s.nextNotifyID++
	if s.nextNotifyID == 0 {
		s.nextNotifyID = 1
	}
	id := s.nextNotifyID
	s.notifications = append(s.notifications, &notification{id: id, message: message, callback: cb})
	return id
}

// Unregister removes the subscription with the given id, if present,
// running its destroy hook.
func (s *Service) Unregister(id uint16) {
	for i, n := range s.notifications {
		if n.id == id {
			if n.destroy != nil {
				n.destroy()
			}
			s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
			return
		}
	}
}

// UnregisterAll removes every subscription, running each destroy hook.
func (s *Service) UnregisterAll() {
	for _, n := range s.notifications {
		if n.destroy != nil {
			n.destroy()
		}
	}
	s.notifications = nil
}

// deliverIndication invokes every subscription matching message.
func (s *Service) deliverIndication(message uint16, res Result) {
	for _, n := range s.notifications {
		if n.message == message && n.callback != nil {
			n.callback(res)
		}
	}
}

// Unref drops one reference. On the last reference it cancels outstanding
// requests, unregisters all notifications, removes the service from the
// registry, and — on mux only — sends CTL RELEASE_CLIENT_ID, bumping
// device.release_users until the reply (or its QRTR no-op equivalent)
// comes back.
func (s *Service) Unref() {
	s.refCount--
	if s.refCount > 0 {
		return
	}
	if s.released {
		return
	}
	s.released = true

	s.CancelAll()
	s.UnregisterAll()
	delete(s.device.registry, registryKey(s.typ, s.clientID))

	s.device.releaseUsers++

	if s.device.isQRTR {
		s.device.releaseUsers--
		s.device.checkShutdown()
		return
	}

	payload := []byte{s.typ, s.clientID}
	p := NewParam()
	_ = p.Append(tlvReleaseClient, payload)

	_, err := s.device.submitControl(ctlMsgReleaseClientID, p.Bytes(), func(Result) {
		s.device.releaseUsers--
		s.device.checkShutdown()
	})
	if err != nil {
		s.device.releaseUsers--
		s.device.checkShutdown()
	}
}
