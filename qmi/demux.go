package qmi

// handleFrame implements §4.5: route a decoded frame either to the
// awaiting-reply table matching its transport class, or to indication
// fan-out. It is the single entry point both transports call once they
// have a well-formed decodedFrame.
func (d *Device) handleFrame(frame decodedFrame) {
	if frame.IsControl {
		d.handleControlFrame(frame)
		return
	}
	d.handleServiceFrame(frame)
}

func (d *Device) handleControlFrame(frame decodedFrame) {
	if frame.Mux.Client != 0 {
		return
	}

	if frame.Type == controlTypeIndication && frame.Transaction == 0 {
		d.routeIndication(frame)
		return
	}

	r, ok := d.queues.takeControl(uint8(frame.Transaction))
	if !ok || r.callback == nil {
		return
	}
	res, _ := newResult(frame.Data)
	r.callback(res)
}

func (d *Device) handleServiceFrame(frame decodedFrame) {
	if frame.Type == serviceTypeIndication {
		d.routeIndication(frame)
		return
	}

	r, ok := d.queues.takeService(frame.Transaction)
	if !ok || r.callback == nil {
		return
	}
	res, _ := newResult(frame.Data)
	r.callback(res)
}

// routeIndication implements the indication fan-out rule: client 0xff goes
// to every registered service, otherwise only to the service at the
// composite registry key.
func (d *Device) routeIndication(frame decodedFrame) {
	res := Result{data: frame.Data}

	if frame.Mux.Client == clientBroadcast {
		for _, svc := range d.registry {
			svc.deliverIndication(frame.Message, res)
		}
		return
	}

	key := registryKey(frame.Mux.Service, frame.Mux.Client)
	if svc, ok := d.registry[key]; ok {
		svc.deliverIndication(frame.Message, res)
	}
}
