package qmi

// Shutdown schedules cb to run once every outstanding client release has
// completed (§4.9). If no releases are outstanding it completes on the
// next scheduler turn; otherwise it waits for checkShutdown to be woken by
// each release's completion.
func (d *Device) Shutdown(cb func()) {
	d.shutdownCB = cb
	d.scheduler.Defer(d.checkShutdown)
}

// checkShutdown is invoked once per event that might have brought
// release_users to zero (a RELEASE_CLIENT_ID reply, or its QRTR
// equivalent). It performs the single shutting_down transition exactly
// once; the original driver's redundant second assignment of
// shutting_down is treated as the same idempotent transition here.
func (d *Device) checkShutdown() {
	if d.shutdownCB == nil || d.shuttingDown {
		return
	}
	if d.releaseUsers > 0 {
		return
	}

	d.shuttingDown = true
	cb := d.shutdownCB
	d.shutdownCB = nil
	cb()
}

// teardown destroys every request still outstanding anywhere in the device
// (pending-write or awaiting-reply, under any service) and every service's
// notification subscriptions, running each subscription's destroy hook
// (§5). Destroying a request mirrors cancelAll/Cancel's existing meaning
// for this codebase: removed from its queue, its callback never invoked,
// rather than invoked with a synthetic error result.
func (d *Device) teardown() {
	for _, svc := range d.registry {
		svc.UnregisterAll()
	}
	d.registry = make(map[uint16]*Service)
	d.queues.drainAll()
}

// Close releases the transport. If closeOnUnref is false the underlying
// fd/socket is left open for the caller to manage.
func (d *Device) Close() error {
	if d.destroyed {
		return nil
	}
	d.destroyed = true
	if d.advertiserCancel != nil {
		d.advertiserCancel()
	}
	d.teardown()
	if !d.closeOnUnref {
		return nil
	}
	return d.transport.close()
}
