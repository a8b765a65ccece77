package qmi

// request is a single in-flight operation: either still sitting in the
// pending-write queue or already handed to the transport and waiting in an
// awaiting-reply table, keyed by tid. It is never in both at once.
type request struct {
	tid      uint16 // full width; control requests only ever use the low byte
	service  uint8
	clientID uint8
	qrtrNode uint16 // destination node; only meaningful to the QRTR transport
	qrtrPort uint16 // destination port; only meaningful to the QRTR transport
	encoded  []byte // nil once written; only the bookkeeping fields matter after that

	callback func(Result)
}

// tidAllocator implements §4.6: control TIDs are a wrapping 8-bit counter
// that never lands on 0; service TIDs are a wrapping 16-bit counter that
// never lands below 256, so a single glance at a TID in a debug trace tells
// you which queue it belongs to.
type tidAllocator struct {
	nextControl uint8
	nextService uint16
}

func newTIDAllocator() *tidAllocator {
	return &tidAllocator{nextControl: 1, nextService: 256}
}

// control returns the next control TID and advances the counter, skipping
// the reserved value 0 on wraparound.
func (a *tidAllocator) control() uint8 {
	tid := a.nextControl
	a.nextControl++
	if a.nextControl == 0 {
		a.nextControl = 1
	}
	return tid
}

// service returns the next service TID and advances the counter, resetting
// to 256 whenever the increment would drop the counter below that floor.
func (a *tidAllocator) service() uint16 {
	tid := a.nextService
	a.nextService++
	if a.nextService < 256 {
		a.nextService = 256
	}
	return tid
}

// requestQueues holds the three queues a device's transport drains: a FIFO
// of encoded-but-unwritten requests, and two awaiting-reply tables keyed by
// TID, split by transaction-id width per transport class.
type requestQueues struct {
	pendingWrite    []*request
	awaitingControl map[uint8]*request
	awaitingService map[uint16]*request
}

func newRequestQueues() *requestQueues {
	return &requestQueues{
		awaitingControl: make(map[uint8]*request),
		awaitingService: make(map[uint16]*request),
	}
}

func (q *requestQueues) enqueue(r *request) {
	q.pendingWrite = append(q.pendingWrite, r)
}

// popWrite removes and returns the head of the pending-write queue, or nil
// if it is empty.
func (q *requestQueues) popWrite() *request {
	if len(q.pendingWrite) == 0 {
		return nil
	}
	r := q.pendingWrite[0]
	q.pendingWrite = q.pendingWrite[1:]
	return r
}

// moveToAwaiting files a successfully-written request into the correct
// awaiting-reply table based on its service type, and drops its encoded
// buffer — once written, only the TID and callback are worth keeping.
func (q *requestQueues) moveToAwaiting(r *request) {
	r.encoded = nil
	if r.service == ServiceControl {
		q.awaitingControl[uint8(r.tid)] = r
	} else {
		q.awaitingService[r.tid] = r
	}
}

// takeControl removes and returns the awaiting-control request for tid, if
// any.
func (q *requestQueues) takeControl(tid uint8) (*request, bool) {
	r, ok := q.awaitingControl[tid]
	if ok {
		delete(q.awaitingControl, tid)
	}
	return r, ok
}

// takeService removes and returns the awaiting-service request for tid, if
// any.
func (q *requestQueues) takeService(tid uint16) (*request, bool) {
	r, ok := q.awaitingService[tid]
	if ok {
		delete(q.awaitingService, tid)
	}
	return r, ok
}

// cancel removes the request with the given tid from whichever queue holds
// it (pending-write or the appropriate awaiting table), matched against
// the given service class to disambiguate the 8-bit/16-bit tid spaces. It
// reports whether a request was found.
func (q *requestQueues) cancel(service uint8, tid uint16) (*request, bool) {
	for i, r := range q.pendingWrite {
		if r.service == service && r.tid == tid {
			q.pendingWrite = append(q.pendingWrite[:i], q.pendingWrite[i+1:]...)
			return r, true
		}
	}

	if service == ServiceControl {
		return q.takeControl(uint8(tid))
	}
	return q.takeService(tid)
}

// drainAll removes and returns every request across all three queues,
// leaving them empty. Used by Device teardown (§5) to destroy every
// outstanding request on Close; like cancelAll it invokes nothing itself.
func (q *requestQueues) drainAll() []*request {
	removed := append([]*request(nil), q.pendingWrite...)
	q.pendingWrite = nil

	for _, r := range q.awaitingControl {
		removed = append(removed, r)
	}
	q.awaitingControl = make(map[uint8]*request)

	for _, r := range q.awaitingService {
		removed = append(removed, r)
	}
	q.awaitingService = make(map[uint16]*request)

	return removed
}

// cancelAll removes every request belonging to clientID (pending or
// awaiting), invoking nothing itself — callers decide what "cancel" means
// for each removed request.
func (q *requestQueues) cancelAll(service, clientID uint8) []*request {
	var removed []*request

	kept := q.pendingWrite[:0]
	for _, r := range q.pendingWrite {
		if r.service == service && r.clientID == clientID {
			removed = append(removed, r)
			continue
		}
		kept = append(kept, r)
	}
	q.pendingWrite = kept

	for tid, r := range q.awaitingControl {
		if r.service == service && r.clientID == clientID {
			removed = append(removed, r)
			delete(q.awaitingControl, tid)
		}
	}
	for tid, r := range q.awaitingService {
		if r.service == service && r.clientID == clientID {
			removed = append(removed, r)
			delete(q.awaitingService, tid)
		}
	}

	return removed
}
