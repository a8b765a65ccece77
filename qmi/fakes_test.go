package qmi

import "time"

// fakeScheduler is an in-memory Scheduler for deterministic unit tests: no
// real fd or clock is involved, and the test drives timers/defers by hand.
type fakeScheduler struct {
	reads  map[int]func()
	writes map[int]func()

	timers   []*fakeTimer
	deferred []func()
}

type fakeTimer struct {
	fn        func()
	d         time.Duration
	cancelled bool
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{reads: make(map[int]func()), writes: make(map[int]func())}
}

func (s *fakeScheduler) WatchRead(fd int, fn func()) func() {
	s.reads[fd] = fn
	return func() { delete(s.reads, fd) }
}

func (s *fakeScheduler) WatchWrite(fd int, fn func()) func() {
	s.writes[fd] = fn
	return func() { delete(s.writes, fd) }
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) func() {
	t := &fakeTimer{fn: fn, d: d}
	s.timers = append(s.timers, t)
	return func() { t.cancelled = true }
}

func (s *fakeScheduler) Defer(fn func()) {
	s.deferred = append(s.deferred, fn)
}

// flush drains deferred work, including anything newly deferred by a
// callback that just ran.
func (s *fakeScheduler) flush() {
	for len(s.deferred) > 0 {
		batch := s.deferred
		s.deferred = nil
		for _, fn := range batch {
			fn()
		}
	}
}

// fireAllTimers fires every outstanding, non-cancelled timer once (as if
// every duration had simultaneously elapsed), then flushes.
func (s *fakeScheduler) fireAllTimers() {
	timers := s.timers
	s.timers = nil
	for _, t := range timers {
		if !t.cancelled {
			t.fn()
		}
	}
	s.flush()
}

// fakeTransport records every request handed to it instead of touching a
// real fd, so tests can inspect exactly what would have hit the wire.
type fakeTransport struct {
	dev *Device

	sent       [][]byte
	closed     bool
	closeCalls int
}

func (t *fakeTransport) armWrite() {
	for {
		r := t.dev.queues.popWrite()
		if r == nil {
			return
		}
		t.sent = append(t.sent, r.encoded)
		t.dev.queues.moveToAwaiting(r)
	}
}

func (t *fakeTransport) startReading() {}

func (t *fakeTransport) close() error {
	t.closed = true
	t.closeCalls++
	return nil
}

// newTestMuxDevice builds a Device wired to a fakeScheduler/fakeTransport
// pair, bypassing NewMux's real fd setup.
func newTestMuxDevice(opts ...Option) (*Device, *fakeScheduler, *fakeTransport) {
	d := newDevice(opts...)
	sched := newFakeScheduler()
	d.scheduler = sched

	ft := &fakeTransport{dev: d}
	d.transport = ft

	return d, sched, ft
}

// newTestQRTRDevice builds a QRTR-mode Device the same way, without a real
// AF_QIPCRTR socket.
func newTestQRTRDevice(nodeID uint16, opts ...Option) (*Device, *fakeScheduler, *fakeTransport) {
	d := newDevice(opts...)
	d.isQRTR = true
	d.nodeID = nodeID
	d.nextCID = 1

	sched := newFakeScheduler()
	d.scheduler = sched

	ft := &fakeTransport{dev: d}
	d.transport = ft

	return d, sched, ft
}
