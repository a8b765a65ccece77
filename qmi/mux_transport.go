package qmi

import "golang.org/x/sys/unix"

// muxReadBufSize is the scratch buffer size for one read(2) call. A frame
// never needs to span reads (§4.3: no cross-read reassembly), so this only
// needs to be large enough for a burst of frames arriving together.
const muxReadBufSize = 8192

// muxTransport speaks the character-device framing of §4.3: a flat
// byte stream carrying complete mux frames back to back, written and read
// with plain non-blocking read/write syscalls.
type muxTransport struct {
	dev *Device
	fd  int

	cancelRead  func()
	cancelWrite func()
	writeArmed  bool
}

func newMuxTransport(dev *Device, fd int) *muxTransport {
	return &muxTransport{dev: dev, fd: fd}
}

func (t *muxTransport) startReading() {
	t.cancelRead = t.dev.scheduler.WatchRead(t.fd, t.onReadable)
}

func (t *muxTransport) onReadable() {
	buf := make([]byte, muxReadBufSize)
	n, err := unix.Read(t.fd, buf)
	if err != nil || n <= 0 {
		return
	}

	data := buf[:n]
	t.dev.trace('<', data)

	for _, frame := range scanMuxFrames(data) {
		t.dev.handleFrame(frame)
	}
}

// armWrite ensures a write-readiness watch is armed; onWritable drains the
// full pending-write queue each time the fd becomes writable.
func (t *muxTransport) armWrite() {
	if t.writeArmed {
		return
	}
	t.writeArmed = true
	t.cancelWrite = t.dev.scheduler.WatchWrite(t.fd, t.onWritable)
}

// onWritable pops and writes requests one at a time until the queue is
// empty (disarming) or a write fails. §4.3 describes popping one request per
// writability event; draining the whole queue in one callback is FIFO
// equivalent (the fd only just became writable, so further writes here cost
// no extra wakeups) and avoids re-arming on every single request. A partial
// write or error drops that request without retry and disarms the watch
// rather than attempting to resynchronize the stream.
func (t *muxTransport) onWritable() {
	for {
		r := t.dev.queues.popWrite()
		if r == nil {
			t.disarm()
			return
		}

		t.dev.trace('>', r.encoded)
		n, err := unix.Write(t.fd, r.encoded)
		if err != nil || n != len(r.encoded) {
			t.disarm()
			return
		}

		t.dev.queues.moveToAwaiting(r)
	}
}

func (t *muxTransport) disarm() {
	if t.cancelWrite != nil {
		t.cancelWrite()
		t.cancelWrite = nil
	}
	t.writeArmed = false
}

func (t *muxTransport) close() error {
	if t.cancelRead != nil {
		t.cancelRead()
	}
	t.disarm()
	return unix.Close(t.fd)
}
