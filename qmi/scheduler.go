package qmi

import "time"

// Scheduler is the injected main-loop handle a Device runs on. The original
// driver implicitly assumes a single process-wide main loop driving one fd
// at a time; here that assumption becomes an explicit dependency so a
// Device never reaches for global state and can be driven by any loop a
// host already runs.
//
// Implementations are expected to be single-threaded: every callback they
// invoke must run on the same goroutine that calls Run, so the device
// itself never needs internal locking.
type Scheduler interface {
	// WatchRead arms fn to run whenever fd becomes readable. It returns a
	// cancel function that disarms the watch; calling cancel more than
	// once is a no-op.
	WatchRead(fd int, fn func()) (cancel func())

	// WatchWrite arms fn to run whenever fd becomes writable. As with
	// WatchRead, the returned cancel is idempotent.
	WatchWrite(fd int, fn func()) (cancel func())

	// AfterFunc arms fn to run once after d elapses. The returned cancel
	// stops the timer if it hasn't fired yet.
	AfterFunc(d time.Duration, fn func()) (cancel func())

	// Defer arms fn to run on the scheduler's next turn, after the
	// current callback returns. Used to give discovery and service
	// creation their "completes on the next scheduler turn" semantics
	// even when the result is already known synchronously.
	Defer(fn func())
}
