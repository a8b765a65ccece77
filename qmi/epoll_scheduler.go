package qmi

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sys/unix"
)

// EpollScheduler is the default Scheduler, backed by a Linux epoll instance
// and a simple timer list. It is not safe for concurrent use: Run and every
// watch/timer callback are expected to execute on one goroutine, matching
// the original driver's single-threaded main loop.
type EpollScheduler struct {
	epfd int

	fds map[int]*fdWatch

	timers   []*timerEntry
	deferred []func()

	nextTimerID uint64
}

type fdWatch struct {
	read       func()
	write      func()
	registered bool // true once this fd has been EPOLL_CTL_ADDed
}

type timerEntry struct {
	id      uint64
	at      time.Time
	fn      func()
	expired bool
}

// NewEpollScheduler opens a fresh epoll instance.
func NewEpollScheduler() (*EpollScheduler, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("qmi: epoll_create1: %w", err)
	}

	return &EpollScheduler{
		epfd: epfd,
		fds:  make(map[int]*fdWatch),
	}, nil
}

// Close releases the underlying epoll fd.
func (s *EpollScheduler) Close() error {
	return unix.Close(s.epfd)
}

func (s *EpollScheduler) eventMask(fd int) uint32 {
	w := s.fds[fd]
	if w == nil {
		return 0
	}
	var mask uint32
	if w.read != nil {
		mask |= unix.EPOLLIN
	}
	if w.write != nil {
		mask |= unix.EPOLLOUT
	}
	return mask
}

func (s *EpollScheduler) syncFd(fd int) error {
	mask := s.eventMask(fd)
	w := s.fds[fd]

	if w == nil || mask == 0 {
		wasRegistered := w != nil && w.registered
		delete(s.fds, fd)
		if !wasRegistered {
			return nil
		}
		return unix.EpollCtl(s.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	}

	ev := &unix.EpollEvent{Events: mask, Fd: int32(fd)}

	op := unix.EPOLL_CTL_MOD
	if !w.registered {
		op = unix.EPOLL_CTL_ADD
	}
	if err := unix.EpollCtl(s.epfd, op, fd, ev); err != nil {
		return err
	}
	w.registered = true
	return nil
}

// WatchRead implements Scheduler.
func (s *EpollScheduler) WatchRead(fd int, fn func()) func() {
	w := s.fds[fd]
	if w == nil {
		w = &fdWatch{}
		s.fds[fd] = w
	}
	w.read = fn
	_ = s.syncFd(fd)

	return func() {
		if w, ok := s.fds[fd]; ok {
			w.read = nil
			_ = s.syncFd(fd)
		}
	}
}

// WatchWrite implements Scheduler.
func (s *EpollScheduler) WatchWrite(fd int, fn func()) func() {
	w := s.fds[fd]
	if w == nil {
		w = &fdWatch{}
		s.fds[fd] = w
	}
	w.write = fn
	_ = s.syncFd(fd)

	return func() {
		if w, ok := s.fds[fd]; ok {
			w.write = nil
			_ = s.syncFd(fd)
		}
	}
}

// AfterFunc implements Scheduler.
func (s *EpollScheduler) AfterFunc(d time.Duration, fn func()) func() {
	s.nextTimerID++
	id := s.nextTimerID

	entry := &timerEntry{id: id, at: time.Now().Add(d), fn: fn}
	s.timers = append(s.timers, entry)
	s.sortTimers()

	return func() {
		entry.expired = true
	}
}

// Defer implements Scheduler.
func (s *EpollScheduler) Defer(fn func()) {
	s.deferred = append(s.deferred, fn)
}

func (s *EpollScheduler) sortTimers() {
	sort.Slice(s.timers, func(i, j int) bool {
		return s.timers[i].at.Before(s.timers[j].at)
	})
}

// popDueTimers drains (returns) any timers that are already due, along with
// how long Run may block in epoll_wait before the next one (-1 if none).
func (s *EpollScheduler) popDueTimers(now time.Time) ([]func(), time.Duration) {
	var due []func()

	for len(s.timers) > 0 {
		t := s.timers[0]
		if t.expired {
			s.timers = s.timers[1:]
			continue
		}
		if !t.at.After(now) {
			due = append(due, t.fn)
			s.timers = s.timers[1:]
			continue
		}
		return due, t.at.Sub(now)
	}

	return due, -1
}

func (s *EpollScheduler) runDeferred() {
	for len(s.deferred) > 0 {
		batch := s.deferred
		s.deferred = nil
		for _, fn := range batch {
			fn()
		}
	}
}

// ctxPollInterval bounds a single epoll_wait so Run rechecks ctx regularly.
const ctxPollInterval = 100 * time.Millisecond

// Run pumps the scheduler until ctx is cancelled. It blocks in epoll_wait
// between events, waking early for the next due timer.
func (s *EpollScheduler) Run(ctx context.Context) error {
	events := make([]unix.EpollEvent, 32)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		due, wait := s.popDueTimers(time.Now())
		for _, fn := range due {
			fn()
		}
		s.runDeferred()

		if len(due) > 0 {
			continue
		}

		// Wake at least every ctxPollInterval so a cancelled ctx is noticed
		// even when no fd event or timer is due.
		if wait < 0 || wait > ctxPollInterval {
			wait = ctxPollInterval
		}

		timeoutMs := -1
		if wait >= 0 {
			timeoutMs = int(wait / time.Millisecond)
			if timeoutMs == 0 {
				timeoutMs = 1
			}
		}

		n, err := unix.EpollWait(s.epfd, events, timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("qmi: epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			w, ok := s.fds[fd]
			if !ok {
				continue
			}
			if events[i].Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 && w.read != nil {
				w.read()
			}
			if events[i].Events&unix.EPOLLOUT != 0 && w.write != nil {
				w.write()
			}
		}

		s.runDeferred()
	}
}
