package qmi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func Test_MuxTransport_WriteThenReadRoundTrips(t *testing.T) {
	// A socketpair gives us one fd each side can read and write,
	// standing in for the character device the mux transport expects.
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})

	sched, err := NewEpollScheduler()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sched.Close() })

	dev, err := NewMux(fds[0], sched, WithCloseOnUnref(false))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	replied := false
	tid, tidErr := dev.submitControl(ctlMsgGetVersionInfo, nil, func(res Result) {
		replied = true
		cancel()
	})
	require.NoError(t, tidErr)
	require.Equal(t, uint16(1), tid)

	go func() {
		buf := make([]byte, 256)
		for i := 0; i < 50; i++ {
			n, rerr := unix.Read(fds[1], buf)
			if rerr == nil && n > 0 {
				// Reflect a TLV-less CTL frame carrying the request's
				// transaction id straight back, marked inbound; the
				// demultiplexer matches it to the request by that id.
				resp := encodeRequest(ServiceControl, 0, uint16(buf[7]), ctlMsgGetVersionInfo, nil)
				resp[3] = muxFlagsIn
				_, _ = unix.Write(fds[1], resp)
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	_ = sched.Run(ctx)

	require.True(t, replied)
}
