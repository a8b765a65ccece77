// qmictl is a diagnostic command line tool: it opens a QMI device (mux
// character device or QRTR node), runs discovery, prints the negotiated
// service table, and exits.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/kb1lqd/qmimodem/internal/gpioreset"
	"github.com/kb1lqd/qmimodem/internal/sysfsnet"
	"github.com/kb1lqd/qmimodem/qmi"
)

var (
	configPath  = pflag.StringP("config", "c", "", "path to a qmictl config file")
	devicePath  = pflag.StringP("device", "d", "", "mux character device to open, e.g. /dev/cdc-wdm0")
	qrtrNode    = pflag.IntP("qrtr-node", "q", -1, "QRTR node id to talk to instead of a mux device")
	timeoutSecs = pflag.IntP("timeout", "t", 0, "discovery timeout in seconds")
	debug       = pflag.BoolP("debug", "v", false, "log a hexdump of every frame sent and received")
	rawIPCheck  = pflag.StringP("check-raw-ip", "r", "", "print the qmi_wwan raw_ip mode of the given net interface and exit")
)

func init() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Discover QMI services on a device and print their versions.\n\n")
		pflag.PrintDefaults()
	}
}

func main() {
	pflag.Parse()

	if *rawIPCheck != "" {
		raw, err := sysfsnet.GetRawIP(*rawIPCheck)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("%s: raw_ip=%v\n", *rawIPCheck, raw)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *devicePath != "" {
		cfg.Device = *devicePath
	}
	if *qrtrNode >= 0 {
		cfg.QRTRNode = *qrtrNode
	}
	if *timeoutSecs > 0 {
		cfg.TimeoutSecs = *timeoutSecs
	}
	if *debug {
		cfg.Debug = true
	}

	logger := charmlog.New(os.Stderr)
	if cfg.Debug {
		logger.SetLevel(charmlog.DebugLevel)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("qmictl failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg config, logger *charmlog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.ResetChip != "" {
		line, err := gpioreset.Open(cfg.ResetChip, cfg.ResetLine)
		if err != nil {
			return fmt.Errorf("open reset line: %w", err)
		}
		if err := line.Pulse(time.Duration(cfg.ResetMillis) * time.Millisecond); err != nil {
			line.Close()
			return fmt.Errorf("pulse reset line: %w", err)
		}
		line.Close()
	}

	scheduler, err := qmi.NewEpollScheduler()
	if err != nil {
		return fmt.Errorf("new scheduler: %w", err)
	}
	defer scheduler.Close()

	opts := []qmi.Option{qmi.WithLogger(logger)}
	if cfg.Debug {
		opts = append(opts, qmi.WithDebugFunc(func(line string) {
			logger.Debug(line)
		}))
	}

	var dev *qmi.Device
	if cfg.QRTRNode > 0 {
		if cfg.Advertise {
			opts = append(opts, qmi.WithLANAdvertise(true))
		}
		dev, err = qmi.NewQRTR(uint16(cfg.QRTRNode), scheduler, opts...)
	} else {
		fd, ferr := unix.Open(cfg.Device, unix.O_RDWR|unix.O_NONBLOCK, 0)
		if ferr != nil {
			return fmt.Errorf("open %s: %w", cfg.Device, ferr)
		}
		dev, err = qmi.NewMux(fd, scheduler, opts...)
	}
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	defer dev.Close()

	// Discover is registered before Run starts so its completion callback
	// fires on Run's own goroutine, keeping every callback on the single
	// goroutine a Device requires.
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	runCtx, runCancel := context.WithTimeout(ctx, timeout)
	defer runCancel()

	dev.Discover(func(versions []qmi.ServiceVersion) {
		for _, v := range versions {
			fmt.Printf("%-8s major=%d minor=%d\n", v.Name, v.Major, v.Minor)
		}
		runCancel()
	})

	if err := dev.Run(runCtx); err != nil && runCtx.Err() == nil {
		return fmt.Errorf("device run loop exited: %w", err)
	}
	if runCtx.Err() == context.DeadlineExceeded {
		logger.Warn("discovery did not complete before timeout")
	}
	return nil
}
