// Package netdisc optionally advertises a device's discovered QMI service
// table over mDNS/DNS-SD, so a LAN diagnostic tool can find a modem without
// direct USB/serial access. It is off by default; a host opts in by
// constructing an Advertiser and calling Announce per discovered service.
package netdisc

import (
	"context"
	"fmt"
	"strconv"

	"github.com/brutella/dnssd"
)

const serviceType = "_qmimodem._tcp"

// Advertiser publishes QMI service/version pairs as DNS-SD records.
type Advertiser struct {
	responder dnssd.Responder
}

// NewAdvertiser starts a DNS-SD responder goroutine bound to ctx; the
// responder stops once ctx is cancelled.
func NewAdvertiser(ctx context.Context) (*Advertiser, error) {
	r, err := dnssd.NewResponder()
	if err != nil {
		return nil, fmt.Errorf("netdisc: new responder: %w", err)
	}

	go func() {
		_ = r.Respond(ctx)
	}()

	return &Advertiser{responder: r}, nil
}

// Announce publishes one discovered service as an instance of
// _qmimodem._tcp, with its QMI type and negotiated version carried in TXT
// records. host and port identify where a diagnostic client should connect
// to reach this device (e.g. a companion TCP bridge), not the QMI transport
// itself, which is never reachable directly over the network.
func (a *Advertiser) Announce(host string, port int, svcType uint8, major, minor uint16) error {
	cfg := dnssd.Config{
		Name: fmt.Sprintf("%s-svc%02x", host, svcType),
		Type: serviceType,
		Port: port,
		Text: map[string]string{
			"service": strconv.Itoa(int(svcType)),
			"major":   strconv.Itoa(int(major)),
			"minor":   strconv.Itoa(int(minor)),
		},
	}

	svc, err := dnssd.NewService(cfg)
	if err != nil {
		return fmt.Errorf("netdisc: new service: %w", err)
	}

	if _, err := a.responder.Add(svc); err != nil {
		return fmt.Errorf("netdisc: add service: %w", err)
	}
	return nil
}
