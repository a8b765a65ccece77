// Package sysfsnet resolves and toggles the qmi_wwan data-format switch
// (§6 "Expected data format"): each WDS client's SET_CLIENT_IP_FAMILY_PREF
// and data-format negotiation must agree with the kernel net device's
// qmi/raw_ip sysfs attribute, or inbound/outbound packets are silently
// mishandled by the wwan driver.
package sysfsnet

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jochenvg/go-udev"
)

// rawIPPathFunc is a var, not a plain function, so tests can point it at a
// scratch directory instead of the real /sys/class/net tree.
var rawIPPathFunc = func(iface string) string {
	return filepath.Join("/sys/class/net", iface, "qmi", "raw_ip")
}

// GetRawIP reports whether iface's qmi_wwan net device is in raw-IP mode
// (true) or legacy 802.3 framing (false).
func GetRawIP(iface string) (bool, error) {
	raw, err := os.ReadFile(rawIPPathFunc(iface))
	if err != nil {
		return false, fmt.Errorf("sysfsnet: read raw_ip for %s: %w", iface, err)
	}
	return strings.TrimSpace(string(raw)) == "Y", nil
}

// SetRawIP switches iface's qmi_wwan net device between raw-IP and 802.3
// framing. The interface must be administratively down for the kernel to
// accept the write.
func SetRawIP(iface string, enabled bool) error {
	val := []byte("N")
	if enabled {
		val = []byte("Y")
	}
	if err := os.WriteFile(rawIPPathFunc(iface), val, 0o644); err != nil {
		return fmt.Errorf("sysfsnet: write raw_ip for %s: %w", iface, err)
	}
	return nil
}

// FindInterfaceForController returns the net-class device name (e.g.
// "wwan0") whose owning USB device matches the one the controlling
// character device (controllerSyspath, e.g. "/sys/class/usbmisc/cdc-wdm0")
// hangs off of. It returns "" with a nil error if no matching net device is
// currently present.
func FindInterfaceForController(controllerSyspath string) (string, error) {
	parentUSBPath := usbDevicePath(controllerSyspath)
	if parentUSBPath == "" {
		return "", fmt.Errorf("sysfsnet: %s has no identifiable owning USB device", controllerSyspath)
	}

	u := udev.Udev{}
	e := u.NewEnumerate()
	if err := e.AddMatchSubsystem("net"); err != nil {
		return "", fmt.Errorf("sysfsnet: match net subsystem: %w", err)
	}

	devices, err := e.Devices()
	if err != nil {
		return "", fmt.Errorf("sysfsnet: enumerate net devices: %w", err)
	}

	for _, dev := range devices {
		if strings.HasPrefix(dev.Syspath(), parentUSBPath) {
			return dev.Sysname(), nil
		}
	}
	return "", nil
}

// usbDevicePath walks up from a cdc-wdm-style control syspath to the
// directory carrying idVendor/idProduct, i.e. the USB device node that also
// owns the qmi_wwan net interface.
func usbDevicePath(controllerSyspath string) string {
	target, err := filepath.EvalSymlinks(controllerSyspath)
	if err != nil {
		return ""
	}

	dir := target
	for i := 0; i < 8 && dir != "/" && dir != "."; i++ {
		if _, err := os.Stat(filepath.Join(dir, "idVendor")); err == nil {
			return dir
		}
		dir = filepath.Dir(dir)
	}
	return ""
}
