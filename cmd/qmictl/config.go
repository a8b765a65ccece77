package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// config holds everything qmictl needs to open a device and run discovery
// that isn't worth exposing as a command-line flag on its own.
type config struct {
	Device      string `yaml:"device"`
	QRTRNode    int    `yaml:"qrtr_node"`
	TimeoutSecs int    `yaml:"timeout_seconds"`
	Debug       bool   `yaml:"debug"`
	Advertise   bool   `yaml:"advertise"`

	// ResetChip/ResetLine identify a GPIO line to pulse before opening
	// Device, for boards that wire the modem's reset pin to a GPIO
	// controller instead of USB bus power. ResetChip is empty by default,
	// meaning no line is touched.
	ResetChip   string `yaml:"reset_chip"`
	ResetLine   int    `yaml:"reset_line"`
	ResetMillis int    `yaml:"reset_pulse_millis"`
}

func defaultConfig() config {
	return config{
		Device:      "/dev/cdc-wdm0",
		QRTRNode:    0,
		TimeoutSecs: 5,
		Debug:       false,
		Advertise:   false,
		ResetMillis: 100,
	}
}

// loadConfig reads path and overlays it on top of defaultConfig. A missing
// file is not an error; qmictl runs fine on flags and defaults alone.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("qmictl: read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("qmictl: parse config %s: %w", path, err)
	}
	return cfg, nil
}
