package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_LoadConfig_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
}

func Test_LoadConfig_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
}

func Test_LoadConfig_OverlaysFileOnDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qmictl.yaml")
	body := "device: /dev/cdc-wdm1\nqrtr_node: 3\ndebug: true\nreset_chip: gpiochip0\nreset_line: 17\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/cdc-wdm1", cfg.Device)
	assert.Equal(t, 3, cfg.QRTRNode)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "gpiochip0", cfg.ResetChip)
	assert.Equal(t, 17, cfg.ResetLine)
	assert.Equal(t, 5, cfg.TimeoutSecs, "fields absent from the file keep their default")
}

func Test_LoadConfig_MalformedYAMLIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device: [unterminated"), 0o644))

	_, err := loadConfig(path)
	assert.Error(t, err)
}
