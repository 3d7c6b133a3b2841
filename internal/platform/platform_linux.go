//go:build linux

package platform

import (
	"fmt"
	"os"

	"xsshost/internal/xserver"
)

const x11Supported = true

// Init prepares an X display for the window surface, starting a private
// Xvfb when asked to or when none is available. The returned cleanup
// stops anything Init started.
func Init(cfg *Config) (func(), error) {
	if cfg.Display == "" {
		cfg.Display = os.Getenv("DISPLAY")
	}
	if cfg.Display != "" && !cfg.StartX {
		return func() {}, nil
	}

	xs, err := xserver.StartXvfb(cfg.Width, cfg.Height)
	if err != nil {
		return nil, fmt.Errorf("failed to start X server: %w", err)
	}
	cfg.Display = xs.Display
	os.Setenv("DISPLAY", cfg.Display)
	os.Setenv("XAUTHORITY", xs.Xauthority)
	return xs.Stop, nil
}
