//go:build !linux

package platform

import (
	"errors"
	"os"
)

const x11Supported = true

func Init(cfg *Config) (func(), error) {
	if cfg.StartX {
		return nil, errors.New("starting an X server is only supported on Linux")
	}
	if cfg.Display == "" {
		cfg.Display = os.Getenv("DISPLAY")
	}
	if cfg.Display == "" {
		return nil, errors.New("no X display: set DISPLAY or pass -display")
	}
	return func() {}, nil
}
