// Package platform resolves host capabilities once at startup.
package platform

import (
	"os"

	"golang.org/x/term"
)

// Features are the host capabilities the rest of the program consults.
type Features struct {
	Display string // resolved X display, empty if none
	X11     bool   // an X window surface can be opened
	TTY     bool   // stdout is a terminal
}

// Detect resolves capabilities from cfg and the environment.
func Detect(cfg Config) Features {
	display := cfg.Display
	if display == "" {
		display = os.Getenv("DISPLAY")
	}
	return Features{
		Display: display,
		X11:     x11Supported && display != "",
		TTY:     term.IsTerminal(int(os.Stdout.Fd())),
	}
}

var savedState *term.State

// SaveTermState records the terminal mode of stdin so it can be restored
// after child processes or crashes leave it altered.
func SaveTermState() {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return
	}
	if st, err := term.GetState(int(os.Stdin.Fd())); err == nil {
		savedState = st
	}
}

func RestoreTermState() {
	if savedState != nil {
		term.Restore(int(os.Stdin.Fd()), savedState)
	}
}
