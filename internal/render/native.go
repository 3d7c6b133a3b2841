package render

import (
	"time"

	"xsshost/internal/types"
)

// Native is a hack renderer. All methods are called from the worker's
// goroutine only.
type Native interface {
	// Init creates the renderer's context. It returns ErrSurfaceLost when
	// the surface cannot be drawn to yet.
	Init(cfg types.HackConfig, width, height int, surface types.Surface) error
	Resize(width, height int, rotation float64) error
	// Render draws one frame and returns how long to wait before the next.
	Render() (time.Duration, error)
	Done()
}

// Input is implemented by renderers that accept events. Events may arrive
// from any goroutine while frames are rendering, but never during Init or
// Done.
type Input interface {
	ButtonEvent(x, y int, down bool)
	MotionEvent(x, y int)
	KeyEvent(down bool, keysym, mods uint32)
}
