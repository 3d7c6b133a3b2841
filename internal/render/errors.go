package render

import (
	"errors"
	"fmt"
)

// ErrSurfaceLost is returned by Native.Init when the drawable is not usable
// yet. The worker clears its dimensions and waits for a fresh resize.
var ErrSurfaceLost = errors.New("surface lost")

// ErrInvalidDimensions is returned by Worker.Resize for non-positive sizes.
var ErrInvalidDimensions = errors.New("invalid dimensions")

// FaultError is a fatal renderer failure. It is delivered once to the
// worker's fault callback and is never retried.
type FaultError struct {
	Op  string // init, resize, render
	Err error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("renderer %s: %v", e.Op, e.Err)
}

func (e *FaultError) Unwrap() error { return e.Err }
