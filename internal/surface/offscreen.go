// Package surface provides drawable targets for renderers.
package surface

import (
	"image"
	"image/draw"
	"sync"
)

// Offscreen is an in-memory surface. Every presented frame is copied,
// kept as the latest, and offered to subscribers; slow subscribers only
// ever see the newest frame.
type Offscreen struct {
	mu     sync.Mutex
	width  int
	height int
	latest *image.RGBA
	subs   map[int]chan image.Image
	nextID int
}

func NewOffscreen(width, height int) *Offscreen {
	return &Offscreen{width: width, height: height, subs: map[int]chan image.Image{}}
}

func (o *Offscreen) Size() (int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.width, o.height
}

// SetSize changes the drawable size. Zero models a surface that is not
// ready.
func (o *Offscreen) SetSize(width, height int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.width, o.height = width, height
}

func (o *Offscreen) Present(img image.Image) error {
	b := img.Bounds()
	frame := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(frame, frame.Bounds(), img, b.Min, draw.Src)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.width == 0 || o.height == 0 {
		return nil
	}
	o.latest = frame
	for _, ch := range o.subs {
		select {
		case ch <- frame:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- frame
		}
	}
	return nil
}

// Snapshot returns the most recent frame, or nil before the first one.
func (o *Offscreen) Snapshot() image.Image {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.latest == nil {
		return nil
	}
	return o.latest
}

// Subscribe returns a channel of presented frames. Frames are shared and
// must not be modified.
func (o *Offscreen) Subscribe() (<-chan image.Image, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.nextID
	o.nextID++
	ch := make(chan image.Image, 1)
	o.subs[id] = ch
	return ch, func() {
		o.mu.Lock()
		delete(o.subs, id)
		o.mu.Unlock()
	}
}
