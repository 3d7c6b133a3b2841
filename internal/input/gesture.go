package input

import (
	"time"
)

// Gesture timing, matching the platform defaults the touch mapping was
// tuned against.
const (
	TapTimeout       = 100 * time.Millisecond
	LongPressTimeout = 500 * time.Millisecond
	DoubleTapTimeout = 300 * time.Millisecond
	TouchSlop        = 8
)

type ActionKind int

const (
	ButtonDown ActionKind = iota
	ButtonUp
	Motion
	Click // press and release
	Key   // press and release of Keysym
	Quit
)

// Action is what a touch sequence asks the session to do.
type Action struct {
	Kind   ActionKind
	X, Y   int
	Keysym uint32
}

// Gestures turns raw touch events into renderer actions:
//
//   - a confirmed single tap quits;
//   - a double tap presses Space;
//   - a show press sends a button press, released when the touch ends;
//   - a long press without a held button clicks;
//   - dragging with the button held sends motion.
//
// It has no timers of its own. Callers feed it timestamps and call Advance
// by NextDeadline.
type Gestures struct {
	down       bool
	downAt     time.Time
	downX      int
	downY      int
	scrolling  bool
	showFired  bool
	longFired  bool
	secondTap  bool
	buttonDown bool

	pendingTap bool
	tapUpAt    time.Time
	tapX       int
	tapY       int
}

func (g *Gestures) Down(x, y int, t time.Time) []Action {
	var out []Action
	if g.pendingTap && t.Sub(g.tapUpAt) <= DoubleTapTimeout && near(x, y, g.tapX, g.tapY) {
		g.pendingTap = false
		g.secondTap = true
		out = append(out, Action{Kind: Key, X: x, Y: y, Keysym: XK_space})
	} else {
		out = append(out, g.Advance(t)...)
		g.secondTap = false
	}
	g.down = true
	g.downAt = t
	g.downX, g.downY = x, y
	g.scrolling = false
	g.showFired = false
	g.longFired = false
	return out
}

func (g *Gestures) Move(x, y int, t time.Time) []Action {
	out := g.Advance(t)
	if !g.down {
		return out
	}
	if !g.scrolling && !near(x, y, g.downX, g.downY) {
		g.scrolling = true
	}
	if g.scrolling && g.buttonDown {
		out = append(out, Action{Kind: Motion, X: x, Y: y})
	}
	return out
}

func (g *Gestures) Up(x, y int, t time.Time) []Action {
	out := g.Advance(t)
	if !g.down {
		return out
	}
	g.down = false
	if g.buttonDown {
		g.buttonDown = false
		out = append(out, Action{Kind: ButtonUp, X: x, Y: y})
	}
	if !g.scrolling && !g.longFired && !g.secondTap {
		g.pendingTap = true
		g.tapUpAt = t
		g.tapX, g.tapY = x, y
	}
	g.secondTap = false
	return out
}

// Advance fires every timeout that has elapsed by t.
func (g *Gestures) Advance(t time.Time) []Action {
	var out []Action
	if g.down && !g.scrolling && !g.secondTap {
		held := t.Sub(g.downAt)
		if !g.showFired && held >= TapTimeout {
			g.showFired = true
			if !g.buttonDown {
				g.buttonDown = true
				out = append(out, Action{Kind: ButtonDown, X: g.downX, Y: g.downY})
			}
		}
		if !g.longFired && held >= LongPressTimeout {
			g.longFired = true
			if !g.buttonDown {
				out = append(out, Action{Kind: Click, X: g.downX, Y: g.downY})
			}
		}
	}
	if g.pendingTap && t.Sub(g.tapUpAt) > DoubleTapTimeout {
		g.pendingTap = false
		out = append(out, Action{Kind: Quit, X: g.tapX, Y: g.tapY})
	}
	return out
}

// NextDeadline returns when Advance next has something to do, or the zero
// time if nothing is pending.
func (g *Gestures) NextDeadline() time.Time {
	var next time.Time
	consider := func(d time.Time) {
		if next.IsZero() || d.Before(next) {
			next = d
		}
	}
	if g.down && !g.scrolling && !g.secondTap {
		if !g.showFired {
			consider(g.downAt.Add(TapTimeout))
		} else if !g.longFired {
			consider(g.downAt.Add(LongPressTimeout))
		}
	}
	if g.pendingTap {
		consider(g.tapUpAt.Add(DoubleTapTimeout + time.Millisecond))
	}
	return next
}

func near(x0, y0, x1, y1 int) bool {
	dx, dy := x0-x1, y0-y1
	return dx*dx+dy*dy <= TouchSlop*TouchSlop
}
