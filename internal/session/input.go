package session

import (
	"fmt"
	"log"
	"time"

	"xsshost/internal/input"
	"xsshost/internal/types"
)

// Inject routes one input event to the renderer. Events that arrive while
// no renderer context exists are dropped.
func (s *Session) Inject(ev types.InputEvent) error {
	s.lifeMu.Lock()
	closed := s.closed
	s.lifeMu.Unlock()
	if closed {
		return ErrClosed
	}

	x, y := int(ev.X), int(ev.Y)
	switch ev.Type {
	case "mousedown", "mouseup":
		if input.BrowserButton(ev.Button) == 1 {
			s.worker.ButtonEvent(x, y, ev.Type == "mousedown")
		}
	case "mousemove":
		s.worker.MotionEvent(x, y)
	case "touchstart":
		s.touch(func(t time.Time) []input.Action { return s.gestures.Down(x, y, t) })
	case "touchmove":
		s.touch(func(t time.Time) []input.Action { return s.gestures.Move(x, y, t) })
	case "touchend", "touchcancel":
		s.touch(func(t time.Time) []input.Action { return s.gestures.Up(x, y, t) })
	case "keydown", "keyup":
		if ks := input.CodeToKeysym(ev.Code, ev.Key); ks != 0 {
			s.worker.KeyEvent(ev.Type == "keydown", ks, uint32(ev.Meta)&0xFF)
		}
	case "androidkey":
		if k, ok := input.AndroidKey(ev.KeyCode, ev.Unicode, ev.Meta, ev.Down); ok {
			s.worker.KeyEvent(k.Down, k.Keysym, k.Mods)
		}
	default:
		return fmt.Errorf("unknown input event %q", ev.Type)
	}
	return nil
}

// Button, Motion and Key deliver host window events directly.
func (s *Session) Button(x, y, button int, down bool) {
	if button == 1 {
		s.worker.ButtonEvent(x, y, down)
	}
}

func (s *Session) Motion(x, y int) {
	s.worker.MotionEvent(x, y)
}

func (s *Session) Key(keysym, mods uint32, down bool) {
	if keysym != 0 {
		s.worker.KeyEvent(down, keysym, mods)
	}
}

func (s *Session) touch(step func(time.Time) []input.Action) {
	s.gmu.Lock()
	actions := step(s.now())
	s.scheduleLocked()
	s.gmu.Unlock()
	s.dispatch(actions)
}

func (s *Session) advanceGestures() {
	s.gmu.Lock()
	if s.stopped {
		s.gmu.Unlock()
		return
	}
	actions := s.gestures.Advance(s.now())
	s.scheduleLocked()
	s.gmu.Unlock()
	s.dispatch(actions)
}

func (s *Session) scheduleLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.stopped {
		return
	}
	next := s.gestures.NextDeadline()
	if next.IsZero() {
		return
	}
	s.timer = time.AfterFunc(max(0, next.Sub(s.now())), s.advanceGestures)
}

func (s *Session) dispatch(actions []input.Action) {
	for _, a := range actions {
		switch a.Kind {
		case input.ButtonDown:
			s.worker.ButtonEvent(a.X, a.Y, true)
		case input.ButtonUp:
			s.worker.ButtonEvent(a.X, a.Y, false)
		case input.Motion:
			s.worker.MotionEvent(a.X, a.Y)
		case input.Click:
			s.worker.ButtonEvent(a.X, a.Y, true)
			s.worker.ButtonEvent(a.X, a.Y, false)
		case input.Key:
			s.worker.KeyEvent(true, a.Keysym, 0)
			s.worker.KeyEvent(false, a.Keysym, 0)
		case input.Quit:
			log.Printf("session %s: tap to quit", s.ID)
			if s.cfg.OnQuit != nil {
				s.cfg.OnQuit()
			}
		}
	}
}
