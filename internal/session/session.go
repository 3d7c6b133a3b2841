// Package session binds one renderer to a host surface, its preferences
// and its input sources.
package session

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"xsshost/internal/input"
	"xsshost/internal/prefs"
	"xsshost/internal/render"
	"xsshost/internal/types"
)

var ErrClosed = errors.New("session closed")

type Config struct {
	// Hack names the renderer. Its Options override Defaults but not
	// stored preferences.
	Hack     types.HackConfig
	Native   render.Native
	Surface  types.Surface
	Prefs    *prefs.Store // may be nil
	Defaults map[string]string
	OnQuit   func()
	OnFault  func(error)
}

type Session struct {
	ID string

	cfg    Config
	worker *render.Worker
	sub    *prefs.Subscription

	// lifeMu serialises host lifecycle calls with preference restarts.
	lifeMu    sync.Mutex
	animating bool
	closed    bool

	gmu      sync.Mutex
	gestures input.Gestures
	timer    *time.Timer
	stopped  bool // no more gesture timers after Close
	now      func() time.Time
}

func New(cfg Config) (*Session, error) {
	if cfg.Native == nil {
		return nil, fmt.Errorf("session: no renderer")
	}
	if cfg.Surface == nil {
		return nil, fmt.Errorf("session: no surface")
	}
	if cfg.Hack.Name == "" {
		return nil, fmt.Errorf("session: no hack name")
	}

	s := &Session{
		ID:  uuid.NewString(),
		cfg: cfg,
		now: time.Now,
	}
	s.worker = render.NewWorker(render.Config{
		Native:  cfg.Native,
		Surface: cfg.Surface,
		Hack:    s.hackConfig,
		OnFault: s.fault,
	})
	if cfg.Prefs != nil {
		s.sub = cfg.Prefs.Subscribe(s.prefChanged)
	}
	log.Printf("session %s: %s created", s.ID, cfg.Hack.Name)
	return s, nil
}

// SurfaceChanged forwards new surface dimensions to the renderer.
func (s *Session) SurfaceChanged(width, height int) error {
	return s.worker.Resize(width, height)
}

// SetVisible starts or pauses animation.
func (s *Session) SetVisible(visible bool) {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.closed {
		return
	}
	s.animating = visible
	if visible {
		s.worker.Start()
	} else {
		s.worker.Pause()
	}
}

// SurfaceDestroyed releases the renderer. A later SetVisible(true) creates
// a fresh one.
func (s *Session) SurfaceDestroyed() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	s.animating = false
	s.worker.Close()
}

func (s *Session) Close() {
	s.lifeMu.Lock()
	if s.closed {
		s.lifeMu.Unlock()
		return
	}
	s.closed = true
	s.animating = false
	if s.sub != nil {
		s.sub.Cancel()
	}
	s.worker.Close()
	s.lifeMu.Unlock()

	s.gmu.Lock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gmu.Unlock()
	log.Printf("session %s closed", s.ID)
}

func (s *Session) Name() string { return s.cfg.Hack.Name }

func (s *Session) State() render.State { return s.worker.State() }

// prefChanged restarts the renderer when one of its own preferences
// changes, so the new value reaches Init.
func (s *Session) prefChanged(key string) {
	if !strings.HasPrefix(key, s.cfg.Hack.Name+"_") {
		return
	}
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.closed {
		return
	}
	log.Printf("session %s: %s changed, restarting", s.ID, key)
	s.worker.Close()
	if s.animating {
		s.worker.Start()
	}
}

// Resource resolves one option: stored preference, then the configured
// option, then the default.
func (s *Session) Resource(name string) string {
	if s.cfg.Prefs != nil {
		if v, ok := s.cfg.Prefs.String(s.cfg.Hack.Name + "_" + name); ok {
			return v
		}
	}
	if v, ok := s.cfg.Hack.Options[name]; ok {
		return v
	}
	return s.cfg.Defaults[name]
}

// Options resolves every known option.
func (s *Session) Options() map[string]string {
	out := make(map[string]string, len(s.cfg.Defaults))
	for name := range s.cfg.Defaults {
		out[name] = s.Resource(name)
	}
	for name := range s.cfg.Hack.Options {
		out[name] = s.Resource(name)
	}
	return out
}

// OptionNames returns the known option names, sorted.
func (s *Session) OptionNames() []string {
	opts := s.Options()
	names := make([]string, 0, len(opts))
	for name := range opts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Session) hackConfig() types.HackConfig {
	return types.HackConfig{Name: s.cfg.Hack.Name, Options: s.Options()}
}

func (s *Session) fault(err error) {
	log.Printf("session %s: renderer failed: %v", s.ID, err)
	// The worker is still unwinding; the callback may close the session.
	if s.cfg.OnFault != nil {
		go s.cfg.OnFault(err)
	}
}
