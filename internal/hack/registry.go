// Package hack holds the registry of renderers a session can run.
package hack

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"xsshost/internal/fonts"
	"xsshost/internal/render"
)

// Env is what the host makes available to renderers.
type Env struct {
	Fonts     *fonts.Catalog // may be nil
	ImageDirs []string
	Seed      int64 // zero means time-based
}

func (e Env) rand() *rand.Rand {
	seed := e.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// Entry describes one registered renderer.
type Entry struct {
	New         func(Env) render.Native
	Defaults    map[string]string
	Description string
}

var (
	mu      sync.RWMutex
	entries = map[string]Entry{}
)

// Register adds a renderer under name. Registering a name twice is an
// error.
func Register(name string, e Entry) error {
	if e.New == nil {
		return fmt.Errorf("hack %q: no constructor", name)
	}
	mu.Lock()
	defer mu.Unlock()
	if _, ok := entries[name]; ok {
		return fmt.Errorf("hack %q already registered", name)
	}
	entries[name] = e
	return nil
}

func Lookup(name string) (Entry, bool) {
	mu.RLock()
	defer mu.RUnlock()
	e, ok := entries[name]
	return e, ok
}

// Names returns the registered names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(entries))
	for name := range entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

var builtinOnce sync.Once

// Builtin registers the renderers shipped with the host. It is safe to
// call more than once.
func Builtin() {
	builtinOnce.Do(func() {
		must(Register("testcard", Entry{
			New:         newTestcard,
			Defaults:    testcardDefaults,
			Description: "Colour bars with a bouncing disc; tap or click to move it.",
		}))
		must(Register("slideshow", Entry{
			New:         newSlideshow,
			Defaults:    slideshowDefaults,
			Description: "Random pictures from a directory or URL.",
		}))
	})
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func parseMicros(s string) (time.Duration, error) {
	var us int64
	if _, err := fmt.Sscanf(s, "%d", &us); err != nil {
		return 0, fmt.Errorf("delay %q: %w", s, err)
	}
	if us < 0 {
		us = 0
	}
	return time.Duration(us) * time.Microsecond, nil
}
