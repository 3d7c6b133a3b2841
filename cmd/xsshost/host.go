package main

import (
	"fmt"
	"image"
	"log"

	"xsshost/internal/fonts"
	"xsshost/internal/hack"
	"xsshost/internal/prefs"
	"xsshost/internal/render"
	"xsshost/internal/session"
	"xsshost/internal/surface"
	"xsshost/internal/types"
)

// setup is what every subcommand that renders needs.
type setup struct {
	entry  hack.Entry
	native render.Native
	prefs  *prefs.Store
}

func newSetup() (*setup, error) {
	entry, ok := hack.Lookup(*flagHack)
	if !ok {
		return nil, fmt.Errorf("unknown hack %q (have %v)", *flagHack, hack.Names())
	}

	cat, err := fonts.Scan(splitList(*flagFontDir)...)
	if err != nil {
		log.Printf("fonts: %v (continuing with built-in face)", err)
		cat = nil
	}

	store := prefs.New()
	if *flagPrefs != "" {
		if store, err = prefs.Open(*flagPrefs); err != nil {
			return nil, err
		}
	}

	return &setup{
		entry: entry,
		native: entry.New(hack.Env{
			Fonts:     cat,
			ImageDirs: splitList(*flagImageDir),
			Seed:      *flagSeed,
		}),
		prefs: store,
	}, nil
}

func (st *setup) session(surf types.Surface, onQuit func(), onFault func(error)) (*session.Session, error) {
	return session.New(session.Config{
		Hack:     types.HackConfig{Name: *flagHack, Options: flagOpts},
		Native:   st.native,
		Surface:  surf,
		Prefs:    st.prefs,
		Defaults: st.entry.Defaults,
		OnQuit:   onQuit,
		OnFault:  onFault,
	})
}

// mirrored presents to a window and keeps a copy of every frame for
// preview viewers.
type mirrored struct {
	win    *surface.X11
	frames *surface.Offscreen
}

func (m *mirrored) Size() (int, int) { return m.win.Size() }

func (m *mirrored) Present(img image.Image) error {
	if err := m.win.Present(img); err != nil {
		return err
	}
	b := img.Bounds()
	m.frames.SetSize(b.Dx(), b.Dy())
	return m.frames.Present(img)
}

// windowEvents adapts window notifications to session lifecycle calls.
type windowEvents struct {
	*session.Session
	quit func()
}

func (h windowEvents) Resized(width, height int) {
	if err := h.SurfaceChanged(width, height); err != nil {
		log.Printf("window: %v", err)
	}
}

func (h windowEvents) Visible(visible bool) { h.SetVisible(visible) }

func (h windowEvents) Closed() { h.quit() }
