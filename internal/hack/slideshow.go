package hack

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"xsshost/internal/images"
	"xsshost/internal/render"
	"xsshost/internal/types"
	"xsshost/internal/urlfetch"
)

var slideshowDefaults = map[string]string{
	"imageDirectory": "",
	"imageURL":       "",
	"duration":       "10",
	"rotate":         "true",
	"delay":          "50000",
}

// slideshow shows random pictures, each fitted to the surface, and moves
// on after a fixed duration or on any click or key.
type slideshow struct {
	env Env
	rng *rand.Rand

	surface  types.Surface
	dirs     []string
	url      string
	loader   *urlfetch.Loader
	fetching bool
	duration time.Duration
	rotate   bool
	delay    time.Duration

	width, height int
	current       image.Image // unfitted source of the frame on screen
	frame         *image.NRGBA
	shownAt       time.Time
	status        string

	mu   sync.Mutex
	skip bool
}

func newSlideshow(env Env) render.Native {
	return &slideshow{env: env, rng: env.rand()}
}

func (s *slideshow) Init(cfg types.HackConfig, width, height int, surface types.Surface) error {
	if sw, sh := surface.Size(); sw <= 0 || sh <= 0 {
		return render.ErrSurfaceLost
	}
	var err error
	if s.delay, err = parseMicros(cfg.Option("delay", slideshowDefaults["delay"])); err != nil {
		return fmt.Errorf("slideshow: %w", err)
	}
	secs, err := strconv.ParseFloat(cfg.Option("duration", slideshowDefaults["duration"]), 64)
	if err != nil {
		return fmt.Errorf("slideshow: duration: %w", err)
	}
	s.duration = time.Duration(secs * float64(time.Second))
	if s.rotate, err = strconv.ParseBool(cfg.Option("rotate", slideshowDefaults["rotate"])); err != nil {
		return fmt.Errorf("slideshow: rotate: %w", err)
	}

	s.dirs = s.env.ImageDirs
	if dir := cfg.Option("imageDirectory", ""); dir != "" {
		s.dirs = strings.Split(dir, ",")
	}
	s.url = cfg.Option("imageURL", "")
	if s.url != "" {
		s.loader = urlfetch.New()
	}

	s.surface = surface
	s.width, s.height = width, height
	s.current, s.frame, s.shownAt, s.fetching = nil, nil, time.Time{}, false
	s.status = "loading"
	return nil
}

func (s *slideshow) Resize(width, height int, _ float64) error {
	s.width, s.height = width, height
	s.frame = nil
	return nil
}

func (s *slideshow) Render() (time.Duration, error) {
	s.mu.Lock()
	skip := s.skip
	s.skip = false
	s.mu.Unlock()

	if skip || time.Since(s.shownAt) >= s.duration || s.fetching {
		if img := s.next(); img != nil {
			s.current, s.frame, s.shownAt = img, nil, time.Now()
		}
	}
	if s.frame == nil {
		s.frame = s.compose()
	}
	if err := s.surface.Present(s.frame); err != nil {
		return 0, err
	}
	return s.delay, nil
}

// next returns a new source image, or nil if none is ready yet.
func (s *slideshow) next() image.Image {
	if s.loader != nil {
		body, ok := s.loader.Poll(s.url)
		s.fetching = !ok
		if !ok {
			return nil
		}
		img, err := images.Decode(bytes.NewReader(body))
		if err != nil {
			s.setStatus(fmt.Sprintf("%s: %v", s.url, err))
			s.shownAt = time.Now()
			return nil
		}
		return img
	}

	loaded, err := images.LoadRandom(s.dirs, s.width, s.height, s.rotate, s.rng)
	if err != nil {
		if errors.Is(err, images.ErrNoImages) {
			err = fmt.Errorf("no images in %s", strings.Join(s.dirs, ", "))
		}
		s.setStatus(err.Error())
		// Rescan after a full duration, not every frame.
		s.shownAt = time.Now()
		return nil
	}
	log.Printf("slideshow: showing %s", loaded.Name)
	return loaded.Image
}

func (s *slideshow) setStatus(msg string) {
	if msg != s.status {
		log.Printf("slideshow: %s", msg)
	}
	s.status = msg
	s.frame = nil
}

// compose centres the current image on a black frame, or writes the
// status line when there is nothing to show.
func (s *slideshow) compose() *image.NRGBA {
	bg := imaging.New(s.width, s.height, color.Black)
	if s.current != nil {
		return imaging.PasteCenter(bg, images.Fit(s.current, s.width, s.height, s.rotate))
	}
	d := font.Drawer{
		Dst:  bg,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(8, s.height/2),
	}
	d.DrawString(s.status)
	return bg
}

func (s *slideshow) Done() {
	if s.loader != nil {
		s.loader.Close()
		s.loader = nil
	}
	s.current, s.frame = nil, nil
}

func (s *slideshow) ButtonEvent(_, _ int, down bool) {
	if down {
		s.advance()
	}
}

func (s *slideshow) MotionEvent(_, _ int) {}

func (s *slideshow) KeyEvent(down bool, _, _ uint32) {
	if down {
		s.advance()
	}
}

func (s *slideshow) advance() {
	s.mu.Lock()
	s.skip = true
	s.mu.Unlock()
}
