package hack

import (
	"fmt"
	"image"
	"image/color"
	"log"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/gogpu/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"xsshost/internal/fonts"
	"xsshost/internal/input"
	"xsshost/internal/render"
	"xsshost/internal/types"
)

var testcardDefaults = map[string]string{
	"delay": "20000",
	"speed": "4",
	"font":  "sans-serif",
}

var palettes = [][]gg.RGBA{
	{gg.RGB(.75, .75, .75), gg.RGB(.75, .75, 0), gg.RGB(0, .75, .75), gg.RGB(0, .75, 0),
		gg.RGB(.75, 0, .75), gg.RGB(.75, 0, 0), gg.RGB(0, 0, .75)},
	{gg.Hex("#1b1b3a"), gg.Hex("#693668"), gg.Hex("#a74482"), gg.Hex("#f84aa7"),
		gg.Hex("#ff3562"), gg.Hex("#ffb86f"), gg.Hex("#e0ca3c")},
	{gg.HSL(0, 0, .1), gg.HSL(0, 0, .25), gg.HSL(0, 0, .4), gg.HSL(0, 0, .55),
		gg.HSL(0, 0, .7), gg.HSL(0, 0, .85), gg.HSL(0, 0, 1)},
}

// testcard draws colour bars and a bouncing disc. It is the reference
// renderer for surfaces and input plumbing.
type testcard struct {
	env  Env
	rng  *rand.Rand
	name string

	surface types.Surface
	dc      *gg.Context
	face    font.Face
	delay   time.Duration
	frame   int

	// Guarded by mu; events arrive from other goroutines.
	mu      sync.Mutex
	width   int
	height  int
	x, y    float64
	dx, dy  float64
	held    bool
	palette int
}

func newTestcard(env Env) render.Native {
	return &testcard{env: env, rng: env.rand()}
}

func (t *testcard) Init(cfg types.HackConfig, width, height int, surface types.Surface) error {
	if sw, sh := surface.Size(); sw <= 0 || sh <= 0 {
		return render.ErrSurfaceLost
	}
	delay, err := parseMicros(cfg.Option("delay", testcardDefaults["delay"]))
	if err != nil {
		return fmt.Errorf("testcard: %w", err)
	}
	speed, err := strconv.ParseFloat(cfg.Option("speed", testcardDefaults["speed"]), 64)
	if err != nil {
		return fmt.Errorf("testcard: speed: %w", err)
	}

	t.name = cfg.Name
	t.surface = surface
	t.delay = delay
	t.frame = 0
	t.face = t.loadFace(cfg.Option("font", testcardDefaults["font"]), height)
	t.dc = gg.NewContext(width, height)

	t.mu.Lock()
	t.width, t.height = width, height
	t.x, t.y = float64(width)/2, float64(height)/2
	angle := t.rng.Float64()
	t.dx, t.dy = speed*(0.5+angle), speed*(1.5-angle)
	t.held = false
	t.mu.Unlock()
	return nil
}

// loadFace picks a face for the label: the named family, then the generic
// family its name resolves to, then the built-in bitmap face.
func (t *testcard) loadFace(name string, height int) font.Face {
	if t.env.Fonts == nil {
		return basicfont.Face7x13
	}
	size := float64(max(12, height/24))
	candidates := []string{name}
	if generic := fonts.ResolveXLFD(name, 0, false, nil); generic != name {
		candidates = append(candidates, generic)
	}
	for _, candidate := range candidates {
		face, err := t.env.Fonts.Face(candidate, size)
		if err == nil {
			return face
		}
		log.Printf("testcard: font %q: %v", candidate, err)
	}
	return basicfont.Face7x13
}

func (t *testcard) Resize(width, height int, _ float64) error {
	if err := t.dc.Resize(width, height); err != nil {
		return err
	}
	t.mu.Lock()
	t.width, t.height = width, height
	t.x = min(t.x, float64(width))
	t.y = min(t.y, float64(height))
	t.mu.Unlock()
	return nil
}

func (t *testcard) Render() (time.Duration, error) {
	t.mu.Lock()
	w, h := float64(t.width), float64(t.height)
	r := min(w, h) / 10
	if !t.held {
		t.x, t.dx = bounce(t.x+t.dx, t.dx, r, w-r)
		t.y, t.dy = bounce(t.y+t.dy, t.dy, r, h-r)
	}
	x, y := t.x, t.y
	bars := palettes[t.palette%len(palettes)]
	t.mu.Unlock()

	dc := t.dc
	dc.ClearWithColor(gg.Black)
	bw := w / float64(len(bars))
	for i, c := range bars {
		dc.SetColor(c.Color())
		dc.DrawRectangle(float64(i)*bw, 0, bw+1, h*2/3)
		if err := dc.Fill(); err != nil {
			return 0, err
		}
	}
	dc.SetRGB(1, 1, 1)
	dc.DrawCircle(x, y, r)
	if err := dc.Fill(); err != nil {
		return 0, err
	}

	img, ok := dc.Image().(*image.RGBA)
	if !ok {
		return 0, fmt.Errorf("testcard: unexpected image type %T", dc.Image())
	}
	t.frame++
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: t.face,
		Dot:  fixed.P(8, int(h)-t.face.Metrics().Descent.Ceil()-8),
	}
	d.DrawString(fmt.Sprintf("%s %dx%d #%d", t.name, int(w), int(h), t.frame))

	if err := t.surface.Present(img); err != nil {
		return 0, err
	}
	return t.delay, nil
}

func (t *testcard) Done() {
	if t.dc != nil {
		t.dc.Close()
		t.dc = nil
	}
	if t.face != nil {
		t.face.Close()
		t.face = nil
	}
}

func (t *testcard) ButtonEvent(x, y int, down bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.held = down
	if down {
		t.x, t.y = float64(x), float64(y)
	}
}

func (t *testcard) MotionEvent(x, y int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.held {
		t.x, t.y = float64(x), float64(y)
	}
}

func (t *testcard) KeyEvent(down bool, keysym, _ uint32) {
	if !down || input.IsModifier(keysym) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.palette++
}

func bounce(pos, vel, lo, hi float64) (float64, float64) {
	switch {
	case hi <= lo:
		return (lo + hi) / 2, vel
	case pos < lo:
		return lo + (lo - pos), -vel
	case pos > hi:
		return hi - (pos - hi), -vel
	}
	return pos, vel
}
