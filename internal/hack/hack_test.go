package hack

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xsshost/internal/render"
	"xsshost/internal/surface"
	"xsshost/internal/types"
)

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func rgbAt(img image.Image, x, y int) (uint8, uint8, uint8) {
	r, g, b, _ := img.At(x, y).RGBA()
	return uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)
}

func TestBuiltinRegistersOnce(t *testing.T) {
	Builtin()
	Builtin()
	assert.Equal(t, []string{"slideshow", "testcard"}, Names())

	e, ok := Lookup("testcard")
	require.True(t, ok)
	assert.Equal(t, "20000", e.Defaults["delay"])
	assert.NotEmpty(t, e.Description)

	_, ok = Lookup("nope")
	assert.False(t, ok)
}

func TestRegisterRejectsDuplicatesAndNil(t *testing.T) {
	Builtin()
	assert.Error(t, Register("testcard", Entry{New: newTestcard}))
	assert.Error(t, Register("empty", Entry{}))
}

func TestParseMicros(t *testing.T) {
	d, err := parseMicros("20000")
	require.NoError(t, err)
	assert.Equal(t, 20*time.Millisecond, d)

	d, err = parseMicros("-5")
	require.NoError(t, err)
	assert.Zero(t, d)

	_, err = parseMicros("soon")
	assert.Error(t, err)
}

func TestTestcard_LostSurface(t *testing.T) {
	n := newTestcard(Env{Seed: 1})
	err := n.Init(types.HackConfig{Name: "testcard"}, 100, 100, surface.NewOffscreen(0, 0))
	assert.ErrorIs(t, err, render.ErrSurfaceLost)
}

func TestTestcard_BadOption(t *testing.T) {
	n := newTestcard(Env{Seed: 1})
	cfg := types.HackConfig{Name: "testcard", Options: map[string]string{"speed": "fast"}}
	assert.Error(t, n.Init(cfg, 100, 100, surface.NewOffscreen(100, 100)))
}

func TestTestcard_RendersAndFollowsButton(t *testing.T) {
	out := surface.NewOffscreen(200, 200)
	n := newTestcard(Env{Seed: 1})
	cfg := types.HackConfig{Name: "testcard", Options: map[string]string{"delay": "1000"}}
	require.NoError(t, n.Init(cfg, 200, 200, out))
	defer n.Done()

	delay, err := n.Render()
	require.NoError(t, err)
	assert.Equal(t, time.Millisecond, delay)
	frame := out.Snapshot()
	require.NotNil(t, frame)
	assert.Equal(t, image.Pt(200, 200), frame.Bounds().Size())

	in := n.(render.Input)
	in.ButtonEvent(50, 50, true)
	_, err = n.Render()
	require.NoError(t, err)
	r, g, b := rgbAt(out.Snapshot(), 50, 50)
	assert.Equal(t, [3]uint8{255, 255, 255}, [3]uint8{r, g, b})

	in.MotionEvent(150, 60)
	_, err = n.Render()
	require.NoError(t, err)
	r, g, b = rgbAt(out.Snapshot(), 150, 60)
	assert.Equal(t, [3]uint8{255, 255, 255}, [3]uint8{r, g, b})
}

func TestTestcard_KeyCyclesPalette(t *testing.T) {
	out := surface.NewOffscreen(140, 90)
	n := newTestcard(Env{Seed: 1})
	require.NoError(t, n.Init(types.HackConfig{Name: "testcard"}, 140, 90, out))
	defer n.Done()

	in := n.(render.Input)
	in.ButtonEvent(130, 80, true) // park the disc away from the sampled pixel
	_, err := n.Render()
	require.NoError(t, err)
	before := out.Snapshot().At(5, 5)

	in.KeyEvent(true, 'a', 0)
	_, err = n.Render()
	require.NoError(t, err)
	assert.NotEqual(t, before, out.Snapshot().At(5, 5))
}

func TestTestcard_Resize(t *testing.T) {
	out := surface.NewOffscreen(100, 100)
	n := newTestcard(Env{Seed: 1})
	require.NoError(t, n.Init(types.HackConfig{Name: "testcard"}, 100, 100, out))
	defer n.Done()

	require.NoError(t, n.Resize(64, 48, 0))
	_, err := n.Render()
	require.NoError(t, err)
	assert.Equal(t, image.Pt(64, 48), out.Snapshot().Bounds().Size())
}

func TestSlideshow_FromDirectory(t *testing.T) {
	dir := t.TempDir()
	red := color.NRGBA{R: 255, A: 255}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "red.png"), solidPNG(t, 600, 600, red), 0o644))

	out := surface.NewOffscreen(200, 100)
	n := newSlideshow(Env{Seed: 1})
	cfg := types.HackConfig{Name: "slideshow", Options: map[string]string{"imageDirectory": dir}}
	require.NoError(t, n.Init(cfg, 200, 100, out))
	defer n.Done()

	_, err := n.Render()
	require.NoError(t, err)
	frame := out.Snapshot()
	require.NotNil(t, frame)

	r, g, b := rgbAt(frame, 100, 50)
	assert.Equal(t, [3]uint8{255, 0, 0}, [3]uint8{r, g, b})
	r, g, b = rgbAt(frame, 5, 50) // letterbox
	assert.Equal(t, [3]uint8{0, 0, 0}, [3]uint8{r, g, b})
}

func TestSlideshow_EmptyDirectoryShowsStatus(t *testing.T) {
	out := surface.NewOffscreen(120, 80)
	n := newSlideshow(Env{Seed: 1, ImageDirs: []string{t.TempDir()}})
	require.NoError(t, n.Init(types.HackConfig{Name: "slideshow"}, 120, 80, out))
	defer n.Done()

	_, err := n.Render()
	require.NoError(t, err)
	assert.NotNil(t, out.Snapshot())
	assert.Contains(t, n.(*slideshow).status, "no images")
}

func TestSlideshow_FromURL(t *testing.T) {
	body := solidPNG(t, 50, 50, color.NRGBA{G: 255, A: 255})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(body)
	}))
	defer srv.Close()

	out := surface.NewOffscreen(80, 80)
	n := newSlideshow(Env{Seed: 1})
	cfg := types.HackConfig{Name: "slideshow", Options: map[string]string{"imageURL": srv.URL}}
	require.NoError(t, n.Init(cfg, 80, 80, out))
	defer n.Done()

	assert.Eventually(t, func() bool {
		if _, err := n.Render(); err != nil {
			return false
		}
		r, g, b := rgbAt(out.Snapshot(), 40, 40)
		return r == 0 && g == 255 && b == 0
	}, 5*time.Second, 10*time.Millisecond)
}
