package images

import (
	"image"
	"image/color"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, dir, name string, w, h int) {
	img := imaging.New(w, h, color.NRGBA{R: 200, A: 255})
	require.NoError(t, imaging.Save(img, filepath.Join(dir, name)))
}

func TestPick_FiltersBySize(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "small.png", 100, 100)
	writePNG(t, dir, "edge.png", 480, 600)
	writePNG(t, dir, "good.png", 640, 481)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fake.jpg"), []byte("junk"), 0o644))

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 5; i++ {
		path, err := Pick([]string{dir, filepath.Join(dir, "missing")}, rng)
		require.NoError(t, err)
		assert.Equal(t, "good.png", filepath.Base(path))
	}
}

func TestPick_NoImages(t *testing.T) {
	_, err := Pick([]string{t.TempDir()}, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, ErrNoImages)
}

func TestFit_ScalesUpAndDown(t *testing.T) {
	small := image.NewNRGBA(image.Rect(0, 0, 100, 50))
	out := Fit(small, 400, 400, false)
	assert.Equal(t, image.Pt(400, 200), out.Bounds().Size())

	big := image.NewNRGBA(image.Rect(0, 0, 2000, 1000))
	out = Fit(big, 800, 480, false)
	assert.Equal(t, image.Pt(800, 400), out.Bounds().Size())
}

func TestFit_RotatesToMatchOrientation(t *testing.T) {
	landscape := image.NewNRGBA(image.Rect(0, 0, 1000, 500))
	out := Fit(landscape, 480, 800, true)
	assert.Equal(t, image.Pt(400, 800), out.Bounds().Size())

	out = Fit(landscape, 480, 800, false)
	assert.Equal(t, image.Pt(480, 240), out.Bounds().Size())
}

func TestLoadRandom(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "only.png", 1200, 900)

	l, err := LoadRandom([]string{dir}, 400, 300, false, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	assert.Equal(t, "only.png", l.Name)
	assert.Equal(t, image.Pt(400, 300), l.Image.Bounds().Size())
}
