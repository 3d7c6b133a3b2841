// Package images picks and prepares pictures for image-consuming hacks.
package images

import (
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// Candidate images must be strictly inside these bounds on both axes.
const (
	MinSize = 480
	MaxSize = 0x7FFF
)

var ErrNoImages = errors.New("no images")

// Pick walks dirs and returns one suitable image path chosen uniformly.
func Pick(dirs []string, rng *rand.Rand) (string, error) {
	var paths []string
	for _, dir := range dirs {
		filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == dir {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() || !isImageFile(path) {
				return nil
			}
			if suitable(path) {
				paths = append(paths, path)
			}
			return nil
		})
	}
	if len(paths) == 0 {
		return "", ErrNoImages
	}
	i := rng.Intn(len(paths))
	log.Printf("images: picked %d of %d: %s", i, len(paths), paths[i])
	return paths[i], nil
}

func suitable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return false
	}
	return cfg.Width > MinSize && cfg.Height > MinSize &&
		cfg.Width < MaxSize && cfg.Height < MaxSize
}

// Fit scales img, up or down, to the largest size that fits w x h while
// keeping its aspect ratio. With rotate set, an image whose orientation
// differs from the target's is first turned 90 degrees.
func Fit(img image.Image, w, h int, rotate bool) *image.NRGBA {
	b := img.Bounds()
	iw, ih := b.Dx(), b.Dy()
	if rotate && (iw > ih) != (w > h) {
		img = imaging.Rotate90(img)
		iw, ih = ih, iw
	}
	r := min(float64(w)/float64(iw), float64(h)/float64(ih))
	nw, nh := max(1, int(float64(iw)*r)), max(1, int(float64(ih)*r))
	return imaging.Resize(img, nw, nh, imaging.Lanczos)
}

// Decode reads an image and applies its EXIF orientation.
func Decode(r io.Reader) (image.Image, error) {
	return imaging.Decode(r, imaging.AutoOrientation(true))
}

// Loaded is a prepared image and the name it was loaded under.
type Loaded struct {
	Name  string
	Image *image.NRGBA
}

// LoadRandom picks an image from dirs and fits it to w x h.
func LoadRandom(dirs []string, w, h int, rotate bool, rng *rand.Rand) (*Loaded, error) {
	path, err := Pick(dirs, rng)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("image %s unloadable: %w", path, err)
	}
	return &Loaded{Name: filepath.Base(path), Image: Fit(img, w, h, rotate)}, nil
}

func isImageFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff":
		return true
	}
	return false
}
