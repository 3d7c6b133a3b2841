// Package fonts scans font directories and resolves family names the way
// X logical font descriptions expect.
package fonts

import (
	"fmt"
	"io/fs"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
)

// DefaultDirs are searched when no directories are given.
var DefaultDirs = []string{
	"/usr/share/fonts",
	"/usr/local/share/fonts",
	"~/.fonts",
	"/system/fonts",
	"/system/font",
	"/data/fonts",
}

// Style bits used by XLFD resolution.
const (
	StyleBold      = 1
	StyleItalic    = 2
	StyleMonospace = 4
)

type entry struct {
	Family string
	Path   string
	Index  int // font index inside a collection
}

// Catalog maps lower-cased family names to font files.
type Catalog struct {
	fonts map[string]entry
}

// Scan parses every font file under dirs. Unreadable directories and
// unparsable files are skipped.
func Scan(dirs ...string) (*Catalog, error) {
	if len(dirs) == 0 {
		dirs = DefaultDirs
	}
	c := &Catalog{fonts: map[string]entry{}}
	var buf sfnt.Buffer
	for _, dir := range dirs {
		dir = expandHome(dir)
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == dir {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() || !isFontFile(path) {
				return nil
			}
			c.addFile(path, &buf)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", dir, err)
		}
	}
	log.Printf("fonts: %d families", len(c.fonts))
	return c, nil
}

func (c *Catalog) addFile(path string, buf *sfnt.Buffer) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	coll, err := sfnt.ParseCollection(data)
	if err != nil {
		return
	}
	for i := 0; i < coll.NumFonts(); i++ {
		f, err := coll.Font(i)
		if err != nil {
			continue
		}
		name := familyName(f, buf)
		if name == "" {
			continue
		}
		name = Munge(name)
		key := strings.ToLower(name)
		if _, ok := c.fonts[key]; !ok {
			c.fonts[key] = entry{Family: name, Path: path, Index: i}
		}
	}
}

func familyName(f *sfnt.Font, buf *sfnt.Buffer) string {
	for _, id := range []sfnt.NameID{sfnt.NameIDFamily, sfnt.NameIDFull} {
		if name, err := f.Name(buf, id); err == nil && name != "" {
			return name
		}
	}
	return ""
}

// Munge strips style suffixes from a font name:
// "Roboto-ThinItalic" becomes "Roboto-Thin", "DejaVu Sans Bold" becomes
// "DejaVu Sans".
func Munge(name string) string {
	for _, tail := range []string{"Bold", "Italic", "Oblique", "Regular"} {
		for _, pre := range []string{" ", "-", "_", ""} {
			if i := strings.Index(name, pre+tail); i > 0 {
				name = name[:i]
			}
		}
	}
	return name
}

// Families returns the known family names, sorted.
func (c *Catalog) Families() []string {
	out := make([]string, 0, len(c.fonts))
	for _, e := range c.fonts {
		out = append(out, e.Family)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the file holding family name.
func (c *Catalog) Lookup(name string) (path string, ok bool) {
	e, ok := c.fonts[strings.ToLower(name)]
	return e.Path, ok
}

// Resolve finds a family by exact name, then by the generic names
// ResolveXLFD produces.
func (c *Catalog) Resolve(name string) (string, bool) {
	key := strings.ToLower(name)
	if e, ok := c.fonts[key]; ok {
		return e.Family, true
	}
	var match func(string) bool
	switch key {
	case "monospace":
		match = func(f string) bool { return strings.Contains(f, "mono") && !strings.Contains(f, "serif") }
	case "serif-monospace":
		match = func(f string) bool { return strings.Contains(f, "mono") }
	case "serif":
		match = func(f string) bool { return strings.Contains(f, "serif") && !strings.Contains(f, "sans") }
	case "sans-serif", "sans":
		match = func(f string) bool { return strings.Contains(f, "sans") && !strings.Contains(f, "mono") }
	default:
		return "", false
	}
	keys := make([]string, 0, len(c.fonts))
	for k := range c.fonts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if match(k) {
			return c.fonts[k].Family, true
		}
	}
	return "", false
}

// Face loads family name at the given point size (72 DPI).
func (c *Catalog) Face(name string, size float64) (font.Face, error) {
	family, ok := c.Resolve(name)
	if !ok {
		return nil, fmt.Errorf("font %q not found", name)
	}
	e := c.fonts[strings.ToLower(family)]
	data, err := os.ReadFile(e.Path)
	if err != nil {
		return nil, err
	}
	coll, err := opentype.ParseCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", e.Path, err)
	}
	f, err := coll.Font(e.Index)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", e.Path, err)
	}
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// ResolveXLFD picks a generic family for an X font name. Bold and a few
// well-known typewriter names select monospace; times, georgia and serif
// select serif. With random set the choice is made by rng.
func ResolveXLFD(name string, style int, random bool, rng *rand.Rand) string {
	var fixed, serif bool
	if random {
		serif = rng.Intn(2) == 0
		fixed = rng.Intn(8) == 0
	} else {
		switch {
		case style&StyleBold != 0, name == "fixed", name == "courier", name == "console",
			name == "lucidatypewriter", name == "monospace":
			fixed = true
		case name == "times", name == "georgia", name == "serif":
			serif = true
		case name == "serif-monospace":
			fixed, serif = true, true
		}
	}
	switch {
	case fixed && serif:
		return "serif-monospace"
	case fixed:
		return "monospace"
	case serif:
		return "serif"
	default:
		return "sans-serif"
	}
}

func isFontFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ttf", ".otf", ".ttc", ".otc":
		return true
	}
	return false
}

func expandHome(dir string) string {
	if strings.HasPrefix(dir, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, dir[2:])
		}
	}
	return dir
}
