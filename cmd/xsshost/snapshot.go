package main

import (
	"flag"
	"fmt"
	"image"
	"io"
	"log"
	"os"
	"time"

	"github.com/disintegration/imaging"

	"xsshost/internal/platform"
	"xsshost/internal/surface"
)

// runSnapshot renders offscreen until the requested number of frames has
// been presented and writes the last one as PNG.
func runSnapshot(args []string) error {
	fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	frames := fs.Int("frames", 1, "Frames to render before capturing")
	out := fs.String("o", "snapshot.png", "Output file, or - for stdout")
	timeout := fs.Duration("timeout", 30*time.Second, "Give up after this long")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *frames < 1 {
		return fmt.Errorf("-frames must be >= 1")
	}
	if *out == "-" && platform.Detect(platform.Config{}).TTY {
		return fmt.Errorf("refusing to write PNG to a terminal; redirect stdout or use -o file.png")
	}

	width, height, err := parseSize(*flagSize)
	if err != nil {
		return err
	}
	st, err := newSetup()
	if err != nil {
		return err
	}

	off := surface.NewOffscreen(width, height)
	ch, cancel := off.Subscribe()
	defer cancel()

	failed := make(chan error, 1)
	sess, err := st.session(off, nil, func(err error) {
		select {
		case failed <- err:
		default:
		}
	})
	if err != nil {
		return err
	}
	defer sess.Close()
	if err := sess.SurfaceChanged(width, height); err != nil {
		return err
	}
	sess.SetVisible(true)

	img, err := collect(ch, failed, *frames, *timeout)
	if err != nil {
		return err
	}
	sess.SetVisible(false)

	var w io.Writer = os.Stdout
	if *out != "-" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := imaging.Encode(w, img, imaging.PNG); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if *out != "-" {
		log.Printf("snapshot: wrote %s (%dx%d)", *out, width, height)
	}
	return nil
}

// collect waits for n frames on ch. The surface keeps only the newest
// frame, so n counts frames received rather than frames rendered.
func collect(ch <-chan image.Image, failed <-chan error, n int, timeout time.Duration) (image.Image, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	var last image.Image
	for seen := 0; seen < n; {
		select {
		case img := <-ch:
			last = img
			seen++
		case err := <-failed:
			return nil, fmt.Errorf("renderer failed: %w", err)
		case <-deadline.C:
			if last != nil {
				return last, nil
			}
			return nil, fmt.Errorf("no frame after %s", timeout)
		}
	}
	return last, nil
}
