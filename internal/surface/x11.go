package surface

import (
	"context"
	"fmt"
	"image"
	"log"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
)

// Handler receives host events from an X11 surface.
type Handler interface {
	Resized(width, height int)
	Visible(visible bool)
	Button(x, y, button int, down bool)
	Motion(x, y int)
	Key(keysym, mods uint32, down bool)
	Closed()
}

// X11 is a top-level X window used as a surface. Frames are uploaded with
// PutImage; window events are delivered to a Handler by Run.
type X11 struct {
	conn     *xgb.Conn
	win      xproto.Window
	gc       xproto.Gcontext
	depth    byte
	maxReq   int
	wmDelete xproto.Atom
	keys     keyTable

	mu     sync.Mutex
	width  int
	height int
	mapped bool
	buf    []byte
}

const eventMask = xproto.EventMaskStructureNotify |
	xproto.EventMaskExposure |
	xproto.EventMaskButtonPress |
	xproto.EventMaskButtonRelease |
	xproto.EventMaskPointerMotion |
	xproto.EventMaskKeyPress |
	xproto.EventMaskKeyRelease

// OpenX11 connects to display (empty means $DISPLAY) and maps a window.
// The surface reports size zero until the window is mapped.
func OpenX11(display, title string, width, height int) (*X11, error) {
	conn, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("connect to X display %q: %w", display, err)
	}
	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	s := &X11{
		conn:   conn,
		depth:  screen.RootDepth,
		maxReq: int(setup.MaximumRequestLength) * 4,
	}
	if s.depth != 24 && s.depth != 32 {
		conn.Close()
		return nil, fmt.Errorf("unsupported X visual depth %d", s.depth)
	}

	if s.win, err = xproto.NewWindowId(conn); err != nil {
		conn.Close()
		return nil, err
	}
	err = xproto.CreateWindowChecked(conn, screen.RootDepth, s.win, screen.Root,
		0, 0, uint16(width), uint16(height), 0,
		xproto.WindowClassInputOutput, screen.RootVisual,
		xproto.CwBackPixel|xproto.CwEventMask,
		[]uint32{screen.BlackPixel, eventMask}).Check()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create window: %w", err)
	}

	xproto.ChangeProperty(conn, xproto.PropModeReplace, s.win, xproto.AtomWmName,
		xproto.AtomString, 8, uint32(len(title)), []byte(title))
	if protocols, err := internAtom(conn, "WM_PROTOCOLS"); err == nil {
		if s.wmDelete, err = internAtom(conn, "WM_DELETE_WINDOW"); err == nil {
			data := make([]byte, 4)
			xgb.Put32(data, uint32(s.wmDelete))
			xproto.ChangeProperty(conn, xproto.PropModeReplace, s.win, protocols,
				xproto.AtomAtom, 32, 1, data)
		}
	}

	if s.gc, err = xproto.NewGcontextId(conn); err != nil {
		conn.Close()
		return nil, err
	}
	xproto.CreateGC(conn, s.gc, xproto.Drawable(s.win), 0, nil)

	if s.keys, err = loadKeyTable(conn, setup); err != nil {
		log.Printf("x11: keyboard mapping unavailable: %v", err)
	}

	if err := xproto.MapWindowChecked(conn, s.win).Check(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("map window: %w", err)
	}
	s.width, s.height = width, height
	log.Printf("x11: window 0x%x %dx%d depth %d", s.win, width, height, s.depth)
	return s, nil
}

func internAtom(conn *xgb.Conn, name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Atom, nil
}

func (s *X11) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mapped {
		return 0, 0
	}
	return s.width, s.height
}

// Present uploads img to the window's top-left corner. Frames presented
// while the window is unmapped are dropped.
func (s *X11) Present(img image.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mapped {
		return nil
	}
	b := img.Bounds()
	w, h := min(b.Dx(), s.width), min(b.Dy(), s.height)
	if w <= 0 || h <= 0 {
		return nil
	}
	s.buf = toBGRX(s.buf, img, w, h)
	for _, band := range bands(w, h, s.maxReq) {
		xproto.PutImage(s.conn, xproto.ImageFormatZPixmap, xproto.Drawable(s.win), s.gc,
			uint16(w), uint16(band.rows), 0, int16(band.y), 0, s.depth,
			s.buf[band.y*w*4:(band.y+band.rows)*w*4])
	}
	s.conn.Sync()
	return nil
}

// Run dispatches window events to h until the window is closed, the
// connection drops or ctx is done.
func (s *X11) Run(ctx context.Context, h Handler) {
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()

	for {
		ev, xerr := s.conn.WaitForEvent()
		if ev == nil && xerr == nil {
			h.Closed()
			return
		}
		if xerr != nil {
			log.Printf("x11: %v", xerr)
			continue
		}
		if !s.dispatch(ev, h) {
			return
		}
	}
}

// dispatch delivers one event to h. It reports false once the window is
// gone.
func (s *X11) dispatch(ev xgb.Event, h Handler) bool {
	switch e := ev.(type) {
	case xproto.MapNotifyEvent:
		// Without a window manager no ConfigureNotify follows the map, so
		// the creation size is announced here.
		width, height := s.setMapped(true)
		h.Resized(width, height)
		h.Visible(true)
	case xproto.UnmapNotifyEvent:
		s.setMapped(false)
		h.Visible(false)
	case xproto.ConfigureNotifyEvent:
		if s.setSize(int(e.Width), int(e.Height)) {
			h.Resized(int(e.Width), int(e.Height))
		}
	case xproto.ButtonPressEvent:
		h.Button(int(e.EventX), int(e.EventY), int(e.Detail), true)
	case xproto.ButtonReleaseEvent:
		h.Button(int(e.EventX), int(e.EventY), int(e.Detail), false)
	case xproto.MotionNotifyEvent:
		h.Motion(int(e.EventX), int(e.EventY))
	case xproto.KeyPressEvent:
		h.Key(s.keys.lookup(byte(e.Detail), e.State), uint32(e.State)&0xFF, true)
	case xproto.KeyReleaseEvent:
		h.Key(s.keys.lookup(byte(e.Detail), e.State), uint32(e.State)&0xFF, false)
	case xproto.ClientMessageEvent:
		if e.Format == 32 && xproto.Atom(e.Data.Data32[0]) == s.wmDelete {
			h.Closed()
			return false
		}
	case xproto.DestroyNotifyEvent:
		h.Closed()
		return false
	}
	return true
}

func (s *X11) setMapped(mapped bool) (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mapped = mapped
	return s.width, s.height
}

func (s *X11) setSize(width, height int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := width != s.width || height != s.height
	s.width, s.height = width, height
	return changed
}

func (s *X11) Close() {
	s.conn.Close()
}

type band struct{ y, rows int }

// bands splits an image upload into requests no larger than maxReq bytes.
func bands(width, height, maxReq int) []band {
	const header = 24
	rows := (maxReq - header) / (width * 4)
	if rows < 1 {
		rows = 1
	}
	var out []band
	for y := 0; y < height; y += rows {
		out = append(out, band{y: y, rows: min(rows, height-y)})
	}
	return out
}

// toBGRX converts the top-left w x h of img into ZPixmap byte order.
func toBGRX(buf []byte, img image.Image, w, h int) []byte {
	n := w * h * 4
	if cap(buf) < n {
		buf = make([]byte, n)
	}
	buf = buf[:n]
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < h; y++ {
			src := rgba.Pix[rgba.PixOffset(b.Min.X, b.Min.Y+y):]
			dst := buf[y*w*4:]
			for x := 0; x < w; x++ {
				dst[x*4+0] = src[x*4+2]
				dst[x*4+1] = src[x*4+1]
				dst[x*4+2] = src[x*4+0]
				dst[x*4+3] = 0
			}
		}
		return buf
	}
	i := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			buf[i+0] = byte(bl >> 8)
			buf[i+1] = byte(g >> 8)
			buf[i+2] = byte(r >> 8)
			buf[i+3] = 0
			i += 4
		}
	}
	return buf
}

type keyTable struct {
	min     byte
	perCode int
	syms    []xproto.Keysym
}

func loadKeyTable(conn *xgb.Conn, setup *xproto.SetupInfo) (keyTable, error) {
	count := byte(setup.MaxKeycode - setup.MinKeycode + 1)
	reply, err := xproto.GetKeyboardMapping(conn, setup.MinKeycode, count).Reply()
	if err != nil {
		return keyTable{}, err
	}
	return keyTable{
		min:     byte(setup.MinKeycode),
		perCode: int(reply.KeysymsPerKeycode),
		syms:    reply.Keysyms,
	}, nil
}

// lookup returns the keysym for a keycode, using the shifted column when
// Shift is held and the key has one.
func (t keyTable) lookup(code byte, state uint16) uint32 {
	if t.perCode == 0 || code < t.min {
		return 0
	}
	i := int(code-t.min) * t.perCode
	if i >= len(t.syms) {
		return 0
	}
	sym := t.syms[i]
	if state&xproto.ModMaskShift != 0 && t.perCode > 1 && t.syms[i+1] != 0 {
		sym = t.syms[i+1]
	}
	return uint32(sym)
}
