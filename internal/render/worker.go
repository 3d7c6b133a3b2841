package render

import (
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"xsshost/internal/types"
)

// State is the observable state of a Worker.
type State int

const (
	Idle State = iota
	WaitingForDimensions
	Initializing
	Rendering
	Paused
	Stopping
)

var stateNames = [...]string{"idle", "waiting", "initializing", "rendering", "paused", "stopping"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Config configures a Worker.
type Config struct {
	Native  Native
	Surface types.Surface
	// Hack is called before every Init so a restarted worker picks up
	// changed options.
	Hack func() types.HackConfig
	// OnFault runs on the worker goroutine before it exits, so it must
	// not call Close.
	OnFault func(error)
}

// Worker drives a Native renderer from a single background goroutine that
// is locked to its OS thread. All state shared with callers lives under mu
// and is signalled through cond.
type Worker struct {
	cfg Config

	mu      sync.Mutex
	cond    *sync.Cond
	width   int
	height  int
	running bool
	inFrame bool
	gen     uint64 // bumped by every state-changing call
	state   State
	cur     *unit
	last    <-chan struct{}

	// ctxMu is held exclusively around Init and Done so events never
	// reach a half-built or released context.
	ctxMu sync.RWMutex
	live  bool
}

// unit is one background goroutine's lifetime. A Worker creates a new
// unit on the first Start after a Close.
type unit struct {
	cancel bool
	prev   <-chan struct{}
	done   chan struct{}
}

func NewWorker(cfg Config) *Worker {
	w := &Worker{cfg: cfg}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Start spawns the background goroutine if none exists, or resumes a
// paused one.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case w.cur == nil:
		u := &unit{prev: w.last, done: make(chan struct{})}
		w.cur = u
		w.last = u.done
		w.state = WaitingForDimensions
		go w.run(u)
	case w.running:
		return
	}
	w.running = true
	w.gen++
	w.cond.Broadcast()
}

// Pause stops frame requests. It returns once any frame already in flight
// has finished; no further frames are rendered until Start.
func (w *Worker) Pause() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cur == nil {
		return
	}
	w.running = false
	w.gen++
	w.cond.Broadcast()
	for w.inFrame {
		w.cond.Wait()
	}
}

// Resize sets the target dimensions. The worker picks them up before its
// next frame; several calls in between collapse into one native resize.
func (w *Worker) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return ErrInvalidDimensions
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.width, w.height = width, height
	w.gen++
	w.cond.Broadcast()
	return nil
}

// Close cancels the background goroutine and waits for it to exit. The
// native context, if any, has been released when Close returns, including
// when another Close is already waiting for the same goroutine.
func (w *Worker) Close() {
	w.mu.Lock()
	u := w.cur
	if u == nil {
		last := w.last
		w.mu.Unlock()
		if last != nil {
			<-last
		}
		return
	}
	w.running = false
	u.cancel = true
	w.cur = nil
	w.state = Stopping
	w.gen++
	w.cond.Broadcast()
	w.mu.Unlock()

	<-u.done

	w.mu.Lock()
	if w.cur == nil {
		w.state = Idle
	}
	w.mu.Unlock()
}

func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Running reports whether frames are currently requested.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cur != nil && w.running
}

func (w *Worker) Size() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width, w.height
}

func (w *Worker) ButtonEvent(x, y int, down bool) bool {
	return w.withInput(func(in Input) { in.ButtonEvent(x, y, down) })
}

func (w *Worker) MotionEvent(x, y int) bool {
	return w.withInput(func(in Input) { in.MotionEvent(x, y) })
}

func (w *Worker) KeyEvent(down bool, keysym, mods uint32) bool {
	return w.withInput(func(in Input) { in.KeyEvent(down, keysym, mods) })
}

func (w *Worker) withInput(fn func(Input)) bool {
	in, ok := w.cfg.Native.(Input)
	if !ok {
		return false
	}
	w.ctxMu.RLock()
	defer w.ctxMu.RUnlock()
	if !w.live {
		return false
	}
	fn(in)
	return true
}

func (w *Worker) run(u *unit) {
	defer close(u.done)
	if u.prev != nil {
		<-u.prev
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	log.Printf("render: worker started on thread %d", threadID())

	width, height, ok := w.initialize(u)
	if !ok {
		log.Printf("render: worker exited before init")
		return
	}
	w.frames(u, width, height)
	log.Printf("render: worker exited")
}

// initialize waits for valid dimensions and a start request, then creates
// the native context. It reports false if the unit was cancelled or the
// renderer faulted.
func (w *Worker) initialize(u *unit) (int, int, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for {
		w.setStateLocked(u, WaitingForDimensions)
		for !u.cancel && (!w.running || w.width <= 0 || w.height <= 0) {
			w.cond.Wait()
		}
		if u.cancel {
			return 0, 0, false
		}

		width, height := w.width, w.height
		w.setStateLocked(u, Initializing)
		w.mu.Unlock()
		err := w.initNative(width, height)
		w.mu.Lock()

		switch {
		case err == nil:
			return width, height, true
		case errors.Is(err, ErrSurfaceLost):
			log.Printf("render: init %dx%d: %v, waiting for resize", width, height, err)
			// A resize that raced with init already carries usable dimensions.
			if w.width == width && w.height == height {
				w.width, w.height = 0, 0
			}
		default:
			w.detachLocked(u)
			w.mu.Unlock()
			w.fault(&FaultError{Op: "init", Err: err})
			w.mu.Lock()
			return 0, 0, false
		}
	}
}

func (w *Worker) frames(u *unit, curW, curH int) {
	var fault error

	w.mu.Lock()
	for {
		for !u.cancel && !w.running {
			w.setStateLocked(u, Paused)
			w.cond.Wait()
		}
		if u.cancel {
			break
		}
		w.setStateLocked(u, Rendering)
		width, height := w.width, w.height
		resize := width != curW || height != curH
		curW, curH = width, height
		w.inFrame = true
		w.mu.Unlock()

		var err error
		if resize {
			err = protect("resize", func() error {
				return w.cfg.Native.Resize(width, height, 0)
			})
		}
		var delay time.Duration
		if err == nil {
			err = protect("render", func() error {
				var rerr error
				delay, rerr = w.cfg.Native.Render()
				return rerr
			})
		}

		w.mu.Lock()
		w.inFrame = false
		w.cond.Broadcast()
		if err != nil {
			fault = err
			break
		}
		w.sleepLocked(u, delay)
	}
	if fault != nil {
		w.detachLocked(u)
	} else {
		w.setStateLocked(u, Stopping)
	}
	w.mu.Unlock()

	w.doneNative()
	if fault != nil {
		w.fault(fault)
	}
}

// sleepLocked waits for d to elapse, for a state change, or for
// cancellation, whichever comes first.
func (w *Worker) sleepLocked(u *unit, d time.Duration) {
	if d <= 0 {
		return
	}
	gen := w.gen
	expired := false
	t := time.AfterFunc(d, func() {
		w.mu.Lock()
		expired = true
		w.cond.Broadcast()
		w.mu.Unlock()
	})
	for !expired && !u.cancel && w.running && gen == w.gen {
		w.cond.Wait()
	}
	t.Stop()
}

func (w *Worker) initNative(width, height int) (err error) {
	w.ctxMu.Lock()
	defer w.ctxMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	var cfg types.HackConfig
	if w.cfg.Hack != nil {
		cfg = w.cfg.Hack()
	}
	if err := w.cfg.Native.Init(cfg, width, height, w.cfg.Surface); err != nil {
		return err
	}
	w.live = true
	log.Printf("render: %s initialized at %dx%d", cfg.Name, width, height)
	return nil
}

func (w *Worker) doneNative() {
	w.ctxMu.Lock()
	defer w.ctxMu.Unlock()
	w.live = false
	defer func() {
		if r := recover(); r != nil {
			log.Printf("render: done panicked: %v", r)
		}
	}()
	w.cfg.Native.Done()
}

func (w *Worker) fault(err error) {
	log.Printf("render: fatal: %v", err)
	if w.cfg.OnFault != nil {
		w.cfg.OnFault(err)
	}
}

func (w *Worker) setStateLocked(u *unit, s State) {
	if w.cur == u {
		w.state = s
	}
}

// detachLocked forgets a unit that is exiting on its own so the next Start
// creates a fresh one.
func (w *Worker) detachLocked(u *unit) {
	if w.cur == u {
		w.cur = nil
		w.running = false
		w.state = Idle
	}
}

func protect(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &FaultError{Op: op, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := fn(); err != nil {
		return &FaultError{Op: op, Err: err}
	}
	return nil
}
