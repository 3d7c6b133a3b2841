package render

import (
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xsshost/internal/types"
)

const (
	waitFor = 2 * time.Second
	tick    = time.Millisecond
)

type nullSurface struct{}

func (nullSurface) Size() (int, int)          { return 0, 0 }
func (nullSurface) Present(image.Image) error { return nil }

type fakeNative struct {
	mu        sync.Mutex
	inits     [][2]int
	resizes   [][2]int
	renders   int
	dones     int
	live      bool
	overlap   bool
	initErrs  []error
	renderErr error
	panicOn   string
	delay     time.Duration
	gate      chan struct{}
	events    []string
	cfgs      []types.HackConfig
}

func (f *fakeNative) Init(cfg types.HackConfig, width, height int, _ types.Surface) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.live {
		f.overlap = true
	}
	f.inits = append(f.inits, [2]int{width, height})
	f.cfgs = append(f.cfgs, cfg)
	if width == 0 || height == 0 {
		f.overlap = true
	}
	if len(f.initErrs) > 0 {
		err := f.initErrs[0]
		f.initErrs = f.initErrs[1:]
		if err != nil {
			return err
		}
	}
	f.live = true
	return nil
}

func (f *fakeNative) Resize(width, height int, _ float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.live {
		f.overlap = true
	}
	f.resizes = append(f.resizes, [2]int{width, height})
	return nil
}

func (f *fakeNative) Render() (time.Duration, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.live {
		f.overlap = true
	}
	f.renders++
	if f.panicOn == "render" {
		panic("boom")
	}
	return f.delay, f.renderErr
}

func (f *fakeNative) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.live {
		f.overlap = true
	}
	f.live = false
	f.dones++
}

func (f *fakeNative) ButtonEvent(x, y int, down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, "button")
}

func (f *fakeNative) MotionEvent(x, y int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, "motion")
}

func (f *fakeNative) KeyEvent(down bool, keysym, mods uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, "key")
}

func (f *fakeNative) counts() (inits, renders, dones int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inits), f.renders, f.dones
}

func (f *fakeNative) snapshotResizes() [][2]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][2]int(nil), f.resizes...)
}

func newTestWorker(f *fakeNative, onFault func(error)) *Worker {
	return NewWorker(Config{
		Native:  f,
		Surface: nullSurface{},
		Hack:    func() types.HackConfig { return types.HackConfig{Name: "fake"} },
		OnFault: onFault,
	})
}

func rendersAtLeast(f *fakeNative, n int) func() bool {
	return func() bool {
		_, r, _ := f.counts()
		return r >= n
	}
}

func TestWorker_StartWithoutDimensionsDefersInit(t *testing.T) {
	f := &fakeNative{delay: time.Millisecond}
	w := newTestWorker(f, nil)
	defer w.Close()

	assert.ErrorIs(t, w.Resize(0, 0), ErrInvalidDimensions)
	w.Start()
	require.Eventually(t, func() bool { return w.State() == WaitingForDimensions }, waitFor, tick)
	time.Sleep(20 * time.Millisecond)
	inits, _, _ := f.counts()
	assert.Equal(t, 0, inits)

	require.NoError(t, w.Resize(800, 480))
	require.Eventually(t, rendersAtLeast(f, 3), waitFor, tick)

	f.mu.Lock()
	assert.Equal(t, [][2]int{{800, 480}}, f.inits)
	assert.Empty(t, f.resizes)
	assert.False(t, f.overlap)
	assert.Equal(t, "fake", f.cfgs[0].Name)
	f.mu.Unlock()
}

func TestWorker_SurfaceLostRetriesOnResize(t *testing.T) {
	var faults int
	f := &fakeNative{delay: time.Millisecond, initErrs: []error{ErrSurfaceLost}}
	w := newTestWorker(f, func(error) { faults++ })
	defer w.Close()

	require.NoError(t, w.Resize(320, 200))
	w.Start()
	require.Eventually(t, func() bool {
		inits, _, _ := f.counts()
		return inits == 1 && w.State() == WaitingForDimensions
	}, waitFor, tick)

	w1, h1 := w.Size()
	assert.Equal(t, 0, w1)
	assert.Equal(t, 0, h1)

	require.NoError(t, w.Resize(640, 360))
	require.Eventually(t, rendersAtLeast(f, 1), waitFor, tick)

	f.mu.Lock()
	assert.Equal(t, [][2]int{{320, 200}, {640, 360}}, f.inits)
	f.mu.Unlock()
	assert.Zero(t, faults)
}

func TestWorker_ResizesCoalesceWhilePaused(t *testing.T) {
	f := &fakeNative{delay: time.Millisecond}
	w := newTestWorker(f, nil)
	defer w.Close()

	require.NoError(t, w.Resize(100, 100))
	w.Start()
	require.Eventually(t, rendersAtLeast(f, 2), waitFor, tick)

	w.Pause()
	_, before, _ := f.counts()
	require.NoError(t, w.Resize(200, 200))
	require.NoError(t, w.Resize(300, 300))
	require.NoError(t, w.Resize(400, 300))
	time.Sleep(30 * time.Millisecond)
	_, after, _ := f.counts()
	assert.Equal(t, before, after, "paused worker rendered")
	assert.Empty(t, f.snapshotResizes())

	w.Start()
	require.Eventually(t, rendersAtLeast(f, before+2), waitFor, tick)
	assert.Equal(t, [][2]int{{400, 300}}, f.snapshotResizes())
}

func TestWorker_ResizesCoalesceDuringFrame(t *testing.T) {
	gate := make(chan struct{})
	f := &fakeNative{gate: gate}
	w := newTestWorker(f, nil)
	defer func() {
		f.mu.Lock()
		f.gate = nil
		f.mu.Unlock()
		close(gate)
		w.Close()
	}()

	require.NoError(t, w.Resize(100, 100))
	w.Start()
	require.Eventually(t, func() bool { return w.State() == Rendering }, waitFor, tick)

	// The first frame is parked on the gate.
	require.NoError(t, w.Resize(110, 110))
	require.NoError(t, w.Resize(120, 120))
	require.NoError(t, w.Resize(130, 125))

	gate <- struct{}{} // first frame
	gate <- struct{}{} // second frame, after the resize
	require.Eventually(t, rendersAtLeast(f, 2), waitFor, tick)
	assert.Equal(t, [][2]int{{130, 125}}, f.snapshotResizes())
}

func TestWorker_PauseStopsFrames(t *testing.T) {
	f := &fakeNative{delay: time.Hour}
	w := newTestWorker(f, nil)
	defer w.Close()

	require.NoError(t, w.Resize(64, 64))
	w.Start()
	require.Eventually(t, rendersAtLeast(f, 1), waitFor, tick)

	// Resize wakes the long sleep and renders again.
	require.NoError(t, w.Resize(65, 65))
	require.Eventually(t, rendersAtLeast(f, 2), waitFor, tick)

	w.Pause()
	require.Eventually(t, func() bool { return w.State() == Paused }, waitFor, tick)
	_, before, _ := f.counts()
	require.NoError(t, w.Resize(66, 66))
	time.Sleep(20 * time.Millisecond)
	_, after, _ := f.counts()
	assert.Equal(t, before, after)
	assert.False(t, w.Running())

	w.Start()
	require.Eventually(t, rendersAtLeast(f, before+1), waitFor, tick)
}

func TestWorker_CloseJoinsAndReleasesOnce(t *testing.T) {
	f := &fakeNative{delay: time.Millisecond}
	w := newTestWorker(f, nil)

	require.NoError(t, w.Resize(10, 10))
	w.Start()
	require.Eventually(t, rendersAtLeast(f, 1), waitFor, tick)

	require.NoError(t, w.Resize(20, 20))
	w.Pause()
	w.Close()

	inits, _, dones := f.counts()
	assert.Equal(t, 1, inits)
	assert.Equal(t, 1, dones)
	assert.Equal(t, Idle, w.State())

	w.Close()
	_, _, dones = f.counts()
	assert.Equal(t, 1, dones)
}

func TestWorker_SecondCloseWaitsForExit(t *testing.T) {
	gate := make(chan struct{})
	f := &fakeNative{gate: gate}
	w := newTestWorker(f, nil)

	require.NoError(t, w.Resize(10, 10))
	w.Start()
	require.Eventually(t, func() bool { return w.State() == Rendering }, waitFor, tick)

	first := make(chan struct{})
	go func() {
		w.Close()
		close(first)
	}()
	require.Eventually(t, func() bool { return w.State() == Stopping }, waitFor, tick)

	second := make(chan struct{})
	go func() {
		w.Close()
		close(second)
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-second:
		t.Fatal("Close returned while the frame was still running")
	default:
	}
	_, _, dones := f.counts()
	assert.Zero(t, dones)

	f.mu.Lock()
	f.gate = nil
	f.mu.Unlock()
	close(gate)

	for _, ch := range []chan struct{}{first, second} {
		select {
		case <-ch:
		case <-time.After(waitFor):
			t.Fatal("Close did not return")
		}
	}
	_, _, dones = f.counts()
	assert.Equal(t, 1, dones)
}

func TestWorker_RepeatedStartKeepsDelay(t *testing.T) {
	f := &fakeNative{delay: time.Hour}
	w := newTestWorker(f, nil)
	defer w.Close()

	require.NoError(t, w.Resize(10, 10))
	w.Start()
	require.Eventually(t, rendersAtLeast(f, 1), waitFor, tick)

	for i := 0; i < 5; i++ {
		w.Start()
	}
	time.Sleep(30 * time.Millisecond)
	_, renders, _ := f.counts()
	assert.Equal(t, 1, renders)
	assert.Equal(t, Rendering, w.State())
}

func TestWorker_CloseBeforeInitSkipsDone(t *testing.T) {
	f := &fakeNative{}
	w := newTestWorker(f, nil)
	w.Start()
	w.Close()

	inits, _, dones := f.counts()
	assert.Zero(t, inits)
	assert.Zero(t, dones)
}

func TestWorker_ReopenCreatesFreshContext(t *testing.T) {
	f := &fakeNative{delay: time.Millisecond}
	w := newTestWorker(f, nil)

	require.NoError(t, w.Resize(50, 40))
	for i := 1; i <= 3; i++ {
		w.Start()
		require.Eventually(t, rendersAtLeast(f, i), waitFor, tick)
		w.Close()
		inits, _, dones := f.counts()
		assert.Equal(t, i, inits)
		assert.Equal(t, i, dones)
	}
	f.mu.Lock()
	assert.False(t, f.overlap)
	f.mu.Unlock()
}

func TestWorker_RandomizedLifecycleBalancesInitAndDone(t *testing.T) {
	f := &fakeNative{delay: 100 * time.Microsecond}
	w := newTestWorker(f, nil)

	ops := []func(){
		w.Start,
		w.Pause,
		func() { _ = w.Resize(30, 20) },
		func() { _ = w.Resize(40, 30) },
		w.Close,
	}
	for i := 0; i < 200; i++ {
		ops[(i*7+i/3)%len(ops)]()
		if i%17 == 0 {
			time.Sleep(time.Millisecond)
		}
	}
	w.Close()

	inits, _, dones := f.counts()
	assert.Equal(t, inits, dones)
	f.mu.Lock()
	assert.False(t, f.overlap)
	f.mu.Unlock()
}

func TestWorker_ConcurrentCallsBeforeClose(t *testing.T) {
	f := &fakeNative{delay: 50 * time.Microsecond}
	w := newTestWorker(f, nil)
	require.NoError(t, w.Resize(8, 8))
	w.Start()
	require.Eventually(t, rendersAtLeast(f, 1), waitFor, tick)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = w.Resize(8+i, 8+j)
				if j%10 == 0 {
					w.Pause()
					w.Start()
				}
			}
		}(i)
	}
	wg.Wait()
	w.Close()

	inits, _, dones := f.counts()
	assert.Equal(t, 1, inits)
	assert.Equal(t, 1, dones)
}

func TestWorker_RenderErrorIsFatal(t *testing.T) {
	faults := make(chan error, 2)
	f := &fakeNative{renderErr: errors.New("gl context gone")}
	w := newTestWorker(f, func(err error) { faults <- err })

	require.NoError(t, w.Resize(10, 10))
	w.Start()

	var err error
	select {
	case err = <-faults:
	case <-time.After(waitFor):
		t.Fatal("no fault reported")
	}
	var fe *FaultError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "render", fe.Op)

	require.Eventually(t, func() bool {
		_, _, dones := f.counts()
		return dones == 1
	}, waitFor, tick)
	assert.Equal(t, Idle, w.State())
	assert.False(t, w.Running())
	w.Close()

	inits, renders, _ := f.counts()
	assert.Equal(t, 1, inits)
	assert.Equal(t, 1, renders)
	assert.Len(t, faults, 0)
}

func TestWorker_InitErrorIsFatal(t *testing.T) {
	faults := make(chan error, 1)
	f := &fakeNative{initErrs: []error{errors.New("no such hack")}}
	w := newTestWorker(f, func(err error) { faults <- err })

	require.NoError(t, w.Resize(10, 10))
	w.Start()

	select {
	case err := <-faults:
		var fe *FaultError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, "init", fe.Op)
	case <-time.After(waitFor):
		t.Fatal("no fault reported")
	}
	w.Close()
	_, _, dones := f.counts()
	assert.Zero(t, dones)
}

func TestWorker_PanicBecomesFault(t *testing.T) {
	faults := make(chan error, 1)
	f := &fakeNative{panicOn: "render"}
	w := newTestWorker(f, func(err error) { faults <- err })

	require.NoError(t, w.Resize(10, 10))
	w.Start()

	select {
	case err := <-faults:
		assert.Contains(t, err.Error(), "panic: boom")
	case <-time.After(waitFor):
		t.Fatal("no fault reported")
	}
	require.Eventually(t, func() bool {
		_, _, dones := f.counts()
		return dones == 1
	}, waitFor, tick)
}

func TestWorker_EventsOnlyWhileLive(t *testing.T) {
	f := &fakeNative{delay: time.Millisecond}
	w := newTestWorker(f, nil)

	assert.False(t, w.ButtonEvent(1, 1, true))

	require.NoError(t, w.Resize(10, 10))
	w.Start()
	require.Eventually(t, rendersAtLeast(f, 1), waitFor, tick)

	assert.True(t, w.ButtonEvent(1, 2, true))
	assert.True(t, w.MotionEvent(3, 4))
	assert.True(t, w.KeyEvent(true, ' ', 0))

	w.Close()
	assert.False(t, w.KeyEvent(false, ' ', 0))

	f.mu.Lock()
	assert.Equal(t, []string{"button", "motion", "key"}, f.events)
	f.mu.Unlock()
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "rendering", Rendering.String())
	assert.Equal(t, "State(42)", State(42).String())
}
