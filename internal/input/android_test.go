package input

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAndroidKey_Table(t *testing.T) {
	cases := []struct {
		code int
		want uint32
	}{
		{KeycodeHome, XK_Home},
		{KeycodeDpadLeft, XK_Left},
		{KeycodePageDown, XK_Page_Down},
		{KeycodeMoveHome, XK_Begin},
		{KeycodeMoveEnd, XK_End},
		{KeycodeF1, XK_F1},
		{KeycodeF1 + 6, XK_F7},
		{KeycodeF12, XK_F12},
	}
	for _, c := range cases {
		ev, ok := AndroidKey(c.code, 0, 0, true)
		assert.True(t, ok, "code %d", c.code)
		assert.Equal(t, c.want, ev.Keysym, "code %d", c.code)
		assert.True(t, ev.Down)
	}
}

func TestAndroidKey_UnicodeFallback(t *testing.T) {
	ev, ok := AndroidKey(29, 'A', MetaShiftOn, false)
	assert.True(t, ok)
	assert.Equal(t, KeyEvent{Down: false, Keysym: 'A', Mods: ShiftMask}, ev)
}

func TestAndroidKey_DropsUntypable(t *testing.T) {
	_, ok := AndroidKey(0, 0, 0, true)
	assert.False(t, ok)
	ev, ok := AndroidKey(0, 0x263A, 0, true)
	assert.True(t, ok)
	assert.Equal(t, uint32(0x0100263A), ev.Keysym)
}

func TestRuneKeysym(t *testing.T) {
	assert.Equal(t, uint32('z'), RuneKeysym('z'))
	assert.Equal(t, uint32(0xFC), RuneKeysym('ü'))
	assert.Equal(t, uint32(0x010003BB), RuneKeysym('λ'))
	assert.Zero(t, RuneKeysym('\n'))
	assert.Zero(t, RuneKeysym(0x7F))
	assert.Zero(t, RuneKeysym(0x85))
}

func TestAndroidKey_DropsLoneModifiers(t *testing.T) {
	for _, code := range []int{KeycodeShiftLeft, KeycodeShiftRight, KeycodeCtrlLeft,
		KeycodeAltRight, KeycodeMetaLeft, KeycodeCapsLock} {
		_, ok := AndroidKey(code, 0, 0, true)
		assert.False(t, ok, "code %d", code)
	}
}

func TestAndroidMods(t *testing.T) {
	assert.Equal(t, uint32(0), AndroidMods(0))
	assert.Equal(t, uint32(ControlMask|Mod1Mask), AndroidMods(0x1000|MetaAltOn))
	assert.Equal(t, uint32(Mod1Mask), AndroidMods(MetaMetaOn))
	assert.Equal(t, uint32(LockMask|Mod2Mask|Mod3Mask),
		AndroidMods(MetaCapsLockOn|MetaSymOn|MetaFunctionOn))
}

func TestCodeToKeysym(t *testing.T) {
	assert.Equal(t, uint32('q'), CodeToKeysym("KeyQ", "q"))
	assert.Equal(t, uint32('&'), CodeToKeysym("Digit7", "&"))
	assert.Equal(t, uint32('Q'), CodeToKeysym("KeyQ", "Q"))
	assert.Equal(t, uint32('7'), CodeToKeysym("Digit7", "Unidentified"))
	assert.Equal(t, uint32('a'), CodeToKeysym("KeyA", "Dead"))
	assert.Equal(t, uint32(0xE9), CodeToKeysym("KeyE", "é"))
	assert.Equal(t, uint32(0x010020AC), CodeToKeysym("KeyE", "€"))
	assert.Equal(t, uint32(XK_space), CodeToKeysym("Space", " "))
	assert.Equal(t, uint32(XK_KP_0+4), CodeToKeysym("Numpad4", "Unidentified"))
	assert.Equal(t, uint32(XK_Left), CodeToKeysym("Numpad4", "ArrowLeft"))
	assert.Equal(t, uint32(XK_KP_Add), CodeToKeysym("NumpadAdd", "Unidentified"))
	assert.Equal(t, uint32(XK_Shift_R), CodeToKeysym("ShiftRight", "Shift"))
	assert.Equal(t, uint32(XK_F5), CodeToKeysym("F5", "F5"))
	assert.Equal(t, uint32(XK_Left), CodeToKeysym("ArrowLeft", "ArrowLeft"))
	assert.Equal(t, uint32('@'), CodeToKeysym("", "@"))
	assert.Equal(t, uint32(XK_Escape), CodeToKeysym("", "Escape"))
	assert.Equal(t, uint32(0), CodeToKeysym("LaunchMail", "LaunchMail"))
}

func TestBrowserButton(t *testing.T) {
	assert.Equal(t, 1, BrowserButton(0))
	assert.Equal(t, 2, BrowserButton(1))
	assert.Equal(t, 3, BrowserButton(2))
	assert.Equal(t, 1, BrowserButton(4))
}
