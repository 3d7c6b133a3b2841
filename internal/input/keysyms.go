// Package input translates viewer and host input into X11 terms: keysyms,
// modifier masks and pointer buttons.
package input

// X11 keysyms used by the translation tables. Printable Latin-1 keysyms
// equal their code point and are not listed.
const (
	XK_space = 0x0020

	XK_BackSpace   = 0xFF08
	XK_Tab         = 0xFF09
	XK_Return      = 0xFF0D
	XK_Pause       = 0xFF13
	XK_Scroll_Lock = 0xFF14
	XK_Escape      = 0xFF1B
	XK_Delete      = 0xFFFF
)

// Cursor control block, in keysym order.
const (
	XK_Home = 0xFF50 + iota
	XK_Left
	XK_Up
	XK_Right
	XK_Down
	XK_Page_Up
	XK_Page_Down
	XK_End
	XK_Begin
)

const (
	XK_Print    = 0xFF61
	XK_Insert   = 0xFF63
	XK_Menu     = 0xFF67
	XK_Num_Lock = 0xFF7F

	XK_KP_Enter    = 0xFF8D
	XK_KP_Multiply = 0xFFAA
	XK_KP_Add      = 0xFFAB
	XK_KP_Subtract = 0xFFAD
	XK_KP_Decimal  = 0xFFAE
	XK_KP_Divide   = 0xFFAF
	XK_KP_0        = 0xFFB0 // through XK_KP_9 at 0xFFB9
	XK_KP_Equal    = 0xFFBD
)

// Function keys F1 to F12 are consecutive.
const (
	XK_F1 = 0xFFBE + iota
	XK_F2
	XK_F3
	XK_F4
	XK_F5
	XK_F6
	XK_F7
	XK_F8
	XK_F9
	XK_F10
	XK_F11
	XK_F12
)

// Modifier keysyms occupy one contiguous range.
const (
	XK_Shift_L = 0xFFE1 + iota
	XK_Shift_R
	XK_Control_L
	XK_Control_R
	XK_Caps_Lock
	XK_Shift_Lock
	XK_Meta_L
	XK_Meta_R
	XK_Alt_L
	XK_Alt_R
	XK_Super_L
	XK_Super_R
	XK_Hyper_L
	XK_Hyper_R
)

// X11 modifier masks, as carried in key and button event state.
const (
	ShiftMask = 1 << iota
	LockMask
	ControlMask
	Mod1Mask
	Mod2Mask
	Mod3Mask
	Mod4Mask
	Mod5Mask
)

// unicodeKeysym is the offset X11 uses for characters outside Latin-1.
const unicodeKeysym = 0x01000000

// IsModifier reports whether keysym is a lone modifier key.
func IsModifier(keysym uint32) bool {
	return keysym >= XK_Shift_L && keysym <= XK_Hyper_R
}

// RuneKeysym returns the keysym that types r, or 0 for control
// characters.
func RuneKeysym(r rune) uint32 {
	switch {
	case r < 0x20, r == 0x7F, r >= 0x80 && r < 0xA0:
		return 0
	case r <= 0xFF:
		return uint32(r)
	case r > 0x10FFFF:
		return 0
	default:
		return unicodeKeysym | uint32(r)
	}
}

// KeyEvent is a translated key press or release.
type KeyEvent struct {
	Down   bool
	Keysym uint32
	Mods   uint32
}
