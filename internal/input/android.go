package input

// Android KeyEvent key codes handled specially.
const (
	KeycodeHome       = 3
	KeycodeDpadUp     = 19
	KeycodeDpadDown   = 20
	KeycodeDpadLeft   = 21
	KeycodeDpadRight  = 22
	KeycodeAltLeft    = 57
	KeycodeAltRight   = 58
	KeycodeShiftLeft  = 59
	KeycodeShiftRight = 60
	KeycodeSpace      = 62
	KeycodePageUp     = 92
	KeycodePageDown   = 93
	KeycodeCtrlLeft   = 113
	KeycodeCtrlRight  = 114
	KeycodeCapsLock   = 115
	KeycodeMetaLeft   = 117
	KeycodeMetaRight  = 118
	KeycodeMoveHome   = 122
	KeycodeMoveEnd    = 123
	KeycodeF1         = 131
	KeycodeF12        = 142
)

// Android KeyEvent meta state bits.
const (
	MetaShiftOn    = 0x01
	MetaAltOn      = 0x02
	MetaSymOn      = 0x04
	MetaFunctionOn = 0x08
	MetaAltMask    = 0x32
	MetaCtrlOn     = 0x1000
	MetaCtrlMask   = 0x7000
	MetaMetaOn     = 0x10000
	MetaCapsLockOn = 0x100000
)

var androidKeys = map[int]uint32{
	KeycodeShiftLeft:  XK_Shift_L,
	KeycodeShiftRight: XK_Shift_R,
	KeycodeCtrlLeft:   XK_Control_L,
	KeycodeCtrlRight:  XK_Control_R,
	KeycodeCapsLock:   XK_Caps_Lock,
	KeycodeMetaLeft:   XK_Meta_L,
	KeycodeMetaRight:  XK_Meta_R,
	KeycodeAltLeft:    XK_Alt_L,
	KeycodeAltRight:   XK_Alt_R,
	KeycodeHome:       XK_Home,
	KeycodeDpadLeft:   XK_Left,
	KeycodeDpadUp:     XK_Up,
	KeycodeDpadRight:  XK_Right,
	KeycodeDpadDown:   XK_Down,
	KeycodePageUp:     XK_Page_Up,
	KeycodePageDown:   XK_Page_Down,
	KeycodeMoveEnd:    XK_End,
	KeycodeMoveHome:   XK_Begin,
}

// AndroidKey translates an Android key event. Keys without a table entry
// use their unicode character; keys that type nothing are dropped. Lone
// modifier presses are dropped too: Android reports Shift-A as Shift down,
// A down, A up, Shift up, and the modifier state already travels with
// the A.
func AndroidKey(keyCode, unicode, meta int, down bool) (KeyEvent, bool) {
	keysym, ok := androidKeys[keyCode]
	switch {
	case ok:
	case keyCode >= KeycodeF1 && keyCode <= KeycodeF12:
		keysym = XK_F1 + uint32(keyCode-KeycodeF1)
	default:
		keysym = RuneKeysym(rune(unicode))
	}
	if keysym == 0 || IsModifier(keysym) {
		return KeyEvent{}, false
	}
	return KeyEvent{Down: down, Keysym: keysym, Mods: AndroidMods(meta)}, true
}

// AndroidMods converts an Android meta state to an X11 modifier mask.
func AndroidMods(meta int) uint32 {
	var mods uint32
	if meta&MetaShiftOn != 0 {
		mods |= ShiftMask
	}
	if meta&MetaCapsLockOn != 0 {
		mods |= LockMask
	}
	if meta&MetaCtrlMask != 0 {
		mods |= ControlMask
	}
	if meta&MetaAltMask != 0 {
		mods |= Mod1Mask
	}
	if meta&MetaMetaOn != 0 {
		mods |= Mod1Mask
	}
	if meta&MetaSymOn != 0 {
		mods |= Mod2Mask
	}
	if meta&MetaFunctionOn != 0 {
		mods |= Mod3Mask
	}
	return mods
}
