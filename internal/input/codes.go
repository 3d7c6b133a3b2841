package input

import (
	"log"
	"strings"
	"unicode/utf8"
)

// CodeToKeysym maps a browser KeyboardEvent key/code pair to a keysym.
// A printable key value wins so shifted and layout-specific characters
// arrive as typed; named keys come next and the physical code is the
// fallback. It returns 0 for keys with no X11 equivalent.
func CodeToKeysym(code, key string) uint32 {
	if r, size := utf8.DecodeRuneInString(key); size > 0 && size == len(key) && r != utf8.RuneError {
		if ks := RuneKeysym(r); ks != 0 {
			return ks
		}
	}
	if ks, ok := namedKeys[strings.ToLower(key)]; ok {
		return ks
	}
	if ks := physicalKey(code); ks != 0 {
		return ks
	}
	log.Printf("input: unmapped key code=%q key=%q", code, key)
	return 0
}

// physicalKey resolves a KeyboardEvent code, which names a key position
// on a US layout regardless of the active layout.
func physicalKey(code string) uint32 {
	if ks, ok := namedKeys[strings.ToLower(code)]; ok {
		return ks
	}
	if ks, ok := punctuation[code]; ok {
		return uint32(ks)
	}
	if rest, ok := strings.CutPrefix(code, "Key"); ok && len(rest) == 1 && rest[0] >= 'A' && rest[0] <= 'Z' {
		return uint32(rest[0] - 'A' + 'a')
	}
	if rest, ok := strings.CutPrefix(code, "Digit"); ok && len(rest) == 1 && rest[0] >= '0' && rest[0] <= '9' {
		return uint32(rest[0])
	}
	if rest, ok := strings.CutPrefix(code, "Numpad"); ok {
		if len(rest) == 1 && rest[0] >= '0' && rest[0] <= '9' {
			return XK_KP_0 + uint32(rest[0]-'0')
		}
		return keypad[rest]
	}
	return 0
}

// BrowserButton maps a DOM MouseEvent.button to an X11 button number.
func BrowserButton(button int) int {
	switch button {
	case 1:
		return 2
	case 2:
		return 3
	default:
		return 1
	}
}

// namedKeys is keyed by lower-cased KeyboardEvent key values. Code values
// for the same keys share the table; left-hand modifiers stand in for
// keys that do not say which side they are.
var namedKeys = map[string]uint32{
	"backspace":   XK_BackSpace,
	"tab":         XK_Tab,
	"enter":       XK_Return,
	"escape":      XK_Escape,
	"delete":      XK_Delete,
	"insert":      XK_Insert,
	"home":        XK_Home,
	"end":         XK_End,
	"pageup":      XK_Page_Up,
	"pagedown":    XK_Page_Down,
	"arrowleft":   XK_Left,
	"arrowup":     XK_Up,
	"arrowright":  XK_Right,
	"arrowdown":   XK_Down,
	"space":       XK_space,
	"printscreen": XK_Print,
	"scrolllock":  XK_Scroll_Lock,
	"pause":       XK_Pause,
	"numlock":     XK_Num_Lock,
	"contextmenu": XK_Menu,
	"capslock":    XK_Caps_Lock,

	"shift":        XK_Shift_L,
	"shiftleft":    XK_Shift_L,
	"shiftright":   XK_Shift_R,
	"control":      XK_Control_L,
	"controlleft":  XK_Control_L,
	"controlright": XK_Control_R,
	"alt":          XK_Alt_L,
	"altleft":      XK_Alt_L,
	"altright":     XK_Alt_R,
	"altgraph":     XK_Alt_R,
	"meta":         XK_Super_L,
	"metaleft":     XK_Super_L,
	"metaright":    XK_Super_R,

	"f1": XK_F1, "f2": XK_F2, "f3": XK_F3, "f4": XK_F4,
	"f5": XK_F5, "f6": XK_F6, "f7": XK_F7, "f8": XK_F8,
	"f9": XK_F9, "f10": XK_F10, "f11": XK_F11, "f12": XK_F12,
}

var punctuation = map[string]rune{
	"Minus":        '-',
	"Equal":        '=',
	"BracketLeft":  '[',
	"BracketRight": ']',
	"Backslash":    '\\',
	"Semicolon":    ';',
	"Quote":        '\'',
	"Backquote":    '`',
	"Comma":        ',',
	"Period":       '.',
	"Slash":        '/',
}

var keypad = map[string]uint32{
	"Enter":    XK_KP_Enter,
	"Add":      XK_KP_Add,
	"Subtract": XK_KP_Subtract,
	"Multiply": XK_KP_Multiply,
	"Divide":   XK_KP_Divide,
	"Decimal":  XK_KP_Decimal,
	"Equal":    XK_KP_Equal,
}
