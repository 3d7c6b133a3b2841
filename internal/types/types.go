package types

import (
	"image"
)

// HackConfig selects a renderer by name and carries its resolved options.
type HackConfig struct {
	Name    string
	Options map[string]string
}

// Option returns the named option or def when it is unset.
func (c HackConfig) Option(name, def string) string {
	if v, ok := c.Options[name]; ok && v != "" {
		return v
	}
	return def
}

// Surface is a drawable target owned by the host. Renderers hold it
// without owning it.
type Surface interface {
	// Size reports the current drawable size. A zero size means the
	// surface is not usable yet.
	Size() (width, height int)
	Present(img image.Image) error
}

// InputEvent is an input event received from a viewer or host.
//
// Browser events carry Key and Code with Meta as an X11 modifier mask.
// Android key events ("androidkey") carry KeyCode, Unicode, Down and the
// Android meta state in Meta.
type InputEvent struct {
	Type    string  `json:"type"`
	X       float64 `json:"x,omitempty"`
	Y       float64 `json:"y,omitempty"`
	Button  int     `json:"button,omitempty"`
	Key     string  `json:"key,omitempty"`
	Code    string  `json:"code,omitempty"`
	KeyCode int     `json:"keyCode,omitempty"`
	Unicode int     `json:"unicode,omitempty"`
	Meta    int     `json:"meta,omitempty"`
	Down    bool    `json:"down,omitempty"`
}

// FrameSource is implemented by surfaces that can hand out presented frames.
type FrameSource interface {
	Snapshot() image.Image
	Subscribe() (frames <-chan image.Image, cancel func())
}
