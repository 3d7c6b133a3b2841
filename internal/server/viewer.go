package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pion/webrtc/v4"

	"xsshost/internal/types"
)

const (
	chunkSize = 16 << 10
	// Frames are skipped while more than this is queued on the channel.
	maxBuffered = 1 << 20
)

// frameHeader precedes the binary chunks of one JPEG frame on the frames
// channel.
type frameHeader struct {
	Frame  int `json:"frame"`
	Size   int `json:"size"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Viewer is one remote preview connection. The client opens two data
// channels: "frames" receives JPEG frames, "input" carries InputEvents.
type Viewer struct {
	ID   string
	PC   *webrtc.PeerConnection
	Stop chan struct{}

	frames  types.FrameSource
	inject  func(types.InputEvent) error
	fps     int
	quality int

	closed bool
	mu     sync.Mutex
}

func NewViewer(id string, frames types.FrameSource, inject func(types.InputEvent) error, fps, quality int) (*Viewer, error) {
	api := webrtc.NewAPI()

	config := webrtc.Configuration{
		// LAN only, no STUN/TURN
	}

	pc, err := api.NewPeerConnection(config)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	v := &Viewer{
		ID:      id,
		PC:      pc,
		Stop:    make(chan struct{}),
		frames:  frames,
		inject:  inject,
		fps:     fps,
		quality: quality,
	}

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		switch dc.Label() {
		case "input":
			dc.OnMessage(func(msg webrtc.DataChannelMessage) {
				if v.inject == nil {
					return
				}
				var event types.InputEvent
				if err := json.Unmarshal(msg.Data, &event); err != nil {
					return
				}
				if err := v.inject(event); err != nil {
					log.Printf("viewer %s: input: %v", v.ID, err)
				}
			})
		case "frames":
			if v.frames == nil {
				break
			}
			dc.OnOpen(func() {
				go v.pump(dc)
			})
		default:
			log.Printf("viewer %s: ignoring data channel %q", v.ID, dc.Label())
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("viewer %s: peer connection state: %s", v.ID, state.String())
		if state == webrtc.PeerConnectionStateFailed ||
			state == webrtc.PeerConnectionStateDisconnected ||
			state == webrtc.PeerConnectionStateClosed {
			v.Close()
		}
	})

	return v, nil
}

// pump sends the newest frame at most fps times a second until the viewer
// stops or the channel fails.
func (v *Viewer) pump(dc *webrtc.DataChannel) {
	ch, cancel := v.frames.Subscribe()
	defer cancel()

	ticker := time.NewTicker(time.Second / time.Duration(max(1, v.fps)))
	defer ticker.Stop()

	var pending image.Image
	var sent, skipped int
	for {
		select {
		case <-v.Stop:
			return
		case img := <-ch:
			pending = img
		case <-ticker.C:
			if pending == nil {
				continue
			}
			if dc.BufferedAmount() > maxBuffered {
				skipped++
				continue
			}
			if err := v.send(dc, sent, pending); err != nil {
				log.Printf("viewer %s: frames: %v (sent %d, skipped %d)", v.ID, err, sent, skipped)
				return
			}
			sent++
			pending = nil
		}
	}
}

func (v *Viewer) send(dc *webrtc.DataChannel, n int, img image.Image) error {
	data, err := encodeFrame(img, v.quality)
	if err != nil {
		return err
	}
	b := img.Bounds()
	hdr, err := json.Marshal(frameHeader{Frame: n, Size: len(data), Width: b.Dx(), Height: b.Dy()})
	if err != nil {
		return err
	}
	if err := dc.SendText(string(hdr)); err != nil {
		return err
	}
	for _, c := range chunks(data, chunkSize) {
		if err := dc.Send(c); err != nil {
			return err
		}
	}
	return nil
}

func encodeFrame(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

func chunks(data []byte, size int) [][]byte {
	var out [][]byte
	for len(data) > size {
		out = append(out, data[:size])
		data = data[size:]
	}
	if len(data) > 0 {
		out = append(out, data)
	}
	return out
}

// Close stops the frame pump and closes the peer connection. The lock is
// released first because closing fires the connection state callback.
func (v *Viewer) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	close(v.Stop)
	v.mu.Unlock()

	v.PC.Close()
	log.Printf("viewer %s closed", v.ID)
}

func (v *Viewer) IsClosed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}
