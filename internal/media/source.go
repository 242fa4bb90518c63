package media

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync/atomic"

	"github.com/pion/rtp"
)

// ErrDeviceAccess marks camera/microphone acquisition failures: permission
// denied, device absent or busy.
var ErrDeviceAccess = errors.New("device access failed")

// VideoSource yields raw camera frames. Implementations are read by a
// single pump goroutine at a time.
type VideoSource interface {
	ReadFrame() (image.Image, error)
	Close() error
}

// AudioSource yields encoded audio as RTP packets; the pipeline forwards
// them unmodified.
type AudioSource interface {
	ReadPacket() (*rtp.Packet, error)
	Close() error
}

// Devices opens capture devices. Platform capture backends plug in here;
// SyntheticDevices serves tests and headless runs.
type Devices interface {
	OpenVideo() (VideoSource, error)
	OpenAudio() (AudioSource, error)
}

// SyntheticDevices produces a moving test pattern and Opus silence frames.
// Either modality can be switched off to simulate an absent device.
type SyntheticDevices struct {
	Width, Height int
	NoVideo       bool
	NoAudio       bool
}

func (d *SyntheticDevices) OpenVideo() (VideoSource, error) {
	if d.NoVideo {
		return nil, fmt.Errorf("%w: no camera present", ErrDeviceAccess)
	}

	w, h := d.Width, d.Height
	if w == 0 || h == 0 {
		w, h = 640, 480
	}

	return &patternSource{width: w, height: h}, nil
}

func (d *SyntheticDevices) OpenAudio() (AudioSource, error) {
	if d.NoAudio {
		return nil, fmt.Errorf("%w: no microphone present", ErrDeviceAccess)
	}

	return &silenceSource{}, nil
}

type patternSource struct {
	width, height int
	tick          uint32
	closed        atomic.Bool
}

func (s *patternSource) ReadFrame() (image.Image, error) {
	if s.closed.Load() {
		return nil, fmt.Errorf("%w: video source closed", ErrDeviceAccess)
	}

	t := s.tick
	s.tick++

	img := image.NewNRGBA(image.Rect(0, 0, s.width, s.height))
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8((x + int(t)) % 256),
				G: uint8((y + int(t)*2) % 256),
				B: uint8((x + y) % 256),
				A: 255,
			})
		}
	}

	return img, nil
}

func (s *patternSource) Close() error {
	s.closed.Store(true)
	return nil
}

type silenceSource struct {
	seq    uint16
	ts     uint32
	closed atomic.Bool
}

func (s *silenceSource) ReadPacket() (*rtp.Packet, error) {
	if s.closed.Load() {
		return nil, fmt.Errorf("%w: audio source closed", ErrDeviceAccess)
	}

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    111,
			SequenceNumber: s.seq,
			Timestamp:      s.ts,
		},
		// Opus DTX silence frame
		Payload: []byte{0xF8, 0xFF, 0xFE},
	}

	s.seq++
	s.ts += 960 // 20ms at 48kHz

	return pkt, nil
}

func (s *silenceSource) Close() error {
	s.closed.Store(true)
	return nil
}
