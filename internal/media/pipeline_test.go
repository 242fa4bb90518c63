package media_test

import (
	"fmt"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/leandro-lugaresi/hub"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabrixo/collabrixo/internal/domain/events"
	"github.com/collabrixo/collabrixo/internal/media"
)

// fakeDevices lets a test control what each open call returns.
type fakeDevices struct {
	video func() (media.VideoSource, error)
	audio func() (media.AudioSource, error)
}

func (d *fakeDevices) OpenVideo() (media.VideoSource, error) {
	if d.video == nil {
		return nil, fmt.Errorf("%w: no camera", media.ErrDeviceAccess)
	}
	return d.video()
}

func (d *fakeDevices) OpenAudio() (media.AudioSource, error) {
	if d.audio == nil {
		return nil, fmt.Errorf("%w: no microphone", media.ErrDeviceAccess)
	}
	return d.audio()
}

// countSource yields frames until the budget runs out, then errors.
type countSource struct {
	mu   sync.Mutex
	left int
}

func (s *countSource) ReadFrame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.left <= 0 {
		return nil, fmt.Errorf("%w: capture stalled", media.ErrDeviceAccess)
	}
	s.left--

	return image.NewNRGBA(image.Rect(0, 0, 64, 48)), nil
}

func (s *countSource) Close() error { return nil }

// glitchSource yields frames and fails exactly once after arm is called.
type glitchSource struct {
	mu    sync.Mutex
	armed bool
}

func (s *glitchSource) arm() {
	s.mu.Lock()
	s.armed = true
	s.mu.Unlock()
}

func (s *glitchSource) ReadFrame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.armed {
		s.armed = false
		return nil, fmt.Errorf("frame capture glitch")
	}

	return image.NewNRGBA(image.Rect(0, 0, 64, 48)), nil
}

func (s *glitchSource) Close() error { return nil }

// burstAudioSource yields packets until the budget runs out, then errors.
type burstAudioSource struct {
	mu   sync.Mutex
	left int
}

func (s *burstAudioSource) ReadPacket() (*rtp.Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.left <= 0 {
		return nil, fmt.Errorf("%w: capture stalled", media.ErrDeviceAccess)
	}
	s.left--

	return &rtp.Packet{Header: rtp.Header{Version: 2, PayloadType: 111}}, nil
}

func (s *burstAudioSource) Close() error { return nil }

type recordPool struct {
	mu    sync.Mutex
	calls [][2]webrtc.TrackLocal
}

func (p *recordPool) ReplaceOutbound(audio, video webrtc.TrackLocal) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, [2]webrtc.TrackLocal{audio, video})
	return nil
}

func (p *recordPool) snapshot() [][2]webrtc.TrackLocal {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([][2]webrtc.TrackLocal, len(p.calls))
	copy(out, p.calls)
	return out
}

func newTestPipeline(devices media.Devices, pool media.SenderPool) (*media.Pipeline, *hub.Hub) {
	bus := hub.New()
	pipe := media.NewPipeline(testVideoConfig(), devices, media.NewMJPEGEncoder(75), pool, bus)
	return pipe, bus
}

// drainWarnings collects warning notice texts until the bus goes quiet.
func drainWarnings(sub hub.Subscription, quiet time.Duration) []string {
	var out []string
	for {
		select {
		case msg := <-sub.Receiver:
			if msg.Fields[events.FieldLevel] == events.LevelWarning {
				out = append(out, msg.Fields[events.FieldMessage].(string))
			}
		case <-time.After(quiet):
			return out
		}
	}
}

func TestAcquireDegradesWhenMicrophoneMissing(t *testing.T) {
	t.Parallel()

	pipe, bus := newTestPipeline(&media.SyntheticDevices{Width: 64, Height: 48, NoAudio: true}, nil)
	defer pipe.Close()

	sub := bus.Subscribe(16, events.Notice)
	defer bus.Unsubscribe(sub)

	require.NoError(t, pipe.Acquire(true, true))

	assert.False(t, pipe.AudioEnabled())
	assert.True(t, pipe.VideoEnabled())
	assert.Nil(t, pipe.AudioTrack())
	assert.NotNil(t, pipe.OutboundVideoTrack())

	warnings := drainWarnings(sub, 100*time.Millisecond)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "Microphone unavailable")
}

func TestAcquireFailsWithoutAnyDevice(t *testing.T) {
	t.Parallel()

	pipe, _ := newTestPipeline(&media.SyntheticDevices{NoAudio: true, NoVideo: true}, nil)

	err := pipe.Acquire(true, true)
	require.ErrorIs(t, err, media.ErrDeviceAccess)
}

func TestAcquireForcesAudioFloor(t *testing.T) {
	t.Parallel()

	pipe, bus := newTestPipeline(&media.SyntheticDevices{Width: 64, Height: 48}, nil)
	defer pipe.Close()

	sub := bus.Subscribe(16, events.Notice)
	defer bus.Unsubscribe(sub)

	require.NoError(t, pipe.Acquire(false, false))

	assert.True(t, pipe.AudioEnabled())
	assert.False(t, pipe.VideoEnabled())

	warnings := drainWarnings(sub, 100*time.Millisecond)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "can't both be off")
}

func TestToggleSequenceNeverDisablesBothModalities(t *testing.T) {
	t.Parallel()

	pipe, bus := newTestPipeline(&media.SyntheticDevices{Width: 64, Height: 48}, nil)
	defer pipe.Close()

	require.NoError(t, pipe.Acquire(true, true))

	sub := bus.Subscribe(16, events.Notice)
	defer bus.Unsubscribe(sub)

	assert.False(t, pipe.ToggleAudio())
	assert.True(t, pipe.VideoEnabled())

	// video is the only enabled modality; turning it off must re-enable audio
	assert.False(t, pipe.ToggleVideo())
	assert.True(t, pipe.AudioEnabled())
	assert.True(t, pipe.AudioEnabled() || pipe.VideoEnabled())

	// and immediately muting again flips the floor back to video
	assert.False(t, pipe.ToggleAudio())
	assert.True(t, pipe.VideoEnabled())
	assert.True(t, pipe.AudioEnabled() || pipe.VideoEnabled())

	warnings := drainWarnings(sub, 100*time.Millisecond)
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], "re-enabled")
}

func TestBlurTogglePreservesAudioTrack(t *testing.T) {
	t.Parallel()

	pipe, _ := newTestPipeline(&media.SyntheticDevices{Width: 64, Height: 48}, nil)
	defer pipe.Close()

	require.NoError(t, pipe.Acquire(true, true))

	audioBefore := pipe.AudioTrack()
	rawBefore := pipe.OutboundVideoTrack()
	require.NotNil(t, audioBefore)
	require.NotNil(t, rawBefore)

	require.NoError(t, pipe.ToggleBlur())
	assert.True(t, pipe.BlurEnabled())
	assert.NotSame(t, rawBefore, pipe.OutboundVideoTrack())
	assert.Same(t, audioBefore, pipe.AudioTrack())

	require.NoError(t, pipe.ToggleBlur())
	assert.False(t, pipe.BlurEnabled())
	assert.NotNil(t, pipe.OutboundVideoTrack())
	assert.Same(t, audioBefore, pipe.AudioTrack())
}

func TestBlurRequiresEnabledVideo(t *testing.T) {
	t.Parallel()

	pipe, bus := newTestPipeline(&media.SyntheticDevices{Width: 64, Height: 48, NoVideo: true}, nil)
	defer pipe.Close()

	require.NoError(t, pipe.Acquire(true, false))

	sub := bus.Subscribe(16, events.Notice)
	defer bus.Unsubscribe(sub)

	err := pipe.ToggleBlur()
	require.Error(t, err)
	assert.False(t, pipe.BlurEnabled())

	warnings := drainWarnings(sub, 100*time.Millisecond)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "Enable your camera")
}

func TestSyncOutboundIsIdempotent(t *testing.T) {
	t.Parallel()

	pool := &recordPool{}
	pipe, _ := newTestPipeline(&media.SyntheticDevices{Width: 64, Height: 48}, pool)
	defer pipe.Close()

	require.NoError(t, pipe.Acquire(true, true))

	pipe.SyncOutbound()
	pipe.SyncOutbound()

	calls := pool.snapshot()
	require.GreaterOrEqual(t, len(calls), 3)

	last := calls[len(calls)-1]
	prev := calls[len(calls)-2]
	assert.Equal(t, prev, last)
	assert.Equal(t, webrtc.TrackLocal(pipe.AudioTrack()), last[0])
	assert.Equal(t, webrtc.TrackLocal(pipe.OutboundVideoTrack()), last[1])
}

func TestBlurFailureFallsBackToRawStream(t *testing.T) {
	t.Parallel()

	src := &glitchSource{}
	devices := &fakeDevices{
		video: func() (media.VideoSource, error) { return src, nil },
	}

	pipe, bus := newTestPipeline(devices, nil)
	defer pipe.Close()

	require.NoError(t, pipe.Acquire(false, true))
	rawTrack := pipe.OutboundVideoTrack()

	sub := bus.Subscribe(16, events.Notice)
	defer bus.Unsubscribe(sub)

	require.NoError(t, pipe.ToggleBlur())
	require.True(t, pipe.BlurEnabled())

	// one bad frame mid-render kills the blur loop
	src.arm()

	require.Eventually(t, func() bool {
		return !pipe.BlurEnabled()
	}, 3*time.Second, 20*time.Millisecond)

	assert.Same(t, rawTrack, pipe.OutboundVideoTrack())
	assert.True(t, pipe.VideoEnabled())

	warnings := drainWarnings(sub, 300*time.Millisecond)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "Background blur failed")
}

func TestMidCallMicrophoneLossDegradesAudio(t *testing.T) {
	t.Parallel()

	devices := &fakeDevices{
		audio: func() (media.AudioSource, error) { return &burstAudioSource{left: 2}, nil },
		video: func() (media.VideoSource, error) { return &countSource{left: 1 << 20}, nil },
	}

	pipe, bus := newTestPipeline(devices, nil)
	defer pipe.Close()

	sub := bus.Subscribe(16, events.Notice)
	defer bus.Unsubscribe(sub)

	require.NoError(t, pipe.Acquire(true, true))

	require.Eventually(t, func() bool {
		return !pipe.AudioEnabled()
	}, 3*time.Second, 20*time.Millisecond)

	assert.True(t, pipe.VideoEnabled())
	assert.Nil(t, pipe.AudioTrack())

	warnings := drainWarnings(sub, 300*time.Millisecond)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "Microphone lost")
}

func TestMidCallCameraLossDegradesVideo(t *testing.T) {
	t.Parallel()

	devices := &fakeDevices{
		audio: func() (media.AudioSource, error) { return &burstAudioSource{left: 1 << 20}, nil },
		video: func() (media.VideoSource, error) { return &countSource{left: 2}, nil },
	}

	pipe, bus := newTestPipeline(devices, nil)
	defer pipe.Close()

	sub := bus.Subscribe(16, events.Notice)
	defer bus.Unsubscribe(sub)

	require.NoError(t, pipe.Acquire(true, true))

	require.Eventually(t, func() bool {
		return !pipe.VideoEnabled()
	}, 3*time.Second, 20*time.Millisecond)

	assert.True(t, pipe.AudioEnabled())
	assert.Nil(t, pipe.OutboundVideoTrack())

	warnings := drainWarnings(sub, 300*time.Millisecond)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "Camera lost")
}

func TestDisableBlurKeepsBlurredStreamWhenCameraReopenFails(t *testing.T) {
	t.Parallel()

	opens := 0
	devices := &fakeDevices{
		video: func() (media.VideoSource, error) {
			opens++
			if opens > 1 {
				return nil, fmt.Errorf("%w: camera busy", media.ErrDeviceAccess)
			}
			return &countSource{left: 1 << 20}, nil
		},
	}

	pipe, bus := newTestPipeline(devices, nil)
	defer pipe.Close()

	require.NoError(t, pipe.Acquire(false, true))
	require.NoError(t, pipe.ToggleBlur())

	blurTrack := pipe.OutboundVideoTrack()

	sub := bus.Subscribe(16, events.Notice)
	defer bus.Unsubscribe(sub)

	err := pipe.ToggleBlur()
	require.ErrorIs(t, err, media.ErrDeviceAccess)

	assert.True(t, pipe.BlurEnabled())
	assert.Same(t, blurTrack, pipe.OutboundVideoTrack())

	warnings := drainWarnings(sub, 100*time.Millisecond)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "keeping blurred video")
}
