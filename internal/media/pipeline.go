// Package media produces the single outbound track set shared by all peer
// sessions and keeps it consistent with user-toggled audio/video/blur state.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/leandro-lugaresi/hub"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"

	"github.com/collabrixo/collabrixo/internal/application/config"
	"github.com/collabrixo/collabrixo/internal/application/constant"
	"github.com/collabrixo/collabrixo/internal/domain/events"
)

// SenderPool applies an outbound track swap to every live peer session.
// Satisfied by session.Manager.
type SenderPool interface {
	ReplaceOutbound(audio, video webrtc.TrackLocal) error
}

// Pipeline is the only owner and mutator of the local media state. All track
// swaps funnel through syncOutbound so every consumer observes a consistent
// view.
type Pipeline struct {
	cfg     config.VideoConfig
	devices Devices
	enc     Encoder
	comp    *Compositor
	pool    SenderPool
	bus     *hub.Hub

	mu            sync.Mutex
	acquired      bool
	audioSrc      AudioSource
	videoSrc      VideoSource
	audioTrack    *webrtc.TrackLocalStaticRTP
	rawVideoTrack *webrtc.TrackLocalStaticSample
	blurTrack     *webrtc.TrackLocalStaticSample
	audioEnabled  bool
	videoEnabled  bool
	blurEnabled   bool
	audioCancel   context.CancelFunc
	videoCancel   context.CancelFunc
}

func NewPipeline(cfg config.VideoConfig, devices Devices, enc Encoder, pool SenderPool, bus *hub.Hub) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		devices: devices,
		enc:     enc,
		comp:    NewCompositor(cfg),
		pool:    pool,
		bus:     bus,
	}
}

// Acquire opens capture devices with the requested modality flags. A missing
// device degrades that modality with a warning instead of failing the whole
// acquisition, as long as the other one comes up. Requesting neither
// modality force-enables audio as a floor.
func (p *Pipeline) Acquire(audioEnabled, videoEnabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.acquired {
		return fmt.Errorf("local media already acquired")
	}

	if !audioEnabled && !videoEnabled {
		audioEnabled = true
		p.notify(events.LevelWarning, "Audio and video can't both be off; keeping audio on.")
	}

	if audioEnabled {
		src, err := p.devices.OpenAudio()
		if err != nil {
			slog.Warn("open microphone", slog.Any(constant.Error, err))
			p.notify(events.LevelWarning, "Microphone unavailable; continuing without audio.")
			audioEnabled = false
		} else {
			p.audioSrc = src
		}
	}

	if videoEnabled {
		src, err := p.devices.OpenVideo()
		if err != nil {
			slog.Warn("open camera", slog.Any(constant.Error, err))
			p.notify(events.LevelWarning, "Camera unavailable; continuing without video.")
			videoEnabled = false
		} else {
			p.videoSrc = src
		}
	}

	if p.audioSrc == nil && p.videoSrc == nil {
		return fmt.Errorf("%w: no capture device available", ErrDeviceAccess)
	}

	if p.audioSrc != nil {
		track, err := webrtc.NewTrackLocalStaticRTP(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "collabrixo",
		)
		if err != nil {
			p.releaseLocked()
			return fmt.Errorf("create audio track: %w", err)
		}

		p.audioTrack = track
		p.startAudioPumpLocked()
	}

	if p.videoSrc != nil {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: p.enc.MimeType()}, "video", "collabrixo",
		)
		if err != nil {
			p.releaseLocked()
			return fmt.Errorf("create video track: %w", err)
		}

		p.rawVideoTrack = track
		p.startVideoPumpLocked(p.videoSrc, track, nil)
	}

	p.audioEnabled = audioEnabled
	p.videoEnabled = videoEnabled
	p.acquired = true

	p.syncOutboundLocked()

	return nil
}

// ToggleAudio flips the audio-enabled flag in place. Returns the new flag.
func (p *Pipeline) ToggleAudio() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.audioTrack == nil {
		p.notify(events.LevelWarning, "No microphone available.")
		return false
	}

	p.audioEnabled = !p.audioEnabled
	p.enforceFloorLocked(preferVideo)

	return p.audioEnabled
}

// ToggleVideo flips the video-enabled flag in place. Returns the new flag.
func (p *Pipeline) ToggleVideo() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rawVideoTrack == nil {
		p.notify(events.LevelWarning, "No camera available.")
		return false
	}

	p.videoEnabled = !p.videoEnabled
	p.enforceFloorLocked(preferAudio)

	return p.videoEnabled
}

type floorPreference int

const (
	preferAudio floorPreference = iota
	preferVideo
)

// enforceFloorLocked keeps at least one modality enabled at all times,
// auto-correcting and warning instead of reporting an invariant breach.
func (p *Pipeline) enforceFloorLocked(prefer floorPreference) {
	if p.audioEnabled || p.videoEnabled {
		return
	}

	switch {
	case prefer == preferVideo && p.rawVideoTrack != nil:
		p.videoEnabled = true
	case p.audioTrack != nil:
		p.audioEnabled = true
	case p.rawVideoTrack != nil:
		p.videoEnabled = true
	default:
		// no working modality left to fall back to
		return
	}

	p.notify(events.LevelWarning, "Audio and video can't both be off; re-enabled the other one.")
}

// ToggleBlur switches the background blur compositor on or off.
func (p *Pipeline) ToggleBlur() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.blurEnabled {
		return p.disableBlurLocked()
	}

	return p.enableBlurLocked()
}

func (p *Pipeline) enableBlurLocked() error {
	if !p.videoEnabled || p.videoSrc == nil {
		p.notify(events.LevelWarning, "Enable your camera before turning on background blur.")
		return fmt.Errorf("blur requires an enabled video track")
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: p.enc.MimeType()}, "video-blur", "collabrixo",
	)
	if err != nil {
		return fmt.Errorf("%w: create blurred track: %w", ErrCompositor, err)
	}

	p.stopVideoPumpLocked()

	p.blurTrack = track
	p.blurEnabled = true
	p.startVideoPumpLocked(p.videoSrc, track, p.comp)

	p.syncOutboundLocked()

	return nil
}

// disableBlurLocked re-acquires a fresh camera stream rather than reversing
// the compositor. If re-acquisition fails the blurred stream stays up so the
// user is never left without outbound video.
func (p *Pipeline) disableBlurLocked() error {
	src, err := p.devices.OpenVideo()
	if err != nil {
		p.notify(events.LevelWarning, "Couldn't reopen the camera; keeping blurred video.")
		return fmt.Errorf("%w: reopen camera: %w", ErrDeviceAccess, err)
	}

	p.stopVideoPumpLocked()

	if p.videoSrc != nil {
		_ = p.videoSrc.Close()
	}
	p.videoSrc = src

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: p.enc.MimeType()}, "video", "collabrixo",
	)
	if err != nil {
		return fmt.Errorf("create video track: %w", err)
	}

	p.rawVideoTrack = track
	p.blurTrack = nil
	p.blurEnabled = false
	p.startVideoPumpLocked(src, track, nil)

	p.syncOutboundLocked()

	return nil
}

// SyncOutbound re-applies the current track set to every consumer. Safe and
// idempotent; calling it twice in a row changes nothing observable.
func (p *Pipeline) SyncOutbound() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.syncOutboundLocked()
}

func (p *Pipeline) syncOutboundLocked() {
	var audio, video webrtc.TrackLocal

	if p.audioTrack != nil {
		audio = p.audioTrack
	}

	switch {
	case p.blurEnabled && p.blurTrack != nil:
		video = p.blurTrack
	case p.rawVideoTrack != nil:
		video = p.rawVideoTrack
	}

	if p.pool != nil {
		if err := p.pool.ReplaceOutbound(audio, video); err != nil {
			slog.Error("replace outbound tracks", slog.Any(constant.Error, err))
		}
	}

	p.bus.Publish(hub.Message{
		Name: events.LocalStreamUpdated,
		Fields: hub.Fields{
			events.FieldAudio: audio,
			events.FieldVideo: video,
		},
	})
}

func (p *Pipeline) startAudioPumpLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	p.audioCancel = cancel

	go p.audioPump(ctx, p.audioSrc, p.audioTrack)
}

func (p *Pipeline) audioPump(ctx context.Context, src AudioSource, track *webrtc.TrackLocalStaticRTP) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.AudioEnabled() {
				continue
			}

			pkt, err := src.ReadPacket()
			if err != nil {
				p.degradeAudio(err)
				return
			}

			if err := track.WriteRTP(pkt); err != nil {
				slog.Error("write audio packet", slog.Any(constant.Error, err))
			}
		}
	}
}

func (p *Pipeline) startVideoPumpLocked(src VideoSource, track *webrtc.TrackLocalStaticSample, comp *Compositor) {
	ctx, cancel := context.WithCancel(context.Background())
	p.videoCancel = cancel

	go p.videoPump(ctx, src, track, comp)
}

func (p *Pipeline) stopVideoPumpLocked() {
	if p.videoCancel != nil {
		p.videoCancel()
		p.videoCancel = nil
	}
}

// videoPump renders one frame per tick. With a compositor it is the blur
// render loop; cancellation stops it immediately, leaving no dangling ticks.
func (p *Pipeline) videoPump(ctx context.Context, src VideoSource, track *webrtc.TrackLocalStaticSample, comp *Compositor) {
	interval := time.Second / time.Duration(p.cfg.FPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.VideoEnabled() {
				continue
			}

			frame, err := src.ReadFrame()
			if err != nil {
				if comp != nil {
					p.fallbackFromBlur(err)
					return
				}

				p.degradeVideo(err)
				return
			}

			img := frame
			if comp != nil {
				processed, err := comp.Process(frame)
				if err != nil {
					p.fallbackFromBlur(err)
					return
				}
				img = processed
			}

			data, err := p.enc.Encode(img)
			if err != nil {
				if comp != nil {
					p.fallbackFromBlur(err)
					return
				}

				slog.Error("encode video frame", slog.Any(constant.Error, err))
				continue
			}

			if err := track.WriteSample(pionmedia.Sample{Data: data, Duration: interval}); err != nil {
				slog.Error("write video sample", slog.Any(constant.Error, err))
			}
		}
	}
}

// fallbackFromBlur recovers from a compositor failure by reverting to the
// raw stream and clearing the blur flag. Emits exactly one warning per
// failure; the user is never left without outbound video.
func (p *Pipeline) fallbackFromBlur(cause error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.blurEnabled {
		return
	}

	slog.Warn("blur compositor failed, falling back to raw stream", slog.Any(constant.Error, cause))

	p.stopVideoPumpLocked()
	p.blurEnabled = false
	p.blurTrack = nil
	p.startVideoPumpLocked(p.videoSrc, p.rawVideoTrack, nil)

	p.syncOutboundLocked()

	p.notify(events.LevelWarning, "Background blur failed; switched back to your camera.")
}

// degradeAudio handles a microphone dying mid-call: the modality is
// disabled with a user notice instead of silently stalling.
func (p *Pipeline) degradeAudio(cause error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	slog.Warn("audio capture failed", slog.Any(constant.Error, cause))

	p.audioEnabled = false
	p.audioTrack = nil
	p.audioCancel = nil

	if p.audioSrc != nil {
		_ = p.audioSrc.Close()
		p.audioSrc = nil
	}

	p.enforceFloorLocked(preferVideo)
	p.syncOutboundLocked()

	p.notify(events.LevelWarning, "Microphone lost; continuing without audio.")
}

// degradeVideo is the camera counterpart of degradeAudio.
func (p *Pipeline) degradeVideo(cause error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	slog.Warn("video capture failed", slog.Any(constant.Error, cause))

	p.videoEnabled = false
	p.rawVideoTrack = nil
	p.blurTrack = nil
	p.blurEnabled = false
	p.videoCancel = nil

	if p.videoSrc != nil {
		_ = p.videoSrc.Close()
		p.videoSrc = nil
	}

	p.enforceFloorLocked(preferAudio)
	p.syncOutboundLocked()

	p.notify(events.LevelWarning, "Camera lost; continuing without video.")
}

func (p *Pipeline) AudioEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.audioEnabled
}

func (p *Pipeline) VideoEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.videoEnabled
}

func (p *Pipeline) BlurEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.blurEnabled
}

// AudioTrack returns the outbound audio track; its identity never changes
// across blur toggles.
func (p *Pipeline) AudioTrack() *webrtc.TrackLocalStaticRTP {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.audioTrack
}

// OutboundVideoTrack returns the video track currently fed to sessions:
// the blurred track while blur is on, the raw one otherwise.
func (p *Pipeline) OutboundVideoTrack() *webrtc.TrackLocalStaticSample {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.blurEnabled && p.blurTrack != nil {
		return p.blurTrack
	}

	return p.rawVideoTrack
}

// Close stops all pumps and releases capture devices.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.audioCancel != nil {
		p.audioCancel()
		p.audioCancel = nil
	}
	p.stopVideoPumpLocked()

	p.releaseLocked()

	p.acquired = false
	p.audioTrack = nil
	p.rawVideoTrack = nil
	p.blurTrack = nil
	p.blurEnabled = false
}

func (p *Pipeline) releaseLocked() {
	if p.audioSrc != nil {
		_ = p.audioSrc.Close()
		p.audioSrc = nil
	}

	if p.videoSrc != nil {
		_ = p.videoSrc.Close()
		p.videoSrc = nil
	}
}

func (p *Pipeline) notify(level, message string) {
	p.bus.Publish(hub.Message{
		Name: events.Notice,
		Fields: hub.Fields{
			events.FieldLevel:   level,
			events.FieldMessage: message,
		},
	})
}
