package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/leandro-lugaresi/hub"
	"github.com/pion/webrtc/v4"

	"github.com/collabrixo/collabrixo/internal/application/constant"
	"github.com/collabrixo/collabrixo/internal/application/metric"
	"github.com/collabrixo/collabrixo/internal/domain/events"
	"github.com/collabrixo/collabrixo/internal/domain/signal"
	"github.com/collabrixo/collabrixo/internal/media"
)

// Sender publishes signaling envelopes to the room. Satisfied by
// signaling.Client.
type Sender interface {
	Send(ctx context.Context, env signal.Envelope) error
}

// Manager owns the userID -> PeerSession map for one room. Exactly one
// session exists per remote participant; creating a session for a peer that
// already has one replaces the old session rather than duplicating it.
type Manager struct {
	api        *webrtc.API
	iceServers []webrtc.ICEServer
	localID    string
	sender     Sender
	bus        *hub.Hub

	mu         sync.Mutex
	sessions   map[string]*PeerSession
	audioTrack webrtc.TrackLocal
	videoTrack webrtc.TrackLocal
}

func NewManager(iceServers []webrtc.ICEServer, localID string, sender Sender, bus *hub.Hub) *Manager {
	return &Manager{
		api:        newAPI(),
		iceServers: iceServers,
		localID:    localID,
		sender:     sender,
		bus:        bus,
		sessions:   make(map[string]*PeerSession),
	}
}

// newAPI builds a webrtc API whose media engine carries exactly what the
// pipeline produces: Opus passthrough audio and MJPEG video samples.
func newAPI() *webrtc.API {
	engine := &webrtc.MediaEngine{}

	_ = engine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio)

	_ = engine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  media.MimeTypeMJPEG,
			ClockRate: 90000,
		},
		PayloadType: 102,
	}, webrtc.RTPCodecTypeVideo)

	return webrtc.NewAPI(webrtc.WithMediaEngine(engine))
}

// CreateSession constructs a fresh PeerSession toward peerID, attaches the
// current outbound tracks and wires candidate/track callbacks.
func (m *Manager) CreateSession(peerID string, role Role) (*PeerSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.sessions[peerID]; ok {
		m.removeLocked(peerID, old)
	}

	pc, err := m.api.NewPeerConnection(webrtc.Configuration{ICEServers: m.iceServers})
	if err != nil {
		return nil, fmt.Errorf("%w: new peer connection for %s: %w", ErrConnectionSetup, peerID, err)
	}

	s := &PeerSession{
		peerID: peerID,
		role:   role,
		pc:     pc,
		state:  StateNew,
	}

	if m.audioTrack != nil {
		sender, err := pc.AddTrack(m.audioTrack)
		if err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("%w: add audio track for %s: %w", ErrConnectionSetup, peerID, err)
		}

		s.audioSender = sender
		go drainRTCP(sender)
	}

	if m.videoTrack != nil {
		sender, err := pc.AddTrack(m.videoTrack)
		if err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("%w: add video track for %s: %w", ErrConnectionSetup, peerID, err)
		}

		s.videoSender = sender
		go drainRTCP(sender)
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}

		env := signal.NewCandidate(m.localID, peerID, c.ToJSON())
		if err := m.sender.Send(context.Background(), env); err != nil {
			slog.Error("send ice candidate",
				slog.Any(constant.Error, err),
				slog.String(constant.PeerID, peerID),
			)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		m.bus.Publish(hub.Message{
			Name: events.TrackAdded,
			Fields: hub.Fields{
				events.FieldPeerID: peerID,
				events.FieldTrack:  track,
			},
		})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			s.markConnected()

		case webrtc.PeerConnectionStateFailed:
			slog.Warn("peer connection failed",
				slog.String(constant.PeerID, peerID),
				slog.String(constant.State, state.String()),
			)
			go m.teardownFailed(peerID, s)

		default:
		}
	})

	m.sessions[peerID] = s
	metric.IncrementPeerSessions()

	return s, nil
}

// InitiateOffer runs the initiator role: create the offer and send it
// targeted at peerID.
func (m *Manager) InitiateOffer(ctx context.Context, peerID string) error {
	s, ok := m.Get(peerID)
	if !ok {
		return fmt.Errorf("%w: no session for %s", ErrNegotiation, peerID)
	}

	offer, err := s.CreateOffer()
	if err != nil {
		return err
	}

	return m.sender.Send(ctx, signal.NewOffer(m.localID, peerID, offer.SDP))
}

// AcceptOffer runs the responder role: apply the remote offer and send the
// answer back to its sender.
func (m *Manager) AcceptOffer(ctx context.Context, peerID, sdp string) error {
	s, ok := m.Get(peerID)
	if !ok {
		return fmt.Errorf("%w: no session for %s", ErrNegotiation, peerID)
	}

	answer, err := s.AcceptOffer(sdp)
	if err != nil {
		return err
	}

	return m.sender.Send(ctx, signal.NewAnswer(m.localID, peerID, answer.SDP))
}

func (m *Manager) ApplyAnswer(peerID, sdp string) error {
	s, ok := m.Get(peerID)
	if !ok {
		return fmt.Errorf("%w: no session for %s", ErrNegotiation, peerID)
	}

	return s.ApplyAnswer(sdp)
}

func (m *Manager) ApplyCandidate(peerID string, candidate webrtc.ICECandidateInit) error {
	s, ok := m.Get(peerID)
	if !ok {
		return fmt.Errorf("%w: no session for %s", ErrNegotiation, peerID)
	}

	return s.ApplyCandidate(candidate)
}

// teardownFailed removes s only while it is still the registered session
// for peerID. A replacement created before the goroutine runs is left
// untouched, so a stale failure can never close a fresh session.
func (m *Manager) teardownFailed(peerID string, s *PeerSession) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.sessions[peerID]; !ok || current != s {
		return
	}

	m.removeLocked(peerID, s)
}

// Teardown closes and removes the session for peerID. No-op if none exists.
func (m *Manager) Teardown(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[peerID]
	if !ok {
		return
	}

	m.removeLocked(peerID, s)
}

func (m *Manager) removeLocked(peerID string, s *PeerSession) {
	delete(m.sessions, peerID)
	s.close()
	metric.DecrementPeerSessions()

	m.bus.Publish(hub.Message{
		Name:   events.SessionClosed,
		Fields: hub.Fields{events.FieldPeerID: peerID},
	})
}

func (m *Manager) Get(peerID string) (*PeerSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[peerID]
	return s, ok
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.sessions)
}

// ReplaceOutbound swaps the outbound track set on every live session and
// records it for sessions created afterwards. The swap holds the manager
// lock, so a session created mid-swap always sees the post-swap tracks.
// Calling it twice with the same tracks is a no-op the second time.
func (m *Manager) ReplaceOutbound(audio, video webrtc.TrackLocal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.audioTrack = audio
	m.videoTrack = video

	for peerID, s := range m.sessions {
		if err := replaceOnSession(s, audio, video); err != nil {
			return fmt.Errorf("replace outbound tracks for %s: %w", peerID, err)
		}
	}

	return nil
}

func replaceOnSession(s *PeerSession, audio, video webrtc.TrackLocal) error {
	if audio != nil {
		if s.audioSender != nil {
			if err := s.audioSender.ReplaceTrack(audio); err != nil {
				return fmt.Errorf("replace audio track: %w", err)
			}
		} else {
			sender, err := s.pc.AddTrack(audio)
			if err != nil {
				return fmt.Errorf("add audio track: %w", err)
			}

			s.audioSender = sender
			go drainRTCP(sender)
		}
	}

	if video != nil {
		if s.videoSender != nil {
			if err := s.videoSender.ReplaceTrack(video); err != nil {
				return fmt.Errorf("replace video track: %w", err)
			}
		} else {
			sender, err := s.pc.AddTrack(video)
			if err != nil {
				return fmt.Errorf("add video track: %w", err)
			}

			s.videoSender = sender
			go drainRTCP(sender)
		}
	}

	return nil
}

// CloseAll tears down every session, used when leaving the room.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for peerID, s := range m.sessions {
		m.removeLocked(peerID, s)
	}
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
