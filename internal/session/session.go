// Package session owns one peer-to-peer media connection per remote
// participant and drives its offer/answer/candidate lifecycle.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
)

var (
	// ErrConnectionSetup marks failures constructing the underlying
	// peer-connection primitive.
	ErrConnectionSetup = errors.New("peer connection setup failed")

	// ErrNegotiation marks offer/answer/description exchange failures.
	// No automatic retry happens; callers may re-invoke.
	ErrNegotiation = errors.New("negotiation failed")
)

type State string

const (
	StateNew        State = "new"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateClosed     State = "closed"
)

type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// PeerSession wraps one webrtc.PeerConnection toward a single remote
// participant. A closed session is never reused; reconnection to the same
// peer requires a fresh one.
type PeerSession struct {
	peerID string
	role   Role
	pc     *webrtc.PeerConnection

	audioSender *webrtc.RTPSender
	videoSender *webrtc.RTPSender

	mu        sync.Mutex
	state     State
	remoteSet bool
	// candidates received before the remote description is set; applied in
	// arrival order once it is.
	pending []webrtc.ICECandidateInit
}

func (s *PeerSession) PeerID() string { return s.peerID }
func (s *PeerSession) Role() Role     { return s.role }

func (s *PeerSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// CreateOffer produces the local offer and transitions to connecting.
func (s *PeerSession) CreateOffer() (webrtc.SessionDescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: session with %s is closed", ErrNegotiation, s.peerID)
	}

	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: create offer for %s: %w", ErrNegotiation, s.peerID, err)
	}

	if err = s.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: set local offer for %s: %w", ErrNegotiation, s.peerID, err)
	}

	s.state = StateConnecting

	return offer, nil
}

// AcceptOffer applies a remote offer and produces the local answer,
// transitioning to connecting.
func (s *PeerSession) AcceptOffer(sdp string) (webrtc.SessionDescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: session with %s is closed", ErrNegotiation, s.peerID)
	}

	if err := s.setRemoteLocked(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return webrtc.SessionDescription{}, err
	}

	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: create answer for %s: %w", ErrNegotiation, s.peerID, err)
	}

	if err = s.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: set local answer for %s: %w", ErrNegotiation, s.peerID, err)
	}

	s.state = StateConnecting

	return answer, nil
}

// ApplyAnswer completes the initiator side of the exchange.
func (s *PeerSession) ApplyAnswer(sdp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnecting {
		return fmt.Errorf("%w: session with %s is not awaiting an answer (state %s)", ErrNegotiation, s.peerID, s.state)
	}

	return s.setRemoteLocked(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
}

// ApplyCandidate applies a remote ICE candidate, buffering it if the remote
// description is not set yet. Buffered candidates survive out-of-order
// delivery from the signaling transport.
func (s *PeerSession) ApplyCandidate(candidate webrtc.ICECandidateInit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return nil
	}

	if !s.remoteSet {
		s.pending = append(s.pending, candidate)
		return nil
	}

	if err := s.pc.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("%w: add candidate from %s: %w", ErrNegotiation, s.peerID, err)
	}

	return nil
}

// PendingCandidates reports how many candidates are buffered.
func (s *PeerSession) PendingCandidates() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.pending)
}

func (s *PeerSession) setRemoteLocked(desc webrtc.SessionDescription) error {
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("%w: set remote %s from %s: %w", ErrNegotiation, desc.Type, s.peerID, err)
	}

	s.remoteSet = true

	for _, candidate := range s.pending {
		if err := s.pc.AddICECandidate(candidate); err != nil {
			return fmt.Errorf("%w: flush buffered candidate from %s: %w", ErrNegotiation, s.peerID, err)
		}
	}
	s.pending = nil

	return nil
}

func (s *PeerSession) markConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateConnecting || s.state == StateNew {
		s.state = StateConnected
	}
}

func (s *PeerSession) close() {
	s.mu.Lock()

	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}

	s.state = StateClosed
	s.pending = nil
	s.mu.Unlock()

	_ = s.pc.Close()
}
