package session

import (
	"context"
	"sync"
	"testing"

	"github.com/leandro-lugaresi/hub"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabrixo/collabrixo/internal/domain/signal"
	"github.com/collabrixo/collabrixo/internal/media"
)

type captureSender struct {
	mu   sync.Mutex
	envs []signal.Envelope
}

func (s *captureSender) Send(_ context.Context, env signal.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.envs = append(s.envs, env)
	return nil
}

func (s *captureSender) byType(t signal.Type) []signal.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []signal.Envelope
	for _, env := range s.envs {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

func newTestManager(t *testing.T, localID string) (*Manager, *captureSender) {
	t.Helper()

	sender := &captureSender{}
	m := NewManager(nil, localID, sender, hub.New())
	t.Cleanup(m.CloseAll)

	audio, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "test",
	)
	require.NoError(t, err)

	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: media.MimeTypeMJPEG}, "video", "test",
	)
	require.NoError(t, err)

	require.NoError(t, m.ReplaceOutbound(audio, video))

	return m, sender
}

// remoteOfferSDP produces a valid offer as a remote peer would send it.
func remoteOfferSDP(t *testing.T) string {
	t.Helper()

	remote, _ := newTestManager(t, "remote-user")

	s, err := remote.CreateSession("local-user", RoleInitiator)
	require.NoError(t, err)

	offer, err := s.CreateOffer()
	require.NoError(t, err)

	return offer.SDP
}

func TestCreateSessionReplacesDuplicate(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, "local-user")

	first, err := m.CreateSession("peer-a", RoleInitiator)
	require.NoError(t, err)

	second, err := m.CreateSession("peer-a", RoleInitiator)
	require.NoError(t, err)

	assert.Equal(t, 1, m.Count())
	assert.NotSame(t, first, second)
	assert.Equal(t, StateClosed, first.State())
	assert.Equal(t, StateNew, second.State())
}

func TestJoinLeaveInterleavingKeepsCountConsistent(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, "local-user")

	// rapid join-then-leave before negotiation completes
	_, err := m.CreateSession("peer-a", RoleInitiator)
	require.NoError(t, err)
	m.Teardown("peer-a")

	_, err = m.CreateSession("peer-b", RoleInitiator)
	require.NoError(t, err)
	_, err = m.CreateSession("peer-c", RoleResponder)
	require.NoError(t, err)
	m.Teardown("peer-b")

	assert.Equal(t, 1, m.Count())

	m.Teardown("peer-c")
	assert.Equal(t, 0, m.Count())
}

func TestTeardownUnknownPeerIsNoop(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, "local-user")

	m.Teardown("never-seen")
	assert.Equal(t, 0, m.Count())
}

func TestInitiateOfferSendsTargetedOffer(t *testing.T) {
	t.Parallel()

	m, sender := newTestManager(t, "local-user")

	s, err := m.CreateSession("peer-a", RoleInitiator)
	require.NoError(t, err)

	require.NoError(t, m.InitiateOffer(context.Background(), "peer-a"))

	assert.Equal(t, StateConnecting, s.State())

	offers := sender.byType(signal.TypeOffer)
	require.Len(t, offers, 1)
	assert.Equal(t, "local-user", offers[0].Sender)
	assert.Equal(t, "peer-a", offers[0].Target)
}

func TestCandidatesBufferedUntilRemoteDescription(t *testing.T) {
	t.Parallel()

	m, sender := newTestManager(t, "local-user")

	s, err := m.CreateSession("peer-a", RoleResponder)
	require.NoError(t, err)

	candidate := webrtc.ICECandidateInit{
		Candidate: "candidate:1 1 udp 2130706431 127.0.0.1 54321 typ host",
	}

	// out-of-order delivery: candidates land before the offer
	require.NoError(t, m.ApplyCandidate("peer-a", candidate))
	require.NoError(t, m.ApplyCandidate("peer-a", candidate))
	assert.Equal(t, 2, s.PendingCandidates())

	require.NoError(t, m.AcceptOffer(context.Background(), "peer-a", remoteOfferSDP(t)))

	assert.Equal(t, 0, s.PendingCandidates())
	assert.Equal(t, StateConnecting, s.State())

	answers := sender.byType(signal.TypeAnswer)
	require.Len(t, answers, 1)
	assert.Equal(t, "peer-a", answers[0].Target)
}

func TestApplyAnswerWithoutSessionFails(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, "local-user")

	err := m.ApplyAnswer("nobody", "v=0")
	require.ErrorIs(t, err, ErrNegotiation)
}

func TestApplyAnswerWhenNotConnectingFails(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, "local-user")

	_, err := m.CreateSession("peer-a", RoleInitiator)
	require.NoError(t, err)

	// no offer was created yet, so an answer makes no sense
	err = m.ApplyAnswer("peer-a", "v=0")
	require.ErrorIs(t, err, ErrNegotiation)
}

func TestNewSessionDoesNotDisturbExistingOnes(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, "local-user")

	existing, err := m.CreateSession("peer-c", RoleInitiator)
	require.NoError(t, err)
	require.NoError(t, m.InitiateOffer(context.Background(), "peer-c"))
	stateBefore := existing.State()

	fresh, err := m.CreateSession("peer-b", RoleInitiator)
	require.NoError(t, err)

	assert.Equal(t, 2, m.Count())
	assert.Equal(t, stateBefore, existing.State())
	assert.Equal(t, StateNew, fresh.State())
}

func TestClosedSessionRejectsNegotiation(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, "local-user")

	s, err := m.CreateSession("peer-a", RoleInitiator)
	require.NoError(t, err)

	m.Teardown("peer-a")
	require.Equal(t, StateClosed, s.State())

	_, err = s.CreateOffer()
	assert.ErrorIs(t, err, ErrNegotiation)

	// candidates for a closed session are silently dropped
	assert.NoError(t, s.ApplyCandidate(webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 127.0.0.1 1 typ host"}))
	assert.Equal(t, 0, s.PendingCandidates())
}

func TestReplaceOutboundIsIdempotent(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, "local-user")

	s, err := m.CreateSession("peer-a", RoleInitiator)
	require.NoError(t, err)

	sendersBefore := len(s.pc.GetSenders())

	audio, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "swap",
	)
	require.NoError(t, err)

	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: media.MimeTypeMJPEG}, "video", "swap",
	)
	require.NoError(t, err)

	require.NoError(t, m.ReplaceOutbound(audio, video))
	require.NoError(t, m.ReplaceOutbound(audio, video))

	assert.Equal(t, sendersBefore, len(s.pc.GetSenders()))
}

func TestStaleFailureDoesNotCloseReplacementSession(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, "local-user")

	stale, err := m.CreateSession("peer-a", RoleInitiator)
	require.NoError(t, err)

	replacement, err := m.CreateSession("peer-a", RoleInitiator)
	require.NoError(t, err)

	// a failure callback from the replaced session fires late
	m.teardownFailed("peer-a", stale)

	assert.Equal(t, 1, m.Count())
	assert.NotEqual(t, StateClosed, replacement.State())

	m.teardownFailed("peer-a", replacement)
	assert.Equal(t, 0, m.Count())
}

func TestSessionCreatedAfterSwapGetsNewTracks(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, "local-user")

	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: media.MimeTypeMJPEG}, "video", "post-swap",
	)
	require.NoError(t, err)

	require.NoError(t, m.ReplaceOutbound(nil, video))

	s, err := m.CreateSession("late-peer", RoleInitiator)
	require.NoError(t, err)

	require.NotNil(t, s.videoSender)
	assert.Equal(t, video, s.videoSender.Track())
}
