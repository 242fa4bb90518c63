// Package room wires the signaling client, the peer session manager and the
// media pipeline into one conference participation handle.
package room

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/leandro-lugaresi/hub"

	"github.com/collabrixo/collabrixo/internal/application/constant"
	"github.com/collabrixo/collabrixo/internal/domain/events"
	"github.com/collabrixo/collabrixo/internal/domain/signal"
	"github.com/collabrixo/collabrixo/internal/media"
	"github.com/collabrixo/collabrixo/internal/session"
	"github.com/collabrixo/collabrixo/internal/signaling"
)

// ConferenceGate records room membership in the external conference store.
// The core only consumes its success/failure outcome.
type ConferenceGate interface {
	Join(ctx context.Context, roomID, userID string) error
	Leave(ctx context.Context, roomID, userID string) error
}

// Room owns one participant's view of a conference: the userID -> session
// map (via the manager), the local media state and the remote roster.
type Room struct {
	client *signaling.Client
	mgr    *session.Manager
	pipe   *media.Pipeline
	bus    *hub.Hub
	gate   ConferenceGate

	userID string

	mu           sync.Mutex
	joined       bool
	participants map[string]string // remote userID -> display name
}

func New(client *signaling.Client, mgr *session.Manager, pipe *media.Pipeline, bus *hub.Hub, gate ConferenceGate) *Room {
	r := &Room{
		client:       client,
		mgr:          mgr,
		pipe:         pipe,
		bus:          bus,
		gate:         gate,
		userID:       client.UserID(),
		participants: make(map[string]string),
	}

	// Registered before Join so no envelope is missed. The transport pump
	// invokes handlers sequentially, which serializes signaling handling:
	// a leave is fully processed before any later join reusing the same
	// userID.
	client.OnMessage(r.handle)

	return r
}

// Join records membership, acquires local media and announces presence. A
// failed join undoes every completed step so the caller can simply retry.
func (r *Room) Join(ctx context.Context, audioEnabled, videoEnabled bool) error {
	r.mu.Lock()
	if r.joined {
		r.mu.Unlock()
		return fmt.Errorf("already joined room %s", r.client.RoomID())
	}
	r.joined = true
	r.mu.Unlock()

	if r.gate != nil {
		if err := r.gate.Join(ctx, r.client.RoomID(), r.userID); err != nil {
			r.clearJoined()
			return fmt.Errorf("record conference join: %w", err)
		}
	}

	if err := r.pipe.Acquire(audioEnabled, videoEnabled); err != nil {
		r.gateLeave(ctx)
		r.clearJoined()
		return fmt.Errorf("acquire local media: %w", err)
	}

	if err := r.client.Join(ctx); err != nil {
		r.pipe.Close()
		r.gateLeave(ctx)
		r.clearJoined()
		return fmt.Errorf("join signaling: %w", err)
	}

	return nil
}

func (r *Room) clearJoined() {
	r.mu.Lock()
	r.joined = false
	r.mu.Unlock()
}

func (r *Room) gateLeave(ctx context.Context) {
	if r.gate == nil {
		return
	}

	if err := r.gate.Leave(ctx, r.client.RoomID(), r.userID); err != nil {
		slog.Error("record conference leave", slog.Any(constant.Error, err))
	}
}

// Leave tears everything down. Safe on every exit path and idempotent.
func (r *Room) Leave(ctx context.Context) {
	r.mu.Lock()
	if !r.joined {
		r.mu.Unlock()
		return
	}
	r.joined = false
	r.mu.Unlock()

	if err := r.client.Leave(ctx); err != nil {
		slog.Error("leave signaling",
			slog.Any(constant.Error, err),
			slog.String(constant.RoomID, r.client.RoomID()),
		)
	}

	r.mgr.CloseAll()
	r.pipe.Close()

	r.gateLeave(ctx)
}

func (r *Room) ToggleAudio() bool { return r.pipe.ToggleAudio() }
func (r *Room) ToggleVideo() bool { return r.pipe.ToggleVideo() }
func (r *Room) ToggleBlur() error { return r.pipe.ToggleBlur() }

// Participants returns the number of remote participants currently present.
func (r *Room) Participants() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.participants)
}

func (r *Room) handle(env signal.Envelope) {
	if env.Sender == r.userID {
		// own broadcasts; join/leave of others are the interesting ones
		return
	}

	ev, err := signal.Decode(env)
	if err != nil {
		slog.Error("decode signaling envelope",
			slog.Any(constant.Error, err),
			slog.String(constant.MsgType, string(env.Type)),
		)
		return
	}

	ctx := context.Background()

	switch ev := ev.(type) {
	case signal.JoinEvent:
		r.handleJoin(ctx, ev)

	case signal.LeaveEvent:
		r.handleLeave(ev)

	case signal.SDPEvent:
		if env.Type == signal.TypeOffer {
			r.handleOffer(ctx, env.Sender, ev)
		} else {
			r.handleAnswer(env.Sender, ev)
		}

	case signal.CandidateEvent:
		if err := r.mgr.ApplyCandidate(env.Sender, ev.Candidate); err != nil {
			slog.Error("apply ice candidate",
				slog.Any(constant.Error, err),
				slog.String(constant.PeerID, env.Sender),
			)
		}
	}
}

// handleJoin runs the initiator role toward a newly arrived peer. Existing
// sessions with other peers are untouched.
func (r *Room) handleJoin(ctx context.Context, ev signal.JoinEvent) {
	r.mu.Lock()
	r.participants[ev.UserID] = ev.UserName
	r.mu.Unlock()

	if _, err := r.mgr.CreateSession(ev.UserID, session.RoleInitiator); err != nil {
		slog.Error("create session",
			slog.Any(constant.Error, err),
			slog.String(constant.PeerID, ev.UserID),
		)
		r.notify(events.LevelWarning, fmt.Sprintf("Couldn't connect to %s.", displayName(ev.UserName, ev.UserID)))
		return
	}

	if err := r.mgr.InitiateOffer(ctx, ev.UserID); err != nil {
		slog.Error("initiate offer",
			slog.Any(constant.Error, err),
			slog.String(constant.PeerID, ev.UserID),
		)
		r.notify(events.LevelWarning, fmt.Sprintf("Connection to %s failed.", displayName(ev.UserName, ev.UserID)))
	}
}

// handleLeave tears down the peer's session if one exists. A leave for an
// unknown peer is a no-op beyond the roster update.
func (r *Room) handleLeave(ev signal.LeaveEvent) {
	r.mu.Lock()
	delete(r.participants, ev.UserID)
	r.mu.Unlock()

	r.mgr.Teardown(ev.UserID)
}

// handleOffer runs the responder role. A fresh session replaces any prior
// one for the sender, so under glare the last offer processed wins.
func (r *Room) handleOffer(ctx context.Context, sender string, ev signal.SDPEvent) {
	r.mu.Lock()
	if _, known := r.participants[sender]; !known {
		r.participants[sender] = ""
	}
	r.mu.Unlock()

	if _, err := r.mgr.CreateSession(sender, session.RoleResponder); err != nil {
		slog.Error("create responder session",
			slog.Any(constant.Error, err),
			slog.String(constant.PeerID, sender),
		)
		r.notify(events.LevelWarning, fmt.Sprintf("Couldn't connect to %s.", sender))
		return
	}

	if err := r.mgr.AcceptOffer(ctx, sender, ev.SDP); err != nil {
		slog.Error("accept offer",
			slog.Any(constant.Error, err),
			slog.String(constant.PeerID, sender),
		)
		r.notify(events.LevelWarning, fmt.Sprintf("Connection to %s failed.", sender))
	}
}

func (r *Room) handleAnswer(sender string, ev signal.SDPEvent) {
	if err := r.mgr.ApplyAnswer(sender, ev.SDP); err != nil {
		slog.Error("apply answer",
			slog.Any(constant.Error, err),
			slog.String(constant.PeerID, sender),
		)
	}
}

func (r *Room) notify(level, message string) {
	r.bus.Publish(hub.Message{
		Name: events.Notice,
		Fields: hub.Fields{
			events.FieldLevel:   level,
			events.FieldMessage: message,
		},
	})
}

func displayName(name, userID string) string {
	if name != "" {
		return name
	}

	return userID
}
