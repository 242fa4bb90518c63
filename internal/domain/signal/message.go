package signal

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

type Type string

const (
	TypeJoin      Type = "join"
	TypeLeave     Type = "leave"
	TypeOffer     Type = "offer"
	TypeAnswer    Type = "answer"
	TypeCandidate Type = "ice-candidate"
)

// TargetAll addresses an envelope to every participant in the room.
const TargetAll = "*"

// Envelope is the wire form of every signaling message. Type selects the
// payload carried in Data; Sender/Target address it within the room.
type Envelope struct {
	Type   Type            `json:"type"`
	Sender string          `json:"sender,omitempty"`
	Target string          `json:"target,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// AddressedTo reports whether the envelope should be handled by userID.
func (e Envelope) AddressedTo(userID string) bool {
	return e.Target == "" || e.Target == TargetAll || e.Target == userID
}

type JoinEvent struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
}

type LeaveEvent struct {
	UserID string `json:"user_id"`
}

type SDPEvent struct {
	SDP string `json:"sdp"`
}

type CandidateEvent struct {
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// Event is the decoded payload union: one of JoinEvent, LeaveEvent,
// SDPEvent or CandidateEvent.
type Event any

// Decode unmarshals the envelope payload according to its type tag.
func Decode(env Envelope) (Event, error) {
	switch env.Type {
	case TypeJoin:
		var ev JoinEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal join event: %w", err)
		}
		return ev, nil

	case TypeLeave:
		var ev LeaveEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal leave event: %w", err)
		}
		return ev, nil

	case TypeOffer, TypeAnswer:
		var ev SDPEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal sdp event: %w", err)
		}
		return ev, nil

	case TypeCandidate:
		var ev CandidateEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal candidate event: %w", err)
		}
		return ev, nil

	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}
}

func mustEnvelope(t Type, sender, target string, payload any) Envelope {
	data, err := json.Marshal(payload)
	if err != nil {
		// payloads are plain structs, marshal cannot fail
		panic(fmt.Sprintf("marshal %s payload: %v", t, err))
	}

	return Envelope{Type: t, Sender: sender, Target: target, Data: data}
}

func NewJoin(userID, userName string) Envelope {
	return mustEnvelope(TypeJoin, userID, TargetAll, JoinEvent{UserID: userID, UserName: userName})
}

func NewLeave(userID string) Envelope {
	return mustEnvelope(TypeLeave, userID, TargetAll, LeaveEvent{UserID: userID})
}

func NewOffer(sender, target, sdp string) Envelope {
	return mustEnvelope(TypeOffer, sender, target, SDPEvent{SDP: sdp})
}

func NewAnswer(sender, target, sdp string) Envelope {
	return mustEnvelope(TypeAnswer, sender, target, SDPEvent{SDP: sdp})
}

func NewCandidate(sender, target string, candidate webrtc.ICECandidateInit) Envelope {
	return mustEnvelope(TypeCandidate, sender, target, CandidateEvent{Candidate: candidate})
}
