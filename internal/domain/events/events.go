// Package events defines the in-process hub topics the conferencing core
// publishes. The rendering layer subscribes to these instead of the core
// touching any video sink directly.
package events

const (
	// TrackAdded fires when a remote track becomes available for a peer.
	// Fields: "peer_id" string, "track" *webrtc.TrackRemote.
	TrackAdded = "peer.track.added"

	// SessionClosed fires when a peer session is torn down and its sink
	// should be removed. Fields: "peer_id" string.
	SessionClosed = "peer.session.closed"

	// LocalStreamUpdated fires whenever the outbound track set changes;
	// the local preview rewires off it. Fields: "audio", "video"
	// webrtc.TrackLocal (either may be nil).
	LocalStreamUpdated = "media.stream.updated"

	// Notice carries a user-visible, non-blocking notice.
	// Fields: "level" string ("info"|"warning"), "message" string.
	Notice = "room.notice"
)

const (
	FieldPeerID  = "peer_id"
	FieldTrack   = "track"
	FieldAudio   = "audio"
	FieldVideo   = "video"
	FieldLevel   = "level"
	FieldMessage = "message"
)

const (
	LevelInfo    = "info"
	LevelWarning = "warning"
)
