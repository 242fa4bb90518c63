package constant

// Shared slog attribute keys.
const (
	Error    = "error"
	UserID   = "user_id"
	PeerID   = "peer_id"
	RoomID   = "room_id"
	ConfID   = "conference_id"
	State    = "state"
	MsgType  = "msg_type"
	UserName = "user_name"
)
