package models

import (
	"time"

	"github.com/google/uuid"
)

// Conference is the persistent record bounding a room's lifecycle. The
// signaling/media core only consults it to decide whether joining may
// proceed.
type Conference struct {
	ID        uuid.UUID `db:"id" json:"id"`
	RoomID    string    `db:"room_id" json:"room_id"`
	Title     string    `db:"title" json:"title"`
	OwnerID   uuid.UUID `db:"owner_id" json:"owner_id"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Participant struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	ConferenceID uuid.UUID  `db:"conference_id" json:"conference_id"`
	UserID       uuid.UUID  `db:"user_id" json:"user_id"`
	JoinedAt     time.Time  `db:"joined_at" json:"joined_at"`
	LeftAt       *time.Time `db:"left_at" json:"left_at,omitempty"`
}
