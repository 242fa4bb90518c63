package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/collabrixo/collabrixo/internal/domain/models"
)

type ConferenceRepository interface {
	Create(ctx context.Context, conference *models.Conference) error
	GetByRoomID(ctx context.Context, roomID string) (*models.Conference, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Conference, error)
	MarkInactive(ctx context.Context, id uuid.UUID) error

	AddParticipant(ctx context.Context, conferenceID, userID uuid.UUID) (uuid.UUID, error)
	MarkParticipantLeft(ctx context.Context, conferenceID, userID uuid.UUID) error
	ListActive(ctx context.Context, ownerID uuid.UUID) ([]*models.Conference, error)
}

type conferenceRepo struct {
	db *sqlx.DB
}

func NewConferenceRepo(db *sqlx.DB) ConferenceRepository {
	return &conferenceRepo{db: db}
}

func (r *conferenceRepo) Create(ctx context.Context, conference *models.Conference) error {
	_, err := r.db.ExecContext(
		ctx,
		"INSERT INTO conferences (id, room_id, title, owner_id, active) VALUES ($1, $2, $3, $4, true)",
		conference.ID,
		conference.RoomID,
		conference.Title,
		conference.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("create conference: %w", err)
	}

	return nil
}

func (r *conferenceRepo) GetByRoomID(ctx context.Context, roomID string) (*models.Conference, error) {
	var conference models.Conference

	err := r.db.GetContext(
		ctx,
		&conference,
		"SELECT id, room_id, title, owner_id, active, created_at FROM conferences WHERE room_id = $1 AND active",
		roomID,
	)
	if err != nil {
		return nil, err
	}

	return &conference, nil
}

func (r *conferenceRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Conference, error) {
	var conference models.Conference

	err := r.db.GetContext(
		ctx,
		&conference,
		"SELECT id, room_id, title, owner_id, active, created_at FROM conferences WHERE id = $1",
		id,
	)
	if err != nil {
		return nil, err
	}

	return &conference, nil
}

func (r *conferenceRepo) MarkInactive(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, "UPDATE conferences SET active = false WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("mark conference inactive: %w", err)
	}

	return nil
}

func (r *conferenceRepo) AddParticipant(ctx context.Context, conferenceID, userID uuid.UUID) (uuid.UUID, error) {
	participantID := uuid.New()

	_, err := r.db.ExecContext(
		ctx,
		"INSERT INTO participants (id, conference_id, user_id) VALUES ($1, $2, $3)",
		participantID,
		conferenceID,
		userID,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("add participant: %w", err)
	}

	return participantID, nil
}

func (r *conferenceRepo) MarkParticipantLeft(ctx context.Context, conferenceID, userID uuid.UUID) error {
	_, err := r.db.ExecContext(
		ctx,
		"UPDATE participants SET left_at = now() WHERE conference_id = $1 AND user_id = $2 AND left_at IS NULL",
		conferenceID,
		userID,
	)
	if err != nil {
		return fmt.Errorf("mark participant left: %w", err)
	}

	return nil
}

func (r *conferenceRepo) ListActive(ctx context.Context, ownerID uuid.UUID) ([]*models.Conference, error) {
	var conferences []*models.Conference

	err := r.db.SelectContext(
		ctx,
		&conferences,
		"SELECT id, room_id, title, owner_id, active, created_at FROM conferences WHERE owner_id = $1 AND active ORDER BY created_at DESC",
		ownerID,
	)
	if err != nil {
		return nil, err
	}

	return conferences, nil
}
