package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/collabrixo/collabrixo/internal/domain/models"
	"github.com/collabrixo/collabrixo/internal/infra/adapters/postgres/repository"
)

// ErrNotOwner is returned when someone other than the creator tries to end
// a conference.
var ErrNotOwner = errors.New("only the conference owner may end it")

type ConferenceUsecase interface {
	CreateConference(ctx context.Context, roomID, title string, ownerID uuid.UUID) (*models.Conference, error)
	JoinConference(ctx context.Context, roomID string, userID uuid.UUID) (uuid.UUID, error)
	LeaveConference(ctx context.Context, roomID string, userID uuid.UUID) error
	EndConference(ctx context.Context, conferenceID, userID uuid.UUID) error
	ListActive(ctx context.Context, ownerID uuid.UUID) ([]*models.Conference, error)
}

type conferenceUsecase struct {
	conferenceRepo repository.ConferenceRepository
}

func NewConferenceUsecase(conferenceRepo repository.ConferenceRepository) ConferenceUsecase {
	return &conferenceUsecase{conferenceRepo: conferenceRepo}
}

func (uc *conferenceUsecase) CreateConference(ctx context.Context, roomID, title string, ownerID uuid.UUID) (*models.Conference, error) {
	conference := &models.Conference{
		ID:      uuid.New(),
		RoomID:  roomID,
		Title:   title,
		OwnerID: ownerID,
		Active:  true,
	}

	if err := uc.conferenceRepo.Create(ctx, conference); err != nil {
		return nil, err
	}

	return conference, nil
}

func (uc *conferenceUsecase) JoinConference(ctx context.Context, roomID string, userID uuid.UUID) (uuid.UUID, error) {
	conference, err := uc.conferenceRepo.GetByRoomID(ctx, roomID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("find conference for room %s: %w", roomID, err)
	}

	return uc.conferenceRepo.AddParticipant(ctx, conference.ID, userID)
}

func (uc *conferenceUsecase) LeaveConference(ctx context.Context, roomID string, userID uuid.UUID) error {
	conference, err := uc.conferenceRepo.GetByRoomID(ctx, roomID)
	if err != nil {
		return fmt.Errorf("find conference for room %s: %w", roomID, err)
	}

	return uc.conferenceRepo.MarkParticipantLeft(ctx, conference.ID, userID)
}

func (uc *conferenceUsecase) EndConference(ctx context.Context, conferenceID, userID uuid.UUID) error {
	conference, err := uc.conferenceRepo.GetByID(ctx, conferenceID)
	if err != nil {
		return fmt.Errorf("find conference %s: %w", conferenceID, err)
	}

	if conference.OwnerID != userID {
		return ErrNotOwner
	}

	return uc.conferenceRepo.MarkInactive(ctx, conferenceID)
}

func (uc *conferenceUsecase) ListActive(ctx context.Context, ownerID uuid.UUID) ([]*models.Conference, error) {
	return uc.conferenceRepo.ListActive(ctx, ownerID)
}

// Gate adapts the conference usecase to the string-keyed interface the room
// orchestration consumes.
type Gate struct {
	conferences ConferenceUsecase
}

func NewGate(conferences ConferenceUsecase) *Gate {
	return &Gate{conferences: conferences}
}

func (g *Gate) Join(ctx context.Context, roomID, userID string) error {
	id, err := uuid.Parse(userID)
	if err != nil {
		return fmt.Errorf("parse user id: %w", err)
	}

	_, err = g.conferences.JoinConference(ctx, roomID, id)
	return err
}

func (g *Gate) Leave(ctx context.Context, roomID, userID string) error {
	id, err := uuid.Parse(userID)
	if err != nil {
		return fmt.Errorf("parse user id: %w", err)
	}

	return g.conferences.LeaveConference(ctx, roomID, id)
}
