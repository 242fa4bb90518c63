package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/collabrixo/collabrixo/internal/application/constant"
	"github.com/collabrixo/collabrixo/internal/infra/appctx"
	"github.com/collabrixo/collabrixo/internal/infra/ports/http/dto"
	"github.com/collabrixo/collabrixo/internal/usecase"
)

type ConferenceHandler struct {
	conferenceUsecase usecase.ConferenceUsecase
}

func NewConferenceHandler(conferenceUsecase usecase.ConferenceUsecase) *ConferenceHandler {
	return &ConferenceHandler{
		conferenceUsecase: conferenceUsecase,
	}
}

func (h *ConferenceHandler) Create(c echo.Context) error {
	userID, ok := appctx.UserID(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid user ID in context"})
	}

	var req dto.CreateConferenceRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	if req.RoomID == "" {
		req.RoomID = uuid.NewString()
	}

	conference, err := h.conferenceUsecase.CreateConference(c.Request().Context(), req.RoomID, req.Title, userID)
	if err != nil {
		slog.Error("create conference failed", slog.Any(constant.Error, err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not create conference"})
	}

	return c.JSON(http.StatusCreated, dto.ConferenceResponse{
		ID:        conference.ID,
		RoomID:    conference.RoomID,
		Title:     conference.Title,
		OwnerID:   conference.OwnerID,
		Active:    conference.Active,
		CreatedAt: conference.CreatedAt,
	})
}

func (h *ConferenceHandler) List(c echo.Context) error {
	userID, ok := appctx.UserID(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid user ID in context"})
	}

	conferences, err := h.conferenceUsecase.ListActive(c.Request().Context(), userID)
	if err != nil {
		slog.Error("list conferences failed", slog.Any(constant.Error, err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not list conferences"})
	}

	return c.JSON(http.StatusOK, conferences)
}

// End marks a conference inactive. Only its creator may do so.
func (h *ConferenceHandler) End(c echo.Context) error {
	userID, ok := appctx.UserID(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid user ID in context"})
	}

	conferenceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid conference id"})
	}

	if err := h.conferenceUsecase.EndConference(c.Request().Context(), conferenceID, userID); err != nil {
		if errors.Is(err, usecase.ErrNotOwner) {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "only the owner may end a conference"})
		}

		slog.Error("end conference failed",
			slog.Any(constant.Error, err),
			slog.String(constant.ConfID, conferenceID.String()),
		)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not end conference"})
	}

	return c.NoContent(http.StatusOK)
}
