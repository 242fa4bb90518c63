package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/collabrixo/collabrixo/internal/application/config"
	"github.com/collabrixo/collabrixo/internal/application/constant"
	"github.com/collabrixo/collabrixo/internal/application/metric"
	"github.com/collabrixo/collabrixo/internal/domain/signal"
	"github.com/collabrixo/collabrixo/internal/infra/appctx"
	"github.com/collabrixo/collabrixo/internal/transport"
)

// WebSocketHandler bridges a websocket client onto the room's pub/sub
// topic, so remote clients share rooms with in-process participants.
type WebSocketHandler struct {
	upgrader *websocket.Upgrader
	bus      transport.PubSub
}

func NewWebSocketHandler(cfg *config.Config, bus transport.PubSub) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.Debug {
					return true
				}

				return r.Header.Get("Origin") == cfg.Domain
			},
		},
		bus: bus,
	}
}

func (h *WebSocketHandler) Handle(c echo.Context) error {
	userID, ok := appctx.UserID(c.Request().Context())
	if !ok {
		return fmt.Errorf("get user id from context")
	}

	roomID := c.QueryParam("room_id")
	if roomID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "room_id is required"})
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error("WebSocket upgrade error", slog.Any(constant.Error, err))
		return err
	}
	defer ws.Close()

	metric.IncrementWSActiveConnections()
	defer metric.DecrementWSActiveConnections()

	ctx := c.Request().Context()

	sub, err := h.bus.Subscribe(ctx, roomID)
	if err != nil {
		slog.Error("subscribe relay",
			slog.Any(constant.Error, err),
			slog.String(constant.RoomID, roomID),
		)
		return err
	}
	defer sub.Close()

	if err := ws.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		return err
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	// room topic -> websocket, plus keepalive pings
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case payload, ok := <-sub.Messages():
				if !ok {
					return
				}

				if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			}
		}
	}()

	// websocket -> room topic
	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			h.logReadError(err, userID.String())

			// departure on any exit path: peers must not wait on a
			// vanished participant
			leave, _ := json.Marshal(signal.NewLeave(userID.String()))
			if err := h.bus.Publish(ctx, roomID, leave); err != nil {
				slog.Error("publish relay leave", slog.Any(constant.Error, err))
			}

			return nil
		}

		var env signal.Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			slog.Error("unmarshal relayed envelope", slog.Any(constant.Error, err))
			continue
		}

		// clients don't get to impersonate each other
		env.Sender = userID.String()

		payload, err := json.Marshal(env)
		if err != nil {
			continue
		}

		if err := h.bus.Publish(ctx, roomID, payload); err != nil {
			slog.Error("publish relayed envelope",
				slog.Any(constant.Error, err),
				slog.String(constant.RoomID, roomID),
			)
			return nil
		}

		metric.RecordSignalingMessage(string(env.Type))
	}
}

func (h *WebSocketHandler) logReadError(err error, userID string) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			slog.Info("user disconnected from websocket", slog.String(constant.UserID, userID))
		default:
			slog.Error("websocket close error", slog.Any(constant.Error, err))
		}
	} else {
		slog.Error("websocket read", slog.Any(constant.Error, err))
	}
}
