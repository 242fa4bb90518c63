package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/collabrixo/collabrixo/internal/application/config"
)

type IceHandler struct {
	cfg *config.Config
}

func NewIceHandler(cfg *config.Config) *IceHandler {
	return &IceHandler{cfg: cfg}
}

// IceServers hands clients the NAT-traversal server list. Without at least
// one reachable STUN server, sessions stall in connecting.
func (h *IceHandler) IceServers(c echo.Context) error {
	return c.JSON(http.StatusOK, h.cfg.ICEServers())
}
