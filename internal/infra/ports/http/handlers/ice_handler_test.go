package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabrixo/collabrixo/internal/application/config"
	"github.com/collabrixo/collabrixo/internal/infra/ports/http/handlers"
)

func TestIceServersReturnsConfiguredList(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		STUNServers: []string{"stun:stun.example.org:3478", "stun:stun2.example.org:3478"},
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ice", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := handlers.NewIceHandler(cfg)
	require.NoError(t, h.IceServers(c))

	assert.Equal(t, http.StatusOK, rec.Code)

	var servers []webrtc.ICEServer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &servers))
	require.Len(t, servers, 2)
	assert.Equal(t, []string{"stun:stun.example.org:3478"}, servers[0].URLs)
}
