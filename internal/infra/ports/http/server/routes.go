package server

import (
	"github.com/labstack/echo/v4"

	"github.com/collabrixo/collabrixo/internal/application/config"
	"github.com/collabrixo/collabrixo/internal/infra/ports/http/handlers"
	"github.com/collabrixo/collabrixo/internal/infra/ports/http/middleware"
)

func New(
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	conferenceHandler *handlers.ConferenceHandler,
	iceHandler *handlers.IceHandler,
	wsHandler *handlers.WebSocketHandler,
) *echo.Echo {
	e := echo.New()

	e.HideBanner = true
	e.Use(middleware.PrometheusMiddleware())

	api := e.Group("/api")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
		}

		v1 := api.Group("/v1")
		v1.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
		{
			v1.GET("/me", authHandler.GetMe)

			v1.GET("/ice", iceHandler.IceServers)

			v1.GET("/ws", wsHandler.Handle)

			v1.GET("/conferences", conferenceHandler.List)
			v1.POST("/conferences", conferenceHandler.Create)
			v1.DELETE("/conferences/:id", conferenceHandler.End)
		}
	}

	e.Static("/", "web")

	return e
}
