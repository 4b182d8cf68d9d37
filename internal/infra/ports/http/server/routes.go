package server

import (
	"github.com/labstack/echo/v4"

	"github.com/qrave1/CareCall/internal/application/config"
	"github.com/qrave1/CareCall/internal/infra/ports/http/handlers"
	"github.com/qrave1/CareCall/internal/infra/ports/http/middleware"
)

func New(
	cfg *config.Config,
	iceHandler *handlers.IceHandler,
	roomHandler *handlers.RoomHandler,
	wsHandler *handlers.WebSocketHandler,
) *echo.Echo {
	e := echo.New()

	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.SlogLogger())
	e.Use(middleware.PrometheusMiddleware())

	api := e.Group("/api")
	{
		v1 := api.Group("/v1")
		v1.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
		{
			v1.GET("/ice", iceHandler.IceServers)

			v1.GET("/ws", wsHandler.Handle)

			v1.GET("/rooms/:id", roomHandler.GetRoom)
			v1.GET("/rooms/:id/history", roomHandler.GetHistory)

			v1.GET("/appointments/:id/room", roomHandler.GetAppointmentRoom)
		}
	}

	return e
}
