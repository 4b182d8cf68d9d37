package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/qrave1/CareCall/internal/usecase"
)

type IceHandler struct {
	iceUsecase usecase.IceUsecase
}

func NewIceHandler(iceUsecase usecase.IceUsecase) *IceHandler {
	return &IceHandler{iceUsecase: iceUsecase}
}

// Handler для выдачи ICE серверов
func (h *IceHandler) IceServers(c echo.Context) error {
	return c.JSON(http.StatusOK, h.iceUsecase.ICEServers(time.Now()))
}
