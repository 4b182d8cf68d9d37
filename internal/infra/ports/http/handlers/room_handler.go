package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/qrave1/CareCall/internal/application/constant"
	"github.com/qrave1/CareCall/internal/domain"
	"github.com/qrave1/CareCall/internal/infra/adapters/memory"
	"github.com/qrave1/CareCall/internal/infra/adapters/postgres/repository"
	"github.com/qrave1/CareCall/internal/infra/ports/http/dto"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type RoomHandler struct {
	registry    memory.RoomRegistry
	historyRepo repository.CallSessionRepository
}

func NewRoomHandler(registry memory.RoomRegistry, historyRepo repository.CallSessionRepository) *RoomHandler {
	return &RoomHandler{
		registry:    registry,
		historyRepo: historyRepo,
	}
}

func (h *RoomHandler) GetRoom(c echo.Context) error {
	roomID := c.Param("id")
	if err := domain.ValidateRoomID(roomID); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid room id"})
	}

	room, ok := h.registry.Lookup(c.Request().Context(), roomID)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "room not found"})
	}

	return c.JSON(http.StatusOK, dto.NewRoomResponse(room))
}

func (h *RoomHandler) GetHistory(c echo.Context) error {
	roomID := c.Param("id")
	if err := domain.ValidateRoomID(roomID); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid room id"})
	}

	limit := defaultHistoryLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxHistoryLimit {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
		}
		limit = parsed
	}

	sessions, err := h.historyRepo.ListByRoom(c.Request().Context(), roomID, limit)
	if err != nil {
		slog.Error("list call history", slog.Any(constant.Error, err), slog.String(constant.RoomID, roomID))

		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get history"})
	}

	return c.JSON(http.StatusOK, dto.NewHistoryResponse(roomID, sessions))
}

// GetAppointmentRoom отдаёт id комнаты для записи на приём из модуля расписания
func (h *RoomHandler) GetAppointmentRoom(c echo.Context) error {
	appointmentID := c.Param("id")

	roomID, err := domain.RoomIDFromAppointment(appointmentID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid appointment id"})
	}

	return c.JSON(http.StatusOK, dto.AppointmentRoomResponse{AppointmentID: appointmentID, RoomID: roomID})
}
