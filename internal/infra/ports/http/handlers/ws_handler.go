package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/qrave1/CareCall/internal/application/config"
	"github.com/qrave1/CareCall/internal/application/constant"
	"github.com/qrave1/CareCall/internal/infra/adapters/memory"
	"github.com/qrave1/CareCall/internal/usecase"
)

const (
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Maximum message size allowed from peer, enough for SDP with many candidates.
	maxMessageSize = 64 * 1024
)

type WebSocketHandler struct {
	upgrader *websocket.Upgrader

	signalingUsecase usecase.SignalingUsecase

	wsConnRepo memory.WebsocketConnectionRepository
}

func NewWebSocketHandler(
	cfg *config.Config,
	signalingUsecase usecase.SignalingUsecase,
	wsConnRepo memory.WebsocketConnectionRepository,
) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.Debug {
					return true
				}

				origin := r.Header.Get("Origin")

				// headless клиенты Origin не присылают
				return origin == "" || origin == cfg.Domain
			},
		},
		signalingUsecase: signalingUsecase,
		wsConnRepo:       wsConnRepo,
	}
}

func (h *WebSocketHandler) Handle(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"WebSocket upgrade error",
			slog.Any(constant.Error, err),
		)
		return err
	}

	ctx := c.Request().Context()

	// сессия = одно ws соединение; пользователь может переподключиться новой сессией
	sessionID := uuid.New()

	h.wsConnRepo.Add(sessionID, ws)
	defer h.wsConnRepo.Remove(sessionID)
	defer h.signalingUsecase.HandleDisconnect(ctx, sessionID)

	ws.SetReadLimit(maxMessageSize)

	if err = ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return nil
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			h.handleWebsocketError(sessionID, err)

			return nil
		}

		// ошибки уже залогированы и отправлены клиенту, соединение живёт дальше
		_ = h.signalingUsecase.Dispatch(ctx, sessionID, raw)
	}
}

func (h *WebSocketHandler) handleWebsocketError(sessionID uuid.UUID, err error) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			slog.Info("session disconnected from websocket", slog.Any(constant.SessionID, sessionID))
		default:
			slog.Warn(
				"websocket closed abnormally",
				slog.Int("close_code", closeErr.Code),
				slog.Any(constant.SessionID, sessionID),
			)
		}
	} else {
		slog.Error(
			"websocket read",
			slog.Any(constant.Error, err),
			slog.Any(constant.SessionID, sessionID),
		)
	}
}
