package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/qrave1/CareCall/internal/application/constant"
	"github.com/qrave1/CareCall/internal/application/metric"
	"github.com/qrave1/CareCall/internal/domain"
	"github.com/qrave1/CareCall/internal/domain/events"
	"github.com/qrave1/CareCall/internal/domain/models"
	"github.com/qrave1/CareCall/internal/infra/adapters/memory"
	"github.com/qrave1/CareCall/internal/infra/adapters/postgres/repository"
	"github.com/qrave1/CareCall/internal/infra/appctx"
)

type SignalingUsecase interface {
	// Dispatch handles one inbound frame of a session. Errors are already reported to the sender
	Dispatch(ctx context.Context, sessionID uuid.UUID, raw []byte) error

	HandleJoin(ctx context.Context, sessionID uuid.UUID, msg events.Message) error
	HandleLeave(ctx context.Context, sessionID uuid.UUID, roomID string) error
	HandleOffer(ctx context.Context, sessionID uuid.UUID, msg events.Message) error
	HandleAnswer(ctx context.Context, sessionID uuid.UUID, msg events.Message) error
	HandleCandidate(ctx context.Context, sessionID uuid.UUID, msg events.Message) error

	// HandleDisconnect is an implicit leave on transport close
	HandleDisconnect(ctx context.Context, sessionID uuid.UUID)
}

type signalingUsecase struct {
	registry    memory.RoomRegistry
	notifier    memory.Notifier
	historyRepo repository.CallSessionRepository
	iceUsecase  IceUsecase
}

func NewSignalingUsecase(
	registry memory.RoomRegistry,
	notifier memory.Notifier,
	historyRepo repository.CallSessionRepository,
	iceUsecase IceUsecase,
) SignalingUsecase {
	return &signalingUsecase{
		registry:    registry,
		notifier:    notifier,
		historyRepo: historyRepo,
		iceUsecase:  iceUsecase,
	}
}

func (s *signalingUsecase) Dispatch(ctx context.Context, sessionID uuid.UUID, raw []byte) error {
	msg, err := events.Decode(raw)
	if err != nil {
		s.reject(sessionID, "", err)
		return err
	}

	metric.RecordSignalingMessage(string(msg.Type))

	switch msg.Type {
	case events.TypeJoinRoom:
		err = s.HandleJoin(ctx, sessionID, msg)
	case events.TypeOffer:
		err = s.HandleOffer(ctx, sessionID, msg)
	case events.TypeAnswer:
		err = s.HandleAnswer(ctx, sessionID, msg)
	case events.TypeIceCandidate:
		err = s.HandleCandidate(ctx, sessionID, msg)
	case events.TypeLeaveRoom:
		err = s.HandleLeave(ctx, sessionID, msg.RoomID)
	default:
		err = fmt.Errorf("%w: %s is not accepted from clients", domain.ErrUnexpectedMessage, msg.Type)
	}

	if err != nil {
		s.reject(sessionID, msg.RoomID, err)
	}

	return err
}

func (s *signalingUsecase) HandleJoin(ctx context.Context, sessionID uuid.UUID, msg events.Message) error {
	var payload events.JoinPayload

	if err := msg.DecodePayload(&payload); err != nil {
		return err
	}

	identity, _ := appctx.IdentityFrom(ctx)

	role := domain.RoleFromIdentity(identity.Role)
	if payload.Role != "" {
		parsed, err := domain.ParseRole(string(payload.Role))
		if err != nil {
			return err
		}
		role = parsed
	}

	session := domain.ParticipantSession{
		ID:       sessionID,
		UserID:   identity.UserID,
		Role:     role,
		JoinedAt: time.Now().UTC(),
	}

	iceServers := s.iceUsecase.ICEServers(time.Now())

	_, err := s.registry.Join(ctx, msg.RoomID, session, func(res memory.JoinResult) {
		ack := events.JoinedPayload{
			SessionID:  sessionID,
			Role:       res.Role,
			Peers:      make([]events.PeerInfo, 0, len(res.Peers)),
			ICEServers: iceServers,
		}

		for _, p := range res.Peers {
			ack.Peers = append(ack.Peers, events.PeerInfo{SessionID: p.ID, Role: p.Role})
		}

		joined, err := events.New(events.TypeJoined, msg.RoomID, ack)
		if err != nil {
			slog.Error("build joined ack", slog.Any(constant.Error, err))
			return
		}

		s.notifier.Write(sessionID, joined)
	})
	if err != nil {
		return fmt.Errorf("join room %s: %w", msg.RoomID, err)
	}

	slog.Info(
		"session joined room",
		slog.String(constant.RoomID, msg.RoomID),
		slog.Any(constant.SessionID, sessionID),
		slog.String(constant.Role, role.String()),
	)

	entry := models.NewCallSession(msg.RoomID, sessionID, identity.UserID, role.String())
	if err := s.historyRepo.Open(ctx, entry); err != nil {
		slog.Error("open call history", slog.Any(constant.Error, err), slog.Any(constant.SessionID, sessionID))
	}

	return nil
}

func (s *signalingUsecase) HandleLeave(ctx context.Context, sessionID uuid.UUID, roomID string) error {
	return s.leave(ctx, sessionID, roomID, models.EndReasonLeave)
}

func (s *signalingUsecase) HandleDisconnect(ctx context.Context, sessionID uuid.UUID) {
	roomID, ok := s.registry.RoomOf(sessionID)
	if !ok {
		return
	}

	if err := s.leave(ctx, sessionID, roomID, models.EndReasonDisconnect); err != nil {
		slog.Error(
			"leave on disconnect",
			slog.Any(constant.Error, err),
			slog.Any(constant.SessionID, sessionID),
		)
	}
}

func (s *signalingUsecase) leave(ctx context.Context, sessionID uuid.UUID, roomID string, reason models.EndReason) error {
	if err := s.registry.Leave(ctx, roomID, sessionID); err != nil {
		return fmt.Errorf("leave room %s: %w", roomID, err)
	}

	slog.Info(
		"session left room",
		slog.String(constant.RoomID, roomID),
		slog.Any(constant.SessionID, sessionID),
		slog.String("reason", string(reason)),
	)

	// контекст запроса может быть уже отменён при обрыве соединения
	histCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.historyRepo.Close(histCtx, sessionID, reason); err != nil {
		slog.Error("close call history", slog.Any(constant.Error, err), slog.Any(constant.SessionID, sessionID))
	}

	return nil
}

func (s *signalingUsecase) HandleOffer(ctx context.Context, sessionID uuid.UUID, msg events.Message) error {
	if _, err := msg.SDP(); err != nil {
		return err
	}

	err := s.registry.Relay(ctx, msg.RoomID, sessionID, msg, func(self, peer *domain.ParticipantSession) error {
		if self.Role != domain.RoleInitiator {
			return fmt.Errorf("%w: offer from %s", domain.ErrUnexpectedMessage, self.Role)
		}

		self.State = domain.SessionNegotiating
		peer.State = domain.SessionNegotiating

		return nil
	})
	if err != nil {
		return fmt.Errorf("relay offer: %w", err)
	}

	return nil
}

func (s *signalingUsecase) HandleAnswer(ctx context.Context, sessionID uuid.UUID, msg events.Message) error {
	if _, err := msg.SDP(); err != nil {
		return err
	}

	err := s.registry.Relay(ctx, msg.RoomID, sessionID, msg, func(self, peer *domain.ParticipantSession) error {
		if self.Role != domain.RoleResponder {
			return fmt.Errorf("%w: answer from %s", domain.ErrUnexpectedMessage, self.Role)
		}

		// один answer на одну offer
		if self.State != domain.SessionNegotiating {
			return fmt.Errorf("%w: answer without pending offer", domain.ErrUnexpectedMessage)
		}

		self.State = domain.SessionConnected
		peer.State = domain.SessionConnected

		return nil
	})
	if err != nil {
		return fmt.Errorf("relay answer: %w", err)
	}

	return nil
}

func (s *signalingUsecase) HandleCandidate(ctx context.Context, sessionID uuid.UUID, msg events.Message) error {
	if _, err := msg.Candidate(); err != nil {
		return err
	}

	err := s.registry.Relay(ctx, msg.RoomID, sessionID, msg, nil)
	if errors.Is(err, domain.ErrNoPeer) {
		slog.Debug(
			"drop ice candidate without peer",
			slog.String(constant.RoomID, msg.RoomID),
			slog.Any(constant.SessionID, sessionID),
		)

		return nil
	}
	if err != nil {
		return fmt.Errorf("relay ice candidate: %w", err)
	}

	return nil
}

// reject логирует ошибку и сообщает о ней отправителю. Поздние сообщения из чужих комнат молча игнорируются
func (s *signalingUsecase) reject(sessionID uuid.UUID, roomID string, err error) {
	code := domain.CodeOf(err)

	metric.RecordSignalingRejected(string(code))

	slog.Warn(
		"signaling message rejected",
		slog.Any(constant.Error, err),
		slog.String(constant.Code, string(code)),
		slog.String(constant.RoomID, roomID),
		slog.Any(constant.SessionID, sessionID),
	)

	if code == domain.CodeNotInRoom {
		return
	}

	s.notifier.Write(sessionID, events.NewError(roomID, code, err.Error()))
}
