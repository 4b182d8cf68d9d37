package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qrave1/CareCall/internal/application/constant"
	"github.com/qrave1/CareCall/internal/application/metric"
	"github.com/qrave1/CareCall/internal/domain"
	"github.com/qrave1/CareCall/internal/domain/events"
)

// Notifier доставляет сообщения сессиям. Не должен блокироваться: вызывается под замком комнаты
type Notifier interface {
	Write(sessionID uuid.UUID, msg events.Message) bool
}

// RelayCheck выполняется под замком комнаты перед пересылкой и может менять состояния сессий
type RelayCheck func(self, peer *domain.ParticipantSession) error

type JoinResult struct {
	Role  domain.Role
	Peers []domain.ParticipantSession
}

// RoomRegistry - реестр комнат: roomID -> не более двух сессий
type RoomRegistry interface {
	// Join admits a session into a room, notifies the existing peer with user-joined.
	// onAdmit runs under the room lock before the peer is notified
	Join(ctx context.Context, roomID string, session domain.ParticipantSession, onAdmit func(JoinResult)) (JoinResult, error)

	// Leave removes a session, notifies the remaining peer with user-left
	Leave(ctx context.Context, roomID string, sessionID uuid.UUID) error

	// Lookup returns a snapshot of the room
	Lookup(ctx context.Context, roomID string) (domain.Room, bool)

	// Relay forwards msg from a session to its peer if check passes
	Relay(ctx context.Context, roomID string, from uuid.UUID, msg events.Message, check RelayCheck) error

	// RoomOf returns the room a session is in
	RoomOf(sessionID uuid.UUID) (string, bool)

	Count() int
}

type room struct {
	mu        sync.Mutex
	id        string
	sessions  []*domain.ParticipantSession
	createdAt time.Time

	// closed - комната удалена из реестра, держатели старого указателя должны перечитать
	closed bool
}

type roomRegistry struct {
	rooms     map[string]*room
	bySession map[uuid.UUID]string
	mu        sync.RWMutex

	notifier Notifier
}

func NewRoomRegistry(notifier Notifier) RoomRegistry {
	return &roomRegistry{
		rooms:     make(map[string]*room),
		bySession: make(map[uuid.UUID]string),
		notifier:  notifier,
	}
}

func (r *roomRegistry) Join(
	ctx context.Context,
	roomID string,
	session domain.ParticipantSession,
	onAdmit func(JoinResult),
) (JoinResult, error) {
	if err := domain.ValidateRoomID(roomID); err != nil {
		return JoinResult{}, err
	}

	if !session.Role.Valid() {
		return JoinResult{}, fmt.Errorf("%w: %q", domain.ErrInvalidRole, session.Role)
	}

	if _, ok := r.RoomOf(session.ID); ok {
		return JoinResult{}, domain.ErrAlreadyJoined
	}

	for {
		rm := r.getOrCreate(roomID)

		rm.mu.Lock()
		if rm.closed {
			rm.mu.Unlock()
			continue
		}

		result, err := r.admit(rm, session, onAdmit)
		rm.mu.Unlock()

		return result, err
	}
}

// admit вызывается под rm.mu
func (r *roomRegistry) admit(rm *room, session domain.ParticipantSession, onAdmit func(JoinResult)) (JoinResult, error) {
	if len(rm.sessions) >= domain.MaxParticipants {
		return JoinResult{}, domain.ErrRoomFull
	}

	for _, s := range rm.sessions {
		if s.ID == session.ID {
			return JoinResult{}, domain.ErrAlreadyJoined
		}

		if s.Role == session.Role {
			if session.Role == domain.RoleInitiator {
				return JoinResult{}, domain.ErrDuplicateInitiator
			}

			return JoinResult{}, domain.ErrDuplicateResponder
		}
	}

	if session.JoinedAt.IsZero() {
		session.JoinedAt = time.Now().UTC()
	}
	session.State = domain.SessionJoined

	peers := make([]domain.ParticipantSession, 0, len(rm.sessions))
	for _, s := range rm.sessions {
		peers = append(peers, *s)
	}

	stored := session
	rm.sessions = append(rm.sessions, &stored)

	r.mu.Lock()
	r.bySession[session.ID] = rm.id
	r.mu.Unlock()

	result := JoinResult{Role: session.Role, Peers: peers}
	if onAdmit != nil {
		onAdmit(result)
	}

	joined, err := events.New(events.TypeUserJoined, rm.id, events.PeerInfo{SessionID: session.ID, Role: session.Role})
	if err != nil {
		slog.Error("build user-joined", slog.Any(constant.Error, err))
		return result, nil
	}

	for _, p := range peers {
		if !r.notifier.Write(p.ID, joined) {
			slog.Warn(
				"user-joined not delivered",
				slog.String(constant.RoomID, rm.id),
				slog.Any(constant.SessionID, p.ID),
			)
		}
	}

	return result, nil
}

func (r *roomRegistry) Leave(ctx context.Context, roomID string, sessionID uuid.UUID) error {
	rm := r.get(roomID)
	if rm == nil {
		return fmt.Errorf("%w: room %s", domain.ErrNotInRoom, roomID)
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	idx := -1
	for i, s := range rm.sessions {
		if s.ID == sessionID {
			idx = i
			break
		}
	}

	if idx < 0 {
		return fmt.Errorf("%w: room %s", domain.ErrNotInRoom, roomID)
	}

	left := rm.sessions[idx]
	rm.sessions = append(rm.sessions[:idx], rm.sessions[idx+1:]...)

	r.mu.Lock()
	delete(r.bySession, sessionID)
	r.mu.Unlock()

	if r.dropIfEmpty(rm) {
		return nil
	}

	msg, err := events.New(events.TypeUserLeft, rm.id, events.PeerInfo{SessionID: left.ID, Role: left.Role})
	if err != nil {
		slog.Error("build user-left", slog.Any(constant.Error, err))
		return nil
	}

	for _, s := range rm.sessions {
		// оставшийся участник ждёт нового собеседника с чистого листа
		s.State = domain.SessionJoined
		r.notifier.Write(s.ID, msg)
	}

	return nil
}

func (r *roomRegistry) Lookup(ctx context.Context, roomID string) (domain.Room, bool) {
	rm := r.get(roomID)
	if rm == nil {
		return domain.Room{}, false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.closed {
		return domain.Room{}, false
	}

	snapshot := domain.Room{
		ID:        rm.id,
		CreatedAt: rm.createdAt,
		Sessions:  make([]domain.ParticipantSession, 0, len(rm.sessions)),
	}

	for _, s := range rm.sessions {
		snapshot.Sessions = append(snapshot.Sessions, *s)
	}

	return snapshot, true
}

func (r *roomRegistry) Relay(ctx context.Context, roomID string, from uuid.UUID, msg events.Message, check RelayCheck) error {
	rm := r.get(roomID)
	if rm == nil {
		return fmt.Errorf("%w: room %s", domain.ErrNotInRoom, roomID)
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	var self, peer *domain.ParticipantSession
	for _, s := range rm.sessions {
		if s.ID == from {
			self = s
		} else {
			peer = s
		}
	}

	if self == nil {
		return fmt.Errorf("%w: room %s", domain.ErrNotInRoom, roomID)
	}

	if peer == nil {
		return domain.ErrNoPeer
	}

	if check != nil {
		if err := check(self, peer); err != nil {
			return err
		}
	}

	msg.RoomID = rm.id

	if !r.notifier.Write(peer.ID, msg) {
		return fmt.Errorf("deliver %s to %s: queue unavailable", msg.Type, peer.ID)
	}

	return nil
}

func (r *roomRegistry) RoomOf(sessionID uuid.UUID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roomID, ok := r.bySession[sessionID]

	return roomID, ok
}

func (r *roomRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms)
}

func (r *roomRegistry) get(roomID string) *room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.rooms[roomID]
}

func (r *roomRegistry) getOrCreate(roomID string) *room {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rm, ok := r.rooms[roomID]; ok {
		return rm
	}

	rm := &room{
		id:        roomID,
		sessions:  make([]*domain.ParticipantSession, 0, domain.MaxParticipants),
		createdAt: time.Now().UTC(),
	}
	r.rooms[roomID] = rm

	metric.SetRoomsActive(len(r.rooms))

	return rm
}

// dropIfEmpty удаляет пустую комнату из реестра. Вызывается под rm.mu
func (r *roomRegistry) dropIfEmpty(rm *room) bool {
	if len(rm.sessions) > 0 {
		return false
	}

	rm.closed = true

	r.mu.Lock()
	if r.rooms[rm.id] == rm {
		delete(r.rooms, rm.id)
	}
	metric.SetRoomsActive(len(r.rooms))
	r.mu.Unlock()

	return true
}
