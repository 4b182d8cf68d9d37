package models

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// EndReason - почему участник покинул звонок
type EndReason string

const (
	EndReasonLeave      EndReason = "leave"
	EndReasonDisconnect EndReason = "disconnect"
	EndReasonShutdown   EndReason = "shutdown"
)

// CallSession - запись истории: одно пребывание участника в комнате
type CallSession struct {
	ID        uuid.UUID      `json:"id" db:"id"`
	RoomID    string         `json:"room_id" db:"room_id"`
	SessionID uuid.UUID      `json:"session_id" db:"session_id"`
	UserID    string         `json:"user_id" db:"user_id"`
	Role      string         `json:"role" db:"role"`
	JoinedAt  time.Time      `json:"joined_at" db:"joined_at"`
	LeftAt    sql.NullTime   `json:"left_at" db:"left_at"`
	EndReason sql.NullString `json:"end_reason" db:"end_reason"`
}

func NewCallSession(roomID string, sessionID uuid.UUID, userID, role string) *CallSession {
	return &CallSession{
		ID:        uuid.New(),
		RoomID:    roomID,
		SessionID: sessionID,
		UserID:    userID,
		Role:      role,
		JoinedAt:  time.Now().UTC(),
	}
}
