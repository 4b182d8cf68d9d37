package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/qrave1/CareCall/internal/domain"
	"github.com/qrave1/CareCall/internal/domain/models"
)

type SessionResponse struct {
	SessionID uuid.UUID `json:"session_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	State     string    `json:"state"`
	JoinedAt  time.Time `json:"joined_at"`
}

type RoomResponse struct {
	RoomID    string            `json:"room_id"`
	CreatedAt time.Time         `json:"created_at"`
	Sessions  []SessionResponse `json:"sessions"`
}

func NewRoomResponse(room domain.Room) RoomResponse {
	resp := RoomResponse{
		RoomID:    room.ID,
		CreatedAt: room.CreatedAt,
		Sessions:  make([]SessionResponse, 0, len(room.Sessions)),
	}

	for _, s := range room.Sessions {
		resp.Sessions = append(resp.Sessions, SessionResponse{
			SessionID: s.ID,
			UserID:    s.UserID,
			Role:      s.Role.String(),
			State:     string(s.State),
			JoinedAt:  s.JoinedAt,
		})
	}

	return resp
}

type AppointmentRoomResponse struct {
	AppointmentID string `json:"appointment_id"`
	RoomID        string `json:"room_id"`
}

type HistoryEntryResponse struct {
	SessionID uuid.UUID  `json:"session_id"`
	UserID    string     `json:"user_id"`
	Role      string     `json:"role"`
	JoinedAt  time.Time  `json:"joined_at"`
	LeftAt    *time.Time `json:"left_at,omitempty"`
	EndReason string     `json:"end_reason,omitempty"`
}

type HistoryResponse struct {
	RoomID  string                 `json:"room_id"`
	Entries []HistoryEntryResponse `json:"entries"`
}

func NewHistoryResponse(roomID string, sessions []*models.CallSession) HistoryResponse {
	resp := HistoryResponse{
		RoomID:  roomID,
		Entries: make([]HistoryEntryResponse, 0, len(sessions)),
	}

	for _, s := range sessions {
		entry := HistoryEntryResponse{
			SessionID: s.SessionID,
			UserID:    s.UserID,
			Role:      s.Role,
			JoinedAt:  s.JoinedAt,
		}

		if s.LeftAt.Valid {
			leftAt := s.LeftAt.Time
			entry.LeftAt = &leftAt
		}

		if s.EndReason.Valid {
			entry.EndReason = s.EndReason.String
		}

		resp.Entries = append(resp.Entries, entry)
	}

	return resp
}
