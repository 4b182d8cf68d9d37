package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxParticipants - звонок строго 1:1
const MaxParticipants = 2

const (
	roomIDPrefix    = "consultation-"
	maxRoomIDLength = 128
)

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

type SessionState string

const (
	SessionJoined      SessionState = "joined"
	SessionNegotiating SessionState = "negotiating"
	SessionConnected   SessionState = "connected"
)

// ParticipantSession - одно подключение участника к комнате.
// Mute и выключенное видео живут только на клиенте и по сигналингу не передаются
type ParticipantSession struct {
	ID       uuid.UUID    `json:"session_id"`
	UserID   string       `json:"user_id"`
	Role     Role         `json:"role"`
	State    SessionState `json:"state"`
	JoinedAt time.Time    `json:"joined_at"`
}

type Room struct {
	ID        string               `json:"room_id"`
	Sessions  []ParticipantSession `json:"sessions"`
	CreatedAt time.Time            `json:"created_at"`
}

func ValidateRoomID(id string) error {
	if id == "" || len(id) > maxRoomIDLength || !roomIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidRoomID, id)
	}

	return nil
}

// RoomIDFromAppointment строит идентификатор комнаты из id записи на приём
func RoomIDFromAppointment(appointmentID string) (string, error) {
	appointmentID = strings.TrimSpace(appointmentID)
	if appointmentID == "" {
		return "", fmt.Errorf("%w: empty appointment id", ErrInvalidRoomID)
	}

	if strings.HasPrefix(appointmentID, roomIDPrefix) {
		return appointmentID, ValidateRoomID(appointmentID)
	}

	id := roomIDPrefix + appointmentID

	return id, ValidateRoomID(id)
}
