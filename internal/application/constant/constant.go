package constant

// Ключи атрибутов slog
const (
	Error     = "error"
	UserID    = "user_id"
	SessionID = "session_id"
	RoomID    = "room_id"
	Role      = "role"
	State     = "state"
	Type      = "type"
	Code      = "code"
	Remote    = "remote"
)
