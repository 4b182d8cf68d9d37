package domain

import "errors"

var (
	ErrRoomFull           = errors.New("room is full")
	ErrDuplicateInitiator = errors.New("room already has an initiator")
	ErrDuplicateResponder = errors.New("room already has a responder")
	ErrAlreadyJoined      = errors.New("session already joined a room")
	ErrNotInRoom          = errors.New("session is not in the room")
	ErrNoPeer             = errors.New("no peer in the room")
	ErrInvalidRoomID      = errors.New("invalid room id")
	ErrInvalidRole        = errors.New("invalid role")
	ErrMalformedMessage   = errors.New("malformed message")
	ErrUnexpectedMessage  = errors.New("unexpected message")
)

// ErrorCode - код ошибки, уходящий клиенту в error фрейме
type ErrorCode string

const (
	CodeRoomFull           ErrorCode = "ROOM_FULL"
	CodeDuplicateInitiator ErrorCode = "DUPLICATE_INITIATOR"
	CodeDuplicateResponder ErrorCode = "DUPLICATE_RESPONDER"
	CodeAlreadyJoined      ErrorCode = "ALREADY_JOINED"
	CodeNotInRoom          ErrorCode = "NOT_IN_ROOM"
	CodeNoPeer             ErrorCode = "NO_PEER"
	CodeInvalidMessage     ErrorCode = "INVALID_MESSAGE"
	CodeUnexpectedMessage  ErrorCode = "UNEXPECTED_MESSAGE"
	CodeInternal           ErrorCode = "INTERNAL_ERROR"
)

var codes = []struct {
	err  error
	code ErrorCode
}{
	{ErrRoomFull, CodeRoomFull},
	{ErrDuplicateInitiator, CodeDuplicateInitiator},
	{ErrDuplicateResponder, CodeDuplicateResponder},
	{ErrAlreadyJoined, CodeAlreadyJoined},
	{ErrNotInRoom, CodeNotInRoom},
	{ErrNoPeer, CodeNoPeer},
	{ErrInvalidRoomID, CodeInvalidMessage},
	{ErrInvalidRole, CodeInvalidMessage},
	{ErrMalformedMessage, CodeInvalidMessage},
	{ErrUnexpectedMessage, CodeUnexpectedMessage},
}

// CodeOf возвращает код для ошибки (в том числе обёрнутой)
func CodeOf(err error) ErrorCode {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}

	return CodeInternal
}

// IsJoinRejection - ошибки, после которых клиенту не удалось войти в консультацию
func IsJoinRejection(code ErrorCode) bool {
	switch code {
	case CodeRoomFull, CodeDuplicateInitiator, CodeDuplicateResponder, CodeAlreadyJoined:
		return true
	default:
		return false
	}
}
