package call

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindMediaAccess    ErrorKind = "media_access"
	KindSignaling      ErrorKind = "signaling"
	KindPeerConnection ErrorKind = "peer_connection"
	KindJoinRejected   ErrorKind = "join_rejected"
)

var (
	ErrNotIdle       = errors.New("call already started")
	ErrTransportGone = errors.New("signaling transport closed")
	ErrPeerFailed    = errors.New("peer connection failed")
	ErrJoinRejected  = errors.New("unable to join consultation")
)

// Error - единственная наблюдаемая ошибка звонка
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error

	// Message - текст для пользователя
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, op string, err error, message string) *Error {
	return &Error{Kind: kind, Op: op, Err: err, Message: message}
}

// IsKind проверяет вид ошибки звонка в цепочке
func IsKind(err error, kind ErrorKind) bool {
	var callErr *Error
	if errors.As(err, &callErr) {
		return callErr.Kind == kind
	}

	return false
}
