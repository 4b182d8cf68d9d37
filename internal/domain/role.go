package domain

import (
	"fmt"
	"strings"
)

// Role - роль участника в звонке. Offer отправляет только Initiator, это исключает glare.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// identityInitiator - роль из identity модуля, которая всегда начинает консультацию
const identityInitiator = "doctor"

func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleInitiator:
		return RoleInitiator, nil
	case RoleResponder:
		return RoleResponder, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// RoleFromIdentity сопоставляет роль пользователя (doctor, patient, asha...) с ролью в звонке
func RoleFromIdentity(identityRole string) Role {
	if strings.EqualFold(strings.TrimSpace(identityRole), identityInitiator) {
		return RoleInitiator
	}

	return RoleResponder
}

func (r Role) Valid() bool {
	return r == RoleInitiator || r == RoleResponder
}

func (r Role) String() string {
	return string(r)
}
