package appctx

import "context"

type ctxKey string

const identityKey ctxKey = "identity"

// Identity - то, что identity модуль сообщает о пользователе через токен.
// UserID непрозрачен: identity модуль выдаёт Mongo ObjectId, сторонние клиенты UUID
type Identity struct {
	UserID string
	Role   string
}

// WithIdentity добавляет identity в контекст
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom извлекает identity из контекста
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// UserID извлекает userID из контекста
func UserID(ctx context.Context) (string, bool) {
	id, ok := IdentityFrom(ctx)
	return id.UserID, ok && id.UserID != ""
}
