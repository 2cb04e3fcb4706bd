package middleware

import (
	"context"

	"github.com/machinepark/internal/model"
)

type contextKey string

const (
	IdentityKey  contextKey = "identity"
	SessionIDKey contextKey = "session_id"
)

// GetIdentity возвращает личность пользователя из контекста (устанавливается RequireSession).
func GetIdentity(ctx context.Context) model.Identity {
	v, _ := ctx.Value(IdentityKey).(model.Identity)
	return v
}

func GetSessionID(ctx context.Context) string {
	v, _ := ctx.Value(SessionIDKey).(string)
	return v
}
