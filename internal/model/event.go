package model

import "time"

// SessionEvent — запись журнала жизненного цикла сессий. SessionID хранится
// маскированным: журнал не содержит рабочих секретов.
type SessionEvent struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	UserID    int       `json:"user_id,omitempty"`
	UserLogin string    `json:"user_login,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
