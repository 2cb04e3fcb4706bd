package model

import "time"

// Session идентифицируется парой (SessionID, AccessToken); проверка требует
// точного совпадения обоих значений. Единственный критерий живости — ExpiresAt.
type Session struct {
	SessionID      string    `json:"session_id"`
	UserID         int       `json:"user_id"`
	UserLogin      string    `json:"user_login"`
	Email          string    `json:"email"`
	AccessToken    string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity"`
	ExpiresAt      time.Time `json:"expires_at"`
	IPAddress      string    `json:"ip_address,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
	RememberMe     bool      `json:"remember_me"`
}

// Expired сообщает, истекла ли сессия на момент now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
