package model

import "time"

type User struct {
	ID           int       `json:"id"`
	Login        string    `json:"login"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity — снимок личности, копируемый в сессию при входе.
// При проверке сессии справочник пользователей повторно не читается.
type Identity struct {
	UserID    int    `json:"user_id"`
	UserLogin string `json:"user_login"`
	Email     string `json:"email"`
}

func (u *User) Identity() Identity {
	return Identity{
		UserID:    u.ID,
		UserLogin: u.Login,
		Email:     u.Email,
	}
}
