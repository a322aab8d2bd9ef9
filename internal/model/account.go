package model

import (
	"time"
)

type Account struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	IsActive     bool      `db:"is_active" json:"isActive"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

type CreateAccountParams struct {
	Username     string
	Email        string
	PasswordHash string
}

// PublicProfile is the account shape safe to hand to clients and to push
// over the pairing notification channel. It never carries the hash.
type PublicProfile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

func (a *Account) Public() PublicProfile {
	return PublicProfile{
		ID:        a.ID,
		Username:  a.Username,
		Email:     a.Email,
		IsActive:  a.IsActive,
		CreatedAt: a.CreatedAt,
	}
}
