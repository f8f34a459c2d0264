package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID              uuid.UUID
	Username        string
	Email           string
	HashedPassword  string
	IsEmailVerified bool
	JoinedOn        time.Time
	LastActive      time.Time
}

// Projection of the user that is safe to return to its owner.
// Password hash, internal id and join time are stripped.
type PublicUser struct {
	Username        string    `json:"username"`
	Email           string    `json:"email"`
	IsEmailVerified bool      `json:"isEmailVerified"`
	LastActive      time.Time `json:"lastActive"`
}

func (u User) Public() PublicUser {
	return PublicUser{
		Username:        u.Username,
		Email:           u.Email,
		IsEmailVerified: u.IsEmailVerified,
		LastActive:      u.LastActive,
	}
}
