package models

import (
	"time"
)

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issued by TokenManager
// Access is empty if it was not requested
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}

// Verified access token payload
type AccessClaims struct {
	Username  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
