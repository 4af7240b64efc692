package domain

import "time"

// User is an account allowed to drive downloads. PasswordHash is never
// returned past the service layer.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}

// Session is the signed access token handed out at login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      User
}
