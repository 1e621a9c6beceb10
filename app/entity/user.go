package entity

import (
	"database/sql"
	"time"
)

type User struct {
	ID                uint64
	Username          string
	Email             string
	CanonicalEmail    string
	PasswordHash      string
	IsActive          bool
	IsStaff           bool
	EmailVerified     bool
	VerificationToken sql.NullString
	LastLogin         sql.NullTime
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Session struct {
	ID         uint64
	UserID     uint64
	TokenHash  string
	Persistent bool
	ExpiresAt  time.Time
	CreatedAt  time.Time
}
