package models

import "time"

// SessionToken is an opaque bearer credential stored server-side.
// Many tokens may exist concurrently for one user (multi-device).
type SessionToken struct {
	Token     string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}
