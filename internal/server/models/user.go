// Package models contains the server-side persistence models.
package models

import "time"

type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Email        string
	CreatedAt    time.Time
}
