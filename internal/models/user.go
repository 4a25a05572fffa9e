package models

import "time"

type UserStatus string

const (
	UserStatusIdle      UserStatus = "idle"
	UserStatusSearching UserStatus = "searching"
	UserStatusInMatch   UserStatus = "in_match"
)

const DefaultRating = 1200

type User struct {
	ID           string     `json:"id" db:"id"`
	Username     string     `json:"username" db:"username"`
	Region       string     `json:"region" db:"region"`
	Rating       int        `json:"rating" db:"rating"`
	Status       UserStatus `json:"status" db:"status"`
	MatchHistory []string   `json:"matchHistory" db:"match_history"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt" db:"updated_at"`
}

type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Region   string `json:"region" binding:"required"`
	Rating   *int   `json:"rating"`
}
