package domain

import "time"

// UserStatus represents lifecycle states for an account.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

// User is the domain model for accounts that submit and manage tickets.
// IsAdmin is the persisted flag half of the authorization policy; the other
// half is the configured admin email allow-list.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	IsAdmin      bool
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Actor is the authenticated identity performing a ticket operation, with the
// admin decision already resolved by the authorization policy.
type Actor struct {
	UserID    string
	UserName  string
	UserEmail string
	IsAdmin   bool
}
