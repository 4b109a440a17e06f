package model

import "time"

// Role is a user's authority level.
type Role string

// User roles. RoleAdmin doubles as the name of the admin notification room.
const (
	RoleAdmin    Role = "Admin"
	RoleEmployee Role = "Employee"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleEmployee
}

// User is an account. PasswordHash never leaves the store and accounts layers.
type User struct {
	ID           string    `json:"id" db:"id"`
	FullName     string    `json:"fullName" db:"full_name"`
	Email        string    `json:"email" db:"email"`
	Username     string    `json:"username" db:"username"`
	Avatar       string    `json:"avatar" db:"avatar"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         Role      `json:"role" db:"role"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// Summary reduces the user to its public identity fields.
func (u User) Summary() UserSummary {
	return UserSummary{
		ID:       u.ID,
		FullName: u.FullName,
		Email:    u.Email,
		Avatar:   u.Avatar,
	}
}

// UserSummary is the identity attached to tasks, comments and log entries.
type UserSummary struct {
	ID       string `json:"id" db:"id"`
	FullName string `json:"fullName" db:"full_name"`
	Email    string `json:"email,omitempty" db:"email"`
	Avatar   string `json:"avatar,omitempty" db:"avatar"`
}
