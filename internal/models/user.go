package models

import "time"

const (
	RoleAdmin    = "admin"
	RoleEmployee = "employee"
	RoleUser     = "user"
)

// User is a resident, employee or administrator account.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Fullname     string     `json:"fullname"`
	Email        string     `json:"email"`
	MobileNumber string     `json:"mobilenumber"`
	Address      string     `json:"address,omitempty"`
	DOB          *time.Time `json:"dob,omitempty"`
	Photo        string     `json:"photo,omitempty"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Session is the server-side record of an issued access token.
type Session struct {
	UserID    int64     `json:"user_id"`
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
