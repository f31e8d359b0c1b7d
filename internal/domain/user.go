package domain

import "time"

// Role names stored on the user record and embedded in session tokens.
const (
	RoleUser        = "user"
	RoleEditor      = "editor"
	RoleAdmin       = "admin"
	RoleContributor = "contributor"
)

// ValidRole reports whether role is one of the platform roles.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleEditor, RoleAdmin, RoleContributor:
		return true
	}
	return false
}

type User struct {
	UserID        string     `json:"id" dynamodbav:"user_id"`
	Username      string     `json:"username" dynamodbav:"username"`
	Email         string     `json:"email" dynamodbav:"email"`
	PasswordHash  string     `json:"-" dynamodbav:"password_hash"`
	Role          string     `json:"role" dynamodbav:"role"`
	EmailVerified bool       `json:"email_verified" dynamodbav:"email_verified"`
	AuthProvider  string     `json:"auth_provider,omitempty" dynamodbav:"auth_provider"` // "local" | "google"
	GoogleSub     string     `json:"-" dynamodbav:"google_sub"`
	Enable        bool       `json:"enable" dynamodbav:"enable"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty" dynamodbav:"deleted_at"`
	CreatedAt     time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt     time.Time  `json:"updated" dynamodbav:"updated_at"`
}

type CreateUserRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Email    string `json:"email" validate:"required,email"`
}

// Account is the user projection returned inside login responses.
type Account struct {
	UserID            string `json:"id"`
	Username          string `json:"username"`
	Email             string `json:"email"`
	Role              string `json:"role"`
	EmailVerified     bool   `json:"emailVerified"`
	IsProfileComplete bool   `json:"isProfileComplete"`
}
