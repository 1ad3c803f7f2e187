package domain

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/diagnosis/gatepass/pkg/auth"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrTooManyAttempts    = errors.New("too many failed login attempts")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrStore              = errors.New("store unavailable")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }

func invalid(field, msg string) error { return &ValidationError{Field: field, Message: msg} }

// StaffUser is a guard, organiser or CSO account.
type StaffUser struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	FullName     string    `json:"full_name"`
	Role         auth.Role `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type UserInfo struct {
	ID       int64     `json:"id"`
	Username string    `json:"username"`
	FullName string    `json:"full_name"`
	Role     auth.Role `json:"role"`
}

func (u *StaffUser) Info() *UserInfo {
	return &UserInfo{ID: u.ID, Username: u.Username, FullName: u.FullName, Role: u.Role}
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	User        *UserInfo `json:"user"`
}

type CreateUserRequest struct {
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

var usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{2,31}$`)

func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (r *LoginRequest) Normalize() {
	r.Username = NormalizeUsername(r.Username)
}

func (r *LoginRequest) Validate() error {
	if r.Username == "" {
		return invalid("username", "is required")
	}
	if r.Password == "" {
		return invalid("password", "is required")
	}
	return nil
}

func (r *CreateUserRequest) Normalize() {
	r.Username = NormalizeUsername(r.Username)
	r.FullName = strings.TrimSpace(r.FullName)
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))
}

func (r *CreateUserRequest) Validate() error {
	if !usernamePattern.MatchString(r.Username) {
		return invalid("username", "must be 3-32 characters of a-z, 0-9, '.', '_' or '-'")
	}
	if r.FullName == "" {
		return invalid("full_name", "is required")
	}
	if len(r.Password) < 8 {
		return invalid("password", "must be at least 8 characters")
	}
	if _, ok := auth.ParseRole(r.Role); !ok {
		return invalid("role", "must be guard, organiser or cso")
	}
	return nil
}
