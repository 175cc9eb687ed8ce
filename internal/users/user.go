// Package users owns account registration and credential checks. Storage is
// behind the Repository interface so the in-memory store and the PostgreSQL
// store are interchangeable.
package users

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrDuplicateIdentity  = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrEmptyPassword      = errors.New("password must not be empty")
)

// User is a registered account. Email is the identity used by sessions and
// the notification registry.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Repository persists users. Create must return ErrDuplicateIdentity when the
// email is taken and GetByEmail must return ErrUserNotFound for unknown emails.
type Repository interface {
	Create(ctx context.Context, email, passwordHash string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}
