package domain

import (
	"context"
	"errors"
)

type RegisterRequest struct {
	Name     string
	Email    string
	Password string
	Role     string
}

type AuthenticateRequest struct {
	Email    string
	Password string
}

type GetUserRequest struct {
	ID string
}

// UpdateUserRequest is the admin-facing patch for a customer record. Nil
// fields are left unchanged.
type UpdateUserRequest struct {
	ID    string
	Name  *string
	Email *string
}

type Service interface {
	Register(context.Context, RegisterRequest) (User, error)
	Authenticate(context.Context, AuthenticateRequest) (User, error)
	GetByID(context.Context, GetUserRequest) (User, error)
	ListCustomers(context.Context) ([]User, error)
	Update(context.Context, UpdateUserRequest) (User, error)
}

var (
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidEmail       = errors.New("invalid_email")
	ErrInvalidPassword    = errors.New("invalid_password")
	ErrInvalidRole        = errors.New("invalid_role")
	ErrInvalidID          = errors.New("invalid_id")
	ErrEmailTaken         = errors.New("email_taken")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrNotFound           = errors.New("not_found")
)
