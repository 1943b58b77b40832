package domain

import "errors"

// Credential errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotConfirmed  = errors.New("email not confirmed")
	ErrRateLimited        = errors.New("too many attempts")
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrNoSession          = errors.New("no active session")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// Sign-up validation errors.
var (
	ErrWeakPassword    = errors.New("password too short")
	ErrSignUpThrottled = errors.New("sign-up attempted too soon")
	ErrInvalidRole     = errors.New("invalid role")
	ErrInvalidEmail    = errors.New("invalid email")
)

// Repository errors.
var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrVendorNotFound  = errors.New("vendor record not found")
	// ErrSourceUnavailable marks a backing table that is missing or
	// misconfigured, as opposed to a row that does not exist.
	ErrSourceUnavailable = errors.New("role source unavailable")
)

var ErrForbidden = errors.New("access forbidden")
