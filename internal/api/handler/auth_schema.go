package handler

import "github.com/eventplanner/planner/internal/core/domain"

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// --- Request / Response types ---

type signInRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Redirect string `json:"redirect"`
}

type signUpRequest struct {
	Email       string `json:"email"        validate:"required,email"`
	Password    string `json:"password"     validate:"required"`
	Role        string `json:"role"         validate:"omitempty,role"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	CompanyName string `json:"company_name" validate:"required_if=Role vendor"`
	VendorType  string `json:"vendor_type"`
}

type resetPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type recoverRequest struct {
	Token string `json:"token" validate:"required"`
}

type updatePasswordRequest struct {
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	Success  bool        `json:"success"`
	Role     domain.Role `json:"role,omitempty"`
	Message  string      `json:"message,omitempty"`
	Token    string      `json:"token,omitempty"`
	Redirect string      `json:"redirect,omitempty"`
}

type sessionResponse struct {
	Authenticated bool             `json:"authenticated"`
	User          *domain.Identity `json:"user,omitempty"`
	Role          domain.Role      `json:"role,omitempty"`
	Landing       string           `json:"landing,omitempty"`
}

type tokenResponse struct {
	Token string `json:"token"`
}
