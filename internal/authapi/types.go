package authapi

import "chat-client/internal/domain"

// Credential son los datos que viajan en x-auth-token / x-session-id.
type Credential struct {
	Token     string
	SessionID string
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult es la respuesta de login y registro.
type AuthResult struct {
	Token     string
	SessionID string
	User      domain.User
}

// ProfileUpdate lleva solo los campos a modificar.
type ProfileUpdate struct {
	Name         string  `json:"name,omitempty"`
	Email        string  `json:"email,omitempty"`
	ProfileImage *string `json:"profileImage,omitempty"`
}

type PasswordChange struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type envelope struct {
	Success *bool  `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

type authResponse struct {
	envelope
	Token     string      `json:"token"`
	SessionID string      `json:"sessionId"`
	User      domain.User `json:"user"`
}

type refreshResponse struct {
	envelope
	Token string `json:"token"`
}

type profileResponse struct {
	envelope
	User domain.User `json:"user"`
}

type healthResponse struct {
	Status string `json:"status"`
}
