package domain

import (
	"strings"
	"time"
)

// Session es el registro local del usuario autenticado en este cliente.
type Session struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	ProfileImage string    `json:"profileImage,omitempty"`
	Token        string    `json:"token"`
	SessionID    string    `json:"sessionId"`
	LastActivity time.Time `json:"lastActivity"`
}

// Authenticated indica si la sesion puede autorizar llamadas remotas.
func (s *Session) Authenticated() bool {
	return s != nil && strings.TrimSpace(s.Token) != ""
}

// ApplyUser mezcla los campos de perfil devueltos por el servidor.
// Token y SessionID nunca se tocan.
func (s *Session) ApplyUser(u User) {
	if u.ID != "" {
		s.ID = u.ID
	}
	if u.Name != "" {
		s.Name = u.Name
	}
	if u.Email != "" {
		s.Email = u.Email
	}
	if u.ProfileImage != nil {
		s.ProfileImage = *u.ProfileImage
	}
}

// Touch marca actividad sin retroceder el reloj de la sesion.
func (s *Session) Touch(now time.Time) {
	if now.After(s.LastActivity) {
		s.LastActivity = now
	}
}
