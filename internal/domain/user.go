package domain

// User es el perfil tal como lo devuelve la API remota.
// ProfileImage es puntero para distinguir "sin cambios" de "imagen borrada".
type User struct {
	ID           string  `json:"_id"`
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	ProfileImage *string `json:"profileImage,omitempty"`
}

// NewSession construye la sesion resultante de un login o registro.
func NewSession(u User, token, sessionID string) Session {
	s := Session{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Token:     token,
		SessionID: sessionID,
	}
	if u.ProfileImage != nil {
		s.ProfileImage = *u.ProfileImage
	}
	return s
}
