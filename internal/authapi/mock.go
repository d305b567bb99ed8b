package authapi

import (
	"context"
	"sync"

	"chat-client/internal/domain"
)

// MockClient permite tests sin llamar a la API real. Cada funcion nil
// responde con valores cero y sin error.
type MockClient struct {
	LoginFunc              func(ctx context.Context, req LoginRequest) (AuthResult, error)
	RegisterFunc           func(ctx context.Context, req RegisterRequest) (AuthResult, error)
	LogoutFunc             func(ctx context.Context, cred Credential) error
	RefreshTokenFunc       func(ctx context.Context, cred Credential) (string, error)
	VerifyTokenFunc        func(ctx context.Context, cred Credential) error
	UpdateProfileFunc      func(ctx context.Context, cred Credential, update ProfileUpdate) (domain.User, error)
	ChangePasswordFunc     func(ctx context.Context, cred Credential, change PasswordChange) error
	RemoveProfileImageFunc func(ctx context.Context, cred Credential) error
	HealthFunc             func(ctx context.Context) (string, error)

	mu    sync.Mutex
	calls map[string]int
}

// Calls devuelve cuantas veces se invoco el metodo indicado.
func (m *MockClient) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *MockClient) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[method]++
}

func (m *MockClient) Login(ctx context.Context, req LoginRequest) (AuthResult, error) {
	m.record("Login")
	if m.LoginFunc == nil {
		return AuthResult{}, nil
	}
	return m.LoginFunc(ctx, req)
}

func (m *MockClient) Register(ctx context.Context, req RegisterRequest) (AuthResult, error) {
	m.record("Register")
	if m.RegisterFunc == nil {
		return AuthResult{}, nil
	}
	return m.RegisterFunc(ctx, req)
}

func (m *MockClient) Logout(ctx context.Context, cred Credential) error {
	m.record("Logout")
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, cred)
}

func (m *MockClient) RefreshToken(ctx context.Context, cred Credential) (string, error) {
	m.record("RefreshToken")
	if m.RefreshTokenFunc == nil {
		return "", nil
	}
	return m.RefreshTokenFunc(ctx, cred)
}

func (m *MockClient) VerifyToken(ctx context.Context, cred Credential) error {
	m.record("VerifyToken")
	if m.VerifyTokenFunc == nil {
		return nil
	}
	return m.VerifyTokenFunc(ctx, cred)
}

func (m *MockClient) UpdateProfile(ctx context.Context, cred Credential, update ProfileUpdate) (domain.User, error) {
	m.record("UpdateProfile")
	if m.UpdateProfileFunc == nil {
		return domain.User{}, nil
	}
	return m.UpdateProfileFunc(ctx, cred, update)
}

func (m *MockClient) ChangePassword(ctx context.Context, cred Credential, change PasswordChange) error {
	m.record("ChangePassword")
	if m.ChangePasswordFunc == nil {
		return nil
	}
	return m.ChangePasswordFunc(ctx, cred, change)
}

func (m *MockClient) RemoveProfileImage(ctx context.Context, cred Credential) error {
	m.record("RemoveProfileImage")
	if m.RemoveProfileImageFunc == nil {
		return nil
	}
	return m.RemoveProfileImageFunc(ctx, cred)
}

func (m *MockClient) Health(ctx context.Context) (string, error) {
	m.record("Health")
	if m.HealthFunc == nil {
		return "ok", nil
	}
	return m.HealthFunc(ctx)
}
