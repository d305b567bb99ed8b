package repository

import (
	"context"
	"sync"
	"time"

	"chat-client/internal/domain"
)

// CredentialStore guarda la unica sesion residente del cliente y la marca de
// la ultima verificacion remota del token.
//
// Read devuelve nil sin error cuando no hay sesion; un registro corrupto se
// borra y tambien se reporta como ausente. Clear elimina ambos registros.
type CredentialStore interface {
	Read(ctx context.Context) (*domain.Session, error)
	Write(ctx context.Context, session domain.Session) error
	Clear(ctx context.Context) error
	VerifiedAt(ctx context.Context) (time.Time, bool, error)
	MarkVerifiedAt(ctx context.Context, at time.Time) error
}

// MemoryCredentialStore implementa CredentialStore en memoria del proceso.
type MemoryCredentialStore struct {
	mu         sync.RWMutex
	session    *domain.Session
	verifiedAt time.Time
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{}
}

func (s *MemoryCredentialStore) Read(_ context.Context) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil, nil
	}
	cp := *s.session
	return &cp, nil
}

func (s *MemoryCredentialStore) Write(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = &session
	return nil
}

func (s *MemoryCredentialStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	s.verifiedAt = time.Time{}
	return nil
}

func (s *MemoryCredentialStore) VerifiedAt(_ context.Context) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.verifiedAt, !s.verifiedAt.IsZero(), nil
}

func (s *MemoryCredentialStore) MarkVerifiedAt(_ context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifiedAt = at
	return nil
}
