package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"chat-client/internal/repository"
)

// VerificationInterval es el tiempo minimo entre verificaciones remotas.
const VerificationInterval = 5 * time.Minute

// VerificationThrottle limita las llamadas a /auth/verify-token.
type VerificationThrottle struct {
	store    repository.CredentialStore
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

func NewVerificationThrottle(store repository.CredentialStore, logger *zap.Logger) *VerificationThrottle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VerificationThrottle{
		store:    store,
		interval: VerificationInterval,
		now:      time.Now,
		logger:   logger,
	}
}

// ShouldVerify es false si la ultima verificacion fue hace menos del intervalo.
// Si el registro no se puede leer se verifica igual.
func (t *VerificationThrottle) ShouldVerify(ctx context.Context) bool {
	at, ok, err := t.store.VerifiedAt(ctx)
	if err != nil {
		t.logger.Warn("read verification record failed", zap.Error(err))
		return true
	}
	if !ok || at.IsZero() {
		return true
	}
	return t.now().Sub(at) >= t.interval
}

func (t *VerificationThrottle) MarkVerified(ctx context.Context) error {
	return t.store.MarkVerifiedAt(ctx, t.now())
}

// reset olvida la ultima verificacion; se usa al iniciar una sesion nueva.
func (t *VerificationThrottle) reset(ctx context.Context) error {
	return t.store.MarkVerifiedAt(ctx, time.Time{})
}
