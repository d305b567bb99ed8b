package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"chat-client/internal/authapi"
	"chat-client/internal/domain"
	"chat-client/internal/repository"
)

const refreshKey = "refresh"

// RefreshCoordinator renueva el token garantizando una sola llamada remota en
// vuelo; los llamadores concurrentes comparten su resultado.
type RefreshCoordinator struct {
	api    authapi.Client
	store  repository.CredentialStore
	group  singleflight.Group
	now    func() time.Time
	logger *zap.Logger
	mu     *sync.Mutex
}

func NewRefreshCoordinator(api authapi.Client, store repository.CredentialStore, logger *zap.Logger) *RefreshCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefreshCoordinator{
		api:    api,
		store:  store,
		now:    time.Now,
		logger: logger,
		mu:     &sync.Mutex{},
	}
}

// Refresh devuelve el token nuevo o un error KindRefreshFailed. Si ctx se
// cancela, este llamador deja de esperar pero la llamada compartida sigue.
func (r *RefreshCoordinator) Refresh(ctx context.Context) (string, error) {
	return r.RefreshFrom(ctx, "")
}

// RefreshFrom renueva el token que el servidor rechazo. Si la sesion ya tiene
// otro token, otro llamador lo renovo despues de que stale saliera, y se
// devuelve ese token sin llamar al servidor. stale vacio fuerza la renovacion.
func (r *RefreshCoordinator) RefreshFrom(ctx context.Context, stale string) (string, error) {
	shared := context.WithoutCancel(ctx)
	ch := r.group.DoChan(refreshKey, func() (interface{}, error) {
		return r.refresh(shared, stale)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (r *RefreshCoordinator) refresh(ctx context.Context, stale string) (string, error) {
	session, err := r.store.Read(ctx)
	if err != nil {
		return "", newClassified(KindRefreshFailed, "", err)
	}
	if !session.Authenticated() {
		return "", newClassified(KindRefreshFailed, "", ErrUnauthenticated)
	}
	if stale != "" && session.Token != stale {
		r.logger.Debug("token already rotated, skipping refresh", zap.String("user_id", session.ID))
		return session.Token, nil
	}

	token, err := r.api.RefreshToken(ctx, authapi.Credential{Token: session.Token, SessionID: session.SessionID})
	if err != nil {
		cause := Classify(err)
		r.logger.Warn("token refresh rejected",
			zap.String("user_id", session.ID),
			zap.String("kind", cause.Kind.String()),
			zap.Error(err),
		)
		return "", newClassified(KindRefreshFailed, "", cause)
	}

	current, err := r.storeToken(ctx, token)
	if err != nil {
		return "", newClassified(KindRefreshFailed, "", err)
	}

	fields := []zap.Field{zap.String("user_id", current.ID)}
	if exp, ok := authapi.TokenExpiry(token); ok {
		fields = append(fields, zap.Time("token_expires_at", exp))
	}
	r.logger.Info("token refreshed", fields...)
	return token, nil
}

// storeToken relee la sesion, que pudo cambiar con la llamada en vuelo, y
// guarda el token nuevo.
func (r *RefreshCoordinator) storeToken(ctx context.Context, token string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.store.Read(ctx)
	if err != nil {
		return nil, err
	}
	if !current.Authenticated() {
		return nil, ErrUnauthenticated
	}
	current.Token = token
	current.Touch(r.now())
	if err := r.store.Write(ctx, *current); err != nil {
		return nil, err
	}
	return current, nil
}
