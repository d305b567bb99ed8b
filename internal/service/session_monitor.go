package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"chat-client/internal/domain"
	"chat-client/internal/repository"
)

// SessionIdleTimeout es la inactividad maxima antes de cerrar la sesion.
const SessionIdleTimeout = 2 * time.Hour

// SessionMonitor calcula la vigencia de la sesion. Cada consulta exitosa
// extiende la ventana de inactividad.
type SessionMonitor struct {
	store       repository.CredentialStore
	idleTimeout time.Duration
	now         func() time.Time
	logger      *zap.Logger
	onExpire    func(ctx context.Context, expired *domain.Session)

	// mu serializa leer-modificar-escribir sobre el store. El gestor lo
	// comparte con el RefreshCoordinator.
	mu *sync.Mutex
}

func NewSessionMonitor(store repository.CredentialStore, logger *zap.Logger) *SessionMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionMonitor{
		store:       store,
		idleTimeout: SessionIdleTimeout,
		now:         time.Now,
		logger:      logger,
		mu:          &sync.Mutex{},
	}
}

// OnExpire registra la accion a ejecutar cuando vence la inactividad. El
// store ya esta limpio cuando corre; recibe la sesion vencida y se ejecuta
// una sola vez por sesion.
func (m *SessionMonitor) OnExpire(fn func(ctx context.Context, expired *domain.Session)) {
	m.onExpire = fn
}

// CurrentSession devuelve la sesion vigente o nil.
func (m *SessionMonitor) CurrentSession(ctx context.Context) (*domain.Session, error) {
	session, expired, err := m.touch(ctx)
	if err != nil || !expired {
		return session, err
	}

	m.logger.Info("session idle timeout",
		zap.String("user_id", session.ID),
		zap.Time("last_activity", session.LastActivity),
	)
	if m.onExpire != nil {
		m.onExpire(ctx, session)
	}
	return nil, nil
}

// touch extiende la actividad de la sesion vigente. Si vencio la borra del
// store bajo el lock y la devuelve con expired en true; solo un llamador la
// ve vencida, el resto ya encuentra el store vacio.
func (m *SessionMonitor) touch(ctx context.Context) (*domain.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, err := m.store.Read(ctx)
	if err != nil {
		return nil, false, err
	}
	if !session.Authenticated() {
		return nil, false, nil
	}

	now := m.now()
	if now.Sub(session.LastActivity) > m.idleTimeout {
		if err := m.store.Clear(ctx); err != nil {
			return nil, false, err
		}
		return session, true, nil
	}

	session.Touch(now)
	if err := m.store.Write(ctx, *session); err != nil {
		return nil, false, err
	}
	return session, false, nil
}
