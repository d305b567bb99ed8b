package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"chat-client/internal/authapi"
	"chat-client/internal/domain"
	"chat-client/internal/repository"
)

const (
	msgLoginUnauthorized = "email or password incorrect"
	msgLoginRateLimited  = "too many login attempts. please try again later."
)

// AuthorizedOp es una llamada remota que necesita las credenciales de la
// sesion. Debe poder ejecutarse dos veces: la segunda con el token renovado.
type AuthorizedOp func(ctx context.Context, cred authapi.Credential) error

// SessionManager compone store, monitor, throttle y refresh en las
// operaciones publicas del cliente.
type SessionManager struct {
	api       authapi.Client
	store     repository.CredentialStore
	monitor   *SessionMonitor
	throttle  *VerificationThrottle
	refresher *RefreshCoordinator
	notifier  Notifier
	logger    *zap.Logger
	now       func() time.Time
	assetBase string
	mu        sync.Mutex
}

type Option func(*SessionManager)

// WithClock reemplaza el reloj de todos los componentes.
func WithClock(now func() time.Time) Option {
	return func(m *SessionManager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithAssetBaseURL define el prefijo para referencias de imagen relativas.
func WithAssetBaseURL(base string) Option {
	return func(m *SessionManager) {
		m.assetBase = strings.TrimRight(base, "/")
	}
}

func NewSessionManager(api authapi.Client, store repository.CredentialStore, notifier Notifier, logger *zap.Logger, opts ...Option) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NewBroadcaster()
	}
	m := &SessionManager{
		api:      api,
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.monitor = NewSessionMonitor(store, logger)
	m.monitor.now = m.now
	m.monitor.mu = &m.mu
	m.monitor.OnExpire(m.expireIdle)

	m.throttle = NewVerificationThrottle(store, logger)
	m.throttle.now = m.now

	m.refresher = NewRefreshCoordinator(api, store, logger)
	m.refresher.now = m.now
	m.refresher.mu = &m.mu
	return m
}

// Login autentica contra la API y reemplaza la sesion residente.
func (m *SessionManager) Login(ctx context.Context, req authapi.LoginRequest) (*domain.Session, error) {
	res, err := m.api.Login(ctx, req)
	if err != nil {
		classified := Classify(err)
		switch classified.Kind {
		case KindUnauthorized:
			classified = newClassified(KindUnauthorized, msgLoginUnauthorized, err)
		case KindRateLimited:
			classified = newClassified(KindRateLimited, msgLoginRateLimited, err)
		}
		m.logger.Warn("login failed", zap.String("kind", classified.Kind.String()), zap.Error(err))
		return nil, classified
	}
	return m.startSession(ctx, res)
}

// Register crea la cuenta y abre sesion igual que Login.
func (m *SessionManager) Register(ctx context.Context, req authapi.RegisterRequest) (*domain.Session, error) {
	res, err := m.api.Register(ctx, req)
	if err != nil {
		classified := Classify(err)
		m.logger.Warn("register failed", zap.String("kind", classified.Kind.String()), zap.Error(err))
		return nil, classified
	}
	return m.startSession(ctx, res)
}

func (m *SessionManager) startSession(ctx context.Context, res authapi.AuthResult) (*domain.Session, error) {
	if strings.TrimSpace(res.Token) == "" {
		return nil, newClassified(KindUnknownRemoteError, "", errors.New("auth response without token"))
	}
	session := domain.NewSession(res.User, res.Token, res.SessionID)
	session.LastActivity = m.now()
	if err := m.store.Write(ctx, session); err != nil {
		return nil, err
	}
	if err := m.throttle.reset(ctx); err != nil {
		m.logger.Warn("reset verification record failed", zap.Error(err))
	}

	fields := []zap.Field{zap.String("user_id", session.ID), zap.String("session_id", session.SessionID)}
	if exp, ok := authapi.TokenExpiry(session.Token); ok {
		fields = append(fields, zap.Time("token_expires_at", exp))
	}
	m.logger.Info("session started", fields...)

	m.notifier.Publish(EventAuthStateChanged)
	return &session, nil
}

// Logout avisa al servidor si puede y siempre limpia el estado local.
func (m *SessionManager) Logout(ctx context.Context) {
	session, err := m.store.Read(ctx)
	if err != nil {
		m.logger.Warn("read session before logout failed", zap.Error(err))
	}
	m.remoteLogout(ctx, session)
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Error("clear credential store failed", zap.Error(err))
	}
	m.logger.Info("session closed")
	m.notifier.Publish(EventAuthStateChanged)
}

// expireIdle corre una sola vez por sesion vencida; el monitor ya limpio el
// store.
func (m *SessionManager) expireIdle(ctx context.Context, expired *domain.Session) {
	m.remoteLogout(ctx, expired)
	m.logger.Info("session closed", zap.String("reason", "idle timeout"))
	m.notifier.Publish(EventAuthStateChanged)
}

func (m *SessionManager) remoteLogout(ctx context.Context, session *domain.Session) {
	if !session.Authenticated() {
		return
	}
	if err := m.api.Logout(ctx, credentialOf(session)); err != nil {
		m.logger.Warn("remote logout failed", zap.String("user_id", session.ID), zap.Error(err))
	}
}

// CurrentSession devuelve la sesion vigente y extiende su actividad.
func (m *SessionManager) CurrentSession(ctx context.Context) (*domain.Session, error) {
	return m.monitor.CurrentSession(ctx)
}

// AuthorizedRequest ejecuta op con las credenciales de la sesion. Ante un 401
// renueva el token una vez y reintenta una sola vez.
func (m *SessionManager) AuthorizedRequest(ctx context.Context, op AuthorizedOp) error {
	return m.authorized(ctx, op, nil)
}

// authorized es AuthorizedRequest con un manejo propio del 401 que llega
// despues de un refresh exitoso. Con onRejected nil la sesion se destruye.
func (m *SessionManager) authorized(ctx context.Context, op AuthorizedOp, onRejected func(*ClassifiedError) error) error {
	session, err := m.monitor.CurrentSession(ctx)
	if err != nil {
		return err
	}
	if session == nil {
		return newClassified(KindUnauthenticated, "", nil)
	}

	cred := credentialOf(session)
	err = op(ctx, cred)
	if err == nil {
		return nil
	}
	classified := Classify(err)
	if classified.Kind != KindUnauthorized {
		return classified
	}

	if _, err := m.refresher.RefreshFrom(ctx, cred.Token); err != nil {
		return m.refreshFailed(ctx, err)
	}

	fresh, err := m.store.Read(ctx)
	if err != nil {
		return err
	}
	if !fresh.Authenticated() {
		return newClassified(KindUnauthenticated, "", nil)
	}

	err = op(ctx, credentialOf(fresh))
	if err == nil {
		return nil
	}
	classified = Classify(err)
	if classified.Kind != KindUnauthorized {
		return classified
	}
	if onRejected != nil {
		return onRejected(classified)
	}
	m.endSession(ctx, "unauthorized after refresh")
	return newClassified(KindSessionExpired, "", transportCause(classified))
}

// UpdateProfile modifica el perfil remoto y mezcla la respuesta en la sesion.
func (m *SessionManager) UpdateProfile(ctx context.Context, update authapi.ProfileUpdate) (*domain.Session, error) {
	var user domain.User
	err := m.AuthorizedRequest(ctx, func(ctx context.Context, cred authapi.Credential) error {
		u, err := m.api.UpdateProfile(ctx, cred, update)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m.mergeProfile(ctx, user)
}

// ChangePassword cambia la contraseña. Una contraseña actual incorrecta es
// KindInvalidCredentialChange, no dispara refresh y no cierra la sesion.
//
// Sin codigo del servidor, un 401 que persiste con un token recien renovado
// solo puede venir de la contraseña actual, asi que tambien se reporta como
// KindInvalidCredentialChange.
func (m *SessionManager) ChangePassword(ctx context.Context, current, next string) error {
	change := authapi.PasswordChange{CurrentPassword: current, NewPassword: next}
	op := func(ctx context.Context, cred authapi.Credential) error {
		err := m.api.ChangePassword(ctx, cred, change)
		var statusErr *authapi.StatusError
		if errors.As(err, &statusErr) && statusErr.Code == authapi.CodeInvalidCurrentPassword {
			return newClassified(KindInvalidCredentialChange, "", err)
		}
		return err
	}
	return m.authorized(ctx, op, func(rejected *ClassifiedError) error {
		m.logger.Info("password change rejected with a fresh token", zap.Error(rejected.Err))
		return newClassified(KindInvalidCredentialChange, "", transportCause(rejected))
	})
}

// RemoveProfileImage borra la imagen remota y limpia la referencia local.
func (m *SessionManager) RemoveProfileImage(ctx context.Context) (*domain.Session, error) {
	err := m.AuthorizedRequest(ctx, func(ctx context.Context, cred authapi.Credential) error {
		return m.api.RemoveProfileImage(ctx, cred)
	})
	if err != nil {
		return nil, err
	}
	empty := ""
	return m.mergeProfile(ctx, domain.User{ProfileImage: &empty})
}

// VerifyToken valida el token contra el servidor como maximo una vez por
// VerificationInterval.
func (m *SessionManager) VerifyToken(ctx context.Context) error {
	session, err := m.monitor.CurrentSession(ctx)
	if err != nil {
		return err
	}
	if session == nil || session.SessionID == "" {
		return newClassified(KindUnauthenticated, "", nil)
	}
	if !m.throttle.ShouldVerify(ctx) {
		return nil
	}

	err = m.api.VerifyToken(ctx, credentialOf(session))
	if err == nil {
		m.markVerified(ctx)
		return nil
	}
	classified := Classify(err)
	if classified.Kind != KindUnauthorized {
		return classified
	}

	if _, err := m.refresher.RefreshFrom(ctx, session.Token); err != nil {
		return m.refreshFailed(ctx, err)
	}
	m.markVerified(ctx)
	return nil
}

// CheckServerConnection consulta /health; los reintentos son del transporte.
func (m *SessionManager) CheckServerConnection(ctx context.Context) (bool, error) {
	status, err := m.api.Health(ctx)
	if err != nil {
		m.logger.Warn("server connection check failed", zap.Error(err))
		return false, Classify(err)
	}
	return status == "ok", nil
}

// ProfileImageURL resuelve la referencia de imagen de la sesion.
func (m *SessionManager) ProfileImageURL(ref string) string {
	return ProfileImageURL(m.assetBase, ref)
}

// ProfileImageURL deja las URLs absolutas como estan y prefija las relativas.
func ProfileImageURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "http") {
		return ref
	}
	return strings.TrimRight(base, "/") + ref
}

func (m *SessionManager) mergeProfile(ctx context.Context, user domain.User) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, err := m.store.Read(ctx)
	if err != nil {
		return nil, err
	}
	if !session.Authenticated() {
		return nil, newClassified(KindUnauthenticated, "", nil)
	}
	session.ApplyUser(user)
	if err := m.store.Write(ctx, *session); err != nil {
		return nil, err
	}
	m.notifier.Publish(EventProfileUpdated)
	return session, nil
}

func (m *SessionManager) markVerified(ctx context.Context) {
	if err := m.throttle.MarkVerified(ctx); err != nil {
		m.logger.Warn("persist verification record failed", zap.Error(err))
	}
}

// refreshFailed decide que hacer cuando el refresh no se pudo completar. Sin
// respuesta del servidor la sesion se conserva; un rechazo la destruye.
func (m *SessionManager) refreshFailed(ctx context.Context, err error) error {
	var classified *ClassifiedError
	if !errors.As(err, &classified) || classified.Kind != KindRefreshFailed {
		// Este llamador dejo de esperar; no hay resultado sobre la sesion.
		return Classify(err)
	}
	if errors.Is(classified.Err, ErrNetworkUnreachable) {
		return Classify(classified.Err)
	}
	m.endSession(ctx, "refresh rejected")
	return newClassified(KindSessionExpired, "", transportCause(classified))
}

// transportCause quita las capas clasificadas para que un error derivado,
// como SessionExpired, no coincida con el tipo de su causa en errors.Is.
func transportCause(err error) error {
	for {
		classified, ok := err.(*ClassifiedError)
		if !ok {
			return err
		}
		if classified.Err == nil {
			return nil
		}
		err = classified.Err
	}
}

func (m *SessionManager) endSession(ctx context.Context, reason string) {
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Error("clear credential store failed", zap.Error(err))
	}
	m.logger.Info("session expired", zap.String("reason", reason))
	m.notifier.Publish(EventAuthStateChanged)
}

func credentialOf(s *domain.Session) authapi.Credential {
	return authapi.Credential{Token: s.Token, SessionID: s.SessionID}
}
