package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chat-client/internal/domain"
)

const (
	headerAuthToken = "x-auth-token"
	headerSessionID = "x-session-id"
	headerRequestID = "x-request-id"
)

// Client define las llamadas remotas que consume el gestor de sesion.
type Client interface {
	Login(ctx context.Context, req LoginRequest) (AuthResult, error)
	Register(ctx context.Context, req RegisterRequest) (AuthResult, error)
	Logout(ctx context.Context, cred Credential) error
	RefreshToken(ctx context.Context, cred Credential) (string, error)
	VerifyToken(ctx context.Context, cred Credential) error
	UpdateProfile(ctx context.Context, cred Credential, update ProfileUpdate) (domain.User, error)
	ChangePassword(ctx context.Context, cred Credential, change PasswordChange) error
	RemoveProfileImage(ctx context.Context, cred Credential) error
	Health(ctx context.Context) (string, error)
}

// HealthPolicy controla los reintentos a nivel transporte del health check.
type HealthPolicy struct {
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
}

// DefaultHealthPolicy: 5s por intento, 2 reintentos, 1s entre intentos.
var DefaultHealthPolicy = HealthPolicy{
	Timeout:    5 * time.Second,
	Retries:    2,
	RetryDelay: time.Second,
}

// HTTPClient implementa Client contra la API REST del chat.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
	health  HealthPolicy
}

// NewHTTPClient construye un cliente apuntando a baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if baseURL == "" {
		baseURL = "http://localhost:5000"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		health:  DefaultHealthPolicy,
	}
}

// WithHealthPolicy reemplaza la politica del health check.
func (c *HTTPClient) WithHealthPolicy(p HealthPolicy) *HTTPClient {
	if p.Timeout <= 0 {
		p.Timeout = DefaultHealthPolicy.Timeout
	}
	if p.Retries < 0 {
		p.Retries = 0
	}
	c.health = p
	return c
}

func (c *HTTPClient) Login(ctx context.Context, req LoginRequest) (AuthResult, error) {
	return c.authenticate(ctx, "/auth/login", req)
}

func (c *HTTPClient) Register(ctx context.Context, req RegisterRequest) (AuthResult, error) {
	return c.authenticate(ctx, "/auth/register", req)
}

func (c *HTTPClient) authenticate(ctx context.Context, path string, body any) (AuthResult, error) {
	var resp authResponse
	if err := c.do(ctx, http.MethodPost, path, nil, body, &resp); err != nil {
		return AuthResult{}, err
	}
	if resp.Token == "" {
		return AuthResult{}, &StatusError{StatusCode: http.StatusOK, Message: resp.Message, Err: errors.New("missing token")}
	}
	return AuthResult{
		Token:     resp.Token,
		SessionID: resp.SessionID,
		User:      resp.User,
	}, nil
}

func (c *HTTPClient) Logout(ctx context.Context, cred Credential) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", &cred, nil, nil)
}

func (c *HTTPClient) RefreshToken(ctx context.Context, cred Credential) (string, error) {
	var resp refreshResponse
	if err := c.do(ctx, http.MethodPost, "/auth/refresh-token", &cred, nil, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", &StatusError{StatusCode: http.StatusOK, Message: resp.Message, Err: errors.New("missing token")}
	}
	return resp.Token, nil
}

func (c *HTTPClient) VerifyToken(ctx context.Context, cred Credential) error {
	var resp envelope
	return c.do(ctx, http.MethodPost, "/auth/verify-token", &cred, nil, &resp)
}

func (c *HTTPClient) UpdateProfile(ctx context.Context, cred Credential, update ProfileUpdate) (domain.User, error) {
	var resp profileResponse
	if err := c.do(ctx, http.MethodPut, "/users/profile", &cred, update, &resp); err != nil {
		return domain.User{}, err
	}
	return resp.User, nil
}

func (c *HTTPClient) ChangePassword(ctx context.Context, cred Credential, change PasswordChange) error {
	var resp envelope
	return c.do(ctx, http.MethodPut, "/users/profile", &cred, change, &resp)
}

func (c *HTTPClient) RemoveProfileImage(ctx context.Context, cred Credential) error {
	var resp envelope
	return c.do(ctx, http.MethodDelete, "/users/profile-image", &cred, nil, &resp)
}

// Health consulta GET /health con timeout corto y reintentos acotados.
// Solo se reintenta ante falta de respuesta o errores 5xx.
func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.health.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", &NetworkError{Op: "GET /health", Err: ctx.Err()}
			case <-time.After(c.health.RetryDelay):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.health.Timeout)
		var resp healthResponse
		err := c.do(attemptCtx, http.MethodGet, "/health", nil, nil, &resp)
		cancel()
		if err == nil {
			return resp.Status, nil
		}
		lastErr = err

		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode < http.StatusInternalServerError {
			break
		}
		c.logger.Warn("health check attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return "", lastErr
}

type failureReporter interface {
	failure() (failed bool, message, code string)
}

func (e envelope) failure() (bool, string, string) {
	return e.Success != nil && !*e.Success, e.Message, e.Code
}

func (c *HTTPClient) do(ctx context.Context, method, path string, cred *Credential, body, out any) error {
	op := method + " " + path

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerRequestID, uuid.NewString())
	if cred != nil {
		req.Header.Set(headerAuthToken, cred.Token)
		req.Header.Set(headerSessionID, cred.SessionID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var env envelope
		_ = json.Unmarshal(respBody, &env)
		c.logger.Debug("auth api error response",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("message", env.Message),
		)
		return &StatusError{StatusCode: resp.StatusCode, Message: env.Message, Code: env.Code}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &StatusError{StatusCode: resp.StatusCode, Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	if fr, ok := out.(failureReporter); ok {
		if failed, msg, code := fr.failure(); failed {
			return &StatusError{StatusCode: resp.StatusCode, Message: msg, Code: code}
		}
	}
	return nil
}
