package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-client/internal/authapi"
	"chat-client/internal/repository"
)

// fakeAuthServer emula la API remota: un token valido por vez y un refresh
// que rota el token.
type fakeAuthServer struct {
	mu           sync.Mutex
	validToken   string
	rotated      string
	refreshCalls int
	logoutCalls  int
	name         string
}

func (s *fakeAuthServer) routes(r *gin.Engine) {
	authorized := func(c *gin.Context) bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c.GetHeader("x-auth-token") != s.validToken || c.GetHeader("x-session-id") != "sess-1" {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "token expired"})
			return false
		}
		return true
	}

	r.POST("/auth/login", func(c *gin.Context) {
		var req authapi.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Password != "secret" {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid credentials"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"token":     "tok-1",
			"sessionId": "sess-1",
			"user":      gin.H{"_id": "u1", "name": s.name, "email": req.Email},
		})
	})
	r.POST("/auth/refresh-token", func(c *gin.Context) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.refreshCalls++
		if c.GetHeader("x-session-id") != "sess-1" {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false})
			return
		}
		s.validToken = s.rotated
		c.JSON(http.StatusOK, gin.H{"success": true, "token": s.rotated})
	})
	r.POST("/auth/verify-token", func(c *gin.Context) {
		if authorized(c) {
			c.JSON(http.StatusOK, gin.H{"success": true})
		}
	})
	r.POST("/auth/logout", func(c *gin.Context) {
		s.mu.Lock()
		s.logoutCalls++
		s.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
	r.PUT("/users/profile", func(c *gin.Context) {
		if !authorized(c) {
			return
		}
		var update authapi.ProfileUpdate
		if err := c.ShouldBindJSON(&update); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "bad body"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "user": gin.H{"_id": "u1", "name": update.Name}})
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func (s *fakeAuthServer) counts() (refresh, logout int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls, s.logoutCalls
}

func newHTTPManager(t *testing.T, fake *fakeAuthServer) (*SessionManager, *repository.MemoryCredentialStore, *fakeClock) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	fake.routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	store := repository.NewMemoryCredentialStore()
	clock := newFakeClock()
	api := authapi.NewHTTPClient(srv.URL, 2*time.Second, zap.NewNop())
	mgr := NewSessionManager(api, store, NewBroadcaster(), zap.NewNop(), WithClock(clock.Now))
	return mgr, store, clock
}

func TestSessionManagerHTTP_ExpiredTokenRefreshedTransparently(t *testing.T) {
	fake := &fakeAuthServer{validToken: "tok-1", rotated: "tok-2", name: "Ana"}
	mgr, store, _ := newHTTPManager(t, fake)
	ctx := context.Background()

	if _, err := mgr.Login(ctx, authapi.LoginRequest{Email: "ana@example.com", Password: "secret"}); err != nil {
		t.Fatalf("login: %v", err)
	}

	// El servidor invalida el token emitido en el login.
	fake.mu.Lock()
	fake.validToken = "expired"
	fake.rotated = "tok-2"
	fake.mu.Unlock()

	s, err := mgr.UpdateProfile(ctx, authapi.ProfileUpdate{Name: "Ana Maria"})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if s.Name != "Ana Maria" || s.Token != "tok-2" {
		t.Fatalf("unexpected session %+v", s)
	}
	if stored := storedSession(t, store); stored.Token != "tok-2" {
		t.Fatalf("expected rotated token persisted, got %q", stored.Token)
	}
	if refresh, _ := fake.counts(); refresh != 1 {
		t.Fatalf("expected one refresh, got %d", refresh)
	}
}

func TestSessionManagerHTTP_WrongPassword(t *testing.T) {
	fake := &fakeAuthServer{validToken: "tok-1", rotated: "tok-2", name: "Ana"}
	mgr, store, _ := newHTTPManager(t, fake)

	_, err := mgr.Login(context.Background(), authapi.LoginRequest{Email: "ana@example.com", Password: "nope"})
	var ce *ClassifiedError
	if !errors.As(err, &ce) || ce.Kind != KindUnauthorized || ce.Message != msgLoginUnauthorized {
		t.Fatalf("expected unauthorized login error, got %v", err)
	}
	if storedSession(t, store) != nil {
		t.Fatalf("expected no session")
	}
}

func TestSessionManagerHTTP_IdleTimeoutCallsRemoteLogout(t *testing.T) {
	fake := &fakeAuthServer{validToken: "tok-1", rotated: "tok-2", name: "Ana"}
	mgr, _, clock := newHTTPManager(t, fake)
	ctx := context.Background()

	if _, err := mgr.Login(ctx, authapi.LoginRequest{Email: "ana@example.com", Password: "secret"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := mgr.VerifyToken(ctx); err != nil {
		t.Fatalf("verify: %v", err)
	}

	clock.Advance(3 * time.Hour)
	if s, err := mgr.CurrentSession(ctx); err != nil || s != nil {
		t.Fatalf("expected expired session, got %v,%v", s, err)
	}
	if err := mgr.VerifyToken(ctx); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected Unauthenticated after timeout, got %v", err)
	}
	if _, logout := fake.counts(); logout != 1 {
		t.Fatalf("expected one remote logout, got %d", logout)
	}
}

func TestSessionManagerHTTP_CheckServerConnection(t *testing.T) {
	fake := &fakeAuthServer{name: "Ana"}
	mgr, _, _ := newHTTPManager(t, fake)
	ok, err := mgr.CheckServerConnection(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected reachable server, got %v,%v", ok, err)
	}
}
