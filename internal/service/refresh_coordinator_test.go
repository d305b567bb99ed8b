package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"chat-client/internal/authapi"
	"chat-client/internal/repository"
)

func newTestCoordinator(api authapi.Client, store repository.CredentialStore, clock *fakeClock) *RefreshCoordinator {
	r := NewRefreshCoordinator(api, store, zap.NewNop())
	r.now = clock.Now
	return r
}

func runConcurrentRefresh(r *RefreshCoordinator, n int) ([]string, []error) {
	tokens := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = r.Refresh(context.Background())
		}(i)
	}
	wg.Wait()
	return tokens, errs
}

func TestRefreshCoordinator_ConcurrentCallersShareOneCall(t *testing.T) {
	clock := newFakeClock()
	store := repository.NewMemoryCredentialStore()
	seed := seedSession(t, store, clock.Now())

	var calls int32
	release := make(chan struct{})
	api := &authapi.MockClient{
		RefreshTokenFunc: func(ctx context.Context, cred authapi.Credential) (string, error) {
			atomic.AddInt32(&calls, 1)
			if cred.Token != seed.Token || cred.SessionID != seed.SessionID {
				t.Errorf("unexpected credential %+v", cred)
			}
			<-release
			return "tok-2", nil
		},
	}
	r := newTestCoordinator(api, store, clock)
	clock.Advance(time.Minute)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()
	tokens, errs := runConcurrentRefresh(r, 8)

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected exactly one remote refresh, got %d", n)
	}
	for i := range tokens {
		if errs[i] != nil || tokens[i] != "tok-2" {
			t.Fatalf("caller %d observed %q,%v", i, tokens[i], errs[i])
		}
	}

	s := storedSession(t, store)
	if s.Token != "tok-2" {
		t.Fatalf("expected token merged, got %q", s.Token)
	}
	if s.SessionID != seed.SessionID || s.Email != seed.Email || s.ProfileImage != seed.ProfileImage {
		t.Fatalf("refresh must preserve other fields, got %+v", s)
	}
	if !s.LastActivity.Equal(clock.Now()) {
		t.Fatalf("expected activity stamped, got %v", s.LastActivity)
	}
}

func TestRefreshCoordinator_FailureFansOutWithoutMutation(t *testing.T) {
	clock := newFakeClock()
	store := repository.NewMemoryCredentialStore()
	seed := seedSession(t, store, clock.Now())

	var calls int32
	release := make(chan struct{})
	api := &authapi.MockClient{
		RefreshTokenFunc: func(ctx context.Context, cred authapi.Credential) (string, error) {
			atomic.AddInt32(&calls, 1)
			<-release
			return "", &authapi.StatusError{StatusCode: http.StatusUnauthorized, Message: "refresh rejected"}
		},
	}
	r := newTestCoordinator(api, store, clock)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()
	_, errs := runConcurrentRefresh(r, 5)

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected exactly one remote refresh, got %d", n)
	}
	for i, err := range errs {
		if !errors.Is(err, ErrRefreshFailed) {
			t.Fatalf("caller %d expected RefreshFailed, got %v", i, err)
		}
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("caller %d expected unauthorized cause, got %v", i, err)
		}
	}
	if s := storedSession(t, store); s == nil || s.Token != seed.Token {
		t.Fatalf("failed refresh must not mutate the session, got %+v", s)
	}
}

func TestRefreshCoordinator_NoSession(t *testing.T) {
	clock := newFakeClock()
	api := &authapi.MockClient{}
	r := newTestCoordinator(api, repository.NewMemoryCredentialStore(), clock)

	_, err := r.Refresh(context.Background())
	if !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("expected RefreshFailed, got %v", err)
	}
	if api.Calls("RefreshToken") != 0 {
		t.Fatalf("expected no remote call without session")
	}
}

func TestRefreshCoordinator_SequentialCallsAreNotDeduplicated(t *testing.T) {
	clock := newFakeClock()
	store := repository.NewMemoryCredentialStore()
	seedSession(t, store, clock.Now())
	var n int32
	api := &authapi.MockClient{
		RefreshTokenFunc: func(ctx context.Context, cred authapi.Credential) (string, error) {
			atomic.AddInt32(&n, 1)
			return "tok-next", nil
		},
	}
	r := newTestCoordinator(api, store, clock)

	for i := 0; i < 2; i++ {
		if _, err := r.Refresh(context.Background()); err != nil {
			t.Fatalf("refresh %d: %v", i, err)
		}
	}
	if atomic.LoadInt32(&n) != 2 {
		t.Fatalf("expected a new call once the previous one finished, got %d", n)
	}
}

func TestRefreshCoordinator_WaiterCancellation(t *testing.T) {
	clock := newFakeClock()
	store := repository.NewMemoryCredentialStore()
	seedSession(t, store, clock.Now())
	release := make(chan struct{})
	api := &authapi.MockClient{
		RefreshTokenFunc: func(ctx context.Context, cred authapi.Credential) (string, error) {
			<-release
			return "tok-2", nil
		},
	}
	r := newTestCoordinator(api, store, clock)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := r.Refresh(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected waiter deadline, got %v", err)
	}

	close(release)
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s := storedSession(t, store); s != nil && s.Token == "tok-2" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("shared refresh should complete after waiter left")
}

func TestRefreshCoordinator_StaleTokenReusesRotatedToken(t *testing.T) {
	clock := newFakeClock()
	store := repository.NewMemoryCredentialStore()
	seedSession(t, store, clock.Now())
	var presented []string
	api := &authapi.MockClient{
		RefreshTokenFunc: func(ctx context.Context, cred authapi.Credential) (string, error) {
			presented = append(presented, cred.Token)
			return fmt.Sprintf("tok-%d", len(presented)+1), nil
		},
	}
	r := newTestCoordinator(api, store, clock)

	first, err := r.RefreshFrom(context.Background(), "tok-1")
	if err != nil || first != "tok-2" {
		t.Fatalf("expected tok-2, got %q %v", first, err)
	}
	// Una respuesta 401 tardia del token viejo no vuelve a rotar.
	second, err := r.RefreshFrom(context.Background(), "tok-1")
	if err != nil || second != "tok-2" {
		t.Fatalf("expected rotated token reused, got %q %v", second, err)
	}
	if len(presented) != 1 || presented[0] != "tok-1" {
		t.Fatalf("expected a single remote refresh with tok-1, got %v", presented)
	}
	if s := storedSession(t, store); s.Token != "tok-2" {
		t.Fatalf("expected tok-2 stored, got %q", s.Token)
	}
}
