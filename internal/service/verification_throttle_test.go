package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"chat-client/internal/repository"
)

func TestVerificationThrottle(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := repository.NewMemoryCredentialStore()
	th := NewVerificationThrottle(store, zap.NewNop())
	th.now = clock.Now

	if !th.ShouldVerify(ctx) {
		t.Fatalf("expected verification without record")
	}
	if err := th.MarkVerified(ctx); err != nil {
		t.Fatalf("mark verified: %v", err)
	}

	clock.Advance(4*time.Minute + 59*time.Second)
	if th.ShouldVerify(ctx) {
		t.Fatalf("expected throttle inside interval")
	}

	clock.Advance(time.Second)
	if !th.ShouldVerify(ctx) {
		t.Fatalf("expected verification once interval elapsed")
	}

	if err := th.MarkVerified(ctx); err != nil {
		t.Fatalf("mark verified: %v", err)
	}
	if err := th.reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !th.ShouldVerify(ctx) {
		t.Fatalf("expected verification after reset")
	}
}
