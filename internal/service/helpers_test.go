package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"chat-client/internal/domain"
	"chat-client/internal/repository"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Publish(e Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) count(e Event) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, got := range n.events {
		if got == e {
			total++
		}
	}
	return total
}

func seedSession(t *testing.T, store repository.CredentialStore, lastActivity time.Time) domain.Session {
	t.Helper()
	s := domain.Session{
		ID:           "u1",
		Name:         "Ana",
		Email:        "ana@example.com",
		ProfileImage: "/uploads/ana.png",
		Token:        "tok-1",
		SessionID:    "sess-1",
		LastActivity: lastActivity,
	}
	if err := store.Write(context.Background(), s); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return s
}

func storedSession(t *testing.T, store repository.CredentialStore) *domain.Session {
	t.Helper()
	s, err := store.Read(context.Background())
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
	return s
}
