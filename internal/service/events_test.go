package service

import "testing"

func TestBroadcaster_PublishAndCancel(t *testing.T) {
	b := NewBroadcaster()
	a, cancelA := b.Subscribe(4)
	c, cancelC := b.Subscribe(4)
	defer cancelC()

	b.Publish(EventAuthStateChanged)
	if got := <-a; got != EventAuthStateChanged {
		t.Fatalf("expected auth state change, got %s", got)
	}
	if got := <-c; got != EventAuthStateChanged {
		t.Fatalf("expected auth state change, got %s", got)
	}

	cancelA()
	cancelA()
	if _, ok := <-a; ok {
		t.Fatalf("expected closed channel after cancel")
	}

	b.Publish(EventProfileUpdated)
	if got := <-c; got != EventProfileUpdated {
		t.Fatalf("expected profile updated, got %s", got)
	}
}

func TestBroadcaster_FullSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe(1)
	defer cancel()

	b.Publish(EventAuthStateChanged)
	b.Publish(EventProfileUpdated)

	if got := <-ch; got != EventAuthStateChanged {
		t.Fatalf("expected first event kept, got %s", got)
	}
	select {
	case e := <-ch:
		t.Fatalf("expected overflow event dropped, got %s", e)
	default:
	}
}
