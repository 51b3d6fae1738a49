package kv

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryGetMissingKey(t *testing.T) {
	m := NewMemory()

	_, err := m.Get(context.Background(), "weather:nowhere:metric:v1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemorySetThenGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "v" {
		t.Fatalf("expected %q, got %q", "v", got)
	}
}

func TestMemoryTTLExpiry(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	if err := m.Set(ctx, "k", []byte("v"), time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Still fresh just before expiry.
	now = now.Add(59 * time.Minute)
	if _, err := m.Get(ctx, "k"); err != nil {
		t.Fatalf("expected value before expiry, got %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestMemorySetNX(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	ok, err := m.SetNX(ctx, "k", []byte("first"), 0)
	if err != nil || !ok {
		t.Fatalf("expected first SetNX to win, got ok=%v err=%v", ok, err)
	}

	ok, err = m.SetNX(ctx, "k", []byte("second"), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected second SetNX to be rejected")
	}

	got, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "first" {
		t.Fatalf("expected original value to survive, got %q", got)
	}
}

func TestMemorySetNXAfterExpiry(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	if ok, _ := m.SetNX(ctx, "k", []byte("first"), time.Minute); !ok {
		t.Fatal("expected first SetNX to win")
	}

	now = now.Add(2 * time.Minute)
	ok, err := m.SetNX(ctx, "k", []byte("second"), time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected SetNX to win after the previous value expired")
	}
}
