package kv

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a key is absent or has expired.
	ErrNotFound = errors.New("key not found")
)

// Store is the flat key-value contract every component depends on.
// Get and Set are individually atomic; read-modify-write sequences built on
// top of them are not, and callers that need stronger guarantees should use
// SetNX instead of check-then-set.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes value under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX writes value only if key is absent, returning whether the write
	// happened.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}
