// Package draft persists in-progress wizard records. A draft is one JSON
// document per key; the Store encodes FieldMaps into that document and
// reconciles them against the current schema on the way back in.
package draft

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by backends for absent keys.
	ErrNotFound = errors.New("draft not found")
	// ErrTooLarge is returned when a value exceeds the backend's per-key
	// ceiling.
	ErrTooLarge = errors.New("draft exceeds storage quota")
)

// DefaultMaxBytes is the per-key ceiling applied when none is configured.
const DefaultMaxBytes = 5 << 20

// Entry describes a stored draft without its body.
type Entry struct {
	Key       string    `json:"key"`
	Size      int       `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Backend is a durable key-value slot store.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// List returns entries whose key starts with prefix, most recently
	// updated first, and the total number of matches.
	List(ctx context.Context, prefix string, limit, offset int) ([]Entry, int, error)
}

// Swapper is implemented by backends that can replace a value only while it
// still equals old. ok is false when the stored value changed or is gone.
type Swapper interface {
	Swap(ctx context.Context, key string, old, value []byte) (ok bool, err error)
}

func checkSize(value []byte, maxBytes int) error {
	if maxBytes > 0 && len(value) > maxBytes {
		return ErrTooLarge
	}
	return nil
}
