package draft

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryBackend keeps drafts in process memory.
type MemoryBackend struct {
	mu       sync.RWMutex
	entries  map[string]memoryEntry
	maxBytes int
	now      func() time.Time
}

type memoryEntry struct {
	body      []byte
	updatedAt time.Time
}

func NewMemoryBackend(maxBytes int) *MemoryBackend {
	return &MemoryBackend{
		entries:  make(map[string]memoryEntry),
		maxBytes: maxBytes,
		now:      time.Now,
	}
}

func (b *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(e.body))
	copy(out, e.body)
	return out, nil
}

func (b *MemoryBackend) Put(ctx context.Context, key string, value []byte) error {
	if err := checkSize(value, b.maxBytes); err != nil {
		return err
	}
	body := make([]byte, len(value))
	copy(body, value)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = memoryEntry{body: body, updatedAt: b.now()}
	return nil
}

func (b *MemoryBackend) Swap(ctx context.Context, key string, old, value []byte) (bool, error) {
	if err := checkSize(value, b.maxBytes); err != nil {
		return false, err
	}
	body := make([]byte, len(value))
	copy(body, value)

	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[key]
	if !ok || !bytes.Equal(e.body, old) {
		return false, nil
	}
	b.entries[key] = memoryEntry{body: body, updatedAt: b.now()}
	return true, nil
}

func (b *MemoryBackend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
	return nil
}

func (b *MemoryBackend) List(ctx context.Context, prefix string, limit, offset int) ([]Entry, int, error) {
	b.mu.RLock()
	var all []Entry
	for k, e := range b.entries {
		if strings.HasPrefix(k, prefix) {
			all = append(all, Entry{Key: k, Size: len(e.body), UpdatedAt: e.updatedAt})
		}
	}
	b.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].Key < all[j].Key
		}
		return all[i].UpdatedAt.After(all[j].UpdatedAt)
	})

	total := len(all)
	if offset >= total {
		return []Entry{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total, nil
}
