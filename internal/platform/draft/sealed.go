package draft

import (
	"bytes"
	"context"
	"errors"
	"fmt"
)

// Cipher seals draft bodies at rest. *hipaa.Keyring satisfies it.
type Cipher interface {
	Seal(data []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
	NeedsReseal(sealed []byte) bool
	Reseal(sealed []byte) ([]byte, error)
}

// Sealed encrypts every value before it reaches the wrapped backend.
type Sealed struct {
	Backend
	cipher Cipher
}

func NewSealed(inner Backend, cipher Cipher) *Sealed {
	return &Sealed{Backend: inner, cipher: cipher}
}

func (s *Sealed) Get(ctx context.Context, key string) ([]byte, error) {
	body, err := s.Backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	plain, err := s.cipher.Open(body)
	if err != nil {
		return nil, fmt.Errorf("unseal draft: %w", err)
	}
	return plain, nil
}

func (s *Sealed) Put(ctx context.Context, key string, value []byte) error {
	sealed, err := s.cipher.Seal(value)
	if err != nil {
		return fmt.Errorf("seal draft: %w", err)
	}
	return s.Backend.Put(ctx, key, sealed)
}

// Reseal rewrites every draft under prefix that was sealed with a retired
// key. It returns how many drafts were rewritten. A draft written again
// while it is being resealed keeps the newer write; that write is already
// sealed with the current key.
func (s *Sealed) Reseal(ctx context.Context, prefix string) (int, error) {
	const page = 100
	var keys []string
	for offset := 0; ; offset += page {
		entries, total, err := s.Backend.List(ctx, prefix, page, offset)
		if err != nil {
			return 0, err
		}
		for _, e := range entries {
			keys = append(keys, e.Key)
		}
		if offset+page >= total || len(entries) == 0 {
			break
		}
	}

	n := 0
	for _, key := range keys {
		body, err := s.Backend.Get(ctx, key)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return n, err
		}
		if !s.cipher.NeedsReseal(body) {
			continue
		}
		next, err := s.cipher.Reseal(body)
		if err != nil {
			return n, fmt.Errorf("reseal %s: %w", key, err)
		}
		ok, err := s.swap(ctx, key, body, next)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (s *Sealed) swap(ctx context.Context, key string, old, value []byte) (bool, error) {
	if sw, ok := s.Backend.(Swapper); ok {
		return sw.Swap(ctx, key, old, value)
	}
	current, err := s.Backend.Get(ctx, key)
	if errors.Is(err, ErrNotFound) || (err == nil && !bytes.Equal(current, old)) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, s.Backend.Put(ctx, key, value)
}
