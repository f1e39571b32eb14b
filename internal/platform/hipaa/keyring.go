// Package hipaa seals protected health information at rest.
package hipaa

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

var (
	ErrUnknownKeyVersion = errors.New("no key for version")
	ErrCiphertextShort   = errors.New("ciphertext too short")
)

// Keyring seals byte payloads with AES-256-GCM. Each sealed payload starts
// with a one-byte key version followed by the nonce, so payloads written
// under a retired key stay readable while the key is registered with
// AddPreviousKey.
type Keyring struct {
	mu         sync.RWMutex
	current    cipher.AEAD
	currentVer byte
	previous   map[byte]cipher.AEAD
}

// NewKeyring creates a keyring that seals with key under version.
func NewKeyring(key []byte, version int) (*Keyring, error) {
	v, err := checkVersion(version)
	if err != nil {
		return nil, err
	}
	aead, err := newAEAD(key)
	if err != nil {
		return nil, fmt.Errorf("keyring: current key: %w", err)
	}
	return &Keyring{
		current:    aead,
		currentVer: v,
		previous:   make(map[byte]cipher.AEAD),
	}, nil
}

// AddPreviousKey registers a retired key for opening only.
func (k *Keyring) AddPreviousKey(key []byte, version int) error {
	v, err := checkVersion(version)
	if err != nil {
		return err
	}
	aead, err := newAEAD(key)
	if err != nil {
		return fmt.Errorf("keyring: previous key v%d: %w", version, err)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if v == k.currentVer {
		return fmt.Errorf("keyring: v%d is the current version", version)
	}
	k.previous[v] = aead
	return nil
}

// Seal encrypts data under the current key.
func (k *Keyring) Seal(data []byte) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	ns := k.current.NonceSize()
	out := make([]byte, 1+ns, 1+ns+len(data)+k.current.Overhead())
	out[0] = k.currentVer
	if _, err := io.ReadFull(rand.Reader, out[1:]); err != nil {
		return nil, fmt.Errorf("keyring: generate nonce: %w", err)
	}
	return k.current.Seal(out, out[1:], data, nil), nil
}

// Open decrypts a payload produced by Seal under any registered key.
func (k *Keyring) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < 1 {
		return nil, ErrCiphertextShort
	}
	k.mu.RLock()
	aead, ok := k.aeadFor(sealed[0])
	k.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %d", ErrUnknownKeyVersion, sealed[0])
	}

	ns := aead.NonceSize()
	if len(sealed) < 1+ns {
		return nil, ErrCiphertextShort
	}
	plain, err := aead.Open(nil, sealed[1:1+ns], sealed[1+ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("keyring: open: %w", err)
	}
	return plain, nil
}

// NeedsReseal reports whether sealed was written under a key other than the
// current one.
func (k *Keyring) NeedsReseal(sealed []byte) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(sealed) == 0 || sealed[0] != k.currentVer
}

// Reseal opens sealed and seals the plaintext again under the current key.
func (k *Keyring) Reseal(sealed []byte) ([]byte, error) {
	plain, err := k.Open(sealed)
	if err != nil {
		return nil, err
	}
	return k.Seal(plain)
}

func (k *Keyring) CurrentVersion() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return int(k.currentVer)
}

func (k *Keyring) aeadFor(v byte) (cipher.AEAD, bool) {
	if v == k.currentVer {
		return k.current, true
	}
	aead, ok := k.previous[v]
	return aead, ok
}

// ParseKey decodes a 64-character hex AES-256 key.
func ParseKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("key is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes (64 hex chars), got %d bytes", len(key))
	}
	return key, nil
}

// ParseVersionedKey decodes a "version:hexkey" pair.
func ParseVersionedKey(s string) (int, []byte, error) {
	vs, ks, ok := strings.Cut(s, ":")
	if !ok {
		return 0, nil, fmt.Errorf("versioned key %q: expected version:hex", s)
	}
	v, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(vs), "v"))
	if err != nil {
		return 0, nil, fmt.Errorf("versioned key: invalid version %q", vs)
	}
	key, err := ParseKey(ks)
	if err != nil {
		return 0, nil, err
	}
	return v, key, nil
}

func checkVersion(version int) (byte, error) {
	if version < 1 || version > 255 {
		return 0, fmt.Errorf("keyring: version must be between 1 and 255, got %d", version)
	}
	return byte(version), nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
