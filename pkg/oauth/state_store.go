package oauth

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brennalabs/slackcore/pkg/types"
)

// DefaultStateTTL is the install-state token lifetime, matching the default
// stateExpirationSeconds configuration value of 600.
const DefaultStateTTL = 10 * time.Minute

// MemoryStateStore is an in-memory StateStore with an atomic, delete-on-read
// Consume: a replayed state parameter is rejected immediately rather than
// succeeding repeatedly until its TTL expires. Tokens are UUIDv4 strings
// (github.com/google/uuid) rather than hand-rolled hex.
//
// This should only be used for development/testing - use a persistent store
// backed by shared storage in a multi-process deployment.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]time.Time
	ttl    time.Duration
}

// NewMemoryStateStore creates an in-memory state store with the given TTL
// (DefaultStateTTL if zero) and starts a background sweep of abandoned,
// never-consumed tokens.
func NewMemoryStateStore(ttl time.Duration) *MemoryStateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	store := &MemoryStateStore{
		states: make(map[string]time.Time),
		ttl:    ttl,
	}
	go store.sweepExpired()
	return store
}

// Issue mints a new UUIDv4 state token, valid for the store's TTL.
func (m *MemoryStateStore) Issue(_ context.Context, _ *types.Request, _ *types.Response) (string, error) {
	token := uuid.NewString()

	m.mu.Lock()
	m.states[token] = time.Now().Add(m.ttl)
	m.mu.Unlock()

	return token, nil
}

// Consume atomically checks and deletes state: the check-then-delete
// happens under a single lock acquisition, so of two concurrent callers
// presenting the same state, at most one observes true.
func (m *MemoryStateStore) Consume(_ context.Context, state string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	expiresAt, ok := m.states[state]
	if !ok {
		return false
	}
	delete(m.states, state)
	return time.Now().Before(expiresAt)
}

func (m *MemoryStateStore) sweepExpired() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		m.mu.Lock()
		now := time.Now()
		for state, expiresAt := range m.states {
			if now.After(expiresAt) {
				delete(m.states, state)
			}
		}
		m.mu.Unlock()
	}
}

// Clear removes all pending state entries (test helper).
func (m *MemoryStateStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = make(map[string]time.Time)
}

// EncryptedStateStore is a stateless StateStore: the token itself carries an
// AES-GCM-encrypted, timestamped payload. A purely stateless token cannot by
// itself guarantee atomic, single-use consumption (nothing prevents
// replaying the same valid ciphertext), so this adds a small in-memory
// consumed-token set; that trades cross-process single-use guarantees for
// the ability to enforce single-use at all within one process, which the
// stateless design otherwise cannot do.
type EncryptedStateStore struct {
	secret string
	ttl    time.Duration

	mu       sync.Mutex
	consumed map[string]time.Time
}

// NewEncryptedStateStore builds an encrypted store keyed by secret.
func NewEncryptedStateStore(secret string, ttl time.Duration) *EncryptedStateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	store := &EncryptedStateStore{
		secret:   secret,
		ttl:      ttl,
		consumed: make(map[string]time.Time),
	}
	go store.sweepConsumed()
	return store
}

// Issue encrypts a timestamped, random payload into the token.
func (e *EncryptedStateStore) Issue(_ context.Context, _ *types.Request, _ *types.Response) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate state nonce: %w", err)
	}

	payload := fmt.Sprintf("%d:%s", time.Now().Unix(), hex.EncodeToString(nonce))
	encrypted, err := e.encrypt([]byte(payload))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt state: %w", err)
	}

	return hex.EncodeToString(encrypted), nil
}

// Consume decrypts state, checks its embedded timestamp against ttl, and
// atomically marks the token as used so a second Consume with the same
// ciphertext fails even though the ciphertext remains valid.
func (e *EncryptedStateStore) Consume(_ context.Context, state string) bool {
	encryptedData, err := hex.DecodeString(state)
	if err != nil {
		return false
	}

	decrypted, err := e.decrypt(encryptedData)
	if err != nil {
		return false
	}

	parts := strings.SplitN(string(decrypted), ":", 2)
	if len(parts) != 2 {
		return false
	}
	timestamp, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return false
	}
	expiresAt := time.Unix(timestamp, 0).Add(e.ttl)
	if time.Now().After(expiresAt) {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, already := e.consumed[state]; already {
		return false
	}
	e.consumed[state] = expiresAt
	return true
}

func (e *EncryptedStateStore) sweepConsumed() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		e.mu.Lock()
		now := time.Now()
		for token, expiresAt := range e.consumed {
			if now.After(expiresAt) {
				delete(e.consumed, token)
			}
		}
		e.mu.Unlock()
	}
}

func (e *EncryptedStateStore) encrypt(data []byte) ([]byte, error) {
	gcm, err := e.gcm()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, data, nil), nil
}

func (e *EncryptedStateStore) decrypt(data []byte) ([]byte, error) {
	gcm, err := e.gcm()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]

	return gcm.Open(nil, nonce, ciphertext, nil)
}

func (e *EncryptedStateStore) gcm() (cipher.AEAD, error) {
	hash := sha256.Sum256([]byte(e.secret))
	block, err := aes.NewCipher(hash[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
