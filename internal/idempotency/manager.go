// Package idempotency issues the correlation token sent with order creation.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corekit/storefront/internal/storage"
)

// Header carries the token on POST /orders
const Header = "Idempotency-Key"

// KeyManager holds one token per checkout attempt in session-scoped storage.
// The same token is returned until Clear is called or the session expires.
// Storage faults degrade to an in-memory token so checkout is never blocked.
type KeyManager struct {
	storage storage.Store
	key     string
	logger  *zap.Logger

	mu sync.Mutex
	// fallback mirrors the last token so a broken store still yields a stable key
	fallback string
}

func NewKeyManager(st storage.Store, key string, logger *zap.Logger) *KeyManager {
	return &KeyManager{
		storage: st,
		key:     key,
		logger:  logger,
	}
}

// GetOrCreateKey returns the persisted token, minting and persisting a new one if absent.
// An absent value means the session ended, so the previous token is not revived.
func (m *KeyManager) GetOrCreateKey(ctx context.Context) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok, err := m.read(ctx)
	switch {
	case ok:
		m.fallback = token
		return token
	case err != nil && m.fallback != "":
		// store unreachable; keep the attempt stable
		return m.fallback
	}
	if m.fallback != "" {
		m.logger.Info("Session ended, previous idempotency key dropped")
	}

	token = uuid.NewString()
	m.fallback = token
	m.write(ctx, token)
	m.logger.Debug("Minted idempotency key", zap.String("idempotency_key", token))
	return token
}

// Peek returns the current token without minting one
func (m *KeyManager) Peek(ctx context.Context) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok, err := m.read(ctx)
	switch {
	case ok:
		return token, true
	case err != nil:
		return m.fallback, m.fallback != ""
	}
	m.fallback = ""
	return "", false
}

// Clear forgets the token; the next GetOrCreateKey mints a fresh one
func (m *KeyManager) Clear(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = ""
	if err := m.storage.Delete(ctx, m.key); err != nil {
		m.logger.Warn("Failed to clear idempotency key", zap.Error(err))
	}
}

// read reports a storage fault through err. A missing or corrupt value is
// absent, not a fault.
func (m *KeyManager) read(ctx context.Context) (string, bool, error) {
	data, err := m.storage.Get(ctx, m.key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		m.logger.Warn("Failed to read idempotency key", zap.Error(err))
		return "", false, err
	}
	var token string
	if err := json.Unmarshal(data, &token); err != nil || token == "" {
		m.logger.Warn("Discarding corrupt idempotency key")
		return "", false, nil
	}
	return token, true, nil
}

func (m *KeyManager) write(ctx context.Context, token string) {
	data, err := json.Marshal(token)
	if err != nil {
		return
	}
	if err := m.storage.Set(ctx, m.key, data); err != nil {
		m.logger.Warn("Failed to persist idempotency key", zap.Error(err))
	}
}
