// Package auth owns the OAuth2 session state: the current token pair and the
// single-flight coordination around refreshing it.
package auth

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/yonomi/thincloud-sdk/internal/models"
	"github.com/yonomi/thincloud-sdk/pkg/store"
)

const tokenStoreKey = "oauth.tokens"

// TokenListener is notified after the active token pair changes. present is
// false when the pair was cleared by a sign-out.
type TokenListener func(pair models.TokenPair, present bool)

// TokenStore holds the active access/refresh token pair and persists it to
// durable storage. The pair is replaced atomically; a dangling access token
// without its refresh token is never observable.
type TokenStore struct {
	kv     store.KeyValueStore
	logger zerolog.Logger

	mu        sync.RWMutex
	pair      models.TokenPair
	present   bool
	listeners []TokenListener
}

// NewTokenStore creates a TokenStore backed by kv and loads any previously
// persisted pair so a restarted process resumes its session.
func NewTokenStore(kv store.KeyValueStore, logger zerolog.Logger) (*TokenStore, error) {
	ts := &TokenStore{
		kv:     kv,
		logger: logger,
	}

	data, err := kv.Get(tokenStoreKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load persisted tokens: %w", err)
	}
	if len(data) == 0 {
		return ts, nil
	}

	var pair models.TokenPair
	if err := json.Unmarshal(data, &pair); err != nil {
		// A corrupt record is treated as signed out rather than blocking startup.
		logger.Warn().Err(err).Msg("Discarding unreadable persisted token pair")
		return ts, nil
	}
	if pair.Valid() {
		ts.pair = pair
		ts.present = true
	}

	return ts, nil
}

// Current returns the active pair, or false if signed out.
func (ts *TokenStore) Current() (models.TokenPair, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.pair, ts.present
}

// Replace atomically swaps the active pair, persisting it before the new pair
// becomes visible. Listeners are notified after the swap.
func (ts *TokenStore) Replace(pair models.TokenPair) error {
	if !pair.Valid() {
		return fmt.Errorf("refusing to store a partial token pair")
	}

	data, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("failed to serialize token pair: %w", err)
	}

	ts.mu.Lock()
	if err := ts.kv.Set(tokenStoreKey, data); err != nil {
		ts.mu.Unlock()
		return fmt.Errorf("failed to persist token pair: %w", err)
	}
	ts.pair = pair
	ts.present = true
	listeners := append([]TokenListener(nil), ts.listeners...)
	ts.mu.Unlock()

	ts.logger.Debug().Msg("Token pair replaced")
	for _, l := range listeners {
		l(pair, true)
	}
	return nil
}

// Clear removes the active pair and its persisted copy (sign-out).
func (ts *TokenStore) Clear() error {
	ts.mu.Lock()
	if err := ts.kv.Delete(tokenStoreKey); err != nil {
		ts.mu.Unlock()
		return fmt.Errorf("failed to clear persisted token pair: %w", err)
	}
	ts.pair = models.TokenPair{}
	ts.present = false
	listeners := append([]TokenListener(nil), ts.listeners...)
	ts.mu.Unlock()

	ts.logger.Debug().Msg("Token pair cleared")
	for _, l := range listeners {
		l(models.TokenPair{}, false)
	}
	return nil
}

// Subscribe registers a listener for token changes.
func (ts *TokenStore) Subscribe(listener TokenListener) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.listeners = append(ts.listeners, listener)
}
