package auth

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/yonomi/thincloud-sdk/internal/models"
)

// RefreshFunc performs one token-refresh call against the backend using the
// given pair and returns the replacement pair.
type RefreshFunc func(ctx context.Context, current models.TokenPair) (models.TokenPair, error)

// RefreshWaiter is resolved exactly once with the outcome of the refresh the
// caller was queued behind.
type RefreshWaiter func(succeeded bool, pair models.TokenPair)

// RefreshCoordinator serializes concurrent refresh attempts: a storm of
// simultaneous 401 responses results in exactly one call to the refresh
// endpoint, with every caller queued as a waiter and resolved with the shared
// outcome.
type RefreshCoordinator struct {
	tokens  *TokenStore
	refresh RefreshFunc
	logger  zerolog.Logger

	mu         sync.Mutex
	refreshing bool
	waiters    []RefreshWaiter
	generation uint64
}

// NewRefreshCoordinator wires a coordinator to the token store it updates on
// success and the function that performs the actual network call.
func NewRefreshCoordinator(tokens *TokenStore, refresh RefreshFunc, logger zerolog.Logger) *RefreshCoordinator {
	return &RefreshCoordinator{
		tokens:  tokens,
		refresh: refresh,
		logger:  logger,
	}
}

// RequestRefresh enqueues onComplete behind the current (or a newly started)
// refresh. The callback is always invoked asynchronously, never from within
// this call, and never more than once.
func (rc *RefreshCoordinator) RequestRefresh(onComplete RefreshWaiter) {
	rc.mu.Lock()
	rc.waiters = append(rc.waiters, onComplete)
	if rc.refreshing {
		rc.mu.Unlock()
		return
	}
	rc.refreshing = true
	generation := rc.generation
	rc.mu.Unlock()

	go rc.runRefresh(generation)
}

// runRefresh performs the single in-flight refresh. The lock is never held
// across the network call.
func (rc *RefreshCoordinator) runRefresh(generation uint64) {
	var (
		succeeded bool
		pair      models.TokenPair
	)

	current, present := rc.tokens.Current()
	if !present {
		rc.logger.Warn().Msg("Refresh requested without an active session")
	} else {
		refreshed, err := rc.refresh(context.Background(), current)
		if err != nil {
			rc.logger.Error().Err(err).Msg("Token refresh failed")
		} else {
			succeeded = true
			pair = refreshed
		}
	}

	rc.mu.Lock()
	if rc.generation != generation {
		// The session was reset while the call was in flight; the result is
		// discarded and the waiters belong to the old session.
		rc.logger.Info().Msg("Discarding refresh result from a superseded session")
		succeeded = false
		pair = models.TokenPair{}
	}
	if succeeded {
		if err := rc.tokens.Replace(pair); err != nil {
			rc.logger.Error().Err(err).Msg("Failed to store refreshed token pair")
			succeeded = false
			pair = models.TokenPair{}
		}
	}
	rc.refreshing = false
	drained := rc.waiters
	rc.waiters = nil
	rc.mu.Unlock()

	rc.logger.Debug().Bool("succeeded", succeeded).Int("waiters", len(drained)).Msg("Resolving refresh waiters")
	for _, waiter := range drained {
		waiter(succeeded, pair)
	}
}

// Reset invalidates any in-flight refresh so its result is discarded. Called
// on sign-out.
func (rc *RefreshCoordinator) Reset() {
	rc.mu.Lock()
	rc.generation++
	rc.mu.Unlock()
}
