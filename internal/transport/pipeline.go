// Package transport decorates outgoing requests with session credentials and
// drives the 401-refresh-retry cycle.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/yonomi/thincloud-sdk/internal/auth"
	"github.com/yonomi/thincloud-sdk/internal/errs"
	"github.com/yonomi/thincloud-sdk/internal/models"
)

// Doer abstracts the HTTP client capability.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Pipeline sends authenticated requests. Every request carries the current
// bearer token and the static API key; a 401 response triggers exactly one
// coordinated token refresh followed by at most one retry of the original
// request.
type Pipeline struct {
	httpClient  Doer
	apiKey      string
	tokens      *auth.TokenStore
	coordinator *auth.RefreshCoordinator
	logger      zerolog.Logger

	detached atomic.Bool
	inflight cmap.ConcurrentMap[string, context.CancelFunc]
}

// NewPipeline builds a Pipeline over the given HTTP client capability.
func NewPipeline(httpClient Doer, apiKey string, tokens *auth.TokenStore, coordinator *auth.RefreshCoordinator, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		httpClient:  httpClient,
		apiKey:      apiKey,
		tokens:      tokens,
		coordinator: coordinator,
		logger:      logger,
		inflight:    cmap.New[context.CancelFunc](),
	}
}

// adapt attaches the authorization headers to req. When no token is present
// the request goes out unauthenticated and the backend's rejection drives the
// retry path.
func (p *Pipeline) adapt(req *http.Request) {
	req.Header.Set("x-api-key", p.apiKey)
	if pair, ok := p.tokens.Current(); ok {
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	} else {
		req.Header.Del("Authorization")
	}
}

// Do sends req, refreshing the session and retrying once if the backend
// answers 401. The returned response may still carry a non-2xx status; only
// transport-level failures and a terminal 401 surface as errors.
func (p *Pipeline) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if p.detached.Load() {
		return nil, errs.ErrNotAuthenticated
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	id := uuid.NewString()
	p.inflight.Set(id, cancel)
	defer p.inflight.Remove(id)

	resp, err := p.send(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// The response body is finished with; drain it so the connection can be
	// reused by the retry.
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if !p.awaitRefresh(ctx) {
		return nil, errs.ErrNotAuthenticated
	}

	if p.detached.Load() {
		return nil, errs.ErrNotAuthenticated
	}

	retry, err := p.send(ctx, req)
	if err != nil {
		return nil, err
	}
	if retry.StatusCode == http.StatusUnauthorized {
		// A second 401 after a successful refresh is a hard authentication
		// failure; retrying further would loop forever.
		io.Copy(io.Discard, retry.Body)
		retry.Body.Close()
		return nil, errs.ErrNotAuthenticated
	}
	return retry, nil
}

// send issues one attempt with fresh headers and, where possible, a rewound
// body.
func (p *Pipeline) send(ctx context.Context, req *http.Request) (*http.Response, error) {
	attempt := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		attempt.Body = body
	}
	p.adapt(attempt)

	resp, err := p.httpClient.Do(attempt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &errs.NetworkError{Err: err}
	}
	return resp, nil
}

// awaitRefresh queues behind the refresh coordinator and reports whether the
// refresh succeeded.
func (p *Pipeline) awaitRefresh(ctx context.Context) bool {
	outcome := make(chan bool, 1)
	p.coordinator.RequestRefresh(func(succeeded bool, _ models.TokenPair) {
		outcome <- succeeded
	})

	select {
	case ok := <-outcome:
		return ok
	case <-ctx.Done():
		return false
	}
}

// Detach stops the pipeline from sending any further requests. Used on
// sign-out together with CancelAll.
func (p *Pipeline) Detach() {
	p.detached.Store(true)
}

// Attach re-enables the pipeline after a new sign-in.
func (p *Pipeline) Attach() {
	p.detached.Store(false)
}

// CancelAll aborts every in-flight request belonging to the session.
func (p *Pipeline) CancelAll() {
	for entry := range p.inflight.IterBuffered() {
		entry.Val()
	}
	p.inflight.Clear()
	p.logger.Debug().Msg("Cancelled in-flight session requests")
}
