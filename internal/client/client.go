// Package client is the SDK facade: session lifecycle (sign-in, sign-out,
// resume), client registration for push delivery, and the authenticated
// resource and command calls everything else is built on.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yonomi/thincloud-sdk/internal/auth"
	"github.com/yonomi/thincloud-sdk/internal/commands"
	"github.com/yonomi/thincloud-sdk/internal/errs"
	"github.com/yonomi/thincloud-sdk/internal/models"
	"github.com/yonomi/thincloud-sdk/internal/transport"
	"github.com/yonomi/thincloud-sdk/pkg/store"
)

const (
	cachedUserKey   = "cache.user"
	cachedClientKey = "cache.client"
	installIDKey    = "client.install_id"

	defaultTimeout = 30 * time.Second
)

// Config identifies the cloud deployment and the application's credentials.
type Config struct {
	Instance string // Deployment name, i.e. api.<instance>.yonomi.cloud
	ClientID string // OAuth client key
	APIKey   string // Static API key sent with every request
	BaseURL  string // Optional full API base URL override (used by tests)

	HTTPClient *http.Client // Optional; a default client is used when nil
}

// ClientInfo describes the installation being registered for push delivery.
type ClientInfo struct {
	ApplicationName    string
	ApplicationVersion string
	DeviceModel        string
	DevicePlatform     string
	DeviceVersion      string
	DeviceToken        string
}

// Client is an authenticated session against one cloud deployment. It is
// constructed once by the host application and injected everywhere a session
// is needed.
type Client struct {
	cfg     Config
	baseURL string

	httpClient  *http.Client
	tokens      *auth.TokenStore
	coordinator *auth.RefreshCoordinator
	pipeline    *transport.Pipeline
	kv          store.KeyValueStore
	logger      zerolog.Logger

	mu            sync.RWMutex
	currentUser   *models.User
	currentClient *models.Client
}

// New builds a Client over the given durable store. A previously persisted
// session (tokens plus cached user/client) is resumed automatically.
func New(cfg Config, kv store.KeyValueStore, logger zerolog.Logger) (*Client, error) {
	if cfg.ClientID == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("client id and api key are required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		if cfg.Instance == "" {
			return nil, fmt.Errorf("either instance or base url is required")
		}
		baseURL = fmt.Sprintf("https://api.%s.yonomi.cloud/v1", cfg.Instance)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	tokens, err := auth.NewTokenStore(kv, logger)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:        cfg,
		baseURL:    baseURL,
		httpClient: httpClient,
		tokens:     tokens,
		kv:         kv,
		logger:     logger,
	}
	c.coordinator = auth.NewRefreshCoordinator(tokens, c.refreshTokens, logger)
	c.pipeline = transport.NewPipeline(httpClient, cfg.APIKey, tokens, c.coordinator, logger)

	// A replaced pair re-arms the pipeline; a cleared one detaches it so no
	// further token-bearing requests go out.
	tokens.Subscribe(func(_ models.TokenPair, present bool) {
		if present {
			c.pipeline.Attach()
		} else {
			c.pipeline.Detach()
		}
	})

	c.loadCached(cachedUserKey, &c.currentUser)
	c.loadCached(cachedClientKey, &c.currentClient)

	if _, ok := tokens.Current(); ok {
		logger.Info().Msg("Resumed persisted session")
	}

	return c, nil
}

// loadCached restores a cached resource from the durable store, treating any
// unreadable record as absent.
func (c *Client) loadCached(key string, out any) {
	data, err := c.kv.Get(key)
	if err != nil || len(data) == 0 {
		return
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Discarding unreadable cached resource")
	}
}

// cache persists a resource, or removes it when value is nil.
func (c *Client) cache(key string, value any) {
	if value == nil {
		if err := c.kv.Delete(key); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("Failed to clear cached resource")
		}
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to serialize cached resource")
		return
	}
	if err := c.kv.Set(key, data); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to persist cached resource")
	}
}

// Authenticated reports whether a session is active.
func (c *Client) Authenticated() bool {
	_, ok := c.tokens.Current()
	return ok
}

// CurrentUser returns the signed-in user, if any.
func (c *Client) CurrentUser() (models.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.currentUser == nil {
		return models.User{}, false
	}
	return *c.currentUser, true
}

// CurrentClient returns the registered push client, if any.
func (c *Client) CurrentClient() (models.Client, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.currentClient == nil {
		return models.Client{}, false
	}
	return *c.currentClient, true
}

// refreshTokens performs one refresh call. It goes through the raw HTTP
// client rather than the pipeline so a refresh can never recurse into itself.
func (c *Client) refreshTokens(ctx context.Context, current models.TokenPair) (models.TokenPair, error) {
	body, err := json.Marshal(models.OAuth2RefreshRequest{
		GrantType:    "refresh_token",
		ClientID:     c.cfg.ClientID,
		AccessToken:  current.AccessToken,
		RefreshToken: current.RefreshToken,
	})
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("failed to serialize refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/tokens", bytes.NewReader(body))
	if err != nil {
		return models.TokenPair{}, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("x-api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.TokenPair{}, &errs.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.TokenPair{}, &errs.StatusError{Code: resp.StatusCode}
	}

	var oauth models.OAuth2Response
	if err := json.NewDecoder(resp.Body).Decode(&oauth); err != nil || oauth.AccessToken == "" {
		return models.TokenPair{}, fmt.Errorf("%w: refresh response", errs.ErrDeserialization)
	}

	pair := models.TokenPair{AccessToken: oauth.AccessToken, RefreshToken: oauth.RefreshToken}
	if pair.RefreshToken == "" {
		// Rotation without a new refresh token keeps the old one.
		pair.RefreshToken = current.RefreshToken
	}
	return pair, nil
}

// SignIn creates a session from user credentials and caches the signed-in
// user.
func (c *Client) SignIn(ctx context.Context, email, password string) (models.User, error) {
	body, err := json.Marshal(models.OAuth2Request{
		GrantType: "password",
		ClientID:  c.cfg.ClientID,
		Username:  email,
		Password:  password,
	})
	if err != nil {
		return models.User{}, fmt.Errorf("failed to serialize sign-in request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/tokens", bytes.NewReader(body))
	if err != nil {
		return models.User{}, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("x-api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.User{}, &errs.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return models.User{}, errs.ErrNotAuthenticated
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.User{}, &errs.StatusError{Code: resp.StatusCode}
	}

	var oauth models.OAuth2Response
	if err := json.NewDecoder(resp.Body).Decode(&oauth); err != nil || oauth.AccessToken == "" || oauth.RefreshToken == "" {
		return models.User{}, fmt.Errorf("%w: sign-in response", errs.ErrDeserialization)
	}

	if err := c.tokens.Replace(models.TokenPair{AccessToken: oauth.AccessToken, RefreshToken: oauth.RefreshToken}); err != nil {
		return models.User{}, err
	}

	user, err := c.User(ctx)
	if err != nil {
		return models.User{}, err
	}

	c.mu.Lock()
	c.currentUser = &user
	c.mu.Unlock()
	c.cache(cachedUserKey, user)

	c.logger.Info().Str("user_id", user.UserID).Msg("Signed in")
	return user, nil
}

// SignOut tears the session down: no further token-bearing requests are sent,
// in-flight ones are cancelled, and the persisted session state is removed. A
// refresh already past the network call completes and its result is
// discarded.
func (c *Client) SignOut(ctx context.Context) error {
	c.pipeline.Detach()
	c.pipeline.CancelAll()
	c.coordinator.Reset()

	if err := c.tokens.Clear(); err != nil {
		return err
	}

	c.mu.Lock()
	c.currentUser = nil
	c.currentClient = nil
	c.mu.Unlock()
	c.cache(cachedUserKey, nil)
	c.cache(cachedClientKey, nil)

	c.logger.Info().Msg("Signed out")
	return nil
}

// doJSON issues an authenticated request and decodes the response into out
// (skipped when out is nil). Non-2xx statuses map onto the error taxonomy.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to serialize request body: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	resp, err := c.pipeline.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &errs.StatusError{Code: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", errs.ErrDeserialization, method, path, err)
	}
	return nil
}

// User fetches the signed-in user.
func (c *Client) User(ctx context.Context) (models.User, error) {
	var user models.User
	if err := c.doJSON(ctx, http.MethodGet, "/users/me", nil, &user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

// Devices lists the devices visible to the signed-in user.
func (c *Client) Devices(ctx context.Context) ([]models.Device, error) {
	var devices []models.Device
	if err := c.doJSON(ctx, http.MethodGet, "/devices", nil, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// Device fetches one device.
func (c *Client) Device(ctx context.Context, deviceID string) (models.Device, error) {
	var device models.Device
	if err := c.doJSON(ctx, http.MethodGet, "/devices/"+url.PathEscape(deviceID), nil, &device); err != nil {
		return models.Device{}, err
	}
	return device, nil
}

// RegisterClient registers this installation and its push token so the
// backend can wake the gateway up. The install id is generated once and
// persisted.
func (c *Client) RegisterClient(ctx context.Context, info ClientInfo) (models.Client, error) {
	installID, err := c.installID()
	if err != nil {
		return models.Client{}, err
	}

	var registered models.Client
	reg := models.ClientRegistrationRequest{
		ApplicationName:    info.ApplicationName,
		ApplicationVersion: info.ApplicationVersion,
		DeviceModel:        info.DeviceModel,
		DevicePlatform:     info.DevicePlatform,
		DeviceVersion:      info.DeviceVersion,
		DeviceToken:        info.DeviceToken,
		InstallID:          installID,
	}
	if err := c.doJSON(ctx, http.MethodPost, "/clients", reg, &registered); err != nil {
		return models.Client{}, err
	}

	c.mu.Lock()
	c.currentClient = &registered
	c.mu.Unlock()
	c.cache(cachedClientKey, registered)

	c.logger.Info().Str("client_id", registered.ClientID).Msg("Registered push client")
	return registered, nil
}

// installID returns the persisted install id, creating one on first use.
func (c *Client) installID() (string, error) {
	data, err := c.kv.Get(installIDKey)
	if err != nil {
		return "", err
	}
	if len(data) > 0 {
		return string(data), nil
	}
	id := uuid.NewString()
	if err := c.kv.Set(installIDKey, []byte(id)); err != nil {
		return "", fmt.Errorf("failed to persist install id: %w", err)
	}
	return id, nil
}

// PendingCommands fetches the commands for a device that are still in the
// Pending state.
func (c *Client) PendingCommands(ctx context.Context, deviceID string) ([]models.DeviceCommand, error) {
	path := fmt.Sprintf("/devices/%s/commands?state=%s", url.PathEscape(deviceID), models.CommandStatePending)
	var cmds []models.DeviceCommand
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &cmds); err != nil {
		return nil, err
	}
	return cmds, nil
}

// UpdateCommandState requests a command state update. The caller is expected
// to have validated the transition; use Transition for the checked variant.
func (c *Client) UpdateCommandState(ctx context.Context, deviceID, commandID string, state models.CommandState, response map[string]any) (models.DeviceCommand, error) {
	path := fmt.Sprintf("/devices/%s/commands/%s", url.PathEscape(deviceID), url.PathEscape(commandID))
	var updated models.DeviceCommand
	body := models.CommandUpdateRequest{State: state, Response: response}
	if err := c.doJSON(ctx, http.MethodPut, path, body, &updated); err != nil {
		return models.DeviceCommand{}, err
	}
	return updated, nil
}

// Transition validates the requested state change locally and, when legal,
// sends the update. Illegal transitions never reach the network.
func (c *Client) Transition(ctx context.Context, cmd models.DeviceCommand, next models.CommandState, response map[string]any) (models.DeviceCommand, error) {
	if err := commands.ValidateClientTransition(cmd.State, next); err != nil {
		return models.DeviceCommand{}, err
	}
	return c.UpdateCommandState(ctx, cmd.DeviceID, cmd.CommandID, next, response)
}
