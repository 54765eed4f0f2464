// Package provider is the thin client for a managed conferencing provider.
// In provider mode the platform delegates media transport to the provider's
// infrastructure and this package only mints access tokens and drives the
// provider's room API; no SDP ever passes through our relay.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/patrickmn/go-cache"

	"github.com/EduMesh/ClassLink/pkg/config"
	apperrors "github.com/EduMesh/ClassLink/pkg/errors"
)

const (
	requestTimeout = 10 * time.Second

	// Provider tokens are valid for an hour; refresh well before expiry.
	tokenTTL = 45 * time.Minute
)

// RoomInfo describes a provider-side room.
type RoomInfo struct {
	Name      string `json:"name"`
	SID       string `json:"sid"`
	CreatedAt int64  `json:"createdAt"`
}

type tokenRequest struct {
	Identity string `json:"identity"`
	IsHost   bool   `json:"isHost"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Client calls the managed provider's HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	tokens  *cache.Cache
}

// NewClient builds a client from the provider section of the config.
func NewClient(cfg config.ProviderConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, apperrors.NewAppError(apperrors.ErrCodeInvalidConfig, "provider base URL is not set")
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: requestTimeout},
		tokens:  cache.New(tokenTTL, 10*time.Minute),
	}, nil
}

// EnsureRoom creates the provider-side room if it does not exist yet.
// Creation is idempotent on the provider, so concurrent callers are safe.
func (c *Client) EnsureRoom(ctx context.Context, roomName string) (*RoomInfo, error) {
	var info RoomInfo
	err := requests.
		URL(c.baseURL).
		Path("/v1/rooms").
		Header("Authorization", "Bearer "+c.apiKey).
		Client(c.http).
		BodyJSON(map[string]string{"name": roomName}).
		ToJSON(&info).
		Fetch(ctx)
	if err != nil {
		return nil, c.mapError("ensure room", err)
	}
	return &info, nil
}

// MintToken returns an access token admitting identity to roomName. Tokens
// are cached until close to expiry.
func (c *Client) MintToken(ctx context.Context, roomName, identity string, isHost bool) (string, error) {
	key := roomName + "/" + identity
	if cached, ok := c.tokens.Get(key); ok {
		return cached.(string), nil
	}

	var resp tokenResponse
	err := requests.
		URL(c.baseURL).
		Pathf("/v1/rooms/%s/tokens", roomName).
		Header("Authorization", "Bearer "+c.apiKey).
		Client(c.http).
		BodyJSON(tokenRequest{Identity: identity, IsHost: isHost}).
		ToJSON(&resp).
		Fetch(ctx)
	if err != nil {
		return "", c.mapError("mint token", err)
	}
	c.tokens.Set(key, resp.Token, cache.DefaultExpiration)
	return resp.Token, nil
}

// Subscribe attaches identity to a remote participant's media in roomName.
func (c *Client) Subscribe(ctx context.Context, roomName, identity, remote string) error {
	err := requests.
		URL(c.baseURL).
		Pathf("/v1/rooms/%s/subscriptions", roomName).
		Header("Authorization", "Bearer "+c.apiKey).
		Client(c.http).
		BodyJSON(map[string]string{"identity": identity, "remote": remote}).
		Fetch(ctx)
	if err != nil {
		return c.mapError("subscribe", err)
	}
	return nil
}

// Unsubscribe detaches identity from a remote participant's media.
func (c *Client) Unsubscribe(ctx context.Context, roomName, identity, remote string) error {
	err := requests.
		URL(c.baseURL).
		Pathf("/v1/rooms/%s/subscriptions", roomName).
		Header("Authorization", "Bearer "+c.apiKey).
		Client(c.http).
		BodyJSON(map[string]string{"identity": identity, "remote": remote}).
		Method(http.MethodDelete).
		Fetch(ctx)
	if err != nil {
		return c.mapError("unsubscribe", err)
	}
	return nil
}

// SetVideoSource tells the provider which video source identity publishes,
// e.g. "camera" or "screen". The provider swaps the track on its side, so
// peers never renegotiate.
func (c *Client) SetVideoSource(ctx context.Context, roomName, identity, source string) error {
	err := requests.
		URL(c.baseURL).
		Pathf("/v1/rooms/%s/participants/%s/video-source", roomName, identity).
		Header("Authorization", "Bearer "+c.apiKey).
		Client(c.http).
		BodyJSON(map[string]string{"source": source}).
		Method(http.MethodPut).
		Fetch(ctx)
	if err != nil {
		return c.mapError("set video source", err)
	}
	return nil
}

func (c *Client) mapError(op string, err error) error {
	if requests.HasStatusErr(err, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity) {
		return apperrors.WrapError(apperrors.ErrCodeProviderRejected, fmt.Errorf("%s: %w", op, err))
	}
	return apperrors.WrapError(apperrors.ErrCodeProviderUnavailable, fmt.Errorf("%s: %w", op, err))
}
