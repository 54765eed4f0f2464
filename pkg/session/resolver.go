package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/patrickmn/go-cache"

	apperrors "github.com/EduMesh/ClassLink/pkg/errors"
)

// Resolver answers the two questions the relay asks the business API before
// admitting a connection: is this session live, and is this user its host.
// The registry itself never persists anything; the authoritative record of
// who should be in a session lives behind this interface.
type Resolver interface {
	ValidateSession(ctx context.Context, sessionID string) error
	IsHost(ctx context.Context, sessionID, userID string) (bool, error)
}

// sessionStatus mirrors the business API response for a session lookup.
type sessionStatus struct {
	ID         string `json:"id"`
	Active     bool   `json:"active"`
	HostUserID string `json:"hostUserId"`
}

// HTTPResolver resolves sessions against the platform's business API and
// caches results briefly so a classroom of joiners does not stampede it.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
	cache   *cache.Cache
}

// NewHTTPResolver creates a resolver against the given API base URL.
func NewHTTPResolver(baseURL string) *HTTPResolver {
	return &HTTPResolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		cache:   cache.New(30*time.Second, time.Minute),
	}
}

func (r *HTTPResolver) lookup(ctx context.Context, sessionID string) (*sessionStatus, error) {
	if cached, ok := r.cache.Get(sessionID); ok {
		return cached.(*sessionStatus), nil
	}
	var status sessionStatus
	err := requests.URL(r.baseURL).
		Pathf("/internal/sessions/%s", sessionID).
		Client(r.client).
		ToJSON(&status).
		Fetch(ctx)
	if err != nil {
		if requests.HasStatusErr(err, http.StatusNotFound) {
			return nil, apperrors.NewAppErrorf(apperrors.ErrCodeSessionNotFound, "session %s not found", sessionID)
		}
		return nil, apperrors.WrapError(apperrors.ErrCodeInternal, fmt.Errorf("session lookup: %w", err))
	}
	r.cache.SetDefault(sessionID, &status)
	return &status, nil
}

// ValidateSession returns nil when the session exists and is active.
func (r *HTTPResolver) ValidateSession(ctx context.Context, sessionID string) error {
	status, err := r.lookup(ctx, sessionID)
	if err != nil {
		return err
	}
	if !status.Active {
		return apperrors.NewAppErrorf(apperrors.ErrCodeSessionInactive, "session %s is not active", sessionID)
	}
	return nil
}

// IsHost reports whether userID hosts the session. Guests (empty userID) are
// never hosts.
func (r *HTTPResolver) IsHost(ctx context.Context, sessionID, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	status, err := r.lookup(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return status.HostUserID == userID, nil
}

// StaticResolver admits a fixed set of sessions. Used in development and
// tests, and as the permissive default when no business API is configured.
type StaticResolver struct {
	// Hosts maps sessionID to its host userID. A nil map admits every
	// session and trusts the caller's host flag.
	Hosts map[string]string
}

// ValidateSession admits any session when no set is configured.
func (r *StaticResolver) ValidateSession(_ context.Context, sessionID string) error {
	if r.Hosts == nil {
		return nil
	}
	if _, ok := r.Hosts[sessionID]; !ok {
		return apperrors.NewAppErrorf(apperrors.ErrCodeSessionNotFound, "session %s not found", sessionID)
	}
	return nil
}

// IsHost checks the configured host map; with none configured it reports
// false so the relay falls back to the join request's flag.
func (r *StaticResolver) IsHost(_ context.Context, sessionID, userID string) (bool, error) {
	if r.Hosts == nil || userID == "" {
		return false, nil
	}
	return r.Hosts[sessionID] == userID, nil
}
