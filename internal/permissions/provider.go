package permissions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// expirySkew is how close to expiry a token may be before it is
// refreshed instead of handed to an executor.
const expirySkew = 60 * time.Second

// Credential is one per-(user, capability) token record.
type Credential struct {
	UserID       string
	Capability   string
	AppName      string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scopes       []string
	IsConnected  bool
	ConnectedAt  time.Time
	LastUsedAt   time.Time
}

// Store persists credentials. Get returns (nil, nil) when no record
// exists for the pair.
type Store interface {
	Get(ctx context.Context, userID, capability string) (*Credential, error)
	UpdateTokens(ctx context.Context, userID, capability, accessToken string, expiresAt time.Time) error
	TouchLastUsed(ctx context.Context, userID, capability string) error
	Disconnect(ctx context.Context, userID, capability string) error
	List(ctx context.Context, userID string) ([]Credential, error)
}

// Refresher exchanges a refresh token for a fresh access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (accessToken string, expiresAt time.Time, err error)
}

// Provider hands out valid access tokens for connected capabilities,
// refreshing near-expiry tokens and disconnecting the capability when a
// refresh fails. An empty return token means "capability unavailable",
// not an error; callers short-circuit with a reconnect prompt.
type Provider struct {
	store     Store
	refresher Refresher
	now       func() time.Time

	// Refresh is serialized per (user, capability) so two concurrent
	// requests cannot race the same refresh token through duplicate
	// exchanges.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewProvider creates a credential provider over the given store.
func NewProvider(store Store, refresher Refresher) *Provider {
	return &Provider{
		store:     store,
		refresher: refresher,
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
}

// SetClock overrides the time source. Intended for tests.
func (p *Provider) SetClock(now func() time.Time) {
	p.now = now
}

// HasPermission reports whether the user has the capability connected.
func (p *Provider) HasPermission(ctx context.Context, userID, capability string) (bool, error) {
	cred, err := p.store.Get(ctx, userID, capability)
	if err != nil {
		return false, fmt.Errorf("permission lookup failed: %w", err)
	}
	return cred != nil && cred.IsConnected, nil
}

// AccessToken returns a valid access token for the capability, or ""
// when the capability is disconnected or cannot be refreshed.
func (p *Provider) AccessToken(ctx context.Context, userID, capability string) (string, error) {
	lock := p.pairLock(userID, capability)
	lock.Lock()
	defer lock.Unlock()

	cred, err := p.store.Get(ctx, userID, capability)
	if err != nil {
		return "", fmt.Errorf("credential lookup failed: %w", err)
	}
	if cred == nil || !cred.IsConnected || cred.AccessToken == "" {
		return "", nil
	}

	if !cred.ExpiresAt.IsZero() && cred.ExpiresAt.Before(p.now().Add(expirySkew)) {
		return p.refresh(ctx, cred)
	}

	// Fresh enough: touch last-used and hand it out. A failed touch is
	// not worth failing the turn over.
	if err := p.store.TouchLastUsed(ctx, userID, capability); err != nil {
		log.Warn().Err(err).
			Str("user_id", userID).
			Str("capability", capability).
			Msg("Failed to record credential use")
	}

	return cred.AccessToken, nil
}

// refresh exchanges the refresh token and persists the result. A failed
// exchange disconnects the capability rather than leaving a stale token
// in circulation.
func (p *Provider) refresh(ctx context.Context, cred *Credential) (string, error) {
	if cred.RefreshToken == "" {
		return "", nil
	}

	accessToken, expiresAt, err := p.refresher.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		log.Error().Err(err).
			Str("user_id", cred.UserID).
			Str("capability", cred.Capability).
			Msg("Token refresh failed, disconnecting capability")

		if derr := p.store.Disconnect(ctx, cred.UserID, cred.Capability); derr != nil {
			log.Error().Err(derr).
				Str("user_id", cred.UserID).
				Str("capability", cred.Capability).
				Msg("Failed to disconnect capability after refresh failure")
		}
		return "", nil
	}

	if err := p.store.UpdateTokens(ctx, cred.UserID, cred.Capability, accessToken, expiresAt); err != nil {
		return "", fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	log.Debug().
		Str("user_id", cred.UserID).
		Str("capability", cred.Capability).
		Time("expires_at", expiresAt).
		Msg("Refreshed access token")

	return accessToken, nil
}

func (p *Provider) pairLock(userID, capability string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := userID + ":" + capability
	lock, ok := p.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[key] = lock
	}
	return lock
}
