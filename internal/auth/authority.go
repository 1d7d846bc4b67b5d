package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/desertthunder/sift/internal/models"
	"github.com/desertthunder/sift/internal/shared"
)

// Authority is the single owner of the stored credential.
type Authority struct {
	store     CredentialStore
	exchanger Exchanger
	logger    *log.Logger
	now       func() time.Time

	refresh singleflight.Group
	mu      sync.Mutex
	cached  *models.Credential
}

// AuthorityOption configures an [Authority].
type AuthorityOption func(*Authority)

// WithLogger sets the authority logger.
func WithLogger(l *log.Logger) AuthorityOption {
	return func(a *Authority) { a.logger = l }
}

// WithClock overrides the clock used for expiry checks.
func WithClock(now func() time.Time) AuthorityOption {
	return func(a *Authority) { a.now = now }
}

// NewAuthority creates an Authority over store and exchanger.
func NewAuthority(store CredentialStore, exchanger Exchanger, opts ...AuthorityOption) *Authority {
	a := &Authority{
		store:     store,
		exchanger: exchanger,
		logger:    shared.WithLogger(log.Default(), "component", "auth"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// PendingLogin carries what the callback needs to finish a PKCE login.
type PendingLogin struct {
	URL      string
	State    string
	Verifier string
}

// BeginLogin generates state and verifier and returns the consent URL.
func (a *Authority) BeginLogin() (PendingLogin, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return PendingLogin{}, err
	}
	verifier := NewVerifier()
	return PendingLogin{
		URL:      a.exchanger.AuthURL(state, verifier),
		State:    state,
		Verifier: verifier,
	}, nil
}

// Login exchanges an authorization code and persists the credential.
func (a *Authority) Login(ctx context.Context, code, verifier string) (models.Credential, error) {
	c, err := a.exchanger.Exchange(ctx, code, verifier)
	if err != nil {
		return models.Credential{}, err
	}
	if err := a.store.Save(ctx, c); err != nil {
		return models.Credential{}, fmt.Errorf("failed to save credential: %w", err)
	}
	a.setCached(&c)
	a.logger.Info("logged in", "expires", c.Expiry().Format(time.RFC3339))
	return c, nil
}

// Logout forgets the stored credential.
func (a *Authority) Logout(ctx context.Context) error {
	a.setCached(nil)
	if err := a.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}

// Credential returns the stored credential, or [shared.ErrUnauthenticated] when there is none.
func (a *Authority) Credential(ctx context.Context) (models.Credential, error) {
	c, err := a.current(ctx)
	if err != nil {
		return models.Credential{}, err
	}
	return *c, nil
}

// ValidAccessToken returns an access token that is not expiring soon, refreshing it first if needed.
//
// Concurrent callers that need a refresh share one grant. A failed grant returns
// [shared.ErrReauthenticationRequired].
//
// A refreshed credential that cannot be saved is still returned and cached for
// the life of the Authority. The failure is logged at warn level. A later
// process then starts from the previously stored refresh token, which the
// accounts service may already have rotated, and has to log in again.
func (a *Authority) ValidAccessToken(ctx context.Context) (string, error) {
	c, err := a.current(ctx)
	if err != nil {
		return "", err
	}
	if !c.ExpiringSoon(a.now()) {
		return c.AccessToken, nil
	}

	v, err, joined := a.refresh.Do("refresh", func() (any, error) {
		return a.refreshCredential(context.WithoutCancel(ctx))
	})
	if err != nil {
		return "", err
	}
	if joined {
		a.logger.Debug("joined in-flight token refresh")
	}
	return v.(*models.Credential).AccessToken, nil
}

func (a *Authority) refreshCredential(ctx context.Context) (*models.Credential, error) {
	// A refresh that finished just before this call already replaced the credential.
	c, err := a.current(ctx)
	if err != nil {
		return nil, err
	}
	if !c.ExpiringSoon(a.now()) {
		return c, nil
	}

	a.logger.Debug("refreshing access token", "expires", c.Expiry().Format(time.RFC3339))
	fresh, err := a.exchanger.Refresh(ctx, c.RefreshToken)
	if err != nil {
		a.logger.Warn("token refresh failed", "error", err)
		return nil, fmt.Errorf("%w: %v", shared.ErrReauthenticationRequired, err)
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = c.RefreshToken
	}

	if err := a.store.Save(ctx, fresh); err != nil {
		if errors.Is(err, shared.ErrStorageQuotaExceeded) {
			a.logger.Warn("storage full, refreshed credential kept in memory only", "error", err)
		} else {
			a.logger.Warn("failed to persist refreshed credential", "error", err)
		}
	}
	a.setCached(&fresh)
	return &fresh, nil
}

func (a *Authority) current(ctx context.Context) (*models.Credential, error) {
	a.mu.Lock()
	cached := a.cached
	a.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	c, err := a.store.Load(ctx)
	if err != nil {
		a.logger.Warn("failed to load credential", "error", err)
		return nil, fmt.Errorf("%w: %v", shared.ErrUnauthenticated, err)
	}
	if c == nil || (c.AccessToken == "" && c.RefreshToken == "") {
		return nil, shared.ErrUnauthenticated
	}

	a.setCached(c)
	return c, nil
}

func (a *Authority) setCached(c *models.Credential) {
	a.mu.Lock()
	a.cached = c
	a.mu.Unlock()
}
