package auth

import (
	"context"
	"fmt"
	"time"

	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/desertthunder/sift/internal/models"
	"github.com/desertthunder/sift/internal/shared"
)

// Scopes requested at login.
var Scopes = []string{
	spotifyauth.ScopeUserReadPrivate,
	spotifyauth.ScopeUserReadEmail,
	spotifyauth.ScopeUserLibraryRead,
	spotifyauth.ScopePlaylistReadPrivate,
	spotifyauth.ScopePlaylistReadCollaborative,
	spotifyauth.ScopeUserReadPlaybackState,
	spotifyauth.ScopeUserModifyPlaybackState,
	spotifyauth.ScopeStreaming,
}

// Exchanger performs the token grants against the accounts service.
type Exchanger interface {
	AuthURL(state, verifier string) string
	Exchange(ctx context.Context, code, verifier string) (models.Credential, error)
	Refresh(ctx context.Context, refreshToken string) (models.Credential, error)
}

// OAuthExchanger implements [Exchanger] with [oauth2.Config].
type OAuthExchanger struct {
	config *oauth2.Config
	now    func() time.Time
}

// ExchangerOption configures an [OAuthExchanger].
type ExchangerOption func(*OAuthExchanger)

// WithEndpoint overrides the accounts service endpoints.
func WithEndpoint(authURL, tokenURL string) ExchangerOption {
	return func(e *OAuthExchanger) {
		e.config.Endpoint.AuthURL = authURL
		e.config.Endpoint.TokenURL = tokenURL
	}
}

// WithExchangerClock overrides the clock used when a token response has no expiry.
func WithExchangerClock(now func() time.Time) ExchangerOption {
	return func(e *OAuthExchanger) { e.now = now }
}

// NewOAuthExchanger builds a public-client exchanger. Client credentials are sent as form fields.
func NewOAuthExchanger(clientID, redirectURI string, opts ...ExchangerOption) *OAuthExchanger {
	e := &OAuthExchanger{
		config: &oauth2.Config{
			ClientID:    clientID,
			RedirectURL: redirectURI,
			Scopes:      Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   spotifyauth.AuthURL,
				TokenURL:  spotifyauth.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewVerifier returns a fresh PKCE code verifier.
func NewVerifier() string {
	return oauth2.GenerateVerifier()
}

// AuthURL returns the consent page URL with an S256 challenge derived from verifier.
func (e *OAuthExchanger) AuthURL(state, verifier string) string {
	return e.config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// Exchange trades an authorization code for a credential.
func (e *OAuthExchanger) Exchange(ctx context.Context, code, verifier string) (models.Credential, error) {
	tok, err := e.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return models.Credential{}, fmt.Errorf("%w: code exchange: %v", shared.ErrAuthFailed, err)
	}
	return e.credential(tok, ""), nil
}

// Refresh runs the refresh_token grant. A response without a refresh token keeps refreshToken.
func (e *OAuthExchanger) Refresh(ctx context.Context, refreshToken string) (models.Credential, error) {
	if refreshToken == "" {
		return models.Credential{}, fmt.Errorf("%w: no refresh token", shared.ErrAuthFailed)
	}

	// An empty access token is never valid, so the source always performs the grant.
	src := e.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return models.Credential{}, fmt.Errorf("%w: refresh: %v", shared.ErrAuthFailed, err)
	}
	return e.credential(tok, refreshToken), nil
}

func (e *OAuthExchanger) credential(tok *oauth2.Token, previousRefresh string) models.Credential {
	c := models.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry.UnixMilli(),
	}
	if c.RefreshToken == "" {
		c.RefreshToken = previousRefresh
	}
	if tok.Expiry.IsZero() {
		c.ExpiresAt = e.now().Add(time.Hour).UnixMilli()
	}
	return c
}
