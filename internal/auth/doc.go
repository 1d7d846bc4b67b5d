// Package auth owns the OAuth credential lifecycle.
//
// The [Authority] hands out valid access tokens, refreshing the stored [models.Credential]
// when it is within [models.CredentialLeeway] of expiry. Concurrent callers share one
// refresh. The [OAuthExchanger] talks to the Spotify accounts service using the PKCE
// authorization code flow, so no client secret is configured.
package auth
