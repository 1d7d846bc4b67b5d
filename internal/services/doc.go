// Package services talks to the Spotify Web API.
//
// # Gateway
//
// [Gateway] is the single path for authenticated calls. Each attempt asks the token
// provider for a valid access token, so a refresh between retries is picked up.
// Responses with status 429 or 5xx are retried with exponential backoff and jitter,
// honoring a larger Retry-After. Other failures return an [*APIError] carrying the
// status, which unwraps to [shared.ErrTransientService] or [shared.ErrPermanentRequest].
//
// # Spotify endpoints
//
// [SpotifyClient] decodes the endpoints sift uses into [models] types. Paginated
// responses keep null and non-track entries as nil so callers can drop them.
package services
