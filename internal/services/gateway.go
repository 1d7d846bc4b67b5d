package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/sift/internal/shared"
)

const (
	DefaultBaseURL      = "https://api.spotify.com/v1"
	DefaultMaxRetries   = 3
	DefaultInitialDelay = time.Second
	maxJitter           = 200 * time.Millisecond
)

// TokenProvider supplies a valid access token for each attempt.
type TokenProvider interface {
	ValidAccessToken(ctx context.Context) (string, error)
}

// APIError is a non-2xx response.
type APIError struct {
	Status   int
	Method   string
	Endpoint string
	Message  string
	// Attempts is how many requests were sent before giving up.
	Attempts int
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.Endpoint, e.Status)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	return msg
}

func (e *APIError) Unwrap() error {
	if retryable(e.Status) {
		return shared.ErrTransientService
	}
	return shared.ErrPermanentRequest
}

// IsStatus reports whether err is an [*APIError] with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// Gateway performs authenticated JSON requests with retry.
type Gateway struct {
	baseURL      string
	client       *http.Client
	tokens       TokenProvider
	maxRetries   int
	initialDelay time.Duration
	limiter      *rate.Limiter
	sleep        func(ctx context.Context, d time.Duration) error
	jitter       func() time.Duration
	logger       *log.Logger
}

// GatewayOption configures a [Gateway].
type GatewayOption func(*Gateway)

// WithBaseURL points the gateway at another API root. Empty keeps the default.
func WithBaseURL(u string) GatewayOption {
	return func(g *Gateway) {
		if u != "" {
			g.baseURL = u
		}
	}
}

// WithHTTPClient replaces the HTTP client. Nil keeps the default.
func WithHTTPClient(c *http.Client) GatewayOption {
	return func(g *Gateway) {
		if c != nil {
			g.client = c
		}
	}
}

// WithRetry sets the number of additional attempts and the first backoff delay.
func WithRetry(maxRetries int, initialDelay time.Duration) GatewayOption {
	return func(g *Gateway) {
		if maxRetries >= 0 {
			g.maxRetries = maxRetries
		}
		if initialDelay > 0 {
			g.initialDelay = initialDelay
		}
	}
}

// WithRateLimit caps outgoing requests per second. Zero disables the limiter.
func WithRateLimit(perSecond float64) GatewayOption {
	return func(g *Gateway) {
		if perSecond > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithSleep replaces the backoff wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) GatewayOption {
	return func(g *Gateway) { g.sleep = sleep }
}

// WithJitter replaces the random jitter added to each backoff delay.
func WithJitter(jitter func() time.Duration) GatewayOption {
	return func(g *Gateway) { g.jitter = jitter }
}

// WithGatewayLogger replaces the component logger.
func WithGatewayLogger(l *log.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = l }
}

// NewGateway creates a Gateway that authenticates every attempt with tokens.
func NewGateway(tokens TokenProvider, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		baseURL:      DefaultBaseURL,
		client:       &http.Client{Timeout: 30 * time.Second},
		tokens:       tokens,
		maxRetries:   DefaultMaxRetries,
		initialDelay: DefaultInitialDelay,
		sleep:        sleepContext,
		jitter:       func() time.Duration { return rand.N(maxJitter) },
		logger:       shared.WithLogger(log.Default(), "component", "gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Backoff returns the delay before retry n, counting from 1, without jitter.
func (g *Gateway) Backoff(n int) time.Duration {
	return g.initialDelay << (n - 1)
}

// Do sends one logical request and decodes a JSON response into result when it is non-nil.
//
// body, when non-nil, is encoded as JSON. The returned status is that of the last response, or 0 when none arrived.
// Errors from the token provider are returned unchanged.
func (g *Gateway) Do(ctx context.Context, method, endpoint string, body, result any) (int, error) {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("%w: encode request body: %v", shared.ErrInvalidInput, err)
		}
		payload = data
	}

	for attempt := 1; ; attempt++ {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return 0, err
			}
		}

		token, err := g.tokens.ValidAccessToken(ctx)
		if err != nil {
			return 0, err
		}

		resp, err := g.send(ctx, method, endpoint, token, payload)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			return 0, fmt.Errorf("%w: %s %s: %v", shared.ErrAPIRequest, method, endpoint, err)
		}

		status := resp.StatusCode
		if status >= 200 && status < 300 {
			err := decodeBody(resp, result)
			return status, err
		}

		apiErr := &APIError{
			Status:   status,
			Method:   method,
			Endpoint: endpoint,
			Message:  errorMessage(resp),
			Attempts: attempt,
		}
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		resp.Body.Close()

		if !retryable(status) || attempt > g.maxRetries {
			return status, apiErr
		}

		delay := g.Backoff(attempt) + g.jitter()
		if status == http.StatusTooManyRequests && retryAfter > delay {
			delay = retryAfter
		}
		g.logger.Warn("retrying request", "method", method, "endpoint", endpoint, "status", status, "attempt", attempt, "delay", delay)

		if err := g.sleep(ctx, delay); err != nil {
			return status, err
		}
	}
}

func (g *Gateway) send(ctx context.Context, method, endpoint, token string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return g.client.Do(req)
}

func decodeBody(resp *http.Response, result any) error {
	defer resp.Body.Close()
	if result == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", shared.ErrAPIRequest, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", shared.ErrAPIRequest, err)
	}
	return nil
}

// errorMessage extracts the message from a {"error": {"message": ...}} body.
func errorMessage(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}

	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &envelope) == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return ""
}

// parseRetryAfter reads a delay in whole seconds. HTTP dates are ignored.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Get fetches endpoint and decodes the body as T. A 204 response returns nil.
func Get[T any](ctx context.Context, g *Gateway, endpoint string) (*T, error) {
	var v T
	status, err := g.Do(ctx, http.MethodGet, endpoint, nil, &v)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, nil
	}
	return &v, nil
}
