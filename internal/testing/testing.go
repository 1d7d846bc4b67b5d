// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/sift/internal/models"
)

// StaticTokens is a token provider that returns a fixed token or error and counts calls.
type StaticTokens struct {
	Token string
	Err   error
	calls atomic.Int32
}

func (s *StaticTokens) ValidAccessToken(context.Context) (string, error) {
	s.calls.Add(1)
	return s.Token, s.Err
}

// Calls reports how many tokens were requested.
func (s *StaticTokens) Calls() int { return int(s.calls.Load()) }

// MemoryCredentialStore is an in-memory credential store.
type MemoryCredentialStore struct {
	mu      sync.Mutex
	cred    *models.Credential
	SaveErr error
	saves   int
}

func NewMemoryCredentialStore(c *models.Credential) *MemoryCredentialStore {
	return &MemoryCredentialStore{cred: c}
}

func (m *MemoryCredentialStore) Load(context.Context) (*models.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cred == nil {
		return nil, nil
	}
	c := *m.cred
	return &c, nil
}

func (m *MemoryCredentialStore) Save(_ context.Context, c models.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.saves++
	m.cred = &c
	return nil
}

func (m *MemoryCredentialStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = nil
	return nil
}

// Saves reports how many successful saves happened.
func (m *MemoryCredentialStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Clock is a settable clock for staleness tests.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{now: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// RecordingSleeper records requested delays instead of sleeping.
type RecordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *RecordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *RecordingSleeper) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
