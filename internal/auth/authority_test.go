package auth

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/sift/internal/models"
	"github.com/desertthunder/sift/internal/shared"
	mock "github.com/desertthunder/sift/internal/testing"
)

type fakeExchanger struct {
	refreshes atomic.Int32
	gate      chan struct{}
	result    models.Credential
	err       error
	lastToken atomic.Value
}

func (f *fakeExchanger) AuthURL(state, verifier string) string {
	return "https://accounts.example/authorize?state=" + state
}

func (f *fakeExchanger) Exchange(ctx context.Context, code, verifier string) (models.Credential, error) {
	if f.err != nil {
		return models.Credential{}, f.err
	}
	return f.result, nil
}

func (f *fakeExchanger) Refresh(ctx context.Context, refreshToken string) (models.Credential, error) {
	f.refreshes.Add(1)
	f.lastToken.Store(refreshToken)
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return models.Credential{}, f.err
	}
	return f.result, nil
}

func TestAuthority(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	ctx := context.Background()

	t.Run("no stored credential", func(t *testing.T) {
		a := NewAuthority(mock.NewMemoryCredentialStore(nil), &fakeExchanger{}, WithClock(clock))

		if _, err := a.ValidAccessToken(ctx); !errors.Is(err, shared.ErrUnauthenticated) {
			t.Errorf("expected ErrUnauthenticated, got %v", err)
		}
	})

	t.Run("fresh credential is returned without refresh", func(t *testing.T) {
		ex := &fakeExchanger{}
		store := mock.NewMemoryCredentialStore(&models.Credential{
			AccessToken: "fresh", RefreshToken: "r", ExpiresAt: now.Add(time.Hour).UnixMilli(),
		})
		a := NewAuthority(store, ex, WithClock(clock))

		tok, err := a.ValidAccessToken(ctx)
		if err != nil || tok != "fresh" {
			t.Fatalf("expected fresh token, got %q err=%v", tok, err)
		}
		if ex.refreshes.Load() != 0 {
			t.Errorf("expected no refresh, got %d", ex.refreshes.Load())
		}
	})

	t.Run("concurrent callers share one refresh", func(t *testing.T) {
		ex := &fakeExchanger{
			gate:   make(chan struct{}),
			result: models.Credential{AccessToken: "new", RefreshToken: "r2", ExpiresAt: now.Add(time.Hour).UnixMilli()},
		}
		store := mock.NewMemoryCredentialStore(&models.Credential{
			AccessToken: "old", RefreshToken: "r1", ExpiresAt: now.Add(time.Minute).UnixMilli(),
		})
		a := NewAuthority(store, ex, WithClock(clock))

		const callers = 8
		var wg sync.WaitGroup
		var started sync.WaitGroup
		tokens := make([]string, callers)
		errs := make([]error, callers)
		for i := range callers {
			wg.Add(1)
			started.Add(1)
			go func() {
				defer wg.Done()
				started.Done()
				tokens[i], errs[i] = a.ValidAccessToken(ctx)
			}()
		}
		started.Wait()
		time.Sleep(20 * time.Millisecond)
		close(ex.gate)
		wg.Wait()

		for i := range callers {
			if errs[i] != nil || tokens[i] != "new" {
				t.Errorf("caller %d got %q err=%v", i, tokens[i], errs[i])
			}
		}
		if n := ex.refreshes.Load(); n != 1 {
			t.Errorf("expected exactly one refresh, got %d", n)
		}
		if store.Saves() != 1 {
			t.Errorf("expected one save, got %d", store.Saves())
		}

		if tok, _ := a.ValidAccessToken(ctx); tok != "new" || ex.refreshes.Load() != 1 {
			t.Errorf("late caller should reuse refreshed credential, got %q after %d refreshes", tok, ex.refreshes.Load())
		}
	})

	t.Run("refresh keeps previous refresh token when omitted", func(t *testing.T) {
		ex := &fakeExchanger{
			result: models.Credential{AccessToken: "new", ExpiresAt: now.Add(time.Hour).UnixMilli()},
		}
		store := mock.NewMemoryCredentialStore(&models.Credential{
			AccessToken: "old", RefreshToken: "keep-me", ExpiresAt: now.UnixMilli(),
		})
		a := NewAuthority(store, ex, WithClock(clock))

		if _, err := a.ValidAccessToken(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		saved, _ := store.Load(ctx)
		if saved.RefreshToken != "keep-me" {
			t.Errorf("expected refresh token to be kept, got %q", saved.RefreshToken)
		}
		if ex.lastToken.Load() != "keep-me" {
			t.Errorf("expected refresh grant with stored token, got %v", ex.lastToken.Load())
		}
	})

	t.Run("refresh failure requires reauthentication", func(t *testing.T) {
		ex := &fakeExchanger{err: errors.New("invalid_grant")}
		store := mock.NewMemoryCredentialStore(&models.Credential{
			AccessToken: "old", RefreshToken: "r", ExpiresAt: now.UnixMilli(),
		})
		a := NewAuthority(store, ex, WithClock(clock))

		if _, err := a.ValidAccessToken(ctx); !errors.Is(err, shared.ErrReauthenticationRequired) {
			t.Errorf("expected ErrReauthenticationRequired, got %v", err)
		}
	})

	t.Run("save failure keeps the refreshed token", func(t *testing.T) {
		ex := &fakeExchanger{
			result: models.Credential{AccessToken: "new", RefreshToken: "r2", ExpiresAt: now.Add(time.Hour).UnixMilli()},
		}
		store := mock.NewMemoryCredentialStore(&models.Credential{
			AccessToken: "old", RefreshToken: "r", ExpiresAt: now.UnixMilli(),
		})
		store.SaveErr = shared.ErrStorageQuotaExceeded
		var buf bytes.Buffer
		a := NewAuthority(store, ex, WithClock(clock), WithLogger(log.New(&buf)))

		tok, err := a.ValidAccessToken(ctx)
		if err != nil || tok != "new" {
			t.Errorf("expected new token despite save failure, got %q err=%v", tok, err)
		}
		if !strings.Contains(buf.String(), "kept in memory only") {
			t.Errorf("expected quota warning, got %q", buf.String())
		}

		tok, err = a.ValidAccessToken(ctx)
		if err != nil || tok != "new" {
			t.Errorf("expected cached token on second call, got %q err=%v", tok, err)
		}
		if n := ex.refreshes.Load(); n != 1 {
			t.Errorf("expected 1 refresh, got %d", n)
		}
	})

	t.Run("login and logout", func(t *testing.T) {
		ex := &fakeExchanger{
			result: models.Credential{AccessToken: "a", RefreshToken: "r", ExpiresAt: now.Add(time.Hour).UnixMilli()},
		}
		store := mock.NewMemoryCredentialStore(nil)
		a := NewAuthority(store, ex, WithClock(clock))

		pending, err := a.BeginLogin()
		if err != nil {
			t.Fatalf("BeginLogin failed: %v", err)
		}
		if pending.State == "" || len(pending.Verifier) < 43 {
			t.Errorf("unexpected pending login %+v", pending)
		}

		if _, err := a.Login(ctx, "code", pending.Verifier); err != nil {
			t.Fatalf("login failed: %v", err)
		}
		if c, err := a.Credential(ctx); err != nil || c.AccessToken != "a" {
			t.Errorf("expected stored credential, got %+v err=%v", c, err)
		}

		if err := a.Logout(ctx); err != nil {
			t.Fatalf("logout failed: %v", err)
		}
		if _, err := a.ValidAccessToken(ctx); !errors.Is(err, shared.ErrUnauthenticated) {
			t.Errorf("expected ErrUnauthenticated after logout, got %v", err)
		}
	})
}
