package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/sift/internal/repositories"
	"github.com/desertthunder/sift/internal/server"
	"github.com/desertthunder/sift/internal/shared"
)

const defaultLoginTimeout = 5 * time.Minute

// AuthLogin runs the PKCE authorization code flow.
//
// Starts a loopback HTTP server for the redirect, opens the browser for consent and stores the resulting credential.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	if err := r.services(); err != nil {
		return err
	}

	pending, err := r.authority.BeginLogin()
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
	}

	login := func(ctx context.Context, code string) error {
		_, err := r.authority.Login(ctx, code, pending.Verifier)
		return err
	}
	srv, err := server.NewServer(r.config.Credentials.Spotify.RedirectURI, pending.State, login,
		shared.WithLogger(r.logger, "component", "callback"))
	if err != nil {
		return err
	}
	if addr := r.listenAddr(); addr != "" {
		srv.ListenOn(addr)
	}

	r.writePlain("Opening Spotify authorization in your browser.\n")
	r.writePlain("If it does not open, visit:\n\n  %s\n\n", pending.URL)
	if !cmd.Bool("no-browser") {
		if err := r.openBrowser(pending.URL); err != nil {
			r.logger.Warn("could not open browser", "error", err)
		}
	}

	timeout := cmd.Duration("timeout")
	if timeout <= 0 {
		timeout = defaultLoginTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := srv.Wait(waitCtx); err != nil {
		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w: no callback within %s", shared.ErrTimeout, timeout)
		}
		return fmt.Errorf("login did not complete: %w", err)
	}

	r.writePlain("✓ Signed in\n")
	if res, err := r.sync.FetchProfile(ctx, true); err == nil {
		p := res.Records[0]
		r.writePlain("Account: %s (%s)\n", p.DisplayName, p.ID)
		r.warn(res.Warning)
	} else {
		r.logger.Warn("could not load profile", "error", err)
	}
	return nil
}

// listenAddr is the configured callback listen address, or "" to use the redirect URI's host.
func (r *Runner) listenAddr() string {
	s := r.config.Server
	if s.Host == "" || s.Port <= 0 {
		return ""
	}
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// AuthLogout removes the stored credential and the cached profile.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	if err := r.services(); err != nil {
		return err
	}
	if err := r.authority.Logout(ctx); err != nil {
		return err
	}
	if _, err := r.kv.Clear(ctx, repositories.StoreProfile); err != nil {
		r.logger.Warn("failed to clear cached profile", "error", err)
	}
	return r.writePlain("✓ Signed out\n")
}

// AuthStatus reports the signed-in account and when the access token expires.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	if err := r.services(); err != nil {
		return err
	}

	cred, err := r.authority.Credential(ctx)
	if err != nil {
		return err
	}

	res, err := r.sync.FetchProfile(ctx, false)
	if err != nil {
		return err
	}
	p := res.Records[0]

	r.writePlainHeader("Spotify session")
	r.writePlain("Account:  %s (%s)\n", p.DisplayName, p.ID)
	if p.Product != "" {
		r.writePlain("Plan:     %s\n", p.Product)
	}
	expiry := cred.Expiry()
	if time.Now().After(expiry) {
		r.writePlain("Token:    expired %s ago, refreshed on next request\n", time.Since(expiry).Round(time.Second))
	} else {
		r.writePlain("Token:    valid until %s\n", expiry.Local().Format(time.DateTime))
	}
	r.warn(res.Warning)
	return nil
}
