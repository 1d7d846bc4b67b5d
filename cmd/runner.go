package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/sift/internal/auth"
	"github.com/desertthunder/sift/internal/player"
	"github.com/desertthunder/sift/internal/repositories"
	"github.com/desertthunder/sift/internal/services"
	"github.com/desertthunder/sift/internal/shared"
	"github.com/desertthunder/sift/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The database, token authority, API client and synchronizer are built on first use so that
// commands like setup run without credentials.
type Runner struct {
	config      *shared.Config
	configPath  string
	httpClient  *http.Client
	logger      *log.Logger
	output      io.Writer
	openBrowser func(string) error
	exchanger   auth.Exchanger

	once      sync.Once
	initErr   error
	db        *sql.DB
	ownsDB    bool
	kv        *repositories.KVRepository
	authority *auth.Authority
	client    *services.SpotifyClient
	sync      *tasks.Synchronizer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config      *shared.Config
	ConfigPath  string
	HTTPClient  *http.Client
	Logger      *log.Logger
	Output      io.Writer
	OpenBrowser func(string) error
	// DB replaces the configured database file.
	DB *sql.DB
	// Exchanger replaces the OAuth exchanger built from the config.
	Exchanger auth.Exchanger
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = shared.OpenBrowser
	}

	return &Runner{
		config:      opts.Config,
		configPath:  opts.ConfigPath,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
		output:      opts.Output,
		openBrowser: opts.OpenBrowser,
		exchanger:   opts.Exchanger,
		db:          opts.DB,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, libraryCommand, playlistsCommand, playerCommand, cacheCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the logger used by the runner and components it builds afterwards.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// loadConfig reads the --config file when it exists. Missing files keep the defaults.
func (r *Runner) loadConfig(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("config")
	if path == "" {
		return ctx, nil
	}
	r.configPath = path

	if _, err := os.Stat(path); err == nil {
		config, err := shared.LoadConfig(path)
		if err != nil {
			return ctx, err
		}
		r.config = config
	} else if err := shared.ApplyEnv(r.config); err != nil {
		return ctx, err
	}

	shared.SetLogLevel(r.logger, shared.ParseLogLevel(r.config.Log.Level))
	return ctx, nil
}

// store opens the database and runs pending migrations.
func (r *Runner) store() (*repositories.KVRepository, error) {
	if r.kv != nil {
		return r.kv, nil
	}

	if r.db == nil {
		db, err := shared.NewDatabase(r.config.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %w", shared.ErrStorage, r.config.Database.Path, err)
		}
		shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
		r.db, r.ownsDB = db, true
	}

	if err := shared.RunMigrations(r.db); err != nil {
		return nil, err
	}
	if mb := r.config.Database.MaxSizeMB; mb > 0 {
		if err := shared.LimitDatabaseSize(r.db, int64(mb)<<20); err != nil {
			r.logger.Warn("could not apply database size limit", "error", err)
		}
	}

	r.kv = repositories.NewKVRepository(r.db, repositories.WithLogger(shared.WithLogger(r.logger, "component", "store")))
	return r.kv, nil
}

// services builds the authenticated stack once.
func (r *Runner) services() error {
	r.once.Do(func() {
		kv, err := r.store()
		if err != nil {
			r.initErr = err
			return
		}

		exchanger := r.exchanger
		if exchanger == nil {
			if err := r.config.Validate(); err != nil {
				r.initErr = err
				return
			}
			exchanger = auth.NewOAuthExchanger(r.config.Credentials.Spotify.ClientID, r.config.Credentials.Spotify.RedirectURI)
		}

		r.authority = auth.NewAuthority(auth.NewKVCredentialStore(kv), exchanger,
			auth.WithLogger(shared.WithLogger(r.logger, "component", "auth")))

		gw := services.NewGateway(r.authority,
			services.WithBaseURL(r.config.Gateway.BaseURL),
			services.WithHTTPClient(r.httpClient),
			services.WithRetry(r.config.Gateway.MaxRetries, r.config.Gateway.InitialDelay),
			services.WithRateLimit(r.config.Gateway.RequestsPerSecond),
			services.WithGatewayLogger(shared.WithLogger(r.logger, "component", "gateway")),
		)
		r.client = services.NewSpotifyClient(gw)

		r.sync = tasks.NewSynchronizer(r.client, kv,
			tasks.WithPageSize(r.config.Sync.PageSize),
			tasks.WithTTLs(r.config.Sync.PlaylistTTL, r.config.Sync.PlaylistTracksTTL),
			tasks.WithLogger(shared.WithLogger(r.logger, "component", "sync")),
		)
	})
	return r.initErr
}

// reconciler builds a playback reconciler. runtime attaches the configured Connect receiver.
func (r *Runner) reconciler(runtime bool, opts ...player.Option) (*player.Reconciler, error) {
	if err := r.services(); err != nil {
		return nil, err
	}

	cfg := r.config.Player
	logger := shared.WithLogger(r.logger, "component", "player")
	base := []player.Option{
		player.WithDeviceName(cfg.DeviceName),
		player.WithTimings(cfg.ReadyTimeout, cfg.PollInterval, cfg.FastPollInterval, cfg.FastPollDuration, cfg.RetryDelay),
		player.WithLogger(logger),
	}
	if runtime {
		base = append(base, player.WithRuntime(player.NewDeviceRuntime(r.client, cfg.DeviceName, 0, logger)))
	}
	return player.NewReconciler(r.client, append(base, opts...)...), nil
}

// Close releases the database when the runner opened it.
func (r *Runner) Close() error {
	if r.db != nil && r.ownsDB {
		return r.db.Close()
	}
	return nil
}

// errHandled marks an error that was already explained to the user.
var errHandled = errors.New("handled")

// handleError turns authentication failures into a login instruction and returns [errHandled] for them.
// Other errors are returned unchanged.
func (r *Runner) handleError(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, shared.ErrReauthenticationRequired):
		if r.authority != nil {
			if cerr := r.authority.Logout(ctx); cerr != nil {
				r.logger.Warn("failed to clear stored credential", "error", cerr)
			}
		}
		r.writePlain("Your Spotify session has expired. Run `sift auth login` to sign in again.\n")
		return errHandled
	case errors.Is(err, shared.ErrUnauthenticated):
		r.writePlain("Not signed in. Run `sift auth login` first.\n")
		return errHandled
	case errors.Is(err, shared.ErrMissingCredentials):
		r.writePlain("Spotify client id missing. Set credentials.spotify.client_id in %s or SIFT_SPOTIFY_CLIENT_ID.\n", r.configName())
		return errHandled
	default:
		return err
	}
}

// warn prints a storage warning. The command's result is still valid.
func (r *Runner) warn(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, shared.ErrStorageQuotaExceeded) {
		r.writePlain("Warning: local cache is full, results were not saved (%v). Run `sift cache clear` to free space.\n", err)
		return
	}
	r.writePlain("Warning: results were not saved locally (%v).\n", err)
}

func (r *Runner) configName() string {
	if r.configPath == "" {
		return "config.toml"
	}
	return r.configPath
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
