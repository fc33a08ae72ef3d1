package cmd

import (
	"context"
	"fmt"
	"net/url"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jobforge/huntd/internal/config"
	"github.com/jobforge/huntd/internal/observability"
	"github.com/jobforge/huntd/internal/server"
	"github.com/jobforge/huntd/internal/server/handlers"
	"github.com/jobforge/huntd/pkg/drafts"
	"github.com/jobforge/huntd/pkg/handshake"
	"github.com/jobforge/huntd/pkg/jobstore"
	"github.com/jobforge/huntd/pkg/session"
	"github.com/jobforge/huntd/pkg/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestrator HTTP daemon",
	Long: `Start the HTTP daemon: session control endpoints for the UI, the job
collection API, and the bridge slots polled by the worker process.`,
	RunE: runServe,
}

var (
	servePort int
	serveHost string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (overrides config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	overrides := map[string]any{}
	if servePort > 0 || serveHost != "" {
		srvOverride := map[string]any{}
		if servePort > 0 {
			srvOverride["port"] = servePort
		}
		if serveHost != "" {
			srvOverride["host"] = serveHost
		}
		overrides["server"] = srvOverride
	}

	cfg, err := config.Load(ctx, overrides)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to load configuration", err)
	}

	log, err := observability.ServiceLogger(cfg.Logging.Level, cfg.Logging.Profile)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to build service logger", err)
	}
	defer func() { _ = log.Sync() }()

	d, err := buildDaemon(ctx, cfg, log)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to assemble daemon", err)
	}
	defer d.cleanup()

	log.Info("Starting huntd",
		zap.String("version", versionInfo.Version),
		zap.String("storage_backend", cfg.Storage.Backend))

	if err := d.srv.Start(ctx, cfg.Server.ShutdownTimeout); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "HTTP server failed", err)
	}

	log.Info("Shutdown complete")
	return nil
}

// daemon bundles the assembled collaborator graph.
type daemon struct {
	srv     *server.Server
	sess    *session.Session
	store   *jobstore.Store
	cleanup func()
}

// buildDaemon assembles the full collaborator graph from configuration.
func buildDaemon(ctx context.Context, cfg *config.Config, log *zap.Logger) (*daemon, error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*daemon, error) {
		cleanup()
		return nil, err
	}

	backend, err := buildStoreBackend(ctx, cfg)
	if err != nil {
		return fail(err)
	}

	store := jobstore.NewStore(backend, log.Named("jobstore"))
	if err := seedRetention(ctx, backend, cfg.Storage.RetentionDays, store); err != nil {
		return fail(err)
	}

	sweeper := jobstore.NewSweeper(store, cfg.Storage.SweepIntervalHours, log.Named("sweeper"))
	if err := sweeper.Start(ctx); err != nil {
		return fail(fmt.Errorf("start retention sweeper: %w", err))
	}
	cleanups = append(cleanups, sweeper.Stop)

	manager := worker.NewManager(worker.Config{
		Python:      cfg.Worker.Python,
		Script:      cfg.Worker.Script,
		Dir:         cfg.Worker.Dir,
		ProcessName: cfg.Worker.ProcessName,
	}, log.Named("worker"))

	channel := handshake.NewChannel(manager, cfg.Handshake.BridgeURL, cfg.Handshake.FallbackDir, nil, log.Named("handshake"))

	draftSaver, closeDrafts, err := buildDraftSaver(ctx, cfg, log)
	if err != nil {
		return fail(err)
	}
	if closeDrafts != nil {
		cleanups = append(cleanups, closeDrafts)
	}

	providers, err := config.LoadProviders(providersPath(cfg))
	if err != nil {
		return fail(err)
	}

	sess := session.New(store, manager, channel, draftSaver, session.Options{
		ExcludeURLPatterns: cfg.Search.ExcludeURLPatterns,
	}, log.Named("session"))

	remoteSync, err := buildRemoteSync(cfg)
	if err != nil {
		return fail(err)
	}
	mutator := jobstore.NewMutator(store, remoteSync, log.Named("jobstore"))

	handlers.InitHealthManager(versionInfo.Version)
	if mgr := handlers.GetHealthManager(); mgr != nil {
		mgr.RegisterChecker("storage", storageHealthChecker{backend: backend})
	}

	srv := server.New(cfg.Server.Host, cfg.Server.Port, server.Deps{
		Session:       sess,
		Store:         store,
		Mutator:       mutator,
		Log:           log.Named("http"),
		Version:       versionInfo.Version,
		BaseProviders: providers,
	})
	return &daemon{srv: srv, sess: sess, store: store, cleanup: cleanup}, nil
}

func buildStoreBackend(ctx context.Context, cfg *config.Config) (jobstore.Backend, error) {
	switch cfg.Storage.Backend {
	case "redis":
		backend, err := jobstore.NewRedisBackend(ctx, cfg.Storage.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect redis backend: %w", err)
		}
		return backend, nil
	case "", "file":
		return jobstore.NewFileBackend(cfg.Storage.DataDir), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// buildRemoteSync selects the mutation-mirroring strategy: an HTTP client
// against storage.sync_url when configured, otherwise fully local operation.
func buildRemoteSync(cfg *config.Config) (jobstore.RemoteSync, error) {
	syncURL := cfg.Storage.SyncURL
	if syncURL == "" {
		return jobstore.NopRemoteSync{}, nil
	}
	parsed, err := url.Parse(syncURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid storage sync url %q", syncURL)
	}
	return jobstore.NewHTTPRemoteSync(syncURL, nil), nil
}

// seedRetention applies the configured retention only when the store has no
// stored value, so API-driven changes survive restarts.
func seedRetention(ctx context.Context, backend jobstore.Backend, days int, store *jobstore.Store) error {
	if _, err := backend.Get(ctx, jobstore.KeyRetention); err == nil {
		return nil
	} else if !jobstore.IsKeyNotFound(err) {
		return fmt.Errorf("read retention setting: %w", err)
	}
	return store.SetRetention(ctx, days)
}

func buildDraftSaver(ctx context.Context, cfg *config.Config, log *zap.Logger) (drafts.Saver, func(), error) {
	var remote drafts.Saver
	if cfg.Drafts.APIURL != "" {
		if _, err := url.Parse(cfg.Drafts.APIURL); err != nil {
			return nil, nil, fmt.Errorf("invalid draft api url: %w", err)
		}
		remote = drafts.NewClient(cfg.Drafts.APIURL, log.Named("drafts"))
	}

	local, err := drafts.Open(ctx, cfg.Drafts.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open draft archive: %w", err)
	}

	saver := drafts.NewFallbackSaver(remote, local, log.Named("drafts"))
	return saver, func() { _ = local.Close() }, nil
}

func providersPath(cfg *config.Config) string {
	if cfg.Worker.Dir != "" {
		return filepath.Join(cfg.Worker.Dir, "providers.yaml")
	}
	return "providers.yaml"
}

// storageHealthChecker verifies the job store backend answers reads.
type storageHealthChecker struct {
	backend jobstore.Backend
}

func (c storageHealthChecker) CheckHealth(ctx context.Context) error {
	_, err := c.backend.Get(ctx, jobstore.KeySavedAt)
	if err != nil && !jobstore.IsKeyNotFound(err) {
		return err
	}
	return nil
}
