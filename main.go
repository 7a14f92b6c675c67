package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"fitsync/internal/auth"
	"fitsync/internal/config"
	"fitsync/internal/logx"
	"fitsync/internal/service"
	"fitsync/internal/store"
	"fitsync/internal/strava"
)

var version = "dev"

const usage = `usage: fitsync <command> [flags]

commands:
  serve       run the HTTP API and the daily scheduler
  sync        sync one user now (--user)
  sync-all    run one scheduled batch for every connected user
  connect     connect a user to Strava through a local callback (--user)
  status      show connection and last sync per user
  export      write a user's activities as CSV (--user)
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprint(os.Stderr, usage)
		if len(args) == 0 {
			return errors.New("missing command")
		}
		return nil
	}
	cmd, rest := args[0], args[1:]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		configDir, _ := config.GetConfigDir()
		return fmt.Errorf("invalid config (see %s/config.json or environment): %w", configDir, err)
	}

	logger := logx.New(logx.Config{
		Service: "fitsync",
		Version: version,
		Env:     cfg.Log.Env,
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
	})

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	switch cmd {
	case "serve":
		return a.serve(ctx, rest)
	case "sync":
		return a.syncUser(ctx, rest)
	case "sync-all":
		return a.syncAll(ctx, rest)
	case "connect":
		return a.connect(ctx, rest)
	case "status":
		return a.status(ctx, rest)
	case "export":
		return a.export(ctx, rest)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// app holds the wired components shared by every command
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *store.DB
	redis  *redis.Client

	resolver  *auth.Resolver
	flow      *auth.Flow
	syncer    *service.SyncService
	scheduler *service.Scheduler
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, db: db}

	// Per-user locks live in Redis when several processes share the database
	var locker service.Locker = service.NewMemoryLocker()
	if cfg.Sync.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.Sync.RedisAddr})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Sync.RedisAddr, err)
		}
		locker = service.NewRedisLocker(a.redis)
	}

	httpClient := &http.Client{Timeout: cfg.Strava.HTTPTimeout.Duration}
	endpoints := auth.Endpoints{AuthURL: cfg.Strava.AuthURL, TokenURL: cfg.Strava.TokenURL}

	a.resolver = auth.NewResolver(auth.AppCredentials{
		ClientID:     cfg.Strava.ClientID,
		ClientSecret: cfg.Strava.ClientSecret,
	}, db)
	a.flow = auth.NewFlow(endpoints, a.resolver, db, httpClient)

	refresher := auth.NewRefresher(endpoints, db, httpClient, cfg.Strava.RefreshSkew.Duration)
	client := strava.NewClient(cfg.Strava.APIBaseURL, httpClient, strava.NewRateLimiter(strava.DefaultMinInterval))

	a.syncer = service.NewSyncService(db, refresher, client, locker, service.SyncOptions{
		Lookback: cfg.Sync.Lookback.Duration,
		LockTTL:  cfg.Sync.LockTTL.Duration,
	}, logger)
	a.scheduler = service.NewScheduler(db, a.resolver, a.syncer, service.SchedulerOptions{
		Concurrency: cfg.Sync.Concurrency,
		Interval:    cfg.Sync.ScheduleInterval.Duration,
	}, logger)

	return a, nil
}

func (a *app) Close() error {
	if a.redis != nil {
		a.redis.Close()
	}
	return a.db.Close()
}
