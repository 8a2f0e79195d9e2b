package main // Entry point package

import (
	"context"       // shutdown and startup deadlines
	"database/sql"  // MySQL handle shared by the repositories
	"errors"        // distinguishes a clean server close
	"log/slog"      // structured logging
	"net/http"      // http.ErrServerClosed
	"os"            // process exit
	"os/signal"     // SIGINT/SIGTERM handling
	"syscall"       // SIGTERM
	"time"          // timeouts

	"github.com/joho/godotenv"                                  // optional .env loading
	"github.com/prometheus/client_golang/prometheus"            // metrics registry
	"github.com/prometheus/client_golang/prometheus/collectors" // runtime collectors

	"github.com/iliyamo/pill-dispenser/internal/config"            // Internal config loader
	"github.com/iliyamo/pill-dispenser/internal/database"          // MySQL connection and migrations
	"github.com/iliyamo/pill-dispenser/internal/logging"           // tint logger setup
	"github.com/iliyamo/pill-dispenser/internal/middleware"        // response cache
	"github.com/iliyamo/pill-dispenser/internal/queue"             // dispenser events
	"github.com/iliyamo/pill-dispenser/internal/repository"        // MySQL repositories
	"github.com/iliyamo/pill-dispenser/internal/repository/memory" // in-process store
	"github.com/iliyamo/pill-dispenser/internal/router"            // Internal router setup
	"github.com/iliyamo/pill-dispenser/internal/service"           // domain services
)

// stores groups the four storage views the services need.
type stores struct {
	users      service.UserStore
	tokens     service.TokenStore
	dispensers service.DispenserStore
	containers service.ContainerStore
	db         *sql.DB // nil for the memory driver
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not read .env", "err", err)
	}
	cfg := config.Load() // Load environment config
	logging.Setup(cfg.LogLevel)

	if err := run(cfg); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	if st.db != nil {
		defer st.db.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rdb, err := config.NewRedisClient(ctx, config.LoadRedisConfig())
	switch {
	case err != nil:
		slog.Warn("redis unavailable: rate limiting is per instance and caching is off", "err", err)
	case rdb != nil:
		defer rdb.Close()
	}

	events, closeEvents := setupEvents(ctx, reg)
	defer closeEvents()

	auth := service.NewAuthService(st.users, st.tokens, service.AuthConfig{
		JWTSecret:      cfg.JWTSecret,
		AccessTTLMin:   cfg.AccessTTLMin,
		RefreshTTLDays: cfg.RefreshTTLDays,
		BcryptCost:     cfg.BcryptCost,
	})
	deps := router.Deps{
		Auth:       auth,
		Dispensers: service.NewDispenserService(st.dispensers, st.containers, events),
		JWTSecret:  cfg.JWTSecret,
		Logger:     slog.Default().With("component", "http"),
		Registry:   reg,
		RateLimit:  config.LoadRateLimitConfig(),
		AuthLimit:  config.LoadAuthRateLimitConfig(),
		Redis:      rdb,
		Cache:      middleware.NewRedisCache(config.LoadCacheConfig(), rdb),
	}
	if st.db != nil {
		deps.DB = st.db // leave the interface nil for the memory store
	}
	e := router.New(deps)

	addr := ":" + cfg.Port // Address string with port
	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", addr, "env", cfg.Env, "storage", cfg.StorageDriver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// openStores selects the storage backend named by STORAGE_DRIVER.
func openStores(ctx context.Context, cfg config.Config) (stores, error) {
	if cfg.StorageDriver == config.DriverMemory {
		slog.Warn("using in-memory storage; data is lost on restart")
		m := memory.New()
		return stores{users: m.Users(), tokens: m.Tokens(), dispensers: m.Dispensers(), containers: m.Containers()}, nil
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return stores{}, err
	}
	if cfg.DBMigrate {
		mctx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		if err := database.Migrate(mctx, db); err != nil {
			db.Close()
			return stores{}, err
		}
	}
	return stores{
		users:      repository.NewUserRepo(db),
		tokens:     repository.NewTokenRepo(db),
		dispensers: repository.NewDispenserRepo(db),
		containers: repository.NewContainerRepo(db),
		db:         db,
	}, nil
}

// setupEvents returns the publisher for dispenser events and starts the
// audit consumer when events are enabled.  The returned func releases the
// broker connection.
func setupEvents(ctx context.Context, reg prometheus.Registerer) (queue.Publisher, func()) {
	ecfg := config.LoadEventsConfig()
	if !ecfg.Enabled {
		return queue.WithMetrics(queue.NopPublisher{}, reg), func() {}
	}
	pub := queue.NewAMQPPublisher(ecfg.URL, ecfg.Queue)
	go func() {
		if err := queue.StartDispenserConsumer(ctx, ecfg.URL, ecfg.Queue, ecfg.LogDir); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("event consumer stopped", "err", err)
		}
	}()
	slog.Info("dispenser events enabled", "queue", ecfg.Queue, "log_dir", ecfg.LogDir)
	return queue.WithMetrics(pub, reg), func() { _ = pub.Close() }
}
