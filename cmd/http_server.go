package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/ops-console/internal"
	"github.com/frahmantamala/ops-console/internal/access"
	"github.com/frahmantamala/ops-console/internal/auth"
	authPostgres "github.com/frahmantamala/ops-console/internal/auth/postgres"
	"github.com/frahmantamala/ops-console/internal/core/events"
	"github.com/frahmantamala/ops-console/internal/notify"
	notifyPostgres "github.com/frahmantamala/ops-console/internal/notify/postgres"
	"github.com/frahmantamala/ops-console/internal/session"
	"github.com/frahmantamala/ops-console/internal/storage"
	"github.com/frahmantamala/ops-console/internal/transport/rest"
	"github.com/frahmantamala/ops-console/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server serving the console API, page gate and notification streams`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config   *internal.Config
	Executor *storage.Executor
	Redis    *redis.Client
	Bus      *events.EventBus
	Router   *chi.Mux
	Logger   *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr)

	server := newHTTPServer(addr, deps.Router, deps.Config.Server)

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("Server failed to start", "error", err)
			deps.close()
			os.Exit(1)
		}
	}

	deps.close()
	deps.Logger.Info("Server stopped")
}

// newHTTPServer builds the server. Request contexts derive from a base context
// that Shutdown cancels, so long-lived notification streams end with it.
func newHTTPServer(addr string, handler http.Handler, cfg internal.ServerConfig) *http.Server {
	baseCtx, cancel := context.WithCancel(context.Background())
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		BaseContext: func(net.Listener) context.Context {
			return baseCtx
		},
	}
	server.RegisterOnShutdown(cancel)
	return server
}

func (d *Dependencies) close() {
	d.Bus.Wait()
	if err := d.Executor.Close(); err != nil {
		d.Logger.Error("Database close error", "error", err)
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error("Redis close error", "error", err)
		}
	}
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Observability.Logging.Level, config.Observability.Logging.Format)
	lg := logger.LoggerWrapper()

	// The pool opens lazily on the first query so the server can start while
	// the database is still coming up.
	executor := storage.NewExecutor(storage.SQLXOpener(storage.DatabaseConfig{
		Driver:          config.Database.Driver,
		Source:          config.Database.Source,
		MaxOpenConns:    config.Database.MaxOpenConns,
		MaxIdleConns:    config.Database.MaxIdleConns,
		ConnMaxLifetime: config.Database.ConnMaxLifetime,
		ConnMaxIdleTime: config.Database.ConnMaxIdleTime,
	}), lg.With("component", "storage"))

	deps := &Dependencies{
		Config:   config,
		Executor: executor,
		Logger:   lg,
	}

	var store session.Store
	if config.Redis.Enabled {
		deps.Redis = redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		store = session.NewRedisStore(deps.Redis, config.Redis.KeyPrefix)
	} else {
		lg.Warn("redis disabled, sessions are kept in process memory")
		store = session.NewMemoryStore()
	}

	deps.Bus = events.NewEventBus(lg.With("component", "events"))
	subscribeSessionAudit(deps.Bus, lg)
	cache := session.NewCache(store, deps.Bus, lg.With("component", "session"))

	rules := access.DefaultTable()
	authService := auth.NewService(authPostgres.NewRepository(executor))
	gate := auth.NewGate(cache, authService, rules, auth.GateConfig{
		CookieName: config.Session.CookieName,
		LoginPath:  config.Session.LoginPath,
	}, lg.With("component", "gate"))
	authHandler := auth.NewHandler(authService, cache, auth.CookieConfig{
		Name:   config.Session.CookieName,
		Secure: config.Session.CookieSecure,
	})

	stream := notify.NewStream(notifyPostgres.NewSource(executor), config.Stream.PollInterval, lg.With("component", "stream"))
	streamHandler := notify.NewHandler(stream, config.Stream.HeartbeatInterval, lg.With("component", "stream"))

	components := map[string]rest.Pinger{"postgres": executor}
	if deps.Redis != nil {
		components["redis"] = rest.PingFunc(func(ctx context.Context) error {
			return deps.Redis.Ping(ctx).Err()
		})
	}

	deps.Router = chi.NewRouter()
	rest.RegisterAllRoutes(deps.Router, rest.Handlers{
		Auth:   authHandler,
		Gate:   gate,
		Stream: streamHandler,
		Health: rest.NewHealthHandler(components),
		Rules:  rules,
	}, config, lg)

	return deps, nil
}

// subscribeSessionAudit logs session lifecycle events.
func subscribeSessionAudit(bus *events.EventBus, lg *slog.Logger) {
	audit := func(ctx context.Context, event events.Event) error {
		lg.Info("session event",
			"event_id", event.EventID(),
			"event_type", event.EventType(),
			"payload", event.Payload())
		return nil
	}
	bus.Subscribe(events.EventTypeSessionChanged, audit)
	bus.Subscribe(events.EventTypeSessionCleared, audit)
}
