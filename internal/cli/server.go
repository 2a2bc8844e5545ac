package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"song-quiz-service/internal/app"
	"song-quiz-service/internal/config"
	"song-quiz-service/internal/infra/memory"
	redisinfra "song-quiz-service/internal/infra/redis"
	"song-quiz-service/internal/observe"
	transport "song-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var cl closers
	defer cl.close()

	metricsHandler, shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		return err
	}
	cl.add(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = shutdownMetrics(shutdownCtx)
	})
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}

	redisClient := newRedisClient(cfg)
	if redisClient != nil {
		cl.add(func() { _ = redisClient.Close() })
	}

	store, err := openProgressStore(cfg, redisClient, &cl)
	if err != nil {
		return err
	}
	loader, err := playlistLoader(ctx, cfg, &cl)
	if err != nil {
		return err
	}
	playlists := playlistRepository(cfg, redisClient, loader)

	var (
		sessions app.SessionRepository
		live     transport.SessionCounter
	)
	if redisClient != nil {
		store := redisinfra.NewSessionStore(redisClient, cfg.Redis.Prefix, config.TTLDuration(cfg.Redis.TTL, 10*time.Minute))
		sessions, live = store, store
	} else {
		store := memory.NewSessionStore()
		sessions, live = store, store
	}

	opts, transcriber, err := providerOptions(cfg)
	if err != nil {
		return err
	}
	opts = append(opts, app.WithMetrics(metrics))
	service := app.NewGameService(sessions, playlists, store, gameSettings(cfg), opts...)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", transport.NewWSHandler(service).ServeWS)
	transport.NewAPI(service, transcriber, live).Register(mux)
	mux.Handle("GET /metrics", metricsHandler)

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		slog.Info("starting song quiz service", "port", finalPort, "storage", cfg.Storage.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server stopped", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		slog.Info("shutting down server")
	case <-ctx.Done():
		slog.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = server.Shutdown(shutdownCtx)
	service.Wait()
	return err
}
