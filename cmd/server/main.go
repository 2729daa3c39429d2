package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"chat-realtime/internal/auth"
	"chat-realtime/internal/chat"
	"chat-realtime/internal/config"
	"chat-realtime/internal/handler"
	"chat-realtime/internal/realtime"
	"chat-realtime/internal/redis"
	"chat-realtime/internal/router"
	"chat-realtime/internal/store"
	"chat-realtime/internal/ws"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	gin.SetMode(cfg.GinMode)

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()

	db, err := store.Open(cfg.DatabaseURL, cfg.LogLevel == "debug")
	if err != nil {
		logger.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Error("Failed to get database handle", "error", err)
		os.Exit(1)
	}

	presenceRepo := store.NewPresenceRepository(db)
	membershipRepo := store.NewMembershipRepository(db)
	messageRepo := store.NewMessageRepository(db)

	// Nobody is connected to a process that just started.
	if n, err := presenceRepo.MarkAllOffline(runCtx, time.Now()); err != nil {
		logger.Warn("[PRESENCE] Failed to reset stale presence", "error", err)
	} else if n > 0 {
		logger.Info("[PRESENCE] Reset stale presence", "users", n)
	}

	validator, err := auth.NewValidator(auth.ValidatorOptions{
		IssuerURL: cfg.AuthIssuerURL,
		Secret:    cfg.AuthSecret,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("Failed to create token validator", "error", err)
		os.Exit(1)
	}
	if err := validator.Start(runCtx, cfg.JWKSRefreshRate); err != nil {
		logger.Error("Failed to initialize JWKS", "error", err)
		os.Exit(1)
	}

	checks := map[string]handler.Check{
		"database": sqlDB.PingContext,
	}
	sinks := realtime.MultiStatusSink{presenceRepo}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(runCtx, cfg.RedisURL, cfg.RedisEventsChannel, logger)
		if err != nil {
			logger.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		checks["redis"] = redisClient.Ping
		sinks = append(sinks, redisClient)
	}

	writerCtx, stopWriter := context.WithCancel(context.Background())
	defer stopWriter()
	statusWriter := realtime.NewStatusWriter(sinks, cfg.StatusQueueSize, cfg.StatusTimeout, logger)
	go statusWriter.Run(writerCtx)

	hub := ws.NewHub(ws.Options{
		Store:       statusWriter,
		Debounce:    cfg.PresenceDebounce,
		SendBuffer:  cfg.SendBufferSize,
		EventBuffer: cfg.EventBufferSize,
		Authorizer:  membershipRepo,
		Validator:   validator,
		Logger:      logger,
	})
	go hub.Run(runCtx)

	// With Redis every process publishes to the shared channel and fans out
	// what it receives; without it events go straight to the local hub.
	var publisher chat.Publisher = hub
	if redisClient != nil {
		publisher = redisClient
		go func() {
			if err := redisClient.Subscribe(runCtx, hub); err != nil {
				logger.Error("[REDIS] Subscription failed", "error", err)
			}
		}()
	}

	chatService := chat.NewService(membershipRepo, messageRepo, publisher, logger)

	r := router.Setup(router.Deps{
		Hub:       hub,
		Validator: validator,
		Chat:      chatService,
		Presence:  presenceRepo,
		Checks:    checks,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"chat-realtime": func(ctx context.Context) error {
				logger.Info("Graceful shutdown initiated...")
				return shutdown(ctx, logger, srv, stopRun, hub, stopWriter, statusWriter, redisClient, sqlDB.Close)
			},
		},
	)

	exitCode := <-wait
	logger.Info("Server exited", "code", exitCode)
	os.Exit(exitCode)
}

// shutdown stops components in dependency order: HTTP first so no new
// connections arrive, then the hub, then the presence writer so its queue
// drains into the stores before they close.
func shutdown(
	ctx context.Context,
	logger *slog.Logger,
	srv *http.Server,
	stopRun context.CancelFunc,
	hub *ws.Hub,
	stopWriter context.CancelFunc,
	statusWriter *realtime.StatusWriter,
	redisClient *redis.Client,
	closeDB func() error,
) error {
	var errs []error

	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	stopRun()
	if err := waitFor(ctx, hub.Done()); err != nil {
		errs = append(errs, errors.New("hub did not stop in time"))
	}

	stopWriter()
	if err := waitFor(ctx, statusWriter.Done()); err != nil {
		errs = append(errs, errors.New("presence writer did not drain in time"))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := closeDB(); err != nil {
		errs = append(errs, err)
	}

	err := errors.Join(errs...)
	if err != nil {
		logger.Error("Shutdown finished with errors", "error", err)
	}
	return err
}

func waitFor(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
