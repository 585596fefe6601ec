package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/boardgame-meetup/internal/config"
	"github.com/iliyamo/boardgame-meetup/internal/database"
	"github.com/iliyamo/boardgame-meetup/internal/handler"
	"github.com/iliyamo/boardgame-meetup/internal/middleware"
	"github.com/iliyamo/boardgame-meetup/internal/queue"
	"github.com/iliyamo/boardgame-meetup/internal/repository"
	"github.com/iliyamo/boardgame-meetup/internal/router"
	"github.com/iliyamo/boardgame-meetup/internal/service"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Error("database connect failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := database.CreateSchema(ctx, db); err != nil {
		logger.Error("schema init failed", "error", err)
		os.Exit(1)
	}

	// Redis backs the rate limiter and the response cache; without it
	// both middlewares pass requests straight through.
	var rdb *redis.Client
	if client, err := config.NewRedisClient(ctx); err != nil {
		logger.Warn("redis unavailable, rate limiting and caching disabled", "error", err)
	} else {
		rdb = client
		defer rdb.Close()
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	locations := repository.NewLocationRepo(db)
	sessions := repository.NewSessionRepo(db)
	reservations := repository.NewReservationRepo(db)
	groups := repository.NewGroupRepo(db)
	polls := repository.NewPollRepo(db)

	// Notifications: published to RabbitMQ when configured, otherwise
	// delivered inline.  Either way they end in the log file and, with
	// SMTP configured, in the recipient's inbox.
	deliverers := queue.Fanout{queue.NewFileLog(cfg.Notify.LogDir)}
	smtpCfg := queue.SMTPConfig{
		Host:     cfg.Notify.SMTPHost,
		Port:     cfg.Notify.SMTPPort,
		Username: cfg.Notify.SMTPUser,
		Password: cfg.Notify.SMTPPass,
		From:     cfg.Notify.SMTPFrom,
	}
	if smtpCfg.Enabled() {
		deliverers = append(deliverers, queue.NewMailer(smtpCfg))
	}
	var notifier service.Notifier = queue.Direct{Deliverer: deliverers}
	if cfg.Notify.RabbitMQURL != "" {
		notifier = queue.NewPublisher(cfg.Notify.RabbitMQURL)
		if cfg.Notify.RunConsumer {
			consumer := queue.NewConsumer(cfg.Notify.RabbitMQURL, deliverers, logger)
			go func() {
				if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("notification consumer stopped", "error", err)
				}
			}()
		}
	}

	go purgeTokens(ctx, tokens, logger)

	ledger := service.NewLedger(db, sessions, reservations, users, notifier, logger)
	ledger.NotifyTimeout = time.Duration(cfg.Notify.TimeoutSec) * time.Second
	pollSvc := service.NewPolls(polls, groups, logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency, "request_id", v.RequestID}
			if v.Error != nil {
				logger.Error("request", append(attrs, "error", v.Error)...)
				return nil
			}
			logger.Info("request", attrs...)
			return nil
		},
	}))

	router.Register(e, db, router.Handlers{
		Auth:         handler.NewAuthHandler(cfg, users, tokens, logger),
		Locations:    handler.NewLocationHandler(locations, logger),
		Sessions:     handler.NewSessionHandler(sessions, locations, reservations, logger),
		Reservations: handler.NewReservationHandler(ledger),
		Groups:       handler.NewGroupHandler(groups, logger),
		Polls:        handler.NewPollHandler(pollSvc),
	}, router.Options{
		JWTSecret: cfg.JWTSecret,
		Limiter:   middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger),
		Cache:     middleware.NewRedisCache(config.LoadCacheConfig(), rdb, logger),
	})

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

// purgeTokens drops dead refresh tokens once an hour.
func purgeTokens(ctx context.Context, tokens *repository.TokenRepo, logger *slog.Logger) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := tokens.PurgeExpired(ctx, now)
			if err != nil {
				logger.Warn("refresh token purge failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("refresh tokens purged", "count", n)
			}
		}
	}
}
