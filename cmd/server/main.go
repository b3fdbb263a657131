package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/campaign-links/internal/cache"
	"github.com/iliyamo/campaign-links/internal/config"
	"github.com/iliyamo/campaign-links/internal/database"
	"github.com/iliyamo/campaign-links/internal/handler"
	"github.com/iliyamo/campaign-links/internal/logger"
	"github.com/iliyamo/campaign-links/internal/metrics"
	"github.com/iliyamo/campaign-links/internal/middleware"
	"github.com/iliyamo/campaign-links/internal/queue"
	"github.com/iliyamo/campaign-links/internal/repository"
	"github.com/iliyamo/campaign-links/internal/router"
	"github.com/iliyamo/campaign-links/internal/service"
	"github.com/iliyamo/campaign-links/internal/verify"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load() // .env is optional

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	db, err := database.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.DB.Migrate {
		if err := database.Migrate(db); err != nil {
			return err
		}
	}

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		log.Warn("redis unavailable; rate limiting and caches disabled", zap.String("addr", cfg.Redis.Address()))
	} else {
		defer rdb.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	links := service.NewLinkService(
		repository.NewLinkRepo(db),
		repository.NewScanRepo(db),
		cache.NewLinkCache(rdb, cfg.Links.CacheTTL, log),
		m, log,
		service.LinkOptions{
			PublicBaseURL:  cfg.App.PublicBaseURL,
			IPHashKey:      cfg.Links.IPHashKey,
			BackendTimeout: cfg.App.BackendTimeout,
			ScanTimeout:    cfg.Links.ScanTTL,
		},
	)

	var publisher service.Publisher
	if cfg.AMQP.Enabled {
		p := queue.NewPublisher(cfg.AMQP.URL, log)
		defer p.Close()
		publisher = p

		consumer := queue.NewConsumer(cfg.AMQP.URL, cfg.AMQP.LogDir, log)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("reservation consumer stopped", zap.Error(err))
			}
		}()
	}

	turnstile := verify.NewTurnstile(cfg.Turnstile.Secret, cfg.Turnstile.VerifyURL, cfg.App.BackendTimeout, log)
	slots := repository.NewSlotRepo(db)
	engine := service.NewEngine(slots, repository.NewReservationRepo(db), turnstile, publisher, m, log, cfg.App.BackendTimeout)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewRequestValidator()
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLogger(log))
	e.Use(echomw.Recover())

	router.Register(e, router.Deps{
		Config:       cfg,
		Redis:        rdb,
		DB:           db,
		Metrics:      m,
		Log:          log,
		Redirect:     handler.NewRedirectHandler(links, log),
		Links:        handler.NewLinkHandler(links, log),
		Reservations: handler.NewReservationHandler(engine, log),
	})

	addr := ":" + cfg.App.Port
	errc := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.App.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	return e.Shutdown(sctx)
}
