package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"livestock/internal/config"
	"livestock/internal/controller"
	"livestock/internal/events"
	"livestock/internal/logger"
	"livestock/internal/metrics"
	"livestock/internal/repository"
	"livestock/internal/repository/memory"
	"livestock/internal/router"
	"livestock/internal/service"

	"go.uber.org/zap"
)

type store interface {
	service.Store
	Close() error
}

type App struct {
	store      store
	bus        events.Bus
	metrics    *metrics.Metrics
	service    *service.Service
	controller *controller.Controller
	clock      service.Clock
	log        *zap.Logger
	stopSig    chan os.Signal
	cfg        *config.Config

	Done chan struct{}
}

type option func(*App)

func WithConfig(cfg *config.Config) option {
	return func(app *App) {
		app.cfg = cfg
	}
}

func WithLogger(log *zap.Logger) option {
	return func(app *App) {
		app.log = log
	}
}

// WithClock replaces the wall clock behind every auction decision.
func WithClock(clock service.Clock) option {
	return func(app *App) {
		app.clock = clock
	}
}

func NewApp(opts ...option) (*App, error) {
	var err error

	app := &App{
		stopSig: make(chan os.Signal, 2),
		Done:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(app)
	}

	if app.cfg == nil {
		cfg, err := config.NewConfig()
		if err != nil {
			return nil, err
		}
		app.cfg = cfg
	}

	if app.log == nil {
		app.log, err = logger.New(app.cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("app.NewApp: %w", err)
		}
	}

	switch app.cfg.Storage {
	case "memory":
		app.store = memory.NewStore()
	case "postgres":
		app.store, err = repository.NewRepository(nil, &app.cfg.PostgresConfig, app.log)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("app.NewApp: unknown storage %q, should be one of: postgres, memory", app.cfg.Storage)
	}

	if len(app.cfg.RedisConfig.Addr) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		app.bus, err = events.NewRedisBus(ctx, &app.cfg.RedisConfig, app.log)
		cancel()
		if err != nil {
			app.store.Close()
			return nil, err
		}
	} else {
		app.bus = events.NewLocalBus(app.log)
	}

	app.metrics = metrics.New()

	serviceOpts := []service.Option{
		service.WithBus(app.bus),
		service.WithConfig(app.cfg.AuctionConfig),
		service.WithMetrics(app.metrics),
		service.WithLogger(app.log),
	}
	if app.clock != nil {
		serviceOpts = append(serviceOpts, service.WithClock(app.clock))
	}

	app.service = service.NewService(app.store, serviceOpts...)
	app.controller = controller.NewController(app.service, app.log)

	app.log.Info("app initialized",
		zap.String("storage", app.cfg.Storage),
		zap.Bool("redis_bus", len(app.cfg.RedisConfig.Addr) > 0))

	return app, nil
}

func (app *App) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		signal.Notify(app.stopSig, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
		sig := <-app.stopSig
		app.log.Info("received signal", zap.String("signal", sig.String()))
		cancel()
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		err := app.service.Leaderboard().Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			app.log.Error("leaderboard aggregator stopped", zap.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		app.service.RunSweeper(ctx)
	}()

	server := http.Server{
		Addr:         app.cfg.ServerAddress,
		Handler:      router.NewRouter(app.controller, app.metrics.Handler()),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			app.log.Error("http server error", zap.Error(err))
		}
	}()

	app.log.Info("server started, listening for connections", zap.String("addr", app.cfg.ServerAddress))
	<-ctx.Done()

	timeout, tcancel := context.WithTimeout(context.Background(), time.Second*10)
	defer tcancel()
	app.log.Info("shutting down http server")
	server.Shutdown(timeout)

	wg.Wait()

	app.log.Info("closing event bus")
	err := app.bus.Close()
	if err != nil {
		app.log.Error("event bus closing error", zap.Error(err))
	}

	app.log.Info("closing store")
	err = app.store.Close()
	if err != nil {
		app.log.Error("store closing error", zap.Error(err))
	}

	app.log.Info("exiting app")
	app.log.Sync()
	close(app.Done)
}
