// Package bootstrap wires the server together: ordered init steps, the two
// listeners under one errgroup, cooperative shutdown on SIGINT/SIGTERM.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"warnet-server-go/internal/domain/billing"
	"warnet-server-go/internal/domain/eventbus"
	"warnet-server-go/internal/domain/ledger"
	ledgerstore "warnet-server-go/internal/domain/ledger/store"
	"warnet-server-go/internal/domain/registry"
	platformconfig "warnet-server-go/internal/platform/config"
	platformerrors "warnet-server-go/internal/platform/errors"
	platformlogging "warnet-server-go/internal/platform/logging"
	platformstorage "warnet-server-go/internal/platform/storage"
	httptransport "warnet-server-go/internal/transport/http"
	httpwebapi "warnet-server-go/internal/transport/http/webapi"
	tcptransport "warnet-server-go/internal/transport/tcp"
)

const shutdownTimeout = 15 * time.Second

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	config        *platformconfig.Config
	configPath    string
	logger        *platformlogging.Logger
	db            *gorm.DB
	bus           *eventbus.Bus
	store         ledgerstore.Store
	ledgerService *ledger.Service
	registry      *registry.Registry
}

// Run drives the whole server lifecycle: init steps, both listeners, and a
// graceful stop on the first signal.
func Run(ctx context.Context) error {
	state := &appState{}

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		return err
	}

	config := state.config
	logger := state.logger
	if config == nil || logger == nil {
		return platformerrors.New(platformerrors.KindBootstrap,
			"bootstrap state validation", "config/logger not initialised")
	}
	if state.ledgerService == nil || state.registry == nil {
		return platformerrors.New(platformerrors.KindBootstrap,
			"bootstrap state validation", "ledger/registry not initialised")
	}

	logBootstrapGraph(steps, logger)

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := state.store.Close(closeCtx); err != nil {
			logger.ErrorTag("BOOT", "ledger store close failed", "error", err)
		}
		if err := platformstorage.Close(state.db); err != nil {
			logger.ErrorTag("BOOT", "database close failed", "error", err)
		}
		state.bus.Close()
	}()

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if err := startServices(state, group, groupCtx); err != nil {
		cancel()
		return err
	}

	logger.InfoTag("BOOT", "server started", "config", state.configPath)

	if err := waitForShutdown(signalCtx, cancel, logger, group); err != nil {
		return err
	}

	logger.InfoTag("BOOT", "server stopped cleanly")
	logger.Close()
	return nil
}

// InitGraph lists the ordered init steps with their dependencies.
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init",
			Title:     "Initialise logging",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "storage:open-database",
			Title:     "Open SQLite database",
			DependsOn: []string{"config:load", "logging:init"},
			Kind:      platformerrors.KindStorage,
			Execute:   openDatabaseStep,
		},
		{
			ID:        "events:init-bus",
			Title:     "Initialise event bus",
			DependsOn: []string{"logging:init"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initEventBusStep,
		},
		{
			ID:        "ledger:init-store",
			Title:     "Initialise ledger store",
			DependsOn: []string{"storage:open-database"},
			Kind:      platformerrors.KindStorage,
			Execute:   initLedgerStoreStep,
		},
		{
			ID:        "ledger:init-service",
			Title:     "Initialise ledger service",
			DependsOn: []string{"ledger:init-store"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLedgerServiceStep,
		},
		{
			ID:        "registry:init",
			Title:     "Initialise client registry",
			DependsOn: []string{"events:init-bus", "logging:init"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initRegistryStep,
		},
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(platformerrors.KindBootstrap, "execute init steps", "nil bootstrap state")
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(platformerrors.KindBootstrap, step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep))
			}
		}
		if step.Execute == nil {
			return platformerrors.New(platformerrors.KindBootstrap, step.ID, "missing execute function")
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}
			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	for _, step := range steps {
		logger.DebugTag("BOOT", step.Title, "step", step.ID)
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	result, err := platformconfig.NewLoader().Load()
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "config:load", "failed to load configuration", err)
	}
	state.config = result.Config
	state.configPath = result.Path
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state.config == nil {
		return platformerrors.New(platformerrors.KindBootstrap, "logging:init", "config not loaded")
	}

	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init", "failed to initialise logging", err)
	}
	state.logger = logger

	logger.InfoTag("BOOT", "logging ready",
		"level", state.config.Log.Level, "config", state.configPath)
	return nil
}

// openDatabaseStep opens the SQLite handle only when the selected ledger
// driver needs it.
func openDatabaseStep(_ context.Context, state *appState) error {
	driver := state.config.Store.Driver
	if driver != "" && driver != ledgerstore.DriverSQLite {
		return nil
	}

	db, err := platformstorage.Open(state.config.Store.SQLite.Path)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "storage:open-database", "failed to open database", err)
	}
	state.db = db
	state.logger.InfoTag("BOOT", "database ready", "path", state.config.Store.SQLite.Path)
	return nil
}

func initEventBusStep(_ context.Context, state *appState) error {
	state.bus = eventbus.New(4)
	return nil
}

func initLedgerStoreStep(_ context.Context, state *appState) error {
	cfg := ledgerstore.Config{Driver: state.config.Store.Driver}
	if cfg.Driver == ledgerstore.DriverRedis {
		cfg.Redis = &ledgerstore.RedisConfig{
			Addr:     state.config.Store.Redis.Addr,
			Username: state.config.Store.Redis.Username,
			Password: state.config.Store.Redis.Password,
			DB:       state.config.Store.Redis.DB,
			Prefix:   state.config.Store.Redis.Prefix,
		}
	}

	st, err := ledgerstore.New(cfg, ledgerstore.Dependencies{SQLiteDB: state.db})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "ledger:init-store", "failed to create ledger store", err)
	}
	state.store = st
	state.logger.InfoTag("BOOT", "ledger store ready", "driver", driverName(state.config.Store.Driver))
	return nil
}

func driverName(driver string) string {
	if driver == "" {
		return ledgerstore.DriverSQLite
	}
	return driver
}

func initLedgerServiceStep(_ context.Context, state *appState) error {
	state.ledgerService = ledger.NewService(state.store, billing.NewTable(state.config.Tiers), state.logger)
	return nil
}

func initRegistryStep(_ context.Context, state *appState) error {
	state.registry = registry.New(state.bus, state.logger)
	return nil
}

func startServices(state *appState, group *errgroup.Group, groupCtx context.Context) error {
	startTCPServer(state, group, groupCtx)

	if state.config.Admin.Enabled {
		if err := startHTTPServer(state, group, groupCtx); err != nil {
			return err
		}
	} else {
		state.logger.InfoTag("BOOT", "admin API disabled")
	}
	return nil
}

func startTCPServer(state *appState, group *errgroup.Group, groupCtx context.Context) {
	handler := tcptransport.NewHandler(
		state.ledgerService,
		state.registry,
		state.bus,
		state.logger,
		state.config.Server.IdentifyTimeout.Std(),
	)
	server := tcptransport.NewServer(state.config.Server, handler, state.logger)

	group.Go(func() error {
		if err := server.Start(groupCtx); err != nil {
			if groupCtx.Err() != nil {
				return nil
			}
			state.logger.ErrorTag("TCP", "terminal server failed", "error", err)
			return err
		}
		return nil
	})
}

func startHTTPServer(state *appState, group *errgroup.Group, groupCtx context.Context) error {
	router, err := httptransport.Build(httptransport.Options{
		Config:     state.config,
		Logger:     state.logger,
		StaticRoot: state.config.Admin.StaticDir,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindTransport, "http:build-router", "failed to build http router", err)
	}

	router.Engine.NoRoute(func(c *gin.Context) {
		httptransport.RespondError(c, http.StatusNotFound, "not found")
	})

	webapiService, err := httpwebapi.NewService(state.config, state.logger, state.ledgerService, state.registry)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindTransport, "webapi:new-service", "failed to create webapi service", err)
	}
	webapiService.Register(router.API)

	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(state.config.Admin.Port),
		Handler: router.Engine,
	}

	group.Go(func() error {
		state.logger.InfoTag("HTTP", "admin API listening", "port", state.config.Admin.Port)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				state.logger.ErrorTag("HTTP", "admin API shutdown failed", "error", err)
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			state.logger.ErrorTag("HTTP", "admin API failed", "error", err)
			return err
		}
		return nil
	})
	return nil
}

func waitForShutdown(ctx context.Context, cancel context.CancelFunc, logger *platformlogging.Logger, group *errgroup.Group) error {
	<-ctx.Done()
	logger.InfoTag("BOOT", "shutdown requested", "cause", context.Cause(ctx))

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- group.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("BOOT", "error during shutdown", "error", err)
			return err
		}
		logger.InfoTag("BOOT", "all services stopped")
	case <-time.After(shutdownTimeout):
		logger.ErrorTag("BOOT", "shutdown timed out")
		return errors.New("shutdown timed out")
	}
	return nil
}
