package agent

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

	"github.com/gin-gonic/gin"
	"github.com/mwantia/fabric/pkg/container"

	"github.com/mwantia/comicshelf/internal/api"
	config "github.com/mwantia/comicshelf/internal/config/server"
	"github.com/mwantia/comicshelf/internal/library"
	"github.com/mwantia/comicshelf/internal/settings"
	"github.com/mwantia/comicshelf/internal/watcher"
	"github.com/mwantia/comicshelf/pkg/db/store"
	"github.com/mwantia/comicshelf/pkg/log"
)

type ComicShelfAgent struct {
	mutex sync.RWMutex
	wait  sync.WaitGroup

	cfg *config.BaseServerConfig
	sc  *container.ServiceContainer
	log log.LoggerService

	services *Services
	watcher  *watcher.Watcher
	server   *http.Server
	errs     chan error
}

func NewAgent(cfg *config.BaseServerConfig) *ComicShelfAgent {
	return &ComicShelfAgent{
		cfg:  cfg,
		sc:   container.NewServiceContainer(),
		log:  log.NewLoggerService("comicshelf", cfg.Log),
		errs: make(chan error, 1),
	}
}

func (csa *ComicShelfAgent) setupServices(ctx context.Context) error {
	errs := container.Errors{}

	csa.log.Debug("Registering 'LoggerService'...")
	errs.Add(container.Register[log.LoggerServiceImpl](csa.sc,
		container.With[log.LoggerService](),
		container.WithInstance(csa.log)))

	services, err := OpenLibrary(ctx, csa.cfg, csa.log)
	if err != nil {
		return err
	}
	csa.services = services

	csa.log.Debug("Registering 'CatalogStore'...")
	errs.Add(container.Register[*store.SQLiteStore](csa.sc,
		container.With[store.CatalogStore](),
		container.WithInstance(services.Store)))

	csa.log.Debug("Registering 'SettingsProvider'...")
	errs.Add(container.Register[*settings.Provider](csa.sc,
		container.With[library.SettingsProvider](),
		container.WithInstance(services.Settings)))

	csa.log.Debug("Registering 'Library'...")
	errs.Add(container.Register[*library.Library](csa.sc,
		container.WithInstance(services.Library)))

	if csa.cfg.Library.Watch {
		delay := config.ParseDuration(csa.cfg.Library.SettleDelay, time.Second)
		w, err := watcher.New(delay, csa.log.Named("watcher"))
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		csa.watcher = w
		services.Library.SetWatcher(w)

		csa.log.Debug("Registering 'Watcher'...")
		errs.Add(container.Register[*watcher.Watcher](csa.sc,
			container.With[library.FolderWatcher](),
			container.WithInstance(w)))
	}

	if csa.cfg.HTTP.Enabled {
		gin.SetMode(gin.ReleaseMode)
		handler := api.NewHandler(services.Library, csa.log.Named("api"))
		csa.server = &http.Server{
			Addr:    csa.cfg.HTTP.Address,
			Handler: api.NewRouter(handler, csa.cfg.HTTP.StaticDir),
		}

		csa.log.Debug("Registering 'Handler'...")
		errs.Add(container.Register[*api.Handler](csa.sc,
			container.WithInstance(handler)))
	}

	return errs.Errors()
}

func (csa *ComicShelfAgent) start(ctx context.Context) {
	lib := csa.services.Library

	folders, err := lib.ManagedFolders()
	if err != nil {
		csa.log.Warn("Unable to load managed folders: %v", err)
	}

	if csa.watcher != nil {
		for _, dir := range folders {
			if err := csa.watcher.Watch(dir); err != nil {
				csa.log.Warn("Unable to watch '%s': %v", dir, err)
			}
		}
		csa.watcher.Start()

		events := csa.watcher.Events()
		loopCtx := context.WithoutCancel(ctx)
		csa.wait.Add(1)
		go func() {
			defer csa.wait.Done()
			for ev := range events {
				lib.HandleEvent(loopCtx, ev)
			}
		}()
	}

	if csa.cfg.Library.InitialScan {
		if err := lib.StartScan(ctx, ""); err != nil {
			csa.log.Warn("Initial scan not started: %v", err)
		}
	}

	if csa.server != nil {
		csa.wait.Add(1)
		go func() {
			defer csa.wait.Done()
			csa.log.Info("HTTP API listening on '%s'", csa.server.Addr)
			if err := csa.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				csa.errs <- err
			}
		}()
	}
}

func (csa *ComicShelfAgent) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	csa.mutex.Lock()
	if err := csa.setupServices(ctx); err != nil {
		if csa.services != nil {
			csa.services.Close()
		}
		csa.mutex.Unlock()
		return err
	}
	csa.start(ctx)
	csa.mutex.Unlock()

	var serveErr error
	select {
	case <-ctx.Done():
		csa.log.Info("Shutdown signal received")
	case serveErr = <-csa.errs:
		csa.log.Error("HTTP server failed: %v", serveErr)
	}

	timeout := config.ParseDuration(csa.cfg.ShutdownTimeout, 60*time.Second)
	shutdown, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return errors.Join(serveErr, csa.shutdown(shutdown))
}

// shutdown stops the HTTP server first, then the watcher and its event loop,
// waits for background scans and closes the catalog store last.
func (csa *ComicShelfAgent) shutdown(ctx context.Context) error {
	csa.mutex.Lock()
	defer csa.mutex.Unlock()

	var errs []error
	if csa.server != nil {
		if err := csa.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown http server: %w", err))
		}
	}
	if csa.watcher != nil {
		csa.watcher.Stop()
	}
	csa.wait.Wait()

	if err := csa.services.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close catalog store: %w", err))
	}
	if err := csa.sc.Cleanup(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to complete service container cleanup: %w", err))
	}

	csa.log.Info("Agent stopped")
	if closer, ok := csa.log.(interface{ Close() error }); ok {
		closer.Close()
	}
	return errors.Join(errs...)
}
