package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/calshare/calshare/internal/config"
	"github.com/calshare/calshare/internal/database"
	"github.com/calshare/calshare/pkg/calendar_sync"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// Application wires configuration, database, router, and server lifecycle.
type Application struct {
	cfg  config.Application
	db   *pgxpool.Pool
	deps *Dependencies
	srv  *http.Server
}

// NewApplication opens the database, applies migrations and builds the HTTP application, ready to Run().
func NewApplication(ctx context.Context, cfg config.Application) (*Application, error) {
	if _, err := database.Migrate(cfg.Database); err != nil {
		return nil, err
	}
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	r := mux.NewRouter()
	deps := BuildDependencies(db, cfg)
	SetupMiddleware(r, deps)
	RegisterRoutes(r, deps)

	srv := &http.Server{
		Handler:      r,
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		WriteTimeout: 60 * time.Second,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Application{cfg: cfg, db: db, deps: deps, srv: srv}, nil
}

// Run starts the scheduler and the HTTP server and blocks until SIGINT or SIGTERM.
func (a *Application) Run() error {
	if a.cfg.Sync.Enabled {
		if err := a.deps.Scheduler.Start(); err != nil {
			return err
		}
	} else {
		log.Info("Calendar sync scheduler is disabled")
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting server on %s", a.srv.Addr)
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case runErr = <-serverErr:
	case sig := <-stop:
		log.Infof("Received %s, shutting down", sig)
	}
	a.shutdown()
	return runErr
}

func (a *Application) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(ctx); err != nil {
		log.Errorf("failed to shut down server: %v", err)
	}
	a.deps.Scheduler.Stop()
	a.deps.Orchestrator.Wait()
	a.db.Close()
}

// SyncConnection runs a single synchronization of the connection and exits.
func SyncConnection(ctx context.Context, cfg config.Application, connectionId int) (calendar_sync.Result, error) {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return calendar_sync.Result{}, err
	}
	defer db.Close()

	deps := BuildDependencies(db, cfg)
	return deps.Orchestrator.SyncConnection(ctx, connectionId)
}
