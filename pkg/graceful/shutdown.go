// Package graceful coordinates shutdown: stop background workers first so
// no cycle is mid-flight, then drain the HTTP server, then close the
// database.
package graceful

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/custody-service/custody_service/pkg/logger"
)

// Stopper is a background component that can be stopped. Stop blocks until
// the component's running work finishes.
type Stopper interface {
	Stop()
}

type ShutdownManager struct {
	server   *http.Server
	db       *sql.DB
	stoppers []Stopper
	logger   *logger.Logger
}

func NewShutdownManager(server *http.Server, db *sql.DB, logger *logger.Logger) *ShutdownManager {
	return &ShutdownManager{
		server:   server,
		db:       db,
		stoppers: make([]Stopper, 0),
		logger:   logger,
	}
}

// Register adds a component stopped before the HTTP server drains
func (sm *ShutdownManager) Register(s Stopper) {
	sm.stoppers = append(sm.stoppers, s)
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then shuts everything
// down in order.
func (sm *ShutdownManager) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sm.logger.Info("Shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, s := range sm.stoppers {
		s.Stop()
	}

	if err := sm.server.Shutdown(ctx); err != nil {
		sm.logger.Error("Server forced shutdown", "error", err)
	}

	if err := sm.db.Close(); err != nil {
		sm.logger.Warn("Database close error", "error", err)
	}

	sm.logger.Info("Shutdown complete")
}
