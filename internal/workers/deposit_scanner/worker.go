// Package deposit_scanner drives the periodic deposit detection cycles.
// Each network gets its own goroutine and ticker; a slow RPC provider on
// one network never stalls the others. Cycles on one network never
// overlap, the next tick waits for the running cycle to return.
package deposit_scanner

import (
	"context"
	"sync"
	"time"

	"github.com/custody-service/custody_service/internal/domain/entities"
	"github.com/custody-service/custody_service/pkg/logger"
	"github.com/custody-service/custody_service/pkg/metrics"
)

// Scanner runs one deposit detection cycle for a network.
type Scanner interface {
	Scan(ctx context.Context, network entities.Network) error
}

// Worker schedules deposit scans across all configured networks
type Worker struct {
	scanner  Scanner
	networks []entities.Network
	interval time.Duration
	logger   *logger.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewWorker creates a new deposit scanner worker
func NewWorker(scanner Scanner, networks []entities.Network, interval time.Duration, logger *logger.Logger) *Worker {
	return &Worker{
		scanner:  scanner,
		networks: networks,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start launches one scan loop per network
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Starting deposit scanner worker",
		"networks", len(w.networks),
		"interval", w.interval.String())

	for _, network := range w.networks {
		w.wg.Add(1)
		go w.runNetwork(ctx, network)
	}
}

// Stop stops all scan loops and waits for running cycles to finish
func (w *Worker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.logger.Info("Deposit scanner worker stopped")
}

func (w *Worker) runNetwork(ctx context.Context, network entities.Network) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run immediately on start
	w.scan(ctx, network)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.scan(ctx, network)
		}
	}
}

func (w *Worker) scan(ctx context.Context, network entities.Network) {
	if err := w.scanner.Scan(ctx, network); err != nil {
		// The cursor did not advance; the same window replays next tick.
		metrics.ScanCyclesTotal.WithLabelValues(string(network), "failed").Inc()
		w.logger.Error("deposit scan cycle failed",
			"network", string(network),
			"error", err)
		return
	}
	metrics.ScanCyclesTotal.WithLabelValues(string(network), "success").Inc()
}
