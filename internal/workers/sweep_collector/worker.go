// Package sweep_collector drives the periodic fund consolidation cycles,
// one goroutine per network.
package sweep_collector

import (
	"context"
	"sync"
	"time"

	"github.com/custody-service/custody_service/internal/domain/entities"
	"github.com/custody-service/custody_service/pkg/logger"
	"github.com/custody-service/custody_service/pkg/metrics"
)

// Collector runs one sweep cycle for a network.
type Collector interface {
	Collect(ctx context.Context, network entities.Network) error
}

// Worker schedules sweeps across all configured networks
type Worker struct {
	collector Collector
	networks  []entities.Network
	interval  time.Duration
	logger    *logger.Logger
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewWorker creates a new sweep collector worker
func NewWorker(collector Collector, networks []entities.Network, interval time.Duration, logger *logger.Logger) *Worker {
	return &Worker{
		collector: collector,
		networks:  networks,
		interval:  interval,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// Start launches one sweep loop per network
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Starting sweep collector worker",
		"networks", len(w.networks),
		"interval", w.interval.String())

	for _, network := range w.networks {
		w.wg.Add(1)
		go w.runNetwork(ctx, network)
	}
}

// Stop stops all sweep loops and waits for running cycles to finish
func (w *Worker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.logger.Info("Sweep collector worker stopped")
}

func (w *Worker) runNetwork(ctx context.Context, network entities.Network) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if err := w.collector.Collect(ctx, network); err != nil {
				metrics.SweepsTotal.WithLabelValues(string(network), "failed").Inc()
				w.logger.Error("sweep cycle failed",
					"network", string(network),
					"error", err)
				continue
			}
			metrics.SweepsTotal.WithLabelValues(string(network), "success").Inc()
		}
	}
}
