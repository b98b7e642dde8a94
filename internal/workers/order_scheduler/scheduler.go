// Package order_scheduler runs the OTC background jobs on a cron: matching
// open pre-orders against the market and expiring the ones past their
// deadline.
package order_scheduler

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/custody-service/custody_service/pkg/logger"
)

// OrderProcessor is the OTC engine surface the scheduler drives.
type OrderProcessor interface {
	ProcessPreOrders(ctx context.Context) error
	ExpireOrders(ctx context.Context) error
}

// Scheduler runs the OTC jobs once a minute
type Scheduler struct {
	processor OrderProcessor
	cron      *cron.Cron
	logger    *logger.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a new order scheduler
func NewScheduler(processor OrderProcessor, logger *logger.Logger) *Scheduler {
	return &Scheduler{
		processor: processor,
		cron:      cron.New(),
		logger:    logger,
	}
}

// Start registers the cron jobs and starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if _, err := s.cron.AddFunc("@every 1m", func() { s.runCycle(ctx) }); err != nil {
		return err
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("Order scheduler started")
	return nil
}

// Stop stops the scheduler and waits for a running cycle to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("Order scheduler stopped")
}

// runCycle matches first, then expires. An order that matched this minute
// is settled before the expiry check can see it.
func (s *Scheduler) runCycle(ctx context.Context) {
	if err := s.processor.ProcessPreOrders(ctx); err != nil {
		s.logger.Error("pre-order matching cycle failed", "error", err)
	}
	if err := s.processor.ExpireOrders(ctx); err != nil {
		s.logger.Error("order expiry cycle failed", "error", err)
	}
}
