package scheduler

import (
	"context"
	"time"

	"github.com/maisonvoile/storefront-backend/internal/cart"
	"github.com/maisonvoile/storefront-backend/pkg/logger"
	"github.com/robfig/cron/v3"
)

const jobTimeout = 2 * time.Minute

// StockClamper lowers persisted cart quantities that exceed current stock
type StockClamper interface {
	ClampToStock(ctx context.Context) (int64, error)
}

type CartJobsConfig struct {
	StockReconcileSpec string
	EvictionSpec       string
	MaxIdle            time.Duration
}

// CartScheduler keeps carts consistent with stock and bounds the number of
// live carts held in memory
type CartScheduler struct {
	cron    *cron.Cron
	manager *cart.Manager
	carts   StockClamper
	config  CartJobsConfig
}

func NewCartScheduler(manager *cart.Manager, carts StockClamper, cfg CartJobsConfig) *CartScheduler {
	return &CartScheduler{
		// a slow run is skipped rather than stacked
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		manager: manager,
		carts:   carts,
		config:  cfg,
	}
}

// Start registers both jobs and starts the cron loop
func (s *CartScheduler) Start() error {
	if _, err := s.cron.AddFunc(s.config.StockReconcileSpec, s.ReconcileStock); err != nil {
		logger.Error("Failed to add cron job for stock reconcile", err, map[string]interface{}{
			"spec": s.config.StockReconcileSpec,
		})
		return err
	}

	if _, err := s.cron.AddFunc(s.config.EvictionSpec, s.EvictIdle); err != nil {
		logger.Error("Failed to add cron job for cart eviction", err, map[string]interface{}{
			"spec": s.config.EvictionSpec,
		})
		return err
	}

	s.cron.Start()
	logger.Info("Cart scheduler started", map[string]interface{}{
		"stock_reconcile": s.config.StockReconcileSpec,
		"eviction":        s.config.EvictionSpec,
		"max_idle":        s.config.MaxIdle.String(),
	})
	return nil
}

// ReconcileStock re-clamps live carts in memory, then persisted carts that
// are not live
func (s *CartScheduler) ReconcileStock() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	changed, err := s.manager.RefreshStock(ctx)
	if err != nil {
		logger.Error("Scheduled stock reconcile failed for live carts", err)
	}

	clamped, err := s.carts.ClampToStock(ctx)
	if err != nil {
		logger.Error("Scheduled stock reconcile failed for stored carts", err)
		return
	}

	if changed > 0 || clamped > 0 {
		logger.Info("Scheduled stock reconcile finished", map[string]interface{}{
			"live_lines_changed":   changed,
			"stored_lines_clamped": clamped,
		})
	}
}

func (s *CartScheduler) EvictIdle() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	s.manager.EvictIdle(ctx, s.config.MaxIdle)
}

// Stop waits for running jobs to finish
func (s *CartScheduler) Stop() {
	logger.Info("Stopping cart scheduler...")
	<-s.cron.Stop().Done()
	logger.Info("Cart scheduler stopped")
}
