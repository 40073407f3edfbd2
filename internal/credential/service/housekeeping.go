package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/unicred/unicred/internal/credential/store"
)

// HousekeepingService periodically garbage-collects expired auth sessions,
// verification sessions and portal sessions. Expiry itself is enforced at
// read time everywhere; this only keeps the tables and the portal map from
// growing without bound.
type HousekeepingService struct {
	Store    store.Store
	Portal   *PortalService
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given
// interval. If interval is 0 or negative, defaults to 15 minutes.
func NewHousekeepingService(st store.Store, portal *PortalService, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	return &HousekeepingService{
		Store:    st,
		Portal:   portal,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop() for a
// graceful shutdown.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop shuts down the worker, blocking until any in-progress sweep finishes.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.cleanup()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup deletes expired records. Each sweep is independent; a failure in
// one won't stop the others.
func (s *HousekeepingService) cleanup() {
	ctx := context.Background()
	now := time.Now().UTC()

	if n, err := s.Store.AuthSessions().DeleteExpiredBefore(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired auth sessions", "error", err)
	} else if n > 0 {
		s.Logger.Debug("deleted expired auth sessions", "count", n)
	}

	if n, err := s.Store.Verifications().DeleteExpiredBefore(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired verification sessions", "error", err)
	} else if n > 0 {
		s.Logger.Debug("deleted expired verification sessions", "count", n)
	}

	if s.Portal != nil {
		if n := s.Portal.Sweep(now); n > 0 {
			s.Logger.Debug("deleted expired portal sessions", "count", n)
		}
	}
}
