package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"billiard-pos-backend/config"
	"billiard-pos-backend/internal/logger"
	"billiard-pos-backend/internal/rental"
	"billiard-pos-backend/internal/store"
)

// Scheduler owns the recurring background jobs: the auto-expiry scan and
// the nightly rental-history retention purge.
type Scheduler struct {
	cron    *cron.Cron
	rentals *rental.Service
	store   store.Store
	cfg     *config.Config
}

// New creates a scheduler for the given services.
func New(rentals *rental.Service, st store.Store, cfg *config.Config) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithSeconds(),
		),
		rentals: rentals,
		store:   st,
		cfg:     cfg,
	}
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.Monitor.Enabled {
		spec := fmt.Sprintf("@every %ds", s.cfg.Monitor.IntervalSeconds)
		if _, err := s.cron.AddFunc(spec, func() {
			s.runWithRecovery("expiry_scan", func() {
				if n := s.rentals.ExpireOverdue(ctx); n > 0 {
					logger.Info("expiry scan settled overdue tables", "count", n)
				}
			})
		}); err != nil {
			return fmt.Errorf("schedule expiry scan: %w", err)
		}
		logger.Info("auto-expiry scan scheduled", "interval_seconds", s.cfg.Monitor.IntervalSeconds)
	} else {
		logger.Warn("auto-expiry scan is disabled; overdue rentals will not be stopped automatically")
	}

	// 04:30 UTC, after closing time.
	if _, err := s.cron.AddFunc("0 30 4 * * *", func() {
		s.runWithRecovery("history_purge", func() {
			cutoff := time.Now().UTC().AddDate(0, 0, -s.cfg.History.RetentionDays)
			n, err := s.store.PurgeHistoryBefore(ctx, cutoff)
			if err != nil {
				logger.Error("history purge failed", "error", err)
				return
			}
			if n > 0 {
				logger.Info("purged old rental history", "rows", n, "cutoff", cutoff)
			}
		})
	}); err != nil {
		return fmt.Errorf("schedule history purge: %w", err)
	}

	s.cron.Start()
	return nil
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// runWithRecovery wraps job execution with panic recovery so one bad pass
// cannot kill the scheduler.
func (s *Scheduler) runWithRecovery(jobName string, jobFunc func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("scheduled job panicked", "job", jobName, "panic", r)
		}
	}()
	jobFunc()
}
