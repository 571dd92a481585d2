// Package worker runs the periodic background sync loop.
package worker

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"mailsync_server/core/port/in"
)

// =============================================================================
// Scheduler - periodic whole-system delta sync
// =============================================================================

const (
	// DefaultInterval is how often every connected account is swept.
	DefaultInterval = 5 * time.Minute
	// startupDelay lets the server settle before the first sweep.
	startupDelay = 30 * time.Second
	// sweepTimeout bounds one whole fan-out pass.
	sweepTimeout = 10 * time.Minute
)

// Scheduler periodically fans a sync out over every connected account, so
// mailboxes without push notifications still converge.
type Scheduler struct {
	syncService in.MailSyncService
	interval    time.Duration
	log         zerolog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewScheduler creates the scheduler. A non-positive interval falls back to
// the default.
func NewScheduler(syncService in.MailSyncService, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		syncService: syncService,
		interval:    interval,
		log:         zerolog.New(os.Stderr).With().Timestamp().Str("component", "sync_scheduler").Logger(),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the loop.
func (s *Scheduler) Start() {
	s.log.Info().Dur("interval", s.interval).Msg("starting")
	go s.run()
}

// Stop cancels the loop and any in-flight sweep.
func (s *Scheduler) Stop() {
	s.log.Info().Msg("stopping")
	s.cancel()
}

func (s *Scheduler) run() {
	select {
	case <-s.ctx.Done():
		return
	case <-time.After(startupDelay):
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.log.Info().Msg("stopped")
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep runs one fan-out pass over all connected accounts.
func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(s.ctx, sweepTimeout)
	defer cancel()

	started := time.Now()
	totals, err := s.syncService.SyncAllUsers(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("sweep failed")
		return
	}

	s.log.Info().
		Int("users", totals.TotalUsers).
		Int("synced", totals.TotalSynced).
		Int("errors", totals.TotalErrors).
		Dur("took", time.Since(started)).
		Msg("sweep completed")
}
