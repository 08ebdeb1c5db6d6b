package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/vedanschi/pebble-outreach/internal/errors"
	"github.com/vedanschi/pebble-outreach/internal/model"
)

// Sweeper runs the periodic scheduling pass: query due jobs, hand each to
// Dispatch, then run the completion check. Lifecycle is explicit: Start
// at process start, Stop on shutdown. The clock is injected, so tests
// drive sweeps manually with RunOnce.
type Sweeper struct {
	Scheduler *FollowUpService
	Campaigns *CampaignService
	// Dispatch handles one due job: either the dispatch service directly
	// or a queue publisher when a worker pool consumes the jobs.
	Dispatch    func(ctx context.Context, job model.FollowUpJob) error
	Clock       func() time.Time
	Interval    time.Duration
	Concurrency int
	Logger      *zap.Logger

	stop chan struct{}
	done chan struct{}
}

func (s *Sweeper) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

// Start launches the sweep loop. One sweep runs at a time; a slow sweep
// delays the next tick rather than overlapping it.
func (s *Sweeper) Start(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.RunOnce(ctx); err != nil {
					s.Logger.Error("sweep failed", zap.Error(err))
				}
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
}

// RunOnce performs a single sweep. Jobs in one sweep target distinct
// contacts (the chain check yields at most one job per contact), so they
// dispatch concurrently without violating per-contact ordering. Conflicts
// and transport failures are per-job outcomes, not sweep failures.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	now := s.now()
	jobs, err := s.Scheduler.DueJobs(ctx, now)
	if err != nil {
		return err
	}

	if len(jobs) > 0 {
		s.Logger.Info("sweep found due jobs", zap.Int("count", len(jobs)))

		g, gctx := errgroup.WithContext(ctx)
		concurrency := s.Concurrency
		if concurrency <= 0 {
			concurrency = 4
		}
		g.SetLimit(concurrency)

		for _, job := range jobs {
			job := job
			g.Go(func() error {
				err := s.Dispatch(gctx, job)
				switch {
				case err == nil:
				case errors.Is(err, apperrors.ErrDispatchConflict):
					// Another dispatcher got there first; nothing to do.
				case apperrors.IsTransport(err):
					// Stays pending; the next sweep offers it again.
				default:
					s.Logger.Error("dispatch failed",
						zap.Int("campaign_id", job.CampaignID),
						zap.Int("contact_id", job.ContactID),
						zap.Error(err),
					)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	// Completion is checked for every sending campaign, not just those
	// that produced jobs: the last owed send can disappear without a
	// dispatch when its rule condition is voided by an open or click.
	campaigns, err := s.Campaigns.CampaignRepo.ListDispatchable(ctx)
	if err != nil {
		return err
	}
	for _, c := range campaigns {
		if c.Status != model.CampaignStatusSending {
			continue
		}
		if _, err := s.Campaigns.CheckCompletion(ctx, c.ID); err != nil {
			s.Logger.Error("completion check failed", zap.Int("campaign_id", c.ID), zap.Error(err))
		}
	}
	return nil
}
