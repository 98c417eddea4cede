// Package scheduler runs a job on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"chainflow/logger"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context)

// Scheduler wraps a cron runner. Overlapping ticks are skipped, never queued.
type Scheduler struct {
	spec string
	job  Job
	cron *cron.Cron
	log  *logger.Entry
}

// New parses spec, a standard five field expression or a descriptor such as
// "@every 5m". An empty spec yields a scheduler that runs the job once.
func New(spec string, job Job) (*Scheduler, error) {
	s := &Scheduler{spec: spec, job: job, log: logger.GetLogger().WithComponent("scheduler")}
	if spec == "" {
		return s, nil
	}
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return s, nil
}

// Run blocks until ctx is done. Without a schedule it runs the job once and
// returns.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.cron == nil {
		s.job(ctx)
		return nil
	}

	var wg sync.WaitGroup
	_, err := s.cron.AddFunc(s.spec, func() {
		wg.Add(1)
		defer wg.Done()
		if ctx.Err() != nil {
			return
		}
		s.job(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule job: %w", err)
	}

	s.log.WithFields(logger.Fields{"schedule": s.spec}).Info("scheduler started")
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	wg.Wait()
	s.log.Info("scheduler stopped")
	return nil
}
