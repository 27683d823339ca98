package listener

import (
	"context"
	"time"

	"go.uber.org/zap"

	"rxsync/internal"
	"rxsync/internal/connectors"
	"rxsync/internal/pipeline"
)

type Service struct {
	proc     *pipeline.ProcessingService
	scope    connectors.LocatorScope
	entities []internal.Entity
	workers  int
	interval time.Duration
	log      *zap.Logger
}

func NewService(proc *pipeline.ProcessingService, scope connectors.LocatorScope, entities []internal.Entity, workers int, interval time.Duration, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{proc: proc, scope: scope, entities: entities, workers: workers, interval: interval, log: log}
}

// Run processes every entity once per interval until ctx is done. A failed
// cycle is logged and retried on the next tick; a configuration error stops
// the loop.
func (s *Service) Run(ctx context.Context) error {
	for {
		if _, err := s.RunCycle(ctx); err != nil {
			if internal.IsConfigurationError(err) {
				return err
			}
			s.log.Warn("listener: cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.interval):
		}
	}
}

// RunCycle opens one locator session and processes all entities through it.
func (s *Service) RunCycle(ctx context.Context) ([]pipeline.EntityResult, error) {
	start := time.Now()
	var results []pipeline.EntityResult
	err := s.scope(ctx, func(loc connectors.SourceLocator) error {
		var runErr error
		results, runErr = s.proc.RunAll(ctx, loc, s.entities, s.workers)
		return runErr
	})

	summary := pipeline.Summarize(results)
	s.log.Info("listener: cycle done",
		zap.Int("entities", len(s.entities)),
		zap.Int("done", summary[internal.StateDone]),
		zap.Int("skipped", summary[internal.StateSkipped]),
		zap.Int("failed", summary[internal.StateFailed]),
		zap.Duration("took", time.Since(start)),
	)
	return results, err
}
