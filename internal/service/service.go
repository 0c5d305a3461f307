package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"farewatch/internal/alerting"
	"farewatch/internal/scheduler"
	"farewatch/internal/storage"
)

// Service drives periodic alert evaluation. One instance per cluster does
// the work at a time: the postgres advisory lock fences concurrent
// deployments, and the scheduler fences overlapping passes within one
// process.
type Service struct {
	scheduler *scheduler.Scheduler
	evaluator *alerting.Evaluator
	locker    storage.AdvisoryLocker
	lockKey   int64
	logger    zerolog.Logger
}

// New constructs the evaluation service.
func New(sched *scheduler.Scheduler, evaluator *alerting.Evaluator, locker storage.AdvisoryLocker, lockKey int64, logger zerolog.Logger) *Service {
	return &Service{
		scheduler: sched,
		evaluator: evaluator,
		locker:    locker,
		lockKey:   lockKey,
		logger:    logger.With().Str("component", "service").Logger(),
	}
}

// Run begins the evaluation loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessBucket)
}

// ProcessBucket runs one evaluation pass under the advisory lock.
func (s *Service) ProcessBucket(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip bucket because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	fired, err := s.evaluator.EvaluateAll(ctx)
	if err != nil {
		return fmt.Errorf("evaluate alerts: %w", err)
	}

	s.logger.Info().Time("bucket", bucket).Int("fired", fired).Msg("evaluation pass recorded")
	return nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
