package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"slotbook/internal/config"
	"slotbook/internal/domain"
	"slotbook/internal/models"
	"slotbook/internal/repository"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Expirer releases expired holds. domain.Scheduler satisfies it.
type Expirer interface {
	ExpireStaleReservations(ctx context.Context) (*models.SweepResult, error)
}

// Sweeper runs ExpireStaleReservations on a cron schedule. When a Locker is
// set, each run first takes a lease so that only one process sweeps at a time.
type Sweeper struct {
	expirer      Expirer
	locker       domain.Locker
	schedule     string
	leaseKey     string
	leaseTTL     time.Duration
	requireLease bool
	retry        RetryPolicy
	logger       *zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error

	mu   sync.Mutex
	cron *cron.Cron
}

// NewSweeper builds a sweeper. locker may be nil for a single-process setup.
func NewSweeper(expirer Expirer, locker domain.Locker, cfg config.SweeperConfig, logger *zerolog.Logger) *Sweeper {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1m"
	}
	if cfg.LeaseKey == "" {
		cfg.LeaseKey = "sweeper"
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = models.DefaultSweepLeaseTTL
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Sweeper{
		expirer:      expirer,
		locker:       locker,
		schedule:     cfg.Schedule,
		leaseKey:     cfg.LeaseKey,
		leaseTTL:     cfg.LeaseTTL,
		requireLease: cfg.RequireLease,
		retry:        RetryPolicyFromConfig(cfg.Retry),
		logger:       logger,
		sleep:        sleepCtx,
	}
}

// Start schedules the sweep and returns immediately. The schedule stops
// when ctx is done or Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("sweeper already started")
	}

	c := cron.New(
		cron.WithLogger(cron.PrintfLogger(s.logger)),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(s.schedule, func() { s.tick(ctx) }); err != nil {
		return fmt.Errorf("schedule sweeper %q: %w", s.schedule, err)
	}
	c.Start()
	s.cron = c

	s.logger.Info().Str("schedule", s.schedule).Msg("Sweeper started")

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Info().Msg("Sweeper stopped")
}

func (s *Sweeper) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	_, err := s.RunOnce(ctx)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrLeaseHeld):
		s.logger.Debug().Str("lease", s.leaseKey).Msg("Sweep skipped, lease held elsewhere")
	default:
		s.logger.Error().Err(err).Msg("Sweep failed")
	}
}

// RunOnce performs one sweep. It returns domain.ErrLeaseHeld without
// sweeping when another process holds the lease. Storage failures are
// retried with backoff.
func (s *Sweeper) RunOnce(ctx context.Context) (*models.SweepResult, error) {
	if s.locker != nil {
		token, err := s.locker.TryLock(ctx, s.leaseKey, s.leaseTTL)
		switch {
		case err == nil:
			defer s.unlock(token)
		case errors.Is(err, domain.ErrLeaseHeld):
			return nil, err
		case s.requireLease:
			return nil, fmt.Errorf("acquire sweeper lease: %w", err)
		default:
			s.logger.Warn().Err(err).Msg("Sweeper lease unavailable, sweeping without it")
		}
	}

	for attempt := 1; ; attempt++ {
		res, err := s.expirer.ExpireStaleReservations(ctx)
		if err == nil {
			return res, nil
		}
		if domain.KindOf(err) != domain.KindStorage || attempt > s.retry.MaxRetries {
			return nil, err
		}

		delay := s.retry.NextDelay(attempt)
		s.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("Sweep failed, retrying")
		if err := s.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (s *Sweeper) unlock(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.locker.Unlock(ctx, s.leaseKey, token)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrLeaseLost):
		s.logger.Warn().Str("lease", s.leaseKey).Msg("Sweeper lease expired before the sweep finished")
	default:
		s.logger.Error().Err(err).Str("lease", s.leaseKey).Msg("Failed to release sweeper lease")
	}
}
