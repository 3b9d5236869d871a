// Package scheduler runs treasury cycles on a cron schedule behind the leader gate.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"treasurycontrol/internal/orchestrator"
)

// ErrNotLeader is returned by RunOnce when another instance holds the lease.
var ErrNotLeader = errors.New("not the leader")

type CycleRunner interface {
	ExecuteCycle(ctx context.Context, assetID string) (*orchestrator.CycleResult, error)
}

// Gate is the leader lease. A nil Gate means this instance always runs.
type Gate interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type Config struct {
	// Spec is a cron expression with a seconds field, e.g. "0 */15 * * * *".
	Spec    string
	AssetID string
	Timeout time.Duration
}

type Scheduler struct {
	cfg    Config
	runner CycleRunner
	gate   Gate
	cron   *cron.Cron
	log    *logrus.Entry

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg Config, runner CycleRunner, gate Gate, log *logrus.Entry) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("cycle runner is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "scheduler")

	cronLog := cron.PrintfLogger(log)
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	s := &Scheduler{cfg: cfg, runner: runner, gate: gate, cron: c, log: log}

	if _, err := c.AddFunc(cfg.Spec, s.tick); err != nil {
		return nil, fmt.Errorf("invalid cycle schedule %q: %w", cfg.Spec, err)
	}
	return s, nil
}

// Start runs the schedule until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.cron.Start()
	s.log.WithField("spec", s.cfg.Spec).Info("cycle schedule started")
}

// Stop halts the schedule and waits for a running cycle to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.log.Info("cycle schedule stopped")
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	_, err := s.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrNotLeader):
		s.log.Debug("skipping cycle, not the leader")
	case err != nil:
		s.log.WithError(err).Error("scheduled cycle failed")
	}
}

// RunOnce executes one cycle under the configured timeout while holding the gate.
func (s *Scheduler) RunOnce(ctx context.Context) (*orchestrator.CycleResult, error) {
	if s.gate != nil {
		ok, err := s.gate.TryAcquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("leader gate: %w", err)
		}
		if !ok {
			return nil, ErrNotLeader
		}
		defer func() {
			// The cycle context may already be expired here.
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := s.gate.Release(releaseCtx); err != nil {
				s.log.WithError(err).Warn("failed to release leader lease")
			}
		}()
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	return s.runner.ExecuteCycle(runCtx, s.cfg.AssetID)
}
