package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Outcome tells the scheduler how the last run went
type Outcome int

const (
	Success Outcome = iota
	// Retry requests the next run after the shorter retry interval
	Retry
	Failure
)

// Scheduler runs a job on a fixed interval in a background goroutine.
// A Retry outcome shortens the next delay to the retry interval; Success
// and Failure return to the regular cadence.
type Scheduler struct {
	name          string
	interval      time.Duration
	retryInterval time.Duration
	run           func(ctx context.Context) Outcome
	logger        *zap.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func New(name string, interval, retryInterval time.Duration, run func(ctx context.Context) Outcome, logger *zap.Logger) *Scheduler {
	if retryInterval <= 0 || retryInterval > interval {
		retryInterval = interval
	}
	return &Scheduler{
		name:          name,
		interval:      interval,
		retryInterval: retryInterval,
		run:           run,
		logger:        logger,
	}
}

// Start launches the background loop. Starting a running scheduler is a
// no-op. The first run happens after one interval, not immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})

	s.wg.Add(1)
	go s.loop(ctx, s.stopChan)
	s.logger.Info("Scheduler started",
		zap.String("job", s.name),
		zap.Duration("interval", s.interval),
	)
}

// Stop halts the loop and waits for an in-flight run to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Scheduler stopped", zap.String("job", s.name))
}

// RunNow triggers one run outside the schedule, e.g. from the tray menu
func (s *Scheduler) RunNow(ctx context.Context) Outcome {
	return s.run(ctx)
}

func (s *Scheduler) loop(ctx context.Context, stopChan chan struct{}) {
	defer s.wg.Done()

	delay := s.interval
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			outcome := s.run(ctx)
			if outcome == Retry {
				delay = s.retryInterval
			} else {
				delay = s.interval
			}
			if outcome == Failure {
				s.logger.Warn("Scheduled job failed", zap.String("job", s.name))
			}
			timer.Reset(delay)
		case <-stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}
