package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

type Logger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

// Scheduler runs named jobs on six field cron specs (seconds first). A job
// still running when its next tick arrives is skipped for that tick.
type Scheduler struct {
	cron   *cron.Cron
	logger Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func New(logger Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddJob registers job under name. Jobs receive a context that is cancelled
// by Stop.
func (s *Scheduler) AddJob(name, spec string, job func(context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()

		start := time.Now()
		s.logger.Infof("=== Triggered %s ===", name)
		if err := job(ctx); err != nil {
			s.logger.Errorf("%s failed after %s: %v", name, time.Since(start).Round(time.Second), err)
			return
		}
		s.logger.Infof("%s finished in %s", name, time.Since(start).Round(time.Second))
	})
	return err
}

// Entries is the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
}
