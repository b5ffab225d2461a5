package buffer

import (
	"fmt"
	"log"
	"sync"

	"github.com/robfig/cron/v3"
)

// CheckpointScheduler periodically flushes every dirty frame in a Pool on a
// cron expression, standing in for a background writer thread without
// pulling in any actual threading model beyond what cron already provides.
type CheckpointScheduler struct {
	pool *Pool
	cron *cron.Cron

	mu      sync.Mutex
	running bool
	lastErr error
}

// NewCheckpointScheduler builds a scheduler over pool. Call Start to begin
// running checkpoints; the schedule is not active until then.
func NewCheckpointScheduler(pool *Pool) *CheckpointScheduler {
	return &CheckpointScheduler{
		pool: pool,
		cron: cron.New(cron.WithSeconds()),
	}
}

// Start registers a checkpoint job on cronExpr (standard 6-field cron with
// seconds, e.g. "*/30 * * * * *" for every 30 seconds) and begins running
// it. Returns an error if cronExpr cannot be parsed.
func (s *CheckpointScheduler) Start(cronExpr string) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("checkpoint scheduler: already running")
	}
	s.mu.Unlock()

	if _, err := s.cron.AddFunc(cronExpr, s.runCheckpoint); err != nil {
		return fmt.Errorf("checkpoint scheduler: invalid cron expression %q: %w", cronExpr, err)
	}
	s.cron.Start()
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	return nil
}

// Stop halts the schedule and waits for any in-flight checkpoint to finish.
func (s *CheckpointScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *CheckpointScheduler) runCheckpoint() {
	if err := s.pool.FlushAll(); err != nil {
		log.Printf("checkpoint: flush failed: %v", err)
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		return
	}
	log.Printf("checkpoint: flushed all dirty frames")
}

// LastError returns the error from the most recent checkpoint run, if any.
func (s *CheckpointScheduler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
