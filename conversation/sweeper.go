package conversation

import (
	"context"
	"time"

	"github.com/hupe1980/chatrelay/logging"
)

// DefaultSweepInterval is how often the background sweep runs when not
// configured otherwise.
const DefaultSweepInterval = 10 * time.Minute

// Sweeper periodically removes expired sessions. It runs independently of
// request handling: the sweep only deletes entries already logically expired
// and never blocks a concurrent Get or Put.
type Sweeper struct {
	manager  *Manager
	interval time.Duration
	logger   logging.Logger
	stop     chan struct{}
	done     chan struct{}
}

// NewSweeper creates a Sweeper over the manager. A non-positive interval
// falls back to DefaultSweepInterval.
func NewSweeper(manager *Manager, interval time.Duration, logger logging.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Sweeper{
		manager:  manager,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. It returns immediately.
func (s *Sweeper) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				start := time.Now()
				removed := s.manager.Sweep(context.Background())
				s.logger.Debug("Sweep pass finished", "removed", removed, "duration", time.Since(start))
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop terminates the sweep loop and waits for it to exit.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}
