package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/bpm4b/bpm4b/internal/config"
	"github.com/bpm4b/bpm4b/internal/logger"
	"github.com/bpm4b/bpm4b/internal/scratch"
)

// maxSweepInterval caps how long stale workspaces can linger between sweeps.
const maxSweepInterval = time.Hour

// ScratchSweeper periodically removes abandoned scratch workspaces.
type ScratchSweeper struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Shutdown implements do.Shutdownable.
func (s *ScratchSweeper) Shutdown() error {
	s.cancel()
	<-s.done
	return nil
}

// ProvideScratchSweeper starts the background scratch sweeper.
func ProvideScratchSweeper(i do.Injector) (*ScratchSweeper, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	mgr := do.MustInvoke[*scratch.Manager](i)

	ctx, cancel := context.WithCancel(context.Background())
	sweeper := &ScratchSweeper{cancel: cancel, done: make(chan struct{})}

	interval := sweepInterval(cfg.Convert.ScratchMaxAge)
	go runSweeper(ctx, mgr, cfg.Convert.ScratchMaxAge, interval, log, sweeper.done)

	log.Info("Scratch sweeper started", "interval", interval, "max_age", cfg.Convert.ScratchMaxAge)

	return sweeper, nil
}

// sweepInterval runs sweeps at half the max age, capped at maxSweepInterval.
func sweepInterval(maxAge time.Duration) time.Duration {
	interval := maxAge / 2
	if interval <= 0 || interval > maxSweepInterval {
		interval = maxSweepInterval
	}
	return interval
}

func runSweeper(ctx context.Context, mgr *scratch.Manager, maxAge, interval time.Duration, log *logger.Logger, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := mgr.Sweep(maxAge); err != nil {
				log.Warn("Scratch sweep failed", "error", err)
			}
		}
	}
}
