package ratelimit

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// Sweeper periodically prunes closed usage windows past the retention
// horizon. It runs alongside live traffic; the delete predicate only touches
// windows that closed at least retention ago.
type Sweeper struct {
	service   *Service
	interval  time.Duration
	retention time.Duration
}

// NewSweeper constructs a Sweeper. Returns nil when the service is nil.
func NewSweeper(service *Service, interval, retention time.Duration) *Sweeper {
	if service == nil || interval <= 0 || retention <= 0 {
		return nil
	}
	return &Sweeper{service: service, interval: interval, retention: retention}
}

// Start launches the sweep loop until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	if s == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweepOnce(ctx)
			}
		}
	}()
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	deleted, errSweep := s.service.Cleanup(sweepCtx, s.retention)
	if errSweep != nil {
		log.WithError(errSweep).Warn("rate limit: sweep failed")
		return
	}
	if deleted > 0 {
		log.Infof("rate limit: swept %d closed usage windows", deleted)
	}
}
