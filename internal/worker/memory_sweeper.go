package worker

import (
	"context"
	"fmt"
	"time"

	"campus-assistant-be/internal/pkg/logger"
	"campus-assistant-be/pkg/audit"

	"github.com/gorhill/cronexpr"
)

const logModule = "SWEEPER"

// Evictor is the session store's expiry surface.
type Evictor interface {
	EvictExpired(now time.Time, ttl time.Duration) int
	Len() int
}

type SweepObserver interface {
	SetActiveSessions(n int)
	AddEvicted(n int)
}

// MemorySweeper evicts idle sessions on a cron schedule.
type MemorySweeper struct {
	schedule string
	expr     *cronexpr.Expression
	ttl      time.Duration
	evictor  Evictor
	audit    audit.Publisher
	observer SweepObserver
	logger   logger.ILogger
	now      func() time.Time
}

func NewMemorySweeper(
	schedule string,
	ttl time.Duration,
	evictor Evictor,
	auditPub audit.Publisher,
	observer SweepObserver,
	log logger.ILogger,
) (*MemorySweeper, error) {
	expr, err := cronexpr.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", schedule, err)
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &MemorySweeper{
		schedule: schedule,
		expr:     expr,
		ttl:      ttl,
		evictor:  evictor,
		audit:    auditPub,
		observer: observer,
		logger:   log,
		now:      time.Now,
	}, nil
}

// Start runs the sweep loop until ctx is done. A non-positive TTL disables it.
func (s *MemorySweeper) Start(ctx context.Context) {
	if s == nil {
		return
	}
	if s.ttl <= 0 {
		s.logger.Info(logModule, "session expiry disabled", nil)
		return
	}
	s.logger.Info(logModule, "session sweeper started", map[string]interface{}{
		"schedule": s.schedule,
		"ttl":      s.ttl.String(),
	})
	go s.loop(ctx)
}

func (s *MemorySweeper) loop(ctx context.Context) {
	for {
		next := s.expr.Next(s.now())
		if next.IsZero() {
			s.logger.Warn(logModule, "sweep schedule has no future run", map[string]interface{}{"schedule": s.schedule})
			return
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep evicts once and returns the number of sessions removed.
func (s *MemorySweeper) Sweep(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}

	removed := s.evictor.EvictExpired(s.now(), s.ttl)
	remaining := s.evictor.Len()

	if s.observer != nil {
		s.observer.SetActiveSessions(remaining)
		s.observer.AddEvicted(removed)
	}
	if removed > 0 {
		s.logger.Info(logModule, "evicted idle sessions", map[string]interface{}{
			"removed":   removed,
			"remaining": remaining,
		})
		if s.audit != nil {
			s.audit.PublishSessionsEvicted(ctx, removed, remaining)
		}
	}
	return removed
}
