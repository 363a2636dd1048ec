// Package sweeper runs the server's periodic maintenance: expiring sessions
// and collecting unreferenced chunks.
package sweeper

import (
	"context"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/logging"
)

const defaultGCBatch = 500

type SessionPurger interface {
	SweepExpiredSessions(ctx context.Context) (int64, error)
}

type GarbageCollector interface {
	CollectGarbage(ctx context.Context, grace time.Duration, limit int) (int, error)
}

// every calls fn each interval until ctx is done.
func every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

type SessionSweeper struct {
	sessions SessionPurger
	interval time.Duration
	logger   logging.Logger
}

func NewSessionSweeper(s SessionPurger, interval time.Duration, l logging.Logger) *SessionSweeper {
	return &SessionSweeper{sessions: s, interval: interval, logger: l.With("module", "session_sweeper")}
}

// Run blocks until ctx is cancelled.
func (s *SessionSweeper) Run(ctx context.Context) {
	s.logger.Info(ctx, "Starting session sweeper", "interval", s.interval)
	every(ctx, s.interval, s.sweep)
}

func (s *SessionSweeper) sweep(ctx context.Context) {
	n, err := s.sessions.SweepExpiredSessions(ctx)
	if err != nil {
		s.logger.Error(ctx, "failed to sweep expired sessions", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info(ctx, "swept expired sessions", "removed", n)
	}
}

// ChunkCollector removes chunks that no file version references once they
// are older than the grace period.
type ChunkCollector struct {
	chunks   GarbageCollector
	interval time.Duration
	grace    time.Duration
	batch    int
	logger   logging.Logger
}

func NewChunkCollector(c GarbageCollector, interval, grace time.Duration, l logging.Logger) *ChunkCollector {
	return &ChunkCollector{chunks: c, interval: interval, grace: grace, batch: defaultGCBatch,
		logger: l.With("module", "chunk_collector")}
}

func (c *ChunkCollector) Run(ctx context.Context) {
	c.logger.Info(ctx, "Starting chunk collector", "interval", c.interval, "grace", c.grace)
	every(ctx, c.interval, c.collect)
}

// collect drains full batches so a backlog clears within one tick.
func (c *ChunkCollector) collect(ctx context.Context) {
	total := 0
	for ctx.Err() == nil {
		n, err := c.chunks.CollectGarbage(ctx, c.grace, c.batch)
		if err != nil {
			c.logger.Error(ctx, "failed to collect chunks", "error", err)
			break
		}
		total += n
		if n < c.batch {
			break
		}
	}
	if total > 0 {
		c.logger.Info(ctx, "collected chunks", "removed", total)
	}
}
