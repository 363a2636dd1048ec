// Package healthcheck reports whether the database and the object store
// answer. The gRPC health service and the HTTP health endpoint both read it.
package healthcheck

import (
	"context"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/logging"
	"golang.org/x/sync/errgroup"
)

const (
	defaultTimeout  = 5 * time.Second
	defaultInterval = 30 * time.Second
)

type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function such as (*sql.DB).PingContext to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Services struct {
	Database    Status `json:"database"`
	ObjectStore Status `json:"objectStore"`
}

type Report struct {
	Status   Status   `json:"status"`
	Services Services `json:"services"`
}

func (r Report) OK() bool { return r.Status == StatusOK }

type Checker struct {
	db      Pinger
	store   Pinger
	timeout time.Duration
	logger  logging.Logger
}

func NewChecker(db, store Pinger, l logging.Logger) *Checker {
	return &Checker{db: db, store: store, timeout: defaultTimeout, logger: l.With("module", "healthcheck")}
}

func (c *Checker) ping(ctx context.Context, name string, p Pinger) Status {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		c.logger.Warn(ctx, "dependency is unhealthy", "dependency", name, "error", err)
		return StatusError
	}
	return StatusOK
}

// Check pings both dependencies concurrently.
func (c *Checker) Check(ctx context.Context) Report {
	var r Report
	var g errgroup.Group
	g.Go(func() error {
		r.Services.Database = c.ping(ctx, "database", c.db)
		return nil
	})
	g.Go(func() error {
		r.Services.ObjectStore = c.ping(ctx, "object_store", c.store)
		return nil
	})
	_ = g.Wait()

	r.Status = StatusOK
	if r.Services.Database != StatusOK || r.Services.ObjectStore != StatusOK {
		r.Status = StatusError
	}
	return r
}

// Watch checks immediately and then every interval, handing each report to
// fn, until ctx is done. Status changes are logged.
func (c *Checker) Watch(ctx context.Context, interval time.Duration, fn func(Report)) {
	if interval <= 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last Status
	for {
		r := c.Check(ctx)
		if r.Status != last {
			c.logger.Info(ctx, "health status changed", "status", r.Status,
				"database", r.Services.Database, "object_store", r.Services.ObjectStore)
			last = r.Status
		}
		fn(r)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
