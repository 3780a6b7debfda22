package pollers

import (
	"context"
	"time"
)

// Poller is a background task run by the Manager.
type Poller interface {
	Name() string
	Start(ctx context.Context) error
	// Stop cancels the loop and waits for an in-flight run.
	Stop() error
	IsRunning() bool
	GetInterval() time.Duration
}

// PollerConfig controls one poller's schedule. A poller with a
// non-positive Interval or Enabled unset never starts.
type PollerConfig struct {
	Name     string
	Interval time.Duration
	Enabled  bool

	// MaxRetries is the number of attempts per tick, at least one.
	MaxRetries int
	RetryDelay time.Duration
	// Timeout bounds each attempt. Zero means no deadline.
	Timeout time.Duration
	// RunAtStart runs one poll immediately instead of waiting an interval.
	RunAtStart bool
}

// DefaultConfig is enabled whenever interval is positive. Cleanup work is
// cheap to retry, so failed attempts are retried quickly.
func DefaultConfig(name string, interval time.Duration) PollerConfig {
	return PollerConfig{
		Name:       name,
		Interval:   interval,
		Enabled:    interval > 0,
		MaxRetries: 3,
		RetryDelay: 10 * time.Second,
		Timeout:    2 * time.Minute,
		RunAtStart: true,
	}
}
