package pollers

import (
	"context"
	"sync"
	"time"

	"github.com/rmitchellscott/ditherbox/internal/logging"
)

// BasePoller runs pollFunc every Interval, retrying failed runs.
type BasePoller struct {
	config   PollerConfig
	pollFunc func(ctx context.Context) error

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	lastRun time.Time
	lastErr error
}

func NewBasePoller(config PollerConfig, pollFunc func(ctx context.Context) error) *BasePoller {
	config.MaxRetries = max(config.MaxRetries, 1)
	return &BasePoller{
		config:   config,
		pollFunc: pollFunc,
	}
}

func (p *BasePoller) Name() string {
	return p.config.Name
}

// Start launches the loop. A disabled poller returns nil without starting.
func (p *BasePoller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	if !p.config.Enabled || p.config.Interval <= 0 {
		logging.InfoWithComponent(logging.ComponentCleanup, "Poller is disabled, skipping start", "poller", p.config.Name)
		return nil
	}

	logging.InfoWithComponent(logging.ComponentCleanup, "Starting poller", "poller", p.config.Name, "interval", p.config.Interval)

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	go p.loop(loopCtx, p.done)
	return nil
}

func (p *BasePoller) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.cancel()
	done := p.done
	p.mu.Unlock()

	// the loop records results under mu, so wait without holding it
	<-done

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	logging.InfoWithComponent(logging.ComponentCleanup, "Poller stopped", "poller", p.config.Name)
	return nil
}

func (p *BasePoller) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

func (p *BasePoller) GetInterval() time.Duration {
	return p.config.Interval
}

// LastResult returns when the last run finished and its final error.
// The zero time means no run has finished yet.
func (p *BasePoller) LastResult() (time.Time, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastRun, p.lastErr
}

func (p *BasePoller) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	if p.config.RunAtStart {
		p.run(ctx)
	}

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.run(ctx)
		}
	}
}

// run makes up to MaxRetries attempts and records the outcome.
func (p *BasePoller) run(ctx context.Context) {
	var err error
	for attempt := 1; attempt <= p.config.MaxRetries; attempt++ {
		if err = p.attempt(ctx); err == nil || ctx.Err() != nil {
			break
		}

		logging.WarnWithComponent(logging.ComponentCleanup, "Poll attempt failed",
			"poller", p.config.Name, "attempt", attempt, "max_attempts", p.config.MaxRetries, "error", err)
		if attempt == p.config.MaxRetries {
			logging.ErrorWithComponent(logging.ComponentCleanup, "Poller failed after all attempts",
				"poller", p.config.Name, "attempts", p.config.MaxRetries)
			break
		}

		select {
		case <-ctx.Done():
		case <-time.After(p.config.RetryDelay):
			continue
		}
		break
	}

	if ctx.Err() != nil {
		return
	}
	p.mu.Lock()
	p.lastRun = time.Now()
	p.lastErr = err
	p.mu.Unlock()
}

func (p *BasePoller) attempt(ctx context.Context) error {
	if p.config.Timeout <= 0 {
		return p.pollFunc(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()
	return p.pollFunc(ctx)
}
