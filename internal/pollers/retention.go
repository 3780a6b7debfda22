package pollers

import (
	"context"
	"errors"
	"time"

	"github.com/rmitchellscott/ditherbox/internal/database"
	"github.com/rmitchellscott/ditherbox/internal/logging"
	"github.com/rmitchellscott/ditherbox/internal/storage"
)

// NewRetentionPoller removes jobs older than retention along with their
// stored results, then sweeps result files no job references anymore.
func NewRetentionPoller(interval, retention time.Duration, jobs *database.JobService, images *storage.ImageStorage) *BasePoller {
	config := DefaultConfig("result-retention", interval)
	config.Enabled = interval > 0 && retention > 0
	return NewBasePoller(config, func(ctx context.Context) error {
		return PurgeExpired(ctx, retention, jobs, images)
	})
}

// PurgeExpired runs one retention pass.
func PurgeExpired(ctx context.Context, retention time.Duration, jobs *database.JobService, images *storage.ImageStorage) error {
	expired, err := jobs.DeleteOlderThan(ctx, time.Now().Add(-retention))
	if err != nil {
		return err
	}

	var errs []error
	for _, job := range expired {
		if err := images.Delete(ctx, job.ResultKey); err != nil {
			errs = append(errs, err)
		}
	}

	orphans, err := images.CleanupOldImages(ctx, retention)
	if err != nil {
		errs = append(errs, err)
	}

	if len(expired) > 0 || orphans > 0 {
		logging.InfoWithComponent(logging.ComponentCleanup, "Removed expired results",
			"jobs", len(expired), "orphaned_files", orphans)
	}
	return errors.Join(errs...)
}

// NewFuncPoller wraps a function that cannot fail as a poller.
func NewFuncPoller(name string, interval time.Duration, fn func()) *BasePoller {
	config := DefaultConfig(name, interval)
	config.RunAtStart = false
	return NewBasePoller(config, func(ctx context.Context) error {
		fn()
		return nil
	})
}
