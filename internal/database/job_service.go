package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrJobNotFound is returned when no job has the requested ID.
var ErrJobNotFound = errors.New("job not found")

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// AlgorithmCount is one row of JobStats.ByAlgorithm.
type AlgorithmCount struct {
	Algorithm string `json:"algorithm"`
	Count     int64  `json:"count"`
}

// JobStats summarizes stored jobs.
type JobStats struct {
	TotalJobs   int64            `json:"total_jobs"`
	AppliedJobs int64            `json:"applied_jobs"`
	TotalBytes  int64            `json:"total_bytes"`
	ByAlgorithm []AlgorithmCount `json:"by_algorithm"`
}

// JobService handles dither job database operations
type JobService struct {
	db *gorm.DB
}

// NewJobService creates a new job service
func NewJobService(db *gorm.DB) *JobService {
	return &JobService{db: db}
}

// Create inserts a job. A nil ID is assigned by the model hook.
func (s *JobService) Create(ctx context.Context, job *DitherJob) error {
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// Get returns a job by ID.
func (s *JobService) Get(ctx context.Context, id uuid.UUID) (*DitherJob, error) {
	var job DitherJob
	err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// List returns jobs newest first along with the total count. Limit is
// bounded to MaxListLimit and defaults to DefaultListLimit.
func (s *JobService) List(ctx context.Context, limit, offset int) ([]DitherJob, int64, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)
	offset = max(offset, 0)

	db := s.db.WithContext(ctx)

	var total int64
	if err := db.Model(&DitherJob{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	var jobs []DitherJob
	if err := db.Order("created_at DESC").Order("id").Limit(limit).Offset(offset).Find(&jobs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, total, nil
}

// Delete removes a job and returns the deleted record so callers can clean
// up its stored result.
func (s *JobService) Delete(ctx context.Context, id uuid.UUID) (*DitherJob, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Delete(&DitherJob{}, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to delete job: %w", err)
	}
	return job, nil
}

// DeleteOlderThan removes jobs created before cutoff and returns them.
func (s *JobService) DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]DitherJob, error) {
	var expired []DitherJob
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("created_at < ?", cutoff).Find(&expired).Error; err != nil {
			return err
		}
		if len(expired) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, len(expired))
		for i, job := range expired {
			ids[i] = job.ID
		}
		return tx.Where("id IN ?", ids).Delete(&DitherJob{}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete expired jobs: %w", err)
	}
	return expired, nil
}

// Stats returns aggregate counts over all jobs.
func (s *JobService) Stats(ctx context.Context) (*JobStats, error) {
	db := s.db.WithContext(ctx)
	stats := &JobStats{ByAlgorithm: []AlgorithmCount{}}

	if err := db.Model(&DitherJob{}).Count(&stats.TotalJobs).Error; err != nil {
		return nil, err
	}

	if err := db.Model(&DitherJob{}).Where("applied = ?", true).Count(&stats.AppliedJobs).Error; err != nil {
		return nil, err
	}

	if err := db.Model(&DitherJob{}).Select("COALESCE(SUM(byte_size), 0)").Scan(&stats.TotalBytes).Error; err != nil {
		return nil, err
	}

	if err := db.Model(&DitherJob{}).
		Select("algorithm, COUNT(*) AS count").
		Group("algorithm").
		Order("algorithm").
		Scan(&stats.ByAlgorithm).Error; err != nil {
		return nil, err
	}

	return stats, nil
}
