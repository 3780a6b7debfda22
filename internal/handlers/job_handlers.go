package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/rmitchellscott/ditherbox/internal/auth"
	"github.com/rmitchellscott/ditherbox/internal/database"
	"github.com/rmitchellscott/ditherbox/internal/dither"
	"github.com/rmitchellscott/ditherbox/internal/imageprocessing"
	"github.com/rmitchellscott/ditherbox/internal/logging"
	"github.com/rmitchellscott/ditherbox/internal/storage"
	"github.com/rmitchellscott/ditherbox/internal/utils"
)

// JobResponse is a newly created job with its download link. Only the
// creator receives the link; listing and fetching jobs never sign one.
type JobResponse struct {
	*database.DitherJob
	DownloadURL       string     `json:"download_url,omitempty"`
	DownloadExpiresAt *time.Time `json:"download_expires_at,omitempty"`
}

// ListJobsQuery holds pagination parameters
type ListJobsQuery struct {
	Limit  int `form:"limit" binding:"min=0"`
	Offset int `form:"offset" binding:"min=0"`
}

func (h *Handler) jobResponse(c *gin.Context, job *database.DitherJob) JobResponse {
	resp := JobResponse{DitherJob: job}
	token, expires, err := h.links.Sign(job.ID)
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentLinks, "Failed to sign download link", "job_id", job.ID, "error", err)
		return resp
	}
	resp.DownloadURL = utils.AbsoluteURL(c.Request, fmt.Sprintf("/api/jobs/%s/image", job.ID), url.Values{"token": {token}})
	resp.DownloadExpiresAt = &expires
	return resp
}

// verifyLink checks the token query parameter against the job ID and
// writes a 403 when it does not match.
func (h *Handler) verifyLink(c *gin.Context, id uuid.UUID) bool {
	if err := h.links.Verify(c.Query("token"), id); err != nil {
		if !errors.Is(err, auth.ErrInvalidToken) {
			logging.ErrorWithComponent(logging.ComponentLinks, "Failed to verify download token", "job_id", id, "error", err)
		}
		c.JSON(http.StatusForbidden, gin.H{"error": "Invalid or expired download link"})
		return false
	}
	return true
}

func parseJobID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID"})
		return uuid.Nil, false
	}
	return id, true
}

// CreateJobHandler dithers an image, stores the result and records a job
func (h *Handler) CreateJobHandler(c *gin.Context) {
	in, ok := h.bindDitherInput(c)
	if !ok {
		return
	}

	out, ok := h.process(c, in)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	id := uuid.New()
	key, err := h.images.StoreResult(ctx, id, out.PNG)
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentStorage, "Failed to store result", "job_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store result"})
		return
	}

	warnings := out.Result.Warnings
	if warnings == nil {
		warnings = []dither.Warning{}
	}

	job := &database.DitherJob{
		ID:              id,
		SourceName:      in.sourceName,
		SourceFormat:    in.sourceFormat,
		Preset:          in.preset,
		Algorithm:       out.Result.Params.Algorithm.String(),
		RequestedParams: datatypes.NewJSONType(in.params),
		EffectiveParams: datatypes.NewJSONType(out.Result.Params),
		Warnings:        datatypes.NewJSONType(warnings),
		Applied:         out.Result.Applied,
		OutputFormat:    string(out.Format),
		SourceWidth:     out.SourceWidth,
		SourceHeight:    out.SourceHeight,
		Width:           out.Result.Raster.Width,
		Height:          out.Result.Raster.Height,
		ResultKey:       key,
		ByteSize:        int64(len(out.PNG)),
		DurationMs:      out.Duration.Milliseconds(),
	}
	if err := h.jobs.Create(ctx, job); err != nil {
		logging.ErrorWithComponent(logging.ComponentJobs, "Failed to record job", "job_id", id, "error", err)
		if err := h.images.Delete(ctx, key); err != nil {
			logging.WarnWithComponent(logging.ComponentStorage, "Failed to remove orphaned result", "key", key, "error", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record job"})
		return
	}

	logging.InfoWithComponent(logging.ComponentJobs, "Created job", "job_id", id, "algorithm", job.Algorithm, "bytes", job.ByteSize)
	setResultHeaders(c, out)
	c.JSON(http.StatusCreated, h.jobResponse(c, job))
}

// ListJobsHandler returns jobs newest first
func (h *Handler) ListJobsHandler(c *gin.Context) {
	var query ListJobsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErrorMessage(err)})
		return
	}

	jobs, total, err := h.jobs.List(c.Request.Context(), query.Limit, query.Offset)
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentJobs, "Failed to list jobs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list jobs"})
		return
	}

	limit := query.Limit
	if limit <= 0 {
		limit = database.DefaultListLimit
	}
	limit = min(limit, database.MaxListLimit)

	if jobs == nil {
		jobs = []database.DitherJob{}
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":   jobs,
		"total":  total,
		"limit":  limit,
		"offset": query.Offset,
	})
}

// GetJobHandler returns one job
func (h *Handler) GetJobHandler(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}

	job, err := h.jobs.Get(c.Request.Context(), id)
	if errors.Is(err, database.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentJobs, "Failed to get job", "job_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get job"})
		return
	}

	c.JSON(http.StatusOK, job)
}

// DeleteJobHandler removes a job and its stored result. Like the image
// endpoint it requires the job's download token.
func (h *Handler) DeleteJobHandler(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}
	if !h.verifyLink(c, id) {
		return
	}

	ctx := c.Request.Context()
	job, err := h.jobs.Delete(ctx, id)
	if errors.Is(err, database.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentJobs, "Failed to delete job", "job_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete job"})
		return
	}

	if err := h.images.Delete(ctx, job.ResultKey); err != nil {
		logging.WarnWithComponent(logging.ComponentStorage, "Failed to remove result", "key", job.ResultKey, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Job deleted", "id": id})
}

// JobStatsHandler returns aggregate job counts
func (h *Handler) JobStatsHandler(c *gin.Context) {
	stats, err := h.jobs.Stats(c.Request.Context())
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentJobs, "Failed to compute job stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute job stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// JobImageHandler streams a stored result. The token query parameter must be
// a valid download token for this job.
func (h *Handler) JobImageHandler(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}

	if !h.verifyLink(c, id) {
		return
	}

	ctx := c.Request.Context()
	job, err := h.jobs.Get(ctx, id)
	if errors.Is(err, database.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentJobs, "Failed to get job", "job_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get job"})
		return
	}

	rc, err := h.images.Open(ctx, job.ResultKey)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Result image is no longer available"})
		return
	}
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentStorage, "Failed to open result", "key", job.ResultKey, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open result"})
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, job.ByteSize, "image/png", rc, map[string]string{
		"Content-Disposition": attachmentHeader(imageprocessing.ExportFilename),
		"X-Dither-Algorithm":  job.Algorithm,
	})
}
