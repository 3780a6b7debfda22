package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rmitchellscott/ditherbox/internal/auth"
	"github.com/rmitchellscott/ditherbox/internal/config"
	"github.com/rmitchellscott/ditherbox/internal/database"
	"github.com/rmitchellscott/ditherbox/internal/dither"
	"github.com/rmitchellscott/ditherbox/internal/imageprocessing"
	"github.com/rmitchellscott/ditherbox/internal/middleware"
	"github.com/rmitchellscott/ditherbox/internal/storage"
	"github.com/rmitchellscott/ditherbox/internal/utils"
	"github.com/rmitchellscott/ditherbox/internal/version"
)

// Handler holds the dependencies shared by the API handlers
type Handler struct {
	cfg     config.Config
	presets *config.Presets
	jobs    *database.JobService
	images  *storage.ImageStorage
	links   *auth.Signer
	policy  utils.URLPolicy
	fetch   *http.Client
}

// New creates the API handlers
func New(cfg config.Config, presets *config.Presets, jobs *database.JobService, images *storage.ImageStorage, links *auth.Signer) *Handler {
	if presets == nil {
		presets = config.DefaultPresets()
	}
	policy := utils.NewURLPolicy(cfg.BlockPrivateIPs, cfg.BlockedDomains)
	return &Handler{
		cfg:     cfg,
		presets: presets,
		jobs:    jobs,
		images:  images,
		links:   links,
		policy:  policy,
		fetch:   policy.HTTPClient(cfg.FetchTimeout),
	}
}

// RegisterRoutes mounts every API route on r. Processing endpoints are rate
// limited and size limited.
func (h *Handler) RegisterRoutes(r gin.IRouter, limiter *middleware.IPRateLimiter) {
	r.GET("/healthz", HealthHandler)

	api := r.Group("/api")
	api.GET("/version", VersionHandler)
	api.GET("/config", h.ConfigHandler)
	api.GET("/algorithms", AlgorithmsHandler)
	api.GET("/presets", h.PresetsHandler)

	processing := api.Group("")
	if limiter != nil {
		processing.Use(limiter.RateLimit())
	}
	processing.Use(middleware.RequestSizeLimit(h.cfg.MaxUploadBytes))
	processing.POST("/dither", h.DitherHandler)
	processing.POST("/jobs", h.CreateJobHandler)

	api.GET("/jobs", h.ListJobsHandler)
	api.GET("/jobs/stats", h.JobStatsHandler)
	api.GET("/jobs/:id", h.GetJobHandler)
	api.DELETE("/jobs/:id", h.DeleteJobHandler)
	api.GET("/jobs/:id/image", h.JobImageHandler)
}

// HealthHandler reports liveness
func HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// VersionHandler returns build information
func VersionHandler(c *gin.Context) {
	c.JSON(http.StatusOK, version.Get())
}

// ConfigHandler returns limits and defaults for clients
func (h *Handler) ConfigHandler(c *gin.Context) {
	linkTTL := 0
	if h.links != nil {
		linkTTL = int(h.links.TTL().Seconds())
	}
	c.JSON(http.StatusOK, gin.H{
		"max_upload_bytes": h.cfg.MaxUploadBytes,
		"max_pixels":       h.cfg.MaxPixels,
		"max_dimension":    h.cfg.MaxDimension,
		"default_params":   dither.DefaultParams(),
		"threshold": gin.H{
			"min": dither.MinThreshold,
			"max": dither.MaxThreshold,
		},
		"error_diffusion_factor": gin.H{
			"min": dither.MinFactor,
			"max": dither.MaxFactor,
		},
		"matrix_sizes":          dither.SupportedMatrixSizes,
		"default_matrix_size":   dither.DefaultMatrixSize,
		"formats":               []imageprocessing.Format{imageprocessing.FormatRGBA, imageprocessing.FormatMono},
		"export_filename":       imageprocessing.ExportFilename,
		"link_ttl_seconds":      linkTTL,
		"rate_limit_per_minute": h.cfg.RateLimitPerMinute,
	})
}

type algorithmInfo struct {
	Name       string             `json:"name"`
	Family     string             `json:"family"`
	Parameters []string           `json:"parameters"`
	Taps       []dither.Tap       `json:"taps,omitempty"`
	WeightSum  float64            `json:"weight_sum,omitempty"`
	Matrices   map[string][][]int `json:"matrices,omitempty"`
}

// AlgorithmsHandler describes every supported algorithm
func AlgorithmsHandler(c *gin.Context) {
	algorithms := make([]algorithmInfo, 0, len(dither.Algorithms()))
	for _, a := range dither.Algorithms() {
		info := algorithmInfo{Name: a.String()}
		if k, ok := dither.KernelFor(a); ok {
			info.Family = "error-diffusion"
			info.Parameters = []string{"error_diffusion_factor"}
			info.Taps = k.Taps()
			info.WeightSum = k.Sum()
		} else {
			info.Family = "ordered"
			info.Parameters = []string{"threshold", "matrix_size"}
			info.Matrices = make(map[string][][]int)
			for _, size := range dither.SupportedMatrixSizes {
				m, _ := dither.LookupBayer(size)
				info.Matrices[strconv.Itoa(size)] = m.Rows()
			}
		}
		algorithms = append(algorithms, info)
	}
	c.JSON(http.StatusOK, gin.H{"algorithms": algorithms})
}

// PresetsHandler lists named presets
func (h *Handler) PresetsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"presets": h.presets.List()})
}
