package handlers

import (
	"errors"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rmitchellscott/ditherbox/internal/config"
	"github.com/rmitchellscott/ditherbox/internal/dither"
	"github.com/rmitchellscott/ditherbox/internal/imageprocessing"
	"github.com/rmitchellscott/ditherbox/internal/logging"
	"github.com/rmitchellscott/ditherbox/internal/utils"
)

// DitherRequest is the form (or JSON body) accepted by the dither
// endpoints. The image comes from the "image" multipart file or from URL.
// Out of range numbers are clamped by the dither core rather than rejected.
type DitherRequest struct {
	Algorithm            string   `form:"algorithm" json:"algorithm" binding:"omitempty,max=64"`
	Threshold            *int     `form:"threshold" json:"threshold"`
	ErrorDiffusionFactor *float64 `form:"error_diffusion_factor" json:"error_diffusion_factor"`
	MatrixSize           *int     `form:"matrix_size" json:"matrix_size"`
	Preset               string   `form:"preset" json:"preset" binding:"omitempty,max=100"`
	Format               string   `form:"format" json:"format" binding:"omitempty,oneof=rgba mono"`
	MaxWidth             int      `form:"max_width" json:"max_width" binding:"min=0"`
	MaxHeight            int      `form:"max_height" json:"max_height" binding:"min=0"`
	URL                  string   `form:"url" json:"url" binding:"omitempty,url,max=2048"`
}

// ditherInput is a bound request with its source image loaded
type ditherInput struct {
	img          image.Image
	sourceFormat string
	sourceName   string
	preset       string
	params       dither.Params
	opts         imageprocessing.ProcessingOptions
}

// bindDitherInput parses the request and loads the source image. On failure
// it writes the error response and returns false.
func (h *Handler) bindDitherInput(c *gin.Context) (*ditherInput, bool) {
	var req DitherRequest
	if err := c.ShouldBind(&req); err != nil {
		if isBodyTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request payload too large"})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErrorMessage(err)})
		return nil, false
	}

	params, err := h.presets.ResolveParams(req.Preset, config.Overrides{
		Algorithm:  req.Algorithm,
		Threshold:  req.Threshold,
		Factor:     req.ErrorDiffusionFactor,
		MatrixSize: req.MatrixSize,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown preset", "preset": req.Preset})
		return nil, false
	}

	in := &ditherInput{
		preset: req.Preset,
		params: params,
		opts: imageprocessing.ProcessingOptions{
			MaxWidth:  h.boundDimension(req.MaxWidth),
			MaxHeight: h.boundDimension(req.MaxHeight),
			MaxPixels: h.cfg.MaxPixels,
			Format:    imageprocessing.ParseFormat(req.Format),
		},
	}

	if req.URL != "" {
		return in, h.loadFromURL(c, req.URL, in)
	}
	return in, h.loadFromUpload(c, in)
}

// boundDimension applies MAX_DIMENSION to a requested bound. Zero means no
// request, which still gets the configured cap.
func (h *Handler) boundDimension(requested int) int {
	limit := h.cfg.MaxDimension
	if limit <= 0 {
		return requested
	}
	if requested <= 0 || requested > limit {
		return limit
	}
	return requested
}

func (h *Handler) loadFromUpload(c *gin.Context, in *ditherInput) bool {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		if isBodyTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request payload too large"})
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "An image file or url is required"})
		return false
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file"})
		return false
	}
	defer file.Close()

	img, format, err := imageprocessing.Decode(file, h.cfg.MaxPixels)
	if err != nil {
		writeDecodeError(c, err)
		return false
	}

	in.img = img
	in.sourceFormat = format
	in.sourceName = path.Base(fileHeader.Filename)
	return true
}

func (h *Handler) loadFromURL(c *gin.Context, sourceURL string, in *ditherInput) bool {
	ctx := c.Request.Context()
	if err := h.policy.Validate(ctx, sourceURL); err != nil {
		logging.WarnWithComponent(logging.ComponentAPI, "Rejected source URL", "url", sourceURL, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": strings.TrimPrefix(err.Error(), utils.ErrURLNotAllowed.Error()+": ")})
		return false
	}

	img, format, err := imageprocessing.LoadImageFromURL(ctx, h.fetch, sourceURL, h.cfg.MaxUploadBytes, h.cfg.MaxPixels)
	if errors.Is(err, utils.ErrURLNotAllowed) {
		logging.WarnWithComponent(logging.ComponentAPI, "Rejected source URL during fetch", "url", sourceURL, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Source URL redirected or resolved to a blocked address"})
		return false
	}
	if err != nil {
		if errors.Is(err, imageprocessing.ErrImageTooLarge) || errors.Is(err, imageprocessing.ErrSourceTooLarge) || errors.Is(err, image.ErrFormat) {
			writeDecodeError(c, err)
			return false
		}
		logging.WarnWithComponent(logging.ComponentAPI, "Failed to fetch source image", "url", sourceURL, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch image", "details": err.Error()})
		return false
	}

	in.img = img
	in.sourceFormat = format
	in.sourceName = "remote"
	if u, err := url.Parse(sourceURL); err == nil && path.Base(u.Path) != "/" && path.Base(u.Path) != "." {
		in.sourceName = path.Base(u.Path)
	}
	return true
}

// writeDecodeError maps a decode failure to a status code
func writeDecodeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, imageprocessing.ErrImageTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Image exceeds the pixel limit", "details": err.Error()})
	case errors.Is(err, imageprocessing.ErrSourceTooLarge), isBodyTooLarge(err):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request payload too large"})
	case errors.Is(err, image.ErrFormat):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "Unsupported image format"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to decode image", "details": err.Error()})
	}
}

// process runs the pipeline on a bound input. On failure it writes the
// error response and returns false.
func (h *Handler) process(c *gin.Context, in *ditherInput) (*imageprocessing.Output, bool) {
	out, err := imageprocessing.ProcessImage(in.img, in.sourceFormat, in.params, in.opts)
	if err != nil {
		if errors.Is(err, imageprocessing.ErrImageTooLarge) || errors.Is(err, imageprocessing.ErrEmptyImage) {
			writeDecodeError(c, err)
			return nil, false
		}
		logging.ErrorWithComponent(logging.ComponentDither, "Failed to process image", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process image"})
		return nil, false
	}

	logging.InfoWithComponent(logging.ComponentDither, "Dithered image",
		"algorithm", out.Result.Params.Algorithm.String(),
		"applied", out.Result.Applied,
		"warnings", len(out.Result.Warnings),
		"width", out.Result.Raster.Width,
		"height", out.Result.Raster.Height,
		"duration", out.Duration)
	return out, true
}

// setResultHeaders reports what the pipeline actually did
func setResultHeaders(c *gin.Context, out *imageprocessing.Output) {
	c.Header("X-Dither-Algorithm", out.Result.Params.Algorithm.String())
	c.Header("X-Dither-Applied", strconv.FormatBool(out.Result.Applied))
	c.Header("X-Dither-Format", string(out.Format))
	if len(out.Result.Warnings) > 0 {
		msgs := make([]string, len(out.Result.Warnings))
		for i, w := range out.Result.Warnings {
			msgs[i] = w.String()
		}
		c.Header("X-Dither-Warnings", strings.Join(msgs, "; "))
	}
}

func attachmentHeader(filename string) string {
	return fmt.Sprintf("attachment; filename=\"%s\"", filename)
}

// DitherHandler dithers the uploaded or fetched image and returns the PNG
func (h *Handler) DitherHandler(c *gin.Context) {
	in, ok := h.bindDitherInput(c)
	if !ok {
		return
	}

	out, ok := h.process(c, in)
	if !ok {
		return
	}

	setResultHeaders(c, out)
	c.Header("Content-Disposition", attachmentHeader(imageprocessing.ExportFilename))
	c.Data(http.StatusOK, "image/png", out.PNG)
}
