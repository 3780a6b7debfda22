package imageprocessing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"io"
	"net/http"
	"time"

	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/tiff" // Register TIFF decoder
	_ "golang.org/x/image/webp" // Register WebP decoder

	"github.com/rmitchellscott/ditherbox/internal/dither"
)

// ExportFilename is the fixed download name for dithered images.
const ExportFilename = "dithered-image.png"

var (
	// ErrImageTooLarge is returned when the decoded size exceeds MaxPixels.
	ErrImageTooLarge = errors.New("image exceeds the pixel limit")

	// ErrEmptyImage is returned for images with zero width or height.
	ErrEmptyImage = errors.New("image has no pixels")

	// ErrSourceTooLarge is returned when a remote image exceeds the byte limit.
	ErrSourceTooLarge = errors.New("source image exceeds the size limit")
)

// Output format of the encoded result.
type Format string

const (
	// FormatRGBA keeps alpha in an 8-bit RGBA PNG.
	FormatRGBA Format = "rgba"
	// FormatMono packs the result into a 1-bit grayscale PNG.
	FormatMono Format = "mono"
)

// ParseFormat defaults to FormatRGBA for empty or unknown values.
func ParseFormat(s string) Format {
	if Format(s) == FormatMono {
		return FormatMono
	}
	return FormatRGBA
}

// ProcessingOptions allows customization of the image processing pipeline
type ProcessingOptions struct {
	MaxWidth  int // 0 means unbounded
	MaxHeight int // 0 means unbounded
	MaxPixels int // checked against the decoded size before resizing; 0 disables
	Format    Format
}

// DefaultProcessingOptions returns sensible defaults for image processing
func DefaultProcessingOptions() ProcessingOptions {
	return ProcessingOptions{
		MaxPixels: 40_000_000,
		Format:    FormatRGBA,
	}
}

// Output is the encoded result of one pipeline run.
type Output struct {
	Result       dither.Result
	PNG          []byte
	Format       Format
	SourceFormat string
	SourceWidth  int
	SourceHeight int
	Duration     time.Duration
}

// Decode reads an image in any registered format. The header is checked
// against maxPixels before the full decode so oversized images are rejected
// without allocating them.
func Decode(r io.Reader, maxPixels int) (image.Image, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", ErrEmptyImage
	}
	if maxPixels > 0 && cfg.Width*cfg.Height > maxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d > %d", ErrImageTooLarge, cfg.Width, cfg.Height, maxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

// DefaultFetchTimeout bounds LoadImageFromURL when no client is given.
const DefaultFetchTimeout = 30 * time.Second

// LoadImageFromURL downloads and decodes an image from a URL. client
// carries the fetch policy (redirect and dial checks); nil means a plain
// client with DefaultFetchTimeout.
func LoadImageFromURL(ctx context.Context, client *http.Client, url string, maxBytes int64, maxPixels int) (image.Image, string, error) {
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}

	if maxBytes <= 0 {
		return Decode(resp.Body, maxPixels)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to download image: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, "", fmt.Errorf("%w: more than %d bytes", ErrSourceTooLarge, maxBytes)
	}
	return Decode(bytes.NewReader(data), maxPixels)
}

// Process applies the full pipeline: decode, fit, dither, encode.
func Process(r io.Reader, params dither.Params, opts ProcessingOptions) (*Output, error) {
	img, format, err := Decode(r, opts.MaxPixels)
	if err != nil {
		return nil, err
	}
	return ProcessImage(img, format, params, opts)
}

// ProcessImage runs the pipeline on an already decoded image.
func ProcessImage(img image.Image, sourceFormat string, params dither.Params, opts ProcessingOptions) (*Output, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, ErrEmptyImage
	}
	if opts.MaxPixels > 0 && bounds.Dx()*bounds.Dy() > opts.MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d > %d", ErrImageTooLarge, bounds.Dx(), bounds.Dy(), opts.MaxPixels)
	}

	start := time.Now()
	fitted := ResizeToFit(img, opts.MaxWidth, opts.MaxHeight)
	result := dither.Apply(ToRaster(fitted), params)

	out := &Output{
		Result:       result,
		Format:       opts.Format,
		SourceFormat: sourceFormat,
		SourceWidth:  bounds.Dx(),
		SourceHeight: bounds.Dy(),
	}

	// A pass-through result may still hold grays, so it is always RGBA.
	if opts.Format == FormatMono && result.Applied {
		data, err := EncodeMonochromePNG(result.Raster)
		if err != nil {
			return nil, err
		}
		out.PNG = data
	} else {
		var buf bytes.Buffer
		if err := EncodePNG(&buf, result.Raster); err != nil {
			return nil, err
		}
		out.PNG = buf.Bytes()
		out.Format = FormatRGBA
	}

	out.Duration = time.Since(start)
	return out, nil
}
