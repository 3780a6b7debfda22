package handlers

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmitchellscott/ditherbox/internal/auth"
	"github.com/rmitchellscott/ditherbox/internal/config"
	"github.com/rmitchellscott/ditherbox/internal/database"
	"github.com/rmitchellscott/ditherbox/internal/imageprocessing"
	"github.com/rmitchellscott/ditherbox/internal/middleware"
	"github.com/rmitchellscott/ditherbox/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() config.Config {
	return config.Config{
		MaxUploadBytes:     5 << 20,
		MaxPixels:          1_000_000,
		FetchTimeout:       5 * time.Second,
		RateLimitPerMinute: 0,
		LinkTTL:            time.Hour,
	}
}

func setupRouter(t *testing.T, cfg config.Config) *gin.Engine {
	t.Helper()
	dir := t.TempDir()
	db, err := database.Initialize(config.DatabaseConfig{Type: "sqlite", Path: filepath.Join(dir, "test.db")}, false)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })

	h := New(cfg,
		config.DefaultPresets(),
		database.NewJobService(db),
		storage.NewImageStorage(storage.NewFilesystemBackend(filepath.Join(dir, "data"))),
		auth.NewSigner("test-secret", cfg.LinkTTL),
	)

	r := gin.New()
	h.RegisterRoutes(r, middleware.NewIPRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst))
	return r
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x + y) * 255 / (w + h - 2))
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, target string, fields map[string]string, file []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		fw, err := mw.CreateFormFile("image", "photo.png")
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestInfoEndpoints(t *testing.T) {
	r := setupRouter(t, testConfig())

	w := serve(r, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/version", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "version")

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var cfg map[string]any
	decodeJSON(t, w, &cfg)
	assert.Equal(t, imageprocessing.ExportFilename, cfg["export_filename"])
	assert.Equal(t, []any{float64(2), float64(4)}, cfg["matrix_sizes"])

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/algorithms", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var algos struct {
		Algorithms []algorithmInfo `json:"algorithms"`
	}
	decodeJSON(t, w, &algos)
	require.Len(t, algos.Algorithms, 5)
	for _, a := range algos.Algorithms {
		switch a.Name {
		case "bayer-ordered":
			assert.Equal(t, "ordered", a.Family)
			assert.Len(t, a.Matrices["4"], 4)
		case "atkinson":
			assert.InDelta(t, 0.75, a.WeightSum, 1e-9)
		default:
			assert.Equal(t, "error-diffusion", a.Family)
			assert.InDelta(t, 1.0, a.WeightSum, 1e-9)
		}
	}

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/presets", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var presets struct {
		Presets []config.Preset `json:"presets"`
	}
	decodeJSON(t, w, &presets)
	assert.Len(t, presets.Presets, 6)
}

func TestDitherUpload(t *testing.T) {
	r := setupRouter(t, testConfig())

	w := serve(r, multipartRequest(t, "/api/dither", map[string]string{"algorithm": "floyd-steinberg"}, testPNG(t, 16, 8)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="dithered-image.png"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "floyd-steinberg", w.Header().Get("X-Dither-Algorithm"))
	assert.Equal(t, "true", w.Header().Get("X-Dither-Applied"))
	assert.Empty(t, w.Header().Get("X-Dither-Warnings"))

	img, err := png.Decode(w.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 8), img.Bounds())
	assert.True(t, imageprocessing.ToRaster(img).IsBinary())
}

func TestDitherParameterHandling(t *testing.T) {
	r := setupRouter(t, testConfig())
	file := testPNG(t, 8, 8)

	t.Run("matrix fallback is reported", func(t *testing.T) {
		w := serve(r, multipartRequest(t, "/api/dither", map[string]string{"algorithm": "bayer", "matrix_size": "3"}, file))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "bayer-ordered", w.Header().Get("X-Dither-Algorithm"))
		assert.Contains(t, w.Header().Get("X-Dither-Warnings"), "matrix size 3 is not supported")
	})

	t.Run("out of range values are clamped", func(t *testing.T) {
		w := serve(r, multipartRequest(t, "/api/dither", map[string]string{"algorithm": "bayer-ordered", "threshold": "999"}, file))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("X-Dither-Warnings"), "threshold 999 clamped to 255")
	})

	t.Run("malformed number is rejected", func(t *testing.T) {
		w := serve(r, multipartRequest(t, "/api/dither", map[string]string{"threshold": "abc"}, file))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), `Invalid number`)
	})

	t.Run("unknown algorithm passes through", func(t *testing.T) {
		w := serve(r, multipartRequest(t, "/api/dither", map[string]string{"algorithm": "sierra", "format": "mono"}, file))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "false", w.Header().Get("X-Dither-Applied"))
		assert.Equal(t, "rgba", w.Header().Get("X-Dither-Format"))
		assert.NotEmpty(t, w.Header().Get("X-Dither-Warnings"))
	})

	t.Run("preset", func(t *testing.T) {
		w := serve(r, multipartRequest(t, "/api/dither", map[string]string{"preset": "mac"}, file))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "atkinson", w.Header().Get("X-Dither-Algorithm"))
	})

	t.Run("unknown preset", func(t *testing.T) {
		w := serve(r, multipartRequest(t, "/api/dither", map[string]string{"preset": "nope"}, file))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Unknown preset")
	})

	t.Run("invalid format", func(t *testing.T) {
		w := serve(r, multipartRequest(t, "/api/dither", map[string]string{"format": "jpeg"}, file))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "format must be one of")
	})

	t.Run("mono output", func(t *testing.T) {
		w := serve(r, multipartRequest(t, "/api/dither", map[string]string{"format": "mono", "max_width": "4"}, file))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "mono", w.Header().Get("X-Dither-Format"))
		cfg, err := png.DecodeConfig(w.Body)
		require.NoError(t, err)
		assert.Equal(t, color.GrayModel, cfg.ColorModel)
		assert.Equal(t, 4, cfg.Width)
	})
}

func TestDitherInputErrors(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPixels = 100
	r := setupRouter(t, cfg)

	w := serve(r, multipartRequest(t, "/api/dither", nil, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "An image file or url is required")

	w = serve(r, multipartRequest(t, "/api/dither", nil, []byte("definitely not an image")))
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	w = serve(r, multipartRequest(t, "/api/dither", nil, testPNG(t, 20, 20)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestDitherRequestSizeLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxUploadBytes = 512
	r := setupRouter(t, cfg)

	w := serve(r, multipartRequest(t, "/api/dither", nil, bytes.Repeat([]byte{1}, 4096)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestDitherFromURL(t *testing.T) {
	data := testPNG(t, 10, 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
	defer srv.Close()

	body := `{"url": "` + srv.URL + `/picture.png", "algorithm": "stucki"}`

	t.Run("allowed", func(t *testing.T) {
		r := setupRouter(t, testConfig())
		req := httptest.NewRequest(http.MethodPost, "/api/dither", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := serve(r, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "stucki", w.Header().Get("X-Dither-Algorithm"))
	})

	t.Run("private address blocked", func(t *testing.T) {
		cfg := testConfig()
		cfg.BlockPrivateIPs = true
		r := setupRouter(t, cfg)
		req := httptest.NewRequest(http.MethodPost, "/api/dither", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := serve(r, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "private IP address")
	})

	t.Run("redirect to blocked domain", func(t *testing.T) {
		hop := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "http://internal.example/picture.png", http.StatusFound)
		}))
		defer hop.Close()

		cfg := testConfig()
		cfg.BlockedDomains = []string{"internal.example"}
		r := setupRouter(t, cfg)
		req := httptest.NewRequest(http.MethodPost, "/api/dither", strings.NewReader(`{"url": "`+hop.URL+`/start.png"}`))
		req.Header.Set("Content-Type", "application/json")
		w := serve(r, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "blocked address")
	})

	t.Run("invalid url", func(t *testing.T) {
		r := setupRouter(t, testConfig())
		req := httptest.NewRequest(http.MethodPost, "/api/dither", strings.NewReader(`{"url": "not a url"}`))
		req.Header.Set("Content-Type", "application/json")
		w := serve(r, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestDitherRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerMinute = 1
	cfg.RateLimitBurst = 1
	r := setupRouter(t, cfg)
	file := testPNG(t, 4, 4)

	assert.Equal(t, http.StatusOK, serve(r, multipartRequest(t, "/api/dither", nil, file)).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, multipartRequest(t, "/api/dither", nil, file)).Code)
	// Read endpoints are not limited.
	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/api/presets", nil)).Code)
}

func TestJobLifecycle(t *testing.T) {
	r := setupRouter(t, testConfig())

	w := serve(r, multipartRequest(t, "/api/jobs", map[string]string{"preset": "halftone-2", "format": "mono"}, testPNG(t, 12, 6)))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		ID              string    `json:"id"`
		Algorithm       string    `json:"algorithm"`
		SourceName      string    `json:"source_name"`
		Preset          string    `json:"preset"`
		Applied         bool      `json:"applied"`
		OutputFormat    string    `json:"output_format"`
		Width           int       `json:"width"`
		DownloadURL     string    `json:"download_url"`
		DownloadExpires time.Time `json:"download_expires_at"`
		EffectiveParams struct {
			MatrixSize int `json:"matrix_size"`
		} `json:"effective_params"`
	}
	decodeJSON(t, w, &created)
	assert.Equal(t, "bayer-ordered", created.Algorithm)
	assert.Equal(t, "photo.png", created.SourceName)
	assert.Equal(t, "halftone-2", created.Preset)
	assert.True(t, created.Applied)
	assert.Equal(t, "mono", created.OutputFormat)
	assert.Equal(t, 12, created.Width)
	assert.Equal(t, 2, created.EffectiveParams.MatrixSize)
	require.NotEmpty(t, created.DownloadURL)

	download, err := url.Parse(created.DownloadURL)
	require.NoError(t, err)
	assert.Equal(t, "/api/jobs/"+created.ID+"/image", download.Path)

	// Download with the signed link.
	w = serve(r, httptest.NewRequest(http.MethodGet, download.RequestURI(), nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="dithered-image.png"`, w.Header().Get("Content-Disposition"))
	cfg, err := png.DecodeConfig(w.Body)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Width)

	// Tampered or missing tokens are refused.
	w = serve(r, httptest.NewRequest(http.MethodGet, download.Path+"?token=bogus", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = serve(r, httptest.NewRequest(http.MethodGet, download.Path, nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/jobs/"+created.ID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	var fetched map[string]any
	decodeJSON(t, w, &fetched)
	assert.Equal(t, created.ID, fetched["id"])
	assert.NotContains(t, fetched, "download_url")

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/jobs?limit=10", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Jobs  []map[string]any `json:"jobs"`
		Total int              `json:"total"`
		Limit int              `json:"limit"`
	}
	decodeJSON(t, w, &list)
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, 10, list.Limit)
	require.Len(t, list.Jobs, 1)
	assert.NotContains(t, list.Jobs[0], "ResultKey")

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/jobs/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var stats database.JobStats
	decodeJSON(t, w, &stats)
	assert.Equal(t, int64(1), stats.TotalJobs)
	assert.Equal(t, []database.AlgorithmCount{{Algorithm: "bayer-ordered", Count: 1}}, stats.ByAlgorithm)

	// Deleting needs the same token as downloading.
	w = serve(r, httptest.NewRequest(http.MethodDelete, "/api/jobs/"+created.ID, nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = serve(r, httptest.NewRequest(http.MethodDelete, "/api/jobs/"+created.ID+"?"+download.RawQuery, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/jobs/"+created.ID, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	// The link is still signed correctly but the job is gone.
	w = serve(r, httptest.NewRequest(http.MethodGet, download.RequestURI(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodDelete, "/api/jobs/"+created.ID+"?"+download.RawQuery, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestJobListingDoesNotLeakDownloadLinks(t *testing.T) {
	r := setupRouter(t, testConfig())

	w := serve(r, multipartRequest(t, "/api/jobs", nil, testPNG(t, 8, 8)))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		ID string `json:"id"`
	}
	decodeJSON(t, w, &created)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "token=")
	var list struct {
		Jobs []map[string]any `json:"jobs"`
	}
	decodeJSON(t, w, &list)
	require.Len(t, list.Jobs, 1)
	assert.NotContains(t, list.Jobs[0], "download_url")
	assert.NotContains(t, list.Jobs[0], "download_expires_at")

	// An ID learned from the listing is not enough to read or delete the result.
	id, _ := list.Jobs[0]["id"].(string)
	require.Equal(t, created.ID, id)
	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/jobs/"+id+"/image", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = serve(r, httptest.NewRequest(http.MethodDelete, "/api/jobs/"+id, nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestEmptyJobListIsArray(t *testing.T) {
	r := setupRouter(t, testConfig())
	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"jobs":[]`)
}

func TestJobBadRequests(t *testing.T) {
	r := setupRouter(t, testConfig())

	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/jobs/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/jobs?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/jobs?offset=x", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
