package imageprocessing

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rmitchellscott/ditherbox/internal/dither"
)

func testImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 255 / max(w-1, 1)),
				G: uint8(y * 255 / max(h-1, 1)),
				B: 90,
				A: uint8(200 + (x % 56)),
			})
		}
	}
	return img
}

func encode(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestToRasterRoundTrip(t *testing.T) {
	src := testImage(7, 5)
	r := ToRaster(src)
	if err := r.Validate(); err != nil {
		t.Fatalf("invalid raster: %v", err)
	}
	back := FromRaster(r)
	if !bytes.Equal(back.Pix, src.Pix) {
		t.Errorf("round trip changed pixels")
	}
}

func TestToRasterHandlesOffsetBounds(t *testing.T) {
	full := testImage(10, 10)
	sub := full.SubImage(image.Rect(3, 4, 8, 9))
	r := ToRaster(sub)
	if r.Width != 5 || r.Height != 5 {
		t.Fatalf("expected 5x5, got %dx%d", r.Width, r.Height)
	}
	want := full.NRGBAAt(3, 4)
	if got := r.Pix[:4]; got[0] != want.R || got[1] != want.G || got[2] != want.B || got[3] != want.A {
		t.Errorf("first pixel = %v, want %v", got, want)
	}
}

func TestGetScaledDimensions(t *testing.T) {
	tests := []struct {
		name                 string
		w, h, maxW, maxH     int
		expectedW, expectedH int
	}{
		{"fits", 100, 50, 200, 200, 100, 50},
		{"unbounded", 4000, 3000, 0, 0, 4000, 3000},
		{"width bound", 1000, 500, 500, 0, 500, 250},
		{"height bound", 1000, 500, 0, 100, 200, 100},
		{"both bounds", 1000, 1000, 300, 200, 200, 200},
		{"never below one", 1000, 1, 10, 0, 10, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw, gh := GetScaledDimensions(tt.w, tt.h, tt.maxW, tt.maxH)
			if gw != tt.expectedW || gh != tt.expectedH {
				t.Errorf("got %dx%d, want %dx%d", gw, gh, tt.expectedW, tt.expectedH)
			}
		})
	}
}

func TestResizeToFitNeverUpscales(t *testing.T) {
	src := testImage(20, 10)
	if got := ResizeToFit(src, 100, 100); got != image.Image(src) {
		t.Errorf("expected the original image back")
	}
	got := ResizeToFit(src, 10, 0)
	if b := got.Bounds(); b.Dx() != 10 || b.Dy() != 5 {
		t.Errorf("expected 10x5, got %v", b)
	}
}

func TestEncodeMonochromePNG(t *testing.T) {
	r := dither.NewRaster(10, 2)
	// Row 0: alternating white/black. Row 1: all white.
	for x := 0; x < 10; x++ {
		for y := 0; y < 2; y++ {
			v := uint8(0)
			if y == 1 || x%2 == 0 {
				v = 255
			}
			i := r.Offset(x, y)
			r.Pix[i], r.Pix[i+1], r.Pix[i+2], r.Pix[i+3] = v, v, v, 255
		}
	}

	data, err := EncodeMonochromePNG(r)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 10 || b.Dy() != 2 {
		t.Fatalf("unexpected bounds %v", b)
	}
	for y := 0; y < 2; y++ {
		for x := 0; x < 10; x++ {
			gray := color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
			if want := r.Pix[r.Offset(x, y)]; gray != want {
				t.Errorf("pixel (%d,%d) = %d, want %d", x, y, gray, want)
			}
		}
	}
}

func TestEncodeMonochromeRejectsGray(t *testing.T) {
	r := dither.NewRaster(1, 1)
	r.Pix[0], r.Pix[1], r.Pix[2] = 10, 10, 10
	if _, err := EncodeMonochromePNG(r); !errors.Is(err, ErrNotBinarized) {
		t.Errorf("expected ErrNotBinarized, got %v", err)
	}
}

func TestProcessPreservesAlphaAndBinarizes(t *testing.T) {
	src := testImage(16, 12)
	for _, a := range dither.Algorithms() {
		t.Run(a.String(), func(t *testing.T) {
			params := dither.DefaultParams()
			params.Algorithm = a
			out, err := Process(bytes.NewReader(encode(t, src)), params, DefaultProcessingOptions())
			if err != nil {
				t.Fatalf("process: %v", err)
			}
			if !out.Result.Applied || out.SourceFormat != "png" {
				t.Fatalf("unexpected output %+v", out.Result)
			}

			img, err := png.Decode(bytes.NewReader(out.PNG))
			if err != nil {
				t.Fatalf("decode result: %v", err)
			}
			got := ToRaster(img)
			if !got.IsBinary() {
				t.Errorf("result is not binary")
			}
			for i := 3; i < len(got.Pix); i += 4 {
				if got.Pix[i] != src.Pix[i] {
					t.Fatalf("alpha changed at %d", i)
				}
			}
		})
	}
}

func TestProcessMonoAndResize(t *testing.T) {
	opts := DefaultProcessingOptions()
	opts.Format = FormatMono
	opts.MaxWidth = 8

	out, err := Process(bytes.NewReader(encode(t, testImage(32, 16))), dither.DefaultParams(), opts)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Format != FormatMono || out.SourceWidth != 32 {
		t.Fatalf("unexpected output format=%s source=%d", out.Format, out.SourceWidth)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(out.PNG))
	if err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if cfg.Width != 8 || cfg.Height != 4 || cfg.ColorModel != color.GrayModel {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestProcessUnknownAlgorithmFallsBackToRGBA(t *testing.T) {
	opts := DefaultProcessingOptions()
	opts.Format = FormatMono
	params := dither.DefaultParams()
	params.Algorithm = dither.AlgorithmUnknown

	src := testImage(4, 4)
	out, err := Process(bytes.NewReader(encode(t, src)), params, opts)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Result.Applied || out.Format != FormatRGBA {
		t.Fatalf("expected pass-through RGBA, got applied=%v format=%s", out.Result.Applied, out.Format)
	}
	img, _ := png.Decode(bytes.NewReader(out.PNG))
	if !bytes.Equal(ToRaster(img).Pix, src.Pix) {
		t.Errorf("pass-through changed pixels")
	}
}

func TestDecodeLimits(t *testing.T) {
	data := encode(t, testImage(100, 100))
	if _, _, err := Decode(bytes.NewReader(data), 5000); !errors.Is(err, ErrImageTooLarge) {
		t.Errorf("expected ErrImageTooLarge, got %v", err)
	}
	if _, _, err := Decode(bytes.NewReader([]byte("not an image")), 0); err == nil {
		t.Errorf("expected decode error")
	}
}

func TestProcessImageRejectsEmpty(t *testing.T) {
	empty := image.NewNRGBA(image.Rect(0, 0, 0, 3))
	if _, err := ProcessImage(empty, "png", dither.Params{Algorithm: dither.AlgorithmFloydSteinberg}, ProcessingOptions{}); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("expected ErrEmptyImage, got %v", err)
	}
}

func TestLoadImageFromURL(t *testing.T) {
	data := encode(t, testImage(6, 6))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ok.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
	defer srv.Close()

	img, format, err := LoadImageFromURL(context.Background(), nil, srv.URL+"/ok.png", 1<<20, 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if format != "png" || img.Bounds().Dx() != 6 {
		t.Errorf("unexpected image %s %v", format, img.Bounds())
	}

	if _, _, err := LoadImageFromURL(context.Background(), srv.Client(), srv.URL+"/missing.png", 0, 0); err == nil {
		t.Errorf("expected error for 404")
	}

	_, _, err = LoadImageFromURL(context.Background(), srv.Client(), srv.URL+"/ok.png", int64(len(data)-1), 0)
	if !errors.Is(err, ErrSourceTooLarge) {
		t.Errorf("expected ErrSourceTooLarge, got %v", err)
	}
}

func TestParseFormat(t *testing.T) {
	if ParseFormat("mono") != FormatMono || ParseFormat("") != FormatRGBA || ParseFormat("jpeg") != FormatRGBA {
		t.Errorf("unexpected ParseFormat mapping")
	}
}
