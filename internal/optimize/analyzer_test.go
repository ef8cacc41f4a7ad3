package optimize

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// encodePNG renders a checkerboard so the intensity pass sees contrast.
func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if (x/8+y/8)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestAnalyzeDecodesImage(t *testing.T) {
	a := NewAnalyzer()
	data := encodePNG(t, 640, 480)

	stats := a.Analyze(data)
	if stats.Width != 640 || stats.Height != 480 {
		t.Errorf("Expected 640x480, got %dx%d", stats.Width, stats.Height)
	}
	if stats.Format != "png" {
		t.Errorf("Expected png format, got %q", stats.Format)
	}
	if stats.FileSize != len(data) {
		t.Errorf("Expected file size %d, got %d", len(data), stats.FileSize)
	}
}

func TestAnalyzeScoresInRange(t *testing.T) {
	a := NewAnalyzer()

	for _, dim := range []struct{ w, h int }{{64, 64}, {640, 480}, {1920, 1080}, {4000, 3000}} {
		stats := a.Analyze(encodePNG(t, dim.w, dim.h))
		for name, v := range map[string]float64{
			"quality":     stats.Quality,
			"textDensity": stats.TextDensity,
			"complexity":  stats.Complexity,
		} {
			if v < 0 || v > 1 {
				t.Errorf("%dx%d: expected %s in [0,1], got %f", dim.w, dim.h, name, v)
			}
		}
	}
}

func TestHigherResolutionScoresHigher(t *testing.T) {
	a := NewAnalyzer()

	small := a.Analyze(encodePNG(t, 160, 120))
	large := a.Analyze(encodePNG(t, 1920, 1080))
	if large.Quality <= small.Quality {
		t.Errorf("Expected 1080p quality (%f) above thumbnail quality (%f)", large.Quality, small.Quality)
	}
}

func TestAnalyzeGarbageFallsBack(t *testing.T) {
	a := NewAnalyzer()
	data := []byte("this is definitely not an image")

	stats := a.Analyze(data)
	if stats.Quality != 0.5 || stats.TextDensity != 0.5 || stats.Complexity != 0.7 {
		t.Errorf("Expected conservative defaults, got %+v", stats)
	}
	if stats.FileSize != len(data) {
		t.Errorf("Expected file size %d, got %d", len(data), stats.FileSize)
	}
}

func TestAnalyzeEmptyInput(t *testing.T) {
	a := NewAnalyzer()

	stats := a.Analyze(nil)
	if stats.Quality != 0.5 {
		t.Errorf("Expected fallback quality 0.5, got %f", stats.Quality)
	}
}
