package optimize

import (
	"bytes"
	"image"
	"math"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ImageStats are the heuristic signals driving admission decisions.
// Quality, TextDensity, and Complexity are always clamped to [0,1].
type ImageStats struct {
	Quality     float64
	TextDensity float64
	Complexity  float64
	Width       int
	Height      int
	Format      string
	FileSize    int
}

// referencePixels is the 1080p pixel count quality is scored against.
const referencePixels = 1920.0 * 1080.0

// maxSampleDim bounds the pixel sampling grid for the intensity pass so
// large uploads stay cheap to analyze.
const maxSampleDim = 256

// Analyzer derives image statistics for the optimizer. Decode failures
// never fail a decision; conservative defaults are returned instead.
type Analyzer struct{}

// NewAnalyzer creates an image analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// defaultStats is the conservative fallback when analysis fails.
func defaultStats(fileSize int) ImageStats {
	return ImageStats{
		Quality:     0.5,
		TextDensity: 0.5,
		Complexity:  0.7,
		FileSize:    fileSize,
	}
}

// Analyze decodes the image and derives quality, text density, and
// complexity heuristics.
func (a *Analyzer) Analyze(data []byte) ImageStats {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return defaultStats(len(data))
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	pixels := float64(width) * float64(height)
	if pixels <= 0 {
		return defaultStats(len(data))
	}

	// Resolution relative to 1080p, plus intensity spread as a
	// sharpness/contrast proxy.
	resScore := clamp01(pixels / referencePixels)
	contrastScore := clamp01(intensityStdDev(img) / 128.0)
	quality := clamp01(0.6*resScore + 0.4*contrastScore)

	// Compressed statement scans with dense text keep more bytes per
	// pixel than flat backgrounds.
	bytesPerPixel := float64(len(data)) / pixels
	textDensity := clamp01(bytesPerPixel / 3.0)

	channels := channelCount(img)
	complexity := clamp01(0.7*clamp01(pixels/(2*referencePixels)) + 0.3*float64(channels)/4.0)

	return ImageStats{
		Quality:     quality,
		TextDensity: textDensity,
		Complexity:  complexity,
		Width:       width,
		Height:      height,
		Format:      format,
		FileSize:    len(data),
	}
}

// intensityStdDev samples the image on a bounded grid and returns the
// standard deviation of grayscale intensity (0-255 scale).
func intensityStdDev(img image.Image) float64 {
	bounds := img.Bounds()
	stepX := max(1, bounds.Dx()/maxSampleDim)
	stepY := max(1, bounds.Dy()/maxSampleDim)

	var sum, sumSq float64
	var n int
	for y := bounds.Min.Y; y < bounds.Max.Y; y += stepY {
		for x := bounds.Min.X; x < bounds.Max.X; x += stepX {
			r, g, b, _ := img.At(x, y).RGBA()
			// Luma on the 0-255 scale.
			v := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 257.0
			sum += v
			sumSq += v * v
			n++
		}
	}
	if n == 0 {
		return 0
	}

	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

func channelCount(img image.Image) int {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return 1
	case *image.CMYK:
		return 4
	default:
		return 3
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
