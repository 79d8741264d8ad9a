// Package focus computes a coarse sharpness score for a captured picture.
// It is a framing aid shown next to the result, not an image-quality metric.
package focus

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// AnalysisWidth is the width pictures are downscaled to before scoring,
// which keeps the score comparable across resolutions.
const AnalysisWidth = 320

// Score decodes a JPEG and returns the variance of its Laplacian.
// A sharper picture has more high-frequency detail and scores higher.
func Score(jpeg []byte) (float64, error) {
	img, err := imaging.Decode(bytes.NewReader(jpeg))
	if err != nil {
		return 0, fmt.Errorf("decode picture: %w", err)
	}
	return ScoreImage(img), nil
}

// ScoreImage scores an already decoded image.
func ScoreImage(img image.Image) float64 {
	if img.Bounds().Dx() > AnalysisWidth {
		img = imaging.Resize(img, AnalysisWidth, 0, imaging.Box)
	}
	gray := imaging.Grayscale(img)

	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	if w < 3 || h < 3 {
		return 0
	}

	// Grayscale keeps R=G=B, so the red channel is the luma.
	at := func(x, y int) float64 {
		return float64(gray.Pix[y*gray.Stride+x*4])
	}

	var sum, sumSq float64
	n := float64((w - 2) * (h - 2))
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			lap := at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1) - 4*at(x, y)
			sum += lap
			sumSq += lap * lap
		}
	}
	mean := sum / n
	return sumSq/n - mean*mean
}
