package captcha

import (
	"image"

	"github.com/anthonynsimon/bild/convolution"
	"github.com/disintegration/imaging"
)

// smoothKernel is the classic 3x3 SMOOTH filter: a weighted centre over its
// eight neighbours.
var smoothKernel = []float64{
	1, 1, 1,
	1, 5, 1,
	1, 1, 1,
}

// smoothRadius is how far smoothKernel can carry ink past a glyph's edge.
const smoothRadius = 1

// smooth softens hard glyph and noise edges. Ink spreads at most
// smoothRadius pixels, and a uniform region keeps its exact colour.
func smooth(img *image.NRGBA) *image.NRGBA {
	k := convolution.NewKernel(3, 3)
	copy(k.Matrix, smoothKernel)

	out := convolution.Convolve(img, k.Normalized(), &convolution.Options{
		Bias:      0.5, // round instead of truncate
		Wrap:      false,
		KeepAlpha: true,
	})
	return imaging.Clone(out)
}
