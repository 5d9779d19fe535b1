package captcha

import (
	"image"
	"image/color"
	"math"
	"math/rand"
)

// DistortionField is a continuous, invertible remapping of canvas
// coordinates. Forward takes a source point to where it lands on the warped
// canvas; Inverse does the opposite and drives pixel resampling.
type DistortionField interface {
	Forward(x, y float64) (float64, float64)
	Inverse(x, y float64) (float64, float64)
}

// IdentityField leaves every point in place.
type IdentityField struct{}

// Forward implements DistortionField.
func (IdentityField) Forward(x, y float64) (float64, float64) { return x, y }

// Inverse implements DistortionField.
func (IdentityField) Inverse(x, y float64) (float64, float64) { return x, y }

// Wave is a pair of chained sinusoidal shears:
//
//	x' = x + A·sin(2πy/P + φx)
//	y' = y + A·sin(2πx'/P + φy)
//
// Each shear only depends on the coordinate it leaves untouched, so the
// inverse is exact.
type Wave struct {
	Amplitude float64
	Period    float64
	PhaseX    float64
	PhaseY    float64
}

// NewWave returns a Wave with random phases.
func NewWave(amplitude, period float64, rng *rand.Rand) Wave {
	return Wave{
		Amplitude: amplitude,
		Period:    period,
		PhaseX:    rng.Float64() * 2 * math.Pi,
		PhaseY:    rng.Float64() * 2 * math.Pi,
	}
}

// Forward implements DistortionField.
func (w Wave) Forward(x, y float64) (float64, float64) {
	x1 := x + w.Amplitude*math.Sin(2*math.Pi*y/w.Period+w.PhaseX)
	y1 := y + w.Amplitude*math.Sin(2*math.Pi*x1/w.Period+w.PhaseY)
	return x1, y1
}

// Inverse implements DistortionField.
func (w Wave) Inverse(x, y float64) (float64, float64) {
	y0 := y - w.Amplitude*math.Sin(2*math.Pi*x/w.Period+w.PhaseY)
	x0 := x - w.Amplitude*math.Sin(2*math.Pi*y0/w.Period+w.PhaseX)
	return x0, y0
}

// Warp resamples src through field. Every destination pixel centre is
// pulled back with Inverse and sampled bilinearly; samples falling outside
// src take the fill colour.
func Warp(src *image.NRGBA, field DistortionField, fill color.NRGBA) *image.NRGBA {
	b := src.Bounds()
	dst := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			sx, sy := field.Inverse(float64(x)+0.5, float64(y)+0.5)
			px := sampleBilinear(src, sx-0.5, sy-0.5, fill)
			i := dst.PixOffset(x, y)
			copy(dst.Pix[i:i+4], px[:])
		}
	}
	return dst
}

// MapBox maps a raw box through field and returns the axis-aligned box of
// every destination pixel whose resampling footprint touches the source box,
// clamped to bounds. The footprint of a bilinear sample reaches half a pixel
// past the box, so the contour of the box grown by half a pixel is walked in
// half pixel steps. Zero-area boxes stay zero-area at their mapped origin.
func MapBox(box BoundingBox, field DistortionField, bounds image.Rectangle) BoundingBox {
	if box.Empty() {
		fx, fy := field.Forward(float64(box.X), float64(box.Y))
		pt := image.Pt(int(math.Round(fx)), int(math.Round(fy)))
		return clampBox(box.Char, image.Rectangle{Min: pt, Max: pt}, bounds)
	}

	x0, y0 := float64(box.X)-0.5, float64(box.Y)-0.5
	x1, y1 := float64(box.X+box.W)+0.5, float64(box.Y+box.H)+0.5

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	visit := func(x, y float64) {
		fx, fy := field.Forward(x, y)
		minX = math.Min(minX, fx)
		minY = math.Min(minY, fy)
		maxX = math.Max(maxX, fx)
		maxY = math.Max(maxY, fy)
	}

	for i := 0; i <= 2*(box.W+1); i++ {
		x := x0 + float64(i)/2
		visit(x, y0)
		visit(x, y1)
	}
	for j := 1; j < 2*(box.H+1); j++ {
		y := y0 + float64(j)/2
		visit(x0, y)
		visit(x1, y)
	}

	// A pixel belongs to the box when its centre lies strictly inside the
	// mapped contour.
	r := image.Rect(
		int(math.Floor(minX-0.5))+1, int(math.Floor(minY-0.5))+1,
		int(math.Ceil(maxX-0.5)), int(math.Ceil(maxY-0.5)),
	)
	return clampBox(box.Char, r, bounds)
}

// QuadWarp squeezes a glyph raster into a random quadrilateral of the same
// size, mimicking a slight perspective change. Horizontal corner offsets are
// up to 10-30% of the width and vertical ones up to 20-30% of the height.
func QuadWarp(src *image.NRGBA, rng *rand.Rand) *image.NRGBA {
	b := src.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())

	dx := w * randUniform(rng, 0.1, 0.3)
	dy := h * randUniform(rng, 0.2, 0.3)
	ox1 := math.Trunc(randUniform(rng, -dx, dx))
	oy1 := math.Trunc(randUniform(rng, -dy, dy))
	ox2 := math.Trunc(randUniform(rng, -dx, dx))
	oy2 := math.Trunc(randUniform(rng, -dy, dy))

	// Quad corners in a canvas enlarged by the offsets, scaled back to src.
	w2 := w + math.Abs(ox1) + math.Abs(ox2)
	h2 := h + math.Abs(oy1) + math.Abs(oy2)
	sx, sy := w/w2, h/h2
	type pt struct{ x, y float64 }
	ul := pt{ox1 * sx, oy1 * sy}
	ll := pt{-ox1 * sx, (h2 - oy2) * sy}
	lr := pt{(w2 + ox2) * sx, (h2 + oy2) * sy}
	ur := pt{(w2 - ox2) * sx, -oy1 * sy}

	dst := image.NewNRGBA(b)
	transparent := color.NRGBA{}
	for y := 0; y < b.Dy(); y++ {
		t := (float64(y) + 0.5) / h
		for x := 0; x < b.Dx(); x++ {
			s := (float64(x) + 0.5) / w
			px := ul.x*(1-s)*(1-t) + ur.x*s*(1-t) + ll.x*(1-s)*t + lr.x*s*t
			py := ul.y*(1-s)*(1-t) + ur.y*s*(1-t) + ll.y*(1-s)*t + lr.y*s*t
			c := sampleBilinear(src, px+float64(b.Min.X)-0.5, py+float64(b.Min.Y)-0.5, transparent)
			i := dst.PixOffset(b.Min.X+x, b.Min.Y+y)
			copy(dst.Pix[i:i+4], c[:])
		}
	}
	return dst
}

// sampleBilinear reads src at a fractional pixel position.
func sampleBilinear(src *image.NRGBA, fx, fy float64, fill color.NRGBA) [4]uint8 {
	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	tx := fx - float64(x0)
	ty := fy - float64(y0)

	p00 := pixelAt(src, x0, y0, fill)
	p10 := pixelAt(src, x0+1, y0, fill)
	p01 := pixelAt(src, x0, y0+1, fill)
	p11 := pixelAt(src, x0+1, y0+1, fill)

	var out [4]uint8
	for i := 0; i < 4; i++ {
		top := float64(p00[i])*(1-tx) + float64(p10[i])*tx
		bottom := float64(p01[i])*(1-tx) + float64(p11[i])*tx
		out[i] = uint8(math.Round(top*(1-ty) + bottom*ty))
	}
	return out
}

func pixelAt(src *image.NRGBA, x, y int, fill color.NRGBA) [4]uint8 {
	if !(image.Point{X: x, Y: y}).In(src.Bounds()) {
		return [4]uint8{fill.R, fill.G, fill.B, fill.A}
	}
	i := src.PixOffset(x, y)
	return [4]uint8{src.Pix[i], src.Pix[i+1], src.Pix[i+2], src.Pix[i+3]}
}
