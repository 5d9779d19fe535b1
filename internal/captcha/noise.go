package captcha

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"math/rand"

	"golang.org/x/image/vector"
)

// curveSegments is the number of straight segments used to flatten a curve.
const curveSegments = 48

// NoiseInjector draws random curves and dots on a finished canvas. It has no
// access to bounding boxes.
type NoiseInjector struct {
	Curves     int
	Dots       int
	CurveWidth float64
	DotRadius  float64
}

type point struct{ x, y float64 }

// Inject draws the configured curves and dots in c.
func (n NoiseInjector) Inject(canvas *image.NRGBA, c color.Color, rng *rand.Rand) {
	b := canvas.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return
	}
	src := image.NewUniform(c)

	if n.Curves > 0 {
		z := vector.NewRasterizer(w, h)
		z.DrawOp = draw.Over
		for i := 0; i < n.Curves; i++ {
			strokePolyline(z, flattenBezier(n.curvePoints(rng, w, h)), n.CurveWidth/2, float64(w), float64(h))
		}
		z.Draw(canvas, b, src, image.Point{})
	}

	if n.Dots > 0 {
		z := vector.NewRasterizer(w, h)
		z.DrawOp = draw.Over
		for i := 0; i < n.Dots; i++ {
			r := math.Min(n.DotRadius, math.Min(float64(w), float64(h))/2)
			cx := r + rng.Float64()*(float64(w)-2*r)
			cy := r + rng.Float64()*(float64(h)-2*r)
			addCircle(z, float32(cx), float32(cy), float32(r))
		}
		z.Draw(canvas, b, src, image.Point{})
	}
}

// curvePoints picks 2 to 4 control points: the curve starts in the left fifth
// of the canvas, ends in the right fifth and stays in the middle band.
func (n NoiseInjector) curvePoints(rng *rand.Rand, w, h int) []point {
	count := 2 + rng.Intn(3)
	fw, fh := float64(w), float64(h)
	randY := func() float64 { return fh/5 + rng.Float64()*fh*3/5 }

	pts := make([]point, count)
	pts[0] = point{rng.Float64() * fw / 5, randY()}
	for i := 1; i < count-1; i++ {
		pts[i] = point{rng.Float64() * fw, rng.Float64() * fh}
	}
	pts[count-1] = point{fw*4/5 + rng.Float64()*fw/5, randY()}
	return pts
}

// flattenBezier evaluates the Bézier curve defined by ctrl with de
// Casteljau's algorithm.
func flattenBezier(ctrl []point) []point {
	out := make([]point, 0, curveSegments+1)
	tmp := make([]point, len(ctrl))
	for s := 0; s <= curveSegments; s++ {
		t := float64(s) / curveSegments
		copy(tmp, ctrl)
		for k := len(tmp) - 1; k > 0; k-- {
			for i := 0; i < k; i++ {
				tmp[i] = point{
					x: tmp[i].x + (tmp[i+1].x-tmp[i].x)*t,
					y: tmp[i].y + (tmp[i+1].y-tmp[i].y)*t,
				}
			}
		}
		out = append(out, tmp[0])
	}
	return out
}

// strokePolyline adds the outline of a polyline of half width hw as a closed
// polygon, clipped to a w x h rasterizer.
func strokePolyline(z *vector.Rasterizer, pts []point, hw, w, h float64) {
	if len(pts) < 2 || hw <= 0 {
		return
	}
	left := make([]point, len(pts))
	right := make([]point, len(pts))
	for i := range pts {
		a, b := pts[max(i-1, 0)], pts[min(i+1, len(pts)-1)]
		dx, dy := b.x-a.x, b.y-a.y
		l := math.Hypot(dx, dy)
		if l == 0 {
			dx, dy, l = 1, 0, 1
		}
		nx, ny := -dy/l*hw, dx/l*hw
		left[i] = point{clampFloat(pts[i].x+nx, 0, w), clampFloat(pts[i].y+ny, 0, h)}
		right[i] = point{clampFloat(pts[i].x-nx, 0, w), clampFloat(pts[i].y-ny, 0, h)}
	}

	z.MoveTo(float32(left[0].x), float32(left[0].y))
	for _, p := range left[1:] {
		z.LineTo(float32(p.x), float32(p.y))
	}
	for i := len(right) - 1; i >= 0; i-- {
		z.LineTo(float32(right[i].x), float32(right[i].y))
	}
	z.ClosePath()
}

// addCircle adds a circle built from four cubic Bézier arcs.
func addCircle(z *vector.Rasterizer, cx, cy, radius float32) {
	const k = float32(0.5522847498)
	kr := k * radius

	z.MoveTo(cx, cy-radius)
	z.CubeTo(cx+kr, cy-radius, cx+radius, cy-kr, cx+radius, cy)
	z.CubeTo(cx+radius, cy+kr, cx+kr, cy+radius, cx, cy+radius)
	z.CubeTo(cx-kr, cy+radius, cx-radius, cy+kr, cx-radius, cy)
	z.CubeTo(cx-radius, cy-kr, cx-kr, cy-radius, cx, cy-radius)
	z.ClosePath()
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
