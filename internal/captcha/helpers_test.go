package captcha

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
)

// rectRenderer renders every glyph as a solid rectangle of 0.6 x 1.0 times
// its size. Runes in unsupported fail with ErrUnsupportedGlyph.
type rectRenderer struct {
	fonts       int
	unsupported map[rune]bool
}

func newRectRenderer(fonts int) *rectRenderer {
	return &rectRenderer{fonts: fonts, unsupported: map[rune]bool{}}
}

func (r *rectRenderer) FontCount() int { return r.fonts }

func (r *rectRenderer) Measure(g Glyph) (image.Point, error) {
	if r.unsupported[g.Char] {
		return image.Point{}, fmt.Errorf("%w: %q", ErrUnsupportedGlyph, g.Char)
	}
	if g.Char == ' ' {
		return image.Pt(int(math.Round(g.Size*0.3)), 0), nil
	}
	return image.Pt(int(math.Round(g.Size*0.6)), int(math.Round(g.Size))), nil
}

func (r *rectRenderer) Render(g Glyph) (*image.NRGBA, error) {
	dim, err := r.Measure(g)
	if err != nil {
		return nil, err
	}
	if dim.Y == 0 {
		return image.NewNRGBA(image.Rectangle{}), nil
	}
	img := image.NewNRGBA(image.Rect(0, 0, dim.X, dim.Y))
	c := g.Color
	if c == nil {
		c = color.Black
	}
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img, nil
}

// plainOptions disables every random effect that does not move glyphs.
func plainOptions(width, height int) Options {
	opts := DefaultOptions()
	opts.Width = width
	opts.Height = height
	opts.GlyphWarp = false
	opts.NoiseCurves = 0
	opts.NoiseDots = 0
	opts.WarpAmplitude = 0
	opts.Smooth = false
	opts.Seed = 1
	return opts
}

func inBounds(b BoundingBox, width, height int) bool {
	return b.X >= 0 && b.Y >= 0 && b.W >= 0 && b.H >= 0 &&
		b.X+b.W <= width && b.Y+b.H <= height
}

// differsFrom lists every pixel of img whose colour is not bg.
func differsFrom(img *image.NRGBA, bg color.NRGBA) []image.Point {
	var pts []image.Point
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.NRGBAAt(x, y) != bg {
				pts = append(pts, image.Pt(x, y))
			}
		}
	}
	return pts
}

func inAnyBox(p image.Point, boxes []BoundingBox) bool {
	for _, b := range boxes {
		if p.In(b.Rect()) {
			return true
		}
	}
	return false
}
