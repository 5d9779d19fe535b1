package captcha

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math/rand"
)

// Compositor pastes rendered glyphs onto the canvas and records where their
// ink landed.
type Compositor struct {
	renderer  GlyphRenderer
	glyphWarp bool
}

// NewCompositor creates a Compositor. With glyphWarp set every glyph gets a
// random quad squeeze before it is pasted.
func NewCompositor(renderer GlyphRenderer, glyphWarp bool) *Compositor {
	return &Compositor{
		renderer:  renderer,
		glyphWarp: glyphWarp,
	}
}

// Composite renders and pastes every placement in order and returns the raw
// bounding boxes in the same order.
func (c *Compositor) Composite(canvas *image.NRGBA, plan Plan, fg color.Color, rng *rand.Rand) ([]BoundingBox, error) {
	// Glyphs are rendered opaque and faded on paste, so their ink, and with
	// it the boxes, does not depend on the foreground alpha.
	opaque := toNRGBA(fg)
	opacity := opaque.A
	opaque.A = 0xff

	boxes := make([]BoundingBox, 0, len(plan))
	for _, p := range plan {
		glyph, err := c.renderer.Render(Glyph{
			Char:  p.Char,
			Font:  p.Font,
			Size:  p.Size,
			Angle: p.Angle,
			Color: opaque,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to render %q: %w", p.Char, err)
		}

		if c.glyphWarp && !glyph.Bounds().Empty() {
			glyph = QuadWarp(glyph, rng)
		}

		boxes = append(boxes, c.Paste(canvas, glyph, p, opacity))
	}
	return boxes, nil
}

// Paste draws glyph centred on the placement's centre using alpha
// compositing, scaled by opacity, and returns the tight box of its ink
// clipped to the canvas.
func (c *Compositor) Paste(canvas *image.NRGBA, glyph *image.NRGBA, p Placement, opacity uint8) BoundingBox {
	gb := glyph.Bounds()
	center := p.Center()
	origin := image.Pt(center.X-gb.Dx()/2, center.Y-gb.Dy()/2)
	dest := image.Rectangle{Min: origin, Max: origin.Add(gb.Size())}

	if opacity == 0xff {
		draw.Draw(canvas, dest, glyph, gb.Min, draw.Over)
	} else {
		draw.DrawMask(canvas, dest, glyph, gb.Min, image.NewUniform(color.Alpha{A: opacity}), image.Point{}, draw.Over)
	}

	ink := inkBounds(glyph)
	if ink.Empty() {
		return clampBox(p.Char, image.Rectangle{Min: center, Max: center}, canvas.Bounds())
	}
	return clampBox(p.Char, ink.Sub(gb.Min).Add(origin), canvas.Bounds())
}

// newCanvas returns a width x height canvas filled with bg.
func newCanvas(width, height int, bg color.Color) *image.NRGBA {
	canvas := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	return canvas
}
