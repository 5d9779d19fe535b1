package captcha

import (
	"image"
	"math"
	"math/rand"
)

// Placement represents the layout decision for one character.
// X, Y, Width and Height describe the unrotated glyph box.
type Placement struct {
	Char   rune
	X      int
	Y      int
	Width  int
	Height int
	Angle  float64
	Font   int
	Size   float64
}

// Center returns the centre of the unrotated glyph box.
func (p Placement) Center() image.Point {
	return image.Pt(p.X+p.Width/2, p.Y+p.Height/2)
}

// Plan is the ordered list of placements, one per input character.
type Plan []Placement

// Planner lays characters out left to right on a fixed canvas.
type Planner struct {
	renderer       GlyphRenderer
	width          int
	height         int
	sizes          []float64
	minSize        float64
	maxRotation    float64
	jitterMin      int
	jitterMax      int
	verticalJitter int
	overlap        float64
}

// NewPlanner creates a Planner for validated options.
func NewPlanner(renderer GlyphRenderer, opts Options) *Planner {
	return &Planner{
		renderer:       renderer,
		width:          opts.Width,
		height:         opts.Height,
		sizes:          opts.FontSizes,
		minSize:        opts.MinFontSize,
		maxRotation:    opts.MaxRotation,
		jitterMin:      opts.JitterMin,
		jitterMax:      opts.JitterMax,
		verticalJitter: opts.VerticalJitter,
		overlap:        opts.Overlap,
	}
}

// Plan returns one placement per character of text, in order. The result
// only depends on text and the state of rng.
func (pl *Planner) Plan(text []rune, rng *rand.Rand) (Plan, error) {
	plan := make(Plan, 0, len(text))
	if len(text) == 0 {
		return plan, nil
	}

	fonts := pl.renderer.FontCount()
	for _, c := range text {
		plan = append(plan, Placement{
			Char: c,
			Font: rng.Intn(fonts),
			Size: pl.sizes[rng.Intn(len(pl.sizes))],
		})
	}

	if err := pl.measure(plan, 1); err != nil {
		return nil, err
	}

	if extent := pl.extent(plan); extent > pl.width {
		if err := pl.measure(plan, float64(pl.width)/float64(extent)); err != nil {
			return nil, err
		}
		if extent = pl.extent(plan); extent > pl.width {
			// Trailing glyphs run off the canvas and get clipped on paste.
			logger().Warn("captcha text does not fit canvas",
				"chars", len(plan), "extent", extent, "width", pl.width)
		}
	}

	cursor := 0
	for i := range plan {
		p := &plan[i]
		p.X = cursor
		cursor += pl.advance(p.Width) + pl.jitter(rng, p.Width)

		maxY := pl.height - p.Height
		if maxY < 0 {
			maxY = 0
		}
		y := (pl.height-p.Height)/2 + randRange(rng, -pl.verticalJitter, pl.verticalJitter)
		p.Y = clampInt(y, 0, maxY)

		p.Angle = randUniform(rng, -pl.maxRotation, pl.maxRotation)
	}

	last := plan[len(plan)-1]
	if offset := (pl.width - (last.X + last.Width)) / 2; offset > 0 {
		for i := range plan {
			plan[i].X += offset
		}
	}

	return plan, nil
}

// measure sets sizes (scaled, floored at the minimum) and natural dimensions.
func (pl *Planner) measure(plan Plan, scale float64) error {
	for i := range plan {
		size := plan[i].Size * scale
		if size < pl.minSize {
			size = pl.minSize
		}
		plan[i].Size = size

		dim, err := pl.renderer.Measure(Glyph{Char: plan[i].Char, Font: plan[i].Font, Size: size})
		if err != nil {
			return err
		}
		plan[i].Width = dim.X
		plan[i].Height = dim.Y
	}
	return nil
}

// extent is the widest line the plan can produce for its current sizes.
func (pl *Planner) extent(plan Plan) int {
	total := 0
	for _, p := range plan[:len(plan)-1] {
		total += pl.advance(p.Width) + max(pl.jitterMax, 0)
	}
	return total + plan[len(plan)-1].Width
}

func (pl *Planner) advance(width int) int {
	return int(math.Round(float64(width) * (1 - pl.overlap)))
}

// jitter draws the cursor jitter, never letting the next glyph's centre
// reach the current one.
func (pl *Planner) jitter(rng *rand.Rand, width int) int {
	j := randRange(rng, pl.jitterMin, pl.jitterMax)
	if minStep := (width + 1) / 2; pl.advance(width)+j < minStep {
		j = minStep - pl.advance(width)
	}
	if pl.advance(width)+j < 1 {
		j = 1 - pl.advance(width)
	}
	return j
}

func randRange(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.Intn(hi-lo+1)
}

func randUniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
