package captcha

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/disintegration/imaging"
)

// Engine generates CAPTCHA images and, on request, the bounding box of every
// character.
//
// An Engine owns its random source. Calls are serialised on an internal
// mutex, so one Engine may be shared between goroutines; the sequence of
// images then depends on call order. Use one Engine per goroutine with
// distinct seeds when results must be reproducible.
type Engine struct {
	mu  sync.Mutex
	rng *rand.Rand

	opts       Options
	renderer   GlyphRenderer
	planner    *Planner
	compositor *Compositor
	noise      NoiseInjector
}

// New creates an Engine rendering with opts.Fonts.
func New(opts Options) (*Engine, error) {
	return NewEngine(opts, NewFontRenderer(opts.Fonts))
}

// NewSeeded creates an Engine with default options and a fixed seed.
func NewSeeded(seed int64) (*Engine, error) {
	opts := DefaultOptions()
	opts.Seed = seed
	return New(opts)
}

// NewEngine creates an Engine using a custom glyph renderer.
func NewEngine(opts Options, renderer GlyphRenderer) (*Engine, error) {
	if renderer == nil {
		return nil, fmt.Errorf("%w: nil glyph renderer", ErrInvalidConfig)
	}

	opts = opts.withDefaults()
	if err := opts.validate(renderer.FontCount()); err != nil {
		return nil, err
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Engine{
		rng:        rand.New(rand.NewSource(seed)),
		opts:       opts,
		renderer:   renderer,
		planner:    NewPlanner(renderer, opts),
		compositor: NewCompositor(renderer, opts.GlyphWarp),
		noise: NoiseInjector{
			Curves:     opts.NoiseCurves,
			Dots:       opts.NoiseDots,
			CurveWidth: opts.CurveWidth,
			DotRadius:  opts.DotRadius,
		},
	}, nil
}

// Width returns the canvas width.
func (e *Engine) Width() int { return e.opts.Width }

// Height returns the canvas height.
func (e *Engine) Height() int { return e.opts.Height }

// Format returns the encoding used by Generate.
func (e *Engine) Format() Format { return e.opts.Format }

// Generate renders text and returns the encoded image.
func (e *Engine) Generate(text string, opts ...ColorOption) ([]byte, error) {
	img, err := e.GenerateImage(text, opts...)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := e.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GenerateImage renders text and returns the raw canvas.
func (e *Engine) GenerateImage(text string, opts ...ColorOption) (*image.NRGBA, error) {
	img, _, err := e.GenerateWithBoundingBoxes(text, opts...)
	return img, err
}

// GenerateWithBoundingBoxes renders text and returns the canvas together
// with one box per character, in input order. Empty text yields a
// background-only canvas and an empty slice.
func (e *Engine) GenerateWithBoundingBoxes(text string, opts ...ColorOption) (*image.NRGBA, []BoundingBox, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.generate([]rune(text), opts)
}

// Encode writes img in the engine's format.
func (e *Engine) Encode(w io.Writer, img image.Image) error {
	var format imaging.Format
	switch e.opts.Format {
	case FormatJPEG:
		format = imaging.JPEG
	case FormatGIF:
		format = imaging.GIF
	default:
		format = imaging.PNG
	}
	if err := imaging.Encode(w, img, format); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}
	return nil
}

func (e *Engine) generate(text []rune, opts []ColorOption) (*image.NRGBA, []BoundingBox, error) {
	// Both defaults are always drawn so the random sequence, and with it the
	// geometry, does not depend on colour overrides.
	pal := palette{
		background: randomBackground(e.rng),
		foreground: randomForeground(e.rng),
	}
	for _, opt := range opts {
		opt(&pal)
	}
	bg := toNRGBA(pal.background)
	fg := pal.foreground

	canvas := newCanvas(e.opts.Width, e.opts.Height, bg)
	boxes := make([]BoundingBox, 0, len(text))
	if len(text) == 0 {
		return canvas, boxes, nil
	}

	plan, err := e.planner.Plan(text, e.rng)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to plan layout: %w", err)
	}

	raw, err := e.compositor.Composite(canvas, plan, fg, e.rng)
	if err != nil {
		return nil, nil, err
	}

	var field DistortionField = IdentityField{}
	if e.opts.WarpAmplitude > 0 {
		wave := NewWave(e.opts.WarpAmplitude, e.opts.WarpPeriod, e.rng)
		canvas = Warp(canvas, wave, bg)
		field = wave
	}
	for _, box := range raw {
		box = MapBox(box, field, canvas.Bounds())
		if e.opts.Smooth {
			box = growBox(box, smoothRadius, canvas.Bounds())
		}
		boxes = append(boxes, box)
	}

	e.noise.Inject(canvas, NoiseColor(fg, bg), e.rng)

	if e.opts.Smooth {
		canvas = smooth(canvas)
	}

	logger().Debug("captcha generated",
		"chars", len(text), "width", e.opts.Width, "height", e.opts.Height, "boxes", boxes)
	return canvas, boxes, nil
}
