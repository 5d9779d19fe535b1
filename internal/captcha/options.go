package captcha

import (
	"errors"
	"fmt"
	"image/color"
	"math"
)

var (
	// ErrInvalidConfig is returned by New and NewEngine for unusable options.
	ErrInvalidConfig = errors.New("invalid captcha configuration")
	// ErrRender is returned when a glyph cannot be rendered.
	ErrRender = errors.New("glyph rendering failed")
	// ErrUnsupportedGlyph is returned when a font has no glyph for a character.
	ErrUnsupportedGlyph = fmt.Errorf("%w: unsupported character", ErrRender)
)

// Format selects the encoder used by Engine.Generate.
type Format string

// Supported output formats.
const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatGIF  Format = "gif"
)

// Options configures an Engine.
type Options struct {
	Width  int
	Height int

	// Fonts is the eligible font set. Used by New only; NewEngine takes the
	// renderer directly.
	Fonts []*Font
	// FontSizes are candidate sizes in pixels. Empty derives sizes from Height.
	FontSizes []float64
	// MinFontSize bounds the shrink applied when text does not fit.
	MinFontSize float64

	// MaxRotation is the largest absolute glyph rotation in degrees.
	MaxRotation float64
	// JitterMin and JitterMax bound the random horizontal cursor jitter.
	JitterMin int
	JitterMax int
	// VerticalJitter bounds the random vertical offset from the centre line.
	VerticalJitter int
	// Overlap is the fraction of a glyph's width the next glyph may cover.
	Overlap float64
	// GlyphWarp enables the per-glyph quad squeeze before pasting.
	GlyphWarp bool

	NoiseCurves int
	NoiseDots   int
	CurveWidth  float64
	DotRadius   float64

	// WarpAmplitude is the whole-canvas wave displacement in pixels; zero
	// disables the warp.
	WarpAmplitude float64
	WarpPeriod    float64

	// Smooth applies a 3x3 smoothing kernel after noise. Boxes grow by one
	// pixel to cover the softened edges.
	Smooth bool
	Format Format

	// Seed initialises the random source; zero seeds from the clock.
	Seed int64
}

// DefaultOptions returns a 160x60 configuration using the embedded Go fonts.
func DefaultOptions() Options {
	return Options{
		Width:          160,
		Height:         60,
		Fonts:          DefaultFonts(),
		MinFontSize:    10,
		MaxRotation:    30,
		JitterMin:      -3,
		JitterMax:      2,
		VerticalJitter: 3,
		Overlap:        0.1,
		GlyphWarp:      true,
		NoiseCurves:    1,
		NoiseDots:      30,
		CurveWidth:     2,
		DotRadius:      1.5,
		WarpAmplitude:  2.5,
		WarpPeriod:     70,
		Smooth:         true,
		Format:         FormatPNG,
	}
}

// sizeRatios derive font sizes from the canvas height (42/50/56 at 60px).
var sizeRatios = []float64{0.7, 0.83, 0.93}

func (o Options) withDefaults() Options {
	if len(o.FontSizes) == 0 && o.Height > 0 {
		o.FontSizes = make([]float64, len(sizeRatios))
		for i, r := range sizeRatios {
			o.FontSizes[i] = math.Round(float64(o.Height) * r)
		}
	}
	if o.Format == "" {
		o.Format = FormatPNG
	}
	if o.CurveWidth == 0 {
		o.CurveWidth = 2
	}
	if o.DotRadius == 0 {
		o.DotRadius = 1.5
	}
	return o
}

func (o Options) validate(fontCount int) error {
	switch {
	case o.Width <= 0 || o.Height <= 0:
		return fmt.Errorf("%w: canvas size %dx%d", ErrInvalidConfig, o.Width, o.Height)
	case fontCount == 0:
		return fmt.Errorf("%w: empty font set", ErrInvalidConfig)
	case o.MaxRotation < 0 || o.MaxRotation > 180:
		return fmt.Errorf("%w: max rotation %.1f out of [0, 180]", ErrInvalidConfig, o.MaxRotation)
	case o.Overlap < 0 || o.Overlap >= 0.5:
		return fmt.Errorf("%w: overlap %.2f out of [0, 0.5)", ErrInvalidConfig, o.Overlap)
	case o.JitterMin > o.JitterMax:
		return fmt.Errorf("%w: jitter range [%d, %d]", ErrInvalidConfig, o.JitterMin, o.JitterMax)
	case o.VerticalJitter < 0:
		return fmt.Errorf("%w: negative vertical jitter", ErrInvalidConfig)
	case o.NoiseCurves < 0 || o.NoiseDots < 0:
		return fmt.Errorf("%w: negative noise count", ErrInvalidConfig)
	case o.CurveWidth < 0 || o.DotRadius < 0:
		return fmt.Errorf("%w: negative noise stroke size", ErrInvalidConfig)
	case o.WarpAmplitude < 0:
		return fmt.Errorf("%w: negative warp amplitude", ErrInvalidConfig)
	case o.WarpAmplitude > 0 && o.WarpPeriod <= 0:
		return fmt.Errorf("%w: warp period must be positive", ErrInvalidConfig)
	case o.MinFontSize < 0:
		return fmt.Errorf("%w: negative minimum font size", ErrInvalidConfig)
	}

	for _, s := range o.FontSizes {
		if s <= 0 {
			return fmt.Errorf("%w: font size %.1f", ErrInvalidConfig, s)
		}
	}

	switch o.Format {
	case FormatPNG, FormatJPEG, FormatGIF:
	default:
		return fmt.Errorf("%w: unknown format %q", ErrInvalidConfig, o.Format)
	}
	return nil
}

// ColorOption overrides the per-call palette.
type ColorOption func(*palette)

type palette struct {
	background color.Color
	foreground color.Color
}

// WithBackground sets the canvas colour for one call.
func WithBackground(c color.Color) ColorOption {
	return func(p *palette) {
		p.background = c
	}
}

// WithForeground sets the text colour for one call.
func WithForeground(c color.Color) ColorOption {
	return func(p *palette) {
		p.foreground = c
	}
}
