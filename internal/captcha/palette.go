package captcha

import (
	"fmt"
	"image/color"
	"math/rand"

	"github.com/lucasb-eyer/go-colorful"
)

// minNoiseDistance is the CIE-Lab distance below which the noise colour is
// pushed away from the background.
const minNoiseDistance = 0.25

// RGB returns an opaque colour.
func RGB(r, g, b uint8) color.NRGBA {
	return color.NRGBA{R: r, G: g, B: b, A: 0xff}
}

// RGBA returns a colour with straight (non-premultiplied) alpha.
func RGBA(r, g, b, a uint8) color.NRGBA {
	return color.NRGBA{R: r, G: g, B: b, A: a}
}

// ParseHex parses "#rgb" or "#rrggbb" into an opaque colour.
func ParseHex(s string) (color.NRGBA, error) {
	c, err := colorful.Hex(s)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return RGB(r, g, b), nil
}

// FromTuple converts a 3 or 4 element channel list into a colour.
func FromTuple(v []int) (color.NRGBA, error) {
	if len(v) != 3 && len(v) != 4 {
		return color.NRGBA{}, fmt.Errorf("colour tuple must have 3 or 4 channels, got %d", len(v))
	}
	ch := [4]uint8{0, 0, 0, 0xff}
	for i, x := range v {
		if x < 0 || x > 255 {
			return color.NRGBA{}, fmt.Errorf("colour channel %d out of range: %d", i, x)
		}
		ch[i] = uint8(x)
	}
	return RGBA(ch[0], ch[1], ch[2], ch[3]), nil
}

func toNRGBA(c color.Color) color.NRGBA {
	return color.NRGBAModel.Convert(c).(color.NRGBA)
}

// randomBackground picks a light colour, each channel in [238, 255].
func randomBackground(rng *rand.Rand) color.NRGBA {
	return RGB(randChannel(rng, 238, 255), randChannel(rng, 238, 255), randChannel(rng, 238, 255))
}

// randomForeground picks a darker colour, each channel in [10, 200] with
// alpha in [220, 255].
func randomForeground(rng *rand.Rand) color.NRGBA {
	r := randChannel(rng, 10, 200)
	g := randChannel(rng, 10, 200)
	b := randChannel(rng, 10, 200)
	return RGBA(r, g, b, randChannel(rng, 220, 255))
}

func randChannel(rng *rand.Rand, lo, hi int) uint8 {
	return uint8(lo + rng.Intn(hi-lo+1))
}

// NoiseColor returns the colour used for noise: the foreground, unless it is
// too close to the background in which case its lightness is moved away.
func NoiseColor(fg, bg color.Color) color.Color {
	f, okF := colorful.MakeColor(fg)
	b, okB := colorful.MakeColor(bg)
	if !okF || !okB || f.DistanceLab(b) >= minNoiseDistance {
		return fg
	}

	l, a, bb := f.Lab()
	bl, _, _ := b.Lab()
	if bl > 0.5 {
		l = bl - 0.5
	} else {
		l = bl + 0.5
	}
	return colorful.Lab(l, a, bb).Clamped()
}
