// Package captcha provides text CAPTCHA generation with per-character bounding boxes.
package captcha

import (
	"fmt"
	"sort"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/gofont/gosmallcaps"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
)

// embeddedFonts maps names to the Go font family shipped with x/image.
var embeddedFonts = map[string][]byte{
	"goregular":    goregular.TTF,
	"gobold":       gobold.TTF,
	"goitalic":     goitalic.TTF,
	"gobolditalic": gobolditalic.TTF,
	"gomedium":     gomedium.TTF,
	"gomono":       gomono.TTF,
	"gomonobold":   gomonobold.TTF,
	"gosmallcaps":  gosmallcaps.TTF,
}

// DefaultFontNames are the embedded fonts used when no font set is configured.
var DefaultFontNames = []string{"goregular", "gobold", "gomonobold"}

// Font is a parsed OpenType/TrueType font eligible for glyph rendering.
type Font struct {
	Name string
	sfnt *opentype.Font
}

// ParseFont parses raw font data.
func ParseFont(name string, data []byte) (*Font, error) {
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font %s: %w", name, err)
	}
	return &Font{Name: name, sfnt: f}, nil
}

// EmbeddedFonts returns the named fonts from the embedded Go font family.
func EmbeddedFonts(names ...string) ([]*Font, error) {
	fonts := make([]*Font, 0, len(names))
	for _, name := range names {
		data, ok := embeddedFonts[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown embedded font %q", ErrInvalidConfig, name)
		}
		f, err := ParseFont(name, data)
		if err != nil {
			return nil, err
		}
		fonts = append(fonts, f)
	}
	return fonts, nil
}

// EmbeddedFontNames lists the names accepted by EmbeddedFonts.
func EmbeddedFontNames() []string {
	names := make([]string, 0, len(embeddedFonts))
	for name := range embeddedFonts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultFonts returns the DefaultFontNames fonts. It panics if the embedded
// data cannot be parsed.
func DefaultFonts() []*Font {
	fonts, err := EmbeddedFonts(DefaultFontNames...)
	if err != nil {
		panic(err)
	}
	return fonts
}

// Supports reports whether the font maps r to a real glyph rather than notdef.
func (f *Font) Supports(r rune) bool {
	var buf sfnt.Buffer
	idx, err := f.sfnt.GlyphIndex(&buf, r)
	return err == nil && idx != 0
}
