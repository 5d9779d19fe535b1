package captcha

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Glyph describes a single character to rasterize.
type Glyph struct {
	Char  rune
	Font  int     // index into the renderer's font set
	Size  float64 // font size in pixels (72 DPI)
	Angle float64 // counter-clockwise rotation in degrees
	Color color.Color
}

// GlyphRenderer turns characters into isolated rasters with alpha.
// Given identical inputs it must return identical geometry.
type GlyphRenderer interface {
	// FontCount returns the number of eligible fonts.
	FontCount() int
	// Measure returns the natural (unrotated) ink size of the glyph.
	Measure(g Glyph) (image.Point, error)
	// Render returns the glyph rotated by g.Angle on a transparent raster.
	Render(g Glyph) (*image.NRGBA, error)
}

type faceKey struct {
	font int
	size float64
}

// FontRenderer renders glyphs from OpenType fonts. Faces are cached per
// font and size.
type FontRenderer struct {
	fonts []*Font

	mu    sync.Mutex
	faces map[faceKey]font.Face
}

// NewFontRenderer creates a FontRenderer over the given font set.
func NewFontRenderer(fonts []*Font) *FontRenderer {
	return &FontRenderer{
		fonts: fonts,
		faces: make(map[faceKey]font.Face),
	}
}

// FontCount returns the number of fonts in the set.
func (r *FontRenderer) FontCount() int {
	return len(r.fonts)
}

// Measure returns the ink size of the unrotated glyph. Glyphs without ink
// (spaces) report their advance width and zero height.
func (r *FontRenderer) Measure(g Glyph) (image.Point, error) {
	if g.Color == nil {
		g.Color = color.Black
	}
	img, advance, err := r.rasterize(g)
	if err != nil {
		return image.Point{}, err
	}
	if img.Bounds().Empty() {
		return image.Pt(advance, 0), nil
	}
	return img.Bounds().Size(), nil
}

// Render rasterizes the glyph, crops it to its ink and rotates it.
func (r *FontRenderer) Render(g Glyph) (*image.NRGBA, error) {
	if g.Color == nil {
		g.Color = color.Black
	}
	img, _, err := r.rasterize(g)
	if err != nil {
		return nil, err
	}
	if img.Bounds().Empty() || g.Angle == 0 {
		return img, nil
	}
	return imaging.Rotate(img, g.Angle, color.Transparent), nil
}

// Close releases all cached faces.
func (r *FontRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, face := range r.faces {
		_ = face.Close()
		delete(r.faces, key)
	}
	return nil
}

// rasterize draws the glyph into an ink-tight raster and returns it with the
// glyph advance in pixels.
func (r *FontRenderer) rasterize(g Glyph) (*image.NRGBA, int, error) {
	if g.Font < 0 || g.Font >= len(r.fonts) {
		return nil, 0, fmt.Errorf("%w: font index %d out of range", ErrRender, g.Font)
	}
	f := r.fonts[g.Font]
	if !f.Supports(g.Char) {
		return nil, 0, fmt.Errorf("%w: %q in font %s", ErrUnsupportedGlyph, g.Char, f.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	face, err := r.face(g.Font, g.Size)
	if err != nil {
		return nil, 0, err
	}

	// The mask returned by Glyph is owned by the face and reused on the next
	// call, so it is drawn while the lock is held.
	dr, mask, maskp, advance, ok := face.Glyph(fixed.Point26_6{}, g.Char)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %q in font %s", ErrUnsupportedGlyph, g.Char, f.Name)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, dr.Dx(), dr.Dy()))
	draw.DrawMask(dst, dst.Bounds(), image.NewUniform(g.Color), image.Point{}, mask, maskp, draw.Over)

	ink := inkBounds(dst)
	if ink.Empty() {
		return image.NewNRGBA(image.Rectangle{}), advance.Ceil(), nil
	}
	return imaging.Crop(dst, ink), advance.Ceil(), nil
}

func (r *FontRenderer) face(idx int, size float64) (font.Face, error) {
	key := faceKey{font: idx, size: size}
	if face, ok := r.faces[key]; ok {
		return face, nil
	}

	face, err := opentype.NewFace(r.fonts[idx].sfnt, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create face %s@%.1f: %v", ErrRender, r.fonts[idx].Name, size, err)
	}
	r.faces[key] = face
	return face, nil
}
