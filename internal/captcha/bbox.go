package captcha

import (
	"encoding/json"
	"fmt"
	"image"
)

// BoundingBox is the pixel extent of one rendered character in final canvas
// coordinates. X+W never exceeds the canvas width and Y+H never exceeds its
// height. W or H may be zero when a glyph collapses or is clipped away.
type BoundingBox struct {
	Char rune
	X    int
	Y    int
	W    int
	H    int
}

// Rect returns the box as an image.Rectangle.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
}

// Tuple returns (x, y, width, height).
func (b BoundingBox) Tuple() [4]int {
	return [4]int{b.X, b.Y, b.W, b.H}
}

// Empty reports whether the box has zero area.
func (b BoundingBox) Empty() bool {
	return b.W <= 0 || b.H <= 0
}

type boundingBoxJSON struct {
	Character string `json:"character"`
	BBox      [4]int `json:"bbox"`
}

// MarshalJSON encodes the box as {"character": "A", "bbox": [x, y, w, h]}.
func (b BoundingBox) MarshalJSON() ([]byte, error) {
	return json.Marshal(boundingBoxJSON{
		Character: string(b.Char),
		BBox:      b.Tuple(),
	})
}

// UnmarshalJSON decodes the format written by MarshalJSON.
func (b *BoundingBox) UnmarshalJSON(data []byte) error {
	var v boundingBoxJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	runes := []rune(v.Character)
	if len(runes) != 1 {
		return fmt.Errorf("bounding box character must be a single rune, got %q", v.Character)
	}
	*b = BoundingBox{Char: runes[0], X: v.BBox[0], Y: v.BBox[1], W: v.BBox[2], H: v.BBox[3]}
	return nil
}

// clampBox converts r into a box clipped to bounds. A rectangle with no
// visible part becomes a zero-area box pinned to the nearest canvas pixel.
func clampBox(c rune, r, bounds image.Rectangle) BoundingBox {
	vis := r.Intersect(bounds)
	if vis.Empty() {
		return BoundingBox{
			Char: c,
			X:    clampInt(r.Min.X, bounds.Min.X, bounds.Max.X-1),
			Y:    clampInt(r.Min.Y, bounds.Min.Y, bounds.Max.Y-1),
		}
	}
	return BoundingBox{
		Char: c,
		X:    vis.Min.X,
		Y:    vis.Min.Y,
		W:    vis.Dx(),
		H:    vis.Dy(),
	}
}

// growBox widens b by n pixels on every side, clipped to bounds. Zero-area
// boxes mark glyphs without visible ink and stay as they are.
func growBox(b BoundingBox, n int, bounds image.Rectangle) BoundingBox {
	if n <= 0 || b.Empty() {
		return b
	}
	return clampBox(b.Char, b.Rect().Inset(-n), bounds)
}

// inkBounds returns the smallest rectangle holding every pixel with non-zero
// alpha, or the zero rectangle when there is none.
func inkBounds(img *image.NRGBA) image.Rectangle {
	b := img.Bounds()
	minX, minY := b.Max.X, b.Max.Y
	maxX, maxY := b.Min.X-1, b.Min.Y-1

	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):]
		for x := b.Min.X; x < b.Max.X; x++ {
			if row[(x-b.Min.X)*4+3] == 0 {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}

	if maxX < minX || maxY < minY {
		return image.Rectangle{}
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
