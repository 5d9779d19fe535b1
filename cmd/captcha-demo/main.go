// Command captcha-demo writes captcha images for the given texts, each with a
// copy that has the character boxes drawn on top.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/vector"

	"github.com/kyiku/textcaptcha/internal/captcha"
)

// boxColors cycle through the boxes of one image.
var boxColors = []color.NRGBA{
	captcha.RGB(230, 25, 75),
	captcha.RGB(60, 180, 75),
	captcha.RGB(0, 130, 200),
	captcha.RGB(245, 130, 48),
	captcha.RGB(145, 30, 180),
}

func main() {
	out := flag.String("out", "captcha-out", "output directory")
	width := flag.Int("width", 200, "image width")
	height := flag.Int("height", 80, "image height")
	seed := flag.Int64("seed", 0, "random seed (0 = time based)")
	bg := flag.String("bg", "", "background colour, #rrggbb or r,g,b[,a]")
	fg := flag.String("fg", "", "text colour, #rrggbb or r,g,b[,a]")
	flag.Parse()

	texts := flag.Args()
	if len(texts) == 0 {
		texts = []string{"ABC123", "X", "TEST"}
	}

	var colorOpts []captcha.ColorOption
	if *bg != "" {
		c, err := parseColor(*bg)
		if err != nil {
			log.Fatalf("Invalid -bg: %v", err)
		}
		colorOpts = append(colorOpts, captcha.WithBackground(c))
	}
	if *fg != "" {
		c, err := parseColor(*fg)
		if err != nil {
			log.Fatalf("Invalid -fg: %v", err)
		}
		colorOpts = append(colorOpts, captcha.WithForeground(c))
	}

	opts := captcha.DefaultOptions()
	opts.Width = *width
	opts.Height = *height
	opts.Seed = *seed
	engine, err := captcha.New(opts)
	if err != nil {
		log.Fatalf("Failed to create captcha engine: %v", err)
	}

	if err := os.MkdirAll(*out, 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	for i, text := range texts {
		img, boxes, err := engine.GenerateWithBoundingBoxes(text, colorOpts...)
		if err != nil {
			log.Printf("Skipping %q: %v", text, err)
			continue
		}

		base := filepath.Join(*out, fmt.Sprintf("%02d_%s", i, fileName(text)))
		if err := imaging.Save(img, base+".png"); err != nil {
			log.Fatalf("Failed to save image: %v", err)
		}
		if err := imaging.Save(drawBoxes(img, boxes), base+"_boxes.png"); err != nil {
			log.Fatalf("Failed to save annotated image: %v", err)
		}

		fmt.Printf("%s -> %s.png\n", text, base)
		for _, b := range boxes {
			fmt.Printf("  %q: x=%d y=%d w=%d h=%d\n", b.Char, b.X, b.Y, b.W, b.H)
		}
	}
}

// drawBoxes returns a copy of img with a one pixel outline around each box.
func drawBoxes(img *image.NRGBA, boxes []captcha.BoundingBox) *image.NRGBA {
	dst := imaging.Clone(img)
	b := dst.Bounds()

	for i, box := range boxes {
		if box.Empty() {
			continue
		}
		z := vector.NewRasterizer(b.Dx(), b.Dy())
		z.DrawOp = draw.Over
		outline(z, float32(box.X), float32(box.Y), float32(box.X+box.W), float32(box.Y+box.H))
		z.Draw(dst, b, image.NewUniform(boxColors[i%len(boxColors)]), image.Point{})
	}
	return dst
}

// outline adds a one pixel frame just inside the rectangle as two nested
// paths of opposite winding.
func outline(z *vector.Rasterizer, x0, y0, x1, y1 float32) {
	z.MoveTo(x0, y0)
	z.LineTo(x1, y0)
	z.LineTo(x1, y1)
	z.LineTo(x0, y1)
	z.ClosePath()

	if x1-x0 <= 2 || y1-y0 <= 2 {
		return
	}
	z.MoveTo(x0+1, y0+1)
	z.LineTo(x0+1, y1-1)
	z.LineTo(x1-1, y1-1)
	z.LineTo(x1-1, y0+1)
	z.ClosePath()
}

// parseColor accepts "#rrggbb" or a comma separated channel list.
func parseColor(s string) (color.NRGBA, error) {
	if strings.HasPrefix(s, "#") {
		return captcha.ParseHex(s)
	}
	parts := strings.Split(s, ",")
	tuple := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("invalid channel %q: %w", p, err)
		}
		tuple[i] = v
	}
	return captcha.FromTuple(tuple)
}

// fileName keeps letters and digits of text for use in a file name.
func fileName(text string) string {
	name := strings.Map(func(r rune) rune {
		if r < 0x80 && (r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, text)
	if name == "" {
		return "empty"
	}
	return name
}
