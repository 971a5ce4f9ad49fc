package imaging

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

// DefaultOverlayColor is the outline color used for detected coins.
const DefaultOverlayColor = "#00FF00"

// Outline is a circle to draw on an annotated image.
type Outline struct {
	X      int
	Y      int
	Radius int
}

// OverlayStyle controls how outlines are drawn.
type OverlayStyle struct {
	Color     color.Color
	Thickness int
}

// DefaultOverlayStyle returns a 2 pixel green outline.
func DefaultOverlayStyle() OverlayStyle {
	c, _ := ParseOverlayColor(DefaultOverlayColor)
	return OverlayStyle{Color: c, Thickness: 2}
}

// ParseOverlayColor parses a hex color string like "#00FF00".
func ParseOverlayColor(hex string) (color.NRGBA, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid overlay color %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
}

// Annotate returns a copy of img with every outline drawn on top of it.
//
// The source image is never modified. Outline coordinates are relative to the
// top-left corner of img, matching the coordinates produced by the detector.
func Annotate(img image.Image, outlines []Outline, style OverlayStyle) *image.NRGBA {
	canvas := imaging.Clone(img)
	if style.Thickness < 1 {
		style.Thickness = 1
	}
	if style.Color == nil {
		style.Color = DefaultOverlayStyle().Color
	}
	for _, o := range outlines {
		for t := 0; t < style.Thickness; t++ {
			drawCircle(canvas, o.X, o.Y, o.Radius-style.Thickness/2+t, style.Color)
		}
	}
	return canvas
}

// drawCircle draws a one pixel circle outline using the midpoint algorithm.
// Pixels outside the canvas are skipped.
func drawCircle(img *image.NRGBA, cx, cy, radius int, c color.Color) {
	if radius < 0 {
		return
	}
	bounds := img.Bounds()
	plot := func(px, py int) {
		px += bounds.Min.X
		py += bounds.Min.Y
		if px >= bounds.Min.X && px < bounds.Max.X && py >= bounds.Min.Y && py < bounds.Max.Y {
			img.Set(px, py, c)
		}
	}

	x := radius
	y := 0
	err := 0
	for x >= y {
		plot(cx+x, cy+y)
		plot(cx+y, cy+x)
		plot(cx-y, cy+x)
		plot(cx-x, cy+y)
		plot(cx-x, cy-y)
		plot(cx-y, cy-x)
		plot(cx+y, cy-x)
		plot(cx+x, cy-y)

		if err <= 0 {
			y++
			err += 2*y + 1
		}
		if err > 0 {
			x--
			err -= 2*x + 1
		}
	}
}

// SavePNG writes img to path as PNG, creating parent directories as needed.
func SavePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := imgio.Save(path, img, imgio.PNGEncoder()); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
