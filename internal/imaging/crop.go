package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

// ColorSample is a color in hex, RGB and HSL form.
type ColorSample struct {
	Hex string `json:"hex"`
	R   uint8  `json:"r"`
	G   uint8  `json:"g"`
	B   uint8  `json:"b"`
	// H is in degrees [0, 360); S and L are in [0, 1].
	H float64 `json:"h"`
	S float64 `json:"s"`
	L float64 `json:"l"`
}

// CoinCrop is a cut-out around one circle, encoded as PNG.
type CoinCrop struct {
	// Bounds of the cut-out in image coordinates, X2/Y2 exclusive.
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`

	// Width and Height of the encoded image, after scaling.
	Width  int `json:"width"`
	Height int `json:"height"`

	// MeanColor averages the pixels inside the circle.
	MeanColor ColorSample `json:"mean_color"`

	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// CropCircle cuts the square around a circle, widened by padding pixels on
// every side and clipped to the image, and optionally rescales it.
//
// Coordinates are relative to the top-left corner of img. A scale of 0 or 1
// keeps the original size.
func CropCircle(img image.Image, cx, cy, radius, padding int, scale float64) (*CoinCrop, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInvalidInput)
	}
	if radius < 1 || padding < 0 || scale < 0 {
		return nil, fmt.Errorf("%w: radius %d, padding %d, scale %g", ErrInvalidInput, radius, padding, scale)
	}

	b := img.Bounds()
	ext := radius + padding
	rect := image.Rect(cx-ext, cy-ext, cx+ext+1, cy+ext+1).
		Intersect(image.Rect(0, 0, b.Dx(), b.Dy()))
	if rect.Empty() {
		return nil, fmt.Errorf("%w: circle at (%d,%d) r=%d lies outside the %dx%d image",
			ErrInvalidInput, cx, cy, radius, b.Dx(), b.Dy())
	}

	mean := meanColorInCircle(img, cx, cy, radius, rect)

	cropped := imaging.Crop(img, rect.Add(b.Min))
	if scale != 1.0 && scale > 0 {
		newWidth := int(float64(cropped.Bounds().Dx()) * scale)
		newHeight := int(float64(cropped.Bounds().Dy()) * scale)
		if newWidth < 1 || newHeight < 1 {
			return nil, fmt.Errorf("%w: scale %g leaves an empty image", ErrInvalidInput, scale)
		}
		cropped = imaging.Resize(cropped, newWidth, newHeight, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, cropped); err != nil {
		return nil, fmt.Errorf("failed to encode cropped image: %w", err)
	}

	return &CoinCrop{
		X1:          rect.Min.X,
		Y1:          rect.Min.Y,
		X2:          rect.Max.X,
		Y2:          rect.Max.Y,
		Width:       cropped.Bounds().Dx(),
		Height:      cropped.Bounds().Dy(),
		MeanColor:   mean,
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}

// meanColorInCircle averages the pixels of rect that lie inside the circle.
func meanColorInCircle(img image.Image, cx, cy, radius int, rect image.Rectangle) ColorSample {
	b := img.Bounds()
	var sumR, sumG, sumB, n int
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy > radius*radius {
				continue
			}
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			sumR += int(c.R)
			sumG += int(c.G)
			sumB += int(c.B)
			n++
		}
	}
	if n == 0 {
		return newColorSample(0, 0, 0)
	}
	return newColorSample(
		uint8((sumR+n/2)/n),
		uint8((sumG+n/2)/n),
		uint8((sumB+n/2)/n),
	)
}

func newColorSample(r, g, b uint8) ColorSample {
	c := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
	h, s, l := c.Hsl()
	return ColorSample{
		Hex: fmt.Sprintf("#%02X%02X%02X", r, g, b),
		R:   r,
		G:   g,
		B:   b,
		H:   h,
		S:   s,
		L:   l,
	}
}
