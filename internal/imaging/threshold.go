package imaging

import (
	"fmt"
	"image"
)

// Default adaptive threshold parameters.
const (
	DefaultBlockSize = 11
	DefaultC         = 4.0
)

// Mask is a binary foreground/background grid congruent to the image it was
// derived from. Pix is stored row-major; true marks a foreground (coin) cell.
type Mask struct {
	Width  int
	Height int
	Pix    []bool
}

// NewMask allocates an all-background mask.
func NewMask(width, height int) *Mask {
	return &Mask{
		Width:  width,
		Height: height,
		Pix:    make([]bool, width*height),
	}
}

// At reports whether (x, y) is foreground. Out-of-range coordinates are background.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Pix[y*m.Width+x]
}

// Set marks (x, y) as foreground or background.
func (m *Mask) Set(x, y int, v bool) {
	m.Pix[y*m.Width+x] = v
}

// Count returns the number of foreground cells.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v {
			n++
		}
	}
	return n
}

// Image renders the mask as grayscale: foreground 255, background 0.
func (m *Mask) Image() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, v := range m.Pix {
		if v {
			img.Pix[i] = 255
		}
	}
	return img
}

// AdaptiveThreshold binarizes a grayscale image with a locally-adaptive mean threshold.
//
// For each pixel the mean intensity over the blockSize×blockSize neighborhood is
// computed; the pixel becomes foreground when its intensity is strictly below
// (mean - c). This is the inverted form suited to dark coins on a light
// background, and it tolerates uneven illumination because every pixel is
// compared only with its surroundings.
//
// Neighborhoods that extend past the image border are clipped to the valid
// region, so border means are computed from real pixels only. Means come from a
// summed-area table, making the cost independent of blockSize.
//
// Returns an error wrapping ErrInvalidInput if src is empty or blockSize is not
// an odd number >= 3.
func AdaptiveThreshold(src *image.Gray, blockSize int, c float64) (*Mask, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInvalidInput)
	}
	bounds := src.Bounds()
	if err := checkBounds(bounds); err != nil {
		return nil, err
	}
	if blockSize < 3 || blockSize%2 == 0 {
		return nil, fmt.Errorf("%w: block size must be an odd number >= 3, got %d", ErrInvalidInput, blockSize)
	}
	width := bounds.Dx()
	height := bounds.Dy()
	half := blockSize / 2

	// integral[(y+1)*(width+1)+(x+1)] holds the sum of all pixels above and left of (x, y) inclusive.
	stride := width + 1
	integral := make([]uint64, stride*(height+1))
	for y := 0; y < height; y++ {
		var rowSum uint64
		for x := 0; x < width; x++ {
			rowSum += uint64(src.Pix[src.PixOffset(x+bounds.Min.X, y+bounds.Min.Y)])
			integral[(y+1)*stride+x+1] = integral[y*stride+x+1] + rowSum
		}
	}

	mask := NewMask(width, height)
	for y := 0; y < height; y++ {
		y0 := clamp(y-half, 0, height-1)
		y1 := clamp(y+half, 0, height-1) + 1
		for x := 0; x < width; x++ {
			x0 := clamp(x-half, 0, width-1)
			x1 := clamp(x+half, 0, width-1) + 1

			sum := integral[y1*stride+x1] - integral[y0*stride+x1] - integral[y1*stride+x0] + integral[y0*stride+x0]
			count := (x1 - x0) * (y1 - y0)
			mean := float64(sum) / float64(count)

			v := float64(src.Pix[src.PixOffset(x+bounds.Min.X, y+bounds.Min.Y)])
			if v < mean-c {
				mask.Pix[y*width+x] = true
			}
		}
	}
	return mask, nil
}
