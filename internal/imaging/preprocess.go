package imaging

import (
	"fmt"
	"image"
	"math"
)

// DefaultBlurKernel is the side length of the square Gaussian kernel used when
// no kernel size is configured.
const DefaultBlurKernel = 5

// ToGray converts an image to 8-bit grayscale using ITU-R BT.601 luminance weights.
//
// Formula: Y = 0.299*R + 0.587*G + 0.114*B, rounded to the nearest integer, so
// the 0-255 range of the input channels is preserved. The returned image has
// bounds (0,0)-(width,height) regardless of the source bounds.
//
// Returns an error wrapping ErrInvalidInput if img is nil or empty.
func ToGray(img image.Image) (*image.Gray, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInvalidInput)
	}
	bounds := img.Bounds()
	if err := checkBounds(bounds); err != nil {
		return nil, err
	}
	width := bounds.Dx()
	height := bounds.Dy()

	gray := image.NewGray(image.Rect(0, 0, width, height))

	if src, ok := img.(*image.Gray); ok {
		for y := 0; y < height; y++ {
			srcOff := src.PixOffset(bounds.Min.X, y+bounds.Min.Y)
			copy(gray.Pix[y*gray.Stride:y*gray.Stride+width], src.Pix[srcOff:srcOff+width])
		}
		return gray, nil
	}

	for y := 0; y < height; y++ {
		row := gray.Pix[y*gray.Stride:]
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
			lum := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			row[x] = uint8(math.Round(lum))
		}
	}
	return gray, nil
}

// Blur applies a separable Gaussian blur with a square kernelSize×kernelSize kernel.
//
// Parameters:
//   - src: grayscale source image, must be non-empty.
//   - kernelSize: odd kernel side length (1 disables smoothing).
//   - sigma: standard deviation; values <= 0 derive sigma from the kernel size
//     as 0.3*((kernelSize-1)*0.5 - 1) + 0.8 (1.1 for a 5×5 kernel).
//
// Border pixels use clamped (replicated) edge values, so the output has the same
// dimensions as the input.
func Blur(src *image.Gray, kernelSize int, sigma float64) (*image.Gray, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInvalidInput)
	}
	bounds := src.Bounds()
	if err := checkBounds(bounds); err != nil {
		return nil, err
	}
	if kernelSize < 1 || kernelSize%2 == 0 {
		return nil, fmt.Errorf("%w: blur kernel size must be a positive odd number, got %d", ErrInvalidInput, kernelSize)
	}
	width := bounds.Dx()
	height := bounds.Dy()

	kernel := gaussianKernel(kernelSize, sigma)
	half := kernelSize / 2

	// Horizontal pass
	tmp := make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var sum float64
			for k := -half; k <= half; k++ {
				px := clamp(x+k, 0, width-1)
				sum += float64(src.Pix[src.PixOffset(px+bounds.Min.X, y+bounds.Min.Y)]) * kernel[k+half]
			}
			tmp[y*width+x] = sum
		}
	}

	// Vertical pass
	dst := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var sum float64
			for k := -half; k <= half; k++ {
				py := clamp(y+k, 0, height-1)
				sum += tmp[py*width+x] * kernel[k+half]
			}
			dst.Pix[y*dst.Stride+x] = uint8(clamp(int(math.Round(sum)), 0, 255))
		}
	}
	return dst, nil
}

// DerivedSigma returns the sigma used for a kernel when none is configured.
func DerivedSigma(kernelSize int) float64 {
	return 0.3*(float64(kernelSize-1)*0.5-1) + 0.8
}

// gaussianKernel builds a normalized 1-D Gaussian kernel of the given size.
func gaussianKernel(size int, sigma float64) []float64 {
	if sigma <= 0 {
		sigma = DerivedSigma(size)
	}
	half := size / 2
	kernel := make([]float64, size)
	var total float64
	for i := -half; i <= half; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+half] = v
		total += v
	}
	for i := range kernel {
		kernel[i] /= total
	}
	return kernel
}

// clamp constrains an integer value to the range [min, max].
// Used for boundary handling in convolution operations.
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
