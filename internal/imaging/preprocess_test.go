package imaging

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"
)

// solidRGBA creates a solid color test image
func solidRGBA(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// solidGray creates a uniform grayscale image
func solidGray(width, height int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

// fillDisk paints a filled disk of the given gray level
func fillDisk(img *image.Gray, cx, cy, radius int, v uint8) {
	for y := cy - radius; y <= cy+radius; y++ {
		for x := cx - radius; x <= cx+radius; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= radius*radius && image.Pt(x, y).In(img.Bounds()) {
				img.SetGray(x, y, color.Gray{Y: v})
			}
		}
	}
}

func TestToGray_LumaWeights(t *testing.T) {
	tests := []struct {
		name string
		c    color.RGBA
		want uint8
	}{
		{"white", color.RGBA{255, 255, 255, 255}, 255},
		{"black", color.RGBA{0, 0, 0, 255}, 0},
		{"red", color.RGBA{255, 0, 0, 255}, 76},
		{"green", color.RGBA{0, 255, 0, 255}, 150},
		{"blue", color.RGBA{0, 0, 255, 255}, 29},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gray, err := ToGray(solidRGBA(4, 3, tt.c))
			if err != nil {
				t.Fatalf("ToGray failed: %v", err)
			}
			if got := gray.GrayAt(2, 1).Y; got != tt.want {
				t.Errorf("luma: got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestToGray_RebasesBounds(t *testing.T) {
	src := image.NewRGBA(image.Rect(10, 20, 30, 35))
	src.Set(10, 20, color.White)

	gray, err := ToGray(src)
	if err != nil {
		t.Fatalf("ToGray failed: %v", err)
	}
	if gray.Bounds() != image.Rect(0, 0, 20, 15) {
		t.Errorf("bounds: got %v, want (0,0)-(20,15)", gray.Bounds())
	}
	if gray.GrayAt(0, 0).Y != 255 {
		t.Errorf("top-left pixel: got %d, want 255", gray.GrayAt(0, 0).Y)
	}
}

func TestToGray_GrayInputCopied(t *testing.T) {
	src := solidGray(5, 5, 42)
	gray, err := ToGray(src)
	if err != nil {
		t.Fatalf("ToGray failed: %v", err)
	}
	gray.Pix[0] = 0
	if src.Pix[0] != 42 {
		t.Error("ToGray must not alias the source pixels")
	}
}

func TestToGray_Empty(t *testing.T) {
	_, err := ToGray(image.NewRGBA(image.Rect(0, 0, 0, 10)))
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	_, err = ToGray(nil)
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for nil, got %v", err)
	}
}

func TestBlur_PreservesDimensions(t *testing.T) {
	sizes := []struct{ w, h int }{{1, 1}, {2, 7}, {13, 5}, {64, 48}}
	kernels := []int{1, 3, 5, 9}

	for _, s := range sizes {
		for _, k := range kernels {
			src := solidGray(s.w, s.h, 100)
			fillDisk(src, s.w/2, s.h/2, 2, 10)
			out, err := Blur(src, k, 0)
			if err != nil {
				t.Fatalf("Blur(%dx%d, k=%d) failed: %v", s.w, s.h, k, err)
			}
			if out.Bounds().Dx() != s.w || out.Bounds().Dy() != s.h {
				t.Errorf("Blur(%dx%d, k=%d): got %dx%d", s.w, s.h, k, out.Bounds().Dx(), out.Bounds().Dy())
			}
		}
	}
}

func TestBlur_UniformUnchanged(t *testing.T) {
	src := solidGray(20, 20, 180)
	out, err := Blur(src, 5, 0)
	if err != nil {
		t.Fatalf("Blur failed: %v", err)
	}
	for i, v := range out.Pix {
		if v != 180 {
			t.Fatalf("pixel %d: got %d, want 180", i, v)
		}
	}
}

func TestBlur_SmoothsSpike(t *testing.T) {
	src := solidGray(11, 11, 0)
	src.SetGray(5, 5, color.Gray{Y: 255})

	out, err := Blur(src, 5, 0)
	if err != nil {
		t.Fatalf("Blur failed: %v", err)
	}
	center := out.GrayAt(5, 5).Y
	neighbor := out.GrayAt(6, 5).Y
	if center >= 255 || center == 0 {
		t.Errorf("center should be attenuated, got %d", center)
	}
	if neighbor == 0 || neighbor > center {
		t.Errorf("neighbor should receive less mass than center: center=%d neighbor=%d", center, neighbor)
	}
	if out.GrayAt(0, 0).Y != 0 {
		t.Errorf("far corner should stay 0, got %d", out.GrayAt(0, 0).Y)
	}
}

func TestBlur_InvalidKernel(t *testing.T) {
	src := solidGray(5, 5, 1)
	for _, k := range []int{0, -3, 4} {
		if _, err := Blur(src, k, 0); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("kernel %d: expected ErrInvalidInput, got %v", k, err)
		}
	}
	if _, err := Blur(image.NewGray(image.Rect(0, 0, 3, 0)), 5, 0); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty image: expected ErrInvalidInput, got %v", err)
	}
}

func TestGaussianKernel(t *testing.T) {
	k := gaussianKernel(5, 0)
	var sum float64
	for _, v := range k {
		sum += v
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("kernel sum: got %f, want 1", sum)
	}
	if k[0] != k[4] || k[1] != k[3] {
		t.Errorf("kernel not symmetric: %v", k)
	}
	if k[2] <= k[1] {
		t.Errorf("kernel should peak at the center: %v", k)
	}
	if math.Abs(DerivedSigma(5)-1.1) > 1e-9 {
		t.Errorf("DerivedSigma(5): got %f, want 1.1", DerivedSigma(5))
	}
}

func TestClamp(t *testing.T) {
	tests := []struct{ val, min, max, want int }{
		{-1, 0, 10, 0},
		{5, 0, 10, 5},
		{11, 0, 10, 10},
	}
	for _, tt := range tests {
		if got := clamp(tt.val, tt.min, tt.max); got != tt.want {
			t.Errorf("clamp(%d,%d,%d): got %d, want %d", tt.val, tt.min, tt.max, got, tt.want)
		}
	}
}
