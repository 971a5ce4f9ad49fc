package imaging

import "math"

// Gradient holds per-cell Sobel derivatives of a Mask, row-major.
type Gradient struct {
	Width     int
	Height    int
	DX        []float64
	DY        []float64
	Magnitude []float64
}

var (
	sobelX = [3][3]float64{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	}
	sobelY = [3][3]float64{
		{-1, -2, -1},
		{0, 0, 0},
		{1, 2, 1},
	}
)

// MaskGradient computes Sobel gradients over a mask treated as a 0/255 image.
//
// magnitude = sqrt(Gx² + Gy²); a straight foreground/background step yields a
// magnitude of 1020 on both sides of the boundary and 0 inside uniform areas.
// Border cells use clamped (replicated) neighbors, so the image frame itself is
// never an edge.
func MaskGradient(m *Mask) *Gradient {
	width := m.Width
	height := m.Height
	n := width * height
	g := &Gradient{
		Width:     width,
		Height:    height,
		DX:        make([]float64, n),
		DY:        make([]float64, n),
		Magnitude: make([]float64, n),
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var gx, gy float64
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					py := clamp(y+ky, 0, height-1)
					px := clamp(x+kx, 0, width-1)
					if !m.Pix[py*width+px] {
						continue
					}
					gx += 255 * sobelX[ky+1][kx+1]
					gy += 255 * sobelY[ky+1][kx+1]
				}
			}
			i := y*width + x
			g.DX[i] = gx
			g.DY[i] = gy
			g.Magnitude[i] = math.Sqrt(gx*gx + gy*gy)
		}
	}
	return g
}
