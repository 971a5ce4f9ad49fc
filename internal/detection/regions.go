package detection

import (
	"fmt"

	"github.com/ironsheep/coin-counter/internal/imaging"
)

// Region is a maximal 8-connected set of foreground mask cells.
type Region struct {
	// Label is the region id, 1-based in raster order of first appearance.
	// Label 0 is reserved for the background.
	Label int `json:"label"`

	// Area is the number of cells in the region.
	Area int `json:"area"`

	// Centroid is the mean (x, y) coordinate of the region's cells.
	Centroid Centroid `json:"centroid"`

	// Bounds is the bounding box enclosing the region.
	Bounds Bounds `json:"bounds"`
}

// RegionsResult contains the labeled regions of a mask.
type RegionsResult struct {
	// Regions is ordered by Label; the background is excluded.
	Regions []Region `json:"regions"`

	// Count is the number of foreground regions.
	Count int `json:"count"`

	// BackgroundArea is the number of background cells.
	BackgroundArea int `json:"background_area"`

	// Labels holds the final label of every cell, row-major, 0 for background.
	Labels []int `json:"-"`
}

// LabelRegions labels the 8-connected foreground components of a mask.
//
// # Algorithm
//
// Two-pass labeling with union-find:
//
//  1. Raster scan: each foreground cell takes the smallest provisional label
//     among its already-visited neighbors (W, NW, N, NE); the other neighbor
//     labels are merged into it. Cells with no labeled neighbor open a new label.
//  2. Resolve every provisional label to its root, renumber roots 1..n in order
//     of first appearance, and accumulate area, coordinate sums and extents in
//     the same pass.
//
// The sum of all region areas plus BackgroundArea equals Width × Height.
func LabelRegions(mask *imaging.Mask) (*RegionsResult, error) {
	if mask == nil || mask.Width <= 0 || mask.Height <= 0 {
		return nil, fmt.Errorf("%w: empty mask", imaging.ErrInvalidInput)
	}
	width := mask.Width
	height := mask.Height
	labels := make([]int, width*height)

	uf := newUnionFind()

	// First pass
	neighbors := [4][2]int{{-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			if !mask.Pix[i] {
				continue
			}

			current := 0
			for _, d := range neighbors {
				nx, ny := x+d[0], y+d[1]
				if nx < 0 || nx >= width || ny < 0 {
					continue
				}
				l := labels[ny*width+nx]
				if l == 0 {
					continue
				}
				if current == 0 {
					current = l
					continue
				}
				uf.union(current, l)
				if l < current {
					current = l
				}
			}
			if current == 0 {
				current = uf.add()
			}
			labels[i] = current
		}
	}

	// Second pass
	final := make(map[int]int)
	type accum struct {
		area       int
		sumX, sumY int
		minX, minY int
		maxX, maxY int
	}
	stats := make([]accum, 0)
	background := 0

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			if labels[i] == 0 {
				background++
				continue
			}
			root := uf.find(labels[i])
			id, ok := final[root]
			if !ok {
				stats = append(stats, accum{minX: x, minY: y, maxX: x, maxY: y})
				id = len(stats)
				final[root] = id
			}
			labels[i] = id

			s := &stats[id-1]
			s.area++
			s.sumX += x
			s.sumY += y
			if x < s.minX {
				s.minX = x
			}
			if x > s.maxX {
				s.maxX = x
			}
			if y < s.minY {
				s.minY = y
			}
			if y > s.maxY {
				s.maxY = y
			}
		}
	}

	regions := make([]Region, len(stats))
	for i, s := range stats {
		regions[i] = Region{
			Label: i + 1,
			Area:  s.area,
			Centroid: Centroid{
				X: float64(s.sumX) / float64(s.area),
				Y: float64(s.sumY) / float64(s.area),
			},
			Bounds: Bounds{X1: s.minX, Y1: s.minY, X2: s.maxX + 1, Y2: s.maxY + 1},
		}
	}

	return &RegionsResult{
		Regions:        regions,
		Count:          len(regions),
		BackgroundArea: background,
		Labels:         labels,
	}, nil
}

// unionFind tracks equivalences between provisional labels. Index 0 is unused.
type unionFind struct {
	parent []int
}

func newUnionFind() *unionFind {
	return &unionFind{parent: []int{0}}
}

func (u *unionFind) add() int {
	id := len(u.parent)
	u.parent = append(u.parent, id)
	return id
}

func (u *unionFind) find(x int) int {
	root := x
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[x] != root {
		next := u.parent[x]
		u.parent[x] = root
		x = next
	}
	return root
}

// union merges the sets of a and b, keeping the smaller root.
func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	switch {
	case ra == rb:
	case ra < rb:
		u.parent[rb] = ra
	default:
		u.parent[ra] = rb
	}
}
