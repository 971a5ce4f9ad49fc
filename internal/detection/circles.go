package detection

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/ironsheep/coin-counter/internal/imaging"
)

// ErrDetectionFailure reports that no circle cleared the vote threshold.
//
// It is informational: FindCircles never returns it. A result with zero circles
// means a predicted count of zero; the batch runner logs CirclesResult.Err for
// such images.
var ErrDetectionFailure = errors.New("no circles detected")

// HoughParams controls the gradient Hough circle transform.
type HoughParams struct {
	// DP is the inverse accumulator resolution: 1 votes at full resolution,
	// 2 at half width and height. Must be >= 1.
	DP float64 `json:"dp" yaml:"dp"`

	// MinDist is the minimum distance in pixels between accepted centers.
	MinDist float64 `json:"min_dist" yaml:"min_dist"`

	// Param1 is the minimum Sobel magnitude for a mask cell to be an edge.
	Param1 float64 `json:"param1" yaml:"param1"`

	// Param2 is the vote threshold a candidate must reach, both in the
	// accumulator and in the full-resolution edge support of its radius.
	Param2 float64 `json:"param2" yaml:"param2"`

	// MinRadius and MaxRadius bound the searched radii (inclusive).
	MinRadius int `json:"min_radius" yaml:"min_radius"`
	MaxRadius int `json:"max_radius" yaml:"max_radius"`
}

// DefaultHoughParams returns the parameters used for coin photographs.
func DefaultHoughParams() HoughParams {
	return HoughParams{
		DP:        1,
		MinDist:   50,
		Param1:    50,
		Param2:    30,
		MinRadius: 10,
		MaxRadius: 50,
	}
}

// Validate checks that the parameters describe a searchable space.
func (p HoughParams) Validate() error {
	switch {
	case p.DP < 1:
		return fmt.Errorf("%w: dp must be >= 1, got %g", imaging.ErrInvalidInput, p.DP)
	case p.MinDist <= 0:
		return fmt.Errorf("%w: min distance must be positive, got %g", imaging.ErrInvalidInput, p.MinDist)
	case p.Param1 <= 0 || p.Param2 <= 0:
		return fmt.Errorf("%w: param1 and param2 must be positive", imaging.ErrInvalidInput)
	case p.MinRadius < 1 || p.MaxRadius < p.MinRadius:
		return fmt.Errorf("%w: radius range [%d, %d] is empty", imaging.ErrInvalidInput, p.MinRadius, p.MaxRadius)
	}
	return nil
}

// Circle represents a detected coin outline.
type Circle struct {
	// Center is the detected center point of the circle.
	Center Point `json:"center"`

	// Radius is the detected radius in pixels, within [MinRadius, MaxRadius].
	Radius int `json:"radius"`

	// Diameter is 2 × Radius for convenience.
	Diameter int `json:"diameter"`

	// Votes is the box-filtered accumulator value at the peak.
	Votes int `json:"votes"`

	// Support is the number of radially aligned edge cells within 1px of Radius.
	Support int `json:"support"`

	// Confidence is Support relative to the circumference, capped at 1.0.
	Confidence float64 `json:"confidence"`
}

// CirclesResult contains all circles detected in a mask.
type CirclesResult struct {
	// Circles is sorted by votes (strongest first).
	Circles []Circle `json:"circles"`

	// Count is the number of circles detected.
	Count int `json:"count"`
}

// Err returns ErrDetectionFailure when no circle was found, nil otherwise.
func (r *CirclesResult) Err() error {
	if r.Count == 0 {
		return ErrDetectionFailure
	}
	return nil
}

// FindCircles finds circular foreground outlines using a gradient Hough transform.
//
// Returns:
//   - *CirclesResult: accepted circles ordered by descending votes. Ties are
//     broken by center (top to bottom, left to right) and then radius, so the
//     order is deterministic. An empty result is not an error.
//   - error: wraps imaging.ErrInvalidInput for an empty mask or invalid params.
//
// # Algorithm
//
//  1. Edge Detection: foreground cells with Sobel magnitude >= Param1. The
//     gradient of a mask is normal to the silhouette boundary, so it points
//     through the coin center.
//  2. Voting: for each radius r in [MinRadius, MaxRadius] every edge cell votes
//     for the cells at distance r along +gradient and -gradient, in an
//     accumulator downsampled by DP.
//  3. Scoring: each radius plane is box-filtered over 3×3 cells and summed with
//     its neighboring radius planes, absorbing the discretization error of
//     gradient directions.
//  4. Peaks: cells whose score reaches Param2 and is a local maximum among its
//     26 neighbors.
//  5. Suppression: peaks are accepted strongest first; a peak whose center is
//     closer than MinDist to an accepted circle is discarded.
//  6. Verification: around each surviving center the edge cells whose gradient
//     points along the radius are binned by distance at full resolution. The
//     outermost radius whose ±1px band holds Param2 cells becomes the circle
//     radius; a center without such a radius is dropped. This rejects peaks
//     that only clear the threshold in a coarse (DP > 1) accumulator, and it
//     reports the outer silhouette of a ring-shaped coin rather than its hole.
func FindCircles(mask *imaging.Mask, p HoughParams) (*CirclesResult, error) {
	if mask == nil || mask.Width <= 0 || mask.Height <= 0 {
		return nil, fmt.Errorf("%w: empty mask", imaging.ErrInvalidInput)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	circles := make([]Circle, 0)
	edges := collectEdges(mask, p.Param1)
	if len(edges) == 0 {
		return &CirclesResult{Circles: circles}, nil
	}

	acc := newAccumulator(edges, mask.Width, mask.Height, p)
	candidates := acc.peaks(p.Param2)

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.votes != b.votes {
			return a.votes > b.votes
		}
		if a.cy != b.cy {
			return a.cy < b.cy
		}
		if a.cx != b.cx {
			return a.cx < b.cx
		}
		return a.ri < b.ri
	})

	for _, c := range candidates {
		center := Point{
			X: int(math.Round(float64(c.cx) * p.DP)),
			Y: int(math.Round(float64(c.cy) * p.DP)),
		}
		if center.X >= mask.Width || center.Y >= mask.Height {
			continue
		}

		duplicate := false
		for _, accepted := range circles {
			if center.Distance(accepted.Center) < p.MinDist {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}

		radius, support, ok := supportedRadius(edges, float64(c.cx)*p.DP, float64(c.cy)*p.DP, p)
		if !ok {
			continue
		}
		confidence := float64(support) / (2 * math.Pi * float64(radius))
		circles = append(circles, Circle{
			Center:     center,
			Radius:     radius,
			Diameter:   radius * 2,
			Votes:      int(c.votes),
			Support:    support,
			Confidence: math.Min(math.Round(confidence*1000)/1000, 1.0),
		})
	}

	return &CirclesResult{
		Circles: circles,
		Count:   len(circles),
	}, nil
}

// minRadialAlignment is the smallest |cos| between an edge gradient and the
// direction to a center for the edge to support that center (about 25°).
const minRadialAlignment = 0.9

// supportedRadius returns the outermost radius in [MinRadius, MaxRadius] that
// the edges support around (cx, cy), with its support count.
//
// hist[d] counts aligned edges at rounded distance d; the support of r is
// hist[r-1] + hist[r] + hist[r+1]. Once the outermost r0 reaching Param2 is
// found, the radius is the fullest bin in [r0-2, r0], preferring the larger.
func supportedRadius(edges []edgePoint, cx, cy float64, p HoughParams) (int, int, bool) {
	lo, hi := p.MinRadius-1, p.MaxRadius+1
	hist := make([]int, hi-lo+1)
	for _, e := range edges {
		dx, dy := e.x-cx, e.y-cy
		dist := math.Hypot(dx, dy)
		if dist == 0 {
			continue
		}
		d := int(math.Round(dist))
		if d < lo || d > hi {
			continue
		}
		if math.Abs(e.ux*dx+e.uy*dy)/dist < minRadialAlignment {
			continue
		}
		hist[d-lo]++
	}

	bin := func(r int) int { return hist[r-lo] }
	support := func(r int) int { return bin(r-1) + bin(r) + bin(r+1) }

	for r0 := p.MaxRadius; r0 >= p.MinRadius; r0-- {
		if float64(support(r0)) < p.Param2 {
			continue
		}
		best := r0
		for r := r0 - 1; r >= r0-2 && r >= p.MinRadius; r-- {
			if bin(r) > bin(best) {
				best = r
			}
		}
		return best, support(best), true
	}
	return 0, 0, false
}

// edgePoint is an edge cell with its unit gradient direction.
type edgePoint struct {
	x, y   float64
	ux, uy float64
}

// collectEdges returns foreground cells whose gradient magnitude reaches minMagnitude.
func collectEdges(mask *imaging.Mask, minMagnitude float64) []edgePoint {
	grad := imaging.MaskGradient(mask)
	edges := make([]edgePoint, 0)
	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			i := y*mask.Width + x
			mag := grad.Magnitude[i]
			if !mask.Pix[i] || mag == 0 || mag < minMagnitude {
				continue
			}
			edges = append(edges, edgePoint{
				x:  float64(x),
				y:  float64(y),
				ux: grad.DX[i] / mag,
				uy: grad.DY[i] / mag,
			})
		}
	}
	return edges
}

// candidate is an accumulator peak.
type candidate struct {
	cx, cy, ri int
	votes      int32
}

// accumulator is the (x, y, radius) vote space, materialized one radius slice
// at a time. planes caches box-filtered vote planes and scores caches the
// 3-slice sums; both are evicted once the peak scan has moved past them.
type accumulator struct {
	edges     []edgePoint
	width     int
	height    int
	dp        float64
	minRadius int
	radii     int

	planes map[int][]int32
	scores map[int][]int32
}

func newAccumulator(edges []edgePoint, imgWidth, imgHeight int, p HoughParams) *accumulator {
	return &accumulator{
		edges:     edges,
		width:     int(math.Ceil(float64(imgWidth) / p.DP)),
		height:    int(math.Ceil(float64(imgHeight) / p.DP)),
		dp:        p.DP,
		minRadius: p.MinRadius,
		radii:     p.MaxRadius - p.MinRadius + 1,
		planes:    make(map[int][]int32),
		scores:    make(map[int][]int32),
	}
}

// plane returns the box-filtered votes for radius index ri, or nil outside the range.
func (a *accumulator) plane(ri int) []int32 {
	if ri < 0 || ri >= a.radii {
		return nil
	}
	if p, ok := a.planes[ri]; ok {
		return p
	}

	r := float64(a.minRadius + ri)
	votes := make([]int32, a.width*a.height)
	for _, e := range a.edges {
		for _, sign := range [2]float64{1, -1} {
			cx := int(math.Round((e.x + sign*r*e.ux) / a.dp))
			cy := int(math.Round((e.y + sign*r*e.uy) / a.dp))
			if cx < 0 || cy < 0 || cx >= a.width || cy >= a.height {
				continue
			}
			votes[cy*a.width+cx]++
		}
	}

	p := boxFilter3x3(votes, a.width, a.height)
	a.planes[ri] = p
	return p
}

// score returns plane(ri-1) + plane(ri) + plane(ri+1), or nil outside the range.
func (a *accumulator) score(ri int) []int32 {
	if ri < 0 || ri >= a.radii {
		return nil
	}
	if s, ok := a.scores[ri]; ok {
		return s
	}

	s := make([]int32, a.width*a.height)
	for _, p := range [3][]int32{a.plane(ri - 1), a.plane(ri), a.plane(ri + 1)} {
		for i, v := range p {
			s[i] += v
		}
	}
	a.scores[ri] = s
	return s
}

// peaks scans every radius slice and returns the local maxima reaching threshold.
//
// A plateau of equal scores yields exactly one peak: a cell must be strictly
// greater than neighbors that precede it in (radius, y, x) order and at least
// equal to the ones that follow it.
func (a *accumulator) peaks(threshold float64) []candidate {
	found := make([]candidate, 0)
	for ri := 0; ri < a.radii; ri++ {
		slices := [3][]int32{a.score(ri - 1), a.score(ri), a.score(ri + 1)}
		cur := slices[1]

		for cy := 0; cy < a.height; cy++ {
			for cx := 0; cx < a.width; cx++ {
				v := cur[cy*a.width+cx]
				if float64(v) < threshold || !a.isPeak(slices, cx, cy, v) {
					continue
				}
				found = append(found, candidate{cx: cx, cy: cy, ri: ri, votes: v})
			}
		}

		delete(a.planes, ri)
		delete(a.scores, ri-1)
	}
	return found
}

func (a *accumulator) isPeak(slices [3][]int32, cx, cy int, v int32) bool {
	for dr := -1; dr <= 1; dr++ {
		s := slices[dr+1]
		if s == nil {
			continue
		}
		for dy := -1; dy <= 1; dy++ {
			ny := cy + dy
			if ny < 0 || ny >= a.height {
				continue
			}
			for dx := -1; dx <= 1; dx++ {
				nx := cx + dx
				if nx < 0 || nx >= a.width || (dr == 0 && dy == 0 && dx == 0) {
					continue
				}
				n := s[ny*a.width+nx]
				before := dr < 0 || (dr == 0 && (dy < 0 || (dy == 0 && dx < 0)))
				if n > v || (before && n == v) {
					return false
				}
			}
		}
	}
	return true
}

// boxFilter3x3 sums every cell with its 8 neighbors, clipped at the borders.
func boxFilter3x3(src []int32, width, height int) []int32 {
	rows := make([]int32, len(src))
	for y := 0; y < height; y++ {
		row := y * width
		for x := 0; x < width; x++ {
			sum := src[row+x]
			if x > 0 {
				sum += src[row+x-1]
			}
			if x < width-1 {
				sum += src[row+x+1]
			}
			rows[row+x] = sum
		}
	}

	dst := make([]int32, len(src))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			sum := rows[i]
			if y > 0 {
				sum += rows[i-width]
			}
			if y < height-1 {
				sum += rows[i+width]
			}
			dst[i] = sum
		}
	}
	return dst
}
