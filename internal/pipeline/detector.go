// Package pipeline wires the imaging and detection stages into a per-image
// Detector and a sequential batch Runner that scores predictions against the
// ground-truth counts and prints a running report.
package pipeline

import (
	"fmt"
	"image"

	"github.com/ironsheep/coin-counter/internal/config"
	"github.com/ironsheep/coin-counter/internal/detection"
	"github.com/ironsheep/coin-counter/internal/imaging"
)

// DetectionResult is the outcome of analyzing one image.
type DetectionResult struct {
	Width  int `json:"width"`
	Height int `json:"height"`

	// PredictedCount is the number of circles found; it is the coin estimate.
	PredictedCount int `json:"predicted_count"`

	// Circles are ordered by descending votes.
	Circles []detection.Circle `json:"circles"`

	// Regions are the connected foreground components of the mask, ordered
	// by label. They are diagnostic and do not affect PredictedCount.
	Regions []detection.Region `json:"regions"`

	// ForegroundPixels is the number of mask cells classified as coin.
	ForegroundPixels int `json:"foreground_pixels"`

	Mask *imaging.Mask `json:"-"`
}

// Outlines converts the detected circles for drawing.
func (r *DetectionResult) Outlines() []imaging.Outline {
	outlines := make([]imaging.Outline, len(r.Circles))
	for i, c := range r.Circles {
		outlines[i] = imaging.Outline{X: c.Center.X, Y: c.Center.Y, Radius: c.Radius}
	}
	return outlines
}

// ListedRegions returns the regions reported alongside the count: at most
// PredictedCount of them, in label order.
func (r *DetectionResult) ListedRegions() []detection.Region {
	n := r.PredictedCount
	if n > len(r.Regions) {
		n = len(r.Regions)
	}
	return r.Regions[:n]
}

// Detector runs the full per-image pipeline with a fixed configuration.
// It holds no mutable state and is safe for concurrent use.
type Detector struct {
	cfg config.Config
}

// NewDetector validates cfg and returns a detector for it.
func NewDetector(cfg config.Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg}, nil
}

// Config returns the detector's parameters.
func (d *Detector) Config() config.Config {
	return d.cfg
}

// Detect converts img to a binary mask and counts the coins in it.
//
// Errors wrap imaging.ErrInvalidInput when img is nil or empty. Zero detected
// circles is a valid result with PredictedCount 0.
func (d *Detector) Detect(img image.Image) (*DetectionResult, error) {
	gray, err := imaging.ToGray(img)
	if err != nil {
		return nil, err
	}

	blurred, err := imaging.Blur(gray, d.cfg.Blur.KernelSize, d.cfg.Blur.Sigma)
	if err != nil {
		return nil, fmt.Errorf("blur failed: %w", err)
	}

	mask, err := imaging.AdaptiveThreshold(blurred, d.cfg.Threshold.BlockSize, d.cfg.Threshold.C)
	if err != nil {
		return nil, fmt.Errorf("threshold failed: %w", err)
	}

	circles, err := detection.FindCircles(mask, d.cfg.Hough)
	if err != nil {
		return nil, fmt.Errorf("circle detection failed: %w", err)
	}

	regions, err := detection.LabelRegions(mask)
	if err != nil {
		return nil, fmt.Errorf("region labeling failed: %w", err)
	}

	return &DetectionResult{
		Width:            mask.Width,
		Height:           mask.Height,
		PredictedCount:   circles.Count,
		Circles:          circles.Circles,
		Regions:          regions.Regions,
		ForegroundPixels: mask.Width*mask.Height - regions.BackgroundArea,
		Mask:             mask,
	}, nil
}
