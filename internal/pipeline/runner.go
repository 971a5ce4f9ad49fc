package pipeline

import (
	"context"
	"image"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ironsheep/coin-counter/internal/config"
	"github.com/ironsheep/coin-counter/internal/dataset"
	"github.com/ironsheep/coin-counter/internal/detection"
	"github.com/ironsheep/coin-counter/internal/imaging"
	"github.com/ironsheep/coin-counter/internal/metrics"
)

// Image outcome statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// ImageOutcome is the per-image entry of a batch.
type ImageOutcome struct {
	// Index is the 1-based position of the image in the batch.
	Index       int    `json:"index"`
	Filename    string `json:"filename"`
	GroundTruth int    `json:"ground_truth"`
	Predicted   int    `json:"predicted"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`

	Sample metrics.Sample `json:"sample"`

	// Running holds the totals over all images scored up to and including
	// this one.
	Running metrics.RunningMetrics `json:"running"`

	AnnotatedPath string `json:"annotated_path,omitempty"`
	MaskPath      string `json:"mask_path,omitempty"`

	Result *DetectionResult `json:"-"`
}

// Summary is the outcome of a batch run.
type Summary struct {
	RunID  string         `json:"run_id"`
	Images []ImageOutcome `json:"images"`

	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	// Skipped counts images never reached because the run was cancelled.
	Skipped int `json:"skipped"`

	MeanSquaredError     float64 `json:"mean_squared_error"`
	AverageRelativeError float64 `json:"average_relative_error"`
}

// Runner processes a batch of labeled images one after another.
type Runner struct {
	detector *Detector
	cache    *imaging.ImageCache
	style    imaging.OverlayStyle
	log      *zap.Logger
	out      io.Writer
	exporter *metrics.Exporter
	runID    string
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// WithReport sets where the textual report is written; nil disables it.
func WithReport(w io.Writer) Option {
	return func(r *Runner) { r.out = w }
}

// WithExporter mirrors every scored image into a Prometheus exporter.
func WithExporter(e *metrics.Exporter) Option {
	return func(r *Runner) { r.exporter = e }
}

// WithCache shares an image cache with other components.
func WithCache(c *imaging.ImageCache) Option {
	return func(r *Runner) { r.cache = c }
}

// NewRunner validates cfg and prepares a batch runner with a fresh run id.
func NewRunner(cfg config.Config, opts ...Option) (*Runner, error) {
	detector, err := NewDetector(cfg)
	if err != nil {
		return nil, err
	}
	style, err := cfg.OverlayStyle()
	if err != nil {
		return nil, err
	}

	r := &Runner{
		detector: detector,
		cache:    imaging.NewImageCache(),
		style:    style,
		log:      zap.NewNop(),
		out:      io.Discard,
		runID:    uuid.NewString(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.out == nil {
		r.out = io.Discard
	}
	r.log = r.log.With(zap.String("run_id", r.runID))
	return r, nil
}

// RunID identifies this runner's batch in logs.
func (r *Runner) RunID() string {
	return r.runID
}

// Run processes records in order and returns the batch summary.
//
// A failing image is logged, reported, and excluded from the running
// statistics; it never aborts the batch. The only error returned is the
// context's, in which case the summary covers the images handled so far and
// the remainder are counted as skipped.
func (r *Runner) Run(ctx context.Context, records []dataset.ImageRecord) (*Summary, error) {
	cfg := r.detector.Config()
	summary := &Summary{
		RunID:  r.runID,
		Images: make([]ImageOutcome, 0, len(records)),
	}
	var agg metrics.Aggregator

	r.log.Info("batch started", zap.Int("images", len(records)))

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			summary.Skipped = len(records) - i
			r.finish(summary, &agg)
			r.log.Warn("batch cancelled", zap.Int("skipped", summary.Skipped), zap.Error(err))
			return summary, err
		}

		outcome := r.processImage(i+1, rec, cfg, &agg)
		summary.Images = append(summary.Images, outcome)
		if outcome.Status == StatusOK {
			summary.Processed++
		} else {
			summary.Failed++
		}
		writeImageReport(r.out, outcome, cfg.Output.ShowCentroids)
	}

	r.finish(summary, &agg)
	WriteSummary(r.out, summary)
	r.log.Info("batch finished",
		zap.Int("processed", summary.Processed),
		zap.Int("failed", summary.Failed),
		zap.Float64("mse", summary.MeanSquaredError),
		zap.Float64("average_relative_error", summary.AverageRelativeError))

	if cfg.Output.MetricsFile != "" && r.exporter != nil {
		if err := r.exporter.WriteTextfile(cfg.Output.MetricsFile); err != nil {
			r.log.Error("metrics export failed", zap.String("path", cfg.Output.MetricsFile), zap.Error(err))
		}
	}
	return summary, nil
}

func (r *Runner) finish(s *Summary, agg *metrics.Aggregator) {
	if mse, err := agg.MeanSquaredError(); err == nil {
		s.MeanSquaredError = mse
	}
	if are, err := agg.AverageRelativeError(); err == nil {
		s.AverageRelativeError = are
	}
}

func (r *Runner) processImage(index int, rec dataset.ImageRecord, cfg config.Config, agg *metrics.Aggregator) ImageOutcome {
	log := r.log.With(zap.String("file", rec.Filename))
	outcome := ImageOutcome{
		Index:       index,
		Filename:    rec.Filename,
		GroundTruth: rec.GroundTruthCount,
		Status:      StatusFailed,
	}
	fail := func(msg string, err error) ImageOutcome {
		log.Warn(msg, zap.Error(err))
		outcome.Error = err.Error()
		outcome.Running = agg.Snapshot()
		if r.exporter != nil {
			r.exporter.ObserveFailure()
		}
		return outcome
	}

	img, err := r.cache.Load(rec.FilePath)
	if err != nil {
		return fail("image load failed", err)
	}
	defer r.cache.Evict(rec.FilePath)

	result, err := r.detector.Detect(img)
	if err != nil {
		return fail("detection failed", err)
	}
	outcome.Result = result
	outcome.Predicted = result.PredictedCount
	log.Debug("image analyzed",
		zap.Int("predicted", result.PredictedCount),
		zap.Int("regions", len(result.Regions)),
		zap.Int("foreground_pixels", result.ForegroundPixels))
	if result.PredictedCount == 0 {
		log.Info("no circles detected", zap.Error(detection.ErrDetectionFailure))
	}

	if cfg.Output.ShowImages || cfg.Output.SaveMasks {
		outcome.AnnotatedPath, outcome.MaskPath = r.saveImages(log, rec, img, result, cfg)
	}

	sample, err := agg.Accumulate(rec.GroundTruthCount, result.PredictedCount)
	if err != nil {
		return fail("image not scored", err)
	}
	outcome.Status = StatusOK
	outcome.Sample = sample
	outcome.Running = agg.Snapshot()
	if r.exporter != nil {
		r.exporter.ObserveSample(sample, outcome.Running)
	}
	return outcome
}

// saveImages writes the annotated image and the mask as configured. Write
// failures are logged and do not fail the image.
func (r *Runner) saveImages(log *zap.Logger, rec dataset.ImageRecord, img image.Image, result *DetectionResult, cfg config.Config) (annotated, mask string) {
	base := strings.TrimSuffix(rec.Filename, filepath.Ext(rec.Filename))

	if cfg.Output.ShowImages {
		path := filepath.Join(cfg.Output.AnnotateDir, base+".png")
		if err := imaging.SavePNG(path, imaging.Annotate(img, result.Outlines(), r.style)); err != nil {
			log.Error("failed to save annotated image", zap.String("path", path), zap.Error(err))
		} else {
			annotated = path
		}
	}

	if cfg.Output.SaveMasks {
		path := filepath.Join(cfg.Output.AnnotateDir, base+".mask.png")
		if err := imaging.SavePNG(path, result.Mask.Image()); err != nil {
			log.Error("failed to save mask", zap.String("path", path), zap.Error(err))
		} else {
			mask = path
		}
	}
	return annotated, mask
}
