package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ironsheep/coin-counter/internal/config"
	"github.com/ironsheep/coin-counter/internal/dataset"
	"github.com/ironsheep/coin-counter/internal/detection"
	"github.com/ironsheep/coin-counter/internal/imaging"
	"github.com/ironsheep/coin-counter/internal/metrics"
)

var coinCenters = []image.Point{{60, 60}, {160, 60}, {260, 60}, {100, 170}, {220, 170}}

const coinRadius = 22

// coinPhoto renders dark coins on a light table.
func coinPhoto(centers []image.Point, radius int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	table := color.RGBA{R: 220, G: 215, B: 205, A: 255}
	coin := color.RGBA{R: 70, G: 60, B: 40, A: 255}
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			img.SetRGBA(x, y, table)
		}
	}
	for _, c := range centers {
		for y := c.Y - radius; y <= c.Y+radius; y++ {
			for x := c.X - radius; x <= c.X+radius; x++ {
				dx, dy := x-c.X, y-c.Y
				if dx*dx+dy*dy <= radius*radius {
					img.SetRGBA(x, y, coin)
				}
			}
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode %s: %v", path, err)
	}
}

func TestDetector_FiveCoins(t *testing.T) {
	d, err := NewDetector(config.Default())
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}

	result, err := d.Detect(coinPhoto(coinCenters, coinRadius))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if result.PredictedCount != 5 {
		t.Fatalf("expected 5 coins, got %d: %+v", result.PredictedCount, result.Circles)
	}
	if len(result.Regions) != 5 {
		t.Errorf("expected 5 regions, got %d", len(result.Regions))
	}
	if result.Width != 320 || result.Height != 240 {
		t.Errorf("dimensions: got %dx%d", result.Width, result.Height)
	}

	for _, c := range result.Circles {
		nearest := math.MaxFloat64
		for _, want := range coinCenters {
			d := c.Center.Distance(detection.Point{X: want.X, Y: want.Y})
			nearest = math.Min(nearest, d)
		}
		if nearest > 4 {
			t.Errorf("circle at %+v is %.1fpx from any coin", c.Center, nearest)
		}
		if c.Radius < coinRadius-2 || c.Radius > coinRadius+2 {
			t.Errorf("circle at %+v: radius %d, want %d±2", c.Center, c.Radius, coinRadius)
		}
	}

	for _, r := range result.Regions {
		nearest := math.MaxFloat64
		for _, want := range coinCenters {
			nearest = math.Min(nearest, math.Hypot(r.Centroid.X-float64(want.X), r.Centroid.Y-float64(want.Y)))
		}
		if nearest > 1 {
			t.Errorf("region %d centroid %+v is off-center by %.2f", r.Label, r.Centroid, nearest)
		}
	}

	if got := len(result.ListedRegions()); got != 5 {
		t.Errorf("ListedRegions: got %d, want 5", got)
	}
}

func TestDetector_EmptyTable(t *testing.T) {
	d, err := NewDetector(config.Default())
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}

	result, err := d.Detect(coinPhoto(nil, 0))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if result.PredictedCount != 0 || len(result.Regions) != 0 || result.ForegroundPixels != 0 {
		t.Errorf("expected nothing on an empty table, got %d circles, %d regions, %d pixels",
			result.PredictedCount, len(result.Regions), result.ForegroundPixels)
	}
	if len(result.ListedRegions()) != 0 {
		t.Error("ListedRegions should be empty")
	}
}

func TestDetector_Idempotent(t *testing.T) {
	d, err := NewDetector(config.Default())
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}
	img := coinPhoto(coinCenters[:3], coinRadius)

	first, err := d.Detect(img)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	second, err := d.Detect(img)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("repeated detection on the same image differs")
	}
}

func TestDetector_InvalidInput(t *testing.T) {
	d, err := NewDetector(config.Default())
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}
	if _, err := d.Detect(image.NewRGBA(image.Rect(0, 0, 0, 0))); !errors.Is(err, imaging.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}

	cfg := config.Default()
	cfg.Blur.KernelSize = 4
	if _, err := NewDetector(cfg); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

// batchFolder writes a broken file, a zero-count image and two labeled photos
// of five coins.
func batchFolder(t *testing.T) []dataset.ImageRecord {
	t.Helper()
	dir := t.TempDir()
	photo := coinPhoto(coinCenters, coinRadius)
	writePNG(t, filepath.Join(dir, "coins_4.png"), photo)
	writePNG(t, filepath.Join(dir, "coins_5.png"), photo)
	writePNG(t, filepath.Join(dir, "empty_0.png"), coinPhoto(nil, 0))
	if err := os.WriteFile(filepath.Join(dir, "broken_3.png"), []byte("not a png"), 0644); err != nil {
		t.Fatalf("failed to write broken file: %v", err)
	}

	records, err := dataset.Discover(dir)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	return records
}

func TestRunner_Batch(t *testing.T) {
	records := batchFolder(t)

	var report bytes.Buffer
	exporter := metrics.NewExporter()
	cfg := config.Default()
	cfg.Output.ShowCentroids = true
	cfg.Output.MetricsFile = filepath.Join(t.TempDir(), "coins.prom")

	runner, err := NewRunner(cfg, WithReport(&report), WithExporter(exporter))
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	summary, err := runner.Run(context.Background(), records)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.RunID != runner.RunID() || summary.RunID == "" {
		t.Errorf("run id: got %q, want %q", summary.RunID, runner.RunID())
	}
	if summary.Processed != 2 || summary.Failed != 2 {
		t.Errorf("processed/failed: got %d/%d, want 2/2", summary.Processed, summary.Failed)
	}
	if math.Abs(summary.MeanSquaredError-0.5) > 1e-9 {
		t.Errorf("MSE: got %f, want 0.5", summary.MeanSquaredError)
	}
	if math.Abs(summary.AverageRelativeError-12.5) > 1e-9 {
		t.Errorf("average relative error: got %f, want 12.5", summary.AverageRelativeError)
	}

	wantStatus := map[string]string{
		"broken_3.png": StatusFailed,
		"coins_4.png":  StatusOK,
		"coins_5.png":  StatusOK,
		"empty_0.png":  StatusFailed,
	}
	for _, o := range summary.Images {
		if o.Status != wantStatus[o.Filename] {
			t.Errorf("%s: status %q, want %q (%s)", o.Filename, o.Status, wantStatus[o.Filename], o.Error)
		}
	}

	out := report.String()
	for _, want := range []string{
		"---------- COIN IMAGE 2 ----------",
		"Detected coins: 5",
		"True coins number: 4",
		"Relative Error (RE): 25.00%",
		"Mean Square Error (MSE): 0.50",
		"Relative Error Average (REV): 12.50%",
		"Coin 1: Area = ",
		"Images processed: 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
	// Once per image after the first score, plus the summary.
	if strings.Count(out, "Mean Square Error (MSE)") != 4 {
		t.Errorf("unexpected number of MSE lines:\n%s", out)
	}
	if !strings.Contains(out, "Relative Error (RE): undefined") {
		t.Errorf("zero-count image should report an undefined relative error:\n%s", out)
	}

	if _, err := os.Stat(cfg.Output.MetricsFile); err != nil {
		t.Errorf("metrics file not written: %v", err)
	}
}

func TestRunner_SavesImages(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "table_5.png"), coinPhoto(coinCenters, coinRadius))
	records, err := dataset.Discover(dir)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	cfg := config.Default()
	cfg.Output.ShowImages = true
	cfg.Output.SaveMasks = true
	cfg.Output.AnnotateDir = filepath.Join(t.TempDir(), "out")

	runner, err := NewRunner(cfg)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	summary, err := runner.Run(context.Background(), records)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	o := summary.Images[0]
	if o.AnnotatedPath != filepath.Join(cfg.Output.AnnotateDir, "table_5.png") {
		t.Errorf("annotated path: got %q", o.AnnotatedPath)
	}
	if o.MaskPath != filepath.Join(cfg.Output.AnnotateDir, "table_5.mask.png") {
		t.Errorf("mask path: got %q", o.MaskPath)
	}
	for _, p := range []string{o.AnnotatedPath, o.MaskPath} {
		if _, err := imaging.NewImageCache().Load(p); err != nil {
			t.Errorf("saved image %s not loadable: %v", p, err)
		}
	}
}

func TestRunner_Cancelled(t *testing.T) {
	records := batchFolder(t)

	runner, err := NewRunner(config.Default())
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := runner.Run(ctx, records)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if summary.Skipped != len(records) || len(summary.Images) != 0 {
		t.Errorf("skipped: got %d of %d", summary.Skipped, len(records))
	}
}

func TestRunner_LogsDetectionFailure(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "table_3.png"), coinPhoto(nil, coinRadius))
	writePNG(t, filepath.Join(dir, "coins_5.png"), coinPhoto(coinCenters, coinRadius))
	records, err := dataset.Discover(dir)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	core, logs := observer.New(zapcore.InfoLevel)
	runner, err := NewRunner(config.Default(), WithLogger(zap.New(core)))
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	if _, err := runner.Run(context.Background(), records); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	entries := logs.FilterMessage("no circles detected").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 detection failure entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["file"] != "table_3.png" {
		t.Errorf("file: got %v, want table_3.png", fields["file"])
	}
	if fields["error"] != detection.ErrDetectionFailure.Error() {
		t.Errorf("error: got %v, want %q", fields["error"], detection.ErrDetectionFailure)
	}
}
