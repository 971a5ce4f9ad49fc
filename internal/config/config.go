// Package config defines the tunable parameters of the coin counting pipeline.
//
// A Config starts from Default, may be overlaid with a YAML file via Load, and
// is then adjusted by command-line flags. Validate must pass before the config
// is handed to the pipeline, which takes it by value.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/lucasb-eyer/go-colorful"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/coin-counter/internal/detection"
	"github.com/ironsheep/coin-counter/internal/imaging"
)

// ErrInvalidConfig is returned when a parameter is outside its legal range.
var ErrInvalidConfig = errors.New("invalid configuration")

// BlurConfig controls Gaussian smoothing.
type BlurConfig struct {
	KernelSize int `yaml:"kernel_size" json:"kernel_size"`
	// Sigma of 0 derives the deviation from KernelSize.
	Sigma float64 `yaml:"sigma" json:"sigma"`
}

// ThresholdConfig controls adaptive mean thresholding.
type ThresholdConfig struct {
	BlockSize int     `yaml:"block_size" json:"block_size"`
	C         float64 `yaml:"c" json:"c"`
}

// OutputConfig controls what the batch run emits besides the report.
type OutputConfig struct {
	ShowCentroids    bool   `yaml:"show_centroids" json:"show_centroids"`
	ShowImages       bool   `yaml:"show_images" json:"show_images"`
	AnnotateDir      string `yaml:"annotate_dir" json:"annotate_dir"`
	SaveMasks        bool   `yaml:"save_masks" json:"save_masks"`
	OverlayColor     string `yaml:"overlay_color" json:"overlay_color"`
	OverlayThickness int    `yaml:"overlay_thickness" json:"overlay_thickness"`
	MetricsFile      string `yaml:"metrics_file" json:"metrics_file"`
}

// Config is the full parameter set of a run.
type Config struct {
	Blur      BlurConfig            `yaml:"blur" json:"blur"`
	Threshold ThresholdConfig       `yaml:"threshold" json:"threshold"`
	Hough     detection.HoughParams `yaml:"hough" json:"hough"`
	Output    OutputConfig          `yaml:"output" json:"output"`
}

// DefaultAnnotateDir is where annotated images go when none is configured.
const DefaultAnnotateDir = "annotated"

// Default returns the stock parameters.
func Default() Config {
	return Config{
		Blur: BlurConfig{
			KernelSize: imaging.DefaultBlurKernel,
		},
		Threshold: ThresholdConfig{
			BlockSize: imaging.DefaultBlockSize,
			C:         imaging.DefaultC,
		},
		Hough: detection.DefaultHoughParams(),
		Output: OutputConfig{
			AnnotateDir:      DefaultAnnotateDir,
			OverlayColor:     imaging.DefaultOverlayColor,
			OverlayThickness: 2,
		},
	}
}

// Load reads a YAML file and overlays it on the defaults.
// Keys absent from the file keep their default value.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: failed to parse %s: %v", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// Validate checks every parameter range.
func (c Config) Validate() error {
	if c.Blur.KernelSize < 1 || c.Blur.KernelSize%2 == 0 {
		return fmt.Errorf("%w: blur kernel size must be odd and >= 1, got %d", ErrInvalidConfig, c.Blur.KernelSize)
	}
	if c.Blur.Sigma < 0 {
		return fmt.Errorf("%w: blur sigma must be >= 0, got %g", ErrInvalidConfig, c.Blur.Sigma)
	}
	if c.Threshold.BlockSize < 3 || c.Threshold.BlockSize%2 == 0 {
		return fmt.Errorf("%w: threshold block size must be odd and >= 3, got %d", ErrInvalidConfig, c.Threshold.BlockSize)
	}
	if err := c.Hough.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := colorful.Hex(c.Output.OverlayColor); err != nil {
		return fmt.Errorf("%w: overlay color %q: %v", ErrInvalidConfig, c.Output.OverlayColor, err)
	}
	if c.Output.OverlayThickness < 1 {
		return fmt.Errorf("%w: overlay thickness must be >= 1, got %d", ErrInvalidConfig, c.Output.OverlayThickness)
	}
	if (c.Output.ShowImages || c.Output.SaveMasks) && c.Output.AnnotateDir == "" {
		return fmt.Errorf("%w: annotate dir is required when saving images", ErrInvalidConfig)
	}
	return nil
}

// OverlayStyle resolves the output section into a drawing style.
func (c Config) OverlayStyle() (imaging.OverlayStyle, error) {
	col, err := imaging.ParseOverlayColor(c.Output.OverlayColor)
	if err != nil {
		return imaging.OverlayStyle{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return imaging.OverlayStyle{Color: col, Thickness: c.Output.OverlayThickness}, nil
}
