package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ironsheep/coin-counter/internal/config"
	"github.com/ironsheep/coin-counter/internal/dataset"
	"github.com/ironsheep/coin-counter/internal/logger"
	"github.com/ironsheep/coin-counter/internal/metrics"
	"github.com/ironsheep/coin-counter/internal/pipeline"
	"github.com/ironsheep/coin-counter/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		switch args[0] {
		case "--version", "-v", "version":
			fmt.Fprintf(stdout, "coin-counter %s\n", Version)
			fmt.Fprintf(stdout, "  Build time: %s\n", BuildTime)
			fmt.Fprintf(stdout, "  Git commit: %s\n", GitCommit)
			return 0
		case "--help", "-h", "help":
			printUsage(stdout)
			return 0
		}
	}

	// A missing .env is fine; the environment alone is enough.
	_ = godotenv.Load()

	if err := logger.InitFromEnv(); err != nil {
		fmt.Fprintf(stderr, "failed to initialize logging: %v\n", err)
		return 1
	}
	defer logger.Sync()
	log := logger.Log()

	if len(args) > 0 && args[0] == "serve" {
		return serve(args[1:], stderr, log)
	}
	return batch(args, stdout, stderr, log)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "coin-counter - count coins in photographs and score the predictions")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  coin-counter -fp <folder> [options]   evaluate a folder of labeled images")
	fmt.Fprintln(w, "  coin-counter serve [--config file]    run the MCP server on stdin/stdout")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Images are labeled by the first number in their filename, e.g. coins_5.jpg.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	newFlagSet(&cliOptions{}, config.Default(), w).PrintDefaults()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment variables:")
	fmt.Fprintf(w, "  %s=debug    Enable debug logging\n", logger.EnvLevel)
	fmt.Fprintln(w, "  Variables may also be set in a .env file in the working directory.")
}

// boolValue is a flag that takes an explicit value: -si True, -sc false.
type boolValue struct{ p *bool }

func (b boolValue) String() string {
	if b.p == nil {
		return "false"
	}
	return strconv.FormatBool(*b.p)
}

func (b boolValue) Set(s string) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("expected True or False, got %q", s)
	}
	*b.p = v
	return nil
}

// cliOptions holds the values of every flag before they are merged into a
// config.Config.
type cliOptions struct {
	folder     string
	configPath string
	cfg        config.Config
}

func newFlagSet(o *cliOptions, defaults config.Config, output io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("coin-counter", flag.ContinueOnError)
	fs.SetOutput(output)
	o.cfg = defaults
	c := &o.cfg

	fs.StringVar(&o.folder, "folder-path", "", "Folder with the coin images (required)")
	fs.StringVar(&o.folder, "fp", "", "Shorthand for --folder-path")
	fs.StringVar(&o.configPath, "config", "", "YAML file with pipeline parameters")

	fs.Var(boolValue{&c.Output.ShowImages}, "show-images", "Write annotated images to --annotate-dir (True/False)")
	fs.Var(boolValue{&c.Output.ShowImages}, "si", "Shorthand for --show-images")
	fs.Var(boolValue{&c.Output.ShowCentroids}, "show-centroids", "Print area and centroid of each coin (True/False)")
	fs.Var(boolValue{&c.Output.ShowCentroids}, "sc", "Shorthand for --show-centroids")
	fs.StringVar(&c.Output.AnnotateDir, "annotate-dir", defaults.Output.AnnotateDir, "Folder for annotated images and masks")
	fs.Var(boolValue{&c.Output.SaveMasks}, "save-masks", "Also write each binary mask as <name>.mask.png (True/False)")
	fs.StringVar(&c.Output.OverlayColor, "overlay-color", defaults.Output.OverlayColor, "Outline color of detected coins")
	fs.IntVar(&c.Output.OverlayThickness, "overlay-thickness", defaults.Output.OverlayThickness, "Outline thickness in pixels")
	fs.StringVar(&c.Output.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this file after the run")

	fs.IntVar(&c.Blur.KernelSize, "kernel-size", defaults.Blur.KernelSize, "Gaussian blur kernel size (odd)")
	fs.Float64Var(&c.Blur.Sigma, "sigma", defaults.Blur.Sigma, "Gaussian sigma; 0 derives it from the kernel size")
	fs.IntVar(&c.Threshold.BlockSize, "block-size", defaults.Threshold.BlockSize, "Adaptive threshold neighborhood (odd, >= 3)")
	fs.Float64Var(&c.Threshold.C, "c", defaults.Threshold.C, "Constant subtracted from the neighborhood mean")
	fs.Float64Var(&c.Hough.DP, "dp", defaults.Hough.DP, "Inverse accumulator resolution")
	fs.Float64Var(&c.Hough.MinDist, "min-dist", defaults.Hough.MinDist, "Minimum distance between coin centers")
	fs.Float64Var(&c.Hough.Param1, "param1", defaults.Hough.Param1, "Edge gradient threshold")
	fs.Float64Var(&c.Hough.Param2, "param2", defaults.Hough.Param2, "Accumulator vote threshold")
	fs.IntVar(&c.Hough.MinRadius, "min-radius", defaults.Hough.MinRadius, "Minimum coin radius in pixels")
	fs.IntVar(&c.Hough.MaxRadius, "max-radius", defaults.Hough.MaxRadius, "Maximum coin radius in pixels")
	return fs
}

// parseConfig resolves defaults, then the --config file, then explicit flags.
func parseConfig(name string, args []string, stderr io.Writer) (*cliOptions, error) {
	// First pass only locates --config so that the file sits under the flags.
	probe := &cliOptions{}
	pfs := newFlagSet(probe, config.Default(), io.Discard)
	if err := pfs.Parse(args); err != nil {
		// Report parse errors once, from the real pass below.
		probe.configPath = ""
	}

	base := config.Default()
	if probe.configPath != "" {
		loaded, err := config.Load(probe.configPath)
		if err != nil {
			return nil, err
		}
		base = loaded
	}

	o := &cliOptions{}
	fs := newFlagSet(o, base, stderr)
	fs.Init(name, flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

func batch(args []string, stdout, stderr io.Writer, log *zap.Logger) int {
	opts, err := parseConfig("coin-counter", args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if opts.folder == "" {
		fmt.Fprintln(stderr, "Error: --folder-path (-fp) is required")
		return 2
	}

	records, err := dataset.Discover(opts.folder)
	if err != nil {
		log.Error("no images to process", zap.String("folder", opts.folder), zap.Error(err))
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	runner, err := pipeline.NewRunner(opts.cfg,
		pipeline.WithLogger(log),
		pipeline.WithReport(stdout),
		pipeline.WithExporter(metrics.NewExporter()),
	)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("coin counter starting",
		zap.String("version", Version),
		zap.String("folder", opts.folder),
		zap.String("run_id", runner.RunID()))

	if _, err := runner.Run(ctx, records); err != nil {
		fmt.Fprintf(stderr, "Interrupted: %v\n", err)
		return 130
	}
	return 0
}

func serve(args []string, stderr io.Writer, log *zap.Logger) int {
	opts, err := parseConfig("coin-counter serve", args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	server.Version = Version
	logger.S().Debugf("MCP server %s starting (built %s, commit %s)", Version, BuildTime, GitCommit)

	srv := server.New(opts.cfg, log)
	if err := srv.Run(); err != nil {
		log.Error("server error", zap.Error(err))
		return 1
	}
	return 0
}
