package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeCoins(t *testing.T, path string, centers ...image.Point) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 200, 140))
	for i := range img.Pix {
		img.Pix[i] = 225
	}
	for _, c := range centers {
		for y := c.Y - 20; y <= c.Y+20; y++ {
			for x := c.X - 20; x <= c.X+20; x++ {
				if (x-c.X)*(x-c.X)+(y-c.Y)*(y-c.Y) <= 400 {
					img.SetGray(x, y, color.Gray{Y: 50})
				}
			}
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode %s: %v", path, err)
	}
}

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"--version"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code %d", code)
	}
	if !strings.HasPrefix(stdout.String(), "coin-counter ") {
		t.Errorf("unexpected version output: %q", stdout.String())
	}
}

func TestRun_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-h"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code %d", code)
	}
	for _, want := range []string{"-folder-path", "-show-centroids", "-min-dist", "COIN_COUNTER_LOG_LEVEL"} {
		if !strings.Contains(stdout.String(), want) {
			t.Errorf("help missing %q", want)
		}
	}
}

func TestRun_Errors(t *testing.T) {
	t.Setenv("COIN_COUNTER_LOG_LEVEL", "")
	empty := t.TempDir()

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"missing folder flag", []string{}, 2},
		{"unknown flag", []string{"-fp", empty, "--bogus"}, 2},
		{"invalid parameter", []string{"-fp", empty, "--block-size", "4"}, 2},
		{"bad boolean", []string{"-fp", empty, "-si", "maybe"}, 2},
		{"missing folder", []string{"-fp", filepath.Join(empty, "nope")}, 1},
		{"no images", []string{"-fp", empty}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(tt.args, &stdout, &stderr); code != tt.want {
				t.Errorf("exit code: got %d, want %d (stderr: %s)", code, tt.want, stderr.String())
			}
		})
	}
}

func TestRun_Batch(t *testing.T) {
	t.Setenv("COIN_COUNTER_LOG_LEVEL", "")
	dir := t.TempDir()
	writeCoins(t, filepath.Join(dir, "pair_2.png"), image.Point{X: 50, Y: 70}, image.Point{X: 150, Y: 70})
	out := filepath.Join(t.TempDir(), "annotated")

	configPath := filepath.Join(t.TempDir(), "coins.yaml")
	if err := os.WriteFile(configPath, []byte("hough:\n  min_dist: 40\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	var stdout, stderr bytes.Buffer
	args := []string{"-fp", dir, "-sc", "True", "--show-images", "true", "--annotate-dir", out, "--config", configPath}
	if code := run(args, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
	}

	report := stdout.String()
	for _, want := range []string{
		"---------- COIN IMAGE 1 ----------",
		"Detected coins: 2",
		"True coins number: 2",
		"Coin 2: Area = ",
		"Relative Error (RE): 0.00%",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
	if _, err := os.Stat(filepath.Join(out, "pair_2.png")); err != nil {
		t.Errorf("annotated image not written: %v", err)
	}
}
