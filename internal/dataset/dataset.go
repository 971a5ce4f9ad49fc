// Package dataset discovers labeled coin images in a folder.
//
// The ground-truth coin count of each image is encoded in its filename: the
// first run of decimal digits bounded by a non-digit on both sides, e.g.
// "coins_5.jpg" or "img(12).png".
package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ErrFileDiscovery is returned when a folder cannot be read or holds no
// usable images.
var ErrFileDiscovery = errors.New("file discovery failed")

// countPattern matches the first digit run with a non-digit on each side.
var countPattern = regexp.MustCompile(`\D(\d+)\D`)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// ImageRecord is one discovered image and its labeled coin count.
type ImageRecord struct {
	Filename         string `json:"filename"`
	GroundTruthCount int    `json:"ground_truth_count"`
	FilePath         string `json:"file_path"`
}

// ParseCount extracts the ground-truth count from a filename.
// The boolean is false when the name carries no bounded digit run.
func ParseCount(filename string) (int, bool) {
	m := countPattern.FindStringSubmatch(filename)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsImageFile reports whether the filename has a supported image extension.
func IsImageFile(filename string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Discover lists the labeled images in dir, sorted lexicographically by filename.
//
// Subdirectories, files with other extensions, and images whose name carries no
// count are skipped. An error wrapping ErrFileDiscovery is returned if dir
// cannot be read or no image qualifies.
func Discover(dir string) ([]ImageRecord, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read folder %s: %v", ErrFileDiscovery, dir, err)
	}

	var records []ImageRecord
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !IsImageFile(name) {
			continue
		}
		count, ok := ParseCount(name)
		if !ok {
			continue
		}
		records = append(records, ImageRecord{
			Filename:         name,
			GroundTruthCount: count,
			FilePath:         filepath.Join(dir, name),
		})
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no labeled images in %s", ErrFileDiscovery, dir)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Filename < records[j].Filename
	})
	return records, nil
}
