// Package imaging provides the pixel-level stages of the coin counting pipeline.
//
// This package implements image loading, grayscale conversion, Gaussian
// smoothing, locally-adaptive thresholding into a binary Mask, Sobel gradients
// over a Mask, circle annotation of the original image, and per-coin crops
// with their mean color. All operations work with standard Go image types and
// use a coordinate system where (0,0) is at the top-left corner, X increases
// rightward, and Y increases downward.
//
// # Pipeline Stages
//
// The stages are applied in order for every image:
//
//  1. ToGray: weighted luma sum (ITU-R BT.601) into an 8-bit *image.Gray
//  2. Blur: separable Gaussian smoothing with replicated borders
//  3. AdaptiveThreshold: per-pixel local mean comparison producing a Mask
//
// Every derived image has the same width and height as the source. Derived
// images are always re-based so that their bounds start at (0,0).
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. Individual image operations
// are stateless and can be called concurrently on different images.
//
// # Error Handling
//
// Functions return errors wrapping ErrInvalidInput for:
//   - Images with zero width or height
//   - Invalid kernel or block sizes (even or non-positive)
//   - File I/O or decode errors during image loading
package imaging
