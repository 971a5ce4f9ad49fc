// Package detection locates coin silhouettes in a binary mask.
//
// Two independent analyses run over the same imaging.Mask:
//
//   - FindCircles: a gradient Hough transform that returns candidate coin
//     circles. Its count is the predicted number of coins.
//   - LabelRegions: 8-connected component labeling that returns per-region
//     area, centroid and bounding box. These statistics are diagnostic only
//     and never change the predicted count.
//
// # Hough Circle Transform
//
//  1. Edge Detection: foreground mask cells whose Sobel magnitude reaches Param1
//  2. Accumulator Voting: every edge cell votes along its gradient direction,
//     in both senses, once per candidate radius in [MinRadius, MaxRadius]
//  3. Peak Detection: votes are box-filtered over a 3×3×3 neighborhood and
//     local maxima reaching Param2 become candidates
//  4. Duplicate Removal: candidates are accepted strongest first and any whose
//     center lies within MinDist of an accepted circle is dropped
//
// The accumulator is processed one radius slice at a time, so memory is bounded
// by a handful of (width/DP)×(height/DP) planes regardless of the radius range.
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//   - Bounding boxes use inclusive top-left and exclusive bottom-right
//
// # Determinism
//
// Both analyses are fully deterministic: the same mask and parameters always
// yield the same circles in the same order and the same regions.
package detection
