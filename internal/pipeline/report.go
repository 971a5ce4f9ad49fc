package pipeline

import (
	"fmt"
	"io"
)

// writeImageReport prints the per-image block. Running averages are omitted
// for a failed image when no image has been scored yet.
func writeImageReport(w io.Writer, o ImageOutcome, showCentroids bool) {
	fmt.Fprintf(w, "---------- COIN IMAGE %d ----------\n", o.Index)
	fmt.Fprintf(w, "File: %s\n", o.Filename)

	if o.Status == StatusFailed && o.Result == nil {
		fmt.Fprintf(w, "Error: %s\n", o.Error)
		fmt.Fprintln(w)
		return
	}

	fmt.Fprintf(w, "Detected coins: %d\n", o.Predicted)
	fmt.Fprintf(w, "True coins number: %d\n", o.GroundTruth)

	if showCentroids && o.Result != nil {
		for i, r := range o.Result.ListedRegions() {
			fmt.Fprintf(w, "Coin %d: Area = %d, Centroid = (%.2f, %.2f)\n",
				i+1, r.Area, r.Centroid.X, r.Centroid.Y)
		}
	}

	if o.Status == StatusFailed {
		fmt.Fprintf(w, "Relative Error (RE): undefined (%s)\n", o.Error)
	} else {
		fmt.Fprintf(w, "Relative Error (RE): %.2f%%\n", o.Sample.RelativeError)
	}
	if o.Running.ImagesProcessed > 0 {
		mse, _ := o.Running.MeanSquaredError()
		are, _ := o.Running.AverageRelativeError()
		fmt.Fprintf(w, "Mean Square Error (MSE): %.2f\n", mse)
		fmt.Fprintf(w, "Relative Error Average (REV): %.2f%%\n", are)
	}
	fmt.Fprintln(w)
}

// WriteSummary prints the batch totals after the last image.
func WriteSummary(w io.Writer, s *Summary) {
	fmt.Fprintln(w, "========== SUMMARY ==========")
	fmt.Fprintf(w, "Images processed: %d\n", s.Processed)
	fmt.Fprintf(w, "Images failed: %d\n", s.Failed)
	if s.Skipped > 0 {
		fmt.Fprintf(w, "Images skipped: %d\n", s.Skipped)
	}
	if s.Processed > 0 {
		fmt.Fprintf(w, "Mean Square Error (MSE): %.2f\n", s.MeanSquaredError)
		fmt.Fprintf(w, "Relative Error Average (REV): %.2f%%\n", s.AverageRelativeError)
	} else {
		fmt.Fprintln(w, "No image could be scored.")
	}
}
