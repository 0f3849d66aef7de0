package cli

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
)

// downloadProgress returns a deps.Fetcher progress callback drawing a byte
// progress bar. A new bar starts whenever the count goes backwards, which
// happens when the next dependency starts downloading.
func downloadProgress(quiet bool) func(current, total int64) {
	if quiet {
		return nil
	}
	var bar *progressbar.ProgressBar
	var last int64
	return func(current, total int64) {
		if bar == nil || current < last {
			if bar != nil {
				bar.Finish()
			}
			max := total
			if max <= 0 {
				max = -1
			}
			bar = progressbar.NewOptions64(max,
				progressbar.OptionSetDescription("Downloading"),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowBytes(true),
				progressbar.OptionShowCount(),
				progressbar.OptionThrottle(65*time.Millisecond),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}
		last = current
		bar.Set64(current)
	}
}
