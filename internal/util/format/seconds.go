package format

import (
	"fmt"
	"math"
)

// Seconds renders a duration in seconds with one decimal ("12.3s").
func Seconds(s float64) string {
	if math.IsNaN(s) || s < 0 {
		s = 0
	}
	return fmt.Sprintf("%.1fs", s)
}

// Clock renders seconds as m:ss, or h:mm:ss past an hour.
func Clock(s float64) string {
	if math.IsNaN(s) || s < 0 {
		s = 0
	}
	total := int(math.Round(s))
	h, m, sec := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}
