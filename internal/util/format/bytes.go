package format

import "fmt"

var byteUnits = []string{"KB", "MB", "GB", "TB", "PB"}

// HumanizeBytes renders a size in binary units with one decimal, as shown
// for model files ("466.0 MB"). Negative sizes render as "0 B".
func HumanizeBytes(b int64) string {
	if b < 1024 {
		if b < 0 {
			b = 0
		}
		return fmt.Sprintf("%d B", b)
	}
	v := float64(b) / 1024
	i := 0
	for v >= 1024 && i < len(byteUnits)-1 {
		v /= 1024
		i++
	}
	return fmt.Sprintf("%.1f %s", v, byteUnits[i])
}
