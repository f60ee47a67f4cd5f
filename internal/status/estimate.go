package status

import (
	"fmt"
	"sort"
)

// Default model size and the per-size duration multipliers.
const (
	DefaultModelSize = "small"

	acceleratedDeviceFactor = 0.1
	generalDeviceFactor     = 0.3
)

// ModelFactors maps a model size to its duration multiplier. Larger models
// carry larger factors.
type ModelFactors map[string]float64

// DefaultModelFactors returns a fresh copy of the built-in table.
func DefaultModelFactors() ModelFactors {
	return ModelFactors{
		"tiny":   0.5,
		"base":   1.0,
		"small":  2.0,
		"medium": 4.0,
		"large":  8.0,
	}
}

// Factor returns the multiplier for size, or 1.0 when unknown.
func (f ModelFactors) Factor(size string) float64 {
	if v, ok := f[size]; ok && v > 0 {
		return v
	}
	return 1.0
}

// Sizes lists the known sizes ordered by factor, then name.
func (f ModelFactors) Sizes() []string {
	out := make([]string, 0, len(f))
	for k := range f {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if f[out[i]] != f[out[j]] {
			return f[out[i]] < f[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

// Clone copies the table.
func (f ModelFactors) Clone() ModelFactors {
	out := make(ModelFactors, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// DeviceFactor is 0.1 on accelerated hardware and 0.3 otherwise.
func DeviceFactor(accelerated bool) float64 {
	if accelerated {
		return acceleratedDeviceFactor
	}
	return generalDeviceFactor
}

// EstimateSeconds is the heuristic duration of a transcription.
func EstimateSeconds(audioSeconds, modelFactor, deviceFactor float64) float64 {
	est := audioSeconds * modelFactor * deviceFactor
	if est < 0 {
		return 0
	}
	return est
}

// RemainingText is the default remaining-time formatter.
func RemainingText(seconds float64) string {
	return fmt.Sprintf("Remaining: ~%.1fs", seconds)
}
