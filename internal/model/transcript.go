package model

import "time"

// ModelSize names a whisper model preset.
type ModelSize string

const (
	SizeTiny   ModelSize = "tiny"
	SizeBase   ModelSize = "base"
	SizeSmall  ModelSize = "small"
	SizeMedium ModelSize = "medium"
	SizeLarge  ModelSize = "large"
)

// Sizes lists the presets from smallest to largest.
func Sizes() []ModelSize {
	return []ModelSize{SizeTiny, SizeBase, SizeSmall, SizeMedium, SizeLarge}
}

// Valid reports whether s is a known preset.
func (s ModelSize) Valid() bool {
	for _, k := range Sizes() {
		if s == k {
			return true
		}
	}
	return false
}

// Next cycles to the following preset, wrapping after large.
func (s ModelSize) Next() ModelSize {
	all := Sizes()
	for i, k := range all {
		if s == k {
			return all[(i+1)%len(all)]
		}
	}
	return SizeSmall
}

// LoadResult is the outcome of a successful model load.
type LoadResult struct {
	Size    ModelSize
	Device  string
	Elapsed time.Duration
}

// Transcript is the outcome of a successful transcription.
type Transcript struct {
	AudioPath    string
	Text         string
	AudioSeconds float64
	EstSeconds   float64
	Elapsed      time.Duration
	Size         ModelSize
}
