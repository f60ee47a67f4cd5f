package audio

import (
	"strconv"
	"strings"
)

// DecodeProgress tracks ffmpeg -progress output across lines.
type DecodeProgress struct {
	OutTimeUs int64
	Speed     string
	Done      bool
}

// UpdateFromLine consumes one progress line and reports true on each
// "progress=" marker, which closes a block.
func (p *DecodeProgress) UpdateFromLine(line string) bool {
	kv := strings.SplitN(line, "=", 2)
	if len(kv) != 2 {
		return false
	}
	key := strings.TrimSpace(kv[0])
	val := strings.TrimSpace(kv[1])

	switch key {
	case "out_time_us", "out_time_ms":
		// both are microseconds in ffmpeg output
		if v, err := strconv.ParseInt(val, 10, 64); err == nil {
			p.OutTimeUs = v
		}
	case "speed":
		p.Speed = val
	case "progress":
		p.Done = val == "end"
		return true
	}
	return false
}

// DecodedSeconds is the input position reached so far.
func (p *DecodeProgress) DecodedSeconds() float64 {
	return float64(p.OutTimeUs) / 1_000_000
}
