package audio

import (
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const bitDepth = 16

// EncodeWAV writes samples as a 16 kHz mono 16-bit PCM WAV.
func EncodeWAV(w io.WriteSeeker, samples Samples) error {
	enc := wav.NewEncoder(w, SampleRate, bitDepth, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: SampleRate},
		Data:           make([]int, len(samples)),
		SourceBitDepth: bitDepth,
	}
	for i, s := range samples {
		buf.Data[i] = toPCM16(s)
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav: %w", err)
	}
	return nil
}

// DecodeWAV reads a mono 16-bit WAV into samples. Multi-channel input is
// downmixed by averaging.
func DecodeWAV(r io.ReadSeeker) (Samples, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%w: not a valid wav stream", ErrDecode)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if buf == nil || buf.Format == nil {
		return nil, 0, fmt.Errorf("%w: missing pcm data", ErrDecode)
	}
	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	scale := math.Pow(2, float64(int(dec.BitDepth)-1))
	if dec.BitDepth == 0 {
		scale = 32768
	}

	out := make(Samples, len(buf.Data)/channels)
	for i := range out {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c])
		}
		out[i] = float32(sum / float64(channels) / scale)
	}
	return out, buf.Format.SampleRate, nil
}

func toPCM16(s float32) int {
	v := math.Round(float64(s) * 32768)
	if v > math.MaxInt16 {
		v = math.MaxInt16
	}
	if v < math.MinInt16 {
		v = math.MinInt16
	}
	return int(v)
}
