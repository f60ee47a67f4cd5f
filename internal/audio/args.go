package audio

// BuildDecodeArgs constructs ffmpeg arguments that decode any input to a
// 16 kHz mono 16-bit WAV.
func BuildDecodeArgs(inputPath, outputPath string, includeProgress bool) []string {
	args := []string{
		"-y",
		"-nostdin",
		"-hide_banner",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		"-f", "wav",
	}
	if includeProgress {
		args = append(args, "-progress", "pipe:1", "-nostats")
	}
	args = append(args, outputPath)
	return args
}
