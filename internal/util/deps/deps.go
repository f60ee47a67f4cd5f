package deps

import (
	"fmt"
	"os"
	"os/exec"
)

// whisperCandidates are the names whisper.cpp installs its CLI under.
var whisperCandidates = []string{"whisper-cli", "whisper-cpp", "whisper"}

// FindFFmpeg returns the path to ffmpeg.
// If customPath is non-empty, it tries that path or looks it up in PATH.
func FindFFmpeg(customPath string) (string, error) {
	return find(customPath, []string{"ffmpeg"}, "could not find ffmpeg in PATH. Please install ffmpeg.")
}

// FindWhisper returns the path to the whisper.cpp CLI.
// If customPath is non-empty, it tries that path or looks it up in PATH.
func FindWhisper(customPath string) (string, error) {
	return find(customPath, whisperCandidates, "could not find whisper-cli (whisper.cpp) in PATH. Please install whisper.cpp.")
}

func find(customPath string, names []string, notFound string) (string, error) {
	if customPath != "" {
		if _, err := os.Stat(customPath); err == nil {
			return customPath, nil
		}
		if p, err := exec.LookPath(customPath); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("could not find %q", customPath)
	}
	for _, n := range names {
		if p, err := exec.LookPath(n); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%s", notFound)
}
