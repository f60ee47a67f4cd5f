package engine

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Device describes where inference runs.
type Device struct {
	Name        string
	Accelerated bool
}

// Label is the short display name ("GPU" or "CPU").
func (d Device) Label() string {
	if d.Accelerated {
		return "GPU"
	}
	return "CPU"
}

func (d Device) String() string {
	if d.Name == "" {
		return d.Label()
	}
	return fmt.Sprintf("%s (%s)", d.Label(), d.Name)
}

var lookPath = exec.LookPath

// DetectDevice resolves a preference of "auto", "cpu" or "gpu". Auto picks
// the GPU when a CUDA driver tool is on PATH or on Apple Silicon.
func DetectDevice(pref string) (Device, error) {
	switch strings.ToLower(strings.TrimSpace(pref)) {
	case "cpu":
		return Device{Name: "cpu"}, nil
	case "gpu", "cuda", "metal":
		return Device{Name: gpuName(), Accelerated: true}, nil
	case "", "auto":
		if _, err := lookPath("nvidia-smi"); err == nil {
			return Device{Name: "cuda", Accelerated: true}, nil
		}
		if runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" {
			return Device{Name: "metal", Accelerated: true}, nil
		}
		return Device{Name: "cpu"}, nil
	default:
		return Device{}, fmt.Errorf("unknown device %q (want auto, cpu or gpu)", pref)
	}
}

func gpuName() string {
	if runtime.GOOS == "darwin" {
		return "metal"
	}
	return "cuda"
}
