package dirs

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

const appName = "whisperdesk"

// AppName returns the canonical application name for directory paths.
func AppName() string {
	return appName
}

// xdgDir resolves a per-OS base directory.
// On Linux it honors xdgEnv, falling back to ~/linuxRel. On macOS it uses
// ~/darwinRel. Elsewhere it uses fallback().
func xdgDir(xdgEnv, linuxRel, darwinRel string, fallback func() (string, error)) (string, error) {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, darwinRel, AppName()), nil
	case "linux":
		if xdg := os.Getenv(xdgEnv); xdg != "" {
			return filepath.Join(xdg, AppName()), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, linuxRel, AppName()), nil
	default:
		base, err := fallback()
		if err != nil {
			return "", err
		}
		return filepath.Join(base, AppName()), nil
	}
}

// ConfigDir returns the app's configuration directory.
// - Linux: $XDG_CONFIG_HOME/whisperdesk or ~/.config/whisperdesk
// - macOS: ~/Library/Application Support/whisperdesk
// - Windows: %AppData%/whisperdesk
func ConfigDir() (string, error) {
	return xdgDir("XDG_CONFIG_HOME", ".config", filepath.Join("Library", "Application Support"), os.UserConfigDir)
}

// DataDir returns the app's data directory (models, transcripts).
// - Linux: $XDG_DATA_HOME/whisperdesk or ~/.local/share/whisperdesk
// - macOS: ~/Library/Application Support/whisperdesk
func DataDir() (string, error) {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"), filepath.Join("Library", "Application Support"), os.UserConfigDir)
}

// CacheDir returns the app's cache directory.
// - Linux: $XDG_CACHE_HOME/whisperdesk or ~/.cache/whisperdesk
// - macOS: ~/Library/Caches/whisperdesk
func CacheDir() (string, error) {
	return xdgDir("XDG_CACHE_HOME", ".cache", filepath.Join("Library", "Caches"), os.UserCacheDir)
}

// StateDir returns the app's state directory (logs).
// - Linux: $XDG_STATE_HOME/whisperdesk or ~/.local/state/whisperdesk
// - macOS: ~/Library/Application Support/whisperdesk/state
// - Windows: %LocalAppData%/whisperdesk/state
func StateDir() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return xdgDir("XDG_STATE_HOME", filepath.Join(".local", "state"), "", nil)
	case "darwin":
		d, err := DataDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(d, "state"), nil
	default:
		if la := os.Getenv("LOCALAPPDATA"); la != "" {
			return filepath.Join(la, AppName(), "state"), nil
		}
		cfg, err := ConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(cfg, "state"), nil
	}
}

func under(base func() (string, error), elem ...string) (string, error) {
	d, err := base()
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{d}, elem...)...), nil
}

// ModelsDir is where ggml-<size>.bin files are looked up by default.
func ModelsDir() (string, error) {
	return under(DataDir, "models")
}

// DefaultOutputDir returns the default transcript directory under the data dir.
func DefaultOutputDir() (string, error) {
	return under(DataDir, "transcripts")
}

// TempBaseDir returns the base directory for temporary working files under cache.
func TempBaseDir() (string, error) {
	return under(CacheDir, "temp")
}

// LogFile is the log destination used while the terminal UI owns the screen.
func LogFile() (string, error) {
	return under(StateDir, appName+".log")
}

// Ensure creates the directory if it doesn't exist.
func Ensure(path string) error {
	if path == "" {
		return errors.New("empty path")
	}
	return os.MkdirAll(path, 0o755)
}

// EnsureAll ensures config, data, cache, and state dirs exist.
func EnsureAll() error {
	for _, fn := range []func() (string, error){ConfigDir, DataDir, CacheDir, StateDir} {
		p, err := fn()
		if err != nil {
			continue
		}
		if err := Ensure(p); err != nil {
			return err
		}
	}
	return nil
}
