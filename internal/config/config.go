package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"whisperdesk/internal/dirs"
	"whisperdesk/internal/model"
	"whisperdesk/internal/status"
)

const EnvPrefix = "WHISPERDESK"

// Settings is the effective configuration after flags, env and file.
type Settings struct {
	Model                string             `mapstructure:"model" yaml:"model"`
	Language             string             `mapstructure:"language" yaml:"language"`
	Device               string             `mapstructure:"device" yaml:"device"`
	ModelsDir            string             `mapstructure:"models_dir" yaml:"models_dir"`
	ModelPath            string             `mapstructure:"model_path" yaml:"model_path,omitempty"`
	OutDir               string             `mapstructure:"out_dir" yaml:"out_dir"`
	WhisperBinary        string             `mapstructure:"whisper_binary" yaml:"whisper_binary,omitempty"`
	FFmpegBinary         string             `mapstructure:"ffmpeg_binary" yaml:"ffmpeg_binary,omitempty"`
	Threads              int                `mapstructure:"threads" yaml:"threads"`
	Verbose              bool               `mapstructure:"verbose" yaml:"verbose"`
	KeepTemp             bool               `mapstructure:"keep_temp" yaml:"keep_temp"`
	LogLevel             string             `mapstructure:"log_level" yaml:"log_level"`
	TickInterval         time.Duration      `mapstructure:"tick_interval" yaml:"tick_interval"`
	HoldLoaded           time.Duration      `mapstructure:"hold_loaded" yaml:"hold_loaded"`
	HoldCompleted        time.Duration      `mapstructure:"hold_completed" yaml:"hold_completed"`
	LoadSecondsPerFactor float64            `mapstructure:"load_seconds_per_factor" yaml:"load_seconds_per_factor"`
	ModelFactors         map[string]float64 `mapstructure:"model_factors" yaml:"model_factors"`
}

// flagKeys maps persistent flag names to their config keys.
var flagKeys = map[string]string{
	"model":          "model",
	"language":       "language",
	"device":         "device",
	"models-dir":     "models_dir",
	"model-path":     "model_path",
	"out-dir":        "out_dir",
	"whisper-binary": "whisper_binary",
	"ffmpeg-binary":  "ffmpeg_binary",
	"threads":        "threads",
	"verbose":        "verbose",
	"keep-temp":      "keep_temp",
	"log-level":      "log_level",
}

// Init wires Viper with config paths, env, defaults, and flag bindings.
// It is non-fatal: a missing config file is not an error.
func Init(root *cobra.Command) error {
	_ = dirs.EnsureAll()

	if cfgDir, err := dirs.ConfigDir(); err == nil {
		viper.AddConfigPath(cfgDir)
	}
	viper.SetConfigName("config") // supports config.{yaml|yml|json|toml}

	// Environment variables: WHISPERDESK_*
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	SetDefaults()

	if root != nil {
		pf := root.PersistentFlags()
		for name, key := range flagKeys {
			if f := pf.Lookup(name); f != nil {
				_ = viper.BindPFlag(key, f)
			}
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// SetDefaults registers the built-in values.
func SetDefaults() {
	viper.SetDefault("model", status.DefaultModelSize)
	viper.SetDefault("language", "")
	viper.SetDefault("device", "auto")
	viper.SetDefault("threads", 0)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("tick_interval", "100ms")
	viper.SetDefault("hold_loaded", "2s")
	viper.SetDefault("hold_completed", "5s")
	viper.SetDefault("load_seconds_per_factor", 1.5)
	if d, err := dirs.ModelsDir(); err == nil {
		viper.SetDefault("models_dir", d)
	}
	if d, err := dirs.DefaultOutputDir(); err == nil {
		viper.SetDefault("out_dir", d)
	}
}

// Load reads the effective settings and validates them.
func Load() (Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decode config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate fills empty fields with defaults and rejects unknown values.
func (s *Settings) Validate() error {
	s.Model = strings.ToLower(strings.TrimSpace(s.Model))
	if s.Model == "" {
		s.Model = status.DefaultModelSize
	}
	if !model.ModelSize(s.Model).Valid() {
		return fmt.Errorf("invalid model %q (valid: %s)", s.Model, joinSizes())
	}

	s.Device = strings.ToLower(strings.TrimSpace(s.Device))
	switch s.Device {
	case "":
		s.Device = "auto"
	case "auto", "cpu", "gpu", "cuda", "metal":
	default:
		return fmt.Errorf("invalid device %q (valid: auto|cpu|gpu)", s.Device)
	}

	if s.Threads < 0 {
		return fmt.Errorf("invalid threads %d", s.Threads)
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if s.TickInterval <= 0 {
		s.TickInterval = 100 * time.Millisecond
	}
	if s.HoldLoaded < 0 || s.HoldCompleted < 0 {
		return errors.New("hold durations must not be negative")
	}
	if s.LoadSecondsPerFactor <= 0 {
		s.LoadSecondsPerFactor = 1.5
	}
	for size, f := range s.ModelFactors {
		if f <= 0 {
			return fmt.Errorf("model factor for %q must be positive", size)
		}
	}
	return nil
}

// Factors merges configured overrides onto the built-in factor table.
func (s Settings) Factors() status.ModelFactors {
	f := status.DefaultModelFactors()
	for size, v := range s.ModelFactors {
		f[strings.ToLower(size)] = v
	}
	return f
}

// YAML renders the settings for `config show`.
func (s Settings) YAML() ([]byte, error) {
	return yaml.Marshal(s)
}

// Path reports the config file in use, or where one would be read from.
func Path() string {
	if f := viper.ConfigFileUsed(); f != "" {
		return f
	}
	if d, err := dirs.ConfigDir(); err == nil {
		return filepath.Join(d, "config.yaml")
	}
	return ""
}

// Watch reloads the settings whenever the config file changes and passes
// valid results to onChange. Invalid edits are reported through onError.
// It reports false when no config file was loaded.
func Watch(onChange func(Settings), onError func(error)) bool {
	if viper.ConfigFileUsed() == "" {
		return false
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		reload(e, onChange, onError)
	})
	viper.WatchConfig()
	return true
}

func reload(e fsnotify.Event, onChange func(Settings), onError func(error)) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	s, err := Load()
	if err != nil {
		if onError != nil {
			onError(fmt.Errorf("reload %s: %w", e.Name, err))
		}
		return
	}
	if onChange != nil {
		onChange(s)
	}
}

func joinSizes() string {
	var names []string
	for _, s := range model.Sizes() {
		names = append(names, string(s))
	}
	return strings.Join(names, "|")
}
