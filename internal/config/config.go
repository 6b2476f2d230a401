package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ProjectFile is the per-directory config file name.
const ProjectFile = ".inkwellconfig"

// Config holds all configurable inkwell settings.
type Config struct {
	AutoSave         *bool    `json:"auto_save,omitempty"`
	AutoSaveInterval Duration `json:"auto_save_interval,omitempty"`
	RecoveryInterval Duration `json:"recovery_interval,omitempty"`
	RecoveryMaxAge   Duration `json:"recovery_max_age,omitempty"`
	SettleDelay      Duration `json:"settle_delay,omitempty"`   // editor settle window
	SearchTimeout    Duration `json:"search_timeout,omitempty"` // per-regex match timeout
	RecoveryPath     string   `json:"recovery_path,omitempty"`  // override XDG location
	LogFile          string   `json:"log_file,omitempty"`
	DefaultFormat    string   `json:"default_format,omitempty"` // "markdown" | "json"
}

// Duration is a time.Duration that unmarshals from a Go duration string
// ("30s") or a number of milliseconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	var parsed time.Duration
	switch x := v.(type) {
	case float64:
		parsed = time.Duration(x * float64(time.Millisecond))
	case string:
		var err error
		if parsed, err = time.ParseDuration(x); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid duration %s", data)
	}
	if parsed < 0 {
		return fmt.Errorf("negative duration %s", data)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Defaults returns sensible default configuration values.
func Defaults() Config {
	on := true
	return Config{
		AutoSave:         &on,
		AutoSaveInterval: Duration(30 * time.Second),
		RecoveryInterval: Duration(30 * time.Second),
		RecoveryMaxAge:   Duration(24 * time.Hour),
		SettleDelay:      Duration(300 * time.Millisecond),
		SearchTimeout:    Duration(time.Second),
		DefaultFormat:    "markdown",
	}
}

// AutoSaveEnabled reports the effective auto_save value.
func (c Config) AutoSaveEnabled() bool {
	return c.AutoSave == nil || *c.AutoSave
}

// GlobalPath returns ~/.config/inkwell/config.json.
func GlobalPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "inkwell", "config.json"), nil
}

// LoadGlobal reads ~/.config/inkwell/config.json.
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	path, err := GlobalPath()
	if err != nil {
		return nil, err
	}
	return loadFile(path, true)
}

// LoadProject reads .inkwellconfig in the current working directory.
// Returns nil (no error) if the file is absent.
func LoadProject() (*Config, error) {
	return loadFile(ProjectFile, false)
}

// Load merges the global and project files.
func Load() (Config, error) {
	global, err := LoadGlobal()
	if err != nil {
		return Defaults(), err
	}
	project, err := LoadProject()
	if err != nil {
		return Merge(global, nil), err
	}
	return Merge(global, project), nil
}

// loadFile reads and parses a JSON config file at path.
// If returnDefaults is true, returns defaults when the file is absent.
// If returnDefaults is false, returns nil when the file is absent.
func loadFile(path string, returnDefaults bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if returnDefaults {
				d := Defaults()
				return &d, nil
			}
			return nil, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Merge combines global and project configs, with project taking precedence.
// Missing keys fall back to global, then defaults.
func Merge(global, project *Config) Config {
	result := Defaults()
	for _, layer := range []*Config{global, project} {
		if layer != nil {
			result.apply(layer)
		}
	}
	return result
}

func (c *Config) apply(o *Config) {
	if o.AutoSave != nil {
		v := *o.AutoSave
		c.AutoSave = &v
	}
	setDuration(&c.AutoSaveInterval, o.AutoSaveInterval)
	setDuration(&c.RecoveryInterval, o.RecoveryInterval)
	setDuration(&c.RecoveryMaxAge, o.RecoveryMaxAge)
	setDuration(&c.SettleDelay, o.SettleDelay)
	setDuration(&c.SearchTimeout, o.SearchTimeout)
	setString(&c.RecoveryPath, o.RecoveryPath)
	setString(&c.LogFile, o.LogFile)
	setString(&c.DefaultFormat, o.DefaultFormat)
}

func setDuration(dst *Duration, v Duration) {
	if v > 0 {
		*dst = v
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
