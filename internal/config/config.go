// Package config handles meshdepth configuration loading and management.
package config

import (
	"fmt"
	gomath "math"
	"path/filepath"
	"strings"

	"github.com/Faultbox/meshdepth/internal/depth"
)

// Render backends.
const (
	BackendSoftware = "software"
	BackendGL       = "gl"
)

// Config holds all run settings.
type Config struct {
	Render      RenderConfig      `yaml:"render"`
	Angles      []AngleConfig     `yaml:"angles"`
	Output      OutputConfig      `yaml:"output"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Cache       CacheConfig       `yaml:"cache"`
	Ledger      LedgerConfig      `yaml:"ledger"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// RenderConfig holds the virtual camera settings.
type RenderConfig struct {
	Width      int     `yaml:"width"`
	Height     int     `yaml:"height"`
	ViewSize   float64 `yaml:"view_size"` // Width of the view volume in normalized units
	Radius     float64 `yaml:"radius"`    // Eye distance from the origin
	ClipNear   float64 `yaml:"clip_near"`
	ClipFar    float64 `yaml:"clip_far"`
	Backend    string  `yaml:"backend"`    // software or gl
	Background float64 `yaml:"background"` // Value of uncovered pixels, 0..1
}

// AngleConfig is one camera around the vertical axis.
type AngleConfig struct {
	Label   string  `yaml:"label"`
	Degrees float64 `yaml:"degrees"`
}

// OutputConfig holds depth image settings.
type OutputConfig struct {
	Dir      string `yaml:"dir"`
	BitDepth int    `yaml:"bit_depth"` // 8 or 16
	Normals  bool   `yaml:"normals"`   // Also write <label>_normals maps
}

// PipelineConfig holds scheduling settings.
type PipelineConfig struct {
	Workers int `yaml:"workers"`
}

// CacheConfig bounds the parsed mesh cache.
type CacheConfig struct {
	MaxFrames int `yaml:"max_frames"` // 0 = unlimited, negative = disabled
}

// LedgerConfig holds run history settings.
type LedgerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // Empty = runs.db in ConfigDir()
}

// DiagnosticsConfig holds depth range chart settings.
type DiagnosticsConfig struct {
	Plot bool   `yaml:"plot"`
	Dir  string `yaml:"dir"` // Empty = output dir
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Render: RenderConfig{
			Width:      512,
			Height:     512,
			ViewSize:   1.0,
			Radius:     2.0,
			ClipNear:   -100,
			ClipFar:    10,
			Backend:    BackendSoftware,
			Background: 1.0,
		},
		Angles: []AngleConfig{
			{Label: "front", Degrees: 0},
			{Label: "back", Degrees: 180},
		},
		Output: OutputConfig{
			Dir:      "depth",
			BitDepth: 8,
		},
		Pipeline: PipelineConfig{
			Workers: 1,
		},
		Cache: CacheConfig{
			MaxFrames: 0,
		},
		Ledger: LedgerConfig{
			Enabled: true,
		},
		Diagnostics: DiagnosticsConfig{
			Plot: false,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// CameraAngles converts the configured angles to radians.
func (c *Config) CameraAngles() []depth.CameraAngle {
	angles := make([]depth.CameraAngle, len(c.Angles))
	for i, a := range c.Angles {
		angles[i] = depth.CameraAngle{Label: a.Label, Radians: a.Degrees * gomath.Pi / 180}
	}
	return angles
}

// LedgerPath returns where the run history database lives.
func (c *Config) LedgerPath() string {
	if c.Ledger.Path != "" {
		return c.Ledger.Path
	}
	return filepath.Join(ConfigDir(), "runs.db")
}

// DiagnosticsDir returns where depth range charts are written.
func (c *Config) DiagnosticsDir() string {
	if c.Diagnostics.Dir != "" {
		return c.Diagnostics.Dir
	}
	return c.Output.Dir
}

// Validate checks the settings that would otherwise fail mid-run.
func (c *Config) Validate() error {
	r := c.Render
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("render: invalid size %dx%d", r.Width, r.Height)
	}
	if r.ViewSize <= 0 || r.Radius <= 0 {
		return fmt.Errorf("render: view_size and radius must be positive")
	}
	if r.ClipNear >= r.ClipFar {
		return fmt.Errorf("render: clip_near %v must be below clip_far %v", r.ClipNear, r.ClipFar)
	}
	switch r.Backend {
	case BackendSoftware, BackendGL:
	default:
		return fmt.Errorf("render: unknown backend %q", r.Backend)
	}
	if r.Background < 0 || r.Background > 1 {
		return fmt.Errorf("render: background %v outside [0,1]", r.Background)
	}
	if len(c.Angles) == 0 {
		return fmt.Errorf("angles: at least one angle is required")
	}
	if err := depth.ValidateAngles(c.CameraAngles()); err != nil {
		return fmt.Errorf("angles: %w", err)
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output: dir is required")
	}
	if c.Output.BitDepth != 8 && c.Output.BitDepth != 16 {
		return fmt.Errorf("output: bit_depth must be 8 or 16, got %d", c.Output.BitDepth)
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline: workers must be at least 1, got %d", c.Pipeline.Workers)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging: unknown level %q", c.Logging.Level)
	}
	return nil
}
