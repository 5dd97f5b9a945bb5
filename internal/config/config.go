// Package config holds the processing, retrace, and input-limit settings for
// the crash triage engine. Defaults mirror production values; a yaml file can
// override any subset.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Processing controls fingerprinting and comparison.
type Processing struct {
	// HashFrames bounds how many crash-thread frames feed the grouping hash.
	HashFrames int `yaml:"hash_frames"`
	// CmpFrames bounds how many frames feed stack comparison.
	CmpFrames int `yaml:"cmp_frames"`
	// CutThreshold is the clustering distance cutoff handed to callers.
	CutThreshold float64 `yaml:"cut_threshold"`
	// Normalize runs the external stack normalization before comparison.
	Normalize bool `yaml:"normalize"`
}

// Retrace controls symbol resolution.
type Retrace struct {
	// SkipSource skips staging source packages during retracing.
	SkipSource bool `yaml:"skip_source"`
}

// Limits bounds string fields of incoming reports. These are the
// storage-column-length equivalents; the validator accepts them as
// configuration and never hardcodes them.
type Limits struct {
	Component    int `yaml:"component"`
	Path         int `yaml:"path"`
	BuildID      int `yaml:"build_id"`
	Fingerprint  int `yaml:"fingerprint"`
	FunctionName int `yaml:"function_name"`
}

// Config is the full engine configuration.
type Config struct {
	Processing Processing `yaml:"processing"`
	Retrace    Retrace    `yaml:"retrace"`
	Limits     Limits     `yaml:"limits"`
}

// Default returns the production defaults.
func Default() *Config {
	return &Config{
		Processing: Processing{
			HashFrames:   16,
			CmpFrames:    16,
			CutThreshold: 0.3,
			Normalize:    true,
		},
		Retrace: Retrace{
			SkipSource: true,
		},
		Limits: Limits{
			Component:    64,
			Path:         512,
			BuildID:      64,
			Fingerprint:  64,
			FunctionName: 1024,
		},
	}
}

// Load reads a yaml config file over the defaults. Fields absent from the
// file keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.check(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

func (c *Config) check() error {
	if c.Processing.HashFrames <= 0 {
		return fmt.Errorf("processing.hash_frames must be positive, got %d", c.Processing.HashFrames)
	}
	if c.Processing.CmpFrames <= 0 {
		return fmt.Errorf("processing.cmp_frames must be positive, got %d", c.Processing.CmpFrames)
	}
	if c.Processing.CutThreshold < 0 {
		return fmt.Errorf("processing.cut_threshold must not be negative, got %v", c.Processing.CutThreshold)
	}
	for name, v := range map[string]int{
		"limits.component":     c.Limits.Component,
		"limits.path":          c.Limits.Path,
		"limits.build_id":      c.Limits.BuildID,
		"limits.fingerprint":   c.Limits.Fingerprint,
		"limits.function_name": c.Limits.FunctionName,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}
	return nil
}
