// Package config loads and validates the engine configuration from YAML,
// with an optional standalone segments profile and hot reload of filter
// thresholds.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads the main config file, merges the segments profile if one is
// referenced, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(abs)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", abs, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	if cfg.SegmentsFile != "" {
		profile := cfg.SegmentsFile
		if !filepath.IsAbs(profile) {
			profile = filepath.Join(filepath.Dir(abs), profile)
		}
		segments, err := loadSegmentsProfile(profile)
		if err != nil {
			return nil, err
		}
		cfg.Segments = mergeSegments(cfg.Segments, segments)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type segmentsProfile struct {
	Segments []SegmentConfig `yaml:"segments"`
}

func loadSegmentsProfile(path string) ([]SegmentConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading segments profile failed (%s): %w", path, err)
	}
	var p segmentsProfile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parsing segments profile failed (%s): %w", path, err)
	}
	return p.Segments, nil
}

// mergeSegments overlays profile entries on the inline list, matched by name.
func mergeSegments(inline, profile []SegmentConfig) []SegmentConfig {
	if len(profile) == 0 {
		return inline
	}
	byName := make(map[string]int, len(inline))
	out := make([]SegmentConfig, len(inline))
	copy(out, inline)
	for i, s := range out {
		byName[s.Name] = i
	}
	for _, s := range profile {
		if i, ok := byName[s.Name]; ok {
			out[i] = s
			continue
		}
		byName[s.Name] = len(out)
		out = append(out, s)
	}
	return out
}
