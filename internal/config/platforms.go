package config

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/dakiwatch/dakiwatch/internal/model"
)

// PlatformConfig holds per-marketplace settings. MinIntervalSecs is the
// adapter-local floor between requests to that marketplace; JitterSecs is
// the randomized extra delay added on top of it.
type PlatformConfig struct {
	Enabled         bool    `yaml:"enabled"`
	BaseURL         string  `yaml:"base_url,omitempty"`
	MinIntervalSecs float64 `yaml:"min_interval_secs"`
	JitterSecs      float64 `yaml:"jitter_secs"`
	MaxCandidates   int     `yaml:"max_candidates"`
	ProxyURL        string  `yaml:"proxy_url,omitempty"`
}

// MinInterval returns the request-interval floor as a duration.
func (c PlatformConfig) MinInterval() time.Duration {
	return time.Duration(c.MinIntervalSecs * float64(time.Second))
}

// Jitter returns the randomized extra delay as a duration.
func (c PlatformConfig) Jitter() time.Duration {
	return time.Duration(c.JitterSecs * float64(time.Second))
}

// GeneralConfig holds settings shared by every adapter's transport.
type GeneralConfig struct {
	UserAgents   []string `yaml:"user_agents"`
	MaxBodyBytes int64    `yaml:"max_body_bytes"`
}

// PlatformsFile is the on-disk shape of platforms.yaml.
type PlatformsFile struct {
	General   GeneralConfig                     `yaml:"general"`
	Platforms map[model.Platform]PlatformConfig `yaml:"platforms"`
}

// Platform returns the config for p with defaults applied. Platforms not
// present in the file are enabled with defaults.
func (f *PlatformsFile) Platform(p model.Platform) PlatformConfig {
	cfg, ok := f.Platforms[p]
	if !ok {
		cfg = PlatformConfig{Enabled: true}
	}
	if cfg.MinIntervalSecs <= 0 {
		cfg.MinIntervalSecs = 3
	}
	if cfg.JitterSecs <= 0 {
		cfg.JitterSecs = 1
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 20
	}
	return cfg
}

// LoadPlatforms reads platform settings. A missing file is not an error:
// every platform runs with defaults.
func LoadPlatforms(path string) (*PlatformsFile, error) {
	f := &PlatformsFile{Platforms: map[model.Platform]PlatformConfig{}}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "config: read platforms file %s", path)
	}

	if err := yaml.Unmarshal(raw, f); err != nil {
		return nil, eris.Wrapf(err, "config: parse platforms file %s", path)
	}
	if f.Platforms == nil {
		f.Platforms = map[model.Platform]PlatformConfig{}
	}
	for p := range f.Platforms {
		switch p {
		case model.PlatformMercari, model.PlatformYahooAuction, model.PlatformSurugaya, model.PlatformLashinbang:
		default:
			return nil, eris.Errorf("config: unknown platform %q in %s", p, path)
		}
	}
	return f, nil
}
