// Package config loads pipeline tuning from a YAML file.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the top-level pipeline configuration. Durations are expressed
// in milliseconds so config files stay unit-free.
type Config struct {
	Smoother    SmootherConfig    `yaml:"smoother"`
	Fingerprint FingerprintConfig `yaml:"fingerprint"`
	GPS         GPSConfig         `yaml:"gps"`
	Dedup       DedupConfig       `yaml:"dedup"`
	Queue       QueueConfig       `yaml:"queue"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

type SmootherConfig struct {
	WindowSize      int     `yaml:"window_size"`
	MinVotes        int     `yaml:"min_votes"`
	TrackTTLMS      int     `yaml:"track_ttl_ms"`
	MatchDistance   float64 `yaml:"match_distance"`
	ConfidenceFloor float64 `yaml:"confidence_floor"`
}

type FingerprintConfig struct {
	MaxDissimilarity float64 `yaml:"max_dissimilarity"`
	TTLMS            int     `yaml:"ttl_ms"`
	ConfidenceFloor  float64 `yaml:"confidence_floor"`
	Smoothing        float64 `yaml:"smoothing"`
}

type GPSConfig struct {
	BufferSize         int     `yaml:"buffer_size"`
	FreshWindowMS      int     `yaml:"fresh_window_ms"`
	MinMovingSpeed     float64 `yaml:"min_moving_speed"`
	MaxExtrapolationMS int     `yaml:"max_extrapolation_ms"`
}

type DedupConfig struct {
	ShortTTLMS      int     `yaml:"short_ttl_ms"`
	SessionTTLMS    int     `yaml:"session_ttl_ms"`
	CellSizeMeters  float64 `yaml:"cell_size_meters"`
	CenterGate      bool    `yaml:"center_gate"`
	CenterGateMin   float64 `yaml:"center_gate_min"`
	CenterGateMax   float64 `yaml:"center_gate_max"`
	ConfidenceFloor float64 `yaml:"confidence_floor"`
	MaxCacheEntries int     `yaml:"max_cache_entries"`
}

type QueueConfig struct {
	Size int `yaml:"size"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns the configuration the pipeline ships with.
func Default() *Config {
	return &Config{
		Smoother: SmootherConfig{
			WindowSize:      3,
			MinVotes:        2,
			TrackTTLMS:      1000,
			MatchDistance:   0.1,
			ConfidenceFloor: 0.6,
		},
		Fingerprint: FingerprintConfig{
			MaxDissimilarity: 0.10,
			TTLMS:            8000,
			ConfidenceFloor:  0.40,
			Smoothing:        0.3,
		},
		GPS: GPSConfig{
			BufferSize:         10,
			FreshWindowMS:      2000,
			MinMovingSpeed:     0.5,
			MaxExtrapolationMS: 3000,
		},
		Dedup: DedupConfig{
			ShortTTLMS:      30000,
			SessionTTLMS:    900000,
			CellSizeMeters:  12.0,
			CenterGate:      true,
			CenterGateMin:   0.35,
			CenterGateMax:   0.65,
			ConfidenceFloor: 0.25,
			MaxCacheEntries: 2048,
		},
		Queue: QueueConfig{
			Size: 64,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9091",
		},
	}
}

// Load reads configuration from a YAML file. Fields missing from the file
// keep their default values.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "can't read config file")
	}
	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(err, "can't parse config file")
	}
	return config, nil
}

// ShortTTL returns the dedup short-horizon TTL as a duration.
func (d DedupConfig) ShortTTL() time.Duration {
	return time.Duration(d.ShortTTLMS) * time.Millisecond
}

// SessionTTL returns the dedup session-horizon TTL as a duration.
func (d DedupConfig) SessionTTL() time.Duration {
	return time.Duration(d.SessionTTLMS) * time.Millisecond
}
