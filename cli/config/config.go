package config

import (
	"fmt"
	"time"

	"github.com/c2h5oh/datasize"
)

// Listen address defaults.
const (
	DefaultAggregatorAddr = "127.0.0.1:8766"
	DefaultDebugAddr      = "127.0.0.1:8767"
	DefaultIngestAddr     = "127.0.0.1:8765"
)

// Config represents a teeline.yaml configuration file.
// All values are optional and act as defaults for command flags.
// CLI flags always override config values.
type Config struct {
	LogLevel   string           `yaml:"log_level"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Debug      DebugConfig      `yaml:"debug"`
	Policy     PolicyConfig     `yaml:"policy"`
	Adapter    AdapterConfig    `yaml:"adapter"`
	Capture    CaptureConfig    `yaml:"capture"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Storage    StorageConfig    `yaml:"storage"`
}

// AggregatorConfig holds coordinator defaults.
type AggregatorConfig struct {
	Listen       string   `yaml:"listen"`
	Channel      string   `yaml:"channel"`
	RingCapacity int      `yaml:"ring_capacity"`
	HelloTimeout Duration `yaml:"hello_timeout"`
}

// DebugConfig holds the inspection listener defaults.
type DebugConfig struct {
	Listen  string `yaml:"listen"`
	Metrics *bool  `yaml:"metrics,omitempty"`
}

// PolicyConfig holds flush policy defaults.
type PolicyConfig struct {
	FlushDelay      Duration          `yaml:"flush_delay"`
	MaxBytes        datasize.ByteSize `yaml:"max_bytes"`
	MaxFrames       int               `yaml:"max_frames"`
	DeliveryTimeout Duration          `yaml:"delivery_timeout"`
}

// AdapterConfig holds sink defaults.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Gzip    bool              `yaml:"gzip,omitempty"`
}

// CaptureConfig holds interceptor and relay defaults.
type CaptureConfig struct {
	Origin      string            `yaml:"origin"`
	Path        string            `yaml:"path"`
	ContentType string            `yaml:"content_type"`
	Handshake   string            `yaml:"handshake"`
	Source      string            `yaml:"source"`
	ReadSize    datasize.ByteSize `yaml:"read_size"`
}

// IngestConfig holds sink server defaults.
type IngestConfig struct {
	Listen      string            `yaml:"listen"`
	AllowOrigin string            `yaml:"allow_origin"`
	MaxBody     datasize.ByteSize `yaml:"max_body"`
}

// StorageConfig holds segment storage defaults.
type StorageConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// Adapter types.
const (
	AdapterWebhook = "webhook"
	AdapterRedis   = "redis"
)

// Validate checks enumerated values. Empty values are left for defaults.
func (c *Config) Validate() error {
	switch c.Adapter.Type {
	case "", AdapterWebhook, AdapterRedis:
	default:
		return fmt.Errorf("adapter.type: unknown adapter %q (want webhook or redis)", c.Adapter.Type)
	}
	switch c.Storage.Backend {
	case "", "fs", "s3", "memory":
	default:
		return fmt.Errorf("storage.backend: unknown backend %q (want fs, s3 or memory)", c.Storage.Backend)
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level: unknown level %q", c.LogLevel)
	}
	if c.Aggregator.RingCapacity < 0 {
		return fmt.Errorf("aggregator.ring_capacity: must be >= 0, got %d", c.Aggregator.RingCapacity)
	}
	if c.Policy.MaxFrames < 0 {
		return fmt.Errorf("policy.max_frames: must be >= 0, got %d", c.Policy.MaxFrames)
	}
	return nil
}

// Duration wraps time.Duration for YAML string parsing (e.g. "15ms", "5s").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
