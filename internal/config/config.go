// Package config handles configuration loading from YAML files and environment variables.
// Configuration precedence: CLI flags > environment variables > config file > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a wrapper around time.Duration that supports YAML unmarshaling
// from human-readable strings like "15s", "30s", "1m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Duration.
// It accepts duration strings ("30s", "1m30s") and bare integers, which
// are read as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		parsed, err := ParseDuration(value.Value)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("unsupported duration format: %v", value.Kind)
	}
}

// MarshalYAML implements the yaml.Marshaler interface for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// ParseDuration parses "30s"-style durations and bare integer seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return parsed, nil
}

// Config holds all agent configuration.
type Config struct {
	Sampler SamplerConfig `yaml:"sampler"`
	Host    HostConfig    `yaml:"host"`
	Event   EventConfig   `yaml:"event"`
	Output  OutputConfig  `yaml:"output"`
	Buffer  BufferConfig  `yaml:"buffer"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// SamplerConfig holds the external sampler settings.
type SamplerConfig struct {
	Source   string   `yaml:"source"`
	Binary   string   `yaml:"binary"`
	Option   string   `yaml:"option"`
	Interval Duration `yaml:"interval"`
	TmpFile  string   `yaml:"tmpfile"`
	Delay    int      `yaml:"delay"`
	Count    int      `yaml:"count"`
	UseShell bool     `yaml:"use_shell"`
	Timeout  Duration `yaml:"timeout"`
}

// HostConfig holds host identity settings.
type HostConfig struct {
	Hostname string `yaml:"hostname"`
}

// EventConfig holds the decoration applied to every event.
type EventConfig struct {
	Type     string            `yaml:"type"`
	Tags     []string          `yaml:"tags"`
	AddField map[string]string `yaml:"add_field"`
}

// OutputConfig holds delivery settings.
type OutputConfig struct {
	Stdout        bool         `yaml:"stdout"`
	QueueSize     int          `yaml:"queue_size"`
	BatchSize     int          `yaml:"batch_size"`
	FlushInterval Duration     `yaml:"flush_interval"`
	HTTP          HTTPConfig   `yaml:"http"`
	Valkey        ValkeyConfig `yaml:"valkey"`
	MQTT          MQTTConfig   `yaml:"mqtt"`
}

// HTTPConfig holds the HTTP output settings.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
}

// ValkeyConfig holds the Valkey list output settings.
type ValkeyConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	Key      string `yaml:"key"`
}

// MQTTConfig holds the MQTT output settings.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      byte   `yaml:"qos"`
}

// BufferConfig holds local file buffer settings for the HTTP output.
type BufferConfig struct {
	MaxSizeMB int      `yaml:"max_size_mb"`
	MaxAge    Duration `yaml:"max_age"`
	Dir       string   `yaml:"dir"`
}

// MetricsConfig holds self-metrics settings.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Sampler sources.
const (
	SourceDstat  = "dstat"
	SourceNative = "native"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Sampler: SamplerConfig{
			Source:   SourceDstat,
			Binary:   "dstat",
			Option:   "",
			Interval: Duration{30 * time.Second},
			TmpFile:  "/tmp/logstash-dstat.csv",
			Delay:    1,
			Count:    0,
		},
		Output: OutputConfig{
			Stdout:        true,
			QueueSize:     1000,
			BatchSize:     100,
			FlushInterval: Duration{5 * time.Second},
			Valkey: ValkeyConfig{
				Address: "localhost:6379",
				Key:     "dstat",
			},
			MQTT: MQTTConfig{
				Broker: "tcp://localhost:1883",
				Topic:  "dstat",
			},
		},
		Buffer: BufferConfig{
			MaxSizeMB: 50,
			MaxAge:    Duration{24 * time.Hour},
			Dir:       "./buffer",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// CLIOverrides holds values from command-line flags.
// Zero values are treated as "not set" and skipped.
type CLIOverrides struct {
	Option   string
	Interval time.Duration
	TmpFile  string
}

// Locate searches standard config file paths and returns the first one found.
// Returns empty string if no config file exists.
func Locate() string {
	candidates := configSearchPaths()
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Load reads configuration with the full precedence chain:
// CLI flags > env vars > YAML file > defaults.
//
// An empty path auto-discovers a file via Locate(). A path that does not
// exist is an error.
func Load(path string, cli CLIOverrides) (*Config, error) {
	if path == "" {
		path = Locate()
	}

	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg, err := LoadFromBytes(data)
	if err != nil {
		if path != "" {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		return nil, err
	}

	if cli.Option != "" {
		cfg.Sampler.Option = cli.Option
	}
	if cli.Interval > 0 {
		cfg.Sampler.Interval.Duration = cli.Interval
	}
	if cli.TmpFile != "" {
		cfg.Sampler.TmpFile = cli.TmpFile
	}

	return cfg, nil
}

// LoadFromBytes parses YAML configuration from a byte slice and merges with defaults.
// Environment variables override values from the byte slice.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config data: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WriteConfig serializes the config to a YAML file at the given path.
// Creates parent directories if needed. Durations are written in their
// string form ("30s") so the file loads back unchanged.
func WriteConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0640)
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) error {
	if v, ok := os.LookupEnv("DSTAT_AGENT_OPTION"); ok {
		cfg.Sampler.Option = v
	}
	if v := os.Getenv("DSTAT_AGENT_INTERVAL"); v != "" {
		d, err := ParseDuration(v)
		if err != nil {
			return fmt.Errorf("DSTAT_AGENT_INTERVAL: %w", err)
		}
		cfg.Sampler.Interval.Duration = d
	}
	if v := os.Getenv("DSTAT_AGENT_TMPFILE"); v != "" {
		cfg.Sampler.TmpFile = v
	}
	if v := os.Getenv("DSTAT_AGENT_HOSTNAME"); v != "" {
		cfg.Host.Hostname = v
	}
	if v := os.Getenv("DSTAT_AGENT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DSTAT_AGENT_HTTP_URL"); v != "" {
		cfg.Output.HTTP.URL = v
		cfg.Output.HTTP.Enabled = true
	}
	if v := os.Getenv("DSTAT_AGENT_HTTP_TOKEN"); v != "" {
		cfg.Output.HTTP.Token = v
	}
	if v := os.Getenv("DSTAT_AGENT_VALKEY_ADDR"); v != "" {
		cfg.Output.Valkey.Address = v
		cfg.Output.Valkey.Enabled = true
	}
	if v := os.Getenv("DSTAT_AGENT_MQTT_BROKER"); v != "" {
		cfg.Output.MQTT.Broker = v
		cfg.Output.MQTT.Enabled = true
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Sampler.Source {
	case SourceDstat:
		if c.Sampler.Binary == "" {
			return fmt.Errorf("sampler binary is required")
		}
	case SourceNative:
	default:
		return fmt.Errorf("unknown sampler source %q (expected %q or %q)",
			c.Sampler.Source, SourceDstat, SourceNative)
	}
	if c.Sampler.Interval.Duration <= 0 {
		return fmt.Errorf("sampler interval must be positive (got %s)", c.Sampler.Interval.Duration)
	}
	if c.Sampler.TmpFile == "" {
		return fmt.Errorf("sampler tmpfile is required")
	}
	if c.Sampler.Delay < 1 {
		return fmt.Errorf("sampler delay must be at least 1 (got %d)", c.Sampler.Delay)
	}
	if c.Sampler.Count < 0 {
		return fmt.Errorf("sampler count must not be negative (got %d)", c.Sampler.Count)
	}
	if c.Sampler.Timeout.Duration < 0 {
		return fmt.Errorf("sampler timeout must not be negative")
	}

	if !c.Output.Stdout && !c.Output.HTTP.Enabled && !c.Output.Valkey.Enabled && !c.Output.MQTT.Enabled {
		return fmt.Errorf("at least one output (stdout, http, valkey, mqtt) must be enabled")
	}
	if c.Output.HTTP.Enabled {
		if c.Buffer.MaxAge.Duration < 0 {
			return fmt.Errorf("buffer max_age must not be negative")
		}
		if c.Output.HTTP.URL == "" {
			return fmt.Errorf("http output URL is required")
		}
		if !strings.HasPrefix(c.Output.HTTP.URL, "https://") {
			// Allow localhost for development
			if !strings.Contains(c.Output.HTTP.URL, "localhost") && !strings.Contains(c.Output.HTTP.URL, "127.0.0.1") {
				return fmt.Errorf("http output URL must use HTTPS (got: %s)", c.Output.HTTP.URL)
			}
		}
	}
	if c.Output.Valkey.Enabled {
		if c.Output.Valkey.Address == "" {
			return fmt.Errorf("valkey output address is required")
		}
		if c.Output.Valkey.Key == "" {
			return fmt.Errorf("valkey output key is required")
		}
	}
	if c.Output.MQTT.Enabled {
		if c.Output.MQTT.Broker == "" {
			return fmt.Errorf("mqtt output broker is required")
		}
		if c.Output.MQTT.Topic == "" {
			return fmt.Errorf("mqtt output topic is required")
		}
		if c.Output.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt output qos must be 0, 1 or 2 (got %d)", c.Output.MQTT.QoS)
		}
	}
	return nil
}
