// Package config loads the benchmark's own configuration surface: the
// streaming server's bind address, per-run termination predicates, the
// scenario/concurrency matrix the scheduler iterates, and a few ambient
// knobs. It never reaches into an adapter's or sampler's own configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/basetenlabs/loadbench/internal/util"
)

// validLogLevels enumerates the zap level names Load accepts for LogLevel.
var validLogLevels = []string{"debug", "info", "warn", "error"}

// Config is the full set of options the core consumes, all optional with
// defaults.
type Config struct {
	Port            int    `mapstructure:"port" yaml:"port"`
	Host            string `mapstructure:"host" yaml:"host"`
	EnableStreaming bool   `mapstructure:"enable_streaming" yaml:"enable_streaming"`

	MaxRequestsPerRun int           `mapstructure:"max_requests_per_run" yaml:"max_requests_per_run"`
	MaxTimePerRun     time.Duration `mapstructure:"max_time_per_run" yaml:"max_time_per_run"`
	NumConcurrency    []int         `mapstructure:"num_concurrency" yaml:"num_concurrency"`
	TrafficScenario   []string      `mapstructure:"traffic_scenario" yaml:"traffic_scenario"`

	TargetURL        string `mapstructure:"target_url" yaml:"target_url"`
	Model            string `mapstructure:"model" yaml:"model"`
	DisableStreaming bool   `mapstructure:"disable_streaming" yaml:"disable_streaming"`
	PlainText        bool   `mapstructure:"plain_text" yaml:"plain_text"`

	// FailureThreshold is forwarded to runner.Config.FailureThreshold, an
	// optional persistent-5xx failure predicate. Zero disables it.
	FailureThreshold int `mapstructure:"failure_threshold" yaml:"failure_threshold"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() Config {
	return Config{
		Port:              8080,
		Host:              "0.0.0.0",
		EnableStreaming:   true,
		MaxRequestsPerRun: 100,
		MaxTimePerRun:     5 * time.Minute,
		NumConcurrency:    []int{1, 4, 8},
		TrafficScenario:   []string{"D(100,100)"},
		LogLevel:          "info",
	}
}

// Load reads an optional YAML config file (path from the LOADBENCH_CONFIG
// env var, or the explicit path argument when non-empty) layered over
// Default(), then applies LOADBENCH_-prefixed environment overrides. A
// missing file is not an error — every field is optional.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("LOADBENCH")
	v.AutomaticEnv()
	// Unmarshal only sees keys viper knows about, so bind each one explicitly
	// for LOADBENCH_<KEY> overrides to apply without a config file.
	for _, key := range []string{
		"port", "host", "enable_streaming", "max_requests_per_run", "max_time_per_run",
		"num_concurrency", "traffic_scenario", "target_url", "model", "disable_streaming",
		"plain_text", "failure_threshold", "log_level",
	} {
		_ = v.BindEnv(key)
	}

	if path == "" {
		path = os.Getenv("LOADBENCH_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, statErr := os.Stat(path); statErr == nil {
				return cfg, fmt.Errorf("config: read %s: %w", path, err)
			}
			// File named but absent: fall through to defaults + env.
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("config: unmarshal: %w", err)
	}
	if !util.ContainsString(validLogLevels, cfg.LogLevel) {
		return cfg, fmt.Errorf("config: log_level %q is not one of %v", cfg.LogLevel, validLogLevels)
	}
	return cfg, nil
}

// Addr returns the host:port the streaming server should bind.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WriteDefault writes Default() to path as YAML, for `-init-config`-style
// bootstrapping of a new benchmark config file. Uses yaml.v3 directly since
// viper only reads config files, it doesn't write them.
func WriteDefault(path string) error {
	out, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("config: marshal default: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
