// Package config loads daemon settings from flags, STALL_* environment
// variables and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sweeney/stall-sensor/internal/feed"
	"github.com/sweeney/stall-sensor/internal/gpio"
	"github.com/sweeney/stall-sensor/internal/inference"
	"github.com/sweeney/stall-sensor/internal/logic"
	"github.com/sweeney/stall-sensor/internal/mqtt"
)

// EnvPrefix is the prefix of environment overrides, e.g. STALL_PIPELINE_WINDOW.
const EnvPrefix = "STALL"

// Default values.
const (
	DefaultWindow    = 1000
	DefaultEvery     = 10
	DefaultTick      = 0.01
	DefaultBroker    = "tcp://localhost:1883"
	DefaultHTTP      = ":8080"
	DefaultHeartbeat = 15 * time.Minute
)

// Config holds all daemon settings.
type Config struct {
	Feed      FeedConfig     `mapstructure:"feed"`
	Model     ModelConfig    `mapstructure:"model"`
	Pipeline  PipelineConfig `mapstructure:"pipeline"`
	MQTT      MQTTConfig     `mapstructure:"mqtt"`
	GPIO      GPIOConfig     `mapstructure:"gpio"`
	Store     StoreConfig    `mapstructure:"store"`
	HTTP      string         `mapstructure:"http"`
	Heartbeat time.Duration  `mapstructure:"heartbeat"`
	Log       LogConfig      `mapstructure:"log"`
}

// FeedConfig configures the simulator property feed.
type FeedConfig struct {
	URL       string        `mapstructure:"url"`
	Reconnect time.Duration `mapstructure:"reconnect"`
	// Record, if set, appends every received update to this JSONL file.
	Record string `mapstructure:"record"`
}

// ModelConfig points at the normalizer and classifier parameter files.
type ModelConfig struct {
	Normalizer string `mapstructure:"normalizer"`
	Classifier string `mapstructure:"classifier"`
}

// PipelineConfig holds the windowing and inference constants.
type PipelineConfig struct {
	Window           int           `mapstructure:"window"`
	Every            int           `mapstructure:"every"`
	Tick             float64       `mapstructure:"tick"`
	Threshold        float64       `mapstructure:"threshold"`
	InferenceTimeout time.Duration `mapstructure:"inference_timeout"`
	Queue            int           `mapstructure:"queue"`
}

// MQTTConfig configures decision publishing. An empty broker disables it.
type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Buffer   int    `mapstructure:"buffer"`
}

// GPIOConfig configures the alert line.
type GPIOConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Chip    string `mapstructure:"chip"`
	Pin     int    `mapstructure:"pin"`
}

// StoreConfig configures the SQLite decision log. An empty path disables it.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("feed.url", feed.DefaultURL)
	v.SetDefault("feed.reconnect", feed.DefaultReconnect)
	v.SetDefault("feed.record", "")
	v.SetDefault("model.normalizer", "")
	v.SetDefault("model.classifier", "")
	v.SetDefault("pipeline.window", DefaultWindow)
	v.SetDefault("pipeline.every", DefaultEvery)
	v.SetDefault("pipeline.tick", DefaultTick)
	v.SetDefault("pipeline.threshold", logic.DefaultThreshold)
	v.SetDefault("pipeline.inference_timeout", time.Duration(0))
	v.SetDefault("pipeline.queue", inference.DefaultQueueSize)
	v.SetDefault("mqtt.broker", DefaultBroker)
	v.SetDefault("mqtt.client_id", "stall-sensor")
	v.SetDefault("mqtt.buffer", mqtt.DefaultBufferSize)
	v.SetDefault("gpio.enabled", false)
	v.SetDefault("gpio.chip", "gpiochip0")
	v.SetDefault("gpio.pin", gpio.PinAlert)
	v.SetDefault("store.path", "")
	v.SetDefault("http", DefaultHTTP)
	v.SetDefault("heartbeat", DefaultHeartbeat)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads the optional YAML file at path into v, decodes the merged
// settings and validates them.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Validate checks structural constraints.
func (c *Config) Validate() error {
	p := c.Pipeline
	if p.Window <= 0 {
		return errors.New("pipeline.window must be positive")
	}
	if p.Every < 1 {
		return errors.New("pipeline.every must be at least 1")
	}
	if !(p.Tick > 0) {
		return errors.New("pipeline.tick must be positive")
	}
	if p.Threshold < 0 || p.Threshold > 1 {
		return fmt.Errorf("pipeline.threshold must be within [0,1], got %v", p.Threshold)
	}
	if p.InferenceTimeout < 0 {
		return errors.New("pipeline.inference_timeout must not be negative")
	}
	if p.Queue <= 0 {
		return errors.New("pipeline.queue must be positive")
	}
	if c.MQTT.Broker != "" && c.MQTT.Buffer <= 0 {
		return errors.New("mqtt.buffer must be positive")
	}
	if c.GPIO.Enabled && c.GPIO.Pin < 0 {
		return fmt.Errorf("gpio.pin must not be negative, got %d", c.GPIO.Pin)
	}
	if c.Heartbeat < 0 {
		return errors.New("heartbeat must not be negative")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	return nil
}

// RequireModel reports an error unless both model files are configured.
func (c *Config) RequireModel() error {
	if c.Model.Normalizer == "" {
		return errors.New("config: model.normalizer is required")
	}
	if c.Model.Classifier == "" {
		return errors.New("config: model.classifier is required")
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}

// Logic returns the core pipeline settings.
func (c *Config) Logic() logic.Config {
	return logic.Config{
		WindowSize: c.Pipeline.Window,
		Every:      c.Pipeline.Every,
		Tick:       c.Pipeline.Tick,
		Threshold:  c.Pipeline.Threshold,
	}
}
