// Package config loads and validates the floodwatch configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/keralanet/floodwatch/pkg/model"
)

// ConfigError marks configuration problems that must halt startup.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Config holds all floodwatch configuration.
type Config struct {
	Monitor    MonitorConfig                `mapstructure:"monitor"`
	Thresholds ThresholdConfig              `mapstructure:"thresholds"`
	Districts  map[string]model.Coordinates `mapstructure:"districts"`
	Model      ModelConfig                  `mapstructure:"model"`
	Source     SourceConfig                 `mapstructure:"source"`
	Storage    StorageConfig                `mapstructure:"storage"`
	Server     ServerConfig                 `mapstructure:"server"`
	Channels   ChannelsConfig               `mapstructure:"channels"`
	Logging    LoggingConfig                `mapstructure:"logging"`
}

// MonitorConfig defines the evaluation loop settings.
type MonitorConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	Cooldown   time.Duration `mapstructure:"cooldown"`
	WindowDays int           `mapstructure:"window_days"`
}

// ThresholdConfig maps alert levels to minimum actionable confidence.
type ThresholdConfig struct {
	Yellow float64 `mapstructure:"yellow"`
	Orange float64 `mapstructure:"orange"`
	Red    float64 `mapstructure:"red"`
}

// Map returns the thresholds keyed by alert level.
func (t ThresholdConfig) Map() map[model.AlertLevel]float64 {
	return map[model.AlertLevel]float64{
		model.LevelYellow: t.Yellow,
		model.LevelOrange: t.Orange,
		model.LevelRed:    t.Red,
	}
}

// ModelConfig locates the classifier artifact.
type ModelConfig struct {
	ArtifactPath string `mapstructure:"artifact_path"`
}

// SourceConfig defines where observations come from.
type SourceConfig struct {
	CSVPath string `mapstructure:"csv_path"`
}

// StorageConfig defines database settings.
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig defines the read-only HTTP API settings.
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// ChannelsConfig defines notification channel integrations.
type ChannelsConfig struct {
	Email    EmailConfig    `mapstructure:"email"`
	Slack    SlackConfig    `mapstructure:"slack"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
}

// EmailConfig defines SMTP settings.
type EmailConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	Host       string   `mapstructure:"host"`
	Port       int      `mapstructure:"port"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	From       string   `mapstructure:"from"`
	Recipients []string `mapstructure:"recipients"`
}

// SlackConfig defines Slack webhook settings.
type SlackConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
}

// WebhookConfig defines generic webhook settings.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Secret  string `mapstructure:"secret"`
}

// TelegramConfig defines Telegram bot settings.
type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
	ChatID  int64  `mapstructure:"chat_id"`
}

// KafkaConfig defines Kafka topic settings.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DistrictList returns the configured districts in map iteration-independent
// sorted order.
func (c *Config) DistrictList() []model.District {
	out := make([]model.District, 0, len(c.Districts))
	for name := range c.Districts {
		out = append(out, model.District(name))
	}
	sortDistricts(out)
	return out
}

// CoordinateMap returns the district coordinates keyed by model.District.
func (c *Config) CoordinateMap() map[model.District]model.Coordinates {
	out := make(map[model.District]model.Coordinates, len(c.Districts))
	for name, coords := range c.Districts {
		out[model.District(name)] = coords
	}
	return out
}

func sortDistricts(d []model.District) {
	sort.Slice(d, func(i, j int) bool { return d[i] < d[j] })
}

// Load reads configuration from file and environment variables.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("find home directory: %w", err)
		}

		v.AddConfigPath(filepath.Join(home, ".floodwatch"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Defaults
	home, _ := os.UserHomeDir()
	v.SetDefault("monitor.interval", "30m")
	v.SetDefault("monitor.cooldown", "6h")
	v.SetDefault("monitor.window_days", 7)
	v.SetDefault("thresholds.yellow", 0.5)
	v.SetDefault("thresholds.orange", 0.6)
	v.SetDefault("thresholds.red", 0.7)
	v.SetDefault("model.artifact_path", "model.yaml")
	v.SetDefault("storage.path", filepath.Join(home, ".floodwatch", "floodwatch.db"))
	v.SetDefault("server.listen", ":8090")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("channels.email.port", 587)
	v.SetDefault("channels.slack.channel", "#flood-alerts")
	v.SetDefault("channels.kafka.topic", "flood-alerts")

	// Environment variables
	v.SetEnvPrefix("FLOODWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Viper lowercases map keys, so district names are restored to their
	// canonical spelling here. An empty district map falls back to the
	// fourteen Kerala districts.
	if len(cfg.Districts) == 0 {
		cfg.Districts = make(map[string]model.Coordinates, len(defaultDistricts))
		for name, coords := range defaultDistricts {
			cfg.Districts[name] = coords
		}
	} else {
		canonical := make(map[string]model.Coordinates, len(cfg.Districts))
		for name, coords := range cfg.Districts {
			canonical[canonicalDistrict(name)] = coords
		}
		cfg.Districts = canonical
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func canonicalDistrict(name string) string {
	for known := range defaultDistricts {
		if strings.EqualFold(known, name) {
			return known
		}
	}
	return name
}

// Validate checks every recognized option once at startup. Any violation is
// a ConfigError and fatal.
func (c *Config) Validate() error {
	if c.Monitor.Interval <= 0 {
		return &ConfigError{Field: "monitor.interval", Reason: "must be positive"}
	}
	if c.Monitor.Cooldown < 0 {
		return &ConfigError{Field: "monitor.cooldown", Reason: "must not be negative"}
	}
	if c.Monitor.WindowDays < 1 {
		return &ConfigError{Field: "monitor.window_days", Reason: "must be at least 1"}
	}
	for field, value := range map[string]float64{
		"thresholds.yellow": c.Thresholds.Yellow,
		"thresholds.orange": c.Thresholds.Orange,
		"thresholds.red":    c.Thresholds.Red,
	} {
		if value < 0 || value > 1 {
			return &ConfigError{Field: field, Reason: "must be in [0, 1]"}
		}
	}
	if len(c.Districts) == 0 {
		return &ConfigError{Field: "districts", Reason: "at least one district is required"}
	}
	for name, coords := range c.Districts {
		if coords.Latitude < -90 || coords.Latitude > 90 {
			return &ConfigError{Field: "districts." + name + ".latitude", Reason: "must be in [-90, 90]"}
		}
		if coords.Longitude < -180 || coords.Longitude > 180 {
			return &ConfigError{Field: "districts." + name + ".longitude", Reason: "must be in [-180, 180]"}
		}
	}
	if c.Channels.Email.Enabled && (c.Channels.Email.Host == "" || len(c.Channels.Email.Recipients) == 0) {
		return &ConfigError{Field: "channels.email", Reason: "host and recipients required when email is enabled"}
	}
	if c.Channels.Slack.Enabled && c.Channels.Slack.WebhookURL == "" {
		return &ConfigError{Field: "channels.slack.webhook_url", Reason: "required when slack is enabled"}
	}
	if c.Channels.Webhook.Enabled && c.Channels.Webhook.URL == "" {
		return &ConfigError{Field: "channels.webhook.url", Reason: "required when webhook is enabled"}
	}
	if c.Channels.Telegram.Enabled && (c.Channels.Telegram.Token == "" || c.Channels.Telegram.ChatID == 0) {
		return &ConfigError{Field: "channels.telegram", Reason: "token and chat_id required when telegram is enabled"}
	}
	if c.Channels.Kafka.Enabled && len(c.Channels.Kafka.Brokers) == 0 {
		return &ConfigError{Field: "channels.kafka.brokers", Reason: "required when kafka is enabled"}
	}
	return nil
}

// defaultDistricts are Kerala's 14 districts.
var defaultDistricts = map[string]model.Coordinates{
	"Thiruvananthapuram": {Latitude: 8.5241, Longitude: 76.9366},
	"Kollam":             {Latitude: 8.8932, Longitude: 76.6141},
	"Alappuzha":          {Latitude: 9.4981, Longitude: 76.3388},
	"Kottayam":           {Latitude: 9.5916, Longitude: 76.5222},
	"Ernakulam":          {Latitude: 10.0827, Longitude: 76.2711},
	"Thrissur":           {Latitude: 10.5276, Longitude: 76.2144},
	"Palakkad":           {Latitude: 10.7867, Longitude: 76.6548},
	"Malappuram":         {Latitude: 11.2588, Longitude: 76.3183},
	"Kozhikode":          {Latitude: 11.2588, Longitude: 75.7804},
	"Wayanad":            {Latitude: 11.6854, Longitude: 76.1320},
	"Kannur":             {Latitude: 11.8745, Longitude: 75.3704},
	"Kasaragod":          {Latitude: 12.4990, Longitude: 75.0577},
	"Pathanamthitta":     {Latitude: 9.2646, Longitude: 76.7874},
	"Idukki":             {Latitude: 9.8501, Longitude: 77.0166},
}
