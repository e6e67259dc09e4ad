// Package cli implements the floodwatch command line interface.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/keralanet/floodwatch/internal/config"
	"github.com/keralanet/floodwatch/pkg/alerts"
	"github.com/keralanet/floodwatch/pkg/classifier"
	"github.com/keralanet/floodwatch/pkg/engine"
	"github.com/keralanet/floodwatch/pkg/source"
	"github.com/keralanet/floodwatch/pkg/store"
)

// Version is set at build time via ldflags.
var Version = "dev"

// defaultSeed keeps the synthetic fallback source deterministic across runs.
const defaultSeed = 42

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "floodwatch",
	Short: "District-level flood risk monitoring and alerting",
	Long: `Floodwatch evaluates flood risk for Kerala's districts from water level
and precipitation observations. It classifies each district's trailing
observation window, raises Yellow/Orange/Red alerts when the model is
confident enough, and fans notifications out to the configured channels
with cool-down based de-duplication.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.floodwatch/config.yaml)")
}

// loadConfig loads the configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// newLogger creates a structured logger from config.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}

// initStore creates the alert store from config.
func initStore(cfg *config.Config) (store.Store, error) {
	return store.NewSQLite(cfg.Storage.Path)
}

// initClassifier loads the model artifact, or the rule-based fallback when
// demo mode is requested.
func initClassifier(cfg *config.Config, demo bool) (classifier.Classifier, error) {
	if demo {
		return classifier.NewHeuristic(), nil
	}
	return classifier.NewLinearFromFile(cfg.Model.ArtifactPath)
}

// initProvider creates the observation source. Without a CSV path a seeded
// synthetic source over the configured districts is used.
func initProvider(cfg *config.Config) (source.Provider, error) {
	if cfg.Source.CSVPath != "" {
		return source.LoadCSV(cfg.Source.CSVPath)
	}
	now := time.Now().UTC()
	return source.NewSynthetic(cfg.CoordinateMap(), now.AddDate(0, 0, -60), now, defaultSeed), nil
}

// initNotifiers creates alert notifiers from config.
func initNotifiers(cfg *config.Config) ([]alerts.Notifier, error) {
	var notifiers []alerts.Notifier

	if cfg.Channels.Email.Enabled {
		notifiers = append(notifiers, alerts.NewEmailNotifier(
			cfg.Channels.Email.Host,
			cfg.Channels.Email.Port,
			cfg.Channels.Email.Username,
			cfg.Channels.Email.Password,
			cfg.Channels.Email.From,
			cfg.Channels.Email.Recipients,
		))
	}

	if cfg.Channels.Slack.Enabled {
		notifiers = append(notifiers, alerts.NewSlackNotifier(
			cfg.Channels.Slack.WebhookURL,
			cfg.Channels.Slack.Channel,
		))
	}

	if cfg.Channels.Webhook.Enabled {
		notifiers = append(notifiers, alerts.NewWebhookNotifier(
			cfg.Channels.Webhook.URL,
			cfg.Channels.Webhook.Secret,
		))
	}

	if cfg.Channels.Telegram.Enabled {
		tg, err := alerts.NewTelegramNotifier(cfg.Channels.Telegram.Token, cfg.Channels.Telegram.ChatID)
		if err != nil {
			return nil, fmt.Errorf("init telegram notifier: %w", err)
		}
		notifiers = append(notifiers, tg)
	}

	if cfg.Channels.Kafka.Enabled {
		notifiers = append(notifiers, alerts.NewKafkaNotifier(
			cfg.Channels.Kafka.Brokers,
			cfg.Channels.Kafka.Topic,
		))
	}

	return notifiers, nil
}

// initEngine creates a fully wired decision engine.
func initEngine(cfg *config.Config, demo bool, logger *slog.Logger) (*engine.Engine, store.Store, error) {
	cls, err := initClassifier(cfg, demo)
	if err != nil {
		return nil, nil, fmt.Errorf("init classifier: %w", err)
	}

	db, err := initStore(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init store: %w", err)
	}

	notifiers, err := initNotifiers(cfg)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	dispatcher := alerts.NewDispatcher(notifiers, logger)

	eng, err := engine.New(cls, db, dispatcher, engine.Config{
		Thresholds:  cfg.Thresholds.Map(),
		Cooldown:    cfg.Monitor.Cooldown,
		WindowSize:  cfg.Monitor.WindowDays,
		Coordinates: cfg.CoordinateMap(),
	}, logger)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return eng, db, nil
}
