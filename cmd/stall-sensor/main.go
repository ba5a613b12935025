// Command stall-sensor listens to a flight simulator's property feed and
// predicts stalled descents from a sliding window of recent flight data.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sweeney/stall-sensor/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	var cfgFile string

	root := &cobra.Command{
		Use:           "stall-sensor",
		Short:         "Predict stalled descents from live flight simulator telemetry",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "text", "log format (text, json)")

	load := func(cmd *cobra.Command) (*config.Config, error) {
		bindFlags(v, cmd.Flags())
		cfg, err := config.Load(v, cfgFile)
		if err != nil {
			return nil, err
		}
		if err := setupLogging(cmd.ErrOrStderr(), cfg.Log); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	root.AddCommand(
		newRunCmd(load),
		newReplayCmd(load),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version)
			return err
		},
	}
}

// setupLogging installs the default slog logger.
func setupLogging(w io.Writer, lc config.LogConfig) error {
	level, err := config.ParseLevel(lc.Level)
	if err != nil {
		return err
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if lc.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"log-level":         "log.level",
	"log-format":        "log.format",
	"feed-url":          "feed.url",
	"record":            "feed.record",
	"normalizer":        "model.normalizer",
	"classifier":        "model.classifier",
	"window":            "pipeline.window",
	"every":             "pipeline.every",
	"tick":              "pipeline.tick",
	"threshold":         "pipeline.threshold",
	"inference-timeout": "pipeline.inference_timeout",
	"broker":            "mqtt.broker",
	"gpio":              "gpio.enabled",
	"gpio-pin":          "gpio.pin",
	"store":             "store.path",
	"http":              "http",
	"heartbeat":         "heartbeat",
}

// bindFlags makes each flag of the executing command override its config key.
// Binding happens at execution time because viper holds one flag per key.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}
