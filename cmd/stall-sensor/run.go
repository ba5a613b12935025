package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sweeney/stall-sensor/internal/config"
	"github.com/sweeney/stall-sensor/internal/feed"
	"github.com/sweeney/stall-sensor/internal/gpio"
	"github.com/sweeney/stall-sensor/internal/inference"
	"github.com/sweeney/stall-sensor/internal/logic"
	"github.com/sweeney/stall-sensor/internal/model"
	"github.com/sweeney/stall-sensor/internal/mqtt"
	"github.com/sweeney/stall-sensor/internal/report"
	"github.com/sweeney/stall-sensor/internal/status"
	"github.com/sweeney/stall-sensor/internal/store"
	"github.com/sweeney/stall-sensor/internal/web"
)

type loadFunc func(cmd *cobra.Command) (*config.Config, error)

func addPipelineFlags(fs *pflag.FlagSet) {
	fs.String("normalizer", "", "normalizer parameter file (YAML)")
	fs.String("classifier", "", "classifier model file (YAML)")
	fs.Int("window", config.DefaultWindow, "rows per inference window")
	fs.Int("every", config.DefaultEvery, "run inference on every Nth completed observation")
	fs.Float64("tick", config.DefaultTick, "sampling period in seconds")
	fs.Float64("threshold", logic.DefaultThreshold, "score above which a stall is predicted")
	fs.Duration("inference-timeout", 0, "classifier call timeout (0 disables)")
	fs.String("broker", config.DefaultBroker, "MQTT broker address (empty disables)")
	fs.Bool("gpio", false, "drive the alert GPIO line")
	fs.Int("gpio-pin", gpio.PinAlert, "BCM pin number for the alert line")
	fs.String("store", "", "SQLite decision log path (empty disables)")
	fs.String("http", config.DefaultHTTP, "HTTP status address (empty disables)")
	fs.Duration("heartbeat", config.DefaultHeartbeat, "heartbeat interval (0 disables)")
	fs.String("record", "", "append received updates to this JSONL file")
}

func newRunCmd(load loadFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Listen to the simulator property feed and predict stalls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			schema := logic.MustSchema(logic.DefaultFields...)
			listener, err := feed.NewPropertyListener(cfg.Feed.URL, schema, feed.DefaultNodes, cfg.Feed.Reconnect)
			if err != nil {
				return fmt.Errorf("init feed: %w", err)
			}
			return execute(cmd.Context(), cmd.OutOrStdout(), cfg, schema, listener, listener)
		},
	}
	cmd.Flags().String("feed-url", feed.DefaultURL, "simulator property listener websocket URL")
	addPipelineFlags(cmd.Flags())
	return cmd
}

func newReplayCmd(load loadFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay FILE",
		Short: "Run the predictor over a recorded JSONL feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open replay: %w", err)
			}
			defer f.Close()

			schema := logic.MustSchema(logic.DefaultFields...)
			return execute(cmd.Context(), cmd.OutOrStdout(), cfg, schema, feed.NewReplay(f, schema), nil)
		},
	}
	addPipelineFlags(cmd.Flags())
	return cmd
}

// connectionStatus reports whether a link is up.
type connectionStatus interface {
	IsConnected() bool
}

// execute wires the pipeline, its collaborators and reporters, then runs the
// supervisor loop until the feed ends, a signal arrives or a stage fails.
func execute(ctx context.Context, out io.Writer, cfg *config.Config, schema *logic.Schema, src feed.Source, feedStatus connectionStatus) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := cfg.RequireModel(); err != nil {
		return err
	}
	runID := uuid.NewString()

	normalizer, err := model.LoadScaler(cfg.Model.Normalizer, schema.Names())
	if err != nil {
		return fmt.Errorf("load normalizer: %w", err)
	}
	classifier, err := model.LoadLogistic(cfg.Model.Classifier, schema.Names(), cfg.Pipeline.Window)
	if err != nil {
		return fmt.Errorf("load classifier: %w", err)
	}
	pipeline, err := logic.NewPipeline(schema, cfg.Logic(), normalizer)
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}
	runner := inference.New(pipeline.Scheduler(), classifier, inference.Options{
		Timeout:   cfg.Pipeline.InferenceTimeout,
		QueueSize: cfg.Pipeline.Queue,
	})

	tracker := status.NewTracker(time.Now(), runID, statusConfig(cfg))

	var (
		publisher  mqtt.Publisher = nopPublisher{}
		mqttStatus connectionStatus
	)
	if cfg.MQTT.Broker != "" {
		rp, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID,
			RunID:      runID,
			BufferSize: cfg.MQTT.Buffer,
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer rp.Close()
		publisher, mqttStatus = rp, rp
	}

	reporters := []report.Named{
		{Name: "console", Reporter: report.NewConsole(out)},
		{Name: "tracker", Reporter: tracker},
		{Name: "mqtt", Reporter: report.Func(publisher.PublishDecision)},
	}

	if cfg.GPIO.Enabled {
		w, err := gpio.NewRealWriter(cfg.GPIO.Chip, cfg.GPIO.Pin)
		if err != nil {
			return fmt.Errorf("init gpio: %w", err)
		}
		defer w.Close()
		reporters = append(reporters, report.Named{Name: "gpio", Reporter: gpio.NewAlertLine(w)})
	}

	var decisionLog web.DecisionLog
	if cfg.Store.Path != "" {
		st, err := store.Open(cfg.Store.Path, runID)
		if err != nil {
			return fmt.Errorf("init store: %w", err)
		}
		defer st.Close()
		reporters = append(reporters, report.Named{Name: "store", Reporter: st})
		decisionLog = st
	}

	if cfg.Feed.Record != "" {
		f, err := os.OpenFile(cfg.Feed.Record, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open record file: %w", err)
		}
		defer f.Close()
		src = feed.NewRecorder(src, schema, f)
	}

	if cfg.HTTP != "" {
		srv := web.New(cfg.HTTP, tracker, decisionLog)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http server error", "err", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		slog.Info("http status server listening", "addr", cfg.HTTP)
	}

	s := &supervisor{
		pipeline:   pipeline,
		runner:     runner,
		reporter:   report.NewMulti(reporters...),
		publisher:  publisher,
		mqttStatus: mqttStatus,
		feedStatus: feedStatus,
		tracker:    tracker,
	}
	s.startup()

	slog.Info("started",
		"run_id", runID,
		"window", cfg.Pipeline.Window,
		"every", cfg.Pipeline.Every,
		"tick", cfg.Pipeline.Tick,
		"threshold", cfg.Pipeline.Threshold,
		"broker", cfg.MQTT.Broker)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := make(chan logic.FieldUpdate, 256)
	feedErr := make(chan error, 1)
	go func() { feedErr <- feed.Serialize(ctx, updates, src) }()

	var heartbeat <-chan time.Time
	if cfg.Heartbeat > 0 {
		t := time.NewTicker(cfg.Heartbeat)
		defer t.Stop()
		heartbeat = t.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return s.runLoop(ctx, updates, feedErr, heartbeat, sigCh)
}

func statusConfig(cfg *config.Config) status.Config {
	return status.Config{
		WindowSize:         cfg.Pipeline.Window,
		Every:              cfg.Pipeline.Every,
		Tick:               cfg.Pipeline.Tick,
		Threshold:          cfg.Pipeline.Threshold,
		InferenceTimeoutMs: cfg.Pipeline.InferenceTimeout.Milliseconds(),
		HeartbeatMs:        cfg.Heartbeat.Milliseconds(),
		FeedURL:            cfg.Feed.URL,
		Broker:             cfg.MQTT.Broker,
		HTTPPort:           cfg.HTTP,
	}
}

// nopPublisher stands in when MQTT is disabled.
type nopPublisher struct{}

func (nopPublisher) PublishDecision(logic.Decision) error { return nil }
func (nopPublisher) PublishSystem(mqtt.SystemEvent) error { return nil }
func (nopPublisher) Close() error                         { return nil }
