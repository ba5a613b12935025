package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/sweeney/stall-sensor/internal/inference"
	"github.com/sweeney/stall-sensor/internal/logic"
	"github.com/sweeney/stall-sensor/internal/mqtt"
	"github.com/sweeney/stall-sensor/internal/report"
	"github.com/sweeney/stall-sensor/internal/status"
)

// Shutdown reasons published with the SHUTDOWN system event.
const (
	reasonNormalization = "NORMALIZATION_ERROR"
	reasonInference     = "INFERENCE_ERROR"
	reasonTimeout       = "INFERENCE_TIMEOUT"
	reasonFeed          = "FEED_ERROR"
	reasonEndOfInput    = "END_OF_INPUT"
	reasonCancelled     = "CANCELLED"
)

// supervisor owns the pipeline and routes its output. Pipeline state is only
// touched from runLoop's goroutine.
type supervisor struct {
	pipeline   *logic.Pipeline
	runner     *inference.Runner
	reporter   report.Reporter
	publisher  mqtt.Publisher
	mqttStatus connectionStatus // nil when MQTT is disabled
	feedStatus connectionStatus // nil for sources without a connection
	tracker    *status.Tracker
}

// runLoop feeds updates through the pipeline and hands inference requests to
// the runner until the feed ends, a signal arrives or a stage fails. Decisions
// are reported in order from a separate goroutine so a full inference queue
// never waits on reporting.
func (s *supervisor) runLoop(ctx context.Context, updates <-chan logic.FieldUpdate, feedErr <-chan error, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- s.runner.Run(ctx) }()

	reported := make(chan struct{})
	go func() {
		defer close(reported)
		for d := range s.runner.Decisions() {
			s.reporter.Report(d)
		}
	}()

	// stop cancels the runner and waits until every emitted decision is reported.
	stop := func() {
		cancel()
		<-reported
	}

	in := updates
	for {
		select {
		case sg := <-sig:
			slog.Info("received signal, shutting down", "signal", sg)
			stop()
			s.shutdown(signalName(sg))
			return nil

		case <-ctx.Done():
			stop()
			s.shutdown(reasonCancelled)
			return nil

		case u, ok := <-in:
			if !ok {
				in = nil
				if err := <-feedErr; err != nil {
					stop()
					return s.fail(reasonFeed, fmt.Errorf("feed: %w", err))
				}
				slog.Info("feed: end of input, draining inference queue")
				s.runner.Close()
				continue
			}
			if err := s.process(ctx, u); err != nil {
				if errors.Is(err, inference.ErrStopped) {
					// The runner failed first; its error explains why.
					err = <-runErr
				}
				stop()
				if ctx.Err() != nil && err == nil {
					s.shutdown(reasonCancelled)
					return nil
				}
				return s.fail(reasonFor(err), err)
			}

		case err := <-runErr:
			<-reported
			if err != nil {
				return s.fail(reasonFor(err), err)
			}
			if ctx.Err() != nil {
				s.shutdown(reasonCancelled)
				return nil
			}
			s.shutdown(reasonEndOfInput)
			return nil

		case <-heartbeat:
			s.refresh()
			snap := s.tracker.Snapshot()
			slog.Info("heartbeat",
				"uptime", snap.Uptime().Truncate(time.Second),
				"completions", snap.Pipeline.Completions,
				"window", snap.Pipeline.WindowLen,
				"stalls", snap.Positives,
				"ok", snap.Negatives)
			if err := s.publisher.PublishSystem(mqtt.SystemEvent{
				Timestamp:  snap.Now,
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			}); err != nil {
				slog.Warn("heartbeat publish error", "err", err)
			}
		}
	}
}

// process runs one update through the pipeline and submits any resulting
// inference request. Errors are fatal.
func (s *supervisor) process(ctx context.Context, u logic.FieldUpdate) error {
	res, err := s.pipeline.Process(u)
	stats := s.pipeline.Stats()
	s.tracker.UpdatePipeline(stats)
	if err != nil {
		return err
	}
	if !res.Completed {
		return nil
	}

	switch res.Status {
	case logic.StatusWarmingUp:
		slog.Info("waiting...", "window", stats.WindowLen, "capacity", stats.WindowCap)
	case logic.StatusReady:
		if err := s.runner.Submit(ctx, *res.Request); err != nil {
			if errors.Is(err, inference.ErrStopped) {
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("submit: %w", err)
		}
		s.updateInference()
	}
	return nil
}

func (s *supervisor) updateInference() {
	st := s.runner.Stats()
	s.tracker.UpdateInference(status.InferenceInfo{
		Queued:    st.Queued,
		InFlight:  st.InFlight,
		Completed: st.Completed,
		LastTook:  st.LastTook,
	})
}

// refresh copies connection state and runner counters into the tracker.
func (s *supervisor) refresh() {
	if s.mqttStatus != nil {
		s.tracker.SetMQTTConnected(s.mqttStatus.IsConnected())
	}
	if s.feedStatus != nil {
		s.tracker.SetFeedConnected(s.feedStatus.IsConnected())
	}
	s.updateInference()
}

// startup publishes the retained STARTUP event with a full status snapshot.
func (s *supervisor) startup() {
	s.publishLifecycle("STARTUP", "")
}

func (s *supervisor) shutdown(reason string) {
	s.publishLifecycle("SHUTDOWN", reason)
}

func (s *supervisor) publishLifecycle(event, reason string) {
	s.refresh()
	snap := s.tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := s.publisher.PublishSystem(ev); err != nil {
		slog.Warn("failed to publish system event", "event", event, "err", err)
		return
	}
	slog.Info("published system event", "event", event, "reason", reason)
}

// fail reports a fatal stage error and returns it.
func (s *supervisor) fail(reason string, err error) error {
	slog.Error("fatal", "reason", reason, "err", err)
	s.shutdown(reason)
	return err
}

// reasonFor names the stage that produced a fatal error.
func reasonFor(err error) string {
	var ne *logic.NormalizationError
	switch {
	case errors.As(err, &ne):
		return reasonNormalization
	case errors.Is(err, logic.ErrInferenceTimeout):
		return reasonTimeout
	default:
		return reasonInference
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}
