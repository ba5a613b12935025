package status

import (
	"fmt"
	"io"
	"sort"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// MetricsFormat is the exposition format written by WriteMetrics.
var MetricsFormat = expfmt.NewFormat(expfmt.TypeTextPlain)

// MetricFamilies converts a snapshot into Prometheus metric families,
// sorted by name.
func MetricFamilies(snap Snapshot) []*dto.MetricFamily {
	p := snap.Pipeline
	last := 0.0
	if snap.LastDecision != nil {
		last = snap.LastDecision.Score
	}

	fams := []*dto.MetricFamily{
		counter("stall_sensor_updates_total", "Field updates received from the feed.", float64(p.Updates)),
		counter("stall_sensor_completions_total", "Observations completed by the accumulator.", float64(p.Completions)),
		counter("stall_sensor_rows_total", "Rows pushed into the window, including gap fill.", float64(p.RowsPushed)),
		counter("stall_sensor_inference_requests_total", "Inference requests issued by the scheduler.", float64(p.Requests)),
		counter("stall_sensor_inference_completed_total", "Inference calls completed.", float64(snap.Inference.Completed)),
		gauge("stall_sensor_window_rows", "Rows currently held in the window.", float64(p.WindowLen)),
		gauge("stall_sensor_window_capacity", "Window capacity.", float64(p.WindowCap)),
		gauge("stall_sensor_pending_fields", "Fields present in the pending observation.", float64(p.Pending)),
		gauge("stall_sensor_inference_queue", "Requests waiting for the classifier.", float64(snap.Inference.Queued)),
		gauge("stall_sensor_inference_last_seconds", "Duration of the last classifier call.", snap.Inference.LastTook.Seconds()),
		gauge("stall_sensor_last_score", "Score of the most recent decision.", last),
		gauge("stall_sensor_uptime_seconds", "Seconds since start.", snap.Uptime().Seconds()),
		gauge("stall_sensor_mqtt_connected", "1 if the MQTT broker connection is open.", boolValue(snap.MQTTConnected)),
		gauge("stall_sensor_feed_connected", "1 if the simulator feed is connected.", boolValue(snap.FeedConnected)),
		{
			Name: proto.String("stall_sensor_decisions_total"),
			Help: proto.String("Decisions made, by outcome."),
			Type: dto.MetricType_COUNTER.Enum(),
			Metric: []*dto.Metric{
				labelled("outcome", "stall", &dto.Counter{Value: proto.Float64(float64(snap.Positives))}),
				labelled("outcome", "ok", &dto.Counter{Value: proto.Float64(float64(snap.Negatives))}),
			},
		},
	}
	sort.Slice(fams, func(i, j int) bool { return fams[i].GetName() < fams[j].GetName() })
	return fams
}

// WriteMetrics writes the snapshot in Prometheus text exposition format.
func WriteMetrics(w io.Writer, snap Snapshot) error {
	enc := expfmt.NewEncoder(w, MetricsFormat)
	for _, mf := range MetricFamilies(snap) {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

func counter(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{Counter: &dto.Counter{Value: proto.Float64(v)}}},
	}
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: proto.Float64(v)}}},
	}
}

func labelled(name, value string, c *dto.Counter) *dto.Metric {
	return &dto.Metric{
		Label:   []*dto.LabelPair{{Name: proto.String(name), Value: proto.String(value)}},
		Counter: c,
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
