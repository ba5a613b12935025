package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/stall-sensor/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stateClass": func(s string) string {
		switch s {
		case "STALL_PREDICTED":
			return "stall"
		case "OK":
			return "ok"
		default:
			return "waiting"
		}
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="2">
<title>Stall Sensor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.stall { color: red; font-weight: bold; }
.ok { color: green; font-weight: bold; }
.waiting { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Stall Sensor</h1>

<h2>Prediction</h2>
<table>
<tr><th>State</th><td id="state" class="{{stateClass .State}}">{{.State}}</td></tr>
{{with .LastDecision}}<tr><th>Score</th><td>{{printf "%.3f" .Score}}</td></tr>
<tr><th>At</th><td>{{printf "%.2f" .Timestamp}}s (seq {{.Seq}})</td></tr>{{end}}
<tr><th>Stalls / OK</th><td>{{.Positives}} / {{.Negatives}}</td></tr>
</table>

<h2>Pipeline</h2>
<table>
<tr><th>Window</th><td>{{.Pipeline.WindowLen}} / {{.Pipeline.WindowCap}}{{if .Ready}} (ready){{else}} (waiting...){{end}}</td></tr>
<tr><th>Updates</th><td>{{.Pipeline.Updates}}</td></tr>
<tr><th>Completions</th><td>{{.Pipeline.Completions}}</td></tr>
<tr><th>Rows</th><td>{{.Pipeline.RowsPushed}}</td></tr>
<tr><th>Inference queue</th><td>{{.Inference.Queued}}{{if .Inference.InFlight}} (running){{end}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>Feed</th><td class="{{if .FeedConnected}}connected{{else}}disconnected{{end}}">{{if .FeedConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Feed URL</th><td>{{.Config.FeedURL}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Run</th><td>{{.RunID}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Window size</th><td>{{.Config.WindowSize}} rows @ {{.Config.Tick}}s</td></tr>
<tr><th>Cadence</th><td>every {{.Config.Every}} observations</td></tr>
<tr><th>Threshold</th><td>{{.Config.Threshold}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() and Ready() methods but the template is fed plain fields.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Ready  bool
		State  string
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Ready:    snap.Ready(),
		State:    status.State(snap),
	}
	return indexTmpl.Execute(w, data)
}
