package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/uv-lamp/internal/lamp"
	"github.com/sweeney/uv-lamp/internal/status"
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
	"stateClass": func(s lamp.State) string {
		switch {
		case s == lamp.StateRunning:
			return "on"
		case s == lamp.StateOff:
			return "off"
		case s == lamp.StateFailedOff:
			return "fault"
		}
		return "unknown"
	},
	"distance": func(cm int) string {
		if cm < 0 {
			return "none"
		}
		return fmt.Sprintf("%d cm", cm)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>UV Lamp</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.fault { color: red; font-weight: bold; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>UV Lamp</h1>

<h2>Lamp</h2>
<table>
<tr><th>State</th><td id="lamp-state" class="{{stateClass .Lamp.State}}">{{.Lamp.State}}</td></tr>
<tr><th>Requested</th><td>{{.Lamp.Requested}}</td></tr>
<tr><th>Commanded</th><td>{{.Lamp.Commanded}}</td></tr>
<tr><th>Reported</th><td>{{if .Lamp.ReportedValid}}{{.Lamp.Reported}}{{else}}UNKNOWN{{end}} ({{.Lamp.ReportedHz}} Hz)</td></tr>
<tr><th>Type</th><td>{{.Lamp.Type}}</td></tr>
<tr><th>12V rail</th><td>{{if .Lamp.Rail12V}}on{{else}}off{{end}} ({{printf "%.2f" .Lamp.Volts12}} V{{if not .Lamp.PowerOK}}, out of range{{end}})</td></tr>
<tr><th>24V rail</th><td>{{if .Lamp.Rail24V}}on{{else}}off{{end}}</td></tr>
</table>

<h2>Safety</h2>
<table>
<tr><th>Interlock</th><td>{{if .Safety.Enabled}}enabled{{else}}disabled{{end}}</td></tr>
<tr><th>Distance</th><td id="distance">{{distance .Radar.DistanceCm}}</td></tr>
<tr><th>Tilt</th><td>{{.Safety.TiltDeg}}&deg;</td></tr>
<tr><th>Cap</th><td>{{.Safety.Cap}}</td></tr>
<tr><th>Decision</th><td>{{.Safety.Reason}}</td></tr>
{{if not .Radar.LastReport.IsZero}}<tr><th>Last report</th><td id="report">{{.Radar.Report.TargetState}}: M {{.Radar.Report.MovingDistanceCm}} cm/{{.Radar.Report.MovingEnergy}}, S {{.Radar.Report.StationaryDistanceCm}} cm/{{.Radar.Report.StationaryEnergy}}, DD {{.Radar.Report.DetectionDistanceCm}} cm</td></tr>{{end}}
<tr><th>Radar frames</th><td>{{.Radar.Stats.Frames}} ({{.Radar.Stats.Errors}} bad, {{.Radar.Stats.Reinits}} reinits)</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}} {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Transitions</th><td>{{.Counts.Transitions}}</td></tr>
<tr><th>Safety commits</th><td>{{.Counts.SafetyCommits}}</td></tr>
<tr><th>Failed off</th><td>{{.Counts.FailedOff}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Boot ID</th><td>{{.Config.BootID}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>Policy</th><td>{{.Config.Policy}}{{if .Config.Diffused}} (diffused){{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
