package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/pump-controller/internal/status"
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
	"hz": func(f float64) string {
		return fmt.Sprintf("%.1f", f)
	},
	"flag": func(flags []bool, i int) bool {
		return i < len(flags) && flags[i]
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Pump Controller</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 720px; margin: 1.5em auto; padding: 0 1em; color: #222; }
h1 { font-size: 1.3em; margin-bottom: 0.2em; }
h2 { font-size: 1.05em; margin: 1.4em 0 0.3em; color: #555; }
table { border-collapse: collapse; width: 100%; }
th, td { text-align: left; padding: 3px 10px; border-bottom: 1px solid #e4e4e4; font-family: monospace; }
th { width: 35%; font-weight: normal; color: #666; }
.running { color: #0a7a0a; font-weight: bold; }
.stopped { color: #999; }
.link-ok { color: #0a7a0a; }
.link-down { color: #c00; font-weight: bold; }
#feed { display: inline-block; width: 9px; height: 9px; border-radius: 50%; margin-left: 8px; background: #e0a000; }
#feed.live { background: #0a7a0a; }
#feed.lost { background: #c00; }
.controls button { font-family: monospace; min-width: 5em; padding: 4px 8px; margin-right: 6px; }
</style>
</head>
<body>
<h1>Pump Controller<span id="feed" title="connecting"></span></h1>

<h2>Control</h2>
<table>
<tr><th>Pressure</th><td id="pressure">{{printf "%.1f" .PressureKPa}} kPa</td></tr>
<tr><th>Pending</th><td id="pending">{{.Command.Pending}} Hz</td></tr>
<tr><th>Active</th><td id="active">{{.Command.Active}} Hz</td></tr>
<tr><th>Running</th><td id="running" class="{{if .Command.Running}}running{{else}}stopped{{end}}">{{if .Command.Running}}yes{{else}}no{{end}}</td></tr>
</table>
<p class="controls">
<button onclick="send('down')">-1 Hz</button>
<button onclick="send('up')">+1 Hz</button>
<button onclick="send('set')">Set</button>
<button onclick="send('stop')">Stop</button>
</p>

<h2>Channels</h2>
<table>
<tr><th>Channel</th><th>Output</th><th>Link</th></tr>
{{range $i, $hz := .Frequencies}}<tr><td>{{$i}}{{if not (flag $.Available $i)}} (unavailable){{end}}</td><td id="hz-{{$i}}">{{hz $hz}} Hz</td><td id="link-{{$i}}" class="{{if flag $.Connected $i}}link-ok{{else}}link-down{{end}}">{{if flag $.Connected $i}}connected{{else}}disconnected{{end}}</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}link-ok{{else}}link-down{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Bus reads</th><td>{{.Bus.Reads}} ({{.Bus.Failures}} failed)</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Monitor</th><td>{{.Config.MonitorIntervalUs}}us</td></tr>
<tr><th>Aggregator</th><td>{{.Config.AggregatorIntervalUs}}us</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>Backend</th><td>{{.Config.Backend}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
<script>
function send(name) {
  fetch("/command/" + name, { method: "POST" });
}
(function() {
  var feed = document.getElementById("feed");
  function setFeed(cls, title) {
    feed.className = cls;
    feed.title = title;
  }
  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/live");
    ws.onopen = function() { setFeed("live", "live"); };
    ws.onclose = function() { setFeed("lost", "offline"); setTimeout(connect, 2000); };
    ws.onmessage = function(ev) {
      try {
        var s = JSON.parse(ev.data).status;
        document.getElementById("pressure").textContent = s.pressure_kpa.toFixed(1) + " kPa";
        document.getElementById("pending").textContent = s.pending_hz + " Hz";
        document.getElementById("active").textContent = s.active_hz + " Hz";
        var run = document.getElementById("running");
        run.textContent = s.running ? "yes" : "no";
        run.className = s.running ? "running" : "stopped";
        s.channels.forEach(function(c) {
          var hz = document.getElementById("hz-" + c.index);
          var link = document.getElementById("link-" + c.index);
          if (hz) hz.textContent = c.output_hz.toFixed(1) + " Hz";
          if (link) {
            link.textContent = c.connected ? "connected" : "disconnected";
            link.className = c.connected ? "link-ok" : "link-down";
          }
        });
      } catch (e) {}
    };
  }
  connect();
})();
</script>
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
