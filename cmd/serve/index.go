package serve

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gigurra/mixdeck/cmd/mixer"
	"github.com/gigurra/mixdeck/cmd/mixer/mixutil"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(renderIndex(s.session.Snapshot())))
}

// renderIndex renders the control page for a snapshot. The page reloads
// itself whenever the event stream reports a change.
func renderIndex(st mixer.State) string {
	var b strings.Builder
	b.WriteString(pageHead)

	fmt.Fprintf(&b, `<header><h1>mixdeck</h1><span>master %d%%</span>
<button onclick="api('POST','/api/all/toggle')">play/pause all</button>
<button onclick="api('POST','/api/all/stop')">stop all</button>
<a href="/api/backup">export backup</a></header>
<div id="notice"></div>
`, st.MasterVolume)

	byGroup := map[int][]mixer.TrackState{}
	var ungrouped []mixer.TrackState
	for _, t := range st.Tracks {
		if t.GroupID == nil {
			ungrouped = append(ungrouped, t)
			continue
		}
		byGroup[*t.GroupID] = append(byGroup[*t.GroupID], t)
	}

	for _, g := range st.Groups {
		fmt.Fprintf(&b, `<section style="border-color:%s"><h2 style="background:%s">%s <small>(%d)</small></h2>
<div class="actions">
<button onclick="api('POST','/api/groups/%d/play')">play</button>
<button onclick="api('POST','/api/groups/%d/pause')">pause</button>
<button onclick="api('POST','/api/groups/%d/stop')">stop</button>
<button onclick="api('POST','/api/groups/%d/mute')">mute</button>
<button onclick="api('POST','/api/groups/%d/playlist/continuous')">continuous</button>
<button onclick="api('POST','/api/groups/%d/playlist/loop')">loop</button>
</div>
`, mixutil.EscapeHTML(mixutil.DarkerShade(g.Color)), mixutil.EscapeHTML(g.Color), mixutil.EscapeHTML(g.Name), g.Count,
			g.ID, g.ID, g.ID, g.ID, g.ID, g.ID)
		if !g.Collapsed {
			writeTracks(&b, byGroup[g.ID])
		}
		b.WriteString("</section>\n")
	}

	fmt.Fprintf(&b, "<section><h2>Ungrouped <small>(%d)</small></h2>\n", len(ungrouped))
	writeTracks(&b, ungrouped)
	b.WriteString("</section>\n")

	b.WriteString(pageTail)
	return b.String()
}

func writeTracks(b *strings.Builder, tracks []mixer.TrackState) {
	if len(tracks) == 0 {
		b.WriteString("<p class=\"empty\">No tracks</p>\n")
		return
	}
	b.WriteString("<ul>\n")
	for _, t := range tracks {
		class := ""
		switch {
		case t.Failed:
			class = "failed"
		case t.Playing:
			class = "playing"
		}
		flags := ""
		if t.Muted {
			flags += " muted"
		}
		if t.Loop {
			flags += " loop"
		}
		if t.Boosted {
			flags += " boosted"
		}
		fmt.Fprintf(b, `<li class="%s"><span class="name">%s</span> <span class="meta">%s / %s, %d%%%s</span>
<button onclick="api('POST','/api/tracks/%d/play')">play</button>
<button onclick="api('POST','/api/tracks/%d/pause')">pause</button>
<button onclick="api('POST','/api/tracks/%d/stop')">stop</button>
<button onclick="api('POST','/api/tracks/%d/mute')">mute</button>
<input type="range" min="0" max="200" value="%d" onchange="api('PUT','/api/tracks/%d/volume',{volume:+this.value})">
</li>
`, class, mixutil.EscapeHTML(t.File.Name),
			mixutil.FormatDuration(t.Position), mixutil.FormatDuration(t.Duration), t.Volume, flags,
			t.ID, t.ID, t.ID, t.ID, t.Volume, t.ID)
	}
	b.WriteString("</ul>\n")
}

const pageHead = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>mixdeck</title>
  <style>
    body { font-family: sans-serif; margin: 0; background: #f4f4f6; color: #222; }
    header { display: flex; gap: 8px; align-items: center; padding: 8px 12px; background: #222; color: #fff; }
    header h1 { font-size: 18px; margin: 0 12px 0 0; }
    header a { color: #9cf; }
    section { margin: 12px; border-left: 6px solid #ccc; background: #fff; border-radius: 4px; }
    section h2 { font-size: 15px; margin: 0; padding: 6px 10px; }
    .actions { padding: 6px 10px; }
    ul { list-style: none; margin: 0; padding: 0 10px 8px; }
    li { padding: 4px 0; border-bottom: 1px solid #eee; }
    li.playing .name { font-weight: bold; color: #0a7d2c; }
    li.failed .name { color: #b00020; text-decoration: line-through; }
    .meta, .empty { color: #777; font-size: 12px; }
    #notice { margin: 8px 12px; min-height: 1.2em; }
    #notice.success { color: #0a7d2c; } #notice.warning { color: #a66b00; }
    #notice.danger { color: #b00020; } #notice.info { color: #225; }
  </style>
</head>
<body>
`

const pageTail = `<script>
function api(method, path, body) {
  const opts = { method: method };
  if (body !== undefined) {
    opts.headers = { 'Content-Type': 'application/json' };
    opts.body = JSON.stringify(body);
  }
  return fetch(path, opts);
}
let reloadTimer = null;
const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
ws.onmessage = function (ev) {
  const msg = JSON.parse(ev.data);
  if (msg.type === 'notice') {
    const el = document.getElementById('notice');
    el.className = msg.notice.severity;
    el.textContent = msg.notice.message;
    sessionStorage.setItem('notice', JSON.stringify(msg.notice));
  } else if (msg.type === 'change') {
    clearTimeout(reloadTimer);
    reloadTimer = setTimeout(function () { location.reload(); }, 150);
  }
};
const last = sessionStorage.getItem('notice');
if (last) {
  const n = JSON.parse(last);
  const el = document.getElementById('notice');
  el.className = n.severity;
  el.textContent = n.message;
}
</script>
</body>
</html>
`
