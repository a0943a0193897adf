package play

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gigurra/mixdeck/cmd/mixer"
	"github.com/gigurra/mixdeck/cmd/mixer/mixutil"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const headlessPoll = 500 * time.Millisecond

// runHeadless plays every track and returns once none is playing, or
// stops everything when ctx is done.
func runHeadless(ctx context.Context, session *mixer.Session, w io.Writer, poll time.Duration) error {
	n, err := session.PlayAll(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Fprintln(w, "Nothing to play")
		return nil
	}
	writeStatusTable(w, session.Snapshot())

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			session.StopAll()
			writeStatusTable(w, session.Snapshot())
			return nil
		case <-ticker.C:
			if len(session.NowPlaying()) == 0 {
				writeStatusTable(w, session.Snapshot())
				return nil
			}
		}
	}
}

func trackStatusText(t mixer.TrackState) string {
	switch {
	case t.Failed:
		return text.FgHiRed.Sprint("failed")
	case t.Playing:
		return text.FgGreen.Sprint("playing")
	case t.Position > 0 && t.Position < t.Duration:
		return text.FgYellow.Sprint("paused")
	}
	return text.FgHiBlack.Sprint("stopped")
}

func writeStatusTable(w io.Writer, st mixer.State) {
	groups := make(map[int]string, len(st.Groups))
	for _, g := range st.Groups {
		groups[g.ID] = g.Name
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Footer = text.FormatDefault
	t.AppendHeader(table.Row{"ID", "Name", "Group", "Volume", "Status", "Position", "Flags"})
	for _, tr := range st.Tracks {
		group := ""
		if tr.GroupID != nil {
			group = groups[*tr.GroupID]
		}
		var flags []string
		if tr.Muted {
			flags = append(flags, "muted")
		}
		if tr.Loop {
			flags = append(flags, "loop")
		}
		t.AppendRow(table.Row{
			tr.ID,
			tr.File.Name,
			group,
			fmt.Sprintf("%d%%", tr.Volume),
			trackStatusText(tr),
			mixutil.FormatDuration(tr.Position) + " / " + mixutil.FormatDuration(tr.Duration),
			strings.Join(flags, " "),
		})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d track(s)", len(st.Tracks)), "", fmt.Sprintf("master %d%%", st.MasterVolume)})
	t.Render()
}
