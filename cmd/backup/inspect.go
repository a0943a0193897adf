package backup

import (
	"fmt"
	"io"
	"os"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/gigurra/mixdeck/cmd/common"
	mixbackup "github.com/gigurra/mixdeck/cmd/mixer/backup"
	"github.com/gigurra/mixdeck/cmd/mixer/mixutil"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type InspectParams struct {
	File string `pos:"true" help:"Backup file to inspect."`
}

func InspectCmd() *cobra.Command {
	return boa.CmdT[InspectParams]{
		Use:         "inspect <file>",
		Short:       "Print the groups and track settings in a backup",
		ParamEnrich: common.DefaultParamEnricher(),
		RunFunc: func(params *InspectParams, cmd *cobra.Command, args []string) {
			if err := runInspect(os.Stdout, params); err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "backup inspect: %v\n", err)
				os.Exit(1)
			}
		},
	}.ToCobra()
}

func runInspect(w io.Writer, params *InspectParams) error {
	doc, err := readDocument(params.File)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Backup version %s", doc.Version)
	if ts, err := doc.Time(); err == nil {
		fmt.Fprintf(w, ", created %s", ts.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(w, "\n\n")

	counts := map[string]int{}
	for _, s := range doc.AudioSettings {
		counts[groupName(s)]++
	}

	gt := table.NewWriter()
	gt.SetOutputMirror(w)
	gt.SetStyle(table.StyleLight)
	gt.AppendHeader(table.Row{"Group", "Color", "Tracks"})
	for _, g := range doc.Groups {
		color := g.Color
		if hex, err := mixutil.ColorHex(g.Color); err == nil {
			color = fmt.Sprintf("%s (%s)", g.Color, hex)
		}
		gt.AppendRow(table.Row{g.Name, color, counts[g.Name]})
	}
	gt.AppendRow(table.Row{"(ungrouped)", "", counts[""]})
	gt.Render()
	fmt.Fprintln(w)

	writeSettings(w, doc.AudioSettings, nil)
	return nil
}

// writeSettings prints one row per setting. With status, a trailing column
// is added from status(setting).
func writeSettings(w io.Writer, settings []mixbackup.AudioSetting, status func(mixbackup.AudioSetting) string) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	header := table.Row{"Name", "Key", "Group", "Volume", "Muted", "Loop"}
	if status != nil {
		header = append(header, "Status")
	}
	t.AppendHeader(header)
	for _, s := range settings {
		row := table.Row{s.Name, s.Key, groupName(s), fmt.Sprintf("%d%%", s.Volume), yesNo(s.IsMuted), yesNo(s.IsLoop)}
		if status != nil {
			row = append(row, status(s))
		}
		t.AppendRow(row)
	}
	t.Render()
}
