package backup

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/gigurra/mixdeck/cmd/common"
	mixbackup "github.com/gigurra/mixdeck/cmd/mixer/backup"
	"github.com/gigurra/mixdeck/cmd/mixer/loader"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var errMissing = errors.New("backup references files that were not found")

type CheckParams struct {
	File   string   `pos:"true" help:"Backup file to check."`
	Paths  []string `pos:"true" optional:"true" help:"Audio files or directories the backup would be applied to." default:"."`
	Strict bool     `short:"s" optional:"true" help:"Exit with an error if any backup entry has no matching file."`
}

func CheckCmd() *cobra.Command {
	return boa.CmdT[CheckParams]{
		Use:         "check <file> [paths...]",
		Short:       "Report which backup entries match the given audio files",
		ParamEnrich: common.DefaultParamEnricher(),
		RunFunc: func(params *CheckParams, cmd *cobra.Command, args []string) {
			if err := runCheck(os.Stdout, params); err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "backup check: %v\n", err)
				os.Exit(1)
			}
		},
	}.ToCobra()
}

// CheckResult is the reconciliation of a backup with files on disk.
type CheckResult struct {
	Matched   []mixbackup.AudioSetting
	Missing   []mixbackup.Missing
	Unmatched []string
}

// Check matches a backup against file names the same way an import does.
func Check(doc *mixbackup.Document, names []string) CheckResult {
	plan := mixbackup.NewPlan(doc, names)
	missing := lo.SliceToMap(plan.Missing, func(m mixbackup.Missing) (string, bool) { return m.Key, true })

	var res CheckResult
	res.Missing = plan.Missing
	for _, s := range doc.AudioSettings {
		if !missing[s.Key] {
			res.Matched = append(res.Matched, s)
		}
	}
	for _, n := range names {
		if _, ok := plan.Lookup(n); !ok {
			res.Unmatched = append(res.Unmatched, n)
		}
	}
	return res
}

func runCheck(w io.Writer, params *CheckParams) error {
	doc, err := readDocument(params.File)
	if err != nil {
		return err
	}

	var names []string
	for _, p := range params.Paths {
		files, err := loader.Expand(p)
		if err != nil {
			return err
		}
		for _, f := range files {
			names = append(names, filepath.Base(f))
		}
	}

	res := Check(doc, names)
	missing := lo.SliceToMap(res.Missing, func(m mixbackup.Missing) (string, bool) { return m.Key, true })
	writeSettings(w, doc.AudioSettings, func(s mixbackup.AudioSetting) string {
		if missing[s.Key] {
			return text.FgHiRed.Sprint("missing")
		}
		return text.FgGreen.Sprint("found")
	})

	fmt.Fprintf(w, "\n%d of %d entries found, %d missing\n", len(res.Matched), len(doc.AudioSettings), len(res.Missing))
	if len(res.Unmatched) > 0 {
		fmt.Fprintf(w, "%d file(s) have no entry and would be reset to defaults:\n", len(res.Unmatched))
		for _, n := range res.Unmatched {
			fmt.Fprintf(w, "  - %s\n", n)
		}
	}
	if params.Strict && len(res.Missing) > 0 {
		return fmt.Errorf("%w: %d", errMissing, len(res.Missing))
	}
	return nil
}
