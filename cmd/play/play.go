package play

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/GiGurra/boa/pkg/boa"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gigurra/mixdeck/cmd/common"
	"github.com/gigurra/mixdeck/cmd/common/config"
	"github.com/gigurra/mixdeck/cmd/mixer"
	"github.com/gigurra/mixdeck/cmd/mixer/audio"
	"github.com/gigurra/mixdeck/cmd/mixer/backup"
	"github.com/gigurra/mixdeck/cmd/mixer/loader"
	"github.com/gopxl/beep/v2"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type Params struct {
	Paths    []string `pos:"true" optional:"true" help:"Audio files or directories to load."`
	Backup   string   `short:"b" optional:"true" help:"Backup file to apply after loading."`
	Force    bool     `short:"f" optional:"true" help:"Apply the backup even if some of its files are not loaded."`
	Watch    string   `short:"w" optional:"true" help:"Directory to watch for new audio files."`
	Notify   bool     `short:"n" optional:"true" help:"Raise desktop notifications for warnings and errors."`
	Headless bool     `optional:"true" help:"Play everything, print a status table and exit when all tracks have ended."`
}

func Cmd() *cobra.Command {
	return boa.CmdT[Params]{
		Use:   "play [paths...]",
		Short: "Mix audio files in the terminal",
		Long: `Load audio files into a mixer and control them from a terminal UI.

Press h in the UI for the key bindings. Without a terminal, or with
--headless, every track is played and a status table is printed.`,
		ParamEnrich: common.DefaultParamEnricher(),
		RunFunc: func(params *Params, cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := Run(ctx, params); err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "play: %v\n", err)
				os.Exit(1)
			}
		},
	}.ToCobra()
}

func Run(ctx context.Context, params *Params) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if params.Notify {
		cfg.Notifications.Enabled = true
	}
	opts, err := cfg.Mixer.Options()
	if err != nil {
		return err
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
	headless := params.Headless || !interactive

	var ui *bridge
	notifiers := notifiers{newDesktopNotifier(cfg.Notifications)}
	if headless {
		notifiers = append(notifiers, printNotifier(os.Stderr))
	} else {
		ui = newBridge()
		opts.Renderer = ui
		notifiers = append(notifiers, ui)
		// The terminal belongs to the UI from here on.
		logFile := common.LogFile("play.log")
		defer func() { _ = logFile.Close() }()
		slog.SetDefault(slog.New(slog.NewTextHandler(logFile, nil)))
		opts.Logger = slog.Default()
	}
	opts.Notifier = notifiers

	out := audio.New(beep.SampleRate(cfg.Mixer.SampleRate))
	defer func() { _ = out.Close() }()
	session := mixer.NewSession(out, opts)
	defer func() { _ = session.Close() }()

	for _, res := range loader.LoadPaths(ctx, session, params.Paths) {
		if res.Err != nil {
			fmt.Fprintf(os.Stderr, "skipped %s: %v\n", res.Path, res.Err)
		}
	}

	if params.Backup != "" {
		if err := importFile(session, params.Backup, confirmMissing(os.Stdin, os.Stdout, params.Force, interactive)); err != nil {
			return err
		}
	}

	if params.Watch != "" {
		if err := loader.Watch(ctx, session, params.Watch, nil); err != nil {
			return err
		}
	}

	if headless {
		if !audio.AudioAvailable {
			fmt.Fprintln(os.Stderr, "warning: built without audio support, playback is silent")
		}
		return runHeadless(ctx, session, os.Stdout, headlessPoll)
	}

	p := tea.NewProgram(newModel(ctx, session, ui), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func importFile(session *mixer.Session, path string, confirm func([]backup.Missing) bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer f.Close()
	doc, err := backup.Decode(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	report, err := session.ImportBackup(doc, mixer.ImportOptions{Source: path, Confirm: confirm})
	if err != nil {
		return fmt.Errorf("failed to import %s: %w", path, err)
	}
	fmt.Printf("Applied %s: %d group(s), %d track(s) configured, %d reset to defaults\n",
		path, report.GroupsCreated, report.TracksConfigured, report.TracksDefaulted)
	return nil
}

// confirmMissing asks on in/out whether to apply a backup that references
// files that are not loaded. Without a terminal it only proceeds if forced.
func confirmMissing(in io.Reader, out io.Writer, force, interactive bool) func([]backup.Missing) bool {
	return func(missing []backup.Missing) bool {
		if force {
			return true
		}
		fmt.Fprintf(out, "%d file(s) in the backup are not loaded:\n", len(missing))
		for _, m := range missing {
			fmt.Fprintf(out, "  - %s\n", m.Name)
		}
		if !interactive {
			fmt.Fprintln(out, "Use --force to apply it anyway.")
			return false
		}
		fmt.Fprint(out, "Apply the backup anyway? [y/N] ")
		line, _ := bufio.NewReader(in).ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}
