package serve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/gigurra/mixdeck/cmd/common"
	"github.com/gigurra/mixdeck/cmd/common/config"
	"github.com/gigurra/mixdeck/cmd/mixer"
	"github.com/gigurra/mixdeck/cmd/mixer/audio"
	"github.com/gigurra/mixdeck/cmd/mixer/loader"
	"github.com/gopxl/beep/v2"
	"github.com/spf13/cobra"
)

type Params struct {
	Paths []string `pos:"true" optional:"true" help:"Audio files or directories to load at startup."`
	Bind  string   `optional:"true" help:"Address to bind to. Defaults to the configured bind address."`
	Port  int      `short:"p" optional:"true" help:"Port to listen on. Defaults to the configured port." default:"0"`
	User  string   `short:"u" optional:"true" help:"Username for basic auth. Auth is off when empty."`
	Pass  string   `optional:"true" help:"Password for basic auth."`
	Watch string   `short:"w" optional:"true" help:"Directory to watch for new audio files."`
	QR    bool     `optional:"true" help:"Print a QR code for the control page."`
}

func Cmd() *cobra.Command {
	return boa.CmdT[Params]{
		Use:   "serve [paths...]",
		Short: "Control a mixer from the browser",
		Long: `Start a mixer session and serve a control page plus a JSON API.

Every change to the session is pushed to connected browsers over a websocket
at /ws. Audio plays on this machine.`,
		ParamEnrich: common.DefaultParamEnricher(),
		RunFunc: func(params *Params, cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := Run(ctx, params); err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "serve: %v\n", err)
				os.Exit(1)
			}
		},
	}.ToCobra()
}

func Run(ctx context.Context, params *Params) error {
	if params.Pass != "" && params.User == "" {
		return fmt.Errorf("--pass requires --user")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	bind, port := params.Bind, params.Port
	if bind == "" {
		bind = cfg.Serve.Bind
	}
	if port == 0 {
		port = cfg.Serve.Port
	}
	lock, err := config.LockInstance(fmt.Sprintf("serve-%d", port))
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	opts, err := cfg.Mixer.Options()
	if err != nil {
		return err
	}
	hub := NewHub(slog.Default())
	opts.Renderer = hub
	opts.Notifier = hub

	out := audio.New(beep.SampleRate(cfg.Mixer.SampleRate))
	defer func() { _ = out.Close() }()
	session := mixer.NewSession(out, opts)
	defer func() { _ = session.Close() }()

	if !audio.AudioAvailable {
		fmt.Println("warning: built without audio support, playback is silent")
	}

	for _, res := range loader.LoadPaths(ctx, session, params.Paths) {
		if res.Err != nil {
			fmt.Fprintf(os.Stderr, "skipped %s: %v\n", res.Path, res.Err)
		}
	}
	if params.Watch != "" {
		err := loader.Watch(ctx, session, params.Watch, func(res loader.Result) {
			if res.Err != nil {
				slog.Warn("drop folder file rejected", "path", res.Path, "error", res.Err)
			}
		})
		if err != nil {
			return err
		}
	}

	srv := NewServer(session, hub, slog.Default())
	addr := fmt.Sprintf("%s:%d", bind, port)
	server := &http.Server{
		Addr:              addr,
		Handler:           basicAuth(params.User, params.Pass)(srv.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		fmt.Printf("Serving mixdeck on http://%s\n", addr)
		if params.User != "" {
			fmt.Printf("  auth: %s / ****\n", params.User)
		}
		printNetworkInfo(os.Stdout, bind, port, params.QR)
		fmt.Println("\nPress Ctrl+C to stop the server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		fmt.Println("\nShutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-serverErr:
		return err
	}
}
