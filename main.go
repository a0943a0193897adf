package main

import (
	"runtime/debug"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/gigurra/mixdeck/cmd/backup"
	"github.com/gigurra/mixdeck/cmd/play"
	"github.com/gigurra/mixdeck/cmd/serve"
	"github.com/spf13/cobra"
)

func main() {
	boa.CmdT[boa.NoParams]{
		Use:     "mixdeck",
		Short:   "Multi-track audio mixer",
		Version: appVersion(),
		SubCmds: []*cobra.Command{
			play.Cmd(),
			serve.Cmd(),
			backup.Cmd(),
		},
	}.Run()
}

func appVersion() string {
	bi, hasBuildInfo := debug.ReadBuildInfo()
	if !hasBuildInfo {
		return "unknown-(no build info)"
	}

	versionString := bi.Main.Version
	if versionString == "" {
		versionString = "unknown-(no version)"
	}

	return versionString
}
