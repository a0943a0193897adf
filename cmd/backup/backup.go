package backup

import (
	"fmt"
	"os"

	"github.com/GiGurra/boa/pkg/boa"
	mixbackup "github.com/gigurra/mixdeck/cmd/mixer/backup"
	"github.com/spf13/cobra"
)

func Cmd() *cobra.Command {
	return boa.CmdT[boa.NoParams]{
		Use:   "backup",
		Short: "Inspect and check mixer backup files",
		SubCmds: []*cobra.Command{
			InspectCmd(),
			CheckCmd(),
		},
	}.ToCobra()
}

func readDocument(path string) (*mixbackup.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	doc, err := mixbackup.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func groupName(s mixbackup.AudioSetting) string {
	if s.GroupName == nil {
		return ""
	}
	return *s.GroupName
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return ""
}
