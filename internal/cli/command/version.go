package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/libos-go/internal/cli/output"
	"github.com/yndnr/libos-go/internal/infra/buildinfo"
)

// VersionCommand returns the version command.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print build information",
		Action: func(c *cli.Context) error {
			info := buildinfo.Get()
			return render(c, info, versionView(info))
		},
	}
}

type versionView buildinfo.Info

func (v versionView) Tables() []*output.Table {
	t := output.NewTable("", "VERSION", "COMMIT", "BUILT", "GO", "MODIFIED")
	t.AddRow(v.Version, v.Commit, v.BuildTime, v.GoVersion, output.Bool(v.Modified))
	return []*output.Table{t}
}
