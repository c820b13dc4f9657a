package command

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/libos-go/internal/cli/connection"
	"github.com/yndnr/libos-go/internal/cli/output"
	"github.com/yndnr/libos-go/internal/infra/buildinfo"
	"github.com/yndnr/libos-go/internal/infra/tlsroots"
)

// StatsCommand returns the stats command.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:      "stats",
		Usage:     "Show the exit-path metrics of a running serve node",
		ArgsUsage: " ",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Metrics address of the node (default from config)",
			},
			&cli.StringFlag{
				Name:  "ca-file",
				Usage: "PEM roots to trust for an HTTPS node (default metrics.tls_cert_file)",
			},
			&cli.StringFlag{
				Name:  "prefix",
				Usage: "Only show metrics whose name starts with this",
				Value: "libos_",
			},
		},
		Action: runStats,
	}
}

func runStats(c *cli.Context) error {
	cfg, _, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.Metrics.Addr == "" {
		return fmt.Errorf("no metrics address: set --metrics-addr or metrics.addr")
	}

	var opts []connection.ClientOption
	caFile := c.String("ca-file")
	if caFile == "" {
		caFile = cfg.Metrics.TLSCertFile
	}
	if caFile != "" {
		pool := tlsroots.NewPool()
		if err := pool.AddCertFile(caFile); err != nil {
			return err
		}
		opts = append(opts, connection.WithTLSConfig(pool.ClientConfig()))
	}

	client := connection.NewHTTPClient(cfg.Metrics.Addr, buildinfo.Version, opts...)
	families, err := client.Scrape(c.Context, c.String("prefix"))
	if err != nil {
		return err
	}
	samples := connection.Samples(families)
	if samples == nil {
		samples = []connection.Sample{}
	}
	return render(c, samples, samplesView(samples))
}

type samplesView []connection.Sample

func (v samplesView) Tables() []*output.Table {
	t := output.NewTable("", "METRIC", "TYPE", "LABELS", "VALUE")
	for _, s := range v {
		value := output.Number(s.Value)
		if s.Type == "histogram" || s.Type == "summary" {
			value = fmt.Sprintf("count=%d sum=%s", s.Count, output.Number(s.Value))
		}
		t.AddRow(s.Name, s.Type, labelList(s.Labels), value)
	}
	return []*output.Table{t}
}

func labelList(labels map[string]string) string {
	if len(labels) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(labels))
	for _, k := range slices.Sorted(maps.Keys(labels)) {
		parts = append(parts, k+"="+labels[k])
	}
	return strings.Join(parts, ",")
}
