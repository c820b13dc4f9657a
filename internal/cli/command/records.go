package command

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/libos-go/internal/cli/output"
	"github.com/yndnr/libos-go/internal/storage"
)

// RecordsCommand returns the records command.
func RecordsCommand() *cli.Command {
	return &cli.Command{
		Name:      "records",
		Usage:     "List the exit profiles kept in a data directory",
		ArgsUsage: " ",
		Flags: []cli.Flag{
			dataDirFlag(),
			&cli.IntFlag{
				Name:    "process",
				Aliases: []string{"p"},
				Usage:   "Only show records of this pid",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Show at most this many of the newest records (0 shows all)",
			},
		},
		Action: runRecords,
	}
}

func runRecords(c *cli.Context) error {
	if c.Int("limit") < 0 {
		return errors.New("--limit must not be negative")
	}
	cfg, _, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.Storage.DataDir == "" {
		return errors.New("storage.data_dir is not set; profiles are only kept in memory")
	}
	log, err := initLogger(c, cfg)
	if err != nil {
		return err
	}

	storeCfg, err := storage.ConfigFromSection(cfg.Storage)
	if err != nil {
		return err
	}
	storeCfg.GCInterval = 0
	store, err := storage.Open(storeCfg, log)
	if err != nil {
		return fmt.Errorf("open profile store: %w", err)
	}
	defer store.Close()

	recs, err := store.List(c.Context)
	if err != nil {
		return fmt.Errorf("list profile records: %w", err)
	}
	if pid := int32(c.Int("process")); pid != 0 {
		recs = slices.DeleteFunc(recs, func(r storage.ProcessRecord) bool {
			return r.PID != pid
		})
	}
	if limit := c.Int("limit"); limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	if recs == nil {
		recs = []storage.ProcessRecord{}
	}
	return render(c, recs, recordsView(recs))
}

type recordsView []storage.ProcessRecord

func (v recordsView) Tables() []*output.Table {
	t := output.NewTable("", "ID", "PID", "EXIT", "FINISHED", "COUNTERS")
	for _, r := range v {
		t.AddRow(r.ID, fmt.Sprint(r.PID), fmt.Sprint(r.ExitCode), output.Time(r.FinishedAt), counterList(r.Counters))
	}
	return []*output.Table{t}
}

// counterList renders the non-zero counters of a profile.
func counterList(m map[string]uint64) string {
	var parts []string
	for _, k := range slices.Sorted(maps.Keys(m)) {
		if m[k] != 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}
