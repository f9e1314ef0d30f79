package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"lapse/internal/logs"
)

// currentLogName is the pointer the daemon keeps at its active log file.
const currentLogName = "lapse.log"

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var raw bool
	var filter logs.Filter

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.Paths.LogDir, currentLogName)
			out := cmd.OutOrStdout()
			emit := func(line string) {
				if raw {
					fmt.Fprintln(out, line)
					return
				}
				if formatted, ok := logs.Format(line, filter); ok {
					fmt.Fprintln(out, formatted)
				}
			}

			tail, offset, err := logs.Tail(path, lines)
			if err != nil {
				return err
			}
			for _, line := range tail {
				emit(line)
			}
			if !follow {
				return nil
			}
			return logs.Follow(cmd.Context(), path, offset, 250*time.Millisecond, emit)
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print JSON records unformatted")
	cmd.Flags().StringVar(&filter.JobID, "job", "", "Only show records for this job id")
	cmd.Flags().StringVar(&filter.MinLevel, "level", "", "Minimum level: debug, info, warn or error")
	return cmd
}
