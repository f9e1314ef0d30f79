package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"lapse/internal/deps"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check the external tools the job engines need",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := deps.CheckBinaries(deps.Requirements(ctx.configValue()))
			if ok, err := writeStructured(cmd, ctx, statuses); ok {
				return err
			}

			colorize := shouldColorize(cmd.OutOrStdout())
			rows := make([][]string, 0, len(statuses))
			for _, s := range statuses {
				detail := s.Detail
				if s.Available {
					detail = s.Command
				}
				rows = append(rows, []string{s.Name, yesNo(s.Available), yesNo(!s.Optional), detail})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(tableSpec{
				headers:  []string{"Tool", "Available", "Required", "Detail"},
				rows:     rows,
				colorize: colorize,
				cellColor: func(row, col int, value string) text.Colors {
					if col != 1 {
						return nil
					}
					if statuses[row].Available {
						return text.Colors{text.FgGreen}
					}
					if statuses[row].Optional {
						return text.Colors{text.FgYellow}
					}
					return text.Colors{text.FgRed}
				},
			}))
			if missing := deps.MissingRequired(statuses); len(missing) > 0 {
				return fmt.Errorf("missing required tools: %v", missing)
			}
			return nil
		},
	}
}
