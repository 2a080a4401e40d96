package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"strata/internal/client"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon health and job counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				health, err := c.Health(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, health)
				}

				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)

				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(stdout, line)
				}
				apiKind := statusOK
				if health.Status != "ok" {
					apiKind = statusError
				}
				fmt.Fprintln(stdout, renderStatusLine("API", apiKind, ctx.apiBase(), colorize))

				dbKind := statusOK
				if health.Database != "ok" {
					dbKind = statusError
				}
				fmt.Fprintln(stdout, renderStatusLine("Database", dbKind, health.Database, colorize))
				fmt.Fprintln(stdout)

				for _, line := range renderSectionHeader("Jobs", colorize) {
					fmt.Fprintln(stdout, line)
				}
				if len(health.Jobs) == 0 {
					fmt.Fprintln(stdout, "No jobs yet")
					return nil
				}
				rendered := renderTable(
					[]string{"Status", "Count"},
					buildJobCountRows(health.Jobs),
					[]columnAlignment{alignLeft, alignRight},
				)
				fmt.Fprintln(stdout, rendered)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of status lines")
	return cmd
}
