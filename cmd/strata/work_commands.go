package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"strata/internal/api"
	"strata/internal/client"
)

func newWorkCommand(ctx *commandContext) *cobra.Command {
	workCmd := &cobra.Command{
		Use:   "work",
		Short: "Worker-side operations and backlog inspection",
	}

	workCmd.AddCommand(newWorkDepthCommand(ctx))
	workCmd.AddCommand(newWorkClaimCommand(ctx))
	workCmd.AddCommand(newWorkReportCommand(ctx))

	return workCmd
}

func newWorkDepthCommand(ctx *commandContext) *cobra.Command {
	var serviceID string

	cmd := &cobra.Command{
		Use:   "depth",
		Short: "Print the ready work item backlog for a service",
		Long: `Prints the bare count of ready work items for one service, suitable for
feeding an autoscaler.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(serviceID) == "" {
				return errors.New("--service is required")
			}
			return ctx.withClient(func(c *client.Client) error {
				count, err := c.WorkCount(cmd.Context(), serviceID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\n", count)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&serviceID, "service", "", "Service identifier")
	return cmd
}

func newWorkClaimCommand(ctx *commandContext) *cobra.Command {
	var serviceID string

	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim the next ready work item for a service",
		Long: `Claims exactly as a worker would, so the item transitions to running and
the claim timeout starts. Complete it with "strata work report".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(serviceID) == "" {
				return errors.New("--service is required")
			}
			return ctx.withClient(func(c *client.Client) error {
				work, err := c.ClaimWork(cmd.Context(), serviceID)
				if err != nil {
					return err
				}
				if work == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "No work available for service %s\n", serviceID)
					return nil
				}
				return writeJSON(cmd, work)
			})
		},
	}

	cmd.Flags().StringVar(&serviceID, "service", "", "Service identifier")
	return cmd
}

func newWorkReportCommand(ctx *commandContext) *cobra.Command {
	var status string
	var results []string
	var message string
	var nextCursor string
	var totalCount int

	cmd := &cobra.Command{
		Use:   "report <itemID>",
		Short: "Report completion for a claimed work item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid work item id %q", args[0])
			}
			report := api.WorkReport{
				Status:     status,
				Results:    results,
				Message:    message,
				NextCursor: nextCursor,
				TotalCount: totalCount,
			}
			return ctx.withClient(func(c *client.Client) error {
				if err := c.ReportWork(cmd.Context(), itemID, report); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reported work item %d as %s\n", itemID, status)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "successful", "Outcome status (successful or failed)")
	cmd.Flags().StringArrayVar(&results, "result", nil, "Output location (repeatable)")
	cmd.Flags().StringVar(&message, "message", "", "Failure detail or note")
	cmd.Flags().StringVar(&nextCursor, "next-cursor", "", "Catalog cursor for the next query page")
	cmd.Flags().IntVar(&totalCount, "total-count", 0, "Revised total granule count")
	return cmd
}
