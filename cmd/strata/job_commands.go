package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"strata/internal/api"
	"strata/internal/client"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:     "jobs",
		Aliases: []string{"job"},
		Short:   "Submit, inspect, and control jobs",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsSubmitCommand(ctx))
	jobsCmd.AddCommand(newJobsItemsCommand(ctx))
	jobsCmd.AddCommand(newJobsLinksCommand(ctx))
	jobsCmd.AddCommand(newJobsControlCommand(ctx, "pause", "Pause a running job", (*client.Client).PauseJob))
	jobsCmd.AddCommand(newJobsControlCommand(ctx, "resume", "Resume a paused job", (*client.Client).ResumeJob))
	jobsCmd.AddCommand(newJobsControlCommand(ctx, "cancel", "Cancel a job and its outstanding work", (*client.Client).CancelJob))
	jobsCmd.AddCommand(newJobsControlCommand(ctx, "skip-preview", "Move a previewing job straight to running", (*client.Client).SkipPreviewJob))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var username string
	var since, until string
	var limit, offset int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := client.ListJobsOptions{
				Statuses: statuses,
				Username: username,
				Limit:    limit,
				Offset:   offset,
			}
			if since != "" {
				parsed, err := parseTimeFlag(since)
				if err != nil {
					return fmt.Errorf("invalid --since value %q", since)
				}
				opts.CreatedSince = &parsed
			}
			if until != "" {
				parsed, err := parseTimeFlag(until)
				if err != nil {
					return fmt.Errorf("invalid --until value %q", until)
				}
				opts.CreatedUntil = &parsed
			}

			return ctx.withClient(func(c *client.Client) error {
				list, err := c.ListJobs(cmd.Context(), opts)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, list)
				}
				out := cmd.OutOrStdout()
				if len(list.Jobs) == 0 {
					fmt.Fprintln(out, "No jobs found")
					return nil
				}
				rendered := renderTable(
					[]string{"Job ID", "Status", "Progress", "User", "Granules", "Updated", "Message"},
					buildJobRows(list.Jobs),
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft, alignLeft},
				)
				fmt.Fprintln(out, rendered)
				fmt.Fprintf(out, "%d of %d job(s)\n", len(list.Jobs), list.Count)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by job status (repeatable)")
	cmd.Flags().StringVar(&username, "username", "", "Filter by username (admins only)")
	cmd.Flags().StringVar(&since, "since", "", "Only jobs created at or after this time (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&until, "until", "", "Only jobs created before this time (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of jobs to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of jobs to skip")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <jobID>",
		Short: "Show one job with its result links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				detail, err := c.GetJob(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, detail)
				}

				out := cmd.OutOrStdout()
				pairs := [][2]string{
					{"Job ID", detail.JobID},
					{"Status", titleStatus(detail.Status)},
					{"Progress", formatProgress(detail.Progress)},
					{"User", detail.Username},
					{"Granules", fmt.Sprintf("%d", detail.NumInputGranules)},
					{"Ignore errors", yesNo(detail.IgnoreErrors)},
					{"Created", formatTimestamp(detail.CreatedAt)},
					{"Updated", formatTimestamp(detail.UpdatedAt)},
				}
				if detail.Message != "" {
					pairs = append(pairs, [2]string{"Message", detail.Message})
				}
				if len(detail.Labels) > 0 {
					pairs = append(pairs, [2]string{"Labels", strings.Join(detail.Labels, ", ")})
				}
				if detail.DestinationURL != "" {
					pairs = append(pairs, [2]string{"Destination", detail.DestinationURL})
				}
				fmt.Fprintln(out, renderDetail(pairs))

				if len(detail.Links) == 0 {
					fmt.Fprintln(out, "No result links yet")
					return nil
				}
				fmt.Fprintf(out, "Result links (%d of %d):\n", len(detail.Links), detail.LinkCount)
				rendered := renderTable(
					[]string{"Href", "Rel", "Type", "Title"},
					buildLinkRows(detail.Links),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(out, rendered)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newJobsSubmitCommand(ctx *commandContext) *cobra.Command {
	var fromFile string
	var collection string
	var granules []string
	var variables []string
	var services []string
	var labels []string
	var destination string
	var aggregateFinal bool
	var skipPreview bool
	var synchronous bool
	var failFast bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a new job",
		Long: `Submit a job either from a JSON request file (--file, '-' for stdin) or
assembled from flags: one --service per workflow stage, in order, plus a
--collection or explicit --granule inputs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildCreateRequest(cmd, submitArgs{
				fromFile:       fromFile,
				collection:     collection,
				granules:       granules,
				variables:      variables,
				services:       services,
				labels:         labels,
				destination:    destination,
				aggregateFinal: aggregateFinal,
				skipPreview:    skipPreview,
				synchronous:    synchronous,
				failFast:       failFast,
			})
			if err != nil {
				return err
			}
			return ctx.withClient(func(c *client.Client) error {
				job, err := c.CreateJob(cmd.Context(), *req)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, job)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s submitted: %d input granule(s), status %s\n",
					job.JobID, job.NumInputGranules, titleStatus(job.Status))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&fromFile, "file", "f", "", "JSON request file ('-' for stdin)")
	cmd.Flags().StringVar(&collection, "collection", "", "Catalog collection to resolve granules from")
	cmd.Flags().StringArrayVar(&granules, "granule", nil, "Explicit granule URL (repeatable)")
	cmd.Flags().StringArrayVar(&variables, "variable", nil, "Variable of interest (repeatable)")
	cmd.Flags().StringArrayVar(&services, "service", nil, "Service for the next workflow stage (repeatable, ordered)")
	cmd.Flags().StringArrayVar(&labels, "label", nil, "Free-form label (repeatable)")
	cmd.Flags().StringVar(&destination, "destination", "", "Destination URL for final outputs")
	cmd.Flags().BoolVar(&aggregateFinal, "aggregate-final", false, "Final stage consumes all prior outputs as one input")
	cmd.Flags().BoolVar(&skipPreview, "skip-preview", false, "Start processing immediately, bypassing preview")
	cmd.Flags().BoolVar(&synchronous, "sync", false, "Submit as a synchronous request (never previews)")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "Fail the whole job on the first permanent item failure")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the created job as JSON")
	return cmd
}

type submitArgs struct {
	fromFile       string
	collection     string
	granules       []string
	variables      []string
	services       []string
	labels         []string
	destination    string
	aggregateFinal bool
	skipPreview    bool
	synchronous    bool
	failFast       bool
}

func buildCreateRequest(cmd *cobra.Command, args submitArgs) (*api.CreateJobRequest, error) {
	if args.fromFile != "" {
		return readCreateRequest(cmd, args.fromFile)
	}

	if len(args.services) == 0 {
		return nil, errors.New("at least one --service stage is required")
	}
	if args.collection == "" && len(args.granules) == 0 {
		return nil, errors.New("either --collection or --granule is required")
	}

	req := &api.CreateJobRequest{
		Source: api.JobSource{
			Collection: args.collection,
			Granules:   args.granules,
			Variables:  args.variables,
		},
		Labels:         args.labels,
		DestinationURL: args.destination,
		SkipPreview:    args.skipPreview,
		Synchronous:    args.synchronous,
	}
	for _, service := range args.services {
		req.Stages = append(req.Stages, api.JobStage{ServiceID: service})
	}
	if args.aggregateFinal {
		req.Stages[len(req.Stages)-1].Aggregated = true
	}
	if args.failFast {
		ignore := false
		req.IgnoreErrors = &ignore
	}
	return req, nil
}

func readCreateRequest(cmd *cobra.Command, path string) (*api.CreateJobRequest, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read request: %w", err)
	}
	var req api.CreateJobRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("parse request JSON: %w", err)
	}
	return &req, nil
}

func newJobsItemsCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var step int
	var limit, offset int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "items <jobID>",
		Short: "List a job's work items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := client.WorkItemsOptions{
				Statuses: statuses,
				Limit:    limit,
				Offset:   offset,
			}
			if cmd.Flags().Changed("step") {
				opts.StepIndex = &step
			}
			return ctx.withClient(func(c *client.Client) error {
				list, err := c.JobWorkItems(cmd.Context(), args[0], opts)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, list)
				}
				out := cmd.OutOrStdout()
				if len(list.Items) == 0 {
					fmt.Fprintln(out, "No work items found")
					return nil
				}
				rendered := renderTable(
					[]string{"ID", "Step", "Service", "Status", "Retries", "Updated", "Message"},
					buildWorkItemRows(list.Items),
					[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				)
				fmt.Fprintln(out, rendered)
				fmt.Fprintf(out, "%d of %d work item(s)\n", len(list.Items), list.Count)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by work item status (repeatable)")
	cmd.Flags().IntVar(&step, "step", 0, "Filter by workflow step index")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of items to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of items to skip")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newJobsLinksCommand(ctx *commandContext) *cobra.Command {
	var limit, offset int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "links <jobID>",
		Short: "List a job's result links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				list, err := c.JobLinks(cmd.Context(), args[0], limit, offset)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, list)
				}
				out := cmd.OutOrStdout()
				if len(list.Links) == 0 {
					fmt.Fprintln(out, "No result links yet")
					return nil
				}
				rendered := renderTable(
					[]string{"Href", "Rel", "Type", "Title"},
					buildLinkRows(list.Links),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(out, rendered)
				fmt.Fprintf(out, "%d of %d link(s)\n", len(list.Links), list.Count)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of links to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of links to skip")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newJobsControlCommand(ctx *commandContext, action, short string, call func(*client.Client, context.Context, string) (*api.Job, error)) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <jobID>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				job, err := call(c, cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s is now %s\n", job.JobID, titleStatus(job.Status))
				return nil
			})
		},
	}
}
