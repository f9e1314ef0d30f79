package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"lapse/internal/api"
	"lapse/internal/services"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:     "jobs",
		Aliases: []string{"job"},
		Short:   "Inspect and remove jobs",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsDeleteCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List video and photo jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := kindsFor(kind)
			if err != nil {
				return err
			}
			c, err := ctx.client()
			if err != nil {
				return err
			}
			var jobs []api.Job
			for _, k := range kinds {
				items, err := c.ListJobs(cmd.Context(), k)
				if err != nil {
					return err
				}
				jobs = append(jobs, items...)
			}
			sort.SliceStable(jobs, func(i, j int) bool { return jobs[i].CreatedAt > jobs[j].CreatedAt })

			if ok, err := writeStructured(cmd, ctx, api.JobListResponse{Items: jobs}); ok {
				return err
			}
			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(out, "No jobs")
				return nil
			}
			fmt.Fprintln(out, renderTable(tableSpec{
				headers:  []string{"ID", "Kind", "Status", "Camera", "Images", "Size", "Duration", "Created", "URL"},
				rows:     jobRows(jobs),
				aligns:   []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
				colorize: shouldColorize(out),
				cellColor: func(_, col int, value string) text.Colors {
					if col != 2 {
						return nil
					}
					return jobStatusColors(value)
				},
			}))
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "all", "Job kind: video, photo or all")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a single job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.client()
			if err != nil {
				return err
			}
			job, err := c.GetJob(cmd.Context(), strings.TrimSpace(args[0]))
			if errors.Is(err, services.ErrNotFound) {
				return fmt.Errorf("job %s not found", args[0])
			}
			if err != nil {
				return err
			}
			if ok, err := writeStructured(cmd, ctx, job); ok {
				return err
			}
			printJob(cmd, job)
			return nil
		},
	}
}

func newJobsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a job and its artifact, cancelling it if running",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.client()
			if err != nil {
				return err
			}
			id := strings.TrimSpace(args[0])
			if err := c.DeleteJob(cmd.Context(), id); err != nil {
				if errors.Is(err, services.ErrNotFound) {
					return fmt.Errorf("job %s not found", id)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted job %s\n", id)
			return nil
		},
	}
}

func kindsFor(kind string) ([]string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "all":
		return []string{"video", "photo"}, nil
	case "video":
		return []string{"video"}, nil
	case "photo":
		return []string{"photo"}, nil
	default:
		return nil, fmt.Errorf("unknown job kind %q (use video, photo, or all)", kind)
	}
}

func jobRows(jobs []api.Job) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		url := "-"
		if job.PublicURL != nil {
			url = *job.PublicURL
		}
		rows = append(rows, []string{
			job.ID,
			job.Kind,
			job.Status,
			cameraPath(job.Selection),
			formatCount(job.ImageCount),
			formatBytes(job.OutputSizeBytes),
			formatSeconds(job.OutputDurationSeconds),
			formatWhen(job.CreatedAt),
			url,
		})
	}
	return rows
}

func cameraPath(sel api.Selection) string {
	return sel.DeveloperID + "/" + sel.ProjectID + "/" + sel.CameraID
}

func printJob(cmd *cobra.Command, job api.Job) {
	out := cmd.OutOrStdout()
	line := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(out, "%-14s %s\n", label+":", value)
	}
	sel := job.Selection
	line("ID", job.ID)
	line("Kind", job.Kind)
	line("Status", job.Status)
	line("Camera", cameraPath(sel))
	line("Dates", fmt.Sprintf("%s .. %s", sel.DateFrom, sel.DateTo))
	line("Hours", fmt.Sprintf("%s .. %s", sel.HourFrom, sel.HourTo))
	line("Images", formatCount(job.ImageCount))
	if job.FrameRate > 0 {
		line("Frame rate", fmt.Sprintf("%d fps", job.FrameRate))
	}
	if r := job.Render; r != nil {
		line("Resolution", r.Resolution)
		line("Show date", yesNo(r.ShowDate))
		line("Caption", r.Caption)
		if r.Music {
			line("Music", r.MusicTrack)
		}
		line("Grade", fmt.Sprintf("contrast %g, brightness %g, saturation %g", r.Contrast, r.Brightness, r.Saturation))
	}
	if job.OutputSizeBytes > 0 {
		line("Size", formatBytes(job.OutputSizeBytes))
	}
	if job.OutputDurationSeconds > 0 {
		line("Duration", formatSeconds(job.OutputDurationSeconds))
	}
	if job.ElapsedSeconds > 0 {
		line("Elapsed", formatSeconds(job.ElapsedSeconds))
	}
	if job.PublicURL != nil {
		line("URL", *job.PublicURL)
	}
	line("Error", job.ErrorMessage)
	line("Submitted by", strings.TrimSpace(job.SubmitterName+" "+job.SubmittedBy))
	line("Created", job.CreatedAt)
	line("Finished", job.FinishedAt)
}
