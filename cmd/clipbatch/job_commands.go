package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"clipbatch/internal/api"
	"clipbatch/internal/queue"
)

func newJobCommand(ctx *commandContext) *cobra.Command {
	jobCmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect and control batch jobs",
	}

	jobCmd.AddCommand(newJobListCommand(ctx))
	jobCmd.AddCommand(newJobShowCommand(ctx))
	jobCmd.AddCommand(newJobStatsCommand(ctx))
	jobCmd.AddCommand(newJobAddCommand(ctx))
	jobCmd.AddCommand(newJobControlCommand(ctx, "start", "Start processing a batch job"))
	jobCmd.AddCommand(newJobControlCommand(ctx, "pause", "Pause a batch job"))
	jobCmd.AddCommand(newJobControlCommand(ctx, "resume", "Resume a paused batch job"))
	jobCmd.AddCommand(newJobControlCommand(ctx, "cancel", "Cancel a batch job"))
	jobCmd.AddCommand(newJobRetryFailedCommand(ctx))
	jobCmd.AddCommand(newJobDeleteCommand(ctx))

	return jobCmd
}

func newJobListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List batch jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var wantStatus queue.JobStatus
			if statusFilter != "" {
				parsed, ok := queue.ParseJobStatus(statusFilter)
				if !ok {
					return fmt.Errorf("unknown job status %q (valid: %s)", statusFilter, jobStatusNames())
				}
				wantStatus = parsed
			}

			client, err := ctx.client()
			if err != nil {
				return err
			}
			jobs, err := client.listJobs(cmd.Context())
			if err != nil {
				return err
			}
			if wantStatus != "" {
				filtered := make([]api.BatchJob, 0, len(jobs))
				for _, job := range jobs {
					if job.Status == string(wantStatus) {
						filtered = append(filtered, job)
					}
				}
				jobs = filtered
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No batch jobs.")
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), jobTable(jobs))
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "Only list jobs with this status")
	return cmd
}

func newJobShowCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one batch job with its queue items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseJobIDArg(args[0])
			if err != nil {
				return err
			}
			var wantStatus queue.ItemStatus
			if statusFilter != "" {
				parsed, ok := queue.ParseItemStatus(statusFilter)
				if !ok {
					return fmt.Errorf("unknown item status %q (valid: %s)", statusFilter, itemStatusNames())
				}
				wantStatus = parsed
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			job, err := client.getJob(cmd.Context(), jobID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Job %d: %s (%s)\n", job.ID, job.Name, job.JobType)
			fmt.Fprintf(out, "Status: %s  Items: %s  Progress: %s\n",
				statusLabel(job.Status),
				formatCounts(job.CompletedItems, job.FailedItems, job.TotalItems),
				formatPercent(job.Progress),
			)
			if job.ErrorMessage != "" {
				fmt.Fprintf(out, "Error: %s\n", job.ErrorMessage)
			}

			items := job.Items
			if wantStatus != "" {
				filtered := make([]api.QueueItem, 0, len(items))
				for _, item := range items {
					if item.Status == string(wantStatus) {
						filtered = append(filtered, item)
					}
				}
				items = filtered
			}
			if len(items) == 0 {
				return nil
			}

			fmt.Fprintln(out, itemTable(items))
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "Only show items with this status")
	return cmd
}

func newJobStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show batch job counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			counts, err := client.jobStats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), statsTable(counts))
			return nil
		},
	}
}

func newJobAddCommand(ctx *commandContext) *cobra.Command {
	var name string
	var jobType string
	var configJSON string
	var priority int
	var maxRetries int

	cmd := &cobra.Command{
		Use:   "add <video-ref>...",
		Short: "Create a batch job from one or more video references",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			payload := createJobPayload{
				Name:    name,
				JobType: jobType,
				Config:  configJSON,
			}
			for _, ref := range args {
				item := createJobItemPayload{VideoRef: ref}
				if cmd.Flags().Changed("priority") {
					p := priority
					item.Priority = &p
				}
				if cmd.Flags().Changed("max-retries") {
					m := maxRetries
					item.MaxRetries = &m
				}
				payload.Items = append(payload.Items, item)
			}

			job, err := client.createJob(cmd.Context(), payload)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created batch job %d with %d item(s).\n", job.ID, job.TotalItems)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name for the batch job")
	cmd.Flags().StringVar(&jobType, "type", "", "Job type handled by a registered processor")
	cmd.Flags().StringVar(&configJSON, "config", "", "Job configuration as a JSON string")
	cmd.Flags().IntVar(&priority, "priority", 0, "Item priority (higher runs first)")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "Per-item retry budget")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newJobControlCommand(ctx *commandContext, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <job-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseJobIDArg(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.control(cmd.Context(), jobID, action)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %d: %s\n", jobID, statusLabel(resp.Status))
			return nil
		},
	}
}

func newJobRetryFailedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry-failed <job-id>",
		Short: "Reset a job's failed items to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseJobIDArg(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.control(cmd.Context(), jobID, "retry-failed")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %d: reset %d failed item(s). Run 'clipbatch job start %d' to reprocess.\n",
				jobID, resp.Affected, jobID)
			return nil
		},
	}
}

func newJobDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a batch job and its queue items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseJobIDArg(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.deleteJob(cmd.Context(), jobID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted batch job %d.\n", jobID)
			return nil
		},
	}
}
