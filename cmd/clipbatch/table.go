package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"clipbatch/internal/api"
	"clipbatch/internal/queue"
)

// newTable builds a rounded-style writer with the given header. The listed
// column numbers (1-based) carry numeric values and render right-aligned
// under a left-aligned header.
func newTable(header table.Row, numericColumns ...int) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(header)

	configs := make([]table.ColumnConfig, 0, len(numericColumns))
	for _, column := range numericColumns {
		configs = append(configs, table.ColumnConfig{
			Number:      column,
			Align:       text.AlignRight,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)
	return tw
}

// jobTable renders batch jobs for `job list`.
func jobTable(jobs []api.BatchJob) string {
	tw := newTable(table.Row{"ID", "Name", "Type", "Status", "Items", "Progress"}, 1, 5, 6)
	for _, job := range jobs {
		tw.AppendRow(table.Row{
			job.ID,
			job.Name,
			job.JobType,
			statusLabel(job.Status),
			formatCounts(job.CompletedItems, job.FailedItems, job.TotalItems),
			formatPercent(job.Progress),
		})
	}
	return tw.Render()
}

// itemTable renders a batch job's queue items for `job show`.
func itemTable(items []api.QueueItem) string {
	tw := newTable(table.Row{"ID", "Video", "Status", "Priority", "Retries", "Progress", "Error"}, 1, 4, 5)
	for _, item := range items {
		tw.AppendRow(table.Row{
			item.ID,
			item.VideoRef,
			statusLabel(item.Status),
			item.Priority,
			fmt.Sprintf("%d/%d", item.RetryCount, item.MaxRetries),
			itemProgressLabel(item),
			item.ErrorMessage,
		})
	}
	return tw.Render()
}

func itemProgressLabel(item api.QueueItem) string {
	label := formatPercent(item.Progress.Percent)
	if item.Progress.Stage != "" {
		label += " " + item.Progress.Stage
	}
	return label
}

// statsTable renders per-status job counts in lifecycle order. Statuses with
// no jobs are omitted.
func statsTable(counts map[string]int) string {
	tw := newTable(table.Row{"Status", "Jobs"}, 2)
	for _, status := range queue.AllJobStatuses() {
		if count, ok := counts[string(status)]; ok {
			tw.AppendRow(table.Row{statusLabel(string(status)), count})
		}
	}
	return tw.Render()
}
