package main

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"clipbatch/internal/queue"
)

var titleCaser = cases.Title(language.Und)

// statusLabel renders a stored status string for table output: underscores
// become spaces and each word is title-cased.
func statusLabel(status string) string {
	if status == "" {
		return "Unknown"
	}
	return titleCaser.String(strings.ReplaceAll(status, "_", " "))
}

func formatPercent(percent float64) string {
	return strconv.FormatFloat(percent, 'f', 0, 64) + "%"
}

func formatCounts(completed, failed, total int) string {
	if failed > 0 {
		return fmt.Sprintf("%d/%d (%d failed)", completed, total, failed)
	}
	return fmt.Sprintf("%d/%d", completed, total)
}

// jobStatusNames lists the accepted --status values for batch jobs.
func jobStatusNames() string {
	statuses := queue.AllJobStatuses()
	names := make([]string, len(statuses))
	for i, status := range statuses {
		names[i] = string(status)
	}
	return strings.Join(names, ", ")
}

// itemStatusNames lists the accepted --status values for queue items.
func itemStatusNames() string {
	statuses := queue.AllItemStatuses()
	names := make([]string, len(statuses))
	for i, status := range statuses {
		names[i] = string(status)
	}
	return strings.Join(names, ", ")
}

func parseJobIDArg(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid job id %q", arg)
	}
	return id, nil
}
