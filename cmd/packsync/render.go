package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"packsync/internal/catalog"
	"packsync/internal/preflight"
	"packsync/internal/workflow"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
	maxPlanRows      = 50
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := fmt.Sprintf("[%s]", statusKindLabel(kind))
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusKindLabel(kind), message)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func renderPreflight(out io.Writer, results []preflight.Result, colorize bool) {
	for _, r := range results {
		kind := statusOK
		if !r.Passed {
			kind = statusError
		}
		fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
	}
}

// renderPlan lists the items a pass would extract, oldest first.
func renderPlan(out io.Writer, summary workflow.Summary) {
	plan := summary.Plan
	fmt.Fprintf(out, "Plan: %d new, %d updated, %d unchanged\n",
		len(plan.New), len(plan.Updated), plan.UnchangedCount)

	queue := plan.Queue()
	if len(queue) == 0 {
		return
	}
	updated := make(map[string]struct{}, len(plan.Updated))
	for _, item := range plan.Updated {
		updated[item.ID] = struct{}{}
	}
	rows := make([][]string, 0, min(len(queue), maxPlanRows))
	for _, item := range queue[:min(len(queue), maxPlanRows)] {
		change := "new"
		if _, ok := updated[item.ID]; ok {
			change = "updated"
		}
		rows = append(rows, []string{item.ID, itemName(item), change, formatTime(item.UpdatedAt)})
	}
	fmt.Fprintln(out, renderTable([]string{"ID", "Name", "Change", "Updated"}, rows, nil))
	if extra := len(queue) - maxPlanRows; extra > 0 {
		fmt.Fprintf(out, "... and %d more\n", extra)
	}
}

func renderSummary(out io.Writer, summary workflow.Summary, colorize bool) {
	kind := statusOK
	switch {
	case summary.HasFailures():
		kind = statusError
	case len(summary.Skipped) > 0 || summary.EntriesRejected > 0:
		kind = statusWarn
	}
	message := fmt.Sprintf("%d succeeded, %d failed, %d skipped, %d unchanged in %s",
		len(summary.Succeeded), len(summary.Failed), len(summary.Skipped),
		summary.Plan.UnchangedCount, summary.Duration.Round(time.Millisecond))
	fmt.Fprintln(out, renderStatusLine("Sync pass", kind, message, colorize))
	if summary.FilesWritten > 0 || summary.EntriesRejected > 0 || summary.DoubtfulNames > 0 {
		details := fmt.Sprintf("%d files written, %d entries rejected, %d uncertain names",
			summary.FilesWritten, summary.EntriesRejected, summary.DoubtfulNames)
		fmt.Fprintln(out, renderStatusLine("Entries", statusInfo, details, colorize))
	}

	if len(summary.Failed) == 0 && len(summary.Skipped) == 0 {
		return
	}
	rows := make([][]string, 0, len(summary.Failed)+len(summary.Skipped))
	for _, f := range summary.Failed {
		rows = append(rows, []string{f.ItemID, string(f.Kind), strconv.Itoa(f.Attempts), errorText(f.Err)})
	}
	for _, s := range summary.Skipped {
		rows = append(rows, []string{s.ItemID, "Skipped", "", s.Reason})
	}
	fmt.Fprintln(out, renderTable([]string{"ID", "Outcome", "Attempts", "Detail"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}))
}

func itemName(item catalog.Item) string {
	if name := strings.TrimSpace(item.DisplayName); name != "" {
		return name
	}
	return "-"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
