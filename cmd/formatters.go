package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/Yamato-Security/hayabusa-sub001/core"
	"github.com/Yamato-Security/hayabusa-sub001/timeline"

	"github.com/fatih/color"
)

// severityOrder lists severities from most to least severe for the summary.
var severityOrder = []core.Severity{
	core.SeverityCritical,
	core.SeverityHigh,
	core.SeverityMedium,
	core.SeverityLow,
	core.SeverityInformational,
	core.SeverityNone,
}

// renderScanSummary displays the results of a scan
func renderScanSummary(w io.Writer, s *timeline.Snapshot, topN int) {
	headerColor.Fprintln(w, "═══════════════════════════════════════════════════════════════")
	headerColor.Fprintln(w, "  Scan Summary")
	headerColor.Fprintln(w, "═══════════════════════════════════════════════════════════════")
	fmt.Fprintln(w)

	printSection(w, "Run")
	printField(w, "Run ID", s.RunID)
	printField(w, "Duration", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond).String())
	printField(w, "Files", fmt.Sprintf("%d processed, %d failed", len(s.Files), len(s.FailedFiles)))
	if s.FirstTimestamp != nil && s.LastTimestamp != nil {
		printField(w, "First event", s.FirstTimestamp.UTC().Format(time.RFC3339))
		printField(w, "Last event", s.LastTimestamp.UTC().Format(time.RFC3339))
	}
	fmt.Fprintln(w)

	printSection(w, "Records")
	printField(w, "Total", fmt.Sprintf("%d", s.Records))
	printField(w, "Detected", fmt.Sprintf("%d", s.Outcomes.Detected))
	printField(w, "Clean", fmt.Sprintf("%d", s.Outcomes.Clean))
	printField(w, "Suppressed", fmt.Sprintf("%d", s.Outcomes.Suppressed))
	printField(w, "Unhandled", fmt.Sprintf("%d", s.Outcomes.Unhandled))
	if s.MalformedRecords > 0 {
		printField(w, "Malformed", fmt.Sprintf("%d skipped", s.MalformedRecords))
	}
	fmt.Fprintln(w)

	printSection(w, "Findings")
	if s.Findings == 0 {
		successColor.Fprintln(w, "  No findings")
	} else {
		printField(w, "Total", fmt.Sprintf("%d", s.Findings))
		for _, sev := range severityOrder {
			if n := s.FindingsBySeverity[sev.String()]; n > 0 {
				printField(w, formatSeverity(sev), fmt.Sprintf("%d", n))
			}
		}
	}
	fmt.Fprintln(w)

	if top := s.TopRules(topN); len(top) > 0 {
		printSection(w, "Top Rules")
		for _, rc := range top {
			fmt.Fprintf(w, "  %-45s %8d\n", rc.RuleID, rc.Count)
		}
		fmt.Fprintln(w)
	}

	if counts := s.Dimensions[timeline.DimensionComputer]; len(counts) > 0 {
		printSection(w, "Computers")
		for _, kv := range sortedCounts(counts, topN) {
			fmt.Fprintf(w, "  %-45s %8d\n", kv.key, kv.count)
		}
		fmt.Fprintln(w)
	}

	if len(s.SuppressedRules) > 0 {
		printSection(w, "Suppressed Rules")
		fmt.Fprintf(w, "  %s\n", strings.Join(s.SuppressedRules, ", "))
		fmt.Fprintln(w)
	}

	if len(s.FailedFiles) > 0 {
		errorColor.Fprintln(w, "Failed Files")
		for _, f := range s.FailedFiles {
			fmt.Fprintf(w, "  %s (%d records read): %s\n", f.Path, f.RecordsRead, f.Error)
		}
		fmt.Fprintln(w)
	}

	if len(s.SkippedRules) > 0 || len(s.InactiveBindings) > 0 {
		warningColor.Fprintln(w, "Warnings")
		for _, r := range s.SkippedRules {
			fmt.Fprintf(w, "  skipped rule definition %s: %s\n", r.Path, r.Reason)
		}
		for _, b := range s.InactiveBindings {
			fmt.Fprintf(w, "  no rule definition for %s (%s/%s)\n", b.RuleID, b.Source, b.EventType)
		}
		fmt.Fprintln(w)
	}
}

// renderRulesTable displays rules in a formatted table
func renderRulesTable(w io.Writer, listing rulesListing) {
	if len(listing.Rules) == 0 {
		warningColor.Fprintln(w, "No rules loaded")
		return
	}

	headerColor.Fprintln(w, "RULES")
	headerColor.Fprintln(w, strings.Repeat("=", 110))
	fmt.Fprintf(w, "%-40s %-35s %-15s %-18s\n", "ID", "Name", "Severity", "Event Types")
	fmt.Fprintln(w, strings.Repeat("-", 110))

	suppressed := 0
	for _, r := range listing.Rules {
		name := r.Name
		if len(name) > 34 {
			name = name[:31] + "..."
		}
		var events []string
		for _, b := range r.Bindings {
			events = append(events, b.Source+"/"+b.EventType)
		}
		eventTypes := strings.Join(events, ",")
		if eventTypes == "" {
			eventTypes = "-"
		}

		line := fmt.Sprintf("%-40s %-35s %s %-18s", r.ID, name, padSeverity(r.Severity, 15), eventTypes)
		if r.Suppressed {
			suppressed++
			infoColor.Fprintf(w, "%s (suppressed)\n", line)
			continue
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintln(w, strings.Repeat("=", 110))
	fmt.Fprintf(w, "%d rules, %d suppressed\n", len(listing.Rules), suppressed)

	for _, b := range listing.InactiveBindings {
		warningColor.Fprintf(w, "No rule definition for %s (%s/%s)\n", b.RuleID, b.Source, b.EventType)
	}
	for _, r := range listing.Skipped {
		warningColor.Fprintf(w, "Skipped %s: %s\n", r.Path, r.Reason)
	}
}

// printSection prints a section header
func printSection(w io.Writer, title string) {
	infoColor.Fprintln(w, title)
}

// printField prints a labeled field
func printField(w io.Writer, label, value string) {
	if value == "" {
		value = "-"
	}
	fmt.Fprintf(w, "  %-14s %s\n", label+":", value)
}

// formatSeverity returns a colored severity label
func formatSeverity(sev core.Severity) string {
	switch sev {
	case core.SeverityCritical:
		return color.New(color.FgRed, color.Bold).Sprint("critical")
	case core.SeverityHigh:
		return color.New(color.FgRed).Sprint("high")
	case core.SeverityMedium:
		return color.New(color.FgYellow).Sprint("medium")
	case core.SeverityLow:
		return color.New(color.FgGreen).Sprint("low")
	case core.SeverityInformational:
		return color.New(color.FgCyan).Sprint("informational")
	default:
		return "none"
	}
}

// padSeverity pads by the visible width so color codes do not break columns.
func padSeverity(sev core.Severity, width int) string {
	plain := sev.String()
	if plain == "" {
		plain = "none"
	}
	pad := width - len(plain)
	if pad < 0 {
		pad = 0
	}
	return formatSeverity(sev) + strings.Repeat(" ", pad)
}

type keyCount struct {
	key   string
	count int
}

// sortedCounts orders counts by value, highest first, keeping at most n.
func sortedCounts(counts timeline.Counts, n int) []keyCount {
	out := make([]keyCount, 0, len(counts))
	for k, c := range counts {
		out = append(out, keyCount{k, c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].key < out[j].key
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
