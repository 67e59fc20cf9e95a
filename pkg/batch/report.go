package batch

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/coolbeans/election2016/pkg/ballot"
)

// Report counts the outcome of one batch.
type Report struct {
	State       string           `json:"state,omitempty"`
	Experiment  int              `json:"experiment"`
	Profile     string           `json:"profile,omitempty"`
	Total       int64            `json:"total"`
	FormalAbove int64            `json:"formal_above"`
	FormalBelow int64            `json:"formal_below"`
	Informal    map[string]int64 `json:"informal"`
	StartedAt   time.Time        `json:"started_at"`
	Duration    time.Duration    `json:"duration_ns"`
}

// NewReport returns an empty report.
func NewReport() *Report {
	return &Report{Informal: make(map[string]int64)}
}

func (report *Report) addFormal(parsed *ballot.Ballot) {
	report.Total++
	if parsed.Side == ballot.SideAbove {
		report.FormalAbove++
	} else {
		report.FormalBelow++
	}
}

func (report *Report) addInformal(reason ballot.InvalidReason) {
	report.Total++
	report.Informal[reason.String()]++
}

// Formal is the number of ballots that produced preferences.
func (report *Report) Formal() int64 {
	return report.FormalAbove + report.FormalBelow
}

// InformalTotal is the number of rejected ballots.
func (report *Report) InformalTotal() int64 {
	var total int64
	for _, count := range report.Informal {
		total += count
	}
	return total
}

// ToJSON serializes the report to indented JSON.
func (report *Report) ToJSON() ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}

// String formats the report for terminal output.
func (report *Report) String() string {
	var builder strings.Builder

	title := "Ballot Report"
	if report.State != "" {
		title = fmt.Sprintf("Ballot Report: %s", report.State)
	}
	builder.WriteString(title + "\n")
	builder.WriteString(strings.Repeat("═", 50) + "\n")
	builder.WriteString(fmt.Sprintf("Experiment: %d", report.Experiment))
	if report.Profile != "" {
		builder.WriteString(fmt.Sprintf(" | Profile: %s", report.Profile))
	}
	builder.WriteString("\n")
	builder.WriteString(strings.Repeat("─", 50) + "\n")

	builder.WriteString(fmt.Sprintf("  %-22s %12s\n", "Ballots", humanize.Comma(report.Total)))
	builder.WriteString(fmt.Sprintf("  %-22s %12s %s\n", "Formal above the line", humanize.Comma(report.FormalAbove), report.share(report.FormalAbove)))
	builder.WriteString(fmt.Sprintf("  %-22s %12s %s\n", "Formal below the line", humanize.Comma(report.FormalBelow), report.share(report.FormalBelow)))
	builder.WriteString(fmt.Sprintf("  %-22s %12s %s\n", "Informal", humanize.Comma(report.InformalTotal()), report.share(report.InformalTotal())))

	for _, reason := range ballot.AllReasons() {
		count := report.Informal[reason.String()]
		if count == 0 {
			continue
		}
		builder.WriteString(fmt.Sprintf("    %-20s %12s\n", reason, humanize.Comma(count)))
	}

	if report.Duration > 0 {
		builder.WriteString(fmt.Sprintf("\nParsed in %s", report.Duration.Round(time.Millisecond)))
		if seconds := report.Duration.Seconds(); seconds > 0 {
			builder.WriteString(fmt.Sprintf(" (%s ballots/s)", humanize.Comma(int64(float64(report.Total)/seconds))))
		}
		builder.WriteString("\n")
	}

	return builder.String()
}

func (report *Report) share(count int64) string {
	if report.Total == 0 {
		return ""
	}
	return fmt.Sprintf("(%.2f%%)", float64(count)/float64(report.Total)*100)
}

// Merge adds other's counts to report.
func (report *Report) Merge(other *Report) {
	report.Total += other.Total
	report.FormalAbove += other.FormalAbove
	report.FormalBelow += other.FormalBelow
	for reason, count := range other.Informal {
		report.Informal[reason] += count
	}
	report.Duration += other.Duration
}
