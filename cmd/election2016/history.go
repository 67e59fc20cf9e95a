package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/coolbeans/election2016/pkg/runstore"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs",
		Long: `List runs recorded with 'run --db'. With --compare, collate the most
recent run of each state per experiment.

Example:
  election2016 history --db runs.db --state SA
  election2016 history --db runs.db --compare
  election2016 history --db runs.db --delete 6f1c0e2a-...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			state, _ := cmd.Flags().GetString("state")
			experimentNumber, _ := cmd.Flags().GetInt("experiment")
			limit, _ := cmd.Flags().GetInt("limit")
			compare, _ := cmd.Flags().GetBool("compare")
			jsonOutput, _ := cmd.Flags().GetBool("json")
			deleteID, _ := cmd.Flags().GetString("delete")

			if config.Database == "" {
				return fmt.Errorf("--db flag is required")
			}
			store, err := runstore.Open(config.Database)
			if err != nil {
				return err
			}
			defer store.Close()

			if deleteID != "" {
				if err := store.DeleteRun(cmd.Context(), deleteID); err != nil {
					return err
				}
				fmt.Printf("Deleted run %s\n", deleteID)
				return nil
			}

			state = strings.ToUpper(state)
			if compare {
				summaries, err := store.CompareExperiments(cmd.Context(), state)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(summaries)
				}
				fmt.Print(formatComparison(summaries))
				return nil
			}

			runs, err := store.ListRuns(cmd.Context(), runstore.Filter{State: state, Experiment: experimentNumber, Limit: limit})
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(runs)
			}
			fmt.Print(formatRuns(runs))
			return nil
		},
	}

	cmd.Flags().String("db", "", "SQLite database of recorded runs")
	cmd.Flags().String("state", "", "Only show this state")
	cmd.Flags().Int("experiment", 0, "Only show this experiment")
	cmd.Flags().Int("limit", 0, "Show at most this many runs")
	cmd.Flags().Bool("compare", false, "Collate the latest runs per experiment")
	cmd.Flags().Bool("json", false, "Print as JSON")
	cmd.Flags().String("delete", "", "Delete the run with this id")
	return cmd
}

func printJSON(value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func formatRuns(runs []*runstore.RunRecord) string {
	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("%-8s %-5s %-4s %-10s %14s %12s  %s\n",
		"ID", "STATE", "EXP", "PROFILE", "BALLOTS", "INFORMAL", "WHEN"))
	builder.WriteString(strings.Repeat("─", 80) + "\n")

	for _, run := range runs {
		var informal int64
		for _, count := range run.Informal {
			informal += count
		}
		builder.WriteString(fmt.Sprintf("%-8s %-5s %-4d %-10s %14s %12s  %s\n",
			run.ID[:min(8, len(run.ID))], run.State, run.Experiment, truncateString(run.Profile, 10),
			humanize.Comma(run.Total), humanize.Comma(informal), humanize.Time(run.StartedAt)))
	}

	builder.WriteString(fmt.Sprintf("\nTotal: %d runs\n", len(runs)))
	return builder.String()
}

func formatComparison(summaries []runstore.ExperimentSummary) string {
	var builder strings.Builder

	builder.WriteString("\nExperiment Comparison\n")
	builder.WriteString(strings.Repeat("═", 80) + "\n")
	builder.WriteString(fmt.Sprintf("%-4s %-24s %14s %14s %14s %10s\n",
		"EXP", "STATES", "BALLOTS", "ABOVE", "BELOW", "INFORMAL"))
	builder.WriteString(strings.Repeat("─", 80) + "\n")

	for _, summary := range summaries {
		builder.WriteString(fmt.Sprintf("%-4d %-24s %14s %14s %14s %10s\n",
			summary.Experiment,
			truncateString(strings.Join(summary.States, ","), 24),
			humanize.Comma(summary.Total),
			humanize.Comma(summary.FormalAbove),
			humanize.Comma(summary.FormalBelow),
			humanize.Comma(summary.InformalTotal())))
	}
	return builder.String()
}

// truncateString shortens inputStr to maxLength runes.
func truncateString(inputStr string, maxLength int) string {
	runes := []rune(inputStr)
	if len(runes) <= maxLength {
		return inputStr
	}
	if maxLength <= 3 {
		return string(runes[:maxLength])
	}
	return string(runes[:maxLength-3]) + "..."
}
