package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/coolbeans/election2016/pkg/ballot"
	"github.com/coolbeans/election2016/pkg/batch"
	"github.com/coolbeans/election2016/pkg/experiment"
	"github.com/coolbeans/election2016/pkg/profile"
	"github.com/coolbeans/election2016/pkg/runstore"
)

var version = "0.1.0"

var (
	verbose bool
	logger  = zap.NewNop()
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "election2016",
		Short: "Australian Senate ballot parser",
		Long: `election2016 turns the AEC formal preferences files of the 2016
Senate election into ordered candidate preferences.

It applies the formality rules and savings provisions of the Commonwealth
Electoral Act, and can displace the major groupings down above-the-line
votes to measure how much their ballot position is worth.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config := zap.NewProductionConfig()
			if verbose {
				config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			built, err := config.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			logger = built
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().String("config", "", "Run configuration (election.yaml)")

	cmd.AddCommand(parseCmd())
	cmd.AddCommand(runCmd())
	cmd.AddCommand(experimentsCmd())
	cmd.AddCommand(profilesCmd())
	cmd.AddCommand(historyCmd())

	return cmd
}

func parseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse <preferences>",
		Short: "Parse a single ballot paper",
		Long: `Parse one preference string against a state's ballot paper and print
the resulting candidate order, or the reason the ballot is informal.

Example:
  election2016 parse --state TAS "1,2,3,4,5,6,,,,"
  election2016 parse --state SA --experiment 3 --seed 7 "1,2,,,,"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			state, _ := cmd.Flags().GetString("state")
			jsonOutput, _ := cmd.Flags().GetBool("json")
			if state == "" {
				return fmt.Errorf("--state flag is required")
			}

			chosen, err := resolveProfile(config, loadProfiles(config))
			if err != nil {
				return err
			}
			contest, err := setupElection(config, state, chosen)
			if err != nil {
				return err
			}

			parsed, parseErr := contest.parser.Parse(args[0])
			if parseErr != nil && !ballot.IsRecoverable(parseErr) {
				return parseErr
			}

			if jsonOutput {
				return printParseJSON(contest, parsed, parseErr)
			}
			if parseErr != nil {
				fmt.Printf("Informal ballot: %v\n", parseErr)
				return nil
			}

			fmt.Printf("Formal ballot (%s the line, experiment %d, profile %s)\n",
				parsed.Side, contest.policy.Number, contest.profile.Name)
			for index, name := range contest.registry.Names(parsed.Preferences) {
				fmt.Printf("  %3d. %s\n", index+1, name)
			}
			return nil
		},
	}

	addConfigFlags(cmd)
	cmd.Flags().String("state", "", "State whose ballot paper to use")
	cmd.Flags().Bool("json", false, "Print the result as JSON")
	return cmd
}

type parsedPreference struct {
	ID   ballot.CandidateID `json:"id"`
	Name string             `json:"name"`
}

type parseOutput struct {
	State       string             `json:"state"`
	Experiment  int                `json:"experiment"`
	Profile     string             `json:"profile"`
	Formal      bool               `json:"formal"`
	Side        string             `json:"side,omitempty"`
	Preferences []parsedPreference `json:"preferences,omitempty"`
	Reason      string             `json:"reason,omitempty"`
	Error       string             `json:"error,omitempty"`
}

func printParseJSON(contest *election, parsed *ballot.Ballot, parseErr error) error {
	output := parseOutput{
		State:      contest.registry.State,
		Experiment: contest.policy.Number,
		Profile:    contest.profile.Name,
		Formal:     parseErr == nil,
	}
	if parseErr != nil {
		reason, _ := ballot.ReasonOf(parseErr)
		output.Reason = reason.String()
		output.Error = parseErr.Error()
	} else {
		output.Side = parsed.Side.String()
		names := contest.registry.Names(parsed.Preferences)
		for index, id := range parsed.Preferences {
			output.Preferences = append(output.Preferences, parsedPreference{ID: id, Name: names[index]})
		}
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [states...]",
		Short: "Parse every ballot of one or more states",
		Long: `Stream each state's formal preferences file through the parser and
report formal and informal counts.

States default to those in the configuration. The preferences of state X
are read from <preferences-dir>/X.csv.

Example:
  election2016 run --config election.yaml
  election2016 run --experiment 7 --seed 2016 --db runs.db SA TAS
  election2016 run --out ballots --json NT`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			jsonOutput, _ := cmd.Flags().GetBool("json")

			states := config.StateNames()
			if len(args) > 0 {
				states = states[:0]
				for _, arg := range args {
					states = append(states, strings.ToUpper(arg))
				}
			}
			if len(states) == 0 {
				return fmt.Errorf("no states to run")
			}

			chosen, err := resolveProfile(config, loadProfiles(config))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var store *runstore.Store
			if config.Database != "" {
				store, err = runstore.Open(config.Database)
				if err != nil {
					return err
				}
				defer store.Close()
			}

			combined := batch.NewReport()
			combined.State = "ALL"
			combined.Experiment = config.Experiment
			combined.Profile = chosen.Name

			for _, state := range states {
				report, err := runState(ctx, config, state, chosen)
				if err != nil {
					return fmt.Errorf("state %s: %w", state, err)
				}

				if store != nil {
					id, err := store.SaveRun(ctx, runstore.RecordFromReport(report, config.Seed))
					if err != nil {
						return err
					}
					logger.Info("run recorded", zap.String("id", id), zap.String("state", state))
				}

				if err := printReport(report, jsonOutput); err != nil {
					return err
				}
				combined.Merge(report)
			}

			if len(states) > 1 {
				return printReport(combined, jsonOutput)
			}
			return nil
		},
	}

	addConfigFlags(cmd)
	cmd.Flags().String("preferences-dir", "", "Directory holding <STATE>.csv preference files")
	cmd.Flags().Int("workers", 0, "Parsing goroutines (default GOMAXPROCS)")
	cmd.Flags().String("db", "", "Record runs in this SQLite database")
	cmd.Flags().String("out", "", "Write parsed ballots to <out>/<STATE>-exp<N>.txt")
	cmd.Flags().Bool("json", false, "Print reports as JSON")
	return cmd
}

func printReport(report *batch.Report, jsonOutput bool) error {
	if !jsonOutput {
		fmt.Println(report.String())
		return nil
	}
	data, err := report.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func experimentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "experiments",
		Short: "List the displacement experiments",
		Long: `List the displacement experiments. With --groups, also show where each
experiment moves the tracked groups of an above-the-line vote numbering
that many groups.

Example:
  election2016 experiments --groups 8 --track-a 1 --track-b 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOutput, _ := cmd.Flags().GetBool("json")
			groups, _ := cmd.Flags().GetInt("groups")
			positionA, _ := cmd.Flags().GetInt("track-a")
			positionB, _ := cmd.Flags().GetInt("track-b")
			policies := experiment.All()

			if groups > 0 {
				if positionA < 1 || positionA > groups || positionB < 1 || positionB > groups || positionA == positionB {
					return fmt.Errorf("--track-a and --track-b must be distinct positions in 1..%d", groups)
				}
				for _, policy := range policies {
					fmt.Printf("%-4d %-12s %s\n", policy.Number, policy.Name,
						previewDisplacement(groups, positionA, positionB, policy.Displacement))
				}
				return nil
			}

			if jsonOutput {
				data, err := json.MarshalIndent(policies, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to encode experiments: %w", err)
				}
				fmt.Println(string(data))
				return nil
			}

			fmt.Printf("%-4s %-12s %-13s %s\n", "NUM", "NAME", "DISPLACEMENT", "TRIGGERS")
			fmt.Println(strings.Repeat("─", 50))
			for _, policy := range policies {
				displacement := "-"
				if !policy.IsBaseline() {
					displacement = fmt.Sprintf("%d", policy.Displacement)
				}
				fmt.Printf("%-4d %-12s %-13s %.1f%%\n",
					policy.Number, policy.Name, displacement, policy.TriggerRate()*100)
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Print the table as JSON")
	cmd.Flags().Int("groups", 0, "Preview displacement over this many numbered groups")
	cmd.Flags().Int("track-a", 1, "Preference given to the first tracked group in the preview")
	cmd.Flags().Int("track-b", 2, "Preference given to the second tracked group in the preview")
	return cmd
}

// previewDisplacement lists the voter's preference numbers in the order
// they are counted once the tracked groups at positionA and positionB are
// displaced. Tracked groups are marked with their set.
func previewDisplacement(groups int, positionA int, positionB int, displacement int) string {
	prefs := make(ballot.GroupPrefMap, groups)
	for pref := 1; pref <= groups; pref++ {
		prefs[uint32(pref)] = []ballot.CandidateID{ballot.CandidateID(pref)}
	}
	tracked := ballot.NewTrackedSets(
		[]ballot.CandidateID{ballot.CandidateID(positionA)},
		[]ballot.CandidateID{ballot.CandidateID(positionB)},
	)

	parts := make([]string, 0, groups)
	for _, slot := range ballot.Displace(prefs, tracked, displacement) {
		label := fmt.Sprintf("%d", slot.Preference)
		switch slot.Tag {
		case ballot.TagA:
			label += "a"
		case ballot.TagB:
			label += "b"
		}
		parts = append(parts, label)
	}
	return strings.Join(parts, " ")
}

func profilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List constraint profiles",
		Long: `List the built-in and loaded constraint profiles. With --watch, keep
running and report profiles as their files change.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			watch, _ := cmd.Flags().GetBool("watch")

			profiles := loadProfiles(config)
			for _, loaded := range profiles.List() {
				source := "built in"
				if loaded.Source != "" {
					source = loaded.Source
				}
				fmt.Printf("%s\n    %s\n", loaded, source)
			}

			if !watch {
				return nil
			}

			if config.ProfilesDir == "" {
				return fmt.Errorf("--watch needs a profiles directory")
			}
			profiles.OnChange(func(event string, changed *profile.Profile) {
				if changed == nil {
					fmt.Printf("[%s] profile removed\n", event)
					return
				}
				fmt.Printf("[%s] %s\n", event, changed)
			})
			if err := profiles.Watch(); err != nil {
				return err
			}
			defer profiles.StopWatch()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			fmt.Printf("Watching %s (Ctrl-C to stop)\n", config.ProfilesDir)
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().String("profiles-dir", "", "Directory of constraint profiles")
	cmd.Flags().Bool("watch", false, "Watch the directory for changes")
	return cmd
}
