package main

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/coolbeans/election2016/pkg/experiment"
	"github.com/coolbeans/election2016/pkg/profile"
	"github.com/coolbeans/election2016/pkg/registry"
)

// Config is the election.yaml run configuration. Relative paths are
// resolved against the directory holding the file.
type Config struct {
	Candidates     string          `yaml:"candidates"`
	PreferencesDir string          `yaml:"preferences_dir"`
	States         map[string]int  `yaml:"states"`
	Profile        string          `yaml:"profile"`
	ProfilesDir    string          `yaml:"profiles_dir"`
	Experiment     int             `yaml:"experiment"`
	Seed           *uint64         `yaml:"seed,omitempty"`
	Workers        int             `yaml:"workers"`
	ChunkSize      int             `yaml:"chunk_size"`
	Tracked        TrackedSettings `yaml:"tracked"`
	Database       string          `yaml:"database"`
	OutputDir      string          `yaml:"output_dir"`
}

// TrackedSettings names the two groupings experiments displace.
type TrackedSettings struct {
	A registry.TrackedConfig `yaml:"a"`
	B registry.TrackedConfig `yaml:"b"`
}

// Senate seats per state at a double dissolution.
var defaultStates = map[string]int{
	"ACT": 2, "NSW": 12, "NT": 2, "QLD": 12,
	"SA": 12, "TAS": 12, "VIC": 12, "WA": 12,
}

// DefaultConfig tracks the Labor and Coalition tickets.
func DefaultConfig() *Config {
	return &Config{
		Candidates:     filepath.Join("data", "candidate_ordering.csv"),
		PreferencesDir: "data",
		States:         maps.Clone(defaultStates),
		Profile:        profile.OfficialName,
		ProfilesDir:    "profiles",
		Experiment:     experiment.BaselineNumber,
		Tracked: TrackedSettings{
			A: registry.TrackedConfig{Parties: []string{"Australian Labor Party", "Labor"}},
			B: registry.TrackedConfig{Parties: []string{
				"Liberal",
				"Liberal & Nationals",
				"Liberal National Party of Queensland",
				"The Nationals",
				"Country Liberals (NT)",
			}},
		},
	}
}

// LoadConfig reads election.yaml over the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	config := DefaultConfig()
	// A states list replaces the defaults rather than extending them.
	config.States = nil
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if config.States == nil {
		config.States = maps.Clone(defaultStates)
	}

	base := filepath.Dir(path)
	for _, field := range []*string{&config.Candidates, &config.PreferencesDir, &config.ProfilesDir, &config.Database, &config.OutputDir} {
		if *field != "" && !filepath.IsAbs(*field) {
			*field = filepath.Join(base, *field)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// Validate checks the settings that do not need any file to be read.
func (config *Config) Validate() error {
	if _, err := experiment.Lookup(config.Experiment); err != nil {
		return err
	}
	if config.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	if config.ChunkSize < 0 {
		return fmt.Errorf("chunk_size must not be negative")
	}
	if config.Candidates == "" {
		return fmt.Errorf("candidates file is required")
	}
	return nil
}

// StateNames returns the configured states in alphabetical order.
func (config *Config) StateNames() []string {
	names := make([]string, 0, len(config.States))
	for name := range config.States {
		names = append(names, strings.ToUpper(name))
	}
	sort.Strings(names)
	return names
}

// PreferencesPath is the formal preferences file of state.
func (config *Config) PreferencesPath(state string) string {
	return filepath.Join(config.PreferencesDir, strings.ToUpper(state)+".csv")
}

// addConfigFlags registers the flags shared by parse and run.
func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("candidates", "", "All-candidates CSV file")
	cmd.Flags().String("profile", "", "Constraint profile name or YAML file")
	cmd.Flags().String("profiles-dir", "", "Directory of constraint profiles")
	cmd.Flags().Int("experiment", 0, "Experiment number (see 'experiments')")
	cmd.Flags().Uint64("seed", 0, "Seed for reproducible probabilistic experiments")
	cmd.Flags().StringSlice("track-a", nil, "Parties of the first tracked grouping")
	cmd.Flags().StringSlice("track-b", nil, "Parties of the second tracked grouping")
}

// resolveConfig loads --config when given and lets explicit flags win.
func resolveConfig(cmd *cobra.Command) (*Config, error) {
	config := DefaultConfig()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		config = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("candidates") {
		config.Candidates, _ = flags.GetString("candidates")
	}
	if flags.Changed("profile") {
		config.Profile, _ = flags.GetString("profile")
	}
	if flags.Changed("profiles-dir") {
		config.ProfilesDir, _ = flags.GetString("profiles-dir")
	}
	if flags.Changed("experiment") {
		config.Experiment, _ = flags.GetInt("experiment")
	}
	if flags.Changed("seed") {
		seed, _ := flags.GetUint64("seed")
		config.Seed = &seed
	}
	if flags.Changed("track-a") {
		config.Tracked.A.Parties, _ = flags.GetStringSlice("track-a")
	}
	if flags.Changed("track-b") {
		config.Tracked.B.Parties, _ = flags.GetStringSlice("track-b")
	}
	if flags.Changed("preferences-dir") {
		config.PreferencesDir, _ = flags.GetString("preferences-dir")
	}
	if flags.Changed("workers") {
		config.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("db") {
		config.Database, _ = flags.GetString("db")
	}
	if flags.Changed("out") {
		config.OutputDir, _ = flags.GetString("out")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
