package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coolbeans/election2016/pkg/ballot"
	"github.com/coolbeans/election2016/pkg/profile"
	"github.com/coolbeans/election2016/pkg/runstore"
)

const testCandidates = `nom_ty,state_ab,ticket,ballot_position,surname,ballot_given_nm,party_ballot_nm
S,SA,A,1,RED,Rita,Australian Labor Party
S,SA,A,2,ROSE,Ron,Australian Labor Party
S,SA,B,1,GREEN,Gail,The Greens
S,SA,C,1,BLUE,Barry,Liberal
S,SA,C,2,NAVY,Nina,Liberal
S,SA,UG,1,SOLO,Sam,
S,TAS,A,1,ISLAND,Ida,Liberal
`

// Nine boxes: groups A, B, C then candidates RED ROSE GREEN BLUE NAVY SOLO.
const testPreferences = `ElectorateNm,VoteCollectionPointNm,VoteCollectionPointId,BatchNo,PaperNo,Preferences
------------,---------------------,---------------------,-------,-------,-----------
Adelaide,Adelaide,1,1,1,"1,2,3,,,,,,"
Adelaide,Adelaide,1,1,2,",,,6,5,4,3,2,1"
Adelaide,Adelaide,1,1,3,",,,1,2,3,,,"
Adelaide,Adelaide,1,1,4,"*,,,,,,,,"
`

type fixture struct {
	dir        string
	candidates string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	logger = zap.NewNop()

	dir := t.TempDir()
	candidates := filepath.Join(dir, "candidates.csv")
	require.NoError(t, os.WriteFile(candidates, []byte(testCandidates), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SA.csv"), []byte(testPreferences), 0644))
	return fixture{dir: dir, candidates: candidates}
}

func (f fixture) config() *Config {
	config := DefaultConfig()
	config.Candidates = f.candidates
	config.PreferencesDir = f.dir
	config.ProfilesDir = ""
	config.States = map[string]int{"SA": 12}
	return config
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "election.yaml")
	content := `candidates: data/candidates.csv
preferences_dir: data
database: /var/lib/runs.db
experiment: 7
seed: 2016
states:
  SA: 12
  tas: 12
tracked:
  a:
    parties: [Labor]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "data", "candidates.csv"), config.Candidates)
	assert.Equal(t, "/var/lib/runs.db", config.Database)
	assert.Equal(t, filepath.Join(dir, "profiles"), config.ProfilesDir)
	assert.Equal(t, 7, config.Experiment)
	require.NotNil(t, config.Seed)
	assert.Equal(t, uint64(2016), *config.Seed)
	assert.Equal(t, []string{"SA", "TAS"}, config.StateNames())
	assert.Equal(t, []string{"Labor"}, config.Tracked.A.Parties)
	assert.Contains(t, config.Tracked.B.Parties, "Liberal")
	assert.Equal(t, filepath.Join(dir, "data", "SA.csv"), config.PreferencesPath("sa"))
}

func TestLoadConfigDefaultsStates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "election.yaml")
	require.NoError(t, os.WriteFile(path, []byte("experiment: 2\n"), 0644))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Len(t, config.StateNames(), 8)
}

func TestLoadConfigRejectsUnknownExperiment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "election.yaml")
	require.NoError(t, os.WriteFile(path, []byte("experiment: 14\n"), 0644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown experiment 14")
}

func TestResolveConfigFlagsOverride(t *testing.T) {
	cmd := runCmd()
	cmd.Flags().String("config", "", "")
	require.NoError(t, cmd.ParseFlags([]string{"--experiment", "3", "--seed", "9", "--track-a", "Greens", "--workers", "2"}))

	config, err := resolveConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, 3, config.Experiment)
	assert.Equal(t, uint64(9), *config.Seed)
	assert.Equal(t, []string{"Greens"}, config.Tracked.A.Parties)
	assert.Equal(t, 2, config.Workers)
	assert.Equal(t, profile.OfficialName, config.Profile)
}

func TestSetupElection(t *testing.T) {
	f := newFixture(t)
	config := f.config()

	contest, err := setupElection(config, "sa", profile.Official())
	require.NoError(t, err)
	assert.Equal(t, 9, contest.parser.Boxes())

	parsed, err := contest.parser.Parse("1,2,3,,,,,,")
	require.NoError(t, err)
	assert.Equal(t, ballot.SideAbove, parsed.Side)
	assert.Equal(t, []string{
		"RED, Rita (Australian Labor Party)",
		"ROSE, Ron (Australian Labor Party)",
		"GREEN, Gail (The Greens)",
		"BLUE, Barry (Liberal)",
		"NAVY, Nina (Liberal)",
	}, contest.registry.Names(parsed.Preferences))
}

func TestSetupElectionAppliesExperiment(t *testing.T) {
	f := newFixture(t)
	config := f.config()
	config.Experiment = 2

	contest, err := setupElection(config, "SA", profile.Official())
	require.NoError(t, err)

	parsed, err := contest.parser.Parse("1,2,3,,,,,,")
	require.NoError(t, err)
	names := contest.registry.Names(parsed.Preferences)
	assert.Equal(t, "GREEN, Gail (The Greens)", names[0])
}

func TestResolveProfile(t *testing.T) {
	config := DefaultConfig()
	config.ProfilesDir = ""

	chosen, err := resolveProfile(config, loadProfiles(config))
	require.NoError(t, err)
	assert.Equal(t, profile.OfficialName, chosen.Name)

	config.Profile = "missing"
	_, err = resolveProfile(config, loadProfiles(config))
	assert.ErrorContains(t, err, "unknown profile")

	path := filepath.Join(t.TempDir(), "strict.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: strict\nchoice: strict\n"), 0644))
	config.Profile = path
	chosen, err = resolveProfile(config, loadProfiles(config))
	require.NoError(t, err)
	assert.Equal(t, "strict", chosen.Name)
}

func TestRunState(t *testing.T) {
	f := newFixture(t)
	config := f.config()
	config.OutputDir = filepath.Join(f.dir, "out")

	report, err := runState(context.Background(), config, "SA", profile.Official())
	require.NoError(t, err)

	assert.Equal(t, "SA", report.State)
	assert.Equal(t, profile.OfficialName, report.Profile)
	assert.Equal(t, int64(4), report.Total)
	assert.Equal(t, int64(2), report.FormalAbove)
	assert.Equal(t, int64(1), report.FormalBelow)
	assert.Equal(t, int64(1), report.Informal[ballot.EmptyBallot.String()])

	output, err := os.ReadFile(filepath.Join(config.OutputDir, "SA-exp1.txt"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	assert.Len(t, lines, 3)
	assert.Equal(t, "0 1 2 3 4", lines[0])
	assert.Equal(t, "5 4 3 2 1 0", lines[1])
}

func TestRunCommandRecordsHistory(t *testing.T) {
	f := newFixture(t)
	database := filepath.Join(f.dir, "runs.db")

	root := rootCmd()
	root.SetArgs([]string{"run",
		"--candidates", f.candidates,
		"--preferences-dir", f.dir,
		"--profiles-dir", filepath.Join(f.dir, "none"),
		"--db", database,
		"--json",
		"SA",
	})
	require.NoError(t, root.Execute())
	logger = zap.NewNop()

	store, err := runstore.Open(database)
	require.NoError(t, err)
	defer store.Close()

	runs, err := store.ListRuns(context.Background(), runstore.Filter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "SA", runs[0].State)
	assert.Equal(t, int64(4), runs[0].Total)
	assert.WithinDuration(t, time.Now(), runs[0].StartedAt, time.Minute)
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "abc", truncateString("abc", 5))
	assert.Equal(t, "ab...", truncateString("abcdefgh", 5))

	text := formatRuns([]*runstore.RunRecord{{
		ID:         "0123456789abcdef",
		State:      "SA",
		Experiment: 2,
		Profile:    "official",
		Total:      1234567,
		Informal:   map[string]int64{"empty_ballot": 1000},
		StartedAt:  time.Now(),
	}})
	assert.Contains(t, text, "01234567 ")
	assert.Contains(t, text, "1,234,567")
	assert.Contains(t, text, "1,000")

	comparison := formatComparison([]runstore.ExperimentSummary{{
		Experiment: 3,
		States:     []string{"SA", "TAS"},
		Total:      10,
		Informal:   map[string]int64{},
	}})
	assert.Contains(t, comparison, "SA,TAS")
}

func TestPreviewDisplacement(t *testing.T) {
	testCases := []struct {
		name         string
		positionA    int
		positionB    int
		displacement int
		want         string
	}{
		{"baseline", 1, 2, 0, "1 2 3 4 5"},
		{"adjacent pair keeps order", 1, 2, 1, "3 1a 2b 4 5"},
		{"separate groups", 1, 3, 1, "2 1a 4 3b 5"},
		{"to the end", 1, 2, 500, "3 4 5 1a 2b"},
		{"b preferred first", 2, 1, 2, "3 4 1b 2a 5"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := previewDisplacement(5, tc.positionA, tc.positionB, tc.displacement)
			assert.Equal(t, tc.want, got)
		})
	}
}
