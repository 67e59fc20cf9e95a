package main

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/coolbeans/election2016/pkg/ballot"
	"github.com/coolbeans/election2016/pkg/experiment"
	"github.com/coolbeans/election2016/pkg/profile"
	"github.com/coolbeans/election2016/pkg/registry"
)

// election is one state's ballot paper wired to a parser.
type election struct {
	registry *registry.Registry
	parser   *ballot.Parser
	profile  *profile.Profile
	policy   experiment.Policy
}

// loadProfiles returns the built-in profiles plus any in the configured
// directory. Broken files are logged and skipped.
func loadProfiles(config *Config) *profile.Registry {
	profiles := profile.NewRegistry(logger)
	if config.ProfilesDir == "" {
		return profiles
	}
	if err := profiles.LoadDirectory(config.ProfilesDir); err != nil {
		logger.Warn("some profiles were not loaded", zap.String("dir", config.ProfilesDir), zap.Error(err))
	}
	return profiles
}

// resolveProfile accepts a profile name or a path to a YAML profile.
func resolveProfile(config *Config, profiles *profile.Registry) (*profile.Profile, error) {
	name := config.Profile
	if name == "" {
		name = profile.OfficialName
	}
	if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
		return profile.LoadProfileFile(name)
	}

	chosen, ok := profiles.Get(name)
	if !ok {
		var known []string
		for _, candidate := range profiles.List() {
			known = append(known, candidate.Name)
		}
		return nil, fmt.Errorf("unknown profile %q (known: %s)", name, strings.Join(known, ", "))
	}
	return chosen, nil
}

// setupElection loads the ballot paper of state and builds its parser.
func setupElection(config *Config, state string, chosen *profile.Profile) (*election, error) {
	candidates, err := registry.LoadCandidatesFile(config.Candidates, state)
	if err != nil {
		return nil, err
	}

	tracked, err := registry.ResolveTracked(candidates, config.Tracked.A, config.Tracked.B)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tracked groupings: %w", err)
	}

	policy, err := experiment.Lookup(config.Experiment)
	if err != nil {
		return nil, err
	}
	if !policy.IsBaseline() && tracked.Empty() {
		logger.Warn("experiment has no tracked candidates in this state", zap.String("state", state), zap.Int("experiment", policy.Number))
	}

	constraints, err := chosen.Constraints()
	if err != nil {
		return nil, err
	}

	var random experiment.RandomSource
	if config.Seed != nil {
		random = experiment.NewLockedSource(experiment.NewSeededSource(*config.Seed, 0))
	}
	flattener := ballot.NewFlattener(tracked, policy, random)

	logger.Debug("ballot paper loaded",
		zap.String("state", candidates.State),
		zap.Int("groups", len(candidates.Groups)),
		zap.Int("candidates", len(candidates.Candidates)),
		zap.Int("tracked_a", len(tracked.A)),
		zap.Int("tracked_b", len(tracked.B)),
		zap.String("constraints", constraints.String()))

	return &election{
		registry: candidates,
		parser:   ballot.NewParser(candidates.Groups, candidates.CandidateIDs(), constraints, flattener),
		profile:  chosen,
		policy:   policy,
	}, nil
}
