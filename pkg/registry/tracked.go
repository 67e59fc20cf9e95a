package registry

import (
	"fmt"
	"slices"

	"github.com/coolbeans/election2016/pkg/ballot"
)

// TrackedConfig selects one tracked grouping by party name, by explicit
// candidate id, or both.
type TrackedConfig struct {
	Parties    []string `yaml:"parties" json:"parties,omitempty"`
	Candidates []uint32 `yaml:"candidates" json:"candidates,omitempty"`
}

// Empty reports whether the config selects nothing.
func (config TrackedConfig) Empty() bool {
	return len(config.Parties) == 0 && len(config.Candidates) == 0
}

// Resolve returns the sorted, de-duplicated candidate ids config selects
// on this ballot paper. Explicit ids need not stand in this state.
func (registry *Registry) Resolve(config TrackedConfig) []ballot.CandidateID {
	ids := registry.IDsForParties(config.Parties)
	for _, id := range config.Candidates {
		ids = append(ids, ballot.CandidateID(id))
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// ResolveTracked builds the tracked sets of an experiment. Parties that do
// not stand in the registry's state select nobody. A candidate in both
// sets is an error.
func ResolveTracked(registry *Registry, a TrackedConfig, b TrackedConfig) (ballot.TrackedSets, error) {
	setA := registry.Resolve(a)
	setB := registry.Resolve(b)

	for _, id := range setA {
		if _, found := slices.BinarySearch(setB, id); found {
			return ballot.TrackedSets{}, fmt.Errorf("candidate %d is in both tracked sets", id)
		}
	}

	return ballot.NewTrackedSets(setA, setB), nil
}
