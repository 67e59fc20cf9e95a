// Package experiment defines the displacement experiments applied to
// above-the-line votes.
//
// Each experiment is identified by a number. It either never triggers (the
// baseline), always triggers with a fixed displacement, or triggers with a
// probability: a uniform draw in [0, 1) at or above the threshold triggers
// it, so it fires for a share of 1 - threshold of ballots.
package experiment

import (
	"fmt"
)

// Policy describes one experiment.
type Policy struct {
	Number        int     `json:"number" yaml:"number"`
	Name          string  `json:"name" yaml:"name"`
	Displacement  int     `json:"displacement" yaml:"displacement"`
	Probabilistic bool    `json:"probabilistic" yaml:"probabilistic"`
	Threshold     float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
}

// BaselineNumber is the experiment that leaves ballots untouched.
const BaselineNumber = 1

var policies = []Policy{
	{Number: 1, Name: "baseline"},
	{Number: 2, Name: "bump-1", Displacement: 1},
	{Number: 3, Name: "bump-2", Displacement: 2},
	{Number: 4, Name: "bump-3", Displacement: 3},
	{Number: 5, Name: "bump-4", Displacement: 4},
	{Number: 6, Name: "bump-last", Displacement: 500},
	{Number: 7, Name: "bump-1-p10", Displacement: 1, Probabilistic: true, Threshold: 0.90},
	{Number: 8, Name: "bump-1-p24", Displacement: 1, Probabilistic: true, Threshold: 0.7555},
	{Number: 9, Name: "bump-1-p34", Displacement: 1, Probabilistic: true, Threshold: 0.66},
	{Number: 10, Name: "bump-1-p50", Displacement: 1, Probabilistic: true, Threshold: 0.499999},
	{Number: 11, Name: "bump-1-p67", Displacement: 1, Probabilistic: true, Threshold: 0.33},
	{Number: 12, Name: "bump-1-p75", Displacement: 1, Probabilistic: true, Threshold: 0.25},
	{Number: 13, Name: "bump-1-p90", Displacement: 1, Probabilistic: true, Threshold: 0.10},
}

// None returns the baseline policy.
func None() Policy {
	return policies[0]
}

// All returns every known policy ordered by number.
func All() []Policy {
	out := make([]Policy, len(policies))
	copy(out, policies)
	return out
}

// Lookup returns the policy for an experiment number.
func Lookup(number int) (Policy, error) {
	for _, policy := range policies {
		if policy.Number == number {
			return policy, nil
		}
	}
	return Policy{}, fmt.Errorf("unknown experiment %d (valid: 1-%d)", number, len(policies))
}

// IsBaseline reports whether the policy can never displace anything.
func (policy Policy) IsBaseline() bool {
	return policy.Displacement == 0
}

// TriggerRate is the expected share of ballots the policy displaces.
func (policy Policy) TriggerRate() float64 {
	switch {
	case policy.IsBaseline():
		return 0
	case policy.Probabilistic:
		return 1 - policy.Threshold
	default:
		return 1
	}
}

// Decide draws from random when the policy is probabilistic and returns
// whether the ballot is displaced and by how much.
func (policy Policy) Decide(random RandomSource) (bool, int) {
	if policy.IsBaseline() {
		return false, 0
	}
	if policy.Probabilistic {
		if random == nil {
			random = GlobalSource{}
		}
		if random.Float64() < policy.Threshold {
			return false, 0
		}
	}
	return true, policy.Displacement
}

func (policy Policy) String() string {
	switch {
	case policy.IsBaseline():
		return fmt.Sprintf("%d %s: no displacement", policy.Number, policy.Name)
	case policy.Probabilistic:
		return fmt.Sprintf("%d %s: displace by %d when draw >= %g (%.1f%% of ballots)",
			policy.Number, policy.Name, policy.Displacement, policy.Threshold, policy.TriggerRate()*100)
	default:
		return fmt.Sprintf("%d %s: always displace by %d", policy.Number, policy.Name, policy.Displacement)
	}
}
