package ballot

import (
	"slices"

	"github.com/coolbeans/election2016/pkg/experiment"
)

// Tag marks a group as carrying a tracked grouping.
type Tag int

const (
	TagNone Tag = iota
	TagA
	TagB
)

// TrackedSets holds the two disjoint candidate sets that stand in for the
// major groupings an experiment displaces.
type TrackedSets struct {
	A map[CandidateID]struct{}
	B map[CandidateID]struct{}
}

// NewTrackedSets builds tracked sets from candidate id lists.
func NewTrackedSets(a []CandidateID, b []CandidateID) TrackedSets {
	tracked := TrackedSets{
		A: make(map[CandidateID]struct{}, len(a)),
		B: make(map[CandidateID]struct{}, len(b)),
	}
	for _, id := range a {
		tracked.A[id] = struct{}{}
	}
	for _, id := range b {
		tracked.B[id] = struct{}{}
	}
	return tracked
}

// Empty reports whether neither set has members.
func (tracked TrackedSets) Empty() bool {
	return len(tracked.A) == 0 && len(tracked.B) == 0
}

// Tag classifies a ticket by its first candidate found in either set.
func (tracked TrackedSets) Tag(ticket []CandidateID) Tag {
	for _, id := range ticket {
		if _, ok := tracked.A[id]; ok {
			return TagA
		}
		if _, ok := tracked.B[id]; ok {
			return TagB
		}
	}
	return TagNone
}

// positionScale expresses positions in tenths of a preference so displaced
// groups can sit between untouched ones.
const positionScale = 10

// GroupSlot is a group's place in the displaced above-the-line order.
type GroupSlot struct {
	Preference uint32
	// Position is the effective preference in tenths.
	Position   uint64
	Tag        Tag
	Candidates []CandidateID
}

// Displace computes the effective group order when the tracked groups
// are moved displacement places down the voter's preferences.
//
// Untracked groups keep their preference. The tracked group of each set
// (the last group in preference order tagged with it) moves to
// preference + displacement + 0.5, so it lands just after the group that
// used to sit displacement places below it. When the two tracked groups are
// adjacent, the one the voter preferred gets another 0.9 so it still passes
// the untracked group that follows its neighbour, and the pair keep their
// relative order. Groups displaced past the last preference end up at the end in
// displaced order.
func Displace(groups GroupPrefMap, tracked TrackedSets, displacement int) []GroupSlot {
	keys := groups.Keys()
	slots := make([]GroupSlot, 0, len(keys))

	var trackedA, trackedB uint32
	var foundA, foundB bool
	if displacement > 0 {
		for _, pref := range keys {
			switch tracked.Tag(groups[pref]) {
			case TagA:
				trackedA, foundA = pref, true
			case TagB:
				trackedB, foundB = pref, true
			}
		}
	}

	shiftA := uint64(displacement)*positionScale + positionScale/2
	shiftB := shiftA
	if foundA && foundB {
		if trackedB == trackedA+1 {
			shiftA += positionScale - 1
		}
		if trackedA == trackedB+1 {
			shiftB += positionScale - 1
		}
	}

	for _, pref := range keys {
		slot := GroupSlot{
			Preference: pref,
			Position:   uint64(pref) * positionScale,
			Candidates: groups[pref],
		}
		switch {
		case foundA && pref == trackedA:
			slot.Tag = TagA
			slot.Position += shiftA
		case foundB && pref == trackedB:
			slot.Tag = TagB
			slot.Position += shiftB
		}
		slots = append(slots, slot)
	}

	slices.SortStableFunc(slots, func(left, right GroupSlot) int {
		switch {
		case left.Position < right.Position:
			return -1
		case left.Position > right.Position:
			return 1
		default:
			return 0
		}
	})
	return slots
}

// Flattener expands above-the-line votes into candidate sequences,
// applying an experiment policy to the tracked groups.
type Flattener struct {
	tracked TrackedSets
	policy  experiment.Policy
	random  experiment.RandomSource
}

// NewFlattener creates a flattener. A nil random source uses the process
// level generator.
func NewFlattener(tracked TrackedSets, policy experiment.Policy, random experiment.RandomSource) *Flattener {
	if random == nil {
		random = experiment.GlobalSource{}
	}
	return &Flattener{
		tracked: tracked,
		policy:  policy,
		random:  random,
	}
}

// BaselineFlattener preserves the voter's group order exactly.
func BaselineFlattener() *Flattener {
	return NewFlattener(TrackedSets{}, experiment.None(), nil)
}

// WithRandom returns a copy of the flattener drawing from random.
func (flattener *Flattener) WithRandom(random experiment.RandomSource) *Flattener {
	return NewFlattener(flattener.tracked, flattener.policy, random)
}

// Policy returns the experiment policy in use.
func (flattener *Flattener) Policy() experiment.Policy {
	return flattener.policy
}

// FlattenGroups concatenates the group tickets of a normalized
// above-the-line vote.
func (flattener *Flattener) FlattenGroups(groups GroupPrefMap) []CandidateID {
	size := 0
	for _, ticket := range groups {
		size += len(ticket)
	}
	flat := make([]CandidateID, 0, size)

	triggered, displacement := flattener.policy.Decide(flattener.random)
	if !triggered {
		for _, ticket := range groups.Values() {
			flat = append(flat, ticket...)
		}
		return flat
	}

	for _, slot := range Displace(groups, flattener.tracked, displacement) {
		flat = append(flat, slot.Candidates...)
	}
	return flat
}

// FlattenCandidates lists a normalized below-the-line vote in preference
// order.
func FlattenCandidates(prefs PrefMap) []CandidateID {
	return prefs.Values()
}
