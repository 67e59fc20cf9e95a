// Package ballot parses raw Senate ballot records into ordered candidate
// preferences.
//
// A ballot record is a comma-separated string with one token per printed
// box: the above-the-line group boxes come first, followed by the
// below-the-line candidate boxes. Each half is turned into a preference map,
// truncated at the first skipped or repeated preference number (the
// statutory savings provisions), checked against count constraints and
// flattened into a candidate sequence. A choice policy then decides which
// half, if any, is counted.
//
// Nothing in this package keeps state between calls. Groups, candidates and
// constraints are only read, so one Parser may be shared by many goroutines
// as long as its random source is safe for concurrent use.
package ballot

import (
	"slices"
)

// CandidateID identifies a candidate in the external candidate registry.
type CandidateID uint32

// Group is a registered group and its ticket: the ordered list of
// candidates an above-the-line mark expands to.
type Group struct {
	Name         string        `json:"name"`
	CandidateIDs []CandidateID `json:"candidate_ids"`
}

// Side records which half of the ballot paper produced a ballot.
type Side int

const (
	SideAbove Side = iota
	SideBelow
)

// String returns "above" or "below".
func (side Side) String() string {
	if side == SideAbove {
		return "above"
	}
	return "below"
}

// Ballot is a formal vote: the voter's full preference order over
// candidates, taken from exactly one half of the ballot paper.
type Ballot struct {
	Preferences []CandidateID `json:"preferences"`
	Side        Side          `json:"side"`
}

// single wraps one flattened candidate sequence.
func single(preferences []CandidateID, side Side) *Ballot {
	return &Ballot{Preferences: preferences, Side: side}
}

// PreferenceMap maps a declared preference number to the entity marked
// with it. After normalization its keys are exactly 1..k.
type PreferenceMap[T any] map[uint32]T

// PrefMap maps preferences to candidates (below the line).
type PrefMap = PreferenceMap[CandidateID]

// GroupPrefMap maps preferences to group tickets (above the line).
type GroupPrefMap = PreferenceMap[[]CandidateID]

// Len returns the number of marked preferences.
func (prefs PreferenceMap[T]) Len() int {
	return len(prefs)
}

// Keys returns the preference numbers in ascending order.
func (prefs PreferenceMap[T]) Keys() []uint32 {
	keys := make([]uint32, 0, len(prefs))
	for pref := range prefs {
		keys = append(keys, pref)
	}
	slices.Sort(keys)
	return keys
}

// Values returns the entities in ascending preference order.
func (prefs PreferenceMap[T]) Values() []T {
	values := make([]T, 0, len(prefs))
	for _, pref := range prefs.Keys() {
		values = append(values, prefs[pref])
	}
	return values
}

// Cutoff is an optional preference number at and above which marks are
// discarded.
type Cutoff struct {
	Preference uint32
	Valid      bool
}

// NoCutoff returns the absent cutoff.
func NoCutoff() Cutoff {
	return Cutoff{}
}

// CutoffAt returns a cutoff at the given preference.
func CutoffAt(pref uint32) Cutoff {
	return Cutoff{Preference: pref, Valid: true}
}

// Min combines two optional cutoffs, keeping the smaller when both are
// present.
func (cutoff Cutoff) Min(other Cutoff) Cutoff {
	switch {
	case !cutoff.Valid:
		return other
	case !other.Valid:
		return cutoff
	case other.Preference < cutoff.Preference:
		return other
	default:
		return cutoff
	}
}
