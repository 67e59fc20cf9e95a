package ballot

import (
	"strconv"
)

// buildPreferenceMap turns the tokens of one ballot region into a
// preference map. entityAt maps a zero-based box index to the entity
// printed in that box.
//
// The returned cutoff is the smallest preference number that was marked
// more than once. Sections 268A(2)(b)(i) and 269(1A)(b)(i) discard that
// preference and every higher one.
func buildPreferenceMap[T any](tokens []string, entityAt func(int) T) (PreferenceMap[T], Cutoff, error) {
	prefs := make(PreferenceMap[T], len(tokens))
	duplicate := NoCutoff()

	for boxIndex, token := range tokens {
		var pref uint32
		switch token {
		case "":
			continue
		case "*", "/":
			pref = 1
		default:
			parsed, err := strconv.ParseUint(token, 10, 32)
			if err != nil {
				return nil, NoCutoff(), invalid(InvalidCharacter, 0)
			}
			pref = uint32(parsed)
		}

		if _, seen := prefs[pref]; seen {
			duplicate = duplicate.Min(CutoffAt(pref))
		}
		prefs[pref] = entityAt(boxIndex)
	}

	return prefs, duplicate, nil
}

// normalizePreferenceMap truncates prefs at the first missing or repeated
// preference, leaving the contiguous run 1..k. It fails with EmptyBallot
// when nothing survives.
func normalizePreferenceMap[T any](prefs PreferenceMap[T], duplicate Cutoff) (PreferenceMap[T], error) {
	missing := NoCutoff()
	for ordinal, pref := range prefs.Keys() {
		expected := uint32(ordinal + 1)
		if pref != expected {
			missing = CutoffAt(expected)
			break
		}
	}

	cutoff := duplicate.Min(missing)
	if cutoff.Valid {
		// A zero mark is never a valid preference, so it goes with the rest.
		for pref := range prefs {
			if pref == 0 || pref >= cutoff.Preference {
				delete(prefs, pref)
			}
		}
	}

	if prefs.Len() == 0 {
		return nil, invalid(EmptyBallot, 0)
	}
	return prefs, nil
}
