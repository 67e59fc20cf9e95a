package ballot

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/coolbeans/election2016/pkg/experiment"
)

// Candidate ids used by the parse tests.
const (
	candA CandidateID = 101
	candB CandidateID = 102
	candC CandidateID = 103
	candD CandidateID = 104
)

func twoGroupPaper() ([]Group, []CandidateID) {
	groups := []Group{
		{Name: "A", CandidateIDs: []CandidateID{1, 2}},
		{Name: "B", CandidateIDs: []CandidateID{3, 4}},
	}
	candidates := []CandidateID{1, 2, 3, 4, 5, 6, 7}
	return groups, candidates
}

func TestParseAboveTheLineExample(t *testing.T) {
	groups := []Group{
		{Name: "A", CandidateIDs: []CandidateID{candA, candB}},
		{Name: "B", CandidateIDs: []CandidateID{candD}},
		{Name: "C", CandidateIDs: []CandidateID{candC}},
	}
	candidates := []CandidateID{candA, candB, candD}

	ballot, err := ParseBallotString("1,,2,,,", groups, candidates, OfficialConstraints(), nil)
	if err != nil {
		t.Fatalf("ParseBallotString() error = %v", err)
	}
	if ballot.Side != SideAbove {
		t.Errorf("Side = %s, want above", ballot.Side)
	}
	if diff := cmp.Diff([]CandidateID{candA, candB, candC}, ballot.Preferences); diff != "" {
		t.Errorf("Preferences mismatch (-want +got):\n%s", diff)
	}
}

func TestParseChoiceResolution(t *testing.T) {
	groups, candidates := twoGroupPaper()
	aboveOnly := []CandidateID{1, 2}
	belowSix := []CandidateID{6, 5, 4, 3, 2, 1}

	testCases := []struct {
		name        string
		prefs       string
		choice      ChoiceConstraint
		expected    []CandidateID
		expectedErr error
	}{
		{
			name:     "both valid prefer below",
			prefs:    "1,,6,5,4,3,2,1,",
			choice:   PreferBelow,
			expected: belowSix,
		},
		{
			name:     "both valid prefer above",
			prefs:    "1,,6,5,4,3,2,1,",
			choice:   PreferAbove,
			expected: aboveOnly,
		},
		{
			name:        "both valid strict",
			prefs:       "1,,6,5,4,3,2,1,",
			choice:      Strict,
			expectedErr: ErrInvalidStrict,
		},
		{
			name:     "only above valid under strict",
			prefs:    "1,,1,2,,,,,",
			choice:   Strict,
			expected: aboveOnly,
		},
		{
			name:     "only below valid under prefer above",
			prefs:    ",,6,5,4,3,2,1,",
			choice:   PreferAbove,
			expected: belowSix,
		},
		{
			name:        "neither valid reports above error",
			prefs:       "x,,1,2",
			choice:      PreferBelow,
			expectedErr: ErrInvalidCharacter,
		},
		{
			name:        "neither valid with blank above",
			prefs:       ",,1,2,3,4,5",
			choice:      PreferBelow,
			expectedErr: ErrEmptyBallot,
		},
		{
			name:     "invalid character below does not spoil above",
			prefs:    "2,1,x,,,,,,",
			choice:   PreferBelow,
			expected: []CandidateID{3, 4, 1, 2},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			constraints := OfficialConstraints()
			constraints.Choice = testCase.choice

			ballot, err := ParseBallotString(testCase.prefs, groups, candidates, constraints, nil)
			if testCase.expectedErr != nil {
				if !errors.Is(err, testCase.expectedErr) {
					t.Fatalf("ParseBallotString(%q) error = %v, want %v", testCase.prefs, err, testCase.expectedErr)
				}
				if !IsRecoverable(err) {
					t.Errorf("IsRecoverable(%v) = false, want true", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBallotString(%q) unexpected error: %v", testCase.prefs, err)
			}
			if diff := cmp.Diff(testCase.expected, ballot.Preferences); diff != "" {
				t.Errorf("ParseBallotString(%q) mismatch (-want +got):\n%s", testCase.prefs, diff)
			}
		})
	}
}

func TestParseSavingsProvisions(t *testing.T) {
	groups, candidates := twoGroupPaper()

	testCases := []struct {
		name     string
		prefs    string
		expected []CandidateID
	}{
		{
			name:     "gap truncates below the line",
			prefs:    ",,1,2,3,4,5,6,8",
			expected: []CandidateID{1, 2, 3, 4, 5, 6},
		},
		{
			name:     "complete below the line",
			prefs:    ",,1,2,3,4,5,6,7",
			expected: []CandidateID{1, 2, 3, 4, 5, 6, 7},
		},
		{
			name:     "repeated sixth preference keeps five",
			prefs:    ",,1,2,3,4,5,6,6",
			expected: []CandidateID{1, 2, 3, 4, 5},
		},
		{
			name:     "ticks above the line",
			prefs:    "*,,,,,,,,",
			expected: []CandidateID{1, 2},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			constraints := Constraints{
				Choice: PreferBelow,
				Counts: []CountConstraint{{Kind: MinAbove, Value: 1}, {Kind: MinBelow, Value: 5}},
			}
			ballot, err := ParseBallotString(testCase.prefs, groups, candidates, constraints, nil)
			if err != nil {
				t.Fatalf("ParseBallotString(%q) error = %v", testCase.prefs, err)
			}
			if diff := cmp.Diff(testCase.expected, ballot.Preferences); diff != "" {
				t.Errorf("ParseBallotString(%q) mismatch (-want +got):\n%s", testCase.prefs, diff)
			}
		})
	}
}

func TestParseDuplicateFirstPreference(t *testing.T) {
	groups := []Group{
		{Name: "A", CandidateIDs: []CandidateID{candA}},
		{Name: "B", CandidateIDs: []CandidateID{candB}},
		{Name: "C", CandidateIDs: []CandidateID{candC}},
	}

	_, err := ParseBallotString("1,1,3", groups, nil, OfficialConstraints(), nil)
	if !errors.Is(err, ErrEmptyBallot) {
		t.Errorf("ParseBallotString(1,1,3) error = %v, want empty ballot", err)
	}
}

func TestParseCountViolationCarriesCount(t *testing.T) {
	groups, candidates := twoGroupPaper()
	constraints := Constraints{
		Choice: PreferBelow,
		Counts: []CountConstraint{{Kind: MaxAbove, Value: 1}, {Kind: MinBelow, Value: 6}},
	}

	_, err := ParseBallotString("1,2,1,2", groups, candidates, constraints, nil)

	var invalidErr *InvalidBallotError
	if !errors.As(err, &invalidErr) {
		t.Fatalf("ParseBallotString() error = %v, want *InvalidBallotError", err)
	}
	if invalidErr.Reason != InvalidMaxAbove || invalidErr.Count != 2 {
		t.Errorf("error = %+v, want max above with count 2", invalidErr)
	}
}

func TestParseTooManyBoxes(t *testing.T) {
	groups, candidates := twoGroupPaper()

	_, err := ParseBallotString("1,,1,2,3,4,5,6,7,8", groups, candidates, OfficialConstraints(), nil)

	var inputErr *InputError
	if !errors.As(err, &inputErr) {
		t.Fatalf("ParseBallotString() error = %v, want *InputError", err)
	}
	if IsRecoverable(err) {
		t.Error("IsRecoverable() = true for an input error")
	}
}

func TestParserAppliesExperiment(t *testing.T) {
	groups := []Group{
		{Name: "A", CandidateIDs: []CandidateID{10, 11}},
		{Name: "B", CandidateIDs: []CandidateID{30}},
		{Name: "C", CandidateIDs: []CandidateID{20}},
		{Name: "D", CandidateIDs: []CandidateID{40}},
	}
	candidates := []CandidateID{10, 11, 30, 20, 40}

	policy, err := experiment.Lookup(3)
	if err != nil {
		t.Fatalf("Lookup(3) error = %v", err)
	}
	parser := NewParser(groups, candidates, OfficialConstraints(), NewFlattener(testTracked, policy, nil))

	if parser.Boxes() != 9 {
		t.Errorf("Boxes() = %d, want 9", parser.Boxes())
	}

	ballot, err := parser.Parse("1,2,3,4,,,,,")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	expected := []CandidateID{30, 10, 11, 40, 20}
	if diff := cmp.Diff(expected, ballot.Preferences); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}

	baseline := parser.WithFlattener(nil)
	ballot, err = baseline.Parse("1,2,3,4,,,,,")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if diff := cmp.Diff([]CandidateID{10, 11, 30, 20, 40}, ballot.Preferences); diff != "" {
		t.Errorf("baseline Parse() mismatch (-want +got):\n%s", diff)
	}
}

func TestInvalidBallotErrorMessages(t *testing.T) {
	testCases := []struct {
		err      error
		expected string
	}{
		{invalid(InvalidMinBelow, 3), "invalid ballot: invalid_min_below (3 marks)"},
		{invalid(EmptyBallot, 0), "invalid ballot: empty_ballot"},
		{&InputError{Record: "7", Err: errors.New("short read")}, "input error in record 7: short read"},
	}

	for _, testCase := range testCases {
		if got := testCase.err.Error(); got != testCase.expected {
			t.Errorf("Error() = %q, want %q", got, testCase.expected)
		}
	}

	reason, ok := ReasonOf(invalid(InvalidStrict, 0))
	if !ok || reason != InvalidStrict {
		t.Errorf("ReasonOf() = %s, %v", reason, ok)
	}
	if _, ok := ReasonOf(errors.New("other")); ok {
		t.Error("ReasonOf() matched a plain error")
	}
}
