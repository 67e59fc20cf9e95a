package ballot

import (
	"fmt"
	"strings"
)

// Parser parses ballot records for one contest. It only reads its fields,
// so it can be shared across goroutines when the flattener's random source
// is goroutine safe.
type Parser struct {
	groups      []Group
	candidates  []CandidateID
	constraints Constraints
	flattener   *Flattener
}

// NewParser creates a parser for the given ballot paper. A nil flattener
// preserves the voter's group order.
func NewParser(groups []Group, candidates []CandidateID, constraints Constraints, flattener *Flattener) *Parser {
	if flattener == nil {
		flattener = BaselineFlattener()
	}
	return &Parser{
		groups:      groups,
		candidates:  candidates,
		constraints: constraints,
		flattener:   flattener,
	}
}

// WithFlattener returns a parser sharing the ballot paper but flattening
// with flattener.
func (parser *Parser) WithFlattener(flattener *Flattener) *Parser {
	return NewParser(parser.groups, parser.candidates, parser.constraints, flattener)
}

// Flattener returns the flattener in use.
func (parser *Parser) Flattener() *Flattener {
	return parser.flattener
}

// Boxes returns the number of boxes on the ballot paper.
func (parser *Parser) Boxes() int {
	return len(parser.groups) + len(parser.candidates)
}

// Parse parses one preference string.
func (parser *Parser) Parse(prefString string) (*Ballot, error) {
	return ParseBallotString(prefString, parser.groups, parser.candidates, parser.constraints, parser.flattener)
}

// halfResult is the outcome of parsing one half of the ballot paper.
type halfResult struct {
	preferences []CandidateID
	err         error
}

func (half halfResult) valid() bool {
	return half.err == nil
}

// ParseBallotString parses the preference string of one ballot paper.
//
// It returns an *InvalidBallotError when the ballot is informal and an
// *InputError when the record does not fit the ballot paper.
func ParseBallotString(prefString string, groups []Group, candidates []CandidateID, constraints Constraints, flattener *Flattener) (*Ballot, error) {
	if flattener == nil {
		flattener = BaselineFlattener()
	}

	tokens := strings.Split(prefString, ",")
	aboveTokens := tokens[:min(len(groups), len(tokens))]
	belowTokens := tokens[len(aboveTokens):]

	if len(belowTokens) > len(candidates) {
		return nil, &InputError{
			Err: fmt.Errorf("record has %d boxes, ballot paper has %d", len(tokens), len(groups)+len(candidates)),
		}
	}

	above := parseAbove(aboveTokens, groups, constraints, flattener)
	below := parseBelow(belowTokens, candidates, constraints)

	return resolve(constraints.Choice, above, below)
}

func parseAbove(tokens []string, groups []Group, constraints Constraints, flattener *Flattener) halfResult {
	prefs, duplicate, err := buildPreferenceMap(tokens, func(boxIndex int) []CandidateID {
		return groups[boxIndex].CandidateIDs
	})
	if err != nil {
		return halfResult{err: err}
	}
	prefs, err = normalizePreferenceMap(prefs, duplicate)
	if err != nil {
		return halfResult{err: err}
	}
	if err := constraints.CheckAbove(prefs.Len()); err != nil {
		return halfResult{err: err}
	}
	return halfResult{preferences: flattener.FlattenGroups(prefs)}
}

func parseBelow(tokens []string, candidates []CandidateID, constraints Constraints) halfResult {
	prefs, duplicate, err := buildPreferenceMap(tokens, func(boxIndex int) CandidateID {
		return candidates[boxIndex]
	})
	if err != nil {
		return halfResult{err: err}
	}
	prefs, err = normalizePreferenceMap(prefs, duplicate)
	if err != nil {
		return halfResult{err: err}
	}
	if err := constraints.CheckBelow(prefs.Len()); err != nil {
		return halfResult{err: err}
	}
	return halfResult{preferences: FlattenCandidates(prefs)}
}

// resolutionRule is one row of the decision table choosing between the
// two halves of a ballot paper.
type resolutionRule struct {
	applies func(choice ChoiceConstraint, above, below halfResult) bool
	decide  func(above, below halfResult) (*Ballot, error)
}

// resolutionRules are tried in order and the first applicable row wins.
var resolutionRules = []resolutionRule{
	// Exactly one half is formal: count it whatever the choice.
	{
		applies: func(_ ChoiceConstraint, above, below halfResult) bool {
			return above.valid() && !below.valid()
		},
		decide: func(above, _ halfResult) (*Ballot, error) {
			return single(above.preferences, SideAbove), nil
		},
	},
	{
		applies: func(_ ChoiceConstraint, above, below halfResult) bool {
			return !above.valid() && below.valid()
		},
		decide: func(_, below halfResult) (*Ballot, error) {
			return single(below.preferences, SideBelow), nil
		},
	},
	{
		applies: func(choice ChoiceConstraint, above, below halfResult) bool {
			return choice == PreferAbove && above.valid() && below.valid()
		},
		decide: func(above, _ halfResult) (*Ballot, error) {
			return single(above.preferences, SideAbove), nil
		},
	},
	{
		applies: func(choice ChoiceConstraint, above, below halfResult) bool {
			return choice == PreferBelow && above.valid() && below.valid()
		},
		decide: func(_, below halfResult) (*Ballot, error) {
			return single(below.preferences, SideBelow), nil
		},
	},
	{
		applies: func(choice ChoiceConstraint, above, below halfResult) bool {
			return choice == Strict && above.valid() && below.valid()
		},
		decide: func(_, _ halfResult) (*Ballot, error) {
			return nil, invalid(InvalidStrict, 0)
		},
	},
	// Neither half is formal: report the above-the-line reason.
	{
		applies: func(_ ChoiceConstraint, above, below halfResult) bool {
			return !above.valid() && !below.valid()
		},
		decide: func(above, _ halfResult) (*Ballot, error) {
			return nil, above.err
		},
	},
}

func resolve(choice ChoiceConstraint, above, below halfResult) (*Ballot, error) {
	for _, rule := range resolutionRules {
		if rule.applies(choice, above, below) {
			return rule.decide(above, below)
		}
	}
	return nil, fmt.Errorf("no resolution rule for choice %s", choice)
}
