package ballot

import (
	"fmt"
	"strings"
)

// ChoiceConstraint decides which half counts when both are formal.
type ChoiceConstraint int

const (
	// Strict rejects a ballot that is formal on both halves.
	Strict ChoiceConstraint = iota
	PreferAbove
	PreferBelow
)

// String returns the YAML spelling of the choice.
func (choice ChoiceConstraint) String() string {
	switch choice {
	case Strict:
		return "strict"
	case PreferAbove:
		return "prefer_above"
	case PreferBelow:
		return "prefer_below"
	default:
		return fmt.Sprintf("choice(%d)", int(choice))
	}
}

// ParseChoice converts a YAML or flag spelling into a ChoiceConstraint.
func ParseChoice(s string) (ChoiceConstraint, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(strings.ToLower(s)), "-", "_")
	switch normalized {
	case "strict":
		return Strict, nil
	case "prefer_above", "above":
		return PreferAbove, nil
	case "prefer_below", "below":
		return PreferBelow, nil
	default:
		return 0, fmt.Errorf("unknown choice constraint %q", s)
	}
}

// CountKind selects the half and direction of a count constraint.
type CountKind int

const (
	MinAbove CountKind = iota
	MaxAbove
	MinBelow
	MaxBelow
)

var countKindNames = map[CountKind]string{
	MinAbove: "min_above",
	MaxAbove: "max_above",
	MinBelow: "min_below",
	MaxBelow: "max_below",
}

// String returns the YAML spelling of the kind.
func (kind CountKind) String() string {
	if name, ok := countKindNames[kind]; ok {
		return name
	}
	return fmt.Sprintf("count_kind(%d)", int(kind))
}

// ParseCountKind converts a YAML spelling into a CountKind.
func ParseCountKind(s string) (CountKind, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(strings.ToLower(s)), "-", "_")
	for kind, name := range countKindNames {
		if name == normalized {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown count constraint %q", s)
}

// CountConstraint bounds the number of valid marks on one half.
type CountConstraint struct {
	Kind  CountKind
	Value int
}

func (constraint CountConstraint) String() string {
	return fmt.Sprintf("%s(%d)", constraint.Kind, constraint.Value)
}

// Constraints is the formality configuration of a jurisdiction.
type Constraints struct {
	Choice ChoiceConstraint
	Counts []CountConstraint
}

// OfficialConstraints returns the Commonwealth Electoral Act rules: at
// least one box above the line or six below, with below-the-line votes
// preferred under section 269(2).
func OfficialConstraints() Constraints {
	return Constraints{
		Choice: PreferBelow,
		Counts: []CountConstraint{
			{Kind: MinAbove, Value: 1},
			{Kind: MinBelow, Value: 6},
		},
	}
}

// Validate reports configuration mistakes.
func (constraints Constraints) Validate() error {
	if constraints.Choice < Strict || constraints.Choice > PreferBelow {
		return fmt.Errorf("invalid choice constraint %d", int(constraints.Choice))
	}
	for _, count := range constraints.Counts {
		if _, ok := countKindNames[count.Kind]; !ok {
			return fmt.Errorf("invalid count constraint kind %d", int(count.Kind))
		}
		if count.Value < 0 {
			return fmt.Errorf("count constraint %s must not be negative", count)
		}
	}
	return nil
}

// String renders the constraints as "prefer_below [min_above(1) min_below(6)]".
func (constraints Constraints) String() string {
	parts := make([]string, len(constraints.Counts))
	for i, count := range constraints.Counts {
		parts[i] = count.String()
	}
	return fmt.Sprintf("%s [%s]", constraints.Choice, strings.Join(parts, " "))
}

// CheckAbove validates the number of valid above-the-line marks.
func (constraints Constraints) CheckAbove(voteLength int) error {
	return constraints.check(voteLength, MinAbove, MaxAbove, InvalidMinAbove, InvalidMaxAbove)
}

// CheckBelow validates the number of valid below-the-line marks.
func (constraints Constraints) CheckBelow(voteLength int) error {
	return constraints.check(voteLength, MinBelow, MaxBelow, InvalidMinBelow, InvalidMaxBelow)
}

func (constraints Constraints) check(voteLength int, minKind, maxKind CountKind, minReason, maxReason InvalidReason) error {
	for _, count := range constraints.Counts {
		switch {
		case count.Kind == minKind && voteLength < count.Value:
			return invalid(minReason, voteLength)
		case count.Kind == maxKind && voteLength > count.Value:
			return invalid(maxReason, voteLength)
		}
	}
	return nil
}
