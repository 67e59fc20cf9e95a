// Package profile loads named constraint profiles from YAML.
//
// A profile file looks like:
//
//	name: official
//	description: Commonwealth Electoral Act 1918 as amended in 2016
//	choice: prefer_below
//	counts:
//	  - kind: min_above
//	    value: 1
//	  - kind: min_below
//	    value: 6
package profile

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/coolbeans/election2016/pkg/ballot"
)

// OfficialName is the built-in profile holding the statutory rules.
const OfficialName = "official"

// Profile is a named set of ballot constraints.
type Profile struct {
	Name        string      `yaml:"name" json:"name"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Choice      string      `yaml:"choice" json:"choice"`
	Counts      []CountSpec `yaml:"counts,omitempty" json:"counts,omitempty"`

	// Source is the file the profile was loaded from, empty for built-ins.
	Source string `yaml:"-" json:"source,omitempty"`
}

// CountSpec is one count bound in YAML form.
type CountSpec struct {
	Kind  string `yaml:"kind" json:"kind"`
	Value int    `yaml:"value" json:"value"`
}

// Official returns the built-in profile.
func Official() *Profile {
	return FromConstraints(OfficialName, "Commonwealth Electoral Act 1918 as amended in 2016", ballot.OfficialConstraints())
}

// FromConstraints wraps constraints in a profile.
func FromConstraints(name string, description string, constraints ballot.Constraints) *Profile {
	profile := &Profile{
		Name:        name,
		Description: description,
		Choice:      constraints.Choice.String(),
	}
	for _, count := range constraints.Counts {
		profile.Counts = append(profile.Counts, CountSpec{Kind: count.Kind.String(), Value: count.Value})
	}
	return profile
}

// Constraints converts the profile into parser constraints.
func (profile *Profile) Constraints() (ballot.Constraints, error) {
	choice, err := ballot.ParseChoice(profile.Choice)
	if err != nil {
		return ballot.Constraints{}, fmt.Errorf("profile %q: %w", profile.Name, err)
	}

	constraints := ballot.Constraints{Choice: choice}
	for index, spec := range profile.Counts {
		kind, err := ballot.ParseCountKind(spec.Kind)
		if err != nil {
			return ballot.Constraints{}, fmt.Errorf("profile %q count %d: %w", profile.Name, index+1, err)
		}
		constraints.Counts = append(constraints.Counts, ballot.CountConstraint{Kind: kind, Value: spec.Value})
	}

	if err := constraints.Validate(); err != nil {
		return ballot.Constraints{}, fmt.Errorf("profile %q: %w", profile.Name, err)
	}
	return constraints, nil
}

// Validate checks the profile has a name and converts cleanly.
func (profile *Profile) Validate() error {
	if strings.TrimSpace(profile.Name) == "" {
		return fmt.Errorf("profile name is required")
	}
	_, err := profile.Constraints()
	return err
}

// ToYAML serializes the profile.
func (profile *Profile) ToYAML() ([]byte, error) {
	return yaml.Marshal(profile)
}

// String renders the profile as "name: constraints".
func (profile *Profile) String() string {
	constraints, err := profile.Constraints()
	if err != nil {
		return fmt.Sprintf("%s: invalid (%v)", profile.Name, err)
	}
	return fmt.Sprintf("%s: %s", profile.Name, constraints)
}

// ParseProfile decodes and validates a YAML profile.
func ParseProfile(data []byte) (*Profile, error) {
	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse YAML profile: %w", err)
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return &profile, nil
}

// LoadProfileFile reads a YAML profile from disk.
func LoadProfileFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile file %s: %w", path, err)
	}
	profile, err := ParseProfile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	profile.Source = path
	return profile, nil
}
