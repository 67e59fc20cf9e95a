// Package registry loads the candidates standing for the Senate in one
// state and lays them out the way they appear on the ballot paper.
package registry

import (
	"cmp"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/coolbeans/election2016/pkg/ballot"
)

// UngroupedTicket is the ticket code of candidates without a box above
// the line. They always sit at the right-hand end of the paper.
const UngroupedTicket = "UG"

// SenateNomination is the nom_ty value of Senate candidates.
const SenateNomination = "S"

var requiredColumns = []string{
	"nom_ty",
	"state_ab",
	"ticket",
	"ballot_position",
	"surname",
	"ballot_given_nm",
	"party_ballot_nm",
}

// Candidate is one name printed below the line.
type Candidate struct {
	ID             ballot.CandidateID `json:"id"`
	State          string             `json:"state"`
	Ticket         string             `json:"ticket"`
	BallotPosition int                `json:"ballot_position"`
	Surname        string             `json:"surname"`
	GivenName      string             `json:"given_name"`
	Party          string             `json:"party"`
}

// DisplayName renders the candidate as "SURNAME, Given (Party)".
func (candidate Candidate) DisplayName() string {
	party := candidate.Party
	if party == "" {
		party = "Independent"
	}
	return fmt.Sprintf("%s, %s (%s)", candidate.Surname, candidate.GivenName, party)
}

// Registry is the ballot paper of one state.
type Registry struct {
	State string
	// Candidates in below-the-line box order.
	Candidates []Candidate
	// Groups in above-the-line box order. Ungrouped candidates have no group.
	Groups []ballot.Group

	byID map[ballot.CandidateID]int
}

// LoadCandidatesFile opens path and loads the candidates of state.
func LoadCandidatesFile(path string, state string) (*Registry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open candidates file %s: %w", path, err)
	}
	defer file.Close()

	return LoadCandidates(file, state)
}

// LoadCandidates reads the all-candidates CSV and builds the ballot paper
// of state.
//
// Candidate ids are assigned sequentially over every Senate nomination in
// the file, across all states, so an id means the same person whichever
// state is loaded.
func LoadCandidates(reader io.Reader, state string) (*Registry, error) {
	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1
	csvReader.TrimLeadingSpace = true

	header, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read candidates header: %w", err)
	}
	columns, err := indexColumns(header)
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	var nextID ballot.CandidateID
	line := 1
	for {
		record, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read candidates line %d: %w", line, err)
		}
		if len(record) < len(header) {
			return nil, fmt.Errorf("candidates line %d has %d fields, want %d", line, len(record), len(header))
		}
		if record[columns["nom_ty"]] != SenateNomination {
			continue
		}

		id := nextID
		nextID++
		if !strings.EqualFold(record[columns["state_ab"]], state) {
			continue
		}

		position, err := strconv.Atoi(record[columns["ballot_position"]])
		if err != nil {
			return nil, fmt.Errorf("candidates line %d: invalid ballot position %q", line, record[columns["ballot_position"]])
		}
		candidates = append(candidates, Candidate{
			ID:             id,
			State:          strings.ToUpper(record[columns["state_ab"]]),
			Ticket:         strings.ToUpper(record[columns["ticket"]]),
			BallotPosition: position,
			Surname:        record[columns["surname"]],
			GivenName:      record[columns["ballot_given_nm"]],
			Party:          record[columns["party_ballot_nm"]],
		})
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("no senate candidates for state %q", state)
	}
	return New(strings.ToUpper(state), candidates)
}

// New lays out candidates in ballot paper order and groups them by ticket.
func New(state string, candidates []Candidate) (*Registry, error) {
	ordered := slices.Clone(candidates)
	for _, candidate := range ordered {
		if _, err := ticketRank(candidate.Ticket); err != nil {
			return nil, err
		}
	}
	slices.SortStableFunc(ordered, func(left, right Candidate) int {
		leftRank, _ := ticketRank(left.Ticket)
		rightRank, _ := ticketRank(right.Ticket)
		if leftRank != rightRank {
			return cmp.Compare(leftRank, rightRank)
		}
		return cmp.Compare(left.BallotPosition, right.BallotPosition)
	})

	registry := &Registry{
		State:      state,
		Candidates: ordered,
		byID:       make(map[ballot.CandidateID]int, len(ordered)),
	}
	for index, candidate := range ordered {
		if _, duplicate := registry.byID[candidate.ID]; duplicate {
			return nil, fmt.Errorf("candidate id %d appears twice", candidate.ID)
		}
		registry.byID[candidate.ID] = index

		if candidate.Ticket == UngroupedTicket {
			continue
		}
		last := len(registry.Groups) - 1
		if last < 0 || registry.Groups[last].Name != candidate.Ticket {
			registry.Groups = append(registry.Groups, ballot.Group{Name: candidate.Ticket})
			last++
		}
		registry.Groups[last].CandidateIDs = append(registry.Groups[last].CandidateIDs, candidate.ID)
	}

	return registry, nil
}

// CandidateIDs returns the ids in below-the-line box order.
func (registry *Registry) CandidateIDs() []ballot.CandidateID {
	ids := make([]ballot.CandidateID, len(registry.Candidates))
	for index, candidate := range registry.Candidates {
		ids[index] = candidate.ID
	}
	return ids
}

// Lookup finds a candidate by id.
func (registry *Registry) Lookup(id ballot.CandidateID) (Candidate, bool) {
	index, ok := registry.byID[id]
	if !ok {
		return Candidate{}, false
	}
	return registry.Candidates[index], true
}

// IDsForParties returns the candidates whose party matches one of names,
// ignoring case.
func (registry *Registry) IDsForParties(names []string) []ballot.CandidateID {
	var ids []ballot.CandidateID
	for _, candidate := range registry.Candidates {
		for _, name := range names {
			if strings.EqualFold(strings.TrimSpace(name), candidate.Party) {
				ids = append(ids, candidate.ID)
				break
			}
		}
	}
	return ids
}

// GroupParty names the party of a group by its first candidate.
func (registry *Registry) GroupParty(group ballot.Group) string {
	if len(group.CandidateIDs) == 0 {
		return ""
	}
	candidate, _ := registry.Lookup(group.CandidateIDs[0])
	return candidate.Party
}

// Names renders a preference list with candidate display names.
func (registry *Registry) Names(preferences []ballot.CandidateID) []string {
	names := make([]string, len(preferences))
	for index, id := range preferences {
		if candidate, ok := registry.Lookup(id); ok {
			names[index] = candidate.DisplayName()
		} else {
			names[index] = fmt.Sprintf("#%d", id)
		}
	}
	return names
}

func indexColumns(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for index, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = index
	}

	var missing []string
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("candidates file missing columns: %s", strings.Join(missing, ", "))
	}
	return columns, nil
}

// ticketRank orders ticket codes the way they are printed: A..Z, AA..AZ,
// BA.. and finally the ungrouped column.
func ticketRank(ticket string) (int, error) {
	if ticket == UngroupedTicket {
		return int(^uint(0) >> 1), nil
	}
	if ticket == "" {
		return 0, fmt.Errorf("empty ticket code")
	}
	rank := 0
	for _, letter := range ticket {
		if letter < 'A' || letter > 'Z' {
			return 0, fmt.Errorf("invalid ticket code %q", ticket)
		}
		rank = rank*26 + int(letter-'A') + 1
	}
	return rank, nil
}
