package experiment

import (
	"math/rand/v2"
	"sync"
)

// RandomSource yields uniform draws in [0, 1). *rand.Rand satisfies it.
type RandomSource interface {
	Float64() float64
}

// GlobalSource draws from the process-level generator. It is safe for
// concurrent use and not reproducible.
type GlobalSource struct{}

// Float64 returns rand.Float64().
func (GlobalSource) Float64() float64 {
	return rand.Float64()
}

// NewSeededSource returns a deterministic source for one stream of a
// seeded run. Using the record index as the stream keeps a run
// reproducible however its records are scheduled.
func NewSeededSource(seed uint64, stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, stream))
}

// LockedSource serializes access to a source that is not goroutine safe.
type LockedSource struct {
	mu     sync.Mutex
	source RandomSource
}

// NewLockedSource wraps source.
func NewLockedSource(source RandomSource) *LockedSource {
	return &LockedSource{source: source}
}

// Float64 draws from the wrapped source under the lock.
func (locked *LockedSource) Float64() float64 {
	locked.mu.Lock()
	defer locked.mu.Unlock()
	return locked.source.Float64()
}

// SequenceSource replays fixed draws in order and then repeats the last.
type SequenceSource struct {
	mu    sync.Mutex
	draws []float64
	next  int
}

// NewSequenceSource returns a source replaying draws.
func NewSequenceSource(draws ...float64) *SequenceSource {
	return &SequenceSource{draws: draws}
}

// Float64 returns the next scripted draw.
func (sequence *SequenceSource) Float64() float64 {
	sequence.mu.Lock()
	defer sequence.mu.Unlock()
	if len(sequence.draws) == 0 {
		return 0
	}
	if sequence.next >= len(sequence.draws) {
		return sequence.draws[len(sequence.draws)-1]
	}
	draw := sequence.draws[sequence.next]
	sequence.next++
	return draw
}
