package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/coolbeans/election2016/pkg/ballot"
	"github.com/coolbeans/election2016/pkg/experiment"
)

// DefaultChunkSize is the number of records parsed between emits.
const DefaultChunkSize = 4096

// Runner parses records in parallel and emits the results in input order.
type Runner struct {
	Parser *ballot.Parser
	// Workers bounds the parsing goroutines. Zero uses GOMAXPROCS.
	Workers   int
	ChunkSize int
	Logger    *zap.Logger
	// RandomFor returns the draw source for the record at index. When nil
	// the parser's own source is used.
	RandomFor func(index int) experiment.RandomSource
}

// SeededRandom returns a RandomFor that gives every record its own
// stream, so a run's draws do not depend on scheduling.
func SeededRandom(seed uint64) func(index int) experiment.RandomSource {
	return func(index int) experiment.RandomSource {
		return experiment.NewSeededSource(seed, uint64(index))
	}
}

type outcome struct {
	record Record
	parsed *ballot.Ballot
	err    error
}

// Run drains source through the parser into sink.
//
// Informal ballots are counted by reason and skipped. The first
// *ballot.InputError, sink error or context cancellation stops the run;
// ballots before the failing record have already reached the sink.
func (runner *Runner) Run(ctx context.Context, source RecordSource, sink Sink) (*Report, error) {
	if runner.Parser == nil {
		return nil, fmt.Errorf("runner has no parser")
	}
	logger := runner.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := runner.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunkSize := runner.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	report := NewReport()
	report.Experiment = runner.Parser.Flattener().Policy().Number
	report.StartedAt = time.Now()
	defer func() {
		report.Duration = time.Since(report.StartedAt)
	}()

	chunk := make([]outcome, 0, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		chunk = chunk[:0]
		exhausted := false
		var readErr error
		for len(chunk) < chunkSize {
			record, err := source.Next()
			if errors.Is(err, io.EOF) {
				exhausted = true
				break
			}
			if err != nil {
				readErr = err
				break
			}
			chunk = append(chunk, outcome{record: record})
		}

		if err := runner.parseChunk(ctx, chunk, workers); err != nil {
			return report, err
		}
		if err := emit(chunk, sink, report); err != nil {
			logger.Error("batch aborted", zap.Int64("ballots", report.Total), zap.Error(err))
			return report, err
		}
		logger.Debug("chunk parsed",
			zap.Int("records", len(chunk)),
			zap.Int64("total", report.Total),
			zap.Int64("informal", report.InformalTotal()))

		if readErr != nil {
			logger.Error("batch aborted", zap.Int64("ballots", report.Total), zap.Error(readErr))
			return report, readErr
		}
		if exhausted {
			return report, nil
		}
	}
}

// parseChunk splits chunk into contiguous shares, one per worker. Each
// goroutine writes only its own share.
func (runner *Runner) parseChunk(ctx context.Context, chunk []outcome, workers int) error {
	if len(chunk) == 0 {
		return nil
	}
	shareSize := (len(chunk) + workers - 1) / workers

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for start := 0; start < len(chunk); start += shareSize {
		share := chunk[start:min(start+shareSize, len(chunk))]
		group.Go(func() error {
			for index := range share {
				if err := groupCtx.Err(); err != nil {
					return err
				}
				runner.parseOne(&share[index])
			}
			return nil
		})
	}
	return group.Wait()
}

func (runner *Runner) parseOne(item *outcome) {
	parser := runner.Parser
	if runner.RandomFor != nil {
		parser = parser.WithFlattener(parser.Flattener().WithRandom(runner.RandomFor(item.record.Index)))
	}

	item.parsed, item.err = parser.Parse(item.record.Preferences)

	var inputErr *ballot.InputError
	if errors.As(item.err, &inputErr) && inputErr.Record == "" {
		item.err = &ballot.InputError{Record: item.record.Label(), Err: inputErr.Err}
	}
}

func emit(chunk []outcome, sink Sink, report *Report) error {
	for _, item := range chunk {
		if item.err != nil {
			reason, ok := ballot.ReasonOf(item.err)
			if !ok {
				return item.err
			}
			report.addInformal(reason)
			continue
		}
		if err := sink.Accept(item.record, item.parsed); err != nil {
			return fmt.Errorf("failed to write ballot %s: %w", item.record.Label(), err)
		}
		report.addFormal(item.parsed)
	}
	return nil
}
