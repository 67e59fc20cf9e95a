package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/coolbeans/election2016/pkg/batch"
	"github.com/coolbeans/election2016/pkg/profile"
)

// runState parses every ballot of one state.
func runState(ctx context.Context, config *Config, state string, chosen *profile.Profile) (report *batch.Report, err error) {
	contest, err := setupElection(config, state, chosen)
	if err != nil {
		return nil, err
	}

	reader, closer, err := batch.OpenFile(config.PreferencesPath(state))
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	var sink batch.Sink = batch.DiscardSink{}
	if config.OutputDir != "" {
		writerSink, finish, openErr := openBallotOutput(config.OutputDir, state, contest.policy.Number)
		if openErr != nil {
			return nil, openErr
		}
		defer func() {
			if finishErr := finish(); finishErr != nil && err == nil {
				report, err = nil, finishErr
			}
		}()
		sink = writerSink
	}

	runner := &batch.Runner{
		Parser:    contest.parser,
		Workers:   config.Workers,
		ChunkSize: config.ChunkSize,
		Logger:    logger.With(zap.String("state", state)),
	}
	if config.Seed != nil {
		runner.RandomFor = batch.SeededRandom(*config.Seed)
	}

	logger.Info("running election",
		zap.String("state", state),
		zap.String("experiment", contest.policy.Name),
		zap.String("profile", contest.profile.Name))

	report, err = runner.Run(ctx, reader, sink)
	if err != nil {
		return nil, err
	}
	report.State = contest.registry.State
	report.Profile = contest.profile.Name

	logger.Info("election parsed",
		zap.String("state", state),
		zap.Int64("ballots", report.Total),
		zap.Int64("informal", report.InformalTotal()),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// openBallotOutput creates <dir>/<STATE>-exp<N>.txt. The returned finish
// flushes and closes it.
func openBallotOutput(dir string, state string, experimentNumber int) (*batch.WriterSink, func() error, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-exp%d.txt", state, experimentNumber))
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	sink := batch.NewWriterSink(file)
	finish := func() error {
		if err := sink.Flush(); err != nil {
			file.Close()
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		if err := file.Close(); err != nil {
			return fmt.Errorf("failed to close %s: %w", path, err)
		}
		return nil
	}
	return sink, finish, nil
}
