package batch

import (
	"bufio"
	"io"
	"strconv"

	"github.com/coolbeans/election2016/pkg/ballot"
)

// Sink receives formal ballots in input order. It is called from a single
// goroutine.
type Sink interface {
	Accept(record Record, parsed *ballot.Ballot) error
}

// CollectSink keeps every ballot in memory.
type CollectSink struct {
	Records []Record
	Ballots []*ballot.Ballot
}

// Accept appends the ballot.
func (sink *CollectSink) Accept(record Record, parsed *ballot.Ballot) error {
	sink.Records = append(sink.Records, record)
	sink.Ballots = append(sink.Ballots, parsed)
	return nil
}

// WriterSink writes one ballot per line as space-separated candidate ids.
type WriterSink struct {
	writer *bufio.Writer
	buffer []byte
}

// NewWriterSink buffers output to writer. Call Flush when done.
func NewWriterSink(writer io.Writer) *WriterSink {
	return &WriterSink{writer: bufio.NewWriter(writer)}
}

// Accept writes the ballot's preferences.
func (sink *WriterSink) Accept(record Record, parsed *ballot.Ballot) error {
	sink.buffer = sink.buffer[:0]
	for index, id := range parsed.Preferences {
		if index > 0 {
			sink.buffer = append(sink.buffer, ' ')
		}
		sink.buffer = strconv.AppendUint(sink.buffer, uint64(id), 10)
	}
	sink.buffer = append(sink.buffer, '\n')
	_, err := sink.writer.Write(sink.buffer)
	return err
}

// Flush writes any buffered output.
func (sink *WriterSink) Flush() error {
	return sink.writer.Flush()
}

// DiscardSink drops every ballot. Reports are still produced.
type DiscardSink struct{}

// Accept does nothing.
func (DiscardSink) Accept(Record, *ballot.Ballot) error {
	return nil
}
