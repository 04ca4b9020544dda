package query

import (
	"context"

	"github.com/jrife/xpquery/document"
	"github.com/jrife/xpquery/utils/stream"
)

var _ stream.Stream[document.Document] = (*resultStream)(nil)

type resultStream struct {
	ctx       context.Context
	execution *Execution
	batch     int
	buffer    []document.Document
	current   document.Document
	done      bool
	err       error
}

// Stream returns the remaining results of execution as a
// stream. Results are drained batch at a time.
func Stream(ctx context.Context, execution *Execution, batch int) stream.Stream[document.Document] {
	if batch <= 0 {
		batch = 100
	}

	return &resultStream{ctx: ctx, execution: execution, batch: batch}
}

func (results *resultStream) Next() bool {
	for len(results.buffer) == 0 {
		if results.done || results.err != nil {
			results.current = nil

			return false
		}

		p, err := results.execution.Drain(results.ctx, results.batch)

		if err != nil {
			results.err = err

			continue
		}

		results.buffer = p.Items()
		results.done = p.Done()
	}

	results.current = results.buffer[0]
	results.buffer = results.buffer[1:]

	return true
}

func (results *resultStream) Value() document.Document {
	return results.current
}

func (results *resultStream) Error() error {
	return results.err
}
