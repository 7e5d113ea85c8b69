package ingest

import (
	"context"
	"fmt"

	"romba-go/internal/model"
)

// Recorder is the part of the index the writer needs.
type Recorder interface {
	RecordContents(ctx context.Context, entries []model.IndexEntry) error
}

// Writer serialises index writes from many goroutines through one
// goroutine. Entries are written in batches of batchSize, each batch in one
// transaction. With batchSize <= 0 entries are only written on Flush, so a
// whole unit of work lands atomically.
type Writer struct {
	rec       Recorder
	batchSize int
	in        chan request
	done      chan struct{}
	err       error
}

type request struct {
	entry model.IndexEntry
	flush chan error
}

func NewWriter(ctx context.Context, rec Recorder, batchSize int) *Writer {
	w := &Writer{
		rec:       rec,
		batchSize: batchSize,
		in:        make(chan request, 64),
		done:      make(chan struct{}),
	}
	go w.loop(ctx)
	return w
}

// Add queues an entry. It must not be called after Close.
func (w *Writer) Add(e model.IndexEntry) {
	w.in <- request{entry: e}
}

// Flush writes every queued entry and returns the first error the writer
// has seen.
func (w *Writer) Flush() error {
	reply := make(chan error, 1)
	w.in <- request{flush: reply}
	return <-reply
}

// Close flushes and stops the writer.
func (w *Writer) Close() error {
	close(w.in)
	<-w.done
	return w.err
}

func (w *Writer) loop(ctx context.Context) {
	defer close(w.done)
	var pending []model.IndexEntry

	write := func() {
		if len(pending) == 0 {
			return
		}
		if w.err == nil {
			if err := w.rec.RecordContents(ctx, pending); err != nil {
				w.err = fmt.Errorf("writing %d index entries: %w", len(pending), err)
			}
		}
		pending = pending[:0]
	}

	for req := range w.in {
		if req.flush != nil {
			write()
			req.flush <- w.err
			continue
		}
		pending = append(pending, req.entry)
		if w.batchSize > 0 && len(pending) >= w.batchSize {
			write()
		}
	}
	write()
}
