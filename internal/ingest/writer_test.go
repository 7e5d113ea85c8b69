package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"romba-go/internal/model"
)

type fakeRecorder struct {
	mu      sync.Mutex
	batches [][]model.IndexEntry
	err     error
}

func (f *fakeRecorder) RecordContents(_ context.Context, entries []model.IndexEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, append([]model.IndexEntry(nil), entries...))
	return nil
}

func (f *fakeRecorder) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func entry(c byte) model.IndexEntry {
	return model.IndexEntry{Hashes: model.HashSet{SHA1: strings.Repeat(string(c), 40)}}
}

func TestWriter_Batches(t *testing.T) {
	rec := &fakeRecorder{}
	w := NewWriter(context.Background(), rec, 3)
	for _, c := range []byte("abcdefg") {
		w.Add(entry(c))
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if len(rec.batches) != 3 {
		t.Errorf("batches = %d, want 3", len(rec.batches))
	}
	if rec.total() != 7 {
		t.Errorf("entries written = %d, want 7", rec.total())
	}
}

func TestWriter_FlushOnlyIsOneTransaction(t *testing.T) {
	rec := &fakeRecorder{}
	w := NewWriter(context.Background(), rec, 0)
	defer w.Close()

	var wg sync.WaitGroup
	for _, c := range []byte("abcdefgh") {
		wg.Add(1)
		go func(c byte) {
			defer wg.Done()
			w.Add(entry(c))
		}(c)
	}
	wg.Wait()
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if len(rec.batches) != 1 || len(rec.batches[0]) != 8 {
		t.Errorf("batches = %v, want a single batch of 8", len(rec.batches))
	}

	if err := w.Flush(); err != nil || len(rec.batches) != 1 {
		t.Errorf("empty Flush() wrote a batch or failed: %v", err)
	}
}

func TestWriter_ErrorIsSticky(t *testing.T) {
	boom := errors.New("disk full")
	rec := &fakeRecorder{err: boom}
	w := NewWriter(context.Background(), rec, 0)
	w.Add(entry('a'))
	if err := w.Flush(); !errors.Is(err, boom) {
		t.Errorf("Flush() error = %v, want disk full", err)
	}
	w.Add(entry('b'))
	if err := w.Close(); !errors.Is(err, boom) {
		t.Errorf("Close() error = %v, want disk full", err)
	}
}
