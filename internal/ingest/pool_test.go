package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewPool_Clamps(t *testing.T) {
	tests := []struct{ in, want int }{{-1, 1}, {0, 1}, {1, 1}, {8, 8}, {16, 16}, {100, 16}}
	for _, tt := range tests {
		if got := NewPool(tt.in).Workers(); got != tt.want {
			t.Errorf("NewPool(%d).Workers() = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestRun_EachInputOnce(t *testing.T) {
	inputs := make([]string, 200)
	for i := range inputs {
		inputs[i] = fmt.Sprintf("file-%03d", i)
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	var running, peak int32

	results := Run(context.Background(), NewPool(4), inputs, func(_ context.Context, in string) (int, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		defer atomic.AddInt32(&running, -1)

		mu.Lock()
		seen[in]++
		mu.Unlock()
		return len(in), nil
	})

	if len(results) != len(inputs) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(inputs))
	}
	for i, r := range results {
		if r.Input != inputs[i] {
			t.Errorf("results[%d].Input = %q, want %q", i, r.Input, inputs[i])
		}
		if r.Err != nil || r.Value != len(inputs[i]) {
			t.Errorf("results[%d] = %+v", i, r)
		}
		if seen[inputs[i]] != 1 {
			t.Errorf("%s processed %d times", inputs[i], seen[inputs[i]])
		}
	}
	if peak > 4 {
		t.Errorf("peak concurrency = %d, want <= 4", peak)
	}
}

func TestRun_PerItemErrors(t *testing.T) {
	boom := errors.New("boom")
	results := Run(context.Background(), NewPool(2), []string{"ok", "bad", "ok2"}, func(_ context.Context, in string) (string, error) {
		if in == "bad" {
			return "", boom
		}
		return in, nil
	})
	if !errors.Is(results[1].Err, boom) {
		t.Errorf("results[1].Err = %v, want boom", results[1].Err)
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Error("an item error must not fail other items")
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	inputs := []string{"a", "b", "c", "d", "e", "f"}

	results := Run(ctx, NewPool(1), inputs, func(ctx context.Context, in string) (string, error) {
		if in == "b" {
			cancel()
		}
		time.Sleep(time.Millisecond)
		return in, nil
	})

	if results[0].Err != nil {
		t.Errorf("results[0].Err = %v, want nil", results[0].Err)
	}
	if !errors.Is(results[len(results)-1].Err, context.Canceled) {
		t.Errorf("last result error = %v, want context.Canceled", results[len(results)-1].Err)
	}
}

func TestRun_Empty(t *testing.T) {
	results := Run(context.Background(), NewPool(4), nil, func(context.Context, string) (int, error) {
		t.Fatal("fn called with no inputs")
		return 0, nil
	})
	if len(results) != 0 {
		t.Errorf("len(results) = %d", len(results))
	}
}
