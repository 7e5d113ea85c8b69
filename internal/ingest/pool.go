// Package ingest hashes input files in parallel and funnels the results
// into the index through a single writer.
package ingest

import (
	"context"
	"sync"
)

// MaxWorkers is the largest pool size NewPool accepts.
const MaxWorkers = 16

// Pool is a bounded set of workers.
type Pool struct {
	workers int
}

// NewPool returns a pool of n workers, clamped to [1, MaxWorkers].
func NewPool(n int) *Pool {
	return &Pool{workers: min(max(n, 1), MaxWorkers)}
}

func (p *Pool) Workers() int { return p.workers }

// Result is the outcome of processing one input.
type Result[T any] struct {
	Input string
	Value T
	Err   error
}

// Run applies fn to every input using the pool's workers. Each input is
// handed to exactly one worker. Results are returned in input order. Once
// ctx is cancelled no new input is started and the remaining results carry
// ctx.Err().
func Run[T any](ctx context.Context, p *Pool, inputs []string, fn func(ctx context.Context, input string) (T, error)) []Result[T] {
	results := make([]Result[T], len(inputs))
	for i, in := range inputs {
		results[i].Input = in
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(p.workers, len(inputs)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := ctx.Err(); err != nil {
					results[i].Err = err
					continue
				}
				results[i].Value, results[i].Err = fn(ctx, inputs[i])
			}
		}()
	}

	for i := range inputs {
		if ctx.Err() != nil {
			results[i].Err = ctx.Err()
			continue
		}
		select {
		case jobs <- i:
		case <-ctx.Done():
			results[i].Err = ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()
	return results
}
