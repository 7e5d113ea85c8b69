package depot

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"romba-go/internal/model"
	"romba-go/internal/romba"
)

// Pool writes to the first online depot with room and reads from any online
// depot, in configured order.
type Pool struct {
	depots []romba.Depot
	logger romba.Logger

	mu        sync.Mutex
	exhausted map[string]bool
}

func NewPool(depots []romba.Depot, logger romba.Logger) *Pool {
	return &Pool{depots: depots, logger: logger, exhausted: make(map[string]bool)}
}

func (p *Pool) Depots() []romba.Depot { return p.depots }

// Store keeps at most one copy of content across the pool: if any online
// depot already has it, that depot is returned with stored=false.
func (p *Pool) Store(content io.Reader, hashes model.HashSet, size int64) (romba.Depot, bool, error) {
	if ShardPath(hashes.SHA1) == "" {
		return nil, false, fmt.Errorf("sha1 %q: %w", hashes.SHA1, romba.ErrInvalidHash)
	}
	if d, err := p.Find(hashes.SHA1); err == nil {
		return d, false, nil
	} else if !errors.Is(err, romba.ErrNotFound) {
		return nil, false, err
	}

	for _, d := range p.depots {
		if !d.Online() || d.Full() || p.isExhausted(d) {
			continue
		}
		stored, err := d.Store(content, hashes, size)
		if errors.Is(err, romba.ErrDepotFull) {
			p.markExhausted(d)
			continue
		}
		if err != nil {
			return d, false, err
		}
		if d.Full() {
			p.markExhausted(d)
		}
		return d, stored, nil
	}
	return nil, false, romba.ErrDepotFull
}

func (p *Pool) Find(sha1 string) (romba.Depot, error) {
	for _, d := range p.depots {
		if !d.Online() {
			continue
		}
		ok, err := d.Has(sha1)
		if err != nil {
			return nil, err
		}
		if ok {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", sha1, romba.ErrNotFound)
}

func (p *Pool) isExhausted(d romba.Depot) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exhausted[d.Root()]
}

func (p *Pool) markExhausted(d romba.Depot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.exhausted[d.Root()] {
		p.logger.Warn("depot full, skipping for writes", "depot", d.Root())
	}
	p.exhausted[d.Root()] = true
}

var _ romba.DepotPool = (*Pool)(nil)
