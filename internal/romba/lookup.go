package romba

import (
	"context"
	"fmt"
	"strings"

	"romba-go/internal/model"
)

// LookupMatch is one piece of content a looked-up hash resolves to.
type LookupMatch struct {
	SHA1  string
	Depot string // "" when the content is known but not stored
}

// LookupResult is the answer to a hash lookup.
type LookupResult struct {
	Hash      string
	Algorithm model.Algorithm
	Matches   []LookupMatch
}

// Lookup resolves a CRC32, MD5 or SHA-1 given as hex to the content the
// index knows for it and where that content is stored. The algorithm is
// inferred from the length. A hash with no matches is not an error.
func (s *Service) Lookup(ctx context.Context, hash string) (*LookupResult, error) {
	hash = strings.ToLower(strings.TrimSpace(hash))
	alg, ok := model.AlgorithmForLength(len(hash))
	if !ok || !model.IsHex(hash, len(hash)) {
		return nil, fmt.Errorf("%q: %w", hash, ErrInvalidHash)
	}
	if alg != model.CRC32 && alg != model.MD5 && alg != model.SHA1 {
		return nil, fmt.Errorf("%s hashes are not indexed", alg)
	}

	var hs model.HashSet
	hs.Set(alg, hash)
	sha1s, err := s.index.ResolveSHA1s(ctx, hs)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", hash, err)
	}

	res := &LookupResult{Hash: hash, Algorithm: alg}
	for _, sha1 := range sha1s {
		depot, _, err := s.index.FindDepot(ctx, sha1)
		if err != nil {
			return nil, fmt.Errorf("finding depot of %s: %w", sha1, err)
		}
		res.Matches = append(res.Matches, LookupMatch{SHA1: sha1, Depot: depot})
	}
	return res, nil
}
