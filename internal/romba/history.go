package romba

import (
	"context"
	"fmt"
)

// GetHistory returns the most recent operations, ordered newest first.
func (s *Service) GetHistory(ctx context.Context, limit int) ([]*Operation, error) {
	ops, err := s.index.ListOperations(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}
