package depot

import (
	"fmt"

	"romba-go/internal/config"
	"romba-go/internal/romba"
)

// NewPoolFromConfig opens every configured depot in order.
func NewPoolFromConfig(cfgs []config.DepotConfig, logger romba.Logger) (*Pool, error) {
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("no depots configured")
	}
	depots := make([]romba.Depot, 0, len(cfgs))
	for _, c := range cfgs {
		if c.Path == "" {
			return nil, fmt.Errorf("depot path must be set")
		}
		d, err := NewFileSystemDepot(c.Path, c.MaxSize, c.IsOnline(), logger)
		if err != nil {
			return nil, fmt.Errorf("opening depot %s: %w", c.Path, err)
		}
		depots = append(depots, d)
	}
	return NewPool(depots, logger), nil
}
