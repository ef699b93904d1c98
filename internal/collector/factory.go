package collector

import (
	"fmt"

	"github.com/qepting91/reddit-top/internal/budget"
	"github.com/qepting91/reddit-top/internal/config"
	"github.com/qepting91/reddit-top/internal/domain"
)

// NewCollector selects the correct implementation based on the mode.
// Every real client shares b.
func NewCollector(cfg config.Config, b *budget.Budget) (domain.Collector, error) {
	switch cfg.CollectorMode {
	case "api":
		return NewAPIClient(Credentials{
			ID:       cfg.ClientID,
			Secret:   cfg.ClientSecret,
			Username: cfg.Username,
			Password: cfg.Password,
		}, cfg.UserAgent, b)
	case "public", "":
		return NewPublicClient(cfg.UserAgent, b)
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unknown COLLECTOR_MODE: %s (use 'api', 'public', or 'mock')", cfg.CollectorMode)
	}
}
