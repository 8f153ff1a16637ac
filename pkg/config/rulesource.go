package config

import (
	"context"

	"github.com/telepresenceio/dnsfilter/pkg/rules"
)

// RuleSource reads the rule list from the configuration each time it is asked.
type RuleSource struct {
	// Load is called to obtain the current configuration.
	Load func(ctx context.Context) (*Config, error)
}

func (s RuleSource) Rules(ctx context.Context) ([]rules.Rule, error) {
	cfg, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return cfg.Hosts.Rules()
}
