package strategy

import (
	"strings"

	"github.com/joshdurbin/offgate/internal/config"
	"github.com/joshdurbin/offgate/internal/domain"
)

type rule struct {
	strategy domain.Strategy
	prefixes []string
}

// Dispatcher classifies request paths into caching strategies using an
// ordered prefix table. Matching is plain starts-with; overlapping
// prefixes resolve by table order, not specificity. That ordering is
// part of the compatibility surface and must not change.
type Dispatcher struct {
	rules []rule
}

// NewDispatcher builds a dispatcher from the configured route tables
func NewDispatcher(routes config.RoutesConfig) *Dispatcher {
	return &Dispatcher{
		rules: []rule{
			{strategy: domain.CacheFirst, prefixes: routes.CacheFirst},
			{strategy: domain.NetworkFirst, prefixes: routes.NetworkFirst},
			{strategy: domain.StaleWhileRevalidate, prefixes: routes.StaleWhileRevalidate},
		},
	}
}

// Classify returns the strategy for a request path. Unmatched paths
// default to network-first.
func (d *Dispatcher) Classify(pathname string) domain.Strategy {
	for _, r := range d.rules {
		for _, prefix := range r.prefixes {
			if strings.HasPrefix(pathname, prefix) {
				return r.strategy
			}
		}
	}
	return domain.NetworkFirst
}
