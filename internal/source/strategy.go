package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"EBMS/internal/domain"
	"EBMS/internal/ports"
)

// StrategySource implements PubmedSource by asking registered sources in order.
// Ids one source cannot supply are passed on to the next.
type StrategySource struct {
	registry *Registry
	order    []string
	logger   *slog.Logger
}

var _ ports.PubmedSource = (*StrategySource)(nil)

// NewStrategySource wires the registry with the configured source order.
func NewStrategySource(reg *Registry, order []string, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		order:    order,
		logger:   log,
	}
}

// Name lists the sources in the order they are consulted.
func (s *StrategySource) Name() string {
	return strings.Join(s.order, "+")
}

// Fetch collects records from each configured source until every id is found.
func (s *StrategySource) Fetch(ctx context.Context, pmids []string) ([]domain.PubmedRecord, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("source registry is not configured")
	}

	s.debug("fetch records", "sources", len(s.order), "pmids", len(pmids))

	pending := pmids
	var aggregated []domain.PubmedRecord
	for _, name := range s.order {
		if len(pending) == 0 {
			break
		}
		src, err := s.registry.Resolve(name)
		if err != nil {
			return nil, err
		}

		results, err := src.Fetch(ctx, pending)
		if err != nil {
			return nil, fmt.Errorf("fetch from %s: %w", name, err)
		}

		found := make(map[string]bool, len(results))
		for _, rec := range results {
			found[rec.PMID] = true
		}
		var missing []string
		for _, pmid := range pending {
			if !found[pmid] {
				missing = append(missing, pmid)
			}
		}
		s.debug("source produced records", "source", name, "count", len(results), "missing", len(missing))
		aggregated = append(aggregated, results...)
		pending = missing
	}

	s.debug("strategy source done", "total_records", len(aggregated))
	return aggregated, nil
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
