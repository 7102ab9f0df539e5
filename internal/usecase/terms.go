package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"EBMS/internal/domain"
	"EBMS/internal/ports"
)

const vocabularyKey = "states"

// Vocabulary caches the state terms, which change only when an administrator edits them.
type Vocabulary struct {
	catalog ports.CatalogRepository
	cache   *cache.Cache
}

// NewVocabulary builds a term cache expiring after ttl.
func NewVocabulary(catalog ports.CatalogRepository, ttl time.Duration) *Vocabulary {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Vocabulary{catalog: catalog, cache: cache.New(ttl, 2*ttl)}
}

// All returns every term in workflow order.
func (v *Vocabulary) All(ctx context.Context) ([]domain.StateTerm, error) {
	if cached, ok := v.cache.Get(vocabularyKey); ok {
		return cached.([]domain.StateTerm), nil
	}
	terms, err := v.catalog.States(ctx)
	if err != nil {
		return nil, fmt.Errorf("load states: %w", err)
	}
	v.cache.SetDefault(vocabularyKey, terms)
	return terms, nil
}

// Term resolves a text id, failing with domain.ErrValidation for unknown ids.
func (v *Vocabulary) Term(ctx context.Context, textID string) (domain.StateTerm, error) {
	terms, err := v.All(ctx)
	if err != nil {
		return domain.StateTerm{}, err
	}
	for _, t := range terms {
		if t.TextID == textID {
			return t, nil
		}
	}
	return domain.StateTerm{}, fmt.Errorf("%w: unknown state %q", domain.ErrValidation, textID)
}

// IDs resolves several text ids at once.
func (v *Vocabulary) IDs(ctx context.Context, textIDs []string) ([]int64, error) {
	ids := make([]int64, 0, len(textIDs))
	for _, textID := range textIDs {
		t, err := v.Term(ctx, textID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, t.ID)
	}
	return ids, nil
}

// Invalidate drops the cached terms.
func (v *Vocabulary) Invalidate() {
	v.cache.Flush()
}
