package triage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/platform/cache"
)

const (
	symptomListKey = "catalog:symptoms"
	redFlagListKey = "catalog:red_flags"
)

// cachedSymptoms keeps the full symptom list in the cache store. Lookups by
// id are answered from that list. Cache failures fall through to the
// underlying catalog.
type cachedSymptoms struct {
	next   SymptomCatalog
	store  cache.Store
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCachedSymptomCatalog(next SymptomCatalog, store cache.Store, ttl time.Duration, logger zerolog.Logger) SymptomCatalog {
	return &cachedSymptoms{next: next, store: store, ttl: ttl, logger: logger}
}

func (c *cachedSymptoms) List(ctx context.Context) ([]Symptom, error) {
	var items []Symptom
	err := c.store.Get(ctx, symptomListKey, &items)
	if err == nil {
		return items, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		c.logger.Warn().Err(err).Str("key", symptomListKey).Msg("catalog cache read failed")
	}
	items, err = c.next.List(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.store.Set(ctx, symptomListKey, items, c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("key", symptomListKey).Msg("catalog cache write failed")
	}
	return items, nil
}

func (c *cachedSymptoms) Get(ctx context.Context, id uuid.UUID) (*Symptom, error) {
	items, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].ID == id {
			return &items[i], nil
		}
	}
	// The cached list may predate the symptom.
	return c.next.Get(ctx, id)
}

func (c *cachedSymptoms) Resolve(ctx context.Context, ids []uuid.UUID) ([]Symptom, error) {
	items, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	want := NewSymptomSet(ids...)
	out := []Symptom{}
	for _, s := range items {
		if want.Contains(s.ID) {
			out = append(out, s)
		}
	}
	if len(out) < want.Len() {
		return c.next.Resolve(ctx, ids)
	}
	return out, nil
}

func (c *cachedSymptoms) Create(ctx context.Context, s *Symptom) error {
	if err := c.next.Create(ctx, s); err != nil {
		return err
	}
	if err := c.store.Delete(ctx, symptomListKey); err != nil {
		c.logger.Warn().Err(err).Str("key", symptomListKey).Msg("catalog cache invalidation failed")
	}
	return nil
}

type cachedRedFlags struct {
	next   RedFlagCatalog
	store  cache.Store
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCachedRedFlagCatalog(next RedFlagCatalog, store cache.Store, ttl time.Duration, logger zerolog.Logger) RedFlagCatalog {
	return &cachedRedFlags{next: next, store: store, ttl: ttl, logger: logger}
}

func (c *cachedRedFlags) List(ctx context.Context) ([]RedFlag, error) {
	var items []RedFlag
	err := c.store.Get(ctx, redFlagListKey, &items)
	if err == nil {
		return items, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		c.logger.Warn().Err(err).Str("key", redFlagListKey).Msg("catalog cache read failed")
	}
	items, err = c.next.List(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.store.Set(ctx, redFlagListKey, items, c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("key", redFlagListKey).Msg("catalog cache write failed")
	}
	return items, nil
}

func (c *cachedRedFlags) Create(ctx context.Context, rf *RedFlag) error {
	if err := c.next.Create(ctx, rf); err != nil {
		return err
	}
	if err := c.store.Delete(ctx, redFlagListKey); err != nil {
		c.logger.Warn().Err(err).Str("key", redFlagListKey).Msg("catalog cache invalidation failed")
	}
	return nil
}
