package core

import (
	"context"
	"fmt"

	"LaunchLedger/internal/observability"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ProcessedLookup is the tier-2 store lookup for processed keys.
type ProcessedLookup interface {
	HasProcessedSignature(ctx context.Context, key string) (bool, error)
}

// IdempotencyChecker implements two-tier deduplication: an in-memory LRU in
// front of the store's processed-signature table. The LRU is advisory; the
// store check inside the launch transaction is authoritative.
type IdempotencyChecker struct {
	// Tier 1: In-memory LRU
	lru *lru.Cache[string, struct{}]

	// Tier 2: store
	lookup ProcessedLookup

	metrics *observability.Metrics
}

func NewIdempotencyChecker(capacity int, lookup ProcessedLookup, metrics *observability.Metrics) (*IdempotencyChecker, error) {
	cache, err := lru.New[string, struct{}](capacity)
	if err != nil {
		return nil, fmt.Errorf("dedup cache: %w", err)
	}
	return &IdempotencyChecker{
		lru:     cache,
		lookup:  lookup,
		metrics: metrics,
	}, nil
}

// IsDuplicate checks if the key has been processed (two-tier lookup).
// A tier-2 error is reported as not-duplicate; the transactional check
// still guards the write.
func (ic *IdempotencyChecker) IsDuplicate(ctx context.Context, eventType, key string) bool {
	// Tier 1: LRU check (hot path)
	if ic.lru.Contains(key) {
		ic.recordDuplicate(eventType, "lru")
		return true
	}

	// Tier 2: store check (cold path)
	if ic.lookup == nil {
		return false
	}
	isDup, err := ic.lookup.HasProcessedSignature(ctx, key)
	if err != nil {
		if ic.metrics != nil {
			ic.metrics.DedupTier2Errors.Inc()
		}
		return false
	}
	if isDup {
		ic.recordDuplicate(eventType, "store")
		ic.lru.Add(key, struct{}{})
		return true
	}
	return false
}

// MarkProcessed adds key to the LRU after a successful commit.
func (ic *IdempotencyChecker) MarkProcessed(key string) {
	ic.lru.Add(key, struct{}{})
	if ic.metrics != nil {
		ic.metrics.DedupLRUSize.Set(float64(ic.lru.Len()))
	}
}

// Warm loads recently processed keys so restarts don't pay tier-2 lookups
// for redelivered events.
func (ic *IdempotencyChecker) Warm(keys []string) {
	// oldest first, so the most recent keys end up most recently used
	for i := len(keys) - 1; i >= 0; i-- {
		ic.lru.Add(keys[i], struct{}{})
	}
	if ic.metrics != nil {
		ic.metrics.DedupLRUSize.Set(float64(ic.lru.Len()))
	}
}

// Size returns current number of cached keys.
func (ic *IdempotencyChecker) Size() int {
	return ic.lru.Len()
}

func (ic *IdempotencyChecker) recordDuplicate(eventType, tier string) {
	if ic.metrics != nil {
		ic.metrics.IdempotencyDuplicates.WithLabelValues(eventType, tier).Inc()
	}
}
