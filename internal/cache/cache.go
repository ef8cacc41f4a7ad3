// Package cache provides the content-addressed OCR result cache.
// Identical image bytes plus identical processing options map to the same
// key, so repeated uploads never re-pay the provider.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ledgerly/dispatch/internal/core/domain"
	"github.com/ledgerly/dispatch/internal/metrics"
)

// ErrNotFound is returned by stores when a key has no entry.
var ErrNotFound = errors.New("cache: entry not found")

// DefaultTTL is how long an untouched entry lives. Hits refresh it.
const DefaultTTL = 7 * 24 * time.Hour

// Store is the backing key/value store with TTL support.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
}

// Entry is the stored value for one cache key.
type Entry struct {
	Result      domain.OCRResult   `json:"result"`
	CachedAt    time.Time          `json:"cached_at"`
	HitCount    int                `json:"hit_count"`
	ContentHash string             `json:"content_hash"`
	FileSize    int                `json:"file_size"`
	Tier        domain.QualityTier `json:"tier"`
}

// Metrics is the cache's accounting snapshot.
type Metrics struct {
	Hits                int64   `json:"hits"`
	Misses              int64   `json:"misses"`
	TotalRequests       int64   `json:"total_requests"`
	HitRatio            float64 `json:"hit_ratio"`
	CostSavingsEstimate float64 `json:"cost_savings_estimate"`
}

// ResultCache fronts a Store with content-addressed keys and hit
// accounting. Store failures are never fatal: an unreachable store reads
// as a miss and writes are dropped.
type ResultCache struct {
	store    Store
	ttl      time.Duration
	unitCost float64
	log      *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewResultCache creates a cache over store. unitCost is the per-call
// provider cost used for the savings estimate.
func NewResultCache(store Store, ttl time.Duration, unitCost float64) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResultCache{
		store:    store,
		ttl:      ttl,
		unitCost: unitCost,
		log:      slog.Default().With("component", "result_cache"),
	}
}

// Key derives the content-addressed key for an image and its options.
// Deterministic and order-independent over option fields.
func Key(image []byte, opts domain.OCROptions) string {
	imgHash := sha256.Sum256(image)

	canonical := canonicalOptions(opts)
	optHash := sha256.Sum256(canonical)

	return "ocr_result:" + hex.EncodeToString(imgHash[:]) + ":" + hex.EncodeToString(optHash[:])
}

// canonicalOptions serializes options with sorted slices so that field
// ordering in the caller never changes the key.
func canonicalOptions(opts domain.OCROptions) []byte {
	langs := append([]string(nil), opts.Languages...)
	feats := append([]string(nil), opts.Features...)
	sort.Strings(langs)
	sort.Strings(feats)

	data, _ := json.Marshal(struct {
		Languages []string           `json:"languages"`
		Features  []string           `json:"features"`
		Tier      domain.QualityTier `json:"tier"`
	}{langs, feats, opts.Tier})
	return data
}

// Get returns the cached result for the image/options pair, if any.
// On a hit the entry's hit count is bumped and its TTL refreshed.
func (c *ResultCache) Get(ctx context.Context, image []byte, opts domain.OCROptions) (*domain.OCRResult, bool) {
	key := Key(image, opts)

	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			// Fail open: an unreachable store is a miss.
			c.log.Warn("cache store unavailable, treating as miss", "error", err)
		}
		c.misses.Add(1)
		metrics.CacheEvents.WithLabelValues("miss").Inc()
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.log.Warn("corrupt cache entry dropped", "key", key, "error", err)
		c.misses.Add(1)
		metrics.CacheEvents.WithLabelValues("miss").Inc()
		return nil, false
	}

	entry.HitCount++
	if updated, err := json.Marshal(entry); err == nil {
		if err := c.store.Set(ctx, key, updated, c.ttl); err != nil {
			c.log.Warn("failed to refresh cache entry", "key", key, "error", err)
		}
	}

	c.hits.Add(1)
	metrics.CacheEvents.WithLabelValues("hit").Inc()
	return &entry.Result, true
}

// Put stores a computed result. Empty extractions are never cached.
func (c *ResultCache) Put(ctx context.Context, image []byte, result *domain.OCRResult, opts domain.OCROptions) error {
	if result == nil || result.Text == "" {
		return nil
	}

	textHash := sha256.Sum256([]byte(result.Text))
	entry := Entry{
		Result:      *result,
		CachedAt:    time.Now(),
		ContentHash: hex.EncodeToString(textHash[:]),
		FileSize:    len(image),
		Tier:        TierForConfidence(result.Confidence),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	key := Key(image, opts)
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		// Fail open: a dropped write only costs a future provider call.
		c.log.Warn("failed to write cache entry", "key", key, "error", err)
		return nil
	}
	return nil
}

// TierForConfidence maps extraction confidence to a quality tier.
func TierForConfidence(confidence float64) domain.QualityTier {
	switch {
	case confidence >= 0.9:
		return domain.TierHigh
	case confidence >= 0.7:
		return domain.TierMedium
	default:
		return domain.TierLow
	}
}

// Metrics returns hit accounting and the estimated provider cost saved.
func (c *ResultCache) Metrics() Metrics {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses

	ratio := 0.0
	if total > 0 {
		ratio = float64(hits) / float64(total)
	}

	return Metrics{
		Hits:                hits,
		Misses:              misses,
		TotalRequests:       total,
		HitRatio:            ratio,
		CostSavingsEstimate: float64(hits) * c.unitCost,
	}
}

// Healthy probes the backing store.
func (c *ResultCache) Healthy(ctx context.Context) error {
	return c.store.Ping(ctx)
}
