// Package optimize is the admission-control engine: it decides, before
// any provider call, whether an image should be processed at all and at
// what quality tier, trading accuracy against the user's daily budget.
package optimize

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ledgerly/dispatch/internal/budget"
	"github.com/ledgerly/dispatch/internal/cache"
	"github.com/ledgerly/dispatch/internal/core/domain"
	"github.com/ledgerly/dispatch/internal/metrics"
)

// Config holds optimizer tuning.
type Config struct {
	// UnitCost is the heuristic provider cost for a single medium-tier
	// call, in the same unit as the daily limit.
	UnitCost float64 `yaml:"unit_cost"`

	// MinQuality is the floor below which images are skipped when
	// SkipLowQuality is on.
	MinQuality float64 `yaml:"min_quality"`

	SkipLowQuality bool `yaml:"skip_low_quality"`

	// LargeFileBytes marks the size above which the cost estimate gets
	// the large-file multiplier.
	LargeFileBytes      int     `yaml:"large_file_bytes"`
	LargeFileMultiplier float64 `yaml:"large_file_multiplier"`
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	UnitCost:            1.5,
	MinQuality:          0.4,
	SkipLowQuality:      true,
	LargeFileBytes:      5 * 1024 * 1024,
	LargeFileMultiplier: 1.5,
}

// tierMultipliers scale the unit cost per quality tier.
var tierMultipliers = map[domain.QualityTier]float64{
	domain.TierHigh:   1.0,
	domain.TierMedium: 0.6,
	domain.TierLow:    0.3,
}

type imageAnalyzer interface {
	Analyze(data []byte) ImageStats
}

// Metrics is the optimizer's accounting snapshot.
type Metrics struct {
	Decisions        int64   `json:"decisions"`
	Approved         int64   `json:"approved"`
	CacheShortCircuits int64 `json:"cache_short_circuits"`
	BudgetDeferred   int64   `json:"budget_deferred"`
	QualitySkipped   int64   `json:"quality_skipped"`
	EstimatedSavings float64 `json:"estimated_savings"`
}

// Optimizer applies the admission pipeline: cache short-circuit, image
// analysis, budget check, quality gate, tier choice, cost estimate.
type Optimizer struct {
	cache    *cache.ResultCache
	usage    *budget.Monitor
	analyzer imageAnalyzer
	cfg      Config
	log      *slog.Logger

	mu sync.Mutex
	m  Metrics
}

// NewOptimizer creates an optimizer over the cache and usage monitor.
func NewOptimizer(resultCache *cache.ResultCache, usage *budget.Monitor, cfg Config) *Optimizer {
	if cfg.UnitCost <= 0 {
		cfg.UnitCost = DefaultConfig.UnitCost
	}
	if cfg.MinQuality <= 0 {
		cfg.MinQuality = DefaultConfig.MinQuality
	}
	if cfg.LargeFileBytes <= 0 {
		cfg.LargeFileBytes = DefaultConfig.LargeFileBytes
	}
	if cfg.LargeFileMultiplier <= 0 {
		cfg.LargeFileMultiplier = DefaultConfig.LargeFileMultiplier
	}
	return &Optimizer{
		cache:    resultCache,
		usage:    usage,
		analyzer: NewAnalyzer(),
		cfg:      cfg,
		log:      slog.Default().With("component", "cost_optimizer"),
	}
}

// ShouldProcessImage decides whether the image should be submitted, and
// at what tier. The decision is ephemeral and never persisted.
func (o *Optimizer) ShouldProcessImage(
	ctx context.Context,
	image []byte,
	req domain.OCRRequest,
	priority int,
) domain.OptimizationDecision {
	o.count(func(m *Metrics) { m.Decisions++ })

	// 1. Cached work is free regardless of budget state.
	if _, ok := o.cache.Get(ctx, image, req.Options); ok {
		o.count(func(m *Metrics) {
			m.CacheShortCircuits++
			m.EstimatedSavings += o.cfg.UnitCost
		})
		metrics.AdmissionDecisions.WithLabelValues("cached").Inc()
		return domain.OptimizationDecision{
			ShouldProcess:     false,
			Reason:            "cached",
			EstimatedCost:     0,
			AlternativeAction: domain.ActionUseCachedResult,
		}
	}

	// 2. Image heuristics; analysis failure falls back to conservative
	// defaults inside the analyzer.
	stats := o.analyzer.Analyze(image)

	// 3. Budget. An unreachable ledger fails open at low quality rather
	// than blocking the user.
	remaining := o.cfg.UnitCost
	usage, err := o.usage.GetUserSpend(ctx, req.UserID, budget.DefaultWindow)
	if err != nil {
		o.log.Warn("usage lookup failed, assuming minimal budget", "user_id", req.UserID, "error", err)
	} else {
		remaining = usage.Remaining
		if usage.DailyLimit-usage.TotalCost <= 0 {
			o.count(func(m *Metrics) { m.BudgetDeferred++ })
			metrics.AdmissionDecisions.WithLabelValues("budget_exceeded").Inc()
			return domain.OptimizationDecision{
				ShouldProcess:     false,
				Reason:            fmt.Sprintf("budget exceeded: %.2f of %.2f spent", usage.TotalCost, usage.DailyLimit),
				AlternativeAction: domain.ActionDeferToNextDay,
			}
		}
	}

	// 4. Quality gate.
	if o.cfg.SkipLowQuality && stats.Quality < o.cfg.MinQuality {
		o.count(func(m *Metrics) {
			m.QualitySkipped++
			m.EstimatedSavings += o.cfg.UnitCost
		})
		metrics.AdmissionDecisions.WithLabelValues("quality_too_low").Inc()
		return domain.OptimizationDecision{
			ShouldProcess:     false,
			Reason:            fmt.Sprintf("quality too low: %.2f < %.2f", stats.Quality, o.cfg.MinQuality),
			QualityLevel:      domain.TierSkip,
			AlternativeAction: domain.ActionRequestBetterImage,
		}
	}

	// 5. Tier choice.
	tier := o.chooseTier(stats, priority, remaining)

	// 6. Cost estimate.
	cost := o.estimateCost(tier, stats)

	o.count(func(m *Metrics) { m.Approved++ })
	metrics.AdmissionDecisions.WithLabelValues("approved").Inc()
	return domain.OptimizationDecision{
		ShouldProcess: true,
		Reason:        "approved",
		EstimatedCost: cost,
		QualityLevel:  tier,
	}
}

func (o *Optimizer) chooseTier(stats ImageStats, priority int, remaining float64) domain.QualityTier {
	highCost := o.cfg.UnitCost * tierMultipliers[domain.TierHigh]

	switch {
	case priority >= domain.PriorityHigh && remaining >= highCost:
		return domain.TierHigh
	case stats.Quality >= 0.8 && stats.TextDensity >= 0.7 && remaining >= 0.8*o.cfg.UnitCost:
		return domain.TierHigh
	case stats.Quality >= 0.6 && stats.TextDensity >= 0.5 && remaining >= 0.6*o.cfg.UnitCost:
		return domain.TierMedium
	default:
		return domain.TierLow
	}
}

func (o *Optimizer) estimateCost(tier domain.QualityTier, stats ImageStats) float64 {
	cost := o.cfg.UnitCost * tierMultipliers[tier] * (1 + stats.Complexity*0.5)
	if stats.FileSize > o.cfg.LargeFileBytes {
		cost *= o.cfg.LargeFileMultiplier
	}
	return cost
}

// OptimizeBatch partitions a batch of images by admission decision and
// aggregates the estimated savings from skipped and deferred items.
func (o *Optimizer) OptimizeBatch(
	ctx context.Context,
	images [][]byte,
	req domain.OCRRequest,
	priority int,
) domain.BatchPlan {
	var plan domain.BatchPlan

	for i, img := range images {
		decision := o.ShouldProcessImage(ctx, img, req, priority)
		item := domain.BatchItem{Index: i, Decision: decision}

		switch {
		case decision.ShouldProcess:
			plan.ProcessNow = append(plan.ProcessNow, item)
		case decision.AlternativeAction == domain.ActionDeferToNextDay:
			plan.Defer = append(plan.Defer, item)
			plan.EstimatedSavings += o.cfg.UnitCost
		default:
			plan.Skip = append(plan.Skip, item)
			plan.EstimatedSavings += o.cfg.UnitCost
		}
	}

	if len(plan.ProcessNow) > 3 {
		plan.Recommendations = append(plan.Recommendations,
			fmt.Sprintf("batch of %d eligible images: submit together to amortize per-call overhead", len(plan.ProcessNow)))
	}
	return plan
}

// GetOptimizationMetrics returns the decision accounting snapshot.
func (o *Optimizer) GetOptimizationMetrics() Metrics {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.m
}

func (o *Optimizer) count(fn func(*Metrics)) {
	o.mu.Lock()
	fn(&o.m)
	o.mu.Unlock()
}
