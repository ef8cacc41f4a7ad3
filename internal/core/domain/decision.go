package domain

// Alternative actions suggested when work is not submitted.
const (
	ActionUseCachedResult     = "use_cached_result"
	ActionDeferToNextDay      = "defer_to_next_day"
	ActionRequestBetterImage  = "request_better_quality_image"
)

// OptimizationDecision is the admission-control verdict for a single image.
// It is an ephemeral value object and is never persisted.
type OptimizationDecision struct {
	ShouldProcess     bool        `json:"should_process"`
	Reason            string      `json:"reason"`
	EstimatedCost     float64     `json:"estimated_cost"`
	QualityLevel      QualityTier `json:"quality_level,omitempty"`
	AlternativeAction string      `json:"alternative_action,omitempty"`
}

// BatchItem pairs an input index with its admission decision.
type BatchItem struct {
	Index    int                  `json:"index"`
	Decision OptimizationDecision `json:"decision"`
}

// BatchPlan partitions a batch of images by admission decision.
type BatchPlan struct {
	ProcessNow       []BatchItem `json:"process_now"`
	Defer            []BatchItem `json:"defer"`
	Skip             []BatchItem `json:"skip"`
	EstimatedSavings float64     `json:"estimated_savings"`
	Recommendations  []string    `json:"recommendations,omitempty"`
}
