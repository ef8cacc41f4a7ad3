package domain

import "time"

// QualityTier is the coarse accuracy/cost setting for a provider call.
type QualityTier string

const (
	TierHigh   QualityTier = "high"
	TierMedium QualityTier = "medium"
	TierLow    QualityTier = "low"
	TierSkip   QualityTier = "skip"
)

// OCROptions controls how the provider extracts text.
type OCROptions struct {
	Languages []string    `json:"languages,omitempty"`
	Features  []string    `json:"features,omitempty"`
	Tier      QualityTier `json:"tier,omitempty"`
}

// OCRRequest is a request to extract text from a statement image.
type OCRRequest struct {
	UserID string     `json:"user_id"`
	Image  []byte     `json:"image"`
	Options OCROptions `json:"options"`

	// EstimatedCost is the admission-control estimate attached by the
	// optimizer. Recorded against the user's spend on success.
	EstimatedCost float64 `json:"estimated_cost,omitempty"`
}

// OCRResult is the extracted text returned by the provider.
type OCRResult struct {
	Text             string    `json:"text"`
	Confidence       float64   `json:"confidence"`
	BlockConfidences []float64 `json:"block_confidences,omitempty"`
	Pages            int       `json:"pages"`
	DetectedAt       time.Time `json:"detected_at"`
}

// SpendRecord is one billable provider call attributed to a user.
type SpendRecord struct {
	ID        string      `db:"id"         json:"id"`
	UserID    string      `db:"user_id"    json:"user_id"`
	JobID     string      `db:"job_id"     json:"job_id"`
	Cost      float64     `db:"cost"       json:"cost"`
	Tier      QualityTier `db:"tier"       json:"tier"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
}
