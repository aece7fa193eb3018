package analysis

import (
	"time"

	"github.com/google/uuid"
)

// MarketAnalysis is the analysis type issued automatically for market feeds.
const MarketAnalysis = "market_analysis"

// Request is one analysis call sent to the worker.
type Request struct {
	CorrelationID string         `json:"correlationId"`
	AnalysisType  string         `json:"analysisType"`
	Payload       map[string]any `json:"payload"`
	SubmittedAt   time.Time      `json:"submittedAt"`
}

// Result is the worker's answer to a Request.
type Result struct {
	ID            uuid.UUID      `json:"id"`
	CorrelationID string         `json:"correlationId"`
	AnalysisType  string         `json:"analysisType"`
	Payload       map[string]any `json:"payload"`
	SubmittedAt   time.Time      `json:"submittedAt"`
	CompletedAt   time.Time      `json:"completedAt"`
	AutoTriggered bool           `json:"autoTriggered,omitempty"`
}

// ProcessingTime is the round trip through the worker.
func (r Result) ProcessingTime() time.Duration {
	if r.SubmittedAt.IsZero() || r.CompletedAt.Before(r.SubmittedAt) {
		return 0
	}
	return r.CompletedAt.Sub(r.SubmittedAt)
}

// AnalysisError returns the worker-reported error, if the payload carries one.
// Such a result is valid but unsuccessful.
func (r Result) AnalysisError() (string, bool) {
	if r.Payload == nil {
		return "", false
	}
	raw, ok := r.Payload["error"]
	if !ok || raw == nil {
		return "", false
	}
	switch v := raw.(type) {
	case string:
		return v, v != ""
	case bool:
		return "analysis failed", v
	default:
		return "analysis failed", true
	}
}
