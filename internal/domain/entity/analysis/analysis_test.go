package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProcessingTime(t *testing.T) {
	start := time.Now()
	assert.Equal(t, 250*time.Millisecond, Result{SubmittedAt: start, CompletedAt: start.Add(250 * time.Millisecond)}.ProcessingTime())
	assert.Zero(t, Result{CompletedAt: start}.ProcessingTime())
	assert.Zero(t, Result{SubmittedAt: start, CompletedAt: start.Add(-time.Second)}.ProcessingTime())
}

func TestAnalysisError(t *testing.T) {
	cases := map[string]struct {
		payload map[string]any
		reason  string
		failed  bool
	}{
		"none":       {map[string]any{"trend": "up"}, "", false},
		"nil":        {nil, "", false},
		"message":    {map[string]any{"error": "no data"}, "no data", true},
		"empty":      {map[string]any{"error": ""}, "", false},
		"flag":       {map[string]any{"error": true}, "analysis failed", true},
		"flag false": {map[string]any{"error": false}, "analysis failed", false},
		"object":     {map[string]any{"error": map[string]any{"code": 1}}, "analysis failed", true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			reason, failed := Result{Payload: tc.payload}.AnalysisError()
			assert.Equal(t, tc.failed, failed)
			assert.Equal(t, tc.reason, reason)
		})
	}
}
