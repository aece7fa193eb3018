package analysis

import (
	"testing"
	"time"

	analysis "tradebridge/internal/domain/entity/analysis"

	"github.com/stretchr/testify/assert"
)

func TestResultCacheIsBounded(t *testing.T) {
	c := NewResultCache(3, 0)
	base := time.Now()
	for i := 0; i < 5; i++ {
		typ := "market_analysis"
		if i%2 == 1 {
			typ = "risk_assessment"
		}
		c.Add(analysis.Result{CorrelationID: string(rune('a' + i)), AnalysisType: typ, CompletedAt: base.Add(time.Duration(i) * time.Second)})
	}

	assert.Equal(t, 3, c.Len())
	recent := c.Recent("", 0)
	if assert.Len(t, recent, 3) {
		assert.Equal(t, "e", recent[0].CorrelationID)
		assert.Equal(t, "c", recent[2].CorrelationID)
	}

	market := c.Recent("market_analysis", 0)
	if assert.Len(t, market, 2) {
		assert.Equal(t, "e", market[0].CorrelationID)
	}
	assert.Len(t, c.Recent("", 1), 1)
}

func TestResultCacheTTL(t *testing.T) {
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	c := NewResultCache(10, time.Minute)
	c.now = func() time.Time { return now }

	c.Add(analysis.Result{CorrelationID: "old", CompletedAt: now.Add(-2 * time.Minute)})
	c.Add(analysis.Result{CorrelationID: "new", CompletedAt: now.Add(-10 * time.Second)})

	recent := c.Recent("", 0)
	if assert.Len(t, recent, 1) {
		assert.Equal(t, "new", recent[0].CorrelationID)
	}
	assert.Equal(t, 1, c.Len())
}
