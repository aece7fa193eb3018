package analysis

import (
	"sync"
	"time"

	analysis "tradebridge/internal/domain/entity/analysis"
)

// ResultCache keeps the most recent results in a fixed-capacity ring.
// With a positive ttl, older results are skipped on read.
type ResultCache struct {
	mu   sync.RWMutex
	buf  []analysis.Result
	next int
	size int
	ttl  time.Duration
	now  func() time.Time
}

func NewResultCache(capacity int, ttl time.Duration) *ResultCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &ResultCache{
		buf: make([]analysis.Result, capacity),
		ttl: ttl,
		now: time.Now,
	}
}

func (c *ResultCache) Add(r analysis.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf[c.next] = r
	c.next = (c.next + 1) % len(c.buf)
	if c.size < len(c.buf) {
		c.size++
	}
}

// Recent returns up to limit results, newest first. An empty analysisType
// matches every type; limit <= 0 means no limit.
func (c *ResultCache) Recent(analysisType string, limit int) []analysis.Result {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]analysis.Result, 0, c.size)
	for i := 1; i <= c.size; i++ {
		r := c.buf[(c.next-i+len(c.buf))%len(c.buf)]
		if c.expired(r) {
			continue
		}
		if analysisType != "" && r.AnalysisType != analysisType {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Len counts results that have not expired.
func (c *ResultCache) Len() int {
	return len(c.Recent("", 0))
}

// expired must be called with mu held.
func (c *ResultCache) expired(r analysis.Result) bool {
	return c.ttl > 0 && c.now().Sub(r.CompletedAt) > c.ttl
}
