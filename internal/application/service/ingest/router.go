package ingest

import (
	"context"
	"errors"
	"sync"

	analysisservice "tradebridge/internal/application/service/analysis"
	analysis "tradebridge/internal/domain/entity/analysis"
	"tradebridge/internal/domain/entity/event"
	"tradebridge/internal/domain/entity/telemetry"
	interfaces "tradebridge/internal/domain/interfaces"

	"github.com/sirupsen/logrus"
)

var ErrRouterClosed = errors.New("ingest router closed")

// Kind is the high-level shape of a raw payload. It names the topic the raw
// payload is distributed on.
type Kind string

const (
	KindMarket      Kind = "market"
	KindStrategy    Kind = "strategy"
	KindPosition    Kind = "position"
	KindPerformance Kind = "performance"
	KindGeneric     Kind = "generic"
)

type rule struct {
	kind Kind
	keys []string
}

// checked in order, first match wins
var rules = []rule{
	{KindMarket, []string{"market", "price", "last", "bid", "ask", "quote", "LastTradePrice", "entries", "candle", "trade", "orderbook", "last_price"}},
	{KindStrategy, []string{"strategies", "strategy", "signal", "signals"}},
	{KindPosition, []string{"position", "positions", "netPos", "PositionQuantity", "quantity"}},
	{KindPerformance, []string{"performance", "pnl", "winRate", "sharpeRatio", "drawdown", "equityCurve"}},
}

// Classify returns the first kind whose keys appear at the top level of raw.
func Classify(raw map[string]any) Kind {
	for _, r := range rules {
		for _, key := range r.keys {
			if _, ok := raw[key]; ok {
				return r.kind
			}
		}
	}
	return KindGeneric
}

type Normalizer interface {
	Normalize(raw map[string]any) (telemetry.Record, error)
}

type Analyzer interface {
	Request(ctx context.Context, analysisType string, payload map[string]any) (analysis.Result, error)
}

// Ingested is what IngestRaw produced for one payload.
type Ingested struct {
	Source telemetry.Source `json:"source"`
	Kind   Kind             `json:"kind"`
	Record telemetry.Record `json:"record"`
}

// Router is the entry point for raw payloads and explicit analysis calls.
type Router struct {
	normalizer Normalizer
	analyzer   Analyzer
	publisher  interfaces.Publisher
	results    *analysisservice.ResultCache
	onResult   []func(analysis.Result)
	logger     *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func NewRouter(n Normalizer, a Analyzer, p interfaces.Publisher, results *analysisservice.ResultCache, logger *logrus.Logger) *Router {
	ctx, cancel := context.WithCancel(context.Background())
	return &Router{
		normalizer: n,
		analyzer:   a,
		publisher:  p,
		results:    results,
		logger:     logger.WithField("component", "ingest"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// IngestRaw normalizes raw, distributes it on its classified topic and, for
// market payloads, starts a market_analysis in the background.
func (r *Router) IngestRaw(ctx context.Context, raw map[string]any) (Ingested, error) {
	if err := r.ctx.Err(); err != nil {
		return Ingested{}, ErrRouterClosed
	}
	rec, err := r.normalizer.Normalize(raw)
	if err != nil {
		return Ingested{}, err
	}
	kind := Classify(raw)
	r.publisher.Distribute(string(kind), raw)

	if kind == KindMarket {
		r.autoAnalyze(rec, raw)
	}
	return Ingested{Source: rec.Source, Kind: kind, Record: rec}, nil
}

func (r *Router) autoAnalyze(rec telemetry.Record, raw map[string]any) {
	payload := map[string]any{
		"source": rec.Source,
		"symbol": rec.Market.Symbol,
		"record": rec,
		"raw":    raw,
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		res, err := r.analyzer.Request(r.ctx, analysis.MarketAnalysis, payload)
		if err != nil {
			log := r.logger.WithError(err).WithField("source", rec.Source)
			if errors.Is(err, analysisservice.ErrWorkerUnavailable) || errors.Is(err, context.Canceled) {
				log.Debug("auto analysis skipped")
			} else {
				log.Warn("auto analysis failed")
			}
			return
		}
		res.AutoTriggered = true
		r.keep(res)
		r.publisher.Broadcast(event.New(event.AutoAnalysis, res), "")
	}()
}

// Analyze runs one explicit analysis and caches its result. Fan-out happens
// through the broker's completion listeners.
func (r *Router) Analyze(ctx context.Context, analysisType string, payload map[string]any) (analysis.Result, error) {
	res, err := r.analyzer.Request(ctx, analysisType, payload)
	if err != nil {
		return analysis.Result{}, err
	}
	r.keep(res)
	return res, nil
}

// OnResult registers fn for every result the router caches. Register before use.
func (r *Router) OnResult(fn func(analysis.Result)) {
	r.onResult = append(r.onResult, fn)
}

func (r *Router) keep(res analysis.Result) {
	r.results.Add(res)
	for _, fn := range r.onResult {
		fn(res)
	}
}

// Results returns cached results, newest first.
func (r *Router) Results(analysisType string, limit int) []analysis.Result {
	return r.results.Recent(analysisType, limit)
}

// Close cancels running auto analyses and waits for them.
func (r *Router) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()
	r.wg.Wait()
}
