package normalizer

import (
	"errors"
	"sync"
	"time"

	"tradebridge/internal/domain/entity/telemetry"
	"tradebridge/internal/metrics"

	"github.com/sirupsen/logrus"
)

var ErrEmptyPayload = errors.New("payload is empty")

// Listener receives every record produced by Normalize. It runs on the
// caller's goroutine after the cache has been updated. cached is false when
// strict ordering kept an older-arriving but newer record in the cache.
type Listener func(source telemetry.Source, record telemetry.Record, cached bool)

type Option func(*Normalizer)

// WithStrictOrder makes the per-source cache keep the record with the newest
// timestamp instead of the last one to arrive.
func WithStrictOrder(strict bool) Option {
	return func(n *Normalizer) { n.strictOrder = strict }
}

func WithListener(l Listener) Option {
	return func(n *Normalizer) { n.listeners = append(n.listeners, l) }
}

func WithLogger(logger *logrus.Logger) Option {
	return func(n *Normalizer) { n.log = logger.WithField("component", "normalizer") }
}

func WithAdapters(adapters ...Adapter) Option {
	return func(n *Normalizer) { n.adapters = adapters }
}

type Normalizer struct {
	adapters    []Adapter
	fallback    Adapter
	strictOrder bool
	log         *logrus.Entry
	now         func() time.Time

	mu        sync.RWMutex
	cache     map[telemetry.Source]telemetry.Record
	listeners []Listener
}

func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		adapters: DefaultAdapters(),
		fallback: GenericAdapter{},
		log:      logrus.StandardLogger().WithField("component", "normalizer"),
		now:      time.Now,
		cache:    make(map[telemetry.Source]telemetry.Record),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Subscribe adds a listener after construction.
func (n *Normalizer) Subscribe(l Listener) {
	n.mu.Lock()
	n.listeners = append(n.listeners, l)
	n.mu.Unlock()
}

// Normalize translates raw with the first adapter that detects it, falling back
// to the generic adapter. Only a nil payload is refused.
func (n *Normalizer) Normalize(raw map[string]any) (telemetry.Record, error) {
	if raw == nil {
		return telemetry.Record{}, ErrEmptyPayload
	}

	rec, ok := n.translate(raw)
	if !ok {
		// generic never fails
		rec, _ = n.fallback.Translate(raw)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = n.now().UTC()
	}
	if rec.Strategies == nil {
		rec.Strategies = map[string]telemetry.Strategy{}
	}
	metrics.RecordsNormalized.WithLabelValues(rec.Source.String()).Inc()

	n.mu.Lock()
	cached := n.store(rec)
	listeners := append([]Listener(nil), n.listeners...)
	n.mu.Unlock()

	for _, l := range listeners {
		l(rec.Source, rec.Clone(), cached)
	}
	return rec.Clone(), nil
}

func (n *Normalizer) translate(raw map[string]any) (telemetry.Record, bool) {
	for _, adapter := range n.adapters {
		if !adapter.Detect(raw) {
			continue
		}
		rec, err := adapter.Translate(raw)
		if err != nil {
			metrics.TranslateFailures.WithLabelValues(adapter.Source().String()).Inc()
			n.log.WithError(err).WithField("source", adapter.Source()).Warn("adapter rejected payload, using generic fallback")
			return telemetry.Record{}, false
		}
		rec.Source = adapter.Source()
		return rec, true
	}
	return telemetry.Record{}, false
}

// store must be called with mu held. It reports whether rec replaced the cached record.
func (n *Normalizer) store(rec telemetry.Record) bool {
	if n.strictOrder {
		if prev, ok := n.cache[rec.Source]; ok && rec.Timestamp.Before(prev.Timestamp) {
			n.log.WithFields(logrus.Fields{
				"source":   rec.Source,
				"incoming": rec.Timestamp,
				"cached":   prev.Timestamp,
			}).Debug("out of order record not cached")
			return false
		}
	}
	n.cache[rec.Source] = rec
	return true
}

// LastRecord returns the cached record of one source.
func (n *Normalizer) LastRecord(source telemetry.Source) (telemetry.Record, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	rec, ok := n.cache[source]
	if !ok {
		return telemetry.Record{}, false
	}
	return rec.Clone(), true
}

// Latest returns the cached record with the newest timestamp across all sources.
func (n *Normalizer) Latest() (telemetry.Record, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	var (
		latest telemetry.Record
		found  bool
	)
	for _, rec := range n.cache {
		if !found || rec.Timestamp.After(latest.Timestamp) {
			latest, found = rec, true
		}
	}
	if !found {
		return telemetry.Record{}, false
	}
	return latest.Clone(), true
}

// Sources lists the sources currently cached.
func (n *Normalizer) Sources() []telemetry.Source {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]telemetry.Source, 0, len(n.cache))
	for source := range n.cache {
		out = append(out, source)
	}
	return out
}
