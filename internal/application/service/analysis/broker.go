package analysis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	analysis "tradebridge/internal/domain/entity/analysis"
	"tradebridge/internal/infrastructure/worker"
	"tradebridge/internal/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrWorkerUnavailable = errors.New("analysis worker unavailable")
	ErrRequestTimeout    = errors.New("analysis request timed out")
	ErrWorkerRestarted   = errors.New("analysis worker restarted")
	ErrWorkerStopped     = errors.New("analysis worker stopped")
	ErrBrokerClosed      = errors.New("analysis broker closed")
	ErrEmptyType         = errors.New("analysis type is required")
)

// Worker is the line channel to the analysis process.
type Worker interface {
	IsReady() bool
	WriteLine(v any) error
}

// CompletionListener observes every result matched to its caller.
type CompletionListener func(result analysis.Result)

type outcome struct {
	result analysis.Result
	err    error
}

type pendingRequest struct {
	req  analysis.Request
	done chan outcome
}

// Broker correlates requests written to the worker with the responses it prints.
type Broker struct {
	worker  Worker
	timeout time.Duration
	logger  *logrus.Entry
	now     func() time.Time

	mu        sync.Mutex
	pending   map[string]*pendingRequest
	closed    bool
	listeners []CompletionListener
}

func NewBroker(w Worker, timeout time.Duration, logger *logrus.Logger) *Broker {
	return &Broker{
		worker:  w,
		timeout: timeout,
		logger:  logger.WithField("component", "broker"),
		now:     time.Now,
		pending: make(map[string]*pendingRequest),
	}
}

func (b *Broker) OnComplete(l CompletionListener) {
	b.mu.Lock()
	b.listeners = append(b.listeners, l)
	b.mu.Unlock()
}

// Request sends one analysis call and blocks until its response, the timeout,
// ctx cancellation or a worker exit.
func (b *Broker) Request(ctx context.Context, analysisType string, payload map[string]any) (analysis.Result, error) {
	if analysisType == "" {
		return analysis.Result{}, ErrEmptyType
	}
	if !b.worker.IsReady() {
		metrics.AnalysisRequests.WithLabelValues(analysisType, "unavailable").Inc()
		return analysis.Result{}, ErrWorkerUnavailable
	}
	if payload == nil {
		payload = map[string]any{}
	}

	p, err := b.register(analysisType, payload)
	if err != nil {
		return analysis.Result{}, err
	}
	id := p.req.CorrelationID

	if err := b.worker.WriteLine(worker.NewOutbound(id, analysisType, payload)); err != nil {
		b.remove(id)
		if errors.Is(err, worker.ErrNotReady) {
			metrics.AnalysisRequests.WithLabelValues(analysisType, "unavailable").Inc()
			return analysis.Result{}, fmt.Errorf("%w: %w", ErrWorkerUnavailable, err)
		}
		metrics.AnalysisRequests.WithLabelValues(analysisType, "write_failed").Inc()
		return analysis.Result{}, fmt.Errorf("send analysis request %s: %w", id, err)
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case out := <-p.done:
		return b.finish(analysisType, out)
	case <-timer.C:
		if b.remove(id) {
			b.logger.WithFields(logrus.Fields{"id": id, "type": analysisType}).Warn("analysis request timed out")
			metrics.AnalysisRequests.WithLabelValues(analysisType, "timeout").Inc()
			return analysis.Result{}, fmt.Errorf("%w after %s", ErrRequestTimeout, b.timeout)
		}
	case <-ctx.Done():
		if b.remove(id) {
			metrics.AnalysisRequests.WithLabelValues(analysisType, "canceled").Inc()
			return analysis.Result{}, ctx.Err()
		}
	}
	// resolved concurrently with the timeout or cancellation
	return b.finish(analysisType, <-p.done)
}

func (b *Broker) finish(analysisType string, out outcome) (analysis.Result, error) {
	switch {
	case out.err == nil:
		if _, failed := out.result.AnalysisError(); failed {
			metrics.AnalysisRequests.WithLabelValues(analysisType, "analysis_error").Inc()
		} else {
			metrics.AnalysisRequests.WithLabelValues(analysisType, "ok").Inc()
		}
	case errors.Is(out.err, ErrWorkerRestarted):
		metrics.AnalysisRequests.WithLabelValues(analysisType, "restarted").Inc()
	default:
		metrics.AnalysisRequests.WithLabelValues(analysisType, "stopped").Inc()
	}
	return out.result, out.err
}

func (b *Broker) register(analysisType string, payload map[string]any) (*pendingRequest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}
	now := b.now()
	id := correlationID(now)
	for {
		if _, taken := b.pending[id]; !taken {
			break
		}
		id = correlationID(now)
	}
	p := &pendingRequest{
		req: analysis.Request{
			CorrelationID: id,
			AnalysisType:  analysisType,
			Payload:       payload,
			SubmittedAt:   now,
		},
		done: make(chan outcome, 1),
	}
	b.pending[id] = p
	metrics.PendingRequests.Set(float64(len(b.pending)))
	return p, nil
}

// remove reports whether id was still pending.
func (b *Broker) remove(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.pending[id]; !ok {
		return false
	}
	delete(b.pending, id)
	metrics.PendingRequests.Set(float64(len(b.pending)))
	return true
}

// HandleMessage resolves the caller waiting on msg.ID. Messages with unknown
// ids, such as heartbeat echoes, are ignored.
func (b *Broker) HandleMessage(msg worker.Inbound) {
	if msg.ID == "" {
		return
	}
	b.mu.Lock()
	p, ok := b.pending[msg.ID]
	if ok {
		delete(b.pending, msg.ID)
		metrics.PendingRequests.Set(float64(len(b.pending)))
	}
	listeners := append([]CompletionListener(nil), b.listeners...)
	b.mu.Unlock()

	if !ok {
		b.logger.WithFields(logrus.Fields{"id": msg.ID, "type": msg.Type}).Debug("ignoring uncorrelated worker message")
		return
	}

	result := analysis.Result{
		ID:            uuid.New(),
		CorrelationID: msg.ID,
		AnalysisType:  p.req.AnalysisType,
		Payload:       resultPayload(msg),
		SubmittedAt:   p.req.SubmittedAt,
		CompletedAt:   b.now(),
	}
	p.done <- outcome{result: result}

	for _, l := range listeners {
		l(result)
	}
}

// HandleExit rejects every pending request after the worker exits.
func (b *Broker) HandleExit(crashed bool) {
	err := ErrWorkerStopped
	if crashed {
		err = ErrWorkerRestarted
	}
	if n := b.rejectAll(err); n > 0 {
		b.logger.WithError(err).WithField("pending", n).Warn("rejected pending analysis requests")
	}
}

// Close rejects every pending request and refuses new ones.
func (b *Broker) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.rejectAll(ErrBrokerClosed)
}

func (b *Broker) rejectAll(err error) int {
	b.mu.Lock()
	pending := b.pending
	b.pending = make(map[string]*pendingRequest)
	metrics.PendingRequests.Set(0)
	b.mu.Unlock()

	for _, p := range pending {
		p.done <- outcome{err: err}
	}
	return len(pending)
}

// Pending returns the number of requests awaiting a response.
func (b *Broker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// correlationID is the unix millisecond time plus a random suffix.
func correlationID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + uuid.NewString()[:8]
}

func resultPayload(msg worker.Inbound) map[string]any {
	var payload map[string]any
	switch r := msg.Result.(type) {
	case map[string]any:
		payload = make(map[string]any, len(r)+1)
		for k, v := range r {
			payload[k] = v
		}
	case nil:
		payload = map[string]any{}
	default:
		payload = map[string]any{"value": r}
	}
	if msg.Error != nil {
		if _, ok := payload["error"]; !ok {
			payload["error"] = msg.Error
		}
	}
	return payload
}
