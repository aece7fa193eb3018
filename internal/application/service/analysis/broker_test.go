package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	analysis "tradebridge/internal/domain/entity/analysis"
	"tradebridge/internal/infrastructure/worker"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWorker struct {
	ready  atomic.Bool
	writes atomic.Int32
	sent   chan worker.Outbound
	err    error
}

func newFakeWorker(ready bool) *fakeWorker {
	w := &fakeWorker{sent: make(chan worker.Outbound, 256)}
	w.ready.Store(ready)
	return w
}

func (w *fakeWorker) IsReady() bool { return w.ready.Load() }

func (w *fakeWorker) WriteLine(v any) error {
	w.writes.Add(1)
	if w.err != nil {
		return w.err
	}
	w.sent <- v.(worker.Outbound)
	return nil
}

func (w *fakeWorker) next(t *testing.T) worker.Outbound {
	t.Helper()
	select {
	case msg := <-w.sent:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no request written")
		return worker.Outbound{}
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestRequestResolvesWithResult(t *testing.T) {
	w := newFakeWorker(true)
	b := NewBroker(w, time.Second, quietLogger())
	completed := make(chan analysis.Result, 1)
	b.OnComplete(func(r analysis.Result) { completed <- r })

	go func() {
		msg := w.next(t)
		b.HandleMessage(worker.Inbound{ID: "heartbeat-1", Type: worker.TypeHeartbeat})
		b.HandleMessage(worker.Inbound{ID: msg.ID, Type: msg.Type, Result: map[string]any{"trend": "up"}})
	}()

	res, err := b.Request(context.Background(), analysis.MarketAnalysis, map[string]any{"symbol": "ES"})
	require.NoError(t, err)
	assert.Equal(t, analysis.MarketAnalysis, res.AnalysisType)
	assert.Equal(t, "up", res.Payload["trend"])
	assert.NotEmpty(t, res.CorrelationID)
	_, failed := res.AnalysisError()
	assert.False(t, failed)
	assert.Equal(t, 0, b.Pending())

	select {
	case r := <-completed:
		assert.Equal(t, res.CorrelationID, r.CorrelationID)
	case <-time.After(time.Second):
		t.Fatal("completion not published")
	}
}

func TestConcurrentRequestsOutOfOrder(t *testing.T) {
	const n = 40
	w := newFakeWorker(true)
	b := NewBroker(w, 5*time.Second, quietLogger())

	type answer struct {
		want int
		got  analysis.Result
		err  error
	}
	answers := make(chan answer, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := b.Request(context.Background(), "risk_assessment", map[string]any{"n": i})
			answers <- answer{want: i, got: res, err: err}
		}(i)
	}

	msgs := make([]worker.Outbound, 0, n)
	for i := 0; i < n; i++ {
		msgs = append(msgs, w.next(t))
	}
	ids := map[string]bool{}
	for _, msg := range msgs {
		assert.False(t, ids[msg.ID], "duplicate correlation id %s", msg.ID)
		ids[msg.ID] = true
	}

	rand.Shuffle(len(msgs), func(i, j int) { msgs[i], msgs[j] = msgs[j], msgs[i] })
	for _, msg := range msgs {
		data := msg.Data.(map[string]any)
		b.HandleMessage(worker.Inbound{ID: msg.ID, Result: map[string]any{"n": data["n"]}})
	}

	wg.Wait()
	close(answers)
	for a := range answers {
		require.NoError(t, a.err)
		assert.Equal(t, a.want, a.got.Payload["n"])
	}
}

func TestRequestTimeoutPurgesID(t *testing.T) {
	w := newFakeWorker(true)
	b := NewBroker(w, 30*time.Millisecond, quietLogger())

	_, err := b.Request(context.Background(), "pattern_recognition", nil)
	assert.ErrorIs(t, err, ErrRequestTimeout)
	assert.Equal(t, 0, b.Pending())

	// a late answer is ignored
	msg := w.next(t)
	b.HandleMessage(worker.Inbound{ID: msg.ID, Result: map[string]any{}})
	assert.Equal(t, 0, b.Pending())
}

func TestContextCancelPurgesID(t *testing.T) {
	w := newFakeWorker(true)
	b := NewBroker(w, time.Minute, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		w.next(t)
		cancel()
	}()
	_, err := b.Request(ctx, "market_analysis", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, b.Pending())
}

func TestUnavailableWorkerIsNotWritten(t *testing.T) {
	w := newFakeWorker(false)
	b := NewBroker(w, time.Second, quietLogger())

	_, err := b.Request(context.Background(), analysis.MarketAnalysis, map[string]any{})
	assert.ErrorIs(t, err, ErrWorkerUnavailable)
	assert.Equal(t, int32(0), w.writes.Load())
	assert.Equal(t, 0, b.Pending())
}

func TestWriteErrorsAreReturned(t *testing.T) {
	w := newFakeWorker(true)
	w.err = fmt.Errorf("%w: broken pipe", worker.ErrWrite)
	b := NewBroker(w, time.Second, quietLogger())

	_, err := b.Request(context.Background(), analysis.MarketAnalysis, nil)
	assert.ErrorIs(t, err, worker.ErrWrite)
	assert.Equal(t, 0, b.Pending())

	w.err = worker.ErrNotReady
	_, err = b.Request(context.Background(), analysis.MarketAnalysis, nil)
	assert.ErrorIs(t, err, ErrWorkerUnavailable)
}

func TestCrashRejectsAllPending(t *testing.T) {
	const k = 5
	w := newFakeWorker(true)
	b := NewBroker(w, time.Minute, quietLogger())

	errs := make(chan error, k)
	for i := 0; i < k; i++ {
		go func() {
			_, err := b.Request(context.Background(), "strategy_optimization", nil)
			errs <- err
		}()
	}
	for i := 0; i < k; i++ {
		w.next(t)
	}
	require.Eventually(t, func() bool { return b.Pending() == k }, time.Second, time.Millisecond)

	w.ready.Store(false)
	b.HandleExit(true)
	for i := 0; i < k; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrWorkerRestarted)
		case <-time.After(time.Second):
			t.Fatal("pending request not rejected")
		}
	}
	assert.Equal(t, 0, b.Pending())
}

func TestCleanExitAndClose(t *testing.T) {
	w := newFakeWorker(true)
	b := NewBroker(w, time.Minute, quietLogger())

	errs := make(chan error, 1)
	go func() {
		_, err := b.Request(context.Background(), "performance_analysis", nil)
		errs <- err
	}()
	w.next(t)
	require.Eventually(t, func() bool { return b.Pending() == 1 }, time.Second, time.Millisecond)
	b.HandleExit(false)
	assert.ErrorIs(t, <-errs, ErrWorkerStopped)

	b.Close()
	_, err := b.Request(context.Background(), "performance_analysis", nil)
	assert.True(t, errors.Is(err, ErrBrokerClosed))
}

func TestWorkerErrorFieldIsKept(t *testing.T) {
	w := newFakeWorker(true)
	b := NewBroker(w, time.Second, quietLogger())

	go func() {
		msg := w.next(t)
		b.HandleMessage(worker.Inbound{ID: msg.ID, Error: "insufficient data"})
	}()
	res, err := b.Request(context.Background(), "orderflow_analysis", nil)
	require.NoError(t, err)
	reason, failed := res.AnalysisError()
	assert.True(t, failed)
	assert.Equal(t, "insufficient data", reason)
}

func TestEmptyTypeRejected(t *testing.T) {
	b := NewBroker(newFakeWorker(true), time.Second, quietLogger())
	_, err := b.Request(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrEmptyType)
}
