package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tradebridge/internal/application/pipeline"
	appanalysis "tradebridge/internal/application/service/analysis"
	"tradebridge/internal/application/service/ingest"
	analysis "tradebridge/internal/domain/entity/analysis"
	"tradebridge/internal/domain/entity/telemetry"
	"tradebridge/internal/infrastructure/worker"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubRouter struct {
	result  analysis.Result
	err     error
	cached  []analysis.Result
	lastRaw map[string]any
}

func (s *stubRouter) IngestRaw(_ context.Context, raw map[string]any) (ingest.Ingested, error) {
	s.lastRaw = raw
	if s.err != nil {
		return ingest.Ingested{}, s.err
	}
	return ingest.Ingested{Source: telemetry.SourceGeneric, Kind: ingest.KindMarket}, nil
}

func (s *stubRouter) Analyze(_ context.Context, analysisType string, _ map[string]any) (analysis.Result, error) {
	if s.err != nil {
		return analysis.Result{}, s.err
	}
	res := s.result
	res.AnalysisType = analysisType
	return res, nil
}

func (s *stubRouter) Results(string, int) []analysis.Result {
	return s.cached
}

type stubRecords map[telemetry.Source]telemetry.Record

func (s stubRecords) LastRecord(source telemetry.Source) (telemetry.Record, bool) {
	rec, ok := s[source]
	return rec, ok
}

func (s stubRecords) Latest() (telemetry.Record, bool) {
	for _, rec := range s {
		return rec, true
	}
	return telemetry.Record{}, false
}

type stubStatus pipeline.Status

func (s stubStatus) Status() pipeline.Status { return pipeline.Status(s) }

type stubMirror struct {
	rec *telemetry.Record
}

func (m stubMirror) StoreRecord(context.Context, telemetry.Record) error { return nil }

func (m stubMirror) LoadRecord(context.Context, telemetry.Source) (*telemetry.Record, error) {
	return m.rec, nil
}

type stubArchive struct {
	gotType  string
	gotLimit int
}

func (a *stubArchive) AddResults(context.Context, []analysis.Result) error { return nil }

func (a *stubArchive) GetLastResults(_ context.Context, analysisType string, limit int) ([]analysis.Result, error) {
	a.gotType, a.gotLimit = analysisType, limit
	return []analysis.Result{{CorrelationID: "archived", AnalysisType: analysisType}}, nil
}

func (a *stubArchive) Close() {}

func newTestHandler(router *stubRouter) *Handler {
	return NewHandler(Deps{
		Router:  router,
		Records: stubRecords{},
		Status:  stubStatus{WorkerReady: true, WorkerState: "ready", ActiveTopics: 1, Topics: []string{"market"}},
	})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestIngestAcceptsObject(t *testing.T) {
	router := &stubRouter{}
	h := newTestHandler(router)

	rec := do(t, h, http.MethodPost, "/api/v1/ingest", `{"price": 1.5}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "generic", body["source"])
	assert.Equal(t, "market", body["kind"])
	assert.Equal(t, 1.5, router.lastRaw["price"])

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/ingest", `[1]`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/ingest", `null`).Code)
}

func TestAnalyzeSuccess(t *testing.T) {
	submitted := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	router := &stubRouter{result: analysis.Result{
		CorrelationID: "c1",
		Payload:       map[string]any{"trend": "up"},
		SubmittedAt:   submitted,
		CompletedAt:   submitted.Add(120 * time.Millisecond),
	}}
	rec := do(t, newTestHandler(router), http.MethodPost, "/api/v1/analyze",
		`{"analysisType":"market_analysis","payload":{"symbol":"ES"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "market_analysis", body["analysisType"])
	assert.Equal(t, float64(120), body["processingTimeMs"])
	assert.Equal(t, map[string]any{"trend": "up"}, body["result"])
	assert.NotContains(t, body, "analysisError")
}

func TestAnalyzeWorkerErrorFieldIsSuccess(t *testing.T) {
	router := &stubRouter{result: analysis.Result{Payload: map[string]any{"error": "no data"}}}
	rec := do(t, newTestHandler(router), http.MethodPost, "/api/v1/analyze", `{"analysisType":"risk_assessment"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no data", decode(t, rec)["analysisError"])
}

func TestAnalyzeErrorStatuses(t *testing.T) {
	cases := []struct {
		err       error
		status    int
		code      string
		retryable bool
	}{
		{appanalysis.ErrWorkerUnavailable, http.StatusServiceUnavailable, "service_unavailable", true},
		{fmt.Errorf("%w after 30s", appanalysis.ErrRequestTimeout), http.StatusGatewayTimeout, "request_timeout", true},
		{appanalysis.ErrWorkerRestarted, http.StatusBadGateway, "worker_restarted", true},
		{fmt.Errorf("send: %w", worker.ErrWrite), http.StatusBadGateway, "worker_write_failed", true},
		{appanalysis.ErrBrokerClosed, http.StatusServiceUnavailable, "service_unavailable", false},
		{context.Canceled, http.StatusServiceUnavailable, "canceled", false},
		{errors.New("boom"), http.StatusInternalServerError, "analysis_failed", false},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			rec := do(t, newTestHandler(&stubRouter{err: tc.err}), http.MethodPost, "/api/v1/analyze", `{"analysisType":"market_analysis"}`)
			assert.Equal(t, tc.status, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, tc.code, body["code"])
			assert.Equal(t, tc.retryable, body["retryable"])
		})
	}
}

func TestAnalyzeRequiresType(t *testing.T) {
	rec := do(t, newTestHandler(&stubRouter{}), http.MethodPost, "/api/v1/analyze", `{"payload":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errMissingType.Error(), decode(t, rec)["error"])
}

func TestStatus(t *testing.T) {
	rec := do(t, newTestHandler(&stubRouter{}), http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["workerReady"])
	assert.Equal(t, 1.0, body["activeTopics"])
	assert.Equal(t, []any{"market"}, body["topics"])
	require.Contains(t, body, "lastHeartbeat")
	assert.Nil(t, body["lastHeartbeat"])
}

func TestRecords(t *testing.T) {
	h := NewHandler(Deps{
		Router:  &stubRouter{},
		Records: stubRecords{telemetry.SourceTradovate: {Source: telemetry.SourceTradovate, Market: telemetry.Market{Symbol: "ESZ6"}}},
		Status:  stubStatus{},
		Mirror:  stubMirror{rec: &telemetry.Record{Source: telemetry.SourceTInvest}},
	})

	rec := do(t, h, http.MethodGet, "/api/v1/records?source=tradovate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tradovate", decode(t, rec)["source"])

	rec = do(t, h, http.MethodGet, "/api/v1/records?source=tinvest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tinvest", decode(t, rec)["source"])

	rec = do(t, h, http.MethodGet, "/api/v1/records", "")
	require.Equal(t, http.StatusOK, rec.Code)

	empty := newTestHandler(&stubRouter{})
	assert.Equal(t, http.StatusNotFound, do(t, empty, http.MethodGet, "/api/v1/records", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, empty, http.MethodGet, "/api/v1/records?source=ninjatrader", "").Code)
}

func TestResultsLimit(t *testing.T) {
	h := newTestHandler(&stubRouter{cached: []analysis.Result{{CorrelationID: "c1"}}})
	rec := do(t, h, http.MethodGet, "/api/v1/results?type=market_analysis", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var results []analysis.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/v1/results?limit=0", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/v1/results?limit=x", "").Code)
}

func TestArchivedResults(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable,
		do(t, newTestHandler(&stubRouter{}), http.MethodGet, "/api/v1/results/archive", "").Code)

	archive := &stubArchive{}
	h := NewHandler(Deps{Router: &stubRouter{}, Records: stubRecords{}, Status: stubStatus{}, Archive: archive})
	rec := do(t, h, http.MethodGet, "/api/v1/results/archive?type=risk_assessment&limit=5000", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "risk_assessment", archive.gotType)
	assert.Equal(t, maxResultsLimit, archive.gotLimit)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(t, newTestHandler(&stubRouter{}), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
