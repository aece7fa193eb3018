// @title           Trade Bridge API
// @version         1.0
// @description     Normalizes trading platform telemetry and brokers analysis requests to an external worker
// @termsOfService  http://swagger.io/terms/

// @contact.name   API Support
// @contact.url    http://www.swagger.io/support
// @contact.email  support@swagger.io

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /api/v1

package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"tradebridge/internal/application/pipeline"
	appanalysis "tradebridge/internal/application/service/analysis"
	"tradebridge/internal/application/service/ingest"
	analysis "tradebridge/internal/domain/entity/analysis"
	"tradebridge/internal/domain/entity/telemetry"
	interfaces "tradebridge/internal/domain/interfaces"
	"tradebridge/internal/infrastructure/worker"
	"tradebridge/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const (
	apiBasePath         = "/api/v1"
	defaultResultsLimit = 50
	maxResultsLimit     = 1000
)

var (
	errEmptyBody        = errors.New("request body must be a JSON object")
	errMissingType      = errors.New("analysisType is required")
	errRecordNotFound   = errors.New("no record received yet")
	errArchiveDisabled  = errors.New("result archive is not configured")
	errInvalidLimit     = errors.New("limit must be a positive integer")
	errAnalysisCanceled = errors.New("analysis request canceled")
)

// Ingestor is the ingest router as seen by the API.
type Ingestor interface {
	IngestRaw(ctx context.Context, raw map[string]any) (ingest.Ingested, error)
	Analyze(ctx context.Context, analysisType string, payload map[string]any) (analysis.Result, error)
	Results(analysisType string, limit int) []analysis.Result
}

// RecordReader exposes the normalizer's per-source cache.
type RecordReader interface {
	LastRecord(source telemetry.Source) (telemetry.Record, bool)
	Latest() (telemetry.Record, bool)
}

type StatusReader interface {
	Status() pipeline.Status
}

// Deps are the collaborators the API serves. Mirror, Archive and Cache are optional.
type Deps struct {
	Router      Ingestor
	Records     RecordReader
	Status      StatusReader
	Subscribers http.Handler
	Mirror      interfaces.RecordMirror
	Archive     interfaces.ResultArchiveRepository
	Cache       *redis.Client
	CacheTTL    time.Duration
}

type Handler struct {
	router *gin.Engine
	deps   Deps
}

func NewHandler(deps Deps) *Handler {
	router := gin.New()
	router.Use(gin.Recovery())

	h := &Handler{
		router: router,
		deps:   deps,
	}
	h.registerRoutes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	h.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := h.router.Group(apiBasePath)
	{
		api.POST("/ingest", h.ingest)
		api.POST("/analyze", h.analyze)
		api.GET("/status", h.status)
		api.GET("/records", h.records)
		api.GET("/results", h.results)

		archive := api.Group("/results/archive")
		if h.deps.Cache != nil {
			archive.Use(h.cacheMiddleware())
		}
		archive.GET("", h.archivedResults)

		if h.deps.Subscribers != nil {
			api.GET("/ws", gin.WrapH(h.deps.Subscribers))
		}
	}
}

// ingest normalizes one raw upstream payload
// @Summary      Ingest raw payload
// @Description  Detect the upstream format of an arbitrary JSON object and normalize it
// @Tags         ingest
// @Accept       json
// @Produce      json
// @Param        payload  body      object  true  "Raw upstream snapshot"
// @Success      202      {object}  ingest.Ingested
// @Failure      400      {object}  map[string]string
// @Router       /ingest [post]
func (h *Handler) ingest(c *gin.Context) {
	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	if raw == nil {
		writeError(c, http.StatusBadRequest, errEmptyBody)
		return
	}
	got, err := h.deps.Router.IngestRaw(c.Request.Context(), raw)
	if err != nil {
		writeError(c, http.StatusServiceUnavailable, err)
		return
	}
	c.JSON(http.StatusAccepted, got)
}

type analyzeRequest struct {
	AnalysisType string         `json:"analysisType"`
	Payload      map[string]any `json:"payload"`
}

type analyzeResponse struct {
	AnalysisType     string         `json:"analysisType"`
	CorrelationID    string         `json:"correlationId"`
	Result           map[string]any `json:"result"`
	Timestamp        time.Time      `json:"timestamp"`
	ProcessingTimeMs int64          `json:"processingTimeMs"`
	AnalysisError    string         `json:"analysisError,omitempty"`
}

// analyze runs one analysis on the worker
// @Summary      Run analysis
// @Description  Send an analysis request to the worker and wait for its result
// @Tags         analysis
// @Accept       json
// @Produce      json
// @Param        request  body      analyzeRequest  true  "Analysis type and payload"
// @Success      200      {object}  analyzeResponse
// @Failure      400      {object}  map[string]string
// @Failure      502      {object}  map[string]interface{}
// @Failure      503      {object}  map[string]interface{}
// @Failure      504      {object}  map[string]interface{}
// @Router       /analyze [post]
func (h *Handler) analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	if req.AnalysisType == "" {
		writeError(c, http.StatusBadRequest, errMissingType)
		return
	}
	res, err := h.deps.Router.Analyze(c.Request.Context(), req.AnalysisType, req.Payload)
	if err != nil {
		writeAnalysisError(c, err)
		return
	}
	resp := analyzeResponse{
		AnalysisType:     res.AnalysisType,
		CorrelationID:    res.CorrelationID,
		Result:           res.Payload,
		Timestamp:        res.CompletedAt,
		ProcessingTimeMs: res.ProcessingTime().Milliseconds(),
	}
	if reason, failed := res.AnalysisError(); failed {
		resp.AnalysisError = reason
	}
	c.JSON(http.StatusOK, resp)
}

// status reports worker and subscriber health
// @Summary      Service status
// @Tags         status
// @Produce      json
// @Success      200  {object}  pipeline.Status
// @Router       /status [get]
func (h *Handler) status(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Status.Status())
}

// records returns the latest normalized record
// @Summary      Latest record
// @Description  Latest record of one source, or the newest across all sources
// @Tags         records
// @Produce      json
// @Param        source  query     string  false  "ninjatrader, sierrachart, tradovate, tinvest or generic"
// @Success      200     {object}  telemetry.Record
// @Failure      404     {object}  map[string]string
// @Router       /records [get]
func (h *Handler) records(c *gin.Context) {
	source := telemetry.Source(c.Query("source"))
	if source == "" {
		rec, ok := h.deps.Records.Latest()
		if !ok {
			writeError(c, http.StatusNotFound, errRecordNotFound)
			return
		}
		c.JSON(http.StatusOK, rec)
		return
	}

	if rec, ok := h.deps.Records.LastRecord(source); ok {
		c.JSON(http.StatusOK, rec)
		return
	}
	if h.deps.Mirror != nil {
		rec, err := h.deps.Mirror.LoadRecord(c.Request.Context(), source)
		if err != nil {
			writeError(c, http.StatusInternalServerError, err)
			return
		}
		if rec != nil {
			c.JSON(http.StatusOK, rec)
			return
		}
	}
	writeError(c, http.StatusNotFound, errRecordNotFound)
}

// results lists cached analysis results
// @Summary      Recent results
// @Tags         analysis
// @Produce      json
// @Param        type   query     string  false  "Analysis type"
// @Param        limit  query     int     false  "Maximum number of results"
// @Success      200    {array}   analysis.Result
// @Failure      400    {object}  map[string]string
// @Router       /results [get]
func (h *Handler) results(c *gin.Context) {
	limit, err := parseLimit(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, h.deps.Router.Results(c.Query("type"), limit))
}

// archivedResults lists results persisted in Postgres
// @Summary      Archived results
// @Tags         analysis
// @Produce      json
// @Param        type   query     string  false  "Analysis type"
// @Param        limit  query     int     false  "Maximum number of results"
// @Success      200    {array}   analysis.Result
// @Failure      400    {object}  map[string]string
// @Failure      500    {object}  map[string]string
// @Failure      503    {object}  map[string]string
// @Router       /results/archive [get]
func (h *Handler) archivedResults(c *gin.Context) {
	if h.deps.Archive == nil {
		writeError(c, http.StatusServiceUnavailable, errArchiveDisabled)
		return
	}
	limit, err := parseLimit(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	results, err := h.deps.Archive.GetLastResults(c.Request.Context(), c.Query("type"), limit)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func writeError(c *gin.Context, status int, err error) {
	if err == nil {
		status = http.StatusInternalServerError
		err = errors.New("unknown error")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// writeAnalysisError keeps "not ready", "timed out" and "worker died" apart.
func writeAnalysisError(c *gin.Context, err error) {
	status, code, retryable := http.StatusInternalServerError, "analysis_failed", false
	switch {
	case errors.Is(err, appanalysis.ErrEmptyType):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, appanalysis.ErrWorkerUnavailable):
		status, code, retryable = http.StatusServiceUnavailable, "service_unavailable", true
	case errors.Is(err, appanalysis.ErrRequestTimeout):
		status, code, retryable = http.StatusGatewayTimeout, "request_timeout", true
	case errors.Is(err, appanalysis.ErrWorkerRestarted):
		status, code, retryable = http.StatusBadGateway, "worker_restarted", true
	case errors.Is(err, worker.ErrWrite):
		status, code, retryable = http.StatusBadGateway, "worker_write_failed", true
	case errors.Is(err, appanalysis.ErrWorkerStopped), errors.Is(err, appanalysis.ErrBrokerClosed):
		status, code = http.StatusServiceUnavailable, "service_unavailable"
	case errors.Is(err, context.Canceled):
		status, code = http.StatusServiceUnavailable, "canceled"
		err = errAnalysisCanceled
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code, "retryable": retryable})
}

// cacheMiddleware caches GET responses in Redis.
func (h *Handler) cacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.deps.Cache == nil || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := h.cacheKey(c)
		ctx := c.Request.Context()

		if cached, err := h.deps.Cache.Get(ctx, key).Result(); err == nil {
			c.Data(http.StatusOK, "application/json", []byte(cached))
			c.Abort()
			return
		}

		recorder := &responseRecorder{
			ResponseWriter: c.Writer,
			status:         http.StatusOK,
			body:           &bytes.Buffer{},
		}
		c.Writer = recorder

		c.Next()

		if recorder.status >= 200 && recorder.status < 300 && recorder.body.Len() > 0 {
			_ = h.deps.Cache.Set(ctx, key, recorder.body.Bytes(), h.deps.CacheTTL).Err()
		}
	}
}

type responseRecorder struct {
	gin.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if len(data) > 0 {
		r.body.Write(data)
	}
	return r.ResponseWriter.Write(data)
}

func (h *Handler) cacheKey(c *gin.Context) string {
	return fmt.Sprintf("cache:%s:%s?%s", c.Request.Method, c.FullPath(), c.Request.URL.RawQuery)
}

func parseLimit(c *gin.Context) (int, error) {
	value := c.Query("limit")
	if value == "" {
		return defaultResultsLimit, nil
	}
	limit, err := strconv.Atoi(value)
	if err != nil || limit <= 0 {
		return 0, errInvalidLimit
	}
	if limit > maxResultsLimit {
		limit = maxResultsLimit
	}
	return limit, nil
}
