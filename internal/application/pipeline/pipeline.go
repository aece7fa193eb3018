package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	analysisservice "tradebridge/internal/application/service/analysis"
	"tradebridge/internal/application/service/ingest"
	"tradebridge/internal/application/service/normalizer"
	"tradebridge/internal/config"
	analysis "tradebridge/internal/domain/entity/analysis"
	"tradebridge/internal/domain/entity/event"
	"tradebridge/internal/domain/entity/telemetry"
	"tradebridge/internal/domain/interfaces"
	"tradebridge/internal/infrastructure/worker"
	"tradebridge/internal/interfaces/ws"

	"github.com/sirupsen/logrus"
)

// TopicTranslated carries every canonical record the normalizer produces.
const TopicTranslated = "translated"

const mirrorTimeout = 2 * time.Second

// Status is the health snapshot served on /status.
type Status struct {
	WorkerReady          bool       `json:"workerReady"`
	WorkerState          string     `json:"workerState"`
	ConnectedSubscribers int        `json:"connectedSubscribers"`
	ActiveTopics         int        `json:"activeTopics"`
	Topics               []string   `json:"topics"`
	LastHeartbeat        *time.Time `json:"lastHeartbeat"`
	CachedResultCount    int        `json:"cachedResultCount"`
	PendingRequests      int        `json:"pendingRequests"`
}

// ResultSink receives every cached analysis result. Stop flushes what is buffered.
type ResultSink interface {
	Run(ctx context.Context)
	Add(res analysis.Result) error
	Stop(ctx context.Context) error
}

// Feed is an external source of raw payloads, such as the RabbitMQ consumer.
type Feed interface {
	Start(ctx context.Context) error
	Close() error
}

// Options carries the optional collaborators of a Pipeline.
type Options struct {
	// Launcher starts the worker process. Nil runs cfg.Worker.Command.
	Launcher worker.Launcher
	Mirror   interfaces.RecordMirror
	Archive  ResultSink
	// Feeds are built once the router exists.
	Feeds []func(ingestor *ingest.Router) (Feed, error)
}

// Pipeline owns the worker supervisor, request broker, normalizer, ingest
// router and subscription hub, and wires their callbacks together.
type Pipeline struct {
	logger *logrus.Entry

	normalizer *normalizer.Normalizer
	supervisor *worker.Supervisor
	broker     *analysisservice.Broker
	results    *analysisservice.ResultCache
	router     *ingest.Router
	hub        *ws.Hub
	mirror     interfaces.RecordMirror
	archive    ResultSink
	feeds      []Feed

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	mu      sync.Mutex
	stopped bool
}

func New(cfg *config.Config, opts Options, logger *logrus.Logger) (*Pipeline, error) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		logger:  logger.WithField("component", "pipeline"),
		mirror:  opts.Mirror,
		archive: opts.Archive,
		ctx:     ctx,
		cancel:  cancel,
	}

	p.hub = ws.NewHub(cfg.Hub, cfg.Analysis.Types, logger)
	p.normalizer = normalizer.New(
		normalizer.WithStrictOrder(cfg.Cache.StrictOrder),
		normalizer.WithLogger(logger),
		normalizer.WithListener(p.onRecord),
	)
	p.supervisor = worker.NewSupervisor(cfg.Worker, opts.Launcher, logger)
	p.broker = analysisservice.NewBroker(p.supervisor, cfg.Analysis.Timeout, logger)
	p.results = analysisservice.NewResultCache(cfg.Analysis.ResultCacheSize, cfg.Analysis.ResultCacheTTL)
	p.router = ingest.NewRouter(p.normalizer, p.broker, p.hub, p.results, logger)

	p.supervisor.OnMessage(p.broker.HandleMessage)
	p.supervisor.OnExit(p.broker.HandleExit)
	p.supervisor.OnStatus(p.onWorkerStatus)
	p.broker.OnComplete(func(res analysis.Result) {
		p.hub.Broadcast(event.New(event.AnalysisComplete, res), "")
	})
	if p.archive != nil {
		p.router.OnResult(p.onResult)
	}
	p.hub.SetAnalyzer(p.router)
	p.hub.SetReadiness(p.supervisor.IsReady)

	for _, build := range opts.Feeds {
		feed, err := build(p.router)
		if err != nil {
			cancel()
			return nil, err
		}
		p.feeds = append(p.feeds, feed)
	}
	return p, nil
}

// Start launches the worker, then the feeds.
func (p *Pipeline) Start(ctx context.Context) error {
	if p.archive != nil {
		p.archive.Run(p.ctx)
	}
	if err := p.supervisor.Start(ctx); err != nil {
		return err
	}
	for _, feed := range p.feeds {
		if err := feed.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown stops intake and the worker without restart, rejects pending
// requests and disconnects every subscriber.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	var errs []error
	p.once.Do(func() {
		for _, feed := range p.feeds {
			if err := feed.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := p.supervisor.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
		p.broker.Close()
		p.router.Close()
		if err := p.hub.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		p.wg.Wait()
		if p.archive != nil {
			if err := p.archive.Stop(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		p.cancel()
		p.logger.Info("pipeline stopped")
	})
	return errors.Join(errs...)
}

func (p *Pipeline) Router() *ingest.Router             { return p.router }
func (p *Pipeline) Normalizer() *normalizer.Normalizer { return p.normalizer }
func (p *Pipeline) Hub() *ws.Hub                       { return p.hub }

func (p *Pipeline) Status() Status {
	s := Status{
		WorkerReady:          p.supervisor.IsReady(),
		WorkerState:          string(p.supervisor.State()),
		ConnectedSubscribers: p.hub.ConnectedCount(),
		ActiveTopics:         p.hub.TopicCount(),
		Topics:               p.hub.Topics(),
		CachedResultCount:    p.results.Len(),
		PendingRequests:      p.broker.Pending(),
	}
	if hb, ok := p.supervisor.LastHeartbeat(); ok {
		s.LastHeartbeat = &hb
	}
	return s
}

func (p *Pipeline) onRecord(source telemetry.Source, rec telemetry.Record, cached bool) {
	p.hub.Distribute(TopicTranslated, map[string]any{
		"source": source,
		"record": rec,
	})
	// the mirror follows the in-memory cache
	if p.mirror == nil || !cached {
		return
	}
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(p.ctx, mirrorTimeout)
		defer cancel()
		if err := p.mirror.StoreRecord(ctx, rec); err != nil {
			p.logger.WithError(err).WithField("source", source).Warn("record mirror write failed")
		}
	}()
}

func (p *Pipeline) onWorkerStatus(state worker.State) {
	p.hub.Broadcast(event.New(event.WorkerStatus, map[string]any{
		"state": state,
		"ready": state == worker.StateReady,
	}), "")
}

func (p *Pipeline) onResult(res analysis.Result) {
	if err := p.archive.Add(res); err != nil {
		p.logger.WithError(err).WithField("correlation_id", res.CorrelationID).Warn("failed to archive result")
	}
}
