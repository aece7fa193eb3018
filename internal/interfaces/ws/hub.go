package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"tradebridge/internal/config"
	analysis "tradebridge/internal/domain/entity/analysis"
	"tradebridge/internal/domain/entity/event"
	"tradebridge/internal/metrics"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	readLimit    = 1 << 20
	writeTimeout = 5 * time.Second
)

// Analyzer runs analyses requested by subscribers.
type Analyzer interface {
	Analyze(ctx context.Context, analysisType string, payload map[string]any) (analysis.Result, error)
}

// Hub tracks subscriber connections and their topic subscriptions.
type Hub struct {
	cfg           config.HubConfig
	analysisTypes []string
	logger        *logrus.Entry
	upgrader      websocket.Upgrader

	analyzer Analyzer
	ready    func() bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	clients map[string]*client
	topics  map[string]map[string]struct{}
	closed  bool
}

func NewHub(cfg config.HubConfig, analysisTypes []string, logger *logrus.Logger) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 25 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:           cfg,
		analysisTypes: analysisTypes,
		logger:        logger.WithField("component", "hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		ready:   func() bool { return false },
		ctx:     ctx,
		cancel:  cancel,
		clients: make(map[string]*client),
		topics:  make(map[string]map[string]struct{}),
	}
}

// SetAnalyzer wires the handler for client "analyze" messages.
func (h *Hub) SetAnalyzer(a Analyzer) { h.analyzer = a }

// SetReadiness wires the worker readiness reported in connection_status.
func (h *Hub) SetReadiness(fn func() bool) { h.ready = fn }

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	c := newClient(h, conn)
	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeTimeout))
		_ = conn.Close()
		return
	}

	h.Broadcast(event.New(event.ConnectionStatus, map[string]any{
		"clientId":      c.id,
		"analysisTypes": h.analysisTypes,
		"workerReady":   h.ready(),
	}), c.id)

	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c.id] = c
	count := len(h.clients)
	// one each for the read and write pumps
	h.wg.Add(2)
	h.mu.Unlock()

	metrics.Subscribers.Set(float64(count))
	h.logger.WithField("client", c.id).Info("subscriber connected")
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		c.close()
		return
	}
	delete(h.clients, c.id)
	for topic, members := range h.topics {
		delete(members, c.id)
		if len(members) == 0 {
			delete(h.topics, topic)
		}
	}
	count := len(h.clients)
	h.mu.Unlock()

	c.close()
	metrics.Subscribers.Set(float64(count))
	h.logger.WithField("client", c.id).Info("subscriber disconnected")
}

func (h *Hub) subscribe(c *client, topics []string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return nil
	}
	accepted := make([]string, 0, len(topics))
	for _, topic := range topics {
		if topic == "" {
			continue
		}
		members, ok := h.topics[topic]
		if !ok {
			members = make(map[string]struct{})
			h.topics[topic] = members
		}
		members[c.id] = struct{}{}
		accepted = append(accepted, topic)
	}
	return accepted
}

// Broadcast sends evt to every connection, or only to targetID when set.
// Unknown or closed targets are ignored.
func (h *Hub) Broadcast(evt event.Event, targetID string) {
	msg, err := encode(evt)
	if err != nil {
		h.logger.WithError(err).WithField("type", evt.Type).Error("failed to encode event")
		return
	}

	h.mu.RLock()
	var targets []*client
	if targetID != "" {
		if c, ok := h.clients[targetID]; ok {
			targets = append(targets, c)
		}
	} else {
		targets = make([]*client, 0, len(h.clients))
		for _, c := range h.clients {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(msg)
	}
}

// Distribute sends a data_update to the subscribers of dataType and nobody else.
func (h *Hub) Distribute(dataType string, payload any) {
	msg, err := encode(event.New(event.DataUpdate, map[string]any{
		"dataType": dataType,
		"payload":  payload,
	}))
	if err != nil {
		h.logger.WithError(err).WithField("topic", dataType).Error("failed to encode data update")
		return
	}

	h.mu.RLock()
	members := h.topics[dataType]
	targets := make([]*client, 0, len(members))
	for id := range members {
		if c, ok := h.clients[id]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(msg)
	}
}

func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) TopicCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics)
}

// Topics lists topics with at least one subscriber.
func (h *Hub) Topics() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.topics))
	for topic := range h.topics {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	h.cancel()
	for _, c := range clients {
		c.goingAway()
		h.unregister(c)
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func encode(evt event.Event) ([]byte, error) {
	return json.Marshal(evt)
}
