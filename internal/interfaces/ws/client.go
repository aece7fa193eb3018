package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	analysisservice "tradebridge/internal/application/service/analysis"
	"tradebridge/internal/domain/entity/event"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// clientMessage is any message a subscriber may send.
type clientMessage struct {
	Type         string         `json:"type"`
	DataTypes    []string       `json:"dataTypes,omitempty"`
	AnalysisType string         `json:"analysisType,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

type client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *logrus.Entry
}

func newClient(h *Hub, conn *websocket.Conn) *client {
	id := uuid.NewString()
	return &client{
		id:     id,
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, h.cfg.SendBuffer),
		done:   make(chan struct{}),
		logger: h.logger.WithField("client", id),
	}
}

// enqueue never blocks. A client whose buffer is full is dropped.
func (c *client) enqueue(msg []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		c.logger.Warn("send buffer full, dropping subscriber")
		go c.hub.unregister(c)
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *client) goingAway() {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
		time.Now().Add(writeTimeout))
}

func (c *client) pongWait() time.Duration {
	return c.hub.cfg.PingInterval * 2
}

func (c *client) readPump() {
	defer c.hub.unregister(c)

	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.WithError(err).Warn("subscriber read failed")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.WithError(err).Warn("malformed subscriber message, closing connection")
			return
		}
		c.handle(msg)
	}
}

func (c *client) handle(msg clientMessage) {
	switch msg.Type {
	case "subscribe":
		topics := c.hub.subscribe(c, msg.DataTypes)
		c.reply(event.New(event.SubscriptionConfirmed, map[string]any{"dataTypes": topics}))
	case "analyze":
		c.analyze(msg)
	case "ping":
		c.reply(event.New(event.Pong, nil))
	default:
		c.reply(event.New(event.Error, map[string]any{
			"code":    "unknown_message_type",
			"message": "unknown message type: " + msg.Type,
		}))
	}
}

func (c *client) analyze(msg clientMessage) {
	if c.hub.analyzer == nil || msg.AnalysisType == "" {
		c.reply(event.New(event.Error, map[string]any{
			"code":    "invalid_request",
			"message": "analysisType is required",
		}))
		return
	}
	c.hub.wg.Add(1)
	go func() {
		defer c.hub.wg.Done()
		res, err := c.hub.analyzer.Analyze(c.hub.ctx, msg.AnalysisType, msg.Data)
		if err != nil {
			c.reply(event.New(event.Error, map[string]any{
				"code":         errorCode(err),
				"message":      err.Error(),
				"analysisType": msg.AnalysisType,
			}))
			return
		}
		c.reply(event.New(event.AnalysisResult, res))
	}()
}

func (c *client) reply(evt event.Event) {
	msg, err := encode(evt)
	if err != nil {
		c.logger.WithError(err).Error("failed to encode reply")
		return
	}
	c.enqueue(msg)
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.hub.unregister(c)
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.WithError(err).Debug("subscriber write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.WithError(err).Debug("subscriber ping failed")
				return
			}
		}
	}
}

// errorCode maps broker failures to the codes the HTTP API uses.
func errorCode(err error) string {
	switch {
	case errors.Is(err, analysisservice.ErrWorkerUnavailable):
		return "service_unavailable"
	case errors.Is(err, analysisservice.ErrRequestTimeout):
		return "request_timeout"
	case errors.Is(err, analysisservice.ErrWorkerRestarted):
		return "worker_restarted"
	default:
		return "analysis_failed"
	}
}
