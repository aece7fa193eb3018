package ws

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	analysisservice "tradebridge/internal/application/service/analysis"
	"tradebridge/internal/config"
	analysis "tradebridge/internal/domain/entity/analysis"
	"tradebridge/internal/domain/entity/event"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	Type event.Type     `json:"type"`
	Data map[string]any `json:"data"`
}

type stubAnalyzer struct {
	err error
}

func (s stubAnalyzer) Analyze(_ context.Context, analysisType string, payload map[string]any) (analysis.Result, error) {
	if s.err != nil {
		return analysis.Result{}, s.err
	}
	return analysis.Result{CorrelationID: "c1", AnalysisType: analysisType, Payload: payload}, nil
}

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	hub := NewHub(config.HubConfig{SendBuffer: 16, PingInterval: time.Second}, []string{"market_analysis"}, logger)
	hub.SetReadiness(func() bool { return true })
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		_ = hub.Close(context.Background())
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) (*websocket.Conn, string) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	status := read(t, conn)
	require.Equal(t, event.ConnectionStatus, status.Type)
	assert.Equal(t, true, status.Data["workerReady"])
	assert.Equal(t, []any{"market_analysis"}, status.Data["analysisTypes"])
	id, _ := status.Data["clientId"].(string)
	require.NotEmpty(t, id)
	return conn, id
}

func read(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg received
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	var netErr interface{ Timeout() bool }
	if assert.ErrorAs(t, err, &netErr) {
		assert.True(t, netErr.Timeout())
	}
}

func TestDistributeReachesOnlyTopicSubscribers(t *testing.T) {
	hub, srv := newTestHub(t)
	subscribed, _ := dial(t, srv)
	other, _ := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ConnectedCount() == 2 }, time.Second, 5*time.Millisecond)

	send(t, subscribed, map[string]any{"type": "subscribe", "dataTypes": []string{"market"}})
	confirm := read(t, subscribed)
	assert.Equal(t, event.SubscriptionConfirmed, confirm.Type)
	assert.Equal(t, []any{"market"}, confirm.Data["dataTypes"])
	assert.Equal(t, 1, hub.TopicCount())

	hub.Distribute("market", map[string]any{"price": 1.5})
	update := read(t, subscribed)
	assert.Equal(t, event.DataUpdate, update.Type)
	assert.Equal(t, "market", update.Data["dataType"])

	// other's first message must be the broadcast, not the update
	hub.Broadcast(event.New(event.WorkerStatus, map[string]any{"ready": true}), "")
	assert.Equal(t, event.WorkerStatus, read(t, other).Type)
	assert.Equal(t, event.WorkerStatus, read(t, subscribed).Type)
}

func TestBroadcastToTarget(t *testing.T) {
	hub, srv := newTestHub(t)
	first, firstID := dial(t, srv)
	second, _ := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ConnectedCount() == 2 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(event.New(event.AnalysisComplete, map[string]any{"n": 1}), firstID)
	assert.Equal(t, event.AnalysisComplete, read(t, first).Type)
	expectSilence(t, second)

	hub.Broadcast(event.New(event.AnalysisComplete, nil), "no-such-client")
}

func TestPingAndUnknownMessages(t *testing.T) {
	_, srv := newTestHub(t)
	conn, _ := dial(t, srv)

	send(t, conn, map[string]any{"type": "ping"})
	assert.Equal(t, event.Pong, read(t, conn).Type)

	send(t, conn, map[string]any{"type": "dance"})
	msg := read(t, conn)
	assert.Equal(t, event.Error, msg.Type)
	assert.Equal(t, "unknown_message_type", msg.Data["code"])
}

func TestAnalyzeMessage(t *testing.T) {
	hub, srv := newTestHub(t)
	hub.SetAnalyzer(stubAnalyzer{})
	conn, _ := dial(t, srv)

	send(t, conn, map[string]any{"type": "analyze", "analysisType": "risk_assessment", "data": map[string]any{"symbol": "ES"}})
	msg := read(t, conn)
	assert.Equal(t, event.AnalysisResult, msg.Type)
	assert.Equal(t, "risk_assessment", msg.Data["analysisType"])

	failing, failingSrv := newTestHub(t)
	failing.SetAnalyzer(stubAnalyzer{err: analysisservice.ErrWorkerUnavailable})
	conn, _ = dial(t, failingSrv)
	send(t, conn, map[string]any{"type": "analyze", "analysisType": "risk_assessment"})
	msg = read(t, conn)
	assert.Equal(t, event.Error, msg.Type)
	assert.Equal(t, "service_unavailable", msg.Data["code"])
}

func TestMalformedMessageDropsOnlyThatConnection(t *testing.T) {
	hub, srv := newTestHub(t)
	bad, _ := dial(t, srv)
	good, _ := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ConnectedCount() == 2 }, time.Second, 5*time.Millisecond)

	send(t, good, map[string]any{"type": "subscribe", "dataTypes": []string{"translated"}})
	read(t, good)
	send(t, bad, map[string]any{"type": "subscribe", "dataTypes": []string{"translated"}})
	read(t, bad)

	require.NoError(t, bad.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.Eventually(t, func() bool { return hub.ConnectedCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Distribute("translated", map[string]any{"source": "generic"})
	assert.Equal(t, event.DataUpdate, read(t, good).Type)
	assert.Equal(t, []string{"translated"}, hub.Topics())
}

func TestCloseDisconnectsSubscribers(t *testing.T) {
	hub, srv := newTestHub(t)
	conn, _ := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ConnectedCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Close(context.Background()))
	assert.Equal(t, 0, hub.ConnectedCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestCloseRacesWithNewConnections(t *testing.T) {
	hub, srv := newTestHub(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
	require.NoError(t, hub.Close(context.Background()))
	wg.Wait()
	assert.Equal(t, 0, hub.ConnectedCount())
}
