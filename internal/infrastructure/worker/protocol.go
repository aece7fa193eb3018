package worker

import (
	"bytes"
	"time"

	"github.com/bytedance/sonic"
)

const TypeHeartbeat = "heartbeat"

// Outbound is one request line written to the worker.
type Outbound struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

func NewOutbound(id, typ string, data any) Outbound {
	return Outbound{
		ID:        id,
		Type:      typ,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// Inbound is one JSON line read from the worker.
type Inbound struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Result    any    `json:"result"`
	Error     any    `json:"error,omitempty"`
	Timestamp any    `json:"timestamp"`
}

func encodeLine(v any) ([]byte, error) {
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// decodeLine reports false for anything that is not a JSON object.
func decodeLine(line []byte) (Inbound, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return Inbound{}, false
	}
	var msg Inbound
	if err := sonic.ConfigStd.Unmarshal(line, &msg); err != nil {
		return Inbound{}, false
	}
	return msg, true
}
