package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/sirupsen/logrus"
)

const readyMarker = "ANALYSIS_ENGINE_READY"

type request struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp"`
}

type response struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Result    map[string]any `json:"result"`
	Timestamp string         `json:"timestamp"`
}

// stubworker speaks the analysis worker protocol for local runs. It echoes a
// summary of every request and never fails.
func main() {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	fmt.Println("stub analysis engine " + readyMarker)
	if err := serve(os.Stdin, os.Stdout, logger); err != nil {
		logger.WithError(err).Error("stdin closed with error")
		os.Exit(1)
	}
}

func serve(in io.Reader, out io.Writer, logger *logrus.Logger) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 4<<20)
	w := bufio.NewWriter(out)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var req request
		if err := sonic.ConfigStd.Unmarshal(line, &req); err != nil {
			logger.WithError(err).Warn("ignoring malformed request")
			continue
		}
		data, err := sonic.ConfigStd.Marshal(answer(req))
		if err != nil {
			return err
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return err
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func answer(req request) response {
	result := map[string]any{"status": "ok"}
	switch req.Type {
	case "heartbeat":
		result["alive"] = true
	default:
		keys := make([]string, 0, len(req.Data))
		for k := range req.Data {
			keys = append(keys, k)
		}
		result["analysisType"] = req.Type
		sort.Strings(keys)
		result["fields"] = strings.Join(keys, ",")
		if symbol, ok := req.Data["symbol"]; ok {
			result["symbol"] = symbol
		}
	}
	return response{
		ID:        req.ID,
		Type:      req.Type,
		Result:    result,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}
