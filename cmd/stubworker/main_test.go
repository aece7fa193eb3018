package main

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeAnswersEveryRequest(t *testing.T) {
	in := strings.NewReader(strings.Join([]string{
		`{"id":"r1","type":"market_analysis","data":{"symbol":"ES","price":1}}`,
		`not json`,
		``,
		`{"id":"heartbeat-1","type":"heartbeat","data":null}`,
	}, "\n"))
	var out bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	require.NoError(t, serve(in, &out, logger))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	var first response
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "r1", first.ID)
	assert.Equal(t, "ES", first.Result["symbol"])
	assert.Equal(t, "price,symbol", first.Result["fields"])

	var beat response
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &beat))
	assert.Equal(t, "heartbeat-1", beat.ID)
	assert.Equal(t, true, beat.Result["alive"])
}
