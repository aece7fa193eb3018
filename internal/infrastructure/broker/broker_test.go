package broker

import (
	"context"
	"errors"
	"io"
	"testing"

	"tradebridge/internal/application/service/ingest"
	"tradebridge/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIngestor struct {
	got []map[string]any
	err error
}

func (f *fakeIngestor) IngestRaw(_ context.Context, raw map[string]any) (ingest.Ingested, error) {
	f.got = append(f.got, raw)
	return ingest.Ingested{}, f.err
}

type fakeDelivery struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (d *fakeDelivery) Ack(bool) error {
	d.acked = true
	return nil
}

func (d *fakeDelivery) Nack(_, requeue bool) error {
	d.nacked = true
	d.requeue = requeue
	return nil
}

func newTestConsumer(t *testing.T, in Ingestor) *Consumer {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	c, err := NewConsumer(config.RabbitMQConfig{URL: "amqp://localhost", RawExchange: "telemetry.raw"}, in, logger)
	require.NoError(t, err)
	return c
}

func TestNewConsumerValidatesConfig(t *testing.T) {
	_, err := NewConsumer(config.RabbitMQConfig{RawExchange: "x"}, &fakeIngestor{}, logrus.New())
	assert.Error(t, err)
	_, err = NewConsumer(config.RabbitMQConfig{URL: "amqp://localhost"}, &fakeIngestor{}, logrus.New())
	assert.Error(t, err)
}

func TestDeliveryIsAckedAfterIngest(t *testing.T) {
	in := &fakeIngestor{}
	c := newTestConsumer(t, in)
	d := &fakeDelivery{}

	c.settle(d, c.handle(context.Background(), []byte(` {"price": 5300.25, "symbol": "ES"} `)))
	assert.True(t, d.acked)
	require.Len(t, in.got, 1)
	assert.Equal(t, "ES", in.got[0]["symbol"])
}

func TestMalformedDeliveryIsDropped(t *testing.T) {
	in := &fakeIngestor{}
	c := newTestConsumer(t, in)

	for _, body := range []string{"", "[1,2]", "{broken", "42"} {
		d := &fakeDelivery{}
		c.settle(d, c.handle(context.Background(), []byte(body)))
		assert.True(t, d.nacked, body)
		assert.False(t, d.requeue, body)
	}
	assert.Empty(t, in.got)
}

func TestIngestFailureIsRequeued(t *testing.T) {
	c := newTestConsumer(t, &fakeIngestor{err: ingest.ErrRouterClosed})
	d := &fakeDelivery{}
	c.settle(d, c.handle(context.Background(), []byte(`{"price": 1}`)))
	assert.True(t, d.nacked)
	assert.True(t, d.requeue)
}

func TestDecodeRaw(t *testing.T) {
	raw, err := DecodeRaw([]byte(`{"Symbol":"NQ","LastTradePrice":18000}`))
	require.NoError(t, err)
	assert.Equal(t, 18000.0, raw["LastTradePrice"])

	_, err = DecodeRaw([]byte(`null`))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, errPoison))
}
