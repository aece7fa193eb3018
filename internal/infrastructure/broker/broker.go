package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"tradebridge/internal/application/service/ingest"
	"tradebridge/internal/application/service/normalizer"
	"tradebridge/internal/config"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Ingestor accepts one raw telemetry payload.
type Ingestor interface {
	IngestRaw(ctx context.Context, raw map[string]any) (ingest.Ingested, error)
}

// errPoison marks deliveries that can never be ingested and must not be requeued.
var errPoison = errors.New("undeliverable payload")

// Consumer subscribes to the raw telemetry fanout exchange and feeds every
// message body into the ingest router.
type Consumer struct {
	cfg      config.RabbitMQConfig
	ingestor Ingestor
	logger   *logrus.Entry

	conn    *amqp.Connection
	channel *amqp.Channel
	wg      sync.WaitGroup
}

// NewConsumer prepares a consumer for the given configuration.
func NewConsumer(cfg config.RabbitMQConfig, ingestor Ingestor, logger *logrus.Logger) (*Consumer, error) {
	if cfg.URL == "" {
		return nil, errors.New("rabbitmq url is required")
	}
	if cfg.RawExchange == "" {
		return nil, errors.New("raw exchange name is required")
	}
	return &Consumer{
		cfg:      cfg,
		ingestor: ingestor,
		logger:   logger.WithField("component", "raw_consumer"),
	}, nil
}

// Start establishes the AMQP connection and begins consuming.
func (c *Consumer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}
	c.conn = conn

	deliveries, err := c.subscribe()
	if err != nil {
		c.Close()
		return err
	}
	c.wg.Add(1)
	go c.consumeLoop(ctx, deliveries)

	c.logger.Infof("rabbitmq consumer started: exchange=%s", c.cfg.RawExchange)
	return nil
}

// Close stops consumption and waits for the in-flight delivery.
func (c *Consumer) Close() error {
	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
		c.channel = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
		c.conn = nil
	}
	c.wg.Wait()
	return errors.Join(errs...)
}

func (c *Consumer) subscribe() (<-chan amqp.Delivery, error) {
	exchange := c.cfg.RawExchange
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	queue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(queue.Name, "", exchange, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("bind queue %s to %s: %w", queue.Name, exchange, err)
	}
	prefetch := c.cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(queue.Name, "", false, true, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("start consume: %w", err)
	}
	c.channel = ch
	return deliveries, nil
}

func (c *Consumer) consumeLoop(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-deliveries:
			if !ok {
				return
			}
			c.settle(&delivery, c.handle(ctx, delivery.Body))
		}
	}
}

// acknowledger is the part of amqp.Delivery the consumer settles through.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func (c *Consumer) settle(d acknowledger, err error) {
	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			c.logger.WithError(ackErr).Warn("failed to ack delivery")
		}
	case errors.Is(err, errPoison):
		c.logger.WithError(err).Warn("dropping delivery")
		_ = d.Nack(false, false)
	default:
		c.logger.WithError(err).Warn("failed to process delivery")
		_ = d.Nack(false, true)
	}
}

func (c *Consumer) handle(ctx context.Context, body []byte) error {
	raw, err := DecodeRaw(body)
	if err != nil {
		return fmt.Errorf("%w: %w", errPoison, err)
	}
	if _, err := c.ingestor.IngestRaw(ctx, raw); err != nil {
		if errors.Is(err, normalizer.ErrEmptyPayload) {
			return fmt.Errorf("%w: %w", errPoison, err)
		}
		return err
	}
	return nil
}
