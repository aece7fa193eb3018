package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tradebridge/internal/domain/entity/telemetry"
	"tradebridge/internal/domain/interfaces"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "telemetry:last:"

// RecordMirror keeps the latest record per source in Redis so that a restarted
// service can still answer record queries.
type RecordMirror struct {
	client *redis.Client
	ttl    time.Duration
}

var _ interfaces.RecordMirror = (*RecordMirror)(nil)

// NewRecordMirror stores entries with ttl. A non-positive ttl keeps them forever.
func NewRecordMirror(client *redis.Client, ttl time.Duration) *RecordMirror {
	if ttl < 0 {
		ttl = 0
	}
	return &RecordMirror{client: client, ttl: ttl}
}

func recordKey(source telemetry.Source) string {
	return keyPrefix + string(source)
}

func (m *RecordMirror) StoreRecord(ctx context.Context, record telemetry.Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", record.Source, err)
	}
	return m.client.Set(ctx, recordKey(record.Source), payload, m.ttl).Err()
}

// LoadRecord returns nil without error when nothing is stored for source.
func (m *RecordMirror) LoadRecord(ctx context.Context, source telemetry.Source) (*telemetry.Record, error) {
	payload, err := m.client.Get(ctx, recordKey(source)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var record telemetry.Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("decode %s record: %w", source, err)
	}
	return &record, nil
}
