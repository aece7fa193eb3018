package interfaces

import (
	"context"

	"tradebridge/internal/domain/entity/analysis"
	"tradebridge/internal/domain/entity/event"
	"tradebridge/internal/domain/entity/telemetry"
)

// Publisher fans events out to live subscribers.
type Publisher interface {
	// Broadcast sends to every connection, or only to targetID when it is not empty.
	Broadcast(evt event.Event, targetID string)
	// Distribute sends a data_update to the subscribers of dataType only.
	Distribute(dataType string, payload any)
}

// ResultArchiveRepository persists completed analysis results.
type ResultArchiveRepository interface {
	AddResults(ctx context.Context, results []analysis.Result) error
	GetLastResults(ctx context.Context, analysisType string, limit int) ([]analysis.Result, error)
	Close()
}

// RecordMirror keeps an out-of-process copy of the latest record per source.
type RecordMirror interface {
	StoreRecord(ctx context.Context, record telemetry.Record) error
	LoadRecord(ctx context.Context, source telemetry.Source) (*telemetry.Record, error)
}
