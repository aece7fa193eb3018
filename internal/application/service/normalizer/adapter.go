package normalizer

import (
	"errors"
	"fmt"

	"tradebridge/internal/domain/entity/telemetry"
)

// ErrNormalization is returned by adapters that refuse a payload they detected.
var ErrNormalization = errors.New("normalization failed")

// Adapter is a detector+translator pair for one upstream format.
type Adapter interface {
	Source() telemetry.Source
	Detect(raw map[string]any) bool
	Translate(raw map[string]any) (telemetry.Record, error)
}

// DefaultAdapters returns the registered upstream formats in detection order.
func DefaultAdapters() []Adapter {
	return []Adapter{
		NinjaTraderAdapter{},
		SierraChartAdapter{},
		TradovateAdapter{},
		TInvestAdapter{},
	}
}

func malformed(source telemetry.Source, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrNormalization, source, fmt.Sprintf(format, args...))
}

func optionalNumber(raw map[string]any, aliases ...string) *float64 {
	if f, ok := lookupNumber(raw, aliases...); ok {
		return &f
	}
	return nil
}

// strategies parses {"name": {"enabled", "signal", "confidence", "pnl"}}.
func strategies(raw map[string]any) map[string]telemetry.Strategy {
	out := make(map[string]telemetry.Strategy, len(raw))
	for name, v := range raw {
		entry, ok := v.(map[string]any)
		if !ok {
			continue
		}
		enabled := true
		if b, ok := boolean(entry["enabled"]); ok {
			enabled = b
		}
		signal, _ := text(entry["signal"])
		out[name] = telemetry.Strategy{
			Enabled:    enabled,
			Signal:     telemetry.ParseSignal(signal),
			Confidence: firstNumber(entry, "confidence"),
			PnL:        firstNumber(entry, "pnl", "PnL", "profit"),
		}
	}
	return out
}
