package normalizer

import (
	"time"

	"tradebridge/internal/domain/entity/telemetry"
)

// nested objects probed after the top level, in order.
var genericScopes = []string{"market", "quote", "data", "position", "account", "orderFlow"}

// GenericAdapter extracts best-effort values from unknown payloads by probing
// common field aliases. It never fails and is never part of detection.
type GenericAdapter struct{}

func (GenericAdapter) Source() telemetry.Source { return telemetry.SourceGeneric }

func (GenericAdapter) Detect(map[string]any) bool { return true }

func (a GenericAdapter) Translate(raw map[string]any) (telemetry.Record, error) {
	position := telemetry.Position{
		Quantity:      probeNumber(raw, "quantity", "qty", "position", "netPos", "size"),
		AveragePrice:  probeNumber(raw, "averagePrice", "avgPrice", "entryPrice", "netPrice"),
		UnrealizedPnL: probeNumber(raw, "unrealizedPnL", "unrealizedPnl", "openPnl", "unrealized"),
		RealizedPnL:   probeNumber(raw, "realizedPnL", "realizedPnl", "realized"),
	}

	balance := probeNumber(raw, "balance", "cashBalance", "cash")
	var equity *float64
	if f, ok := probe(raw, "equity", "netLiq", "accountValue"); ok {
		equity = &f
	}

	return telemetry.Record{
		Timestamp: probeTime(raw, "timestamp", "time", "ts", "datetime"),
		Source:    a.Source(),
		Market: telemetry.Market{
			Symbol: probeText(raw, "symbol", "ticker", "instrument", "Symbol", "contract"),
			Last:   probeNumber(raw, "price", "last", "lastPrice", "last_price", "close"),
			Volume: probeNumber(raw, "volume", "vol", "totalVolume"),
			Bid:    probeNumber(raw, "bid", "bidPrice", "bestBid"),
			Ask:    probeNumber(raw, "ask", "askPrice", "bestAsk", "offer"),
			High:   probeNumber(raw, "high", "highPrice"),
			Low:    probeNumber(raw, "low", "lowPrice"),
			Open:   probeNumber(raw, "open", "openPrice"),
			Close:  probeNumber(raw, "close", "closePrice", "settlement"),
		},
		OrderFlow: telemetry.OrderFlow{
			CumulativeDelta: probeNumber(raw, "cumulativeDelta", "delta"),
			BidVolume:       probeNumber(raw, "bidVolume"),
			AskVolume:       probeNumber(raw, "askVolume"),
			Trades:          int64(probeNumber(raw, "trades", "tradeCount", "numberOfTrades")),
			VWAP:            probeNumber(raw, "vwap", "VWAP"),
			POC:             probeNumber(raw, "poc", "pointOfControl"),
		},
		Position: position,
		Account: telemetry.NewAccount(telemetry.AccountFields{
			Balance:     balance,
			Equity:      equity,
			MarginUsed:  probeNumber(raw, "marginUsed", "margin", "initialMargin"),
			BuyingPower: probeNumber(raw, "buyingPower", "availableFunds"),
		}, position),
		Strategies: strategies(object(raw, "strategies")),
	}, nil
}

func probe(raw map[string]any, aliases ...string) (float64, bool) {
	if f, ok := lookupNumber(raw, aliases...); ok {
		return f, true
	}
	for _, scope := range genericScopes {
		if f, ok := lookupNumber(object(raw, scope), aliases...); ok {
			return f, true
		}
	}
	return 0, false
}

func probeNumber(raw map[string]any, aliases ...string) float64 {
	f, _ := probe(raw, aliases...)
	return f
}

func probeText(raw map[string]any, aliases ...string) string {
	if s := firstText(raw, aliases...); s != "" {
		return s
	}
	for _, scope := range genericScopes {
		if s := firstText(object(raw, scope), aliases...); s != "" {
			return s
		}
	}
	return ""
}

func probeTime(raw map[string]any, aliases ...string) time.Time {
	if t := timestamp(raw, aliases...); !t.IsZero() {
		return t
	}
	for _, scope := range genericScopes {
		if t := timestamp(object(raw, scope), aliases...); !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}
