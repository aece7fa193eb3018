package normalizer

import (
	"strings"

	"tradebridge/internal/domain/entity/telemetry"
)

// TInvestAdapter reads the market data stream frames republished by cmd/feeder.
// One frame carries a single event: candle, trade, orderbook or last_price.
type TInvestAdapter struct{}

func (TInvestAdapter) Source() telemetry.Source { return telemetry.SourceTInvest }

func (TInvestAdapter) Detect(raw map[string]any) bool {
	if !has(raw, "instrument_uid") {
		return false
	}
	for _, key := range []string{"candle", "trade", "orderbook", "last_price"} {
		if object(raw, key) != nil {
			return true
		}
	}
	return false
}

func (a TInvestAdapter) Translate(raw map[string]any) (telemetry.Record, error) {
	symbol := firstText(raw, "ticker", "figi", "instrument_uid")
	if symbol == "" {
		return telemetry.Record{}, malformed(a.Source(), "instrument_uid is empty")
	}

	rec := telemetry.Record{
		Timestamp:  timestamp(raw, "time"),
		Source:     a.Source(),
		Market:     telemetry.Market{Symbol: symbol},
		Strategies: map[string]telemetry.Strategy{},
	}

	if candle := object(raw, "candle"); candle != nil {
		rec.Market.Open = firstNumber(candle, "open")
		rec.Market.High = firstNumber(candle, "high")
		rec.Market.Low = firstNumber(candle, "low")
		rec.Market.Close = firstNumber(candle, "close")
		rec.Market.Last = rec.Market.Close
		rec.Market.Volume = firstNumber(candle, "volume")
		if rec.Timestamp.IsZero() {
			rec.Timestamp = timestamp(candle, "time")
		}
	}

	if trade := object(raw, "trade"); trade != nil {
		price := firstNumber(trade, "price")
		qty := firstNumber(trade, "quantity")
		rec.Market.Last = price
		rec.Market.Volume += qty
		rec.OrderFlow.Trades = 1
		rec.OrderFlow.VWAP = price
		rec.OrderFlow.POC = price
		switch strings.ToUpper(firstText(trade, "direction")) {
		case "BUY", "TRADE_DIRECTION_BUY":
			rec.OrderFlow.AskVolume = qty
			rec.OrderFlow.CumulativeDelta = qty
		case "SELL", "TRADE_DIRECTION_SELL":
			rec.OrderFlow.BidVolume = qty
			rec.OrderFlow.CumulativeDelta = -qty
		}
		if rec.Timestamp.IsZero() {
			rec.Timestamp = timestamp(trade, "time")
		}
	}

	if book := object(raw, "orderbook"); book != nil {
		bidPrice, bidSize := topLevel(book, "bids")
		askPrice, askSize := topLevel(book, "asks")
		rec.Market.Bid = bidPrice
		rec.Market.Ask = askPrice
		if rec.OrderFlow.BidVolume == 0 && rec.OrderFlow.AskVolume == 0 {
			rec.OrderFlow.BidVolume = bidSize
			rec.OrderFlow.AskVolume = askSize
		}
		if rec.Timestamp.IsZero() {
			rec.Timestamp = timestamp(book, "time")
		}
	}

	if last := object(raw, "last_price"); last != nil {
		rec.Market.Last = firstNumber(last, "price")
		if rec.Timestamp.IsZero() {
			rec.Timestamp = timestamp(last, "time")
		}
	}

	rec.Account = telemetry.NewAccount(telemetry.AccountFields{}, rec.Position)
	return rec, nil
}

// topLevel returns price and quantity of the best level of one book side.
func topLevel(book map[string]any, side string) (float64, float64) {
	levels, ok := book[side].([]any)
	if !ok || len(levels) == 0 {
		return 0, 0
	}
	level, ok := levels[0].(map[string]any)
	if !ok {
		return 0, 0
	}
	return firstNumber(level, "price"), firstNumber(level, "quantity", "size")
}
