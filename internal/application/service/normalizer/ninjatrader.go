package normalizer

import "tradebridge/internal/domain/entity/telemetry"

// NinjaTraderAdapter reads the nested market/orderFlow snapshot pushed by the
// NinjaScript add-on.
type NinjaTraderAdapter struct{}

func (NinjaTraderAdapter) Source() telemetry.Source { return telemetry.SourceNinjaTrader }

func (NinjaTraderAdapter) Detect(raw map[string]any) bool {
	return object(raw, "market") != nil && object(raw, "orderFlow") != nil
}

func (a NinjaTraderAdapter) Translate(raw map[string]any) (telemetry.Record, error) {
	market := object(raw, "market")
	symbol := firstText(market, "symbol", "instrument")
	if symbol == "" {
		return telemetry.Record{}, malformed(a.Source(), "market.symbol is missing")
	}
	flow := object(raw, "orderFlow")
	pos := object(raw, "position")
	acct := object(raw, "account")

	position := telemetry.Position{
		Quantity:      firstNumber(pos, "quantity", "qty"),
		AveragePrice:  firstNumber(pos, "averagePrice", "avgPrice"),
		UnrealizedPnL: firstNumber(pos, "unrealizedPnL", "unrealizedPnl"),
		RealizedPnL:   firstNumber(pos, "realizedPnL", "realizedPnl"),
	}

	return telemetry.Record{
		Timestamp: timestamp(raw, "timestamp", "time"),
		Source:    a.Source(),
		Market: telemetry.Market{
			Symbol: symbol,
			Last:   firstNumber(market, "price", "last"),
			Volume: firstNumber(market, "volume"),
			Bid:    firstNumber(market, "bid"),
			Ask:    firstNumber(market, "ask"),
			High:   firstNumber(market, "high"),
			Low:    firstNumber(market, "low"),
			Open:   firstNumber(market, "open"),
			Close:  firstNumber(market, "close"),
		},
		OrderFlow: telemetry.OrderFlow{
			CumulativeDelta: firstNumber(flow, "cumulativeDelta", "delta"),
			BidVolume:       firstNumber(flow, "bidVolume"),
			AskVolume:       firstNumber(flow, "askVolume"),
			Trades:          int64(firstNumber(flow, "trades", "tradeCount")),
			VWAP:            firstNumber(flow, "vwap"),
			POC:             firstNumber(flow, "poc", "pointOfControl"),
		},
		Position: position,
		Account: telemetry.NewAccount(telemetry.AccountFields{
			Balance:     firstNumber(acct, "balance"),
			Equity:      optionalNumber(acct, "equity"),
			MarginUsed:  firstNumber(acct, "marginUsed", "margin"),
			BuyingPower: firstNumber(acct, "buyingPower"),
		}, position),
		Strategies: strategies(object(raw, "strategies")),
	}, nil
}
