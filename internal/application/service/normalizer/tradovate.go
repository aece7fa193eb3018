package normalizer

import "tradebridge/internal/domain/entity/telemetry"

// TradovateAdapter reads quote frames from the md/subscribeQuote feed, optionally
// merged with the user/syncrequest position and cash balance entities.
type TradovateAdapter struct{}

func (TradovateAdapter) Source() telemetry.Source { return telemetry.SourceTradovate }

func (TradovateAdapter) Detect(raw map[string]any) bool {
	return has(raw, "contractId") && object(raw, "entries") != nil
}

func (a TradovateAdapter) Translate(raw map[string]any) (telemetry.Record, error) {
	entries := object(raw, "entries")
	symbol := firstText(raw, "symbol", "contractName", "contractId")
	if symbol == "" {
		return telemetry.Record{}, malformed(a.Source(), "contract is not identified")
	}
	pos := object(raw, "position")
	cash := object(raw, "cashBalance")

	position := telemetry.Position{
		Quantity:      firstNumber(pos, "netPos"),
		AveragePrice:  firstNumber(pos, "netPrice"),
		UnrealizedPnL: firstNumber(pos, "openPnl", "openPnL"),
		RealizedPnL:   firstNumber(pos, "realizedPnl", "realizedPnL"),
	}

	bidSize := sizeOf(entries, "Bid")
	askSize := sizeOf(entries, "Offer")
	var trades int64
	if object(entries, "Trade") != nil {
		trades = 1
	}

	return telemetry.Record{
		Timestamp: timestamp(raw, "timestamp"),
		Source:    a.Source(),
		Market: telemetry.Market{
			Symbol: symbol,
			Last:   priceOf(entries, "Trade"),
			Volume: sizeOf(entries, "TotalTradeVolume"),
			Bid:    priceOf(entries, "Bid"),
			Ask:    priceOf(entries, "Offer"),
			High:   priceOf(entries, "HighPrice"),
			Low:    priceOf(entries, "LowPrice"),
			Open:   priceOf(entries, "OpeningPrice"),
			Close:  priceOf(entries, "SettlementPrice"),
		},
		OrderFlow: telemetry.OrderFlow{
			CumulativeDelta: askSize - bidSize,
			BidVolume:       bidSize,
			AskVolume:       askSize,
			Trades:          trades,
		},
		Position: position,
		Account: telemetry.NewAccount(telemetry.AccountFields{
			Balance:     firstNumber(cash, "totalCashValue", "amount"),
			Equity:      optionalNumber(cash, "netLiq"),
			MarginUsed:  firstNumber(cash, "initialMargin"),
			BuyingPower: firstNumber(cash, "availableFunds"),
		}, position),
		Strategies: map[string]telemetry.Strategy{},
	}, nil
}
