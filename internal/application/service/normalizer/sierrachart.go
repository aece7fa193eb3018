package normalizer

import "tradebridge/internal/domain/entity/telemetry"

// SierraChartAdapter reads the flat PascalCase snapshot written by the ACSIL
// export study.
type SierraChartAdapter struct{}

func (SierraChartAdapter) Source() telemetry.Source { return telemetry.SourceSierraChart }

func (SierraChartAdapter) Detect(raw map[string]any) bool {
	return has(raw, "Symbol") && has(raw, "LastTradePrice")
}

func (a SierraChartAdapter) Translate(raw map[string]any) (telemetry.Record, error) {
	symbol := firstText(raw, "Symbol")
	if symbol == "" {
		return telemetry.Record{}, malformed(a.Source(), "Symbol is empty")
	}
	if _, ok := lookupNumber(raw, "LastTradePrice"); !ok {
		return telemetry.Record{}, malformed(a.Source(), "LastTradePrice is not numeric")
	}

	position := telemetry.Position{
		Quantity:      firstNumber(raw, "PositionQuantity"),
		AveragePrice:  firstNumber(raw, "AveragePositionPrice"),
		UnrealizedPnL: firstNumber(raw, "OpenProfitLoss"),
		RealizedPnL:   firstNumber(raw, "ClosedProfitLoss"),
	}

	strategyMap := map[string]telemetry.Strategy{}
	if name := firstText(raw, "StudyName"); name != "" {
		signal, _ := text(raw["StudySignal"])
		strategyMap[name] = telemetry.Strategy{
			Enabled:    true,
			Signal:     telemetry.ParseSignal(signal),
			Confidence: firstNumber(raw, "StudyConfidence"),
			PnL:        position.RealizedPnL + position.UnrealizedPnL,
		}
	}

	return telemetry.Record{
		Timestamp: timestamp(raw, "DateTime", "Timestamp"),
		Source:    a.Source(),
		Market: telemetry.Market{
			Symbol: symbol,
			Last:   firstNumber(raw, "LastTradePrice"),
			Volume: firstNumber(raw, "TotalVolume", "DailyVolume"),
			Bid:    firstNumber(raw, "BidPrice"),
			Ask:    firstNumber(raw, "AskPrice"),
			High:   firstNumber(raw, "SessionHighPrice"),
			Low:    firstNumber(raw, "SessionLowPrice"),
			Open:   firstNumber(raw, "SessionOpenPrice"),
			Close:  firstNumber(raw, "SessionSettlementPrice", "PreviousClose"),
		},
		OrderFlow: telemetry.OrderFlow{
			CumulativeDelta: firstNumber(raw, "CumulativeDelta"),
			BidVolume:       firstNumber(raw, "BidVolume"),
			AskVolume:       firstNumber(raw, "AskVolume"),
			Trades:          int64(firstNumber(raw, "NumberOfTrades")),
			VWAP:            firstNumber(raw, "VWAP"),
			POC:             firstNumber(raw, "PointOfControl"),
		},
		Position: position,
		Account: telemetry.NewAccount(telemetry.AccountFields{
			Balance:     firstNumber(raw, "CashBalance"),
			Equity:      optionalNumber(raw, "AccountValue"),
			MarginUsed:  firstNumber(raw, "MarginRequirement"),
			BuyingPower: firstNumber(raw, "AvailableFundsForNewPositions"),
		}, position),
		Strategies: strategyMap,
	}, nil
}
