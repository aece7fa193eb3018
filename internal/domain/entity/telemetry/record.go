package telemetry

import (
	"encoding/json"
	"time"
)

// Source identifies the upstream platform a record was translated from.
type Source string

const (
	SourceNinjaTrader Source = "ninjatrader"
	SourceSierraChart Source = "sierrachart"
	SourceTradovate   Source = "tradovate"
	SourceTInvest     Source = "tinvest"
	SourceGeneric     Source = "generic"
)

func (s Source) String() string {
	return string(s)
}

// PositionSide is derived from the sign of a position quantity.
type PositionSide string

const (
	SideLong  PositionSide = "long"
	SideShort PositionSide = "short"
	SideFlat  PositionSide = "flat"
)

// SideOf maps a signed quantity to its side.
func SideOf(quantity float64) PositionSide {
	switch {
	case quantity > 0:
		return SideLong
	case quantity < 0:
		return SideShort
	default:
		return SideFlat
	}
}

// Signal is a strategy recommendation.
type Signal string

const (
	SignalBuy  Signal = "buy"
	SignalSell Signal = "sell"
	SignalHold Signal = "hold"
)

// ParseSignal folds upstream spellings into buy/sell/hold. Unknown values are hold.
func ParseSignal(raw string) Signal {
	switch raw {
	case "buy", "BUY", "Buy", "long", "LONG", "Long":
		return SignalBuy
	case "sell", "SELL", "Sell", "short", "SHORT", "Short":
		return SignalSell
	default:
		return SignalHold
	}
}

// Market is the quote snapshot of a record.
type Market struct {
	Symbol string  `json:"symbol"`
	Last   float64 `json:"last"`
	Volume float64 `json:"volume"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Open   float64 `json:"open"`
	Close  float64 `json:"close"`
}

// OrderFlow is the aggressor-side breakdown of a record.
type OrderFlow struct {
	CumulativeDelta float64 `json:"cumulativeDelta"`
	BidVolume       float64 `json:"bidVolume"`
	AskVolume       float64 `json:"askVolume"`
	Trades          int64   `json:"trades"`
	VWAP            float64 `json:"vwap"`
	POC             float64 `json:"poc"`
}

// Position holds an open position. Side is never stored; it is derived from Quantity.
type Position struct {
	Quantity      float64 `json:"quantity"`
	AveragePrice  float64 `json:"averagePrice"`
	UnrealizedPnL float64 `json:"unrealizedPnL"`
	RealizedPnL   float64 `json:"realizedPnL"`
}

// Side returns long, short or flat.
func (p Position) Side() PositionSide {
	return SideOf(p.Quantity)
}

type positionJSON struct {
	Quantity      float64      `json:"quantity"`
	AveragePrice  float64      `json:"averagePrice"`
	UnrealizedPnL float64      `json:"unrealizedPnL"`
	RealizedPnL   float64      `json:"realizedPnL"`
	Side          PositionSide `json:"side"`
}

// MarshalJSON emits the derived side next to the stored fields.
func (p Position) MarshalJSON() ([]byte, error) {
	return json.Marshal(positionJSON{
		Quantity:      p.Quantity,
		AveragePrice:  p.AveragePrice,
		UnrealizedPnL: p.UnrealizedPnL,
		RealizedPnL:   p.RealizedPnL,
		Side:          p.Side(),
	})
}

// UnmarshalJSON ignores any incoming side; it is always recomputed.
func (p *Position) UnmarshalJSON(data []byte) error {
	var aux positionJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*p = Position{
		Quantity:      aux.Quantity,
		AveragePrice:  aux.AveragePrice,
		UnrealizedPnL: aux.UnrealizedPnL,
		RealizedPnL:   aux.RealizedPnL,
	}
	return nil
}

// Account holds the trading account balances.
type Account struct {
	Balance     float64 `json:"balance"`
	Equity      float64 `json:"equity"`
	MarginUsed  float64 `json:"marginUsed"`
	BuyingPower float64 `json:"buyingPower"`
}

// Strategy is one entry of the per-strategy signal map.
type Strategy struct {
	Enabled    bool    `json:"enabled"`
	Signal     Signal  `json:"signal"`
	Confidence float64 `json:"confidence"`
	PnL        float64 `json:"pnl"`
}

// Record is the canonical normalized unit. Treat it as an immutable value.
type Record struct {
	Timestamp  time.Time           `json:"timestamp"`
	Source     Source              `json:"source"`
	Market     Market              `json:"market"`
	OrderFlow  OrderFlow           `json:"orderFlow"`
	Position   Position            `json:"position"`
	Account    Account             `json:"account"`
	Strategies map[string]Strategy `json:"strategies"`
}

// AccountFields carries account values where Equity is optional.
type AccountFields struct {
	Balance     float64
	Equity      *float64
	MarginUsed  float64
	BuyingPower float64
}

// NewAccount fills Equity as balance + unrealized P&L when the upstream did not supply it.
func NewAccount(fields AccountFields, position Position) Account {
	equity := fields.Balance + position.UnrealizedPnL
	if fields.Equity != nil {
		equity = *fields.Equity
	}
	return Account{
		Balance:     fields.Balance,
		Equity:      equity,
		MarginUsed:  fields.MarginUsed,
		BuyingPower: fields.BuyingPower,
	}
}

// Clone returns a copy that shares no mutable state with r.
func (r Record) Clone() Record {
	out := r
	if r.Strategies != nil {
		out.Strategies = make(map[string]Strategy, len(r.Strategies))
		for name, strategy := range r.Strategies {
			out.Strategies[name] = strategy
		}
	}
	return out
}
