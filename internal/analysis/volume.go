package analysis

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/AlanMarvin/polytrak/internal/config"
	"github.com/AlanMarvin/polytrak/internal/polymarket/dataapi"
)

// Volume is traded notional plus the return-on-volume derived from it.
// When Estimated is set, TotalVolume includes exit volume inferred from
// closed positions that settled by resolution and left no sell fill.
type Volume struct {
	BuyVolume            float64  `json:"buyVolume"`
	SellVolume           float64  `json:"sellVolume"`
	TradeVolume          float64  `json:"tradeVolume"`
	ClosedPositionVolume float64  `json:"closedPositionVolume"`
	EstimatedMissingSell float64  `json:"estimatedMissingSell"`
	TotalVolume          float64  `json:"totalVolume"`
	Estimated            bool     `json:"estimated"`
	ROVPercent           *float64 `json:"rovPercent"`
	Warnings             []string `json:"warnings"`
}

// TradeVolume sums |size| x price over fills, split by side
func TradeVolume(trades []dataapi.Trade) (buy, sell decimal.Decimal) {
	buy, sell = decimal.Zero, decimal.Zero
	for _, t := range trades {
		notional := decimal.NewFromFloat(t.Size).Abs().Mul(decimal.NewFromFloat(t.Price))
		if t.IsSell() {
			sell = sell.Add(notional)
		} else {
			buy = buy.Add(notional)
		}
	}
	return buy, sell
}

// FillVolume is the notional traded in fills, by side
type FillVolume struct {
	Buy   float64 `json:"buyVolume"`
	Sell  float64 `json:"sellVolume"`
	Total float64 `json:"tradeVolume"`
}

// SumFills rounds TradeVolume to cents
func SumFills(trades []dataapi.Trade) FillVolume {
	buy, sell := TradeVolume(trades)
	return FillVolume{Buy: money(buy), Sell: money(sell), Total: money(buy.Add(sell))}
}

// ComputeVolume derives total volume and ROV from fills and reconciled
// closed positions.
func ComputeVolume(trades []dataapi.Trade, closed []dataapi.ClosedPosition, realized decimal.Decimal, vt config.VolumeTuning) Volume {
	buy, sell := TradeVolume(trades)
	tradeVolume := buy.Add(sell)

	closedVolume := decimal.Zero
	for _, c := range closed {
		entry := decimal.NewFromFloat(c.TotalBought).Abs()
		exit := entry.Add(decimal.NewFromFloat(c.RealizedPnl)).Abs()
		closedVolume = closedVolume.Add(entry).Add(exit)
	}

	total := tradeVolume
	missing := decimal.Zero
	estimated := false

	expectedExit := closedVolume.Div(decimal.NewFromInt(2))
	if gap := expectedExit.Sub(sell); gap.GreaterThan(decimal.NewFromFloat(vt.MissingSellThreshold)) {
		missing = gap
		total = total.Add(gap)
		estimated = true
	}
	if closedVolume.GreaterThan(total) {
		total = closedVolume
		estimated = true
	}

	v := Volume{
		BuyVolume:            money(buy),
		SellVolume:           money(sell),
		TradeVolume:          money(tradeVolume),
		ClosedPositionVolume: money(closedVolume),
		EstimatedMissingSell: money(missing),
		TotalVolume:          money(total),
		Estimated:            estimated,
		Warnings:             []string{},
	}

	if total.IsZero() || total.LessThan(decimal.NewFromFloat(vt.MinROVVolume)) {
		v.Warnings = append(v.Warnings, fmt.Sprintf("Volume below $%.0f, return on volume not computed", vt.MinROVVolume))
		return v
	}

	rov := realized.Div(total).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	v.ROVPercent = &rov

	abs := rov
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs > vt.ROVWarnPercent:
		v.Warnings = append(v.Warnings, fmt.Sprintf("Return on volume of %.2f%% is unusually high; volume may be under-counted", rov))
	case abs > vt.ROVHighVolumePercent && total.GreaterThan(decimal.NewFromFloat(vt.HighVolumeUSD)):
		v.Warnings = append(v.Warnings, fmt.Sprintf("Return on volume of %.2f%% is high for a wallet this active; volume may be under-counted", rov))
	}
	return v
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
