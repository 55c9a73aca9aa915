package analysis

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/AlanMarvin/polytrak/internal/config"
	"github.com/AlanMarvin/polytrak/internal/polymarket/dataapi"
)

const day = 24 * time.Hour

// PositionSummary names a single position in a report
type PositionSummary struct {
	ConditionID string  `json:"conditionId"`
	Title       string  `json:"title"`
	Slug        string  `json:"slug"`
	Outcome     string  `json:"outcome"`
	RealizedPnl float64 `json:"realizedPnl"`
	EndDate     string  `json:"endDate,omitempty"`
}

// Metrics is the financial summary of a wallet
type Metrics struct {
	RealizedPnl        float64 `json:"realizedPnl"`
	UnrealizedPnl      float64 `json:"unrealizedPnl"`
	TotalPnl           float64 `json:"totalPnl"`
	Pnl24h             float64 `json:"pnl24h"`
	Pnl7d              float64 `json:"pnl7d"`
	Pnl30d             float64 `json:"pnl30d"`
	OpenPositionsValue float64 `json:"openPositionsValue"`
	ResolvedOpenPnl    float64 `json:"resolvedOpenPnl"`

	WinRate        float64 `json:"winRate"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	TotalPositions int     `json:"totalPositions"`
	ClosedCount    int     `json:"closedPositions"`
	OpenCount      int     `json:"openPositions"`
	ResolvedOpen   int     `json:"resolvedOpenPositions"`

	BestPosition  *PositionSummary `json:"bestPosition"`
	WorstPosition *PositionSummary `json:"worstPosition"`

	Volume Volume `json:"volume"`
}

// Compute derives wallet metrics. closed must already be reconciled; open is
// the raw position listing, which may include resolved markets.
func Compute(open []dataapi.Position, closed []dataapi.ClosedPosition, trades []dataapi.Trade, now time.Time, vt config.VolumeTuning) Metrics {
	trulyOpen := TrulyOpen(open)
	resolved := ResolvedOpen(open, closed)

	var m Metrics

	unrealized := decimal.Zero
	for _, p := range trulyOpen {
		unrealized = unrealized.Add(decimal.NewFromFloat(p.CashPnl))
	}

	openValue := decimal.Zero
	for _, p := range open {
		openValue = openValue.Add(decimal.NewFromFloat(p.CurrentValue))
	}

	realized := decimal.Zero
	windows := []struct {
		span time.Duration
		sum  decimal.Decimal
	}{{day, decimal.Zero}, {7 * day, decimal.Zero}, {30 * day, decimal.Zero}}

	for _, c := range closed {
		pnl := decimal.NewFromFloat(c.RealizedPnl)
		realized = realized.Add(pnl)

		if c.EndDate.Known() {
			age := now.Sub(time.Unix(c.EndDate.Unix, 0))
			for w := range windows {
				if age <= windows[w].span {
					windows[w].sum = windows[w].sum.Add(pnl)
				}
			}
		}

		switch {
		case c.RealizedPnl > 0:
			m.Wins++
		case c.RealizedPnl < 0:
			m.Losses++
		}

		if m.BestPosition == nil || c.RealizedPnl > m.BestPosition.RealizedPnl {
			m.BestPosition = summarize(c)
		}
		if m.WorstPosition == nil || c.RealizedPnl < m.WorstPosition.RealizedPnl {
			m.WorstPosition = summarize(c)
		}
	}

	resolvedPnl := decimal.Zero
	for _, p := range resolved {
		resolvedPnl = resolvedPnl.Add(decimal.NewFromFloat(p.CashPnl))
		switch {
		case p.CashPnl > 0:
			m.Wins++
		case p.CashPnl < 0:
			m.Losses++
		}
	}

	m.TotalPositions = len(closed) + len(resolved)
	if m.TotalPositions > 0 {
		m.WinRate = decimal.NewFromInt(int64(m.Wins)).
			Div(decimal.NewFromInt(int64(m.TotalPositions))).
			Mul(decimal.NewFromInt(100)).
			Round(2).
			InexactFloat64()
	}

	m.RealizedPnl = money(realized)
	m.UnrealizedPnl = money(unrealized)
	m.TotalPnl = money(realized.Add(unrealized))
	m.Pnl24h = money(windows[0].sum)
	m.Pnl7d = money(windows[1].sum)
	m.Pnl30d = money(windows[2].sum)
	m.OpenPositionsValue = money(openValue)
	m.ResolvedOpenPnl = money(resolvedPnl)
	m.ClosedCount = len(closed)
	m.OpenCount = len(trulyOpen)
	m.ResolvedOpen = len(resolved)
	m.Volume = ComputeVolume(trades, closed, realized, vt)

	return m
}

func summarize(c dataapi.ClosedPosition) *PositionSummary {
	return &PositionSummary{
		ConditionID: c.ConditionID,
		Title:       c.Title,
		Slug:        c.Slug,
		Outcome:     c.Outcome,
		RealizedPnl: c.RealizedPnl,
		EndDate:     c.EndDate.Raw,
	}
}
