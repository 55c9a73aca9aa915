package analysis

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/AlanMarvin/polytrak/internal/polymarket/dataapi"
)

// PnlPoint is one step of the cumulative realized PnL curve
type PnlPoint struct {
	Timestamp int64   `json:"timestamp"`
	Pnl       float64 `json:"pnl"`
}

// Sample thins series to target evenly spaced points. The last input element
// is always the last output element.
func Sample[T any](series []T, target int) []T {
	if target <= 0 {
		return []T{}
	}
	if len(series) <= target {
		return series
	}
	if target == 1 {
		return []T{series[len(series)-1]}
	}

	step := float64(len(series)-1) / float64(target-1)
	out := make([]T, 0, target)
	for i := 0; i < target-1; i++ {
		out = append(out, series[int(float64(i)*step)])
	}
	return append(out, series[len(series)-1])
}

// BuildHistory returns the cumulative realized PnL of reconciled closed
// positions ordered by end date, sampled down to points.
func BuildHistory(closed []dataapi.ClosedPosition, points int) []PnlPoint {
	sorted := make([]dataapi.ClosedPosition, len(closed))
	copy(sorted, closed)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].EndDate.Unix < sorted[j].EndDate.Unix
	})

	series := make([]PnlPoint, 0, len(sorted))
	running := decimal.Zero
	for _, c := range sorted {
		running = running.Add(decimal.NewFromFloat(c.RealizedPnl))
		series = append(series, PnlPoint{
			Timestamp: c.EndDate.Unix,
			Pnl:       running.Round(2).InexactFloat64(),
		})
	}
	return Sample(series, points)
}
