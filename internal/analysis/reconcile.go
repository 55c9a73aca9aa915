package analysis

import (
	"github.com/AlanMarvin/polytrak/internal/polymarket/dataapi"
)

// Prices at or beyond these bounds mean the market has resolved even if
// upstream still lists the position as open.
const (
	resolvedLow  = 0.001
	resolvedHigh = 0.999
)

// PositionKey identifies a logical position across partial exits
type PositionKey struct {
	ConditionID string
	Outcome     string
}

func closedKey(c dataapi.ClosedPosition) PositionKey {
	return PositionKey{ConditionID: c.ConditionID, Outcome: c.Outcome}
}

func openKey(p dataapi.Position) PositionKey {
	return PositionKey{ConditionID: p.ConditionID, Outcome: p.Outcome}
}

// Reconcile collapses partial-exit records into one record per logical
// position: the one with the latest end date. Its realized PnL is already
// cumulative and is never summed with the others. Undated records lose to
// any dated one; ties keep the record seen first. Output preserves
// first-seen key order.
func Reconcile(records []dataapi.ClosedPosition) []dataapi.ClosedPosition {
	index := make(map[PositionKey]int, len(records))
	out := make([]dataapi.ClosedPosition, 0, len(records))
	for _, r := range records {
		k := closedKey(r)
		i, ok := index[k]
		if !ok {
			index[k] = len(out)
			out = append(out, r)
			continue
		}
		if r.EndDate.Unix > out[i].EndDate.Unix {
			out[i] = r
		}
	}
	return out
}

// IsResolved reports whether a listed position's market has effectively settled
func IsResolved(p dataapi.Position) bool {
	return p.CurPrice <= resolvedLow || p.CurPrice >= resolvedHigh
}

// TrulyOpen returns positions whose market is still trading
func TrulyOpen(positions []dataapi.Position) []dataapi.Position {
	var out []dataapi.Position
	for _, p := range positions {
		if !IsResolved(p) {
			out = append(out, p)
		}
	}
	return out
}

// ResolvedOpen returns resolved-but-still-listed positions, one per logical
// key, excluding keys already present in the reconciled closed set.
func ResolvedOpen(positions []dataapi.Position, closed []dataapi.ClosedPosition) []dataapi.Position {
	seen := make(map[PositionKey]bool, len(closed))
	for _, c := range closed {
		seen[closedKey(c)] = true
	}

	var out []dataapi.Position
	for _, p := range positions {
		if !IsResolved(p) {
			continue
		}
		k := openKey(p)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, p)
	}
	return out
}
