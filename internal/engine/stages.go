package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/AlanMarvin/polytrak/internal/analysis"
	"github.com/AlanMarvin/polytrak/internal/fetcher"
	"github.com/AlanMarvin/polytrak/internal/metrics"
	"github.com/AlanMarvin/polytrak/internal/polymarket/dataapi"
	"github.com/AlanMarvin/polytrak/internal/polymarket/gammaapi"
	"github.com/AlanMarvin/polytrak/internal/reliability"
)

// ProfileResult identifies a wallet
type ProfileResult struct {
	Address       string            `json:"address"`
	DisplayName   string            `json:"displayName"`
	Profile       *gammaapi.Profile `json:"profile"`
	MarketsTraded *int              `json:"marketsTraded"`
}

// OpenPositionsResult lists positions in markets that are still trading
type OpenPositionsResult struct {
	Positions                  []dataapi.Position `json:"positions"`
	Count                      int                `json:"count"`
	ResolvedAwaitingRedemption int                `json:"resolvedAwaitingRedemption"`
	TotalValue                 float64            `json:"totalValue"`
	UnrealizedPnl              float64            `json:"unrealizedPnl"`
	Reliability                reliability.Report `json:"reliability"`
}

// RecentTradesResult lists the newest fills
type RecentTradesResult struct {
	Trades       []dataapi.Trade     `json:"trades"`
	TotalFetched int                 `json:"totalFetched"`
	Volume       analysis.FillVolume `json:"volume"`
	Reliability  reliability.Report  `json:"reliability"`
}

// ClosedPositionsResult summarizes realized performance
type ClosedPositionsResult struct {
	RealizedPnl     float64                   `json:"realizedPnl"`
	Pnl24h          float64                   `json:"pnl24h"`
	Pnl7d           float64                   `json:"pnl7d"`
	Pnl30d          float64                   `json:"pnl30d"`
	WinRate         float64                   `json:"winRate"`
	Wins            int                       `json:"wins"`
	Losses          int                       `json:"losses"`
	ClosedPositions int                       `json:"closedPositions"`
	BestPosition    *analysis.PositionSummary `json:"bestPosition"`
	WorstPosition   *analysis.PositionSummary `json:"worstPosition"`
	PnlHistory      []analysis.PnlPoint       `json:"pnlHistory"`
	Reliability     reliability.Report        `json:"reliability"`
}

// TraderAnalysisResult is the merged output of the full stage
type TraderAnalysisResult struct {
	Address       string              `json:"address"`
	Profile       ProfileResult       `json:"profile"`
	Metrics       analysis.Metrics    `json:"metrics"`
	OpenPositions []dataapi.Position  `json:"openPositions"`
	RecentTrades  []dataapi.Trade     `json:"recentTrades"`
	PnlHistory    []analysis.PnlPoint `json:"pnlHistory"`
	Reliability   reliability.Report  `json:"reliability"`
	Warnings      []string            `json:"warnings"`
	ComputedAt    time.Time           `json:"computedAt"`
}

func (e *Engine) profileStage(ctx context.Context, log *logrus.Entry, addr string) (*ProfileResult, error) {
	profile, err := e.profiles.GetProfile(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	return &ProfileResult{
		Address:       addr,
		DisplayName:   profileName(profile, addr),
		Profile:       profile,
		MarketsTraded: e.marketsTraded(ctx, log, addr),
	}, nil
}

func (e *Engine) openPositionsStage(ctx context.Context, log *logrus.Entry, addr string) (*OpenPositionsResult, error) {
	rel := reliability.New()
	positions, err := e.fetchPositions(ctx, log, addr, e.tuning.OpenPositions.Positions, rel)
	if err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}

	m := analysis.Compute(positions, nil, nil, e.now(), e.tuning.Volume)
	return &OpenPositionsResult{
		Positions:                  byValue(analysis.TrulyOpen(positions)),
		Count:                      m.OpenCount,
		ResolvedAwaitingRedemption: m.ResolvedOpen,
		TotalValue:                 m.OpenPositionsValue,
		UnrealizedPnl:              m.UnrealizedPnl,
		Reliability:                evaluate(rel, 0, 0),
	}, nil
}

func (e *Engine) recentTradesStage(ctx context.Context, log *logrus.Entry, addr string) (*RecentTradesResult, error) {
	rel := reliability.New()
	trades, err := e.fetchTrades(ctx, log, addr, e.tuning.RecentTrades.Trades, rel)
	if err != nil {
		return nil, fmt.Errorf("fetch trades: %w", err)
	}

	return &RecentTradesResult{
		Trades:       e.newest(trades),
		TotalFetched: len(trades),
		Volume:       analysis.SumFills(trades),
		Reliability:  evaluate(rel, 0, len(trades)),
	}, nil
}

func (e *Engine) closedPositionsStage(ctx context.Context, log *logrus.Entry, addr string) (*ClosedPositionsResult, error) {
	rel := reliability.New()
	raw, err := e.fetchClosedPositions(ctx, log, addr, e.tuning.ClosedPositionsSummary.ClosedPositions, rel)
	if err != nil {
		return nil, fmt.Errorf("fetch closed positions: %w", err)
	}

	closed := analysis.Reconcile(raw)
	m := analysis.Compute(nil, closed, nil, e.now(), e.tuning.Volume)
	return &ClosedPositionsResult{
		RealizedPnl:     m.RealizedPnl,
		Pnl24h:          m.Pnl24h,
		Pnl7d:           m.Pnl7d,
		Pnl30d:          m.Pnl30d,
		WinRate:         m.WinRate,
		Wins:            m.Wins,
		Losses:          m.Losses,
		ClosedPositions: m.ClosedCount,
		BestPosition:    m.BestPosition,
		WorstPosition:   m.WorstPosition,
		PnlHistory:      analysis.BuildHistory(closed, e.tuning.HistoryPoints),
		Reliability:     evaluate(rel, len(closed), 0),
	}, nil
}

func (e *Engine) fullStage(parent context.Context, log *logrus.Entry, addr string) (*TraderAnalysisResult, error) {
	ctx, cancel := context.WithTimeout(parent, e.fullTimeout)
	defer cancel()

	rel := reliability.New()
	budget := e.tuning.Full

	var (
		positions  []dataapi.Position
		trades     []dataapi.Trade
		rawClosed  []dataapi.ClosedPosition
		profile    *gammaapi.Profile
		traded     *int
		posErr     error
		tradeErr   error
		closedErr  error
		profileErr error
		g          errgroup.Group
	)

	// Fetch failures are kept per source so partial data survives; only an
	// ended context fails the group.
	g.Go(func() error {
		positions, posErr = e.fetchPositions(ctx, log, addr, budget.Positions, rel)
		return ctx.Err()
	})
	g.Go(func() error {
		trades, tradeErr = e.fetchTrades(ctx, log, addr, budget.Trades, rel)
		return ctx.Err()
	})
	g.Go(func() error {
		rawClosed, closedErr = e.fetchClosedPositions(ctx, log, addr, budget.ClosedPositions, rel)
		return ctx.Err()
	})
	g.Go(func() error {
		profile, profileErr = e.profiles.GetProfile(ctx, addr)
		return ctx.Err()
	})
	g.Go(func() error {
		traded = e.marketsTraded(ctx, log, addr)
		return ctx.Err()
	})

	if err := g.Wait(); err != nil {
		if parentErr := parent.Err(); parentErr != nil {
			return nil, parentErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrStageTimeout, e.fullTimeout)
		}
		return nil, err
	}
	if posErr != nil && tradeErr != nil && closedErr != nil {
		return nil, fmt.Errorf("fetch wallet data: %w", errors.Join(posErr, tradeErr, closedErr))
	}

	warnings := []string{}
	for _, f := range []struct {
		err  error
		what string
	}{
		{posErr, "Open positions"},
		{tradeErr, "Trade history"},
		{closedErr, "Closed positions"},
		{profileErr, "Profile"},
	} {
		if f.err != nil {
			log.WithError(f.err).Warnf("%s unavailable, continuing with partial data", f.what)
			warnings = append(warnings, f.what+" unavailable")
		}
	}

	closed := analysis.Reconcile(rawClosed)
	m := analysis.Compute(positions, closed, trades, e.now(), e.tuning.Volume)

	totalTrades := len(trades)
	if traded != nil && *traded > totalTrades {
		totalTrades = *traded
	}

	return &TraderAnalysisResult{
		Address: addr,
		Profile: ProfileResult{
			Address:       addr,
			DisplayName:   profileName(profile, addr),
			Profile:       profile,
			MarketsTraded: traded,
		},
		Metrics:       m,
		OpenPositions: byValue(analysis.TrulyOpen(positions)),
		RecentTrades:  e.newest(trades),
		PnlHistory:    analysis.BuildHistory(closed, e.tuning.HistoryPoints),
		Reliability:   evaluate(rel, len(closed), totalTrades),
		Warnings:      warnings,
		ComputedAt:    e.now().UTC(),
	}, nil
}

func (e *Engine) fetchPositions(ctx context.Context, log *logrus.Entry, addr string, maxItems int, rel *reliability.Metrics) ([]dataapi.Position, error) {
	opts := fetcher.NewOptions("positions", maxItems, e.tuning.Fetch.PositionsPageSize, e.tuning.Fetch, log)
	return fetcher.Paginate(ctx, func(ctx context.Context, limit, offset int) ([]dataapi.Position, error) {
		return e.data.Positions(ctx, addr, limit, offset)
	}, opts, rel)
}

func (e *Engine) fetchTrades(ctx context.Context, log *logrus.Entry, addr string, maxItems int, rel *reliability.Metrics) ([]dataapi.Trade, error) {
	opts := fetcher.NewOptions("trades", maxItems, e.tuning.Fetch.TradesPageSize, e.tuning.Fetch, log)
	return fetcher.Paginate(ctx, func(ctx context.Context, limit, offset int) ([]dataapi.Trade, error) {
		return e.data.Trades(ctx, dataapi.TradeParams{User: addr, Limit: limit, Offset: offset})
	}, opts, rel)
}

func (e *Engine) fetchClosedPositions(ctx context.Context, log *logrus.Entry, addr string, maxItems int, rel *reliability.Metrics) ([]dataapi.ClosedPosition, error) {
	opts := fetcher.NewOptions("closed-positions", maxItems, e.tuning.Fetch.ClosedPositionsPageSize, e.tuning.Fetch, log)
	opts.HighVolumeThreshold = e.tuning.Fetch.HighVolumeThreshold
	return fetcher.Paginate(ctx, func(ctx context.Context, limit, offset int) ([]dataapi.ClosedPosition, error) {
		return e.data.ClosedPositions(ctx, addr, limit, offset)
	}, opts, rel)
}

// marketsTraded is best-effort; the count only enriches the profile
func (e *Engine) marketsTraded(ctx context.Context, log *logrus.Entry, addr string) *int {
	n, err := e.data.TradedCount(ctx, addr)
	if err != nil {
		log.WithError(err).Debug("Markets traded count unavailable")
		return nil
	}
	return &n
}

// newest returns the most recent fills first, capped for display
func (e *Engine) newest(trades []dataapi.Trade) []dataapi.Trade {
	sorted := make([]dataapi.Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp > sorted[j].Timestamp
	})
	if n := e.tuning.RecentTradesShown; n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func byValue(positions []dataapi.Position) []dataapi.Position {
	if positions == nil {
		return []dataapi.Position{}
	}
	sort.SliceStable(positions, func(i, j int) bool {
		return positions[i].CurrentValue > positions[j].CurrentValue
	})
	return positions
}

func evaluate(rel *reliability.Metrics, closed, trades int) reliability.Report {
	report := reliability.Evaluate(rel.Snapshot(), closed, trades)
	metrics.RecordReliability(string(report.Score))
	return report
}

func profileName(p *gammaapi.Profile, addr string) string {
	if name := p.DisplayName(); name != "" {
		return name
	}
	return addr
}
