package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/AlanMarvin/polytrak/internal/config"
	"github.com/AlanMarvin/polytrak/internal/metrics"
	"github.com/AlanMarvin/polytrak/internal/polymarket/dataapi"
	"github.com/AlanMarvin/polytrak/internal/polymarket/gammaapi"
	"github.com/AlanMarvin/polytrak/internal/stagecache"
)

// DataSource is the paginated wallet data upstream
type DataSource interface {
	Positions(ctx context.Context, user string, limit, offset int) ([]dataapi.Position, error)
	ClosedPositions(ctx context.Context, user string, limit, offset int) ([]dataapi.ClosedPosition, error)
	Trades(ctx context.Context, params dataapi.TradeParams) ([]dataapi.Trade, error)
	TradedCount(ctx context.Context, user string) (int, error)
}

// ProfileSource looks up public profiles
type ProfileSource interface {
	GetProfile(ctx context.Context, address string) (*gammaapi.Profile, error)
}

// Response is the uniform result of a stage invocation
type Response struct {
	Stage  Stage           `json:"stage"`
	Data   json.RawMessage `json:"data"`
	Cached bool            `json:"cached"`
}

// Engine runs stages for wallets: validate, read cache, compute, write cache
type Engine struct {
	data        DataSource
	profiles    ProfileSource
	cache       *stagecache.Cache
	tuning      config.Tuning
	fullTimeout time.Duration
	log         *logrus.Logger
	group       singleflight.Group
	now         func() time.Time
}

// New creates an Engine
func New(cfg *config.Config, data DataSource, profiles ProfileSource, cache *stagecache.Cache, log *logrus.Logger) *Engine {
	return &Engine{
		data:        data,
		profiles:    profiles,
		cache:       cache,
		tuning:      cfg.Tuning,
		fullTimeout: cfg.FullStageTimeout,
		log:         log,
		now:         time.Now,
	}
}

type computed struct {
	data []byte
}

// Analyze runs stage for address. Invalid input is rejected before any
// upstream call. Only successful computations are cached.
func (e *Engine) Analyze(ctx context.Context, address string, stage Stage) (*Response, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	if !stage.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}

	log := e.log.WithFields(logrus.Fields{
		"request_id": uuid.NewString(),
		"address":    addr,
		"stage":      stage,
	})

	start := time.Now()
	if data, ok := e.cache.Get(ctx, addr, string(stage)); ok {
		metrics.RecordStage(string(stage), "cached", time.Since(start))
		log.Debug("Serving cached stage")
		return &Response{Stage: stage, Data: data, Cached: true}, nil
	}

	// The shared computation outlives any single caller; each caller stops
	// waiting when its own context ends.
	ch := e.group.DoChan(addr+":"+string(stage), func() (any, error) {
		detached := context.WithoutCancel(ctx)
		data, err := e.compute(detached, log, addr, stage)
		if err != nil {
			return nil, err
		}
		e.cache.Put(detached, addr, string(stage), data)
		return computed{data: data}, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		metrics.RecordStage(string(stage), "cancelled", time.Since(start))
		log.WithError(ctx.Err()).Debug("Caller stopped waiting for stage")
		return nil, ctx.Err()
	case res = <-ch:
	}

	if err := res.Err; err != nil {
		outcome := "error"
		if errors.Is(err, ErrStageTimeout) {
			outcome = "timeout"
		}
		metrics.RecordStage(string(stage), outcome, time.Since(start))
		log.WithError(err).Warn("Stage failed")
		return nil, err
	}

	metrics.RecordStage(string(stage), "computed", time.Since(start))
	log.WithFields(logrus.Fields{
		"duration_ms": time.Since(start).Milliseconds(),
		"shared":      res.Shared,
	}).Info("Stage computed")

	return &Response{Stage: stage, Data: res.Val.(computed).data, Cached: false}, nil
}

func (e *Engine) compute(ctx context.Context, log *logrus.Entry, addr string, stage Stage) ([]byte, error) {
	var (
		payload any
		err     error
	)

	switch stage {
	case StageProfile:
		payload, err = e.profileStage(ctx, log, addr)
	case StageOpenPositions:
		payload, err = e.openPositionsStage(ctx, log, addr)
	case StageRecentTrades:
		payload, err = e.recentTradesStage(ctx, log, addr)
	case StageClosedPositionsSummary:
		payload, err = e.closedPositionsStage(ctx, log, addr)
	case StageFull:
		payload, err = e.fullStage(ctx, log, addr)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", stage, err)
	}
	return data, nil
}
