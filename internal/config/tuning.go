package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// StageBudget caps how many records a stage pulls from each endpoint
type StageBudget struct {
	Positions       int `yaml:"positions"`
	Trades          int `yaml:"trades"`
	ClosedPositions int `yaml:"closed_positions"`
}

// FetchTuning controls the paginated fetcher
type FetchTuning struct {
	PositionsPageSize       int           `yaml:"positions_page_size"`
	TradesPageSize          int           `yaml:"trades_page_size"`
	ClosedPositionsPageSize int           `yaml:"closed_positions_page_size"`
	HighVolumeThreshold     int           `yaml:"high_volume_threshold"`
	BatchDelay              time.Duration `yaml:"batch_delay"`
	ErrorBatchDelay         time.Duration `yaml:"error_batch_delay"`
	BaseBackoff             time.Duration `yaml:"base_backoff"`
	MaxRetries              int           `yaml:"max_retries"`
}

// VolumeTuning holds the thresholds of the exit-volume estimate and ROV gating.
// These are approximations and are expected to be adjusted.
type VolumeTuning struct {
	MissingSellThreshold float64 `yaml:"missing_sell_threshold"`
	MinROVVolume         float64 `yaml:"min_rov_volume"`
	ROVWarnPercent       float64 `yaml:"rov_warn_percent"`
	ROVHighVolumePercent float64 `yaml:"rov_high_volume_percent"`
	HighVolumeUSD        float64 `yaml:"high_volume_usd"`
}

// Tuning groups the knobs that may be overridden from CONFIG_FILE
type Tuning struct {
	OpenPositions          StageBudget              `yaml:"open_positions"`
	RecentTrades           StageBudget              `yaml:"recent_trades"`
	ClosedPositionsSummary StageBudget              `yaml:"closed_positions_summary"`
	Full                   StageBudget              `yaml:"full"`
	Fetch                  FetchTuning              `yaml:"fetch"`
	Volume                 VolumeTuning             `yaml:"volume"`
	CacheTTL               map[string]time.Duration `yaml:"cache_ttl"`
	HistoryPoints          int                      `yaml:"history_points"`
	RecentTradesShown      int                      `yaml:"recent_trades_shown"`
}

// DefaultTuning returns the production defaults
func DefaultTuning() Tuning {
	return Tuning{
		OpenPositions:          StageBudget{Positions: 2000},
		RecentTrades:           StageBudget{Trades: 500},
		ClosedPositionsSummary: StageBudget{ClosedPositions: 1500},
		Full:                   StageBudget{Positions: 5000, Trades: 5000, ClosedPositions: 8000},
		Fetch: FetchTuning{
			PositionsPageSize:       500,
			TradesPageSize:          500,
			ClosedPositionsPageSize: 50,
			HighVolumeThreshold:     5000,
			BatchDelay:              200 * time.Millisecond,
			ErrorBatchDelay:         500 * time.Millisecond,
			BaseBackoff:             500 * time.Millisecond,
			MaxRetries:              3,
		},
		Volume: VolumeTuning{
			MissingSellThreshold: 1000,
			MinROVVolume:         1000,
			ROVWarnPercent:       20,
			ROVHighVolumePercent: 10,
			HighVolumeUSD:        20000,
		},
		CacheTTL:          map[string]time.Duration{},
		HistoryPoints:     100,
		RecentTradesShown: 50,
	}
}

// LoadFile merges a YAML file over the current values. Keys absent from the
// file keep their defaults.
func (t *Tuning) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, t); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// Validate rejects budgets and page sizes the fetcher cannot work with
func (t *Tuning) Validate() error {
	pages := map[string]int{
		"fetch.positions_page_size":        t.Fetch.PositionsPageSize,
		"fetch.trades_page_size":           t.Fetch.TradesPageSize,
		"fetch.closed_positions_page_size": t.Fetch.ClosedPositionsPageSize,
	}
	for name, v := range pages {
		if v <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if t.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must not be negative")
	}
	if t.Volume.MinROVVolume <= 0 {
		return fmt.Errorf("volume.min_rov_volume must be positive")
	}
	thresholds := map[string]float64{
		"volume.missing_sell_threshold":  t.Volume.MissingSellThreshold,
		"volume.rov_warn_percent":        t.Volume.ROVWarnPercent,
		"volume.rov_high_volume_percent": t.Volume.ROVHighVolumePercent,
		"volume.high_volume_usd":         t.Volume.HighVolumeUSD,
	}
	for name, v := range thresholds {
		if v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if t.HistoryPoints < 2 {
		return fmt.Errorf("history_points must be at least 2")
	}
	for stage, ttl := range t.CacheTTL {
		if ttl <= 0 {
			return fmt.Errorf("cache_ttl.%s must be positive", stage)
		}
	}
	return nil
}
