package reliability

import (
	"math"
	"sync/atomic"
)

// Metrics collects fetch-quality signals for one stage invocation. The
// fetcher goroutines of that invocation share it; it is never reused
// across requests.
type Metrics struct {
	rateLimitHits  atomic.Int64
	fetchErrors    atomic.Int64
	hitOffsetLimit atomic.Bool
	truncated      atomic.Bool
	requestedMax   atomic.Int64
	receivedCount  atomic.Int64
}

// New returns zeroed counters
func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) AddRateLimitHit()   { m.rateLimitHits.Add(1) }
func (m *Metrics) AddFetchError()     { m.fetchErrors.Add(1) }
func (m *Metrics) MarkOffsetLimit()   { m.hitOffsetLimit.Store(true) }
func (m *Metrics) MarkTruncated()     { m.truncated.Store(true) }
func (m *Metrics) AddRequested(n int) { m.requestedMax.Add(int64(n)) }
func (m *Metrics) AddReceived(n int)  { m.receivedCount.Add(int64(n)) }

// Snapshot is a point-in-time copy of Metrics
type Snapshot struct {
	RateLimitHits  int64 `json:"rateLimitHits"`
	FetchErrors    int64 `json:"fetchErrors"`
	HitOffsetLimit bool  `json:"hitOffsetLimit"`
	Truncated      bool  `json:"truncated"`
	RequestedMax   int64 `json:"requestedMax"`
	ReceivedCount  int64 `json:"receivedCount"`
}

// Snapshot copies the current counter values
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		RateLimitHits:  m.rateLimitHits.Load(),
		FetchErrors:    m.fetchErrors.Load(),
		HitOffsetLimit: m.hitOffsetLimit.Load(),
		Truncated:      m.truncated.Load(),
		RequestedMax:   m.requestedMax.Load(),
		ReceivedCount:  m.receivedCount.Load(),
	}
}

// Score is the confidence rating of an analysis result
type Score string

const (
	ScoreHigh   Score = "high"
	ScoreMedium Score = "medium"
	ScoreLow    Score = "low"
)

const (
	WarnLimitedHistory = "Limited historical data"
	WarnHighVolume     = "High-volume trader, sampling applied"
	WarnOffsetLimit    = "Reached API data limits"
	WarnRateLimited    = "Rate limiting encountered"
	WarnNetworkIssues  = "Network issues during collection"
)

// Report is the reliability section of a stage result
type Report struct {
	Score           Score    `json:"score"`
	Warnings        []string `json:"warnings"`
	Completeness    float64  `json:"completeness"`
	Metrics         Snapshot `json:"metrics"`
	ClosedPositions int      `json:"closedPositions"`
	TotalTrades     int      `json:"totalTrades"`
}

// Evaluate scores a set of counters. totalTrades is the trader's overall
// activity as reported upstream, which may exceed what was fetched.
func Evaluate(s Snapshot, totalClosed, totalTrades int) Report {
	completeness := 100.0
	warnings := []string{}

	if totalTrades > 1000 && s.ReceivedCount < 1000 {
		completeness = math.Min(100, float64(s.ReceivedCount)/1000*100)
		if completeness < 50 {
			warnings = append(warnings, WarnLimitedHistory)
		}
	}

	if s.ReceivedCount > 8000 || s.Truncated {
		warnings = append(warnings, WarnHighVolume)
		completeness = math.Max(70, completeness*0.8)
	}

	if s.HitOffsetLimit {
		warnings = append(warnings, WarnOffsetLimit)
		completeness = math.Max(60, completeness*0.7)
	}

	if s.RateLimitHits > 20 {
		warnings = append(warnings, WarnRateLimited)
		completeness = math.Max(50, completeness*0.8)
	}

	if s.FetchErrors > 5 {
		warnings = append(warnings, WarnNetworkIssues)
		completeness = math.Max(40, completeness*0.6)
	}

	var score Score
	switch {
	case completeness < 60 || len(warnings) >= 2:
		score = ScoreLow
	case completeness < 80 || len(warnings) == 1:
		score = ScoreMedium
	default:
		score = ScoreHigh
	}

	return Report{
		Score:           score,
		Warnings:        warnings,
		Completeness:    math.Round(completeness*100) / 100,
		Metrics:         s,
		ClosedPositions: totalClosed,
		TotalTrades:     totalTrades,
	}
}
