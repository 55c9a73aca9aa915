package dataapi

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Position is one open-position snapshot from GET /positions
type Position struct {
	ProxyWallet  string  `json:"proxyWallet"`
	Asset        string  `json:"asset"`
	ConditionID  string  `json:"conditionId"`
	Size         float64 `json:"size"`
	AvgPrice     float64 `json:"avgPrice"`
	InitialValue float64 `json:"initialValue"`
	CurrentValue float64 `json:"currentValue"`
	CashPnl      float64 `json:"cashPnl"`
	PercentPnl   float64 `json:"percentPnl"`
	TotalBought  float64 `json:"totalBought"`
	RealizedPnl  float64 `json:"realizedPnl"`
	CurPrice     float64 `json:"curPrice"`
	Redeemable   bool    `json:"redeemable"`
	Title        string  `json:"title"`
	Slug         string  `json:"slug"`
	Icon         string  `json:"icon,omitempty"`
	EventSlug    string  `json:"eventSlug,omitempty"`
	Outcome      string  `json:"outcome"`
	OutcomeIndex int     `json:"outcomeIndex"`
	EndDate      EndDate `json:"endDate"`
}

// IdentityKey is the dedup key across pages: the outcome token id
func (p Position) IdentityKey() string {
	if p.Asset != "" {
		return p.Asset
	}
	return serializedKey(p)
}

// ClosedPosition is one (possibly partial) exit from GET /closed-positions.
// RealizedPnl is cumulative as of EndDate.
type ClosedPosition struct {
	ProxyWallet  string  `json:"proxyWallet"`
	Asset        string  `json:"asset"`
	ConditionID  string  `json:"conditionId"`
	Size         float64 `json:"size,omitempty"`
	AvgPrice     float64 `json:"avgPrice"`
	InitialValue float64 `json:"initialValue,omitempty"`
	CurrentValue float64 `json:"currentValue,omitempty"`
	CashPnl      float64 `json:"cashPnl,omitempty"`
	TotalBought  float64 `json:"totalBought"`
	RealizedPnl  float64 `json:"realizedPnl"`
	CurPrice     float64 `json:"curPrice"`
	Timestamp    int64   `json:"timestamp,omitempty"`
	Title        string  `json:"title"`
	Slug         string  `json:"slug"`
	Icon         string  `json:"icon,omitempty"`
	EventSlug    string  `json:"eventSlug,omitempty"`
	Outcome      string  `json:"outcome"`
	OutcomeIndex int     `json:"outcomeIndex"`
	EndDate      EndDate `json:"endDate"`
}

// IdentityKey groups partial closes of the same logical position
func (c ClosedPosition) IdentityKey() string {
	if c.ConditionID != "" || c.Outcome != "" {
		return c.ConditionID + "-" + c.Outcome
	}
	return serializedKey(c)
}

// Supersedes reports whether c is a later snapshot of the same logical
// position than old.
func (c ClosedPosition) Supersedes(old ClosedPosition) bool {
	return c.EndDate.Unix > old.EndDate.Unix
}

// Trade represents a fill from GET /trades
type Trade struct {
	ProxyWallet     string  `json:"proxyWallet"`
	Side            string  `json:"side"` // BUY, SELL
	Asset           string  `json:"asset,omitempty"`
	ConditionID     string  `json:"conditionId"`
	Size            float64 `json:"size"`
	Price           float64 `json:"price"`
	Timestamp       int64   `json:"timestamp"` // Unix timestamp in seconds
	Outcome         string  `json:"outcome"`
	Title           string  `json:"title"`
	Slug            string  `json:"slug"`
	EventSlug       string  `json:"eventSlug,omitempty"`
	TransactionHash string  `json:"transactionHash"`
	USDCSize        float64 `json:"usdcSize,omitempty"`
}

// IdentityKey prefers the transaction hash; fills without one fall back to
// timestamp and market.
func (t Trade) IdentityKey() string {
	if t.TransactionHash != "" {
		return t.TransactionHash
	}
	if t.Timestamp != 0 || t.ConditionID != "" {
		return fmt.Sprintf("%d-%s", t.Timestamp, t.ConditionID)
	}
	return serializedKey(t)
}

// IsSell reports whether the fill reduced the position
func (t Trade) IsSell() bool {
	return strings.EqualFold(t.Side, "SELL")
}

// TradedResponse is the body of GET /traded
type TradedResponse struct {
	User   string `json:"user"`
	Traded int    `json:"traded"`
}

func serializedKey(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}

// EndDate is a market end date. Upstream sends RFC3339 timestamps, plain
// dates, or unix seconds depending on the endpoint; Unix is 0 when unknown.
type EndDate struct {
	Unix int64
	Raw  string
}

// NewEndDate builds an EndDate from a time
func NewEndDate(t time.Time) EndDate {
	return EndDate{Unix: t.Unix(), Raw: t.UTC().Format(time.RFC3339)}
}

// Known reports whether the date parsed to a real instant
func (d EndDate) Known() bool {
	return d.Unix > 0
}

func (d *EndDate) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		*d = EndDate{}
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var raw string
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		*d = ParseEndDate(raw)
		return nil
	}
	*d = ParseEndDate(s)
	return nil
}

func (d EndDate) MarshalJSON() ([]byte, error) {
	if d.Raw == "" {
		return []byte("null"), nil
	}
	return json.Marshal(d.Raw)
}

// ParseEndDate accepts RFC3339, YYYY-MM-DD, or unix seconds/milliseconds.
// Unparsable input keeps Raw and leaves Unix at 0.
func ParseEndDate(raw string) EndDate {
	raw = strings.TrimSpace(raw)
	d := EndDate{Raw: raw}
	if raw == "" {
		return d
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		d.Unix = t.Unix()
		return d
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		d.Unix = t.Unix()
		return d
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil && n > 0 {
		if n > 1e12 {
			n /= 1000
		}
		d.Unix = int64(n)
	}
	return d
}
