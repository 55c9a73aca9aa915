package engine

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Stage is one independently cacheable computation mode
type Stage string

const (
	StageProfile                Stage = "profile"
	StageOpenPositions          Stage = "openPositions"
	StageRecentTrades           Stage = "recentTrades"
	StageClosedPositionsSummary Stage = "closedPositionsSummary"
	StageFull                   Stage = "full"
)

// Stages lists every stage in progressive order
var Stages = []Stage{
	StageProfile,
	StageOpenPositions,
	StageRecentTrades,
	StageClosedPositionsSummary,
	StageFull,
}

// ParseStage maps a caller-supplied name to a Stage. An empty name selects full.
func ParseStage(s string) (Stage, error) {
	if s == "" {
		return StageFull, nil
	}
	if st := Stage(s); st.Valid() {
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStage, s)
}

// Valid reports whether s is one of Stages
func (s Stage) Valid() bool {
	for _, st := range Stages {
		if s == st {
			return true
		}
	}
	return false
}

func (s Stage) String() string {
	return string(s)
}

// NormalizeAddress validates a wallet address and returns it lower-cased
func NormalizeAddress(address string) (string, error) {
	if len(address) != 42 || !strings.HasPrefix(address, "0x") || !common.IsHexAddress(address) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return strings.ToLower(address), nil
}
