package engine

import (
	"errors"

	"github.com/AlanMarvin/polytrak/internal/fetcher"
)

var (
	// ErrInvalidAddress rejects anything that is not a 0x-prefixed 20-byte hex address
	ErrInvalidAddress = errors.New("invalid wallet address")

	// ErrUnknownStage rejects stage names outside the Stage enum
	ErrUnknownStage = errors.New("unknown stage")

	// ErrUpstreamExhausted means no usable data could be fetched
	ErrUpstreamExhausted = fetcher.ErrUpstreamExhausted

	// ErrStageTimeout means the full stage ran past its deadline. Callers
	// should retry later.
	ErrStageTimeout = errors.New("stage timed out")
)

// IsValidation reports whether err is caused by bad caller input
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAddress) || errors.Is(err, ErrUnknownStage)
}
