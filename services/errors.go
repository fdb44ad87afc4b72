package services

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// Error taxonomy shared by the analytics engines
var (
	// ErrDataUnavailable means no contract or expiry data has been collected yet
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrInsufficientHistory means a lookback window exceeds the available history
	ErrInsufficientHistory = errors.New("insufficient history")
	// ErrInvalidQuote means a live quote failed validation or an option leg did not resolve
	ErrInvalidQuote = errors.New("invalid quote")
	// ErrExternalService means the quote or intraday collaborator failed or timed out
	ErrExternalService = errors.New("external service error")
)

// Warning records a recoverable per-symbol failure inside a batch table
type Warning struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

func newWarning(symbol string, err error) Warning {
	return Warning{Symbol: symbol, Reason: err.Error()}
}

// round rounds half to even at the given decimal places
func round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).RoundBank(places).Float64()
	return f
}

func floatPtr(v float64) *float64 {
	return &v
}
