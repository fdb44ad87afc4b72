package interfaces

import (
	"context"
	"time"
)

// BarProvider defines the interface for end-of-day market data
type BarProvider interface {
	GetCashBars(ctx context.Context) ([]*Bar, error)
	GetIndexBars(ctx context.Context) ([]*Bar, error)
	GetStockDerivSnapshots(ctx context.Context) ([]*DerivSnapshot, error)
	GetIndexDerivSnapshots(ctx context.Context) ([]*DerivSnapshot, error)
}

// IntradayProvider defines the interface for minute bars of the current session
type IntradayProvider interface {
	// GetIntradayBars returns minute bars for symbols (empty slice means all)
	// going days calendar days back.
	GetIntradayBars(ctx context.Context, symbols []string, days int) ([]*IntradayBar, error)
}

// QuotePort is the narrow view of the broker quote API the analytics depend on
type QuotePort interface {
	// GetQuotes returns quotes keyed by the identifier that was requested
	// (instrument token or "EXCHANGE:TRADINGSYMBOL" tag).
	GetQuotes(ctx context.Context, identifiers []string) (map[string]*Quote, error)
	// GetInstruments returns the instrument master.
	GetInstruments(ctx context.Context) ([]*Contract, error)
}

// ConstituentSource supplies the symbol -> sector mapping
type ConstituentSource interface {
	GetConstituents(ctx context.Context) ([]*Constituent, error)
}

// Bar is one daily row for a cash or index symbol
type Bar struct {
	Symbol   string     `json:"symbol"`
	Date     time.Time  `json:"date"`
	Open     float64    `json:"open"`
	High     float64    `json:"high"`
	Low      float64    `json:"low"`
	Close    float64    `json:"close"`
	Volume   int64      `json:"volume"`
	DelivPct *float64   `json:"deliv_pct,omitempty"`
	Datetime *time.Time `json:"datetime,omitempty"` // set only on live rows
}

// IntradayBar is one minute bar of the current session
type IntradayBar struct {
	Symbol   string    `json:"symbol"`
	Datetime time.Time `json:"datetime"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   int64     `json:"volume"`
}

// DerivSnapshot is the daily derivatives row for one underlying.
// Stock rows fill the front_* straddle columns, index rows the weekly/monthly ones.
type DerivSnapshot struct {
	Symbol             string     `json:"symbol"`
	Date               time.Time  `json:"date"`
	FrontExpiry        time.Time  `json:"front_expiry"`
	FrontWeeklyExpiry  *time.Time `json:"front_weekly_expiry,omitempty"`
	FrontMonthlyExpiry *time.Time `json:"front_monthly_expiry,omitempty"`
	CombinedOI         *float64   `json:"combined_open_interest,omitempty"`

	FrontFutClose *float64 `json:"front_fut_close,omitempty"`
	BackFutClose  *float64 `json:"back_fut_close,omitempty"`
	FarFutClose   *float64 `json:"far_fut_close,omitempty"`

	FrontStraddlePrice        *float64 `json:"front_straddle_price,omitempty"`
	FrontStraddleIV           *float64 `json:"front_straddle_iv,omitempty"`
	FrontWeeklyStraddlePrice  *float64 `json:"front_weekly_straddle_price,omitempty"`
	FrontWeeklyStraddleIV     *float64 `json:"front_weekly_straddle_iv,omitempty"`
	FrontMonthlyStraddlePrice *float64 `json:"front_monthly_straddle_price,omitempty"`
	FrontMonthlyStraddleIV    *float64 `json:"front_monthly_straddle_iv,omitempty"`
}

// Quote is a live quote for one instrument
type Quote struct {
	Key             string    `json:"key"`
	InstrumentToken int64     `json:"instrument_token"`
	LastPrice       float64   `json:"last_price"`
	Open            float64   `json:"open"`
	High            float64   `json:"high"`
	Low             float64   `json:"low"`
	PrevClose       float64   `json:"prev_close"` // ohlc.close is the previous session close
	Volume          int64     `json:"volume"`
	LastTradeTime   time.Time `json:"last_trade_time"`
}

// Constituent maps a symbol to its sector
type Constituent struct {
	Symbol string `json:"symbol"`
	Sector string `json:"sector"`
}
