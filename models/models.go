package models

import (
	"time"

	"gorm.io/gorm"
)

// DBCashBar represents a daily cash-market bar in the database
type DBCashBar struct {
	ID       uint      `gorm:"primaryKey"`
	Symbol   string    `gorm:"uniqueIndex:idx_cash_symbol_date"`
	Date     time.Time `gorm:"uniqueIndex:idx_cash_symbol_date"`
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   int64
	DelivPct *float64
}

// DBIndexBar represents a daily index bar in the database
type DBIndexBar struct {
	ID     uint      `gorm:"primaryKey"`
	Symbol string    `gorm:"uniqueIndex:idx_index_symbol_date"`
	Date   time.Time `gorm:"uniqueIndex:idx_index_symbol_date"`
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// DBDerivSnapshot represents the daily derivatives snapshot of one underlying.
// Kind is "stock" or "index". IV columns are stored as fractions.
type DBDerivSnapshot struct {
	ID                 uint      `gorm:"primaryKey"`
	Kind               string    `gorm:"uniqueIndex:idx_deriv_kind_symbol_date"`
	Symbol             string    `gorm:"uniqueIndex:idx_deriv_kind_symbol_date"`
	Date               time.Time `gorm:"uniqueIndex:idx_deriv_kind_symbol_date"`
	FrontExpiry        time.Time `gorm:"index"`
	FrontWeeklyExpiry  *time.Time
	FrontMonthlyExpiry *time.Time
	CombinedOI         *float64 `gorm:"column:combined_open_interest"`

	FrontFutClose *float64
	BackFutClose  *float64
	FarFutClose   *float64

	FrontStraddlePrice        *float64
	FrontStraddleIV           *float64 `gorm:"column:front_straddle_iv"`
	FrontWeeklyStraddlePrice  *float64
	FrontWeeklyStraddleIV     *float64 `gorm:"column:front_weekly_straddle_iv"`
	FrontMonthlyStraddlePrice *float64
	FrontMonthlyStraddleIV    *float64 `gorm:"column:front_monthly_straddle_iv"`
}

// DBIntradayBar represents a minute bar of the current session
type DBIntradayBar struct {
	ID       uint      `gorm:"primaryKey"`
	Symbol   string    `gorm:"index:idx_intraday_symbol_datetime"`
	Datetime time.Time `gorm:"index:idx_intraday_symbol_datetime"`
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   int64
}

// DBConstituent represents the sector mapping of one index constituent
type DBConstituent struct {
	Symbol string `gorm:"primaryKey"`
	Sector string `gorm:"index"`
}

// DBSignal is the journal row of one symbol's open interest classification on a date
type DBSignal struct {
	gorm.Model
	Symbol       string    `gorm:"uniqueIndex:idx_signal_symbol_date"`
	Date         time.Time `gorm:"uniqueIndex:idx_signal_symbol_date"`
	Quadrant     string    `gorm:"index"`
	PriceSignal  string    `gorm:"index"`
	PriceChange  float64
	OIChange     float64
	CashClose    float64
	PrevExpiry   time.Time
	LatestExpiry time.Time
}

// TableName overrides for cleaner table names
func (DBCashBar) TableName() string {
	return "cash_bars"
}

func (DBIndexBar) TableName() string {
	return "index_bars"
}

func (DBDerivSnapshot) TableName() string {
	return "deriv_snapshots"
}

func (DBIntradayBar) TableName() string {
	return "intraday_bars"
}

func (DBConstituent) TableName() string {
	return "constituents"
}

func (DBSignal) TableName() string {
	return "signals"
}
