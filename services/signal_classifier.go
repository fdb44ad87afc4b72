package services

import (
	"sort"

	"fno-signals/interfaces"
)

// Quadrant labels
const (
	QuadrantOIUpPriceUp     = "OI Up / Price Up"
	QuadrantOIUpPriceDown   = "OI Up / Price Down"
	QuadrantOIDownPriceUp   = "OI Down / Price Up"
	QuadrantOIDownPriceDown = "OI Down / Price Down"
)

// Price signal labels, listed in evaluation priority
const (
	SignalAboveHigh  = "price_above_prev_expiry_high"
	SignalAboveClose = "price_above_prev_expiry_close"
	SignalBelowLow   = "price_below_prev_expiry_low"
	SignalBelowClose = "price_below_prev_expiry_close"
)

// Cross kinds reported by the live scanner
const (
	CrossBreakoutClose  = "breakout_close"
	CrossBreakoutHigh   = "breakout_high"
	CrossBreakdownClose = "breakdown_close"
	CrossBreakdownLow   = "breakdown_low"
)

// ClassifyQuadrant labels the joint sign of price and OI change.
// A zero change on either axis yields no quadrant.
func ClassifyQuadrant(priceChg, oiChg float64) string {
	switch {
	case priceChg > 0 && oiChg > 0:
		return QuadrantOIUpPriceUp
	case priceChg < 0 && oiChg > 0:
		return QuadrantOIUpPriceDown
	case priceChg > 0 && oiChg < 0:
		return QuadrantOIDownPriceUp
	case priceChg < 0 && oiChg < 0:
		return QuadrantOIDownPriceDown
	}
	return ""
}

// ClassifyPriceSignal compares the latest close with the previous expiry levels.
// The first matching rule wins, so a close above the high never reports "above close".
func ClassifyPriceSignal(rec *ReferenceRecord) string {
	switch {
	case rec.CashCloseLatest > rec.PrevExpiryHigh:
		return SignalAboveHigh
	case rec.CashCloseLatest > rec.PrevExpiryClose:
		return SignalAboveClose
	case rec.CashCloseLatest < rec.PrevExpiryLow:
		return SignalBelowLow
	case rec.CashCloseLatest < rec.PrevExpiryClose:
		return SignalBelowClose
	}
	return ""
}

// CrossRow is one symbol that has just crossed a previous expiry level
type CrossRow struct {
	Symbol          string  `json:"symbol"`
	LiveClose       float64 `json:"live_close"`
	CashCloseLatest float64 `json:"cash_close_latest"`
	CashClosePrev   float64 `json:"cash_close_prev"`
	PrevExpiryHigh  float64 `json:"prev_expiry_high"`
	PrevExpiryLow   float64 `json:"prev_expiry_low"`
	PrevExpiryClose float64 `json:"prev_expiry_close"`
}

// CrossScan holds the four edge-triggered row sets
type CrossScan struct {
	BreakoutClose  []CrossRow `json:"breakout_close"`
	BreakoutHigh   []CrossRow `json:"breakout_high"`
	BreakdownClose []CrossRow `json:"breakdown_close"`
	BreakdownLow   []CrossRow `json:"breakdown_low"`
}

// Kinds returns the rows of each cross kind
func (c CrossScan) Kinds() map[string][]CrossRow {
	return map[string][]CrossRow{
		CrossBreakoutClose:  c.BreakoutClose,
		CrossBreakoutHigh:   c.BreakoutHigh,
		CrossBreakdownClose: c.BreakdownClose,
		CrossBreakdownLow:   c.BreakdownLow,
	}
}

// ScanPrevExpiryCross flags symbols whose live price has just crossed a reference level.
// CashCloseLatest acts as yesterday's close: a symbol already beyond a level is not flagged.
func ScanPrevExpiryCross(live []*interfaces.IntradayBar, ref map[string]*ReferenceRecord) CrossScan {
	scan := CrossScan{
		BreakoutClose:  []CrossRow{},
		BreakoutHigh:   []CrossRow{},
		BreakdownClose: []CrossRow{},
		BreakdownLow:   []CrossRow{},
	}

	lastTick := make(map[string]*interfaces.IntradayBar)
	for _, bar := range live {
		if bar == nil {
			continue
		}
		if prev, ok := lastTick[bar.Symbol]; !ok || !bar.Datetime.Before(prev.Datetime) {
			lastTick[bar.Symbol] = bar
		}
	}

	symbols := make([]string, 0, len(lastTick))
	for s := range lastTick {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		rec, ok := ref[symbol]
		if !ok {
			continue
		}
		px := lastTick[symbol].Close
		yesterday := rec.CashCloseLatest
		row := CrossRow{
			Symbol:          symbol,
			LiveClose:       px,
			CashCloseLatest: yesterday,
			CashClosePrev:   rec.CashClosePrev,
			PrevExpiryHigh:  rec.PrevExpiryHigh,
			PrevExpiryLow:   rec.PrevExpiryLow,
			PrevExpiryClose: rec.PrevExpiryClose,
		}

		if yesterday <= rec.PrevExpiryClose && px > rec.PrevExpiryClose {
			scan.BreakoutClose = append(scan.BreakoutClose, row)
		}
		if yesterday <= rec.PrevExpiryHigh && px > rec.PrevExpiryHigh {
			scan.BreakoutHigh = append(scan.BreakoutHigh, row)
		}
		if yesterday >= rec.PrevExpiryClose && px < rec.PrevExpiryClose {
			scan.BreakdownClose = append(scan.BreakdownClose, row)
		}
		if yesterday >= rec.PrevExpiryLow && px < rec.PrevExpiryLow {
			scan.BreakdownLow = append(scan.BreakdownLow, row)
		}
	}

	return scan
}
