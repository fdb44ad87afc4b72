package services

import (
	"fmt"
	"sort"
	"time"

	"fno-signals/interfaces"
)

// ReferenceRecord holds one symbol's latest levels against its previous expiry cycle
type ReferenceRecord struct {
	Symbol           string  `json:"symbol"`
	CombinedOILatest float64 `json:"combined_open_interest_latest"`
	CombinedOIPrev   float64 `json:"combined_open_interest_prev"`
	CashCloseLatest  float64 `json:"cash_close_latest"`
	CashClosePrev    float64 `json:"cash_close_prev"`
	PrevExpiryHigh   float64 `json:"prev_expiry_high"`
	PrevExpiryLow    float64 `json:"prev_expiry_low"`
	PrevExpiryClose  float64 `json:"prev_expiry_close"`
	PriceChangePct   float64 `json:"price_change"`
	OIChangePct      float64 `json:"oi_change"`
	Quadrant         string  `json:"quadrant,omitempty"`
	PriceSignal      string  `json:"price_signal,omitempty"`
}

// ReferenceTable is the joined reference table plus the scalars downstream views consume
type ReferenceTable struct {
	Records        map[string]*ReferenceRecord `json:"-"`
	LatestDate     time.Time                   `json:"latest_date"`
	LatestExpiry   time.Time                   `json:"latest_expiry"`
	PrevExpiry     time.Time                   `json:"prev_expiry"`
	CashLatestDate time.Time                   `json:"cash_latest_date"`
	WindowStart    time.Time                   `json:"window_start"`
}

// Rows returns the records ordered by symbol
func (t *ReferenceTable) Rows() []*ReferenceRecord {
	rows := make([]*ReferenceRecord, 0, len(t.Records))
	for _, r := range t.Records {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Symbol < rows[j].Symbol })
	return rows
}

// BuildReference joins the latest open interest and cash close of every symbol with its
// previous expiry cycle. Symbols missing on either side of a join are left out.
// When no expiry precedes the latest one the error wraps ErrInsufficientHistory.
func BuildReference(snapshots []*interfaces.DerivSnapshot, cash []*interfaces.Bar) (*ReferenceTable, error) {
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("no derivatives snapshots: %w", ErrDataUnavailable)
	}

	// Drop nil rows and sort by symbol, date
	snaps := make([]*interfaces.DerivSnapshot, 0, len(snapshots))
	for _, s := range snapshots {
		if s != nil {
			snaps = append(snaps, s)
		}
	}
	sort.SliceStable(snaps, func(i, j int) bool {
		if snaps[i].Symbol != snaps[j].Symbol {
			return snaps[i].Symbol < snaps[j].Symbol
		}
		return snaps[i].Date.Before(snaps[j].Date)
	})

	var latestDate time.Time
	for _, s := range snaps {
		if d := civilDate(s.Date); d.After(latestDate) {
			latestDate = d
		}
	}

	// Current front expiry is the most common one on the latest date
	latestSyms := make(map[string]bool)
	expiryCount := make(map[time.Time]int)
	for _, s := range snaps {
		if civilDate(s.Date).Equal(latestDate) {
			latestSyms[s.Symbol] = true
			expiryCount[civilDate(s.FrontExpiry)]++
		}
	}
	latestExpiry := modeExpiry(expiryCount)

	var prevExpiry time.Time
	for _, s := range snaps {
		if e := civilDate(s.FrontExpiry); e.Before(latestExpiry) && e.After(prevExpiry) {
			prevExpiry = e
		}
	}
	if prevExpiry.IsZero() {
		return nil, fmt.Errorf("no expiry before %s: %w", latestExpiry.Format("2006-01-02"), ErrInsufficientHistory)
	}

	// Open interest now and at the previous expiry
	latestOI := make(map[string]float64)
	prevOI := make(map[string]float64)
	var windowStart time.Time
	for _, s := range snaps {
		if civilDate(s.Date).Equal(latestDate) && s.CombinedOI != nil {
			latestOI[s.Symbol] = *s.CombinedOI
		}
		if civilDate(s.FrontExpiry).Equal(prevExpiry) {
			if d := civilDate(s.Date); windowStart.IsZero() || d.Before(windowStart) {
				windowStart = d
			}
			if s.CombinedOI != nil {
				prevOI[s.Symbol] = *s.CombinedOI
			}
		}
	}

	// Closes, plus the high and low over the previous cycle
	var cashLatestDate time.Time
	for _, b := range cash {
		if b != nil && latestSyms[b.Symbol] {
			if d := civilDate(b.Date); d.After(cashLatestDate) {
				cashLatestDate = d
			}
		}
	}

	cashLatest := make(map[string]float64)
	cashPrev := make(map[string]float64)
	highs := make(map[string]float64)
	lows := make(map[string]float64)
	for _, b := range cash {
		if b == nil || !latestSyms[b.Symbol] {
			continue
		}
		d := civilDate(b.Date)
		if d.Equal(cashLatestDate) {
			cashLatest[b.Symbol] = b.Close
		}
		if d.Equal(prevExpiry) {
			cashPrev[b.Symbol] = b.Close
		}
		if !d.Before(windowStart) && !d.After(prevExpiry) {
			if h, ok := highs[b.Symbol]; !ok || b.Close > h {
				highs[b.Symbol] = b.Close
			}
			if l, ok := lows[b.Symbol]; !ok || b.Close < l {
				lows[b.Symbol] = b.Close
			}
		}
	}

	table := &ReferenceTable{
		Records:        make(map[string]*ReferenceRecord),
		LatestDate:     latestDate,
		LatestExpiry:   latestExpiry,
		PrevExpiry:     prevExpiry,
		CashLatestDate: cashLatestDate,
		WindowStart:    windowStart,
	}

	// Symbols missing either side are skipped
	for symbol, oiLatest := range latestOI {
		oiPrev, ok := prevOI[symbol]
		if !ok || oiPrev == 0 {
			continue
		}
		closeLatest, ok := cashLatest[symbol]
		if !ok {
			continue
		}
		closePrev, ok := cashPrev[symbol]
		if !ok || closePrev == 0 {
			continue
		}

		rec := &ReferenceRecord{
			Symbol:           symbol,
			CombinedOILatest: oiLatest,
			CombinedOIPrev:   oiPrev,
			CashCloseLatest:  closeLatest,
			CashClosePrev:    closePrev,
			PrevExpiryHigh:   highs[symbol],
			PrevExpiryLow:    lows[symbol],
			PrevExpiryClose:  closePrev,
			PriceChangePct:   round((closeLatest/closePrev-1)*100, 1),
			OIChangePct:      round((oiLatest/oiPrev-1)*100, 1),
		}
		rec.PriceSignal = ClassifyPriceSignal(rec)
		rec.Quadrant = ClassifyQuadrant(rec.PriceChangePct, rec.OIChangePct)
		table.Records[symbol] = rec
	}

	return table, nil
}

// modeExpiry returns the most frequent expiry, the earliest one on ties
func modeExpiry(counts map[time.Time]int) time.Time {
	var best time.Time
	bestCount := 0
	for exp, n := range counts {
		if n > bestCount || (n == bestCount && exp.Before(best)) {
			best, bestCount = exp, n
		}
	}
	return best
}
