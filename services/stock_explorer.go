package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"fno-signals/interfaces"
)

const (
	delivSmoothingSpan  = 3
	defaultExplorerDays = 30
)

// ExplorerPoint is one session of a stock next to the benchmark, both rebased to 100
type ExplorerPoint struct {
	Date           time.Time `json:"date"`
	Open           float64   `json:"open"`
	High           float64   `json:"high"`
	Low            float64   `json:"low"`
	Close          float64   `json:"close"`
	Volume         int64     `json:"volume"`
	DelivPct       *float64  `json:"deliv_pct"`
	DelivPctSmooth *float64  `json:"deliv_pct_smooth"`
	IndexClose     *float64  `json:"index_close"`
	Rebased        float64   `json:"rebased"`
	IndexRebased   *float64  `json:"index_rebased"`
}

// StockExplorer is the windowed price, delivery and derivatives history of one stock
type StockExplorer struct {
	Symbol          string                      `json:"symbol"`
	WindowStart     time.Time                   `json:"window_start"`
	PrevExpiry      *time.Time                  `json:"prev_expiry,omitempty"`
	PrevExpiryClose *float64                    `json:"prev_expiry_close"`
	Points          []ExplorerPoint             `json:"points"`
	Derivatives     []*interfaces.DerivSnapshot `json:"derivatives"`
	Warnings        []Warning                   `json:"warnings,omitempty"`
}

// smoothDelivery returns the span 3 exponential average of delivery percentages.
// The average starts at the first reported value; sessions without one carry the previous
// average while its weight keeps decaying.
func smoothDelivery(values []*float64) []*float64 {
	alpha := 2.0 / float64(delivSmoothingSpan+1)

	out := make([]*float64, len(values))
	var avg float64
	started := false
	oldWt := 1.0
	for i, v := range values {
		switch {
		case started:
			oldWt *= 1 - alpha
			if v != nil {
				avg = (oldWt*avg + alpha*(*v)) / (oldWt + alpha)
				oldWt = 1
			}
		case v != nil:
			avg = *v
			started = true
		}
		if started {
			out[i] = floatPtr(avg)
		}
	}
	return out
}

// ExploreStock cuts the trailing winDays calendar days of a stock's history.
// Delivery is smoothed over the full history before the cut. The benchmark is aligned onto
// the stock's sessions, carrying its last level forward, and both are rebased to 100 on the
// first session of the window. prevExpiry may be zero, in which case no reference close is set.
func ExploreStock(symbol string, cash, index []*interfaces.Bar, snaps []*interfaces.DerivSnapshot, winDays int, prevExpiry time.Time) (*StockExplorer, error) {
	symbol = strings.ToUpper(symbol)
	if winDays <= 0 {
		winDays = defaultExplorerDays
	}

	// Collect the stock's sessions, first row per date
	seen := make(map[time.Time]bool)
	var bars []*interfaces.Bar
	for _, b := range cash {
		if b == nil || b.Symbol != symbol {
			continue
		}
		d := civilDate(b.Date)
		if seen[d] {
			continue
		}
		seen[d] = true
		bars = append(bars, b)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no price data for %s: %w", symbol, ErrDataUnavailable)
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	deliv := make([]*float64, len(bars))
	for i, b := range bars {
		deliv[i] = b.DelivPct
	}
	smooth := smoothDelivery(deliv)

	cutoff := civilDate(bars[len(bars)-1].Date).AddDate(0, 0, -winDays)

	// Average benchmark level per session
	sums := make(map[time.Time]float64)
	counts := make(map[time.Time]int)
	for _, b := range index {
		if b == nil || b.Symbol != BenchmarkIndex {
			continue
		}
		d := civilDate(b.Date)
		sums[d] += b.Close
		counts[d]++
	}

	explorer := &StockExplorer{
		Symbol:      symbol,
		WindowStart: cutoff,
		Points:      []ExplorerPoint{},
		Derivatives: []*interfaces.DerivSnapshot{},
	}

	var lastIndex *float64
	for i, b := range bars {
		d := civilDate(b.Date)
		if n := counts[d]; n > 0 {
			lastIndex = floatPtr(sums[d] / float64(n))
		}
		if d.Before(cutoff) {
			continue
		}
		explorer.Points = append(explorer.Points, ExplorerPoint{
			Date:           d,
			Open:           b.Open,
			High:           b.High,
			Low:            b.Low,
			Close:          b.Close,
			Volume:         b.Volume,
			DelivPct:       b.DelivPct,
			DelivPctSmooth: smooth[i],
			IndexClose:     lastIndex,
		})
		if !prevExpiry.IsZero() && d.Equal(civilDate(prevExpiry)) && explorer.PrevExpiryClose == nil {
			explorer.PrevExpiryClose = floatPtr(b.Close)
		}
	}
	if !prevExpiry.IsZero() {
		explorer.PrevExpiry = timePtr(civilDate(prevExpiry))
	}

	// Rebase both series on the first session of the window
	if len(explorer.Points) > 0 {
		base := explorer.Points[0].Close
		indexBase := explorer.Points[0].IndexClose
		for i := range explorer.Points {
			p := &explorer.Points[i]
			if base != 0 {
				p.Rebased = p.Close / base * 100
			}
			if indexBase != nil && *indexBase != 0 && p.IndexClose != nil {
				p.IndexRebased = floatPtr(*p.IndexClose / *indexBase * 100)
			}
		}
	}

	explorer.Derivatives = append(explorer.Derivatives, snapshotsFor(snaps, symbol, cutoff)...)
	return explorer, nil
}
