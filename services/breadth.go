package services

import (
	"sort"
	"time"

	"fno-signals/interfaces"
)

// EMASpans are the moving averages breadth is measured against
var EMASpans = []int{20, 50, 100, 200}

const breadthMonths = 3

// BreadthDay is the market breadth of one session
type BreadthDay struct {
	Date        time.Time       `json:"date"`
	Advancers   int             `json:"advancers"`
	Decliners   int             `json:"decliners"`
	AdvDecRatio *float64        `json:"adv_dec_ratio"`
	PctAbove    map[int]float64 `json:"pct_above_ema"`
}

// CalculateEMA returns the bias-adjusted exponential moving average of closes at every bar.
// The weights are (1-a)^i with a = 2/(span+1), normalised over the observations seen so far,
// so early values are not dragged towards zero.
func CalculateEMA(bars []*interfaces.Bar, span int) []float64 {
	out := make([]float64, len(bars))
	if span < 1 {
		span = 1
	}
	decay := 1 - 2.0/float64(span+1)

	num, den := 0.0, 0.0
	for i, bar := range bars {
		num = bar.Close + decay*num
		den = 1 + decay*den
		out[i] = num / den
	}
	return out
}

// ComputeBreadth counts advancers and decliners and the share of symbols above each EMA for
// every session of the trailing three months. EMAs use each symbol's full history.
func ComputeBreadth(cash []*interfaces.Bar) []BreadthDay {
	bySymbol := groupBySymbol(cash)

	var maxDate time.Time
	for _, bars := range bySymbol {
		if last := civilDate(bars[len(bars)-1].Date); last.After(maxDate) {
			maxDate = last
		}
	}
	if maxDate.IsZero() {
		return []BreadthDay{}
	}
	cutoff := maxDate.AddDate(0, -breadthMonths, 0)

	type dayAgg struct {
		adv, dec, rows int
		above          map[int]int
	}
	days := make(map[time.Time]*dayAgg)

	for _, bars := range bySymbol {
		emas := make(map[int][]float64, len(EMASpans))
		for _, span := range EMASpans {
			emas[span] = CalculateEMA(bars, span)
		}

		var prevClose *float64
		for i, bar := range bars {
			d := civilDate(bar.Date)
			if d.Before(cutoff) {
				continue
			}

			agg, ok := days[d]
			if !ok {
				agg = &dayAgg{above: make(map[int]int)}
				days[d] = agg
			}
			agg.rows++

			if prevClose != nil {
				switch diff := bar.Close - *prevClose; {
				case diff > 0:
					agg.adv++
				case diff < 0:
					agg.dec++
				}
			}
			c := bar.Close
			prevClose = &c

			for _, span := range EMASpans {
				if bar.Close > emas[span][i] {
					agg.above[span]++
				}
			}
		}
	}

	dates := make([]time.Time, 0, len(days))
	for d := range days {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	out := make([]BreadthDay, 0, len(dates))
	for _, d := range dates {
		agg := days[d]
		day := BreadthDay{
			Date:      d,
			Advancers: agg.adv,
			Decliners: agg.dec,
			PctAbove:  make(map[int]float64, len(EMASpans)),
		}
		if agg.dec > 0 {
			day.AdvDecRatio = floatPtr(float64(agg.adv) / float64(agg.dec))
		}
		for _, span := range EMASpans {
			day.PctAbove[span] = float64(agg.above[span]) / float64(agg.rows) * 100
		}
		out = append(out, day)
	}

	return out
}

// groupBySymbol splits bars per symbol, each ordered by date
func groupBySymbol(bars []*interfaces.Bar) map[string][]*interfaces.Bar {
	out := make(map[string][]*interfaces.Bar)
	for _, b := range bars {
		if b != nil {
			out[b.Symbol] = append(out[b.Symbol], b)
		}
	}
	for _, group := range out {
		sort.SliceStable(group, func(i, j int) bool { return group[i].Date.Before(group[j].Date) })
	}
	return out
}
