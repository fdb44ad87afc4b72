package services

import (
	"fmt"
	"sort"
	"time"

	"fno-signals/interfaces"
)

// BenchmarkIndex is the index sector strength is measured against
const BenchmarkIndex = "NIFTY 50"

const sectorWindow = 400 * 24 * time.Hour

// SectorLookbacks are the session offsets of the relative return tables
var SectorLookbacks = []int{1, 3, 5, 20, 60, 250}

// ReturnRow is one line of a relative return table
type ReturnRow struct {
	Name    string              `json:"name"`
	Returns map[string]*float64 `json:"returns"`
}

type datedValue struct {
	date  time.Time
	value float64
}

// lookbackReturns reports the percent change of the last value against each lookback,
// rounded to 2 and nil when the series is too short
func lookbackReturns(series []datedValue) map[string]*float64 {
	out := make(map[string]*float64, len(SectorLookbacks))
	n := len(series)
	for _, lb := range SectorLookbacks {
		label := fmt.Sprintf("%d-day", lb)
		if n < lb+1 || series[n-1-lb].value == 0 {
			out[label] = nil
			continue
		}
		out[label] = floatPtr(round((series[n-1].value/series[n-1-lb].value-1)*100, 2))
	}
	return out
}

func closesByDate(bars []*interfaces.Bar, symbol string) map[time.Time]float64 {
	out := make(map[time.Time]float64)
	for _, b := range bars {
		if b != nil && b.Symbol == symbol {
			out[civilDate(b.Date)] = b.Close
		}
	}
	return out
}

// relativeSeries divides each close by the benchmark close of the same date, times 100.
// Dates without a benchmark close are dropped.
func relativeSeries(bars []*interfaces.Bar, benchmark map[time.Time]float64) []datedValue {
	var out []datedValue
	for _, b := range bars {
		d := civilDate(b.Date)
		bench, ok := benchmark[d]
		if !ok || bench == 0 {
			continue
		}
		out = append(out, datedValue{date: d, value: b.Close / bench * 100})
	}
	return out
}

// OfficialSectorReturns reports the relative strength of every index against NIFTY 50
// over the trailing 400 days
func OfficialSectorReturns(indexBars []*interfaces.Bar) []ReturnRow {
	var maxDate time.Time
	for _, b := range indexBars {
		if b != nil && b.Date.After(maxDate) {
			maxDate = b.Date
		}
	}
	cutoff := maxDate.Add(-sectorWindow)

	var window []*interfaces.Bar
	for _, b := range indexBars {
		if b != nil && !b.Date.Before(cutoff) {
			window = append(window, b)
		}
	}

	benchmark := closesByDate(window, BenchmarkIndex)
	groups := groupBySymbol(window)

	names := make([]string, 0, len(groups))
	for name := range groups {
		if name != BenchmarkIndex {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	rows := make([]ReturnRow, 0, len(names))
	for _, name := range names {
		rows = append(rows, ReturnRow{
			Name:    name,
			Returns: lookbackReturns(relativeSeries(groups[name], benchmark)),
		})
	}
	return rows
}

// EqualWeightSectorReturns builds an equal-weight index per sector from its constituents'
// daily returns over the trailing 400 days and reports its strength against NIFTY 50
func EqualWeightSectorReturns(cash []*interfaces.Bar, constituents []*interfaces.Constituent, indexBars []*interfaces.Bar) []ReturnRow {
	sectorOf := make(map[string]string, len(constituents))
	for _, c := range constituents {
		sectorOf[c.Symbol] = c.Sector
	}

	var maxDate time.Time
	for _, b := range cash {
		if b != nil && b.Date.After(maxDate) {
			maxDate = b.Date
		}
	}
	cutoff := maxDate.Add(-sectorWindow)

	var window []*interfaces.Bar
	for _, b := range cash {
		if b != nil && !b.Date.Before(cutoff) {
			if _, ok := sectorOf[b.Symbol]; ok {
				window = append(window, b)
			}
		}
	}

	// mean daily return per sector and date
	sums := make(map[string]map[time.Time]float64)
	counts := make(map[string]map[time.Time]int)
	for symbol, bars := range groupBySymbol(window) {
		sector := sectorOf[symbol]
		if sums[sector] == nil {
			sums[sector] = make(map[time.Time]float64)
			counts[sector] = make(map[time.Time]int)
		}
		for i := 1; i < len(bars); i++ {
			if bars[i-1].Close == 0 {
				continue
			}
			d := civilDate(bars[i].Date)
			sums[sector][d] += bars[i].Close/bars[i-1].Close - 1
			counts[sector][d]++
		}
	}

	benchmark := compoundedIndex(dailyReturns(groupBySymbol(indexBars)[BenchmarkIndex]))
	benchAt := make(map[time.Time]float64, len(benchmark))
	for _, p := range benchmark {
		benchAt[p.date] = p.value
	}

	sectors := make([]string, 0, len(sums))
	for sector := range sums {
		sectors = append(sectors, sector)
	}
	sort.Strings(sectors)

	rows := make([]ReturnRow, 0, len(sectors))
	for _, sector := range sectors {
		var rets []datedValue
		for d, sum := range sums[sector] {
			rets = append(rets, datedValue{date: d, value: sum / float64(counts[sector][d])})
		}
		sort.Slice(rets, func(i, j int) bool { return rets[i].date.Before(rets[j].date) })

		var rel []datedValue
		for _, p := range compoundedIndex(rets) {
			if bench, ok := benchAt[p.date]; ok && bench != 0 {
				rel = append(rel, datedValue{date: p.date, value: p.value / bench * 100})
			}
		}
		rows = append(rows, ReturnRow{Name: sector, Returns: lookbackReturns(rel)})
	}
	return rows
}

func dailyReturns(bars []*interfaces.Bar) []datedValue {
	var out []datedValue
	for i := 1; i < len(bars); i++ {
		if bars[i-1].Close == 0 {
			continue
		}
		out = append(out, datedValue{date: civilDate(bars[i].Date), value: bars[i].Close/bars[i-1].Close - 1})
	}
	return out
}

// compoundedIndex compounds daily returns into an index starting at 100
func compoundedIndex(rets []datedValue) []datedValue {
	out := make([]datedValue, len(rets))
	level := 100.0
	for i, r := range rets {
		level *= 1 + r.value
		out[i] = datedValue{date: r.date, value: level}
	}
	return out
}

// ConstituentReturns reports the strength of each constituent of sector against NIFTY 50.
// A sector with no known constituents yields ErrDataUnavailable.
func ConstituentReturns(sector string, cash []*interfaces.Bar, indexBars []*interfaces.Bar, constituents []*interfaces.Constituent) ([]ReturnRow, error) {
	members := make(map[string]bool)
	for _, c := range constituents {
		if c.Sector == sector {
			members[c.Symbol] = true
		}
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("no constituents mapped to sector %q: %w", sector, ErrDataUnavailable)
	}

	var selected []*interfaces.Bar
	for _, b := range cash {
		if b != nil && members[b.Symbol] {
			selected = append(selected, b)
		}
	}

	benchmark := closesByDate(indexBars, BenchmarkIndex)
	groups := groupBySymbol(selected)

	symbols := make([]string, 0, len(groups))
	for symbol := range groups {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	rows := make([]ReturnRow, 0, len(symbols))
	for _, symbol := range symbols {
		rows = append(rows, ReturnRow{
			Name:    symbol,
			Returns: lookbackReturns(relativeSeries(groups[symbol], benchmark)),
		})
	}
	return rows, nil
}
