package services

import (
	"regexp"
	"sort"
	"time"

	"fno-signals/interfaces"
)

// Futures underlyings whose spot is published under a different index name
var indexAliases = map[string]string{
	"NIFTY":     "NIFTY 50",
	"BANKNIFTY": "NIFTY BANK",
	"FINNIFTY":  "NIFTY FIN SERVICE",
}

// IndexSpotName maps a futures underlying to the name its spot series is stored under
func IndexSpotName(underlying string) string {
	if name, ok := indexAliases[underlying]; ok {
		return name
	}
	return underlying
}

// basisOf returns futures minus spot in points and percent of spot, both rounded to 2.
// Percent is nil when the spot is zero.
func basisOf(fut, spot float64) (*float64, *float64) {
	pts := round(fut-spot, 2)
	if spot == 0 {
		return &pts, nil
	}
	pct := round((fut-spot)/spot*100, 2)
	return &pts, &pct
}

// BasisRow is the live basis of one underlying against its three futures cycles
type BasisRow struct {
	Symbol   string   `json:"symbol"`
	Spot     *float64 `json:"spot"`
	FrontPx  *float64 `json:"front_px"`
	BackPx   *float64 `json:"back_px"`
	FarPx    *float64 `json:"far_px"`
	FrontPts *float64 `json:"front_pts"`
	FrontPct *float64 `json:"front_pct"`
	BackPts  *float64 `json:"back_pts"`
	BackPct  *float64 `json:"back_pct"`
	FarPts   *float64 `json:"far_pts"`
	FarPct   *float64 `json:"far_pct"`
}

// CurrentBasis joins the latest spot of every symbol with the latest intraday close of its
// front, back and far futures. Only underlyings with a front futures price are reported.
func CurrentBasis(spot []*interfaces.Bar, futBars []*interfaces.IntradayBar, reference []*interfaces.Contract, today time.Time) []BasisRow {
	latestSpot := make(map[string]*interfaces.Bar)
	for _, b := range spot {
		if b == nil {
			continue
		}
		if cur, ok := latestSpot[b.Symbol]; !ok || !b.Date.Before(cur.Date) {
			latestSpot[b.Symbol] = b
		}
	}

	seen := make(map[string]bool)
	var symbols []string
	for _, b := range futBars {
		if b != nil && !seen[b.Symbol] {
			seen[b.Symbol] = true
			symbols = append(symbols, b.Symbol)
		}
	}
	buckets := ClassifyFutures(symbols, reference, today)

	prices := make([]map[string]float64, maxBuckets)
	for i := 0; i < maxBuckets; i++ {
		prices[i] = latestFuturesClose(futBars, buckets.Bucket(i))
	}

	bases := make([]string, 0, len(prices[0]))
	for base := range prices[0] {
		bases = append(bases, base)
	}
	sort.Strings(bases)

	rows := make([]BasisRow, 0, len(bases))
	for _, base := range bases {
		row := BasisRow{Symbol: base}
		var spotPx *float64
		if b, ok := latestSpot[IndexSpotName(base)]; ok {
			spotPx = floatPtr(b.Close)
		}
		row.Spot = spotPx

		for i := 0; i < maxBuckets; i++ {
			px, ok := prices[i][base]
			if !ok {
				continue
			}
			var pts, pct *float64
			if spotPx != nil {
				pts, pct = basisOf(px, *spotPx)
			}
			switch i {
			case 0:
				row.FrontPx, row.FrontPts, row.FrontPct = floatPtr(px), pts, pct
			case 1:
				row.BackPx, row.BackPts, row.BackPct = floatPtr(px), pts, pct
			case 2:
				row.FarPx, row.FarPts, row.FarPct = floatPtr(px), pts, pct
			}
		}
		rows = append(rows, row)
	}

	return rows
}

// latestFuturesClose returns the latest minute close of each contract keyed by underlying
func latestFuturesClose(bars []*interfaces.IntradayBar, contracts []string) map[string]float64 {
	out := make(map[string]float64)
	if len(contracts) == 0 {
		return out
	}
	wanted := make(map[string]bool, len(contracts))
	for _, c := range contracts {
		wanted[c] = true
	}

	latest := make(map[string]*interfaces.IntradayBar)
	for _, b := range bars {
		if b == nil || !wanted[b.Symbol] {
			continue
		}
		if cur, ok := latest[b.Symbol]; !ok || !b.Datetime.Before(cur.Datetime) {
			latest[b.Symbol] = b
		}
	}
	for symbol, b := range latest {
		out[UnderlyingOf(symbol)] = b.Close
	}
	return out
}

// DailyBasisRow is one day of spot OHLC with the forward-filled futures closes
type DailyBasisRow struct {
	Date     time.Time `json:"date"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	FrontFut *float64  `json:"front_fut_close"`
	BackFut  *float64  `json:"back_fut_close"`
	FarFut   *float64  `json:"far_fut_close"`
	FrontPct *float64  `json:"front_pct"`
	BackPct  *float64  `json:"back_pct"`
	FarPct   *float64  `json:"far_pct"`
}

// DailyBasis returns the spot series of symbol over the trailing months left-joined
// with its daily futures closes. Missing futures closes carry the previous value forward.
func DailyBasis(symbol string, spot []*interfaces.Bar, snaps []*interfaces.DerivSnapshot, monthsBack int) []DailyBasisRow {
	if monthsBack <= 0 {
		monthsBack = 3
	}

	var end time.Time
	for _, b := range spot {
		if b != nil && b.Date.After(end) {
			end = b.Date
		}
	}
	start := end.AddDate(0, -monthsBack, 0)

	futByDate := make(map[time.Time]*interfaces.DerivSnapshot)
	for _, s := range snaps {
		if s != nil && s.Symbol == symbol {
			futByDate[civilDate(s.Date)] = s
		}
	}

	spotSymbol := IndexSpotName(symbol)
	var window []*interfaces.Bar
	for _, b := range spot {
		if b == nil || b.Symbol != spotSymbol || b.Date.Before(start) || b.Date.After(end) {
			continue
		}
		window = append(window, b)
	}
	sort.SliceStable(window, func(i, j int) bool { return window[i].Date.Before(window[j].Date) })

	rows := make([]DailyBasisRow, 0, len(window))
	var front, back, far *float64
	for _, b := range window {
		if s, ok := futByDate[civilDate(b.Date)]; ok {
			if s.FrontFutClose != nil {
				front = s.FrontFutClose
			}
			if s.BackFutClose != nil {
				back = s.BackFutClose
			}
			if s.FarFutClose != nil {
				far = s.FarFutClose
			}
		}

		row := DailyBasisRow{
			Date:     b.Date,
			Open:     b.Open,
			High:     b.High,
			Low:      b.Low,
			Close:    b.Close,
			FrontFut: front,
			BackFut:  back,
			FarFut:   far,
		}
		row.FrontPct = basisPct(front, b.Close)
		row.BackPct = basisPct(back, b.Close)
		row.FarPct = basisPct(far, b.Close)
		rows = append(rows, row)
	}

	return rows
}

func basisPct(fut *float64, spot float64) *float64 {
	if fut == nil || spot == 0 {
		return nil
	}
	return floatPtr((*fut - spot) / spot * 100)
}

// TimedPoint is one minute close
type TimedPoint struct {
	Datetime time.Time `json:"datetime"`
	Close    float64   `json:"close"`
}

// TimedBasis is one minute of front futures basis
type TimedBasis struct {
	Datetime time.Time `json:"datetime"`
	Pts      *float64  `json:"pts"`
	Pct      *float64  `json:"pct"`
}

// IntradayBasisResult carries today's spot and futures series of one underlying
type IntradayBasisResult struct {
	Symbol     string                  `json:"symbol"`
	Spot       []TimedPoint            `json:"spot"`
	Futures    map[string][]TimedPoint `json:"futures"`
	Contracts  []string                `json:"contracts"`
	FrontBasis []TimedBasis            `json:"front_basis"`
}

var monthCodes = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March, "APR": time.April,
	"MAY": time.May, "JUN": time.June, "JUL": time.July, "AUG": time.August,
	"SEP": time.September, "OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// contractMonth orders monthly futures by the year and month encoded in the tradingsymbol
func contractMonth(tradingsymbol string) int {
	m := futuresSuffix.FindString(tradingsymbol)
	if len(m) < 5 {
		return 0
	}
	year := int(m[0]-'0')*10 + int(m[1]-'0')
	return year*100 + int(monthCodes[m[2:5]])
}

// IntradayBasis returns the minute series of the spot and each futures contract of symbol,
// plus the basis of the nearest contract wherever both series have a bar.
func IntradayBasis(symbol string, futBars, spotBars []*interfaces.IntradayBar) IntradayBasisResult {
	pattern := regexp.MustCompile("^" + regexp.QuoteMeta(symbol) + `\d{2}[A-Z]{3}FUT$`)

	result := IntradayBasisResult{
		Symbol:     symbol,
		Spot:       []TimedPoint{},
		Futures:    make(map[string][]TimedPoint),
		Contracts:  []string{},
		FrontBasis: []TimedBasis{},
	}

	for _, b := range futBars {
		if b == nil || !pattern.MatchString(b.Symbol) {
			continue
		}
		if _, ok := result.Futures[b.Symbol]; !ok {
			result.Contracts = append(result.Contracts, b.Symbol)
		}
		result.Futures[b.Symbol] = append(result.Futures[b.Symbol], TimedPoint{Datetime: b.Datetime, Close: b.Close})
	}
	sort.Slice(result.Contracts, func(i, j int) bool {
		mi, mj := contractMonth(result.Contracts[i]), contractMonth(result.Contracts[j])
		if mi != mj {
			return mi < mj
		}
		return result.Contracts[i] < result.Contracts[j]
	})
	for c := range result.Futures {
		sortTimed(result.Futures[c])
	}

	spotSymbol := IndexSpotName(symbol)
	for _, b := range spotBars {
		if b != nil && (b.Symbol == spotSymbol || b.Symbol == symbol) {
			result.Spot = append(result.Spot, TimedPoint{Datetime: b.Datetime, Close: b.Close})
		}
	}
	sortTimed(result.Spot)

	if len(result.Contracts) == 0 {
		return result
	}
	spotAt := make(map[int64]float64, len(result.Spot))
	for _, p := range result.Spot {
		spotAt[p.Datetime.Unix()] = p.Close
	}
	for _, p := range result.Futures[result.Contracts[0]] {
		s, ok := spotAt[p.Datetime.Unix()]
		if !ok {
			continue
		}
		pts, pct := basisOf(p.Close, s)
		result.FrontBasis = append(result.FrontBasis, TimedBasis{Datetime: p.Datetime, Pts: pts, Pct: pct})
	}

	return result
}

func sortTimed(points []TimedPoint) {
	sort.SliceStable(points, func(i, j int) bool { return points[i].Datetime.Before(points[j].Datetime) })
}
