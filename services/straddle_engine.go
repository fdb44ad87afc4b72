package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"fno-signals/interfaces"

	"github.com/sirupsen/logrus"
)

// Expiry tags of a straddle quote
const (
	ExpiryTagWeekly  = "weekly"
	ExpiryTagMonthly = "monthly"
	ExpiryTagStock   = "stock-front"
)

const (
	atmBand        = 0.02
	ivScale        = 0.8
	secondsPerYear = 365 * 24 * 3600
	straddleWindow = 10 * 24 * time.Hour
	weeklyIndex    = "NIFTY"
	straddleRowSep = " – "
)

// Lookbacks are the session offsets reported in a DeltaSet
var Lookbacks = []int{1, 2, 3, 5}

// StraddleQuote is a live ATM straddle for one underlying and expiry
type StraddleQuote struct {
	Underlying    string    `json:"underlying"`
	ExpiryTag     string    `json:"expiry_tag"`
	Expiry        time.Time `json:"expiry"`
	Strike        float64   `json:"strike"`
	FuturesPrice  float64   `json:"futures_price"`
	CallPrice     float64   `json:"call_price"`
	PutPrice      float64   `json:"put_price"`
	StraddlePrice float64   `json:"straddle_price"`
	IVPct         float64   `json:"iv_pct"`
	AsOf          time.Time `json:"as_of"`
}

// DeltaSet maps a lookback in sessions to its change, nil when history is too short
type DeltaSet map[int]*float64

// StraddleRow is one line of a straddle table
type StraddleRow struct {
	Name        string   `json:"name"`
	Symbol      string   `json:"symbol"`
	ExpiryTag   string   `json:"expiry_tag"`
	Straddle    *float64 `json:"straddle"`
	IV          *float64 `json:"iv"`
	PriceDeltas DeltaSet `json:"price_deltas"`
	IVDeltas    DeltaSet `json:"iv_deltas"`
	Live        bool     `json:"live"`
}

// StraddleTable holds the index and stock straddle tables
type StraddleTable struct {
	Index    []StraddleRow `json:"index"`
	Stocks   []StraddleRow `json:"stocks"`
	Warnings []Warning     `json:"warnings,omitempty"`
}

// RowName returns the straddle table row name for a symbol and tag
func RowName(symbol, tag string) string {
	switch tag {
	case ExpiryTagWeekly:
		return symbol + straddleRowSep + "WEEKLY"
	case ExpiryTagMonthly:
		if symbol == weeklyIndex {
			return symbol + straddleRowSep + "MONTHLY"
		}
	}
	return symbol
}

// ParseRowName splits a row name such as "NIFTY – WEEKLY" into symbol and weekly flag
func ParseRowName(name string) (string, bool) {
	symbol := strings.TrimSpace(strings.Split(name, straddleRowSep)[0])
	return symbol, strings.HasSuffix(name, "WEEKLY")
}

// SelectATMStrike picks the strike closest to the futures price within +/-2%.
// Equidistant strikes resolve to the higher one; no strike in band yields false.
func SelectATMStrike(strikes []float64, futures float64) (float64, bool) {
	if futures <= 0 {
		return 0, false
	}
	lo, hi := (1-atmBand)*futures, (1+atmBand)*futures

	best, bestDist, found := 0.0, math.Inf(1), false
	for _, k := range strikes {
		if k < lo || k > hi {
			continue
		}
		d := math.Abs(k - futures)
		if !found || d < bestDist || (d == bestDist && k > best) {
			best, bestDist, found = k, d, true
		}
	}
	return best, found
}

// TimeToExpiryYears measures now to 15:30 market time on the expiry date, in 365-day years
func TimeToExpiryYears(now, expiry time.Time, loc *time.Location) float64 {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := expiry.Date()
	closeAt := time.Date(y, m, d, 15, 30, 0, 0, loc)
	return closeAt.Sub(now).Seconds() / secondsPerYear
}

// ApproxIV is a Brenner-Subrahmanyam style volatility estimate from an ATM straddle,
// 100*S/(F*0.8*sqrt(T)) rounded to 2 decimals. It is not a Black-Scholes inversion.
func ApproxIV(straddle, futures, tteYears float64) (float64, bool) {
	if tteYears <= 0 || futures <= 0 || straddle < 0 {
		return 0, false
	}
	return round(100*straddle/(futures*ivScale*math.Sqrt(tteYears)), 2), true
}

// ComputeDeltas reports the change of the last observation against each lookback.
// pct selects percent change, otherwise the absolute difference is used.
func ComputeDeltas(series []float64, pct bool) DeltaSet {
	deltas := make(DeltaSet, len(Lookbacks))
	n := len(series)
	for _, lb := range Lookbacks {
		if n <= lb {
			deltas[lb] = nil
			continue
		}
		latest, base := series[n-1], series[n-1-lb]
		if !pct {
			deltas[lb] = floatPtr(latest - base)
			continue
		}
		if base == 0 {
			deltas[lb] = nil
			continue
		}
		deltas[lb] = floatPtr((latest/base - 1) * 100)
	}
	return deltas
}

type straddleColumns struct {
	price  func(*interfaces.DerivSnapshot) *float64
	iv     func(*interfaces.DerivSnapshot) *float64
	expiry func(*interfaces.DerivSnapshot) *time.Time
}

func columnsFor(tag string) straddleColumns {
	switch tag {
	case ExpiryTagWeekly:
		return straddleColumns{
			price:  func(s *interfaces.DerivSnapshot) *float64 { return s.FrontWeeklyStraddlePrice },
			iv:     func(s *interfaces.DerivSnapshot) *float64 { return s.FrontWeeklyStraddleIV },
			expiry: func(s *interfaces.DerivSnapshot) *time.Time { return s.FrontWeeklyExpiry },
		}
	case ExpiryTagMonthly:
		return straddleColumns{
			price:  func(s *interfaces.DerivSnapshot) *float64 { return s.FrontMonthlyStraddlePrice },
			iv:     func(s *interfaces.DerivSnapshot) *float64 { return s.FrontMonthlyStraddleIV },
			expiry: func(s *interfaces.DerivSnapshot) *time.Time { return s.FrontMonthlyExpiry },
		}
	}
	return straddleColumns{
		price:  func(s *interfaces.DerivSnapshot) *float64 { return s.FrontStraddlePrice },
		iv:     func(s *interfaces.DerivSnapshot) *float64 { return s.FrontStraddleIV },
		expiry: func(s *interfaces.DerivSnapshot) *time.Time { return &s.FrontExpiry },
	}
}

// StraddleTables builds index and stock straddle tables over the last 10 calendar days.
// NIFTY gets a weekly and a monthly row, other indices a monthly row, stocks the front straddle.
// A live quote keyed by row name is appended as the next observation before deltas.
func StraddleTables(stockSnaps, indexSnaps []*interfaces.DerivSnapshot, live map[string]*StraddleQuote) StraddleTable {
	var maxDate time.Time
	for _, group := range [][]*interfaces.DerivSnapshot{stockSnaps, indexSnaps} {
		for _, s := range group {
			if s != nil && s.Date.After(maxDate) {
				maxDate = s.Date
			}
		}
	}
	cutoff := maxDate.Add(-straddleWindow)

	table := StraddleTable{Index: []StraddleRow{}, Stocks: []StraddleRow{}}

	for _, symbol := range sortedSymbols(indexSnaps) {
		sub := snapshotsFor(indexSnaps, symbol, cutoff)
		if strings.EqualFold(symbol, weeklyIndex) {
			table.Index = append(table.Index, straddleRow(symbol, ExpiryTagWeekly, sub, live))
		}
		table.Index = append(table.Index, straddleRow(symbol, ExpiryTagMonthly, sub, live))
	}

	for _, symbol := range sortedSymbols(stockSnaps) {
		sub := snapshotsFor(stockSnaps, symbol, cutoff)
		table.Stocks = append(table.Stocks, straddleRow(symbol, ExpiryTagStock, sub, live))
	}

	return table
}

func straddleRow(symbol, tag string, sub []*interfaces.DerivSnapshot, live map[string]*StraddleQuote) StraddleRow {
	cols := columnsFor(tag)
	name := RowName(symbol, tag)

	var prices, ivs []float64
	var lastDate time.Time
	for _, s := range sub {
		if p := cols.price(s); p != nil {
			prices = append(prices, *p)
		}
		if v := cols.iv(s); v != nil {
			ivs = append(ivs, *v)
		}
		lastDate = civilDate(s.Date)
	}

	row := StraddleRow{Name: name, Symbol: symbol, ExpiryTag: tag}
	if q, ok := live[name]; ok && q != nil && civilDate(q.AsOf).After(lastDate) {
		prices = append(prices, q.StraddlePrice)
		ivs = append(ivs, q.IVPct)
		row.Live = true
	}

	if len(prices) > 0 {
		row.Straddle = floatPtr(prices[len(prices)-1])
	}
	if len(ivs) > 0 {
		row.IV = floatPtr(ivs[len(ivs)-1])
	}
	row.PriceDeltas = ComputeDeltas(prices, true)
	row.IVDeltas = ComputeDeltas(ivs, false)
	return row
}

func sortedSymbols(snaps []*interfaces.DerivSnapshot) []string {
	seen := make(map[string]bool)
	var symbols []string
	for _, s := range snaps {
		if s != nil && !seen[s.Symbol] {
			seen[s.Symbol] = true
			symbols = append(symbols, s.Symbol)
		}
	}
	sort.Strings(symbols)
	return symbols
}

// snapshotsFor returns a symbol's snapshots on or after cutoff, ordered by date
func snapshotsFor(snaps []*interfaces.DerivSnapshot, symbol string, cutoff time.Time) []*interfaces.DerivSnapshot {
	var sub []*interfaces.DerivSnapshot
	for _, s := range snaps {
		if s != nil && s.Symbol == symbol && !s.Date.Before(cutoff) {
			sub = append(sub, s)
		}
	}
	sort.SliceStable(sub, func(i, j int) bool { return sub[i].Date.Before(sub[j].Date) })
	return sub
}

// SeriesPoint is one dated straddle observation
type SeriesPoint struct {
	Date  time.Time `json:"date"`
	Price *float64  `json:"price"`
	IV    *float64  `json:"iv"`
}

// PricePoint is one dated underlying close
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// StraddleSeriesResult is the current expiry history of one straddle row
type StraddleSeriesResult struct {
	Name       string        `json:"name"`
	Symbol     string        `json:"symbol"`
	ExpiryTag  string        `json:"expiry_tag"`
	Expiry     *time.Time    `json:"expiry,omitempty"`
	Points     []SeriesPoint `json:"points"`
	Underlying []PricePoint  `json:"underlying"`
}

// StraddleSeries returns the current-expiry straddle series of a row name such as
// "NIFTY – WEEKLY" or "RELIANCE", with the underlying close over the same dates.
func StraddleSeries(name string, stockSnaps, indexSnaps []*interfaces.DerivSnapshot, cash, index []*interfaces.Bar) (*StraddleSeriesResult, error) {
	symbol, weekly := ParseRowName(name)

	tag := ExpiryTagStock
	source := stockSnaps
	if containsSymbol(indexSnaps, symbol) {
		source = indexSnaps
		tag = ExpiryTagMonthly
		if weekly {
			tag = ExpiryTagWeekly
		}
	}

	sub := snapshotsFor(source, symbol, time.Time{})
	if len(sub) == 0 {
		return nil, fmt.Errorf("no straddle history for %s: %w", name, ErrDataUnavailable)
	}

	cols := columnsFor(tag)
	var current *time.Time
	for _, s := range sub {
		if e := cols.expiry(s); e != nil && (current == nil || e.After(*current)) {
			exp := *e
			current = &exp
		}
	}

	result := &StraddleSeriesResult{
		Name:       RowName(symbol, tag),
		Symbol:     symbol,
		ExpiryTag:  tag,
		Expiry:     current,
		Points:     []SeriesPoint{},
		Underlying: []PricePoint{},
	}
	if current == nil {
		return result, nil
	}

	for _, s := range sub {
		if e := cols.expiry(s); e != nil && civilDate(*e).Equal(civilDate(*current)) {
			result.Points = append(result.Points, SeriesPoint{Date: s.Date, Price: cols.price(s), IV: cols.iv(s)})
		}
	}
	if len(result.Points) == 0 {
		return result, nil
	}

	start := civilDate(result.Points[0].Date)
	end := civilDate(result.Points[len(result.Points)-1].Date)
	spotSymbol := IndexSpotName(symbol)
	bars := cash
	if spotSymbol != symbol || containsBarSymbol(index, spotSymbol) {
		bars = index
	}
	for _, b := range bars {
		if b == nil || b.Symbol != spotSymbol {
			continue
		}
		d := civilDate(b.Date)
		if d.Before(start) || d.After(end) {
			continue
		}
		result.Underlying = append(result.Underlying, PricePoint{Date: b.Date, Close: b.Close})
	}
	sort.Slice(result.Underlying, func(i, j int) bool { return result.Underlying[i].Date.Before(result.Underlying[j].Date) })

	return result, nil
}

func containsSymbol(snaps []*interfaces.DerivSnapshot, symbol string) bool {
	for _, s := range snaps {
		if s != nil && s.Symbol == symbol {
			return true
		}
	}
	return false
}

func containsBarSymbol(bars []*interfaces.Bar, symbol string) bool {
	for _, b := range bars {
		if b != nil && b.Symbol == symbol {
			return true
		}
	}
	return false
}

// StraddleEngine prices live ATM straddles from broker quotes
type StraddleEngine struct {
	quotes  interfaces.QuotePort
	timeout time.Duration
	loc     *time.Location
	now     func() time.Time
	logger  *logrus.Logger
}

// NewStraddleEngine creates a straddle engine over a quote port
func NewStraddleEngine(quotes interfaces.QuotePort, timeout time.Duration, loc *time.Location) *StraddleEngine {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if loc == nil {
		loc = time.UTC
	}

	return &StraddleEngine{
		quotes:  quotes,
		timeout: timeout,
		loc:     loc,
		now:     time.Now,
		logger:  logger,
	}
}

// SetLogger replaces the engine logger
func (e *StraddleEngine) SetLogger(l *logrus.Logger) {
	e.logger = l
}

// SetClock overrides the wall clock
func (e *StraddleEngine) SetClock(now func() time.Time) {
	e.now = now
}

// LiveATMStraddle prices the ATM straddle of an underlying at its front futures expiry,
// or at the nearest weekly option expiry before it when tag is weekly.
// Weekly straddles select the strike against the index spot and compute IV against the
// synthetic forward CE-PE+K.
func (e *StraddleEngine) LiveATMStraddle(ctx context.Context, underlying, tag string) (*StraddleQuote, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	master, err := e.quotes.GetInstruments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get instrument master: %v: %w", err, ErrExternalService)
	}

	now := e.now().In(e.loc)
	buckets := ExpiriesFor(underlying, master, now)
	if buckets.Empty() || len(buckets.Front) == 0 {
		return nil, fmt.Errorf("no live futures for %s: %w", underlying, ErrDataUnavailable)
	}

	// Quote the front future
	frontExpiry := buckets.Expiries[0]
	var futToken string
	for _, c := range master {
		if c.Tradingsymbol == buckets.Front[0] && c.IsFuture() {
			futToken = strconv.FormatInt(c.InstrumentToken, 10)
			break
		}
	}
	if futToken == "" {
		return nil, fmt.Errorf("no instrument token for %s: %w", buckets.Front[0], ErrDataUnavailable)
	}

	futQuotes, err := e.quotes.GetQuotes(ctx, []string{futToken})
	if err != nil {
		return nil, fmt.Errorf("failed to quote %s: %v: %w", buckets.Front[0], err, ErrExternalService)
	}
	fq, ok := futQuotes[futToken]
	if !ok {
		return nil, fmt.Errorf("no quote for %s: %w", buckets.Front[0], ErrInvalidQuote)
	}
	if !ValidTick(fq.PrevClose, fq.LastPrice) {
		return nil, fmt.Errorf("futures price %.2f too far from previous close %.2f: %w", fq.LastPrice, fq.PrevClose, ErrInvalidQuote)
	}

	// Weekly straddles key off spot instead
	refPrice := fq.LastPrice
	expiry := frontExpiry
	if tag == ExpiryTagWeekly {
		spotTag := interfaces.ExchangeTag(interfaces.ExchangeNSE, IndexSpotName(underlying))
		spot, err := e.quotes.GetQuotes(ctx, []string{spotTag})
		if err != nil {
			return nil, fmt.Errorf("failed to quote %s: %v: %w", spotTag, err, ErrExternalService)
		}
		sq, ok := spot[spotTag]
		if !ok || sq.LastPrice <= 0 {
			return nil, fmt.Errorf("no spot quote for %s: %w", spotTag, ErrInvalidQuote)
		}
		refPrice = sq.LastPrice

		weekly, ok := nearestWeeklyExpiry(master, underlying, civilDate(now), frontExpiry)
		if !ok {
			return nil, fmt.Errorf("no weekly expiry before %s for %s: %w", frontExpiry.Format("2006-01-02"), underlying, ErrDataUnavailable)
		}
		expiry = weekly
	}

	// Option chain of the chosen expiry
	var chain []*interfaces.Contract
	var strikes []float64
	for _, c := range master {
		if c.IsOption() && c.Name == underlying && civilDate(c.Expiry).Equal(expiry) {
			chain = append(chain, c)
			strikes = append(strikes, c.Strike)
		}
	}

	strike, ok := SelectATMStrike(strikes, refPrice)
	if !ok {
		return nil, fmt.Errorf("no strike within 2%% of %.2f for %s: %w", refPrice, underlying, ErrInvalidQuote)
	}

	// Exactly one call and one put at the strike
	var calls, puts []*interfaces.Contract
	for _, c := range chain {
		if c.Strike != strike {
			continue
		}
		switch c.InstrumentType {
		case interfaces.InstrumentCall:
			calls = append(calls, c)
		case interfaces.InstrumentPut:
			puts = append(puts, c)
		}
	}
	if len(calls) != 1 || len(puts) != 1 {
		return nil, fmt.Errorf("strike %.2f of %s resolved %d calls and %d puts: %w", strike, underlying, len(calls), len(puts), ErrInvalidQuote)
	}

	ceToken := strconv.FormatInt(calls[0].InstrumentToken, 10)
	peToken := strconv.FormatInt(puts[0].InstrumentToken, 10)
	legs, err := e.quotes.GetQuotes(ctx, []string{ceToken, peToken})
	if err != nil {
		return nil, fmt.Errorf("failed to quote option legs of %s: %v: %w", underlying, err, ErrExternalService)
	}
	ce, okCE := legs[ceToken]
	pe, okPE := legs[peToken]
	if !okCE || !okPE {
		return nil, fmt.Errorf("missing option leg quote for %s: %w", underlying, ErrInvalidQuote)
	}

	straddle := ce.LastPrice + pe.LastPrice
	ivFutures := fq.LastPrice
	if tag == ExpiryTagWeekly {
		ivFutures = ce.LastPrice - pe.LastPrice + strike
	}

	iv, ok := ApproxIV(straddle, ivFutures, TimeToExpiryYears(now, expiry, e.loc))
	if !ok {
		return nil, fmt.Errorf("implied volatility undefined for %s: %w", underlying, ErrInvalidQuote)
	}

	return &StraddleQuote{
		Underlying:    underlying,
		ExpiryTag:     tag,
		Expiry:        expiry,
		Strike:        strike,
		FuturesPrice:  ivFutures,
		CallPrice:     ce.LastPrice,
		PutPrice:      pe.LastPrice,
		StraddlePrice: straddle,
		IVPct:         iv,
		AsOf:          now,
	}, nil
}

// nearestWeeklyExpiry returns the earliest option expiry on or after today and before the monthly one
func nearestWeeklyExpiry(master []*interfaces.Contract, underlying string, today, monthly time.Time) (time.Time, bool) {
	var best time.Time
	found := false
	for _, c := range master {
		if !c.IsOption() || c.Name != underlying {
			continue
		}
		exp := civilDate(c.Expiry)
		if exp.Before(today) || !exp.Before(monthly) {
			continue
		}
		if !found || exp.Before(best) {
			best, found = exp, true
		}
	}
	return best, found
}
