package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"fno-signals/interfaces"

	"github.com/sirupsen/logrus"
)

// maxTickDeviation is the largest accepted move of a live tick away from the prior close
const maxTickDeviation = 0.30

// ValidTick reports whether a live price is within the accepted band around the prior close.
// The deviation is measured against the larger of the two prices, so the band is
// [0.7, 1/0.7] times the prior close. A missing prior close accepts any positive price.
func ValidTick(prevClose, live float64) bool {
	if live <= 0 || math.IsNaN(live) || math.IsInf(live, 0) {
		return false
	}
	if prevClose <= 0 {
		return true
	}
	return math.Abs(live-prevClose)/math.Max(live, prevClose) <= maxTickDeviation
}

type barKey struct {
	symbol string
	date   time.Time
}

// MergeLive overlays live bars onto a historical daily series.
// A finalized historical (symbol, date) row always wins; among live variants of one key
// the most recently timestamped one is kept. The result is sorted by symbol then date.
func MergeLive(hist, live []*interfaces.Bar) []*interfaces.Bar {
	merged := make([]*interfaces.Bar, 0, len(hist)+len(live))
	finalized := make(map[barKey]bool, len(hist))
	for _, b := range hist {
		if b == nil {
			continue
		}
		finalized[barKey{b.Symbol, civilDate(b.Date)}] = true
		merged = append(merged, b)
	}

	freshest := make(map[barKey]*interfaces.Bar)
	for _, b := range live {
		if b == nil {
			continue
		}
		key := barKey{b.Symbol, civilDate(b.Date)}
		if finalized[key] {
			continue
		}
		if cur, ok := freshest[key]; !ok || newerThan(b, cur) {
			freshest[key] = b
		}
	}
	for _, b := range freshest {
		merged = append(merged, b)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Symbol != merged[j].Symbol {
			return merged[i].Symbol < merged[j].Symbol
		}
		return merged[i].Date.Before(merged[j].Date)
	})
	return merged
}

// newerThan treats a missing timestamp as the oldest possible
func newerThan(a, b *interfaces.Bar) bool {
	if a.Datetime == nil {
		return false
	}
	if b.Datetime == nil {
		return true
	}
	return !a.Datetime.Before(*b.Datetime)
}

// LiveOverlay turns broker quotes into live daily bars for today
type LiveOverlay struct {
	quotes  interfaces.QuotePort
	timeout time.Duration
	loc     *time.Location
	now     func() time.Time
	logger  *logrus.Logger
}

// NewLiveOverlay creates a live overlay over a quote port
func NewLiveOverlay(quotes interfaces.QuotePort, timeout time.Duration, loc *time.Location) *LiveOverlay {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if loc == nil {
		loc = time.UTC
	}

	return &LiveOverlay{
		quotes:  quotes,
		timeout: timeout,
		loc:     loc,
		now:     time.Now,
		logger:  logger,
	}
}

// SetLogger replaces the overlay logger
func (o *LiveOverlay) SetLogger(l *logrus.Logger) {
	o.logger = l
}

// SetClock overrides the wall clock
func (o *LiveOverlay) SetClock(now func() time.Time) {
	o.now = now
}

func (o *LiveOverlay) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}

// LiveCashBars fetches today's live bar for each NSE cash symbol.
// Ticks outside the validity band are dropped with a warning.
func (o *LiveOverlay) LiveCashBars(ctx context.Context, symbols []string) ([]*interfaces.Bar, []Warning, error) {
	if len(symbols) == 0 {
		return nil, nil, nil
	}

	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	master, err := o.quotes.GetInstruments(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get instrument master: %v: %w", err, ErrExternalService)
	}

	// Resolve NSE cash tokens, first match per symbol
	wanted := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		wanted[s] = true
	}

	tokenToSymbol := make(map[string]string)
	seen := make(map[string]bool)
	var tokens []string
	for _, c := range master {
		if c.Exchange != interfaces.ExchangeNSE || !wanted[c.Tradingsymbol] || seen[c.Tradingsymbol] {
			continue
		}
		seen[c.Tradingsymbol] = true
		tok := strconv.FormatInt(c.InstrumentToken, 10)
		tokenToSymbol[tok] = c.Tradingsymbol
		tokens = append(tokens, tok)
	}
	if len(tokens) == 0 {
		o.logger.WithField("requested", len(symbols)).Warn("No instrument tokens found for requested symbols")
		return nil, nil, nil
	}

	quotes, err := o.quotes.GetQuotes(ctx, tokens)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get cash quotes: %v: %w", err, ErrExternalService)
	}

	// Convert ticks to daily bars
	var bars []*interfaces.Bar
	var warnings []Warning
	for _, tok := range tokens {
		q, ok := quotes[tok]
		if !ok {
			continue
		}
		symbol := tokenToSymbol[tok]
		if !ValidTick(q.PrevClose, q.LastPrice) {
			werr := fmt.Errorf("live price %.2f too far from previous close %.2f: %w", q.LastPrice, q.PrevClose, ErrInvalidQuote)
			o.logger.WithError(werr).WithField("symbol", symbol).Warn("Discarding live tick")
			warnings = append(warnings, newWarning(symbol, werr))
			continue
		}

		ts := q.LastTradeTime
		if ts.IsZero() {
			ts = o.now()
		}
		ts = ts.In(o.loc)
		bars = append(bars, &interfaces.Bar{
			Symbol:   symbol,
			Date:     civilDate(ts),
			Datetime: &ts,
			Open:     q.Open,
			High:     q.High,
			Low:      q.Low,
			Close:    q.LastPrice,
			Volume:   q.Volume,
		})
	}

	return bars, warnings, nil
}

// LiveIndexBars fetches today's live close for each index, addressed as "NSE:<name>"
func (o *LiveOverlay) LiveIndexBars(ctx context.Context, symbols []string) ([]*interfaces.Bar, []Warning, error) {
	if len(symbols) == 0 {
		return nil, nil, nil
	}

	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	tags := make([]string, len(symbols))
	for i, s := range symbols {
		tags[i] = interfaces.ExchangeTag(interfaces.ExchangeNSE, s)
	}

	quotes, err := o.quotes.GetQuotes(ctx, tags)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get index quotes: %v: %w", err, ErrExternalService)
	}

	now := o.now().In(o.loc)
	today := civilDate(now)

	var bars []*interfaces.Bar
	var warnings []Warning
	for i, tag := range tags {
		q, ok := quotes[tag]
		if !ok {
			continue
		}
		symbol := symbols[i]
		if !ValidTick(q.PrevClose, q.LastPrice) {
			werr := fmt.Errorf("live index level %.2f too far from previous close %.2f: %w", q.LastPrice, q.PrevClose, ErrInvalidQuote)
			o.logger.WithError(werr).WithField("symbol", symbol).Warn("Discarding live tick")
			warnings = append(warnings, newWarning(symbol, werr))
			continue
		}

		stamp := now
		bars = append(bars, &interfaces.Bar{
			Symbol:   symbol,
			Date:     today,
			Datetime: &stamp,
			Open:     orDefault(q.Open, q.LastPrice),
			High:     orDefault(q.High, q.LastPrice),
			Low:      orDefault(q.Low, q.LastPrice),
			Close:    q.LastPrice,
		})
	}

	return bars, warnings, nil
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
