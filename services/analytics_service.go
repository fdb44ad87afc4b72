package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"fno-signals/interfaces"
	"fno-signals/models"

	"github.com/sirupsen/logrus"
)

// Result statuses
const (
	StatusOK                  = "ok"
	StatusInsufficientHistory = "insufficient_history"
	StatusDataUnavailable     = "data_unavailable"
)

// MarketStore is the storage the analytics read from and journal into
type MarketStore interface {
	interfaces.BarProvider
	interfaces.IntradayProvider
	interfaces.ConstituentSource
	SaveSignals(ctx context.Context, signals []*models.DBSignal) error
	GetSignals(ctx context.Context, symbol string, limit int) ([]*models.DBSignal, error)
}

// AnalyticsConfig holds cache lifetimes and the market time zone
type AnalyticsConfig struct {
	SQLTTL      time.Duration
	LiveTTL     time.Duration
	IntradayTTL time.Duration
	Location    *time.Location
}

// AnalyticsService evaluates every table in producer-before-consumer order over a shared cache.
// quotes may be nil, in which case live requests are served from history only.
type AnalyticsService struct {
	store     MarketStore
	quotes    interfaces.QuotePort
	overlay   *LiveOverlay
	straddles *StraddleEngine
	cache     *TTLCache
	alerts    AlertSink
	deduper   *AlertDeduper
	cfg       AnalyticsConfig
	now       func() time.Time
	logger    *logrus.Logger
}

// NewAnalyticsService wires the analytics over a store, an optional quote port and a cache
func NewAnalyticsService(store MarketStore, quotes interfaces.QuotePort, cache *TTLCache, cfg AnalyticsConfig, quoteTimeout time.Duration) *AnalyticsService {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cache == nil {
		cache = NewTTLCache()
	}

	s := &AnalyticsService{
		store:   store,
		quotes:  quotes,
		cache:   cache,
		alerts:  NoopAlertSink{},
		deduper: NewAlertDeduper(),
		cfg:     cfg,
		now:     time.Now,
		logger:  logger,
	}
	if quotes != nil {
		s.overlay = NewLiveOverlay(quotes, quoteTimeout, cfg.Location)
		s.straddles = NewStraddleEngine(quotes, quoteTimeout, cfg.Location)
	}
	return s
}

// SetLogger replaces the logger of the service and its engines
func (s *AnalyticsService) SetLogger(l *logrus.Logger) {
	s.logger = l
	if s.overlay != nil {
		s.overlay.SetLogger(l)
	}
	if s.straddles != nil {
		s.straddles.SetLogger(l)
	}
}

// SetClock overrides the wall clock of the service and its engines
func (s *AnalyticsService) SetClock(now func() time.Time) {
	s.now = now
	if s.overlay != nil {
		s.overlay.SetClock(now)
	}
	if s.straddles != nil {
		s.straddles.SetClock(now)
	}
}

// SetAlertSink replaces the sink newly detected crosses are published to
func (s *AnalyticsService) SetAlertSink(sink AlertSink) {
	if sink == nil {
		sink = NoopAlertSink{}
	}
	s.alerts = sink
}

// LiveEnabled reports whether a quote port is configured
func (s *AnalyticsService) LiveEnabled() bool {
	return s.quotes != nil
}

// Refresh invalidates every cached table and returns the new cache generation
func (s *AnalyticsService) Refresh() string {
	gen := s.cache.InvalidateAll()
	s.logger.WithField("generation", gen).Info("Cache invalidated")
	return gen
}

func (s *AnalyticsService) today() time.Time {
	return s.now().In(s.cfg.Location)
}

// ---- base loaders ----

func (s *AnalyticsService) constituents(ctx context.Context) ([]*interfaces.Constituent, error) {
	return Cached(s.cache, s.cfg.SQLTTL, "constituents", nil, func() ([]*interfaces.Constituent, error) {
		return s.store.GetConstituents(ctx)
	})
}

// historicalCash loads all cash bars, restricted to known constituents when any are mapped
func (s *AnalyticsService) historicalCash(ctx context.Context) ([]*interfaces.Bar, error) {
	return Cached(s.cache, s.cfg.SQLTTL, "cash_all", nil, func() ([]*interfaces.Bar, error) {
		bars, err := s.store.GetCashBars(ctx)
		if err != nil {
			return nil, err
		}

		constituents, err := s.constituents(ctx)
		if err != nil {
			s.logger.WithError(err).Warn("Constituents unavailable, serving all cash symbols")
			return bars, nil
		}
		if len(constituents) == 0 {
			return bars, nil
		}

		members := make(map[string]bool, len(constituents))
		for _, c := range constituents {
			members[c.Symbol] = true
		}
		filtered := make([]*interfaces.Bar, 0, len(bars))
		for _, b := range bars {
			if members[b.Symbol] {
				filtered = append(filtered, b)
			}
		}
		return filtered, nil
	})
}

func (s *AnalyticsService) historicalIndex(ctx context.Context) ([]*interfaces.Bar, error) {
	return Cached(s.cache, s.cfg.SQLTTL, "index_all", nil, func() ([]*interfaces.Bar, error) {
		return s.store.GetIndexBars(ctx)
	})
}

func (s *AnalyticsService) stockSnapshots(ctx context.Context) ([]*interfaces.DerivSnapshot, error) {
	return Cached(s.cache, s.cfg.SQLTTL, "fno_stock_all", nil, func() ([]*interfaces.DerivSnapshot, error) {
		return s.store.GetStockDerivSnapshots(ctx)
	})
}

func (s *AnalyticsService) indexSnapshots(ctx context.Context) ([]*interfaces.DerivSnapshot, error) {
	return Cached(s.cache, s.cfg.SQLTTL, "fno_index_all", nil, func() ([]*interfaces.DerivSnapshot, error) {
		return s.store.GetIndexDerivSnapshots(ctx)
	})
}

func (s *AnalyticsService) intraday(ctx context.Context, symbols []string, days int) ([]*interfaces.IntradayBar, error) {
	return Cached(s.cache, s.cfg.IntradayTTL, "read_intraday", []interface{}{symbols, days}, func() ([]*interfaces.IntradayBar, error) {
		return s.store.GetIntradayBars(ctx, symbols, days)
	})
}

func (s *AnalyticsService) instruments(ctx context.Context) ([]*interfaces.Contract, error) {
	if s.quotes == nil {
		return nil, fmt.Errorf("no quote provider configured: %w", ErrDataUnavailable)
	}
	contracts, err := s.quotes.GetInstruments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get instrument master: %v: %w", err, ErrExternalService)
	}
	return contracts, nil
}

type liveBars struct {
	Bars     []*interfaces.Bar
	Warnings []Warning
}

// CashBars returns daily cash bars, with today's live bar merged in when live is set.
// A failing quote provider degrades to history with a warning.
func (s *AnalyticsService) CashBars(ctx context.Context, live bool) ([]*interfaces.Bar, []Warning, error) {
	res, err := Cached(s.cache, s.cfg.LiveTTL, "cash_with_live", []interface{}{live}, func() (*liveBars, error) {
		hist, err := s.historicalCash(ctx)
		if err != nil {
			return nil, err
		}
		if !live || s.overlay == nil {
			return &liveBars{Bars: hist}, nil
		}

		fresh, warnings, err := s.overlay.LiveCashBars(ctx, uniqueSymbols(hist))
		if err != nil {
			s.logger.WithError(err).Warn("Live cash quotes unavailable, serving history")
			return &liveBars{Bars: hist, Warnings: []Warning{{Symbol: "*", Reason: err.Error()}}}, nil
		}
		return &liveBars{Bars: MergeLive(hist, fresh), Warnings: warnings}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return res.Bars, res.Warnings, nil
}

// IndexBars returns daily index bars, with today's live close merged in when live is set
func (s *AnalyticsService) IndexBars(ctx context.Context, live bool) ([]*interfaces.Bar, []Warning, error) {
	res, err := Cached(s.cache, s.cfg.LiveTTL, "index_with_live", []interface{}{live}, func() (*liveBars, error) {
		hist, err := s.historicalIndex(ctx)
		if err != nil {
			return nil, err
		}
		if !live || s.overlay == nil {
			return &liveBars{Bars: hist}, nil
		}

		fresh, warnings, err := s.overlay.LiveIndexBars(ctx, uniqueSymbols(hist))
		if err != nil {
			s.logger.WithError(err).Warn("Live index quotes unavailable, serving history")
			return &liveBars{Bars: hist, Warnings: []Warning{{Symbol: "*", Reason: err.Error()}}}, nil
		}
		return &liveBars{Bars: MergeLive(hist, fresh), Warnings: warnings}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return res.Bars, res.Warnings, nil
}

func uniqueSymbols(bars []*interfaces.Bar) []string {
	seen := make(map[string]bool)
	var out []string
	for _, b := range bars {
		if !seen[b.Symbol] {
			seen[b.Symbol] = true
			out = append(out, b.Symbol)
		}
	}
	sort.Strings(out)
	return out
}

// ---- expiries ----

// Expiries classifies the live futures of one underlying.
// Missing instrument data yields empty buckets with a warning.
func (s *AnalyticsService) Expiries(ctx context.Context, underlying string) (ExpiryBuckets, []Warning) {
	contracts, err := s.instruments(ctx)
	if err != nil {
		s.logger.WithError(err).WithField("symbol", underlying).Warn("No contract reference for expiries")
		return emptyBuckets(), []Warning{newWarning(underlying, err)}
	}
	return ExpiriesFor(underlying, contracts, s.today()), nil
}

// ---- reference and signals ----

// ReferenceResult is the quadrant and signal labelled reference table
type ReferenceResult struct {
	Status         string             `json:"status"`
	LatestDate     *time.Time         `json:"latest_date,omitempty"`
	LatestExpiry   *time.Time         `json:"latest_expiry,omitempty"`
	PrevExpiry     *time.Time         `json:"prev_expiry,omitempty"`
	CashLatestDate *time.Time         `json:"cash_latest_date,omitempty"`
	WindowStart    *time.Time         `json:"window_start,omitempty"`
	Rows           []*ReferenceRecord `json:"rows"`
	Warnings       []Warning          `json:"warnings,omitempty"`
	Table          *ReferenceTable    `json:"-"`
}

// Reference builds the reference table over cash bars, live when requested.
// Insufficient history is reported through Status, not as an error.
func (s *AnalyticsService) Reference(ctx context.Context, live bool) (*ReferenceResult, error) {
	return Cached(s.cache, s.cfg.LiveTTL, "fno_oi_processing", []interface{}{live}, func() (*ReferenceResult, error) {
		snaps, err := s.stockSnapshots(ctx)
		if err != nil {
			return nil, err
		}
		cash, warnings, err := s.CashBars(ctx, live)
		if err != nil {
			return nil, err
		}

		table, err := BuildReference(snaps, cash)
		switch {
		case errors.Is(err, ErrInsufficientHistory):
			return &ReferenceResult{Status: StatusInsufficientHistory, Rows: []*ReferenceRecord{}, Warnings: warnings}, nil
		case errors.Is(err, ErrDataUnavailable):
			return &ReferenceResult{Status: StatusDataUnavailable, Rows: []*ReferenceRecord{}, Warnings: warnings}, nil
		case err != nil:
			return nil, err
		}

		if !live {
			s.journal(ctx, table)
		}

		return &ReferenceResult{
			Status:         StatusOK,
			LatestDate:     timePtr(table.LatestDate),
			LatestExpiry:   timePtr(table.LatestExpiry),
			PrevExpiry:     timePtr(table.PrevExpiry),
			CashLatestDate: timePtr(table.CashLatestDate),
			WindowStart:    timePtr(table.WindowStart),
			Rows:           table.Rows(),
			Warnings:       warnings,
			Table:          table,
		}, nil
	})
}

func (s *AnalyticsService) journal(ctx context.Context, table *ReferenceTable) {
	rows := table.Rows()
	signals := make([]*models.DBSignal, 0, len(rows))
	for _, r := range rows {
		signals = append(signals, &models.DBSignal{
			Symbol:       r.Symbol,
			Date:         table.CashLatestDate,
			Quadrant:     r.Quadrant,
			PriceSignal:  r.PriceSignal,
			PriceChange:  r.PriceChangePct,
			OIChange:     r.OIChangePct,
			CashClose:    r.CashCloseLatest,
			PrevExpiry:   table.PrevExpiry,
			LatestExpiry: table.LatestExpiry,
		})
	}
	if err := s.store.SaveSignals(ctx, signals); err != nil {
		s.logger.WithError(err).Warn("Failed to journal signals")
	}
}

// Journal returns journaled signals, newest first
func (s *AnalyticsService) Journal(ctx context.Context, symbol string, limit int) ([]*models.DBSignal, error) {
	return s.store.GetSignals(ctx, strings.ToUpper(symbol), limit)
}

// BreakoutResult is the live cross scan
type BreakoutResult struct {
	Status       string     `json:"status"`
	Session      *time.Time `json:"session,omitempty"`
	PrevExpiry   *time.Time `json:"prev_expiry,omitempty"`
	LatestExpiry *time.Time `json:"latest_expiry,omitempty"`
	CrossScan
	NewAlerts int `json:"new_alerts"`
}

// Breakouts scans the current session's minute bars against the end-of-day reference table.
// Crosses not seen earlier in the session are published to the alert sink.
func (s *AnalyticsService) Breakouts(ctx context.Context) (*BreakoutResult, error) {
	ref, err := s.Reference(ctx, false)
	if err != nil {
		return nil, err
	}
	if ref.Status != StatusOK {
		return &BreakoutResult{Status: ref.Status, CrossScan: ScanPrevExpiryCross(nil, nil)}, nil
	}

	bars, err := s.intraday(ctx, nil, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to read intraday bars: %v: %w", err, ErrExternalService)
	}
	session, current := currentSession(bars, s.cfg.Location)

	scan := ScanPrevExpiryCross(current, ref.Table.Records)
	result := &BreakoutResult{
		Status:       StatusOK,
		PrevExpiry:   ref.PrevExpiry,
		LatestExpiry: ref.LatestExpiry,
		CrossScan:    scan,
	}
	if session.IsZero() {
		return result, nil
	}
	result.Session = timePtr(session)

	alerts := s.deduper.Fresh(scan, session, s.now())
	if len(alerts) > 0 {
		if err := s.alerts.Publish(ctx, alerts); err != nil {
			s.logger.WithError(err).Warn("Failed to publish breakout alerts")
		}
		result.NewAlerts = len(alerts)
	}
	return result, nil
}

// currentSession keeps the bars of the latest session date seen in the market zone
func currentSession(bars []*interfaces.IntradayBar, loc *time.Location) (time.Time, []*interfaces.IntradayBar) {
	var session time.Time
	for _, b := range bars {
		if d := civilDate(b.Datetime.In(loc)); d.After(session) {
			session = d
		}
	}
	var out []*interfaces.IntradayBar
	for _, b := range bars {
		if civilDate(b.Datetime.In(loc)).Equal(session) {
			out = append(out, b)
		}
	}
	return session, out
}

// ---- straddles ----

// StraddleTables builds the straddle tables. With live set, the ATM straddle of every index
// row and of the given stock symbols is priced and appended before deltas.
func (s *AnalyticsService) StraddleTables(ctx context.Context, live bool, stocks []string) (*StraddleTable, error) {
	sort.Strings(stocks)
	return Cached(s.cache, s.cfg.LiveTTL, "straddle_tables", []interface{}{live, stocks}, func() (*StraddleTable, error) {
		stockSnaps, err := s.stockSnapshots(ctx)
		if err != nil {
			return nil, err
		}
		indexSnaps, err := s.indexSnapshots(ctx)
		if err != nil {
			return nil, err
		}

		quotes := map[string]*StraddleQuote{}
		var warnings []Warning
		if live && s.straddles != nil {
			quotes, warnings = s.liveStraddles(ctx, sortedSymbols(indexSnaps), stocks)
		}

		table := StraddleTables(stockSnaps, indexSnaps, quotes)
		table.Warnings = warnings
		return &table, nil
	})
}

func (s *AnalyticsService) liveStraddles(ctx context.Context, indices, stocks []string) (map[string]*StraddleQuote, []Warning) {
	type request struct{ symbol, tag string }
	var requests []request
	for _, sym := range indices {
		if strings.EqualFold(sym, weeklyIndex) {
			requests = append(requests, request{sym, ExpiryTagWeekly})
		}
		requests = append(requests, request{sym, ExpiryTagMonthly})
	}
	for _, sym := range stocks {
		requests = append(requests, request{strings.ToUpper(sym), ExpiryTagStock})
	}

	quotes := make(map[string]*StraddleQuote, len(requests))
	var warnings []Warning
	for _, r := range requests {
		name := RowName(r.symbol, r.tag)
		q, err := s.straddles.LiveATMStraddle(ctx, r.symbol, r.tag)
		if err != nil {
			s.logger.WithError(err).WithField("symbol", name).Warn("Skipping live straddle")
			warnings = append(warnings, newWarning(name, err))
			continue
		}
		quotes[name] = q
	}
	return quotes, warnings
}

// StraddleSeries returns the current-expiry series of a straddle row
func (s *AnalyticsService) StraddleSeries(ctx context.Context, name string) (*StraddleSeriesResult, error) {
	return Cached(s.cache, s.cfg.SQLTTL, "straddle_timeseries", []interface{}{name}, func() (*StraddleSeriesResult, error) {
		stockSnaps, err := s.stockSnapshots(ctx)
		if err != nil {
			return nil, err
		}
		indexSnaps, err := s.indexSnapshots(ctx)
		if err != nil {
			return nil, err
		}
		cash, err := s.historicalCash(ctx)
		if err != nil {
			return nil, err
		}
		index, err := s.historicalIndex(ctx)
		if err != nil {
			return nil, err
		}
		return StraddleSeries(name, stockSnaps, indexSnaps, cash, index)
	})
}

// ---- basis ----

// BasisResult is the live basis table
type BasisResult struct {
	Rows     []BasisRow `json:"rows"`
	Warnings []Warning  `json:"warnings,omitempty"`
}

// CurrentBasis joins the latest spot levels with the latest intraday futures closes
func (s *AnalyticsService) CurrentBasis(ctx context.Context, live bool) (*BasisResult, error) {
	return Cached(s.cache, s.cfg.IntradayTTL, "current_basis_table", []interface{}{live}, func() (*BasisResult, error) {
		cash, cashWarn, err := s.CashBars(ctx, live)
		if err != nil {
			return nil, err
		}
		index, indexWarn, err := s.IndexBars(ctx, live)
		if err != nil {
			return nil, err
		}
		warnings := append(append([]Warning{}, cashWarn...), indexWarn...)

		contracts, err := s.instruments(ctx)
		if err != nil {
			s.logger.WithError(err).Warn("No contract reference for basis")
			return &BasisResult{Rows: []BasisRow{}, Warnings: append(warnings, Warning{Symbol: "*", Reason: err.Error()})}, nil
		}

		bars, err := s.intraday(ctx, nil, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to read intraday bars: %v: %w", err, ErrExternalService)
		}
		var futBars []*interfaces.IntradayBar
		for _, b := range bars {
			if strings.HasSuffix(b.Symbol, interfaces.InstrumentFuture) {
				futBars = append(futBars, b)
			}
		}

		spot := append(append([]*interfaces.Bar{}, cash...), index...)
		return &BasisResult{
			Rows:     CurrentBasis(spot, futBars, contracts, s.today()),
			Warnings: warnings,
		}, nil
	})
}

// DailyBasis returns the historical daily basis of one underlying
func (s *AnalyticsService) DailyBasis(ctx context.Context, symbol string, monthsBack int) ([]DailyBasisRow, error) {
	symbol = strings.ToUpper(symbol)
	return Cached(s.cache, s.cfg.SQLTTL, "daily_basis_series", []interface{}{symbol, monthsBack}, func() ([]DailyBasisRow, error) {
		cash, err := s.historicalCash(ctx)
		if err != nil {
			return nil, err
		}
		index, err := s.historicalIndex(ctx)
		if err != nil {
			return nil, err
		}
		stockSnaps, err := s.stockSnapshots(ctx)
		if err != nil {
			return nil, err
		}
		indexSnaps, err := s.indexSnapshots(ctx)
		if err != nil {
			return nil, err
		}

		spot := append(append([]*interfaces.Bar{}, cash...), index...)
		snaps := append(append([]*interfaces.DerivSnapshot{}, stockSnaps...), indexSnaps...)
		return DailyBasis(symbol, spot, snaps, monthsBack), nil
	})
}

// IntradayBasis returns today's spot and futures minute series of one underlying
func (s *AnalyticsService) IntradayBasis(ctx context.Context, symbol string) (*IntradayBasisResult, error) {
	symbol = strings.ToUpper(symbol)
	bars, err := s.intraday(ctx, nil, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to read intraday bars: %v: %w", err, ErrExternalService)
	}
	_, current := currentSession(bars, s.cfg.Location)
	result := IntradayBasis(symbol, current, current)
	return &result, nil
}

// ---- breadth and sectors ----

// Breadth returns the daily market breadth of the trailing three months
func (s *AnalyticsService) Breadth(ctx context.Context, live bool) ([]BreadthDay, error) {
	return Cached(s.cache, s.cfg.LiveTTL, "compute_adv_decl", []interface{}{live}, func() ([]BreadthDay, error) {
		cash, _, err := s.CashBars(ctx, live)
		if err != nil {
			return nil, err
		}
		return ComputeBreadth(cash), nil
	})
}

// SectorResult holds the official and equal-weight sector tables
type SectorResult struct {
	Official    []ReturnRow `json:"official"`
	EqualWeight []ReturnRow `json:"equal_weight"`
	Sectors     []string    `json:"sectors"`
}

// Sectors returns sector strength relative to NIFTY 50
func (s *AnalyticsService) Sectors(ctx context.Context, live bool) (*SectorResult, error) {
	return Cached(s.cache, s.cfg.LiveTTL, "sectors", []interface{}{live}, func() (*SectorResult, error) {
		cash, _, err := s.CashBars(ctx, live)
		if err != nil {
			return nil, err
		}
		index, _, err := s.IndexBars(ctx, live)
		if err != nil {
			return nil, err
		}
		constituents, err := s.constituents(ctx)
		if err != nil {
			return nil, err
		}

		seen := make(map[string]bool)
		sectors := []string{}
		for _, c := range constituents {
			if !seen[c.Sector] {
				seen[c.Sector] = true
				sectors = append(sectors, c.Sector)
			}
		}
		sort.Strings(sectors)

		return &SectorResult{
			Official:    OfficialSectorReturns(index),
			EqualWeight: EqualWeightSectorReturns(cash, constituents, index),
			Sectors:     sectors,
		}, nil
	})
}

// SectorConstituents returns the relative returns of each constituent of a sector
func (s *AnalyticsService) SectorConstituents(ctx context.Context, sector string, live bool) ([]ReturnRow, error) {
	return Cached(s.cache, s.cfg.LiveTTL, "constituent_returns", []interface{}{sector, live}, func() ([]ReturnRow, error) {
		cash, _, err := s.CashBars(ctx, live)
		if err != nil {
			return nil, err
		}
		index, _, err := s.IndexBars(ctx, live)
		if err != nil {
			return nil, err
		}
		constituents, err := s.constituents(ctx)
		if err != nil {
			return nil, err
		}
		return ConstituentReturns(sector, cash, index, constituents)
	})
}

// ---- stock explorer ----

// StockExplorer returns the windowed history of one stock against NIFTY 50.
// The close on the previous front expiry is included when the reference table has one.
func (s *AnalyticsService) StockExplorer(ctx context.Context, symbol string, days int, live bool) (*StockExplorer, error) {
	symbol = strings.ToUpper(symbol)
	return Cached(s.cache, s.cfg.LiveTTL, "stock_explorer_processing", []interface{}{symbol, days, live}, func() (*StockExplorer, error) {
		cash, cashWarn, err := s.CashBars(ctx, live)
		if err != nil {
			return nil, err
		}
		index, indexWarn, err := s.IndexBars(ctx, live)
		if err != nil {
			return nil, err
		}
		snaps, err := s.stockSnapshots(ctx)
		if err != nil {
			return nil, err
		}
		ref, err := s.Reference(ctx, live)
		if err != nil {
			return nil, err
		}

		var prevExpiry time.Time
		if ref.PrevExpiry != nil {
			prevExpiry = *ref.PrevExpiry
		}

		explorer, err := ExploreStock(symbol, cash, index, snaps, days, prevExpiry)
		if err != nil {
			return nil, err
		}
		explorer.Warnings = append(append(explorer.Warnings, cashWarn...), indexWarn...)
		return explorer, nil
	})
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
