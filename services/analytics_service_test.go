package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fno-signals/interfaces"
	"fno-signals/models"
)

// fakeStore is an in-memory MarketStore
type fakeStore struct {
	mu           sync.Mutex
	cash         []*interfaces.Bar
	index        []*interfaces.Bar
	stockSnaps   []*interfaces.DerivSnapshot
	indexSnaps   []*interfaces.DerivSnapshot
	intraday     []*interfaces.IntradayBar
	constituents []*interfaces.Constituent
	signals      []*models.DBSignal
	cashErr      error
	cashReads    int
}

func (f *fakeStore) GetCashBars(ctx context.Context) ([]*interfaces.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cashReads++
	return f.cash, f.cashErr
}

func (f *fakeStore) GetIndexBars(ctx context.Context) ([]*interfaces.Bar, error) {
	return f.index, nil
}

func (f *fakeStore) GetStockDerivSnapshots(ctx context.Context) ([]*interfaces.DerivSnapshot, error) {
	return f.stockSnaps, nil
}

func (f *fakeStore) GetIndexDerivSnapshots(ctx context.Context) ([]*interfaces.DerivSnapshot, error) {
	return f.indexSnaps, nil
}

func (f *fakeStore) GetIntradayBars(ctx context.Context, symbols []string, days int) ([]*interfaces.IntradayBar, error) {
	return f.intraday, nil
}

func (f *fakeStore) GetConstituents(ctx context.Context) ([]*interfaces.Constituent, error) {
	return f.constituents, nil
}

func (f *fakeStore) SaveSignals(ctx context.Context, signals []*models.DBSignal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, signals...)
	return nil
}

func (f *fakeStore) GetSignals(ctx context.Context, symbol string, limit int) ([]*models.DBSignal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.DBSignal
	for _, s := range f.signals {
		if symbol == "" || s.Symbol == symbol {
			out = append(out, s)
		}
	}
	return out, nil
}

// recordingSink keeps every published alert
type recordingSink struct {
	mu     sync.Mutex
	alerts []Alert
}

func (r *recordingSink) Publish(ctx context.Context, alerts []Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alerts...)
	return nil
}

func (r *recordingSink) Close() {}

func newTestAnalytics(store *fakeStore, quotes interfaces.QuotePort) *AnalyticsService {
	s := NewAnalyticsService(store, quotes, NewTTLCache(), AnalyticsConfig{
		SQLTTL:      time.Hour,
		LiveTTL:     time.Minute,
		IntradayTTL: time.Minute,
		Location:    ist,
	}, time.Second)
	s.SetLogger(quietLogger())
	s.SetClock(func() time.Time { return time.Date(2024, 2, 6, 11, 0, 0, 0, ist) })
	return s
}

func fixtureStore() *fakeStore {
	snaps, cash := referenceFixture()
	return &fakeStore{stockSnaps: snaps, cash: cash}
}

func TestAnalyticsReferenceJournals(t *testing.T) {
	store := fixtureStore()
	analytics := newTestAnalytics(store, nil)

	res, err := analytics.Reference(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusOK || len(res.Rows) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !res.PrevExpiry.Equal(day(2024, 1, 25)) {
		t.Errorf("prev expiry = %v", res.PrevExpiry)
	}

	if len(store.signals) != 1 {
		t.Fatalf("expected 1 journaled signal, got %d", len(store.signals))
	}
	sig := store.signals[0]
	if sig.Symbol != "RELIANCE" || sig.Quadrant != QuadrantOIDownPriceUp || !sig.Date.Equal(day(2024, 2, 5)) {
		t.Errorf("unexpected signal %+v", sig)
	}

	journal, err := analytics.Journal(context.Background(), "reliance", 10)
	if err != nil || len(journal) != 1 {
		t.Errorf("journal = %v, %v", journal, err)
	}
}

func TestAnalyticsReferenceInsufficientHistory(t *testing.T) {
	store := &fakeStore{
		stockSnaps: []*interfaces.DerivSnapshot{
			{Symbol: "RELIANCE", Date: day(2024, 2, 5), FrontExpiry: day(2024, 2, 29), CombinedOI: ptr(1)},
		},
	}
	analytics := newTestAnalytics(store, nil)

	res, err := analytics.Reference(context.Background(), false)
	if err != nil {
		t.Fatalf("insufficient history must not be an error, got %v", err)
	}
	if res.Status != StatusInsufficientHistory || len(res.Rows) != 0 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestAnalyticsStorageFailurePropagates(t *testing.T) {
	store := fixtureStore()
	store.cashErr = errors.New("disk gone")
	analytics := newTestAnalytics(store, nil)

	if _, err := analytics.Reference(context.Background(), false); err == nil {
		t.Error("expected the storage error")
	}
}

func TestAnalyticsBreakoutsPublishOnce(t *testing.T) {
	store := fixtureStore()
	store.intraday = []*interfaces.IntradayBar{
		// previous session is ignored
		{Symbol: "RELIANCE", Datetime: time.Date(2024, 2, 5, 15, 29, 0, 0, ist), Close: 90},
		{Symbol: "RELIANCE", Datetime: time.Date(2024, 2, 6, 9, 15, 0, 0, ist), Close: 104},
		{Symbol: "RELIANCE", Datetime: time.Date(2024, 2, 6, 9, 16, 0, 0, ist), Close: 99},
	}
	sink := &recordingSink{}
	analytics := newTestAnalytics(store, nil)
	analytics.SetAlertSink(sink)

	res, err := analytics.Breakouts(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.BreakdownClose) != 1 || res.BreakdownClose[0].LiveClose != 99 {
		t.Errorf("breakdown close = %+v", res.BreakdownClose)
	}
	if len(res.BreakdownLow) != 0 || len(res.BreakoutHigh) != 0 {
		t.Errorf("unexpected crosses %+v", res.CrossScan)
	}
	if res.Session == nil || !res.Session.Equal(day(2024, 2, 6)) {
		t.Errorf("session = %v", res.Session)
	}
	if res.NewAlerts != 1 || len(sink.alerts) != 1 {
		t.Errorf("expected one alert, got %d published", len(sink.alerts))
	}

	analytics.Refresh()
	again, err := analytics.Breakouts(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if again.NewAlerts != 0 || len(sink.alerts) != 1 {
		t.Errorf("the same cross must be announced once per session, got %d", len(sink.alerts))
	}
}

func TestAnalyticsLiveCashFallsBack(t *testing.T) {
	store := fixtureStore()
	quotes := &fakeQuotes{instrErr: errBrokerDown}
	analytics := newTestAnalytics(store, quotes)

	bars, warnings, err := analytics.CashBars(context.Background(), true)
	if err != nil {
		t.Fatalf("a failing broker must not fail the table, got %v", err)
	}
	if len(bars) != len(store.cash) {
		t.Errorf("expected history only, got %d bars", len(bars))
	}
	if len(warnings) != 1 {
		t.Errorf("expected one warning, got %+v", warnings)
	}
}

func TestAnalyticsLiveCashMerges(t *testing.T) {
	store := fixtureStore()
	quotes := &fakeQuotes{
		instruments: []*interfaces.Contract{
			{InstrumentToken: 738561, Tradingsymbol: "RELIANCE", Exchange: "NSE", InstrumentType: "EQ"},
		},
		quotes: map[string]*interfaces.Quote{
			"738561": {LastPrice: 112, PrevClose: 110, LastTradeTime: time.Date(2024, 2, 6, 10, 59, 0, 0, ist)},
		},
	}
	analytics := newTestAnalytics(store, quotes)

	bars, _, err := analytics.CashBars(context.Background(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bars) != len(store.cash)+1 {
		t.Fatalf("expected one live bar on top of history, got %d bars", len(bars))
	}

	res, err := analytics.Reference(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	if rec := res.Table.Records["RELIANCE"]; rec == nil || rec.CashCloseLatest != 112 {
		t.Errorf("live reference should use the live close, got %+v", rec)
	}
	if len(store.signals) != 0 {
		t.Error("live builds must not be journaled")
	}
}

func TestAnalyticsCashRestrictedToConstituents(t *testing.T) {
	store := fixtureStore()
	store.constituents = []*interfaces.Constituent{{Symbol: "RELIANCE", Sector: "ENERGY"}}
	analytics := newTestAnalytics(store, nil)

	bars, _, err := analytics.CashBars(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	for _, b := range bars {
		if b.Symbol != "RELIANCE" {
			t.Errorf("unexpected non-constituent %s", b.Symbol)
		}
	}
}

func TestAnalyticsRefreshInvalidates(t *testing.T) {
	store := fixtureStore()
	analytics := newTestAnalytics(store, nil)

	for i := 0; i < 2; i++ {
		if _, _, err := analytics.CashBars(context.Background(), false); err != nil {
			t.Fatal(err)
		}
	}
	if store.cashReads != 1 {
		t.Errorf("expected one storage read, got %d", store.cashReads)
	}

	analytics.Refresh()
	if _, _, err := analytics.CashBars(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if store.cashReads != 2 {
		t.Errorf("expected a fresh read after refresh, got %d", store.cashReads)
	}
}

func TestAnalyticsExpiriesWithoutQuotes(t *testing.T) {
	analytics := newTestAnalytics(fixtureStore(), nil)

	buckets, warnings := analytics.Expiries(context.Background(), "NIFTY")
	if !buckets.Empty() || len(warnings) != 1 {
		t.Errorf("expected empty buckets with a warning, got %+v %+v", buckets, warnings)
	}
}

func TestAnalyticsSectors(t *testing.T) {
	store := &fakeStore{
		cash:  append(closes("A", 100, 110, 121), closes("B", 200, 180, 198)...),
		index: append(closes(BenchmarkIndex, 100, 100, 100), closes("NIFTY IT", 50, 50, 55)...),
		constituents: []*interfaces.Constituent{
			{Symbol: "A", Sector: "IT"},
			{Symbol: "B", Sector: "IT"},
		},
	}
	analytics := newTestAnalytics(store, nil)

	res, err := analytics.Sectors(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Official) != 1 || len(res.EqualWeight) != 1 || len(res.Sectors) != 1 || res.Sectors[0] != "IT" {
		t.Errorf("unexpected sectors %+v", res)
	}

	if _, err := analytics.SectorConstituents(context.Background(), "PHARMA", false); !errors.Is(err, ErrDataUnavailable) {
		t.Errorf("expected ErrDataUnavailable, got %v", err)
	}
}

func TestAnalyticsLiveCashTimeoutServesHistory(t *testing.T) {
	store := fixtureStore()
	analytics := NewAnalyticsService(store, hangingQuotes{}, NewTTLCache(), AnalyticsConfig{
		SQLTTL:      time.Hour,
		LiveTTL:     time.Minute,
		IntradayTTL: time.Minute,
		Location:    ist,
	}, 50*time.Millisecond)
	analytics.SetLogger(quietLogger())

	start := time.Now()
	bars, warnings, err := analytics.CashBars(context.Background(), true)
	if err != nil {
		t.Fatalf("a hanging broker must not fail the table, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("live overlay was not bounded by the timeout, took %v", elapsed)
	}
	if len(bars) != len(store.cash) {
		t.Errorf("expected history only, got %d bars", len(bars))
	}
	if len(warnings) != 1 || warnings[0].Symbol != "*" {
		t.Errorf("expected one table-wide warning, got %+v", warnings)
	}
}

func TestAnalyticsLiveStraddlesSkipUnresolvedSymbol(t *testing.T) {
	store := &fakeStore{
		stockSnaps: []*interfaces.DerivSnapshot{
			{Symbol: "RELIANCE", Date: day(2024, 2, 5), FrontExpiry: day(2024, 2, 29), FrontStraddlePrice: ptr(95), FrontStraddleIV: ptr(20)},
			{Symbol: "TCS", Date: day(2024, 2, 5), FrontExpiry: day(2024, 2, 29), FrontStraddlePrice: ptr(100), FrontStraddleIV: ptr(18)},
		},
	}

	// RELIANCE has no 2950 put, TCS resolves both legs at 3900
	var master []*interfaces.Contract
	for _, c := range stockMaster() {
		if c.Strike == 2950 && c.InstrumentType == "PE" {
			continue
		}
		master = append(master, c)
	}
	master = append(master,
		&interfaces.Contract{InstrumentToken: 3, Tradingsymbol: "TCS24FEBFUT", Name: "TCS", Expiry: day(2024, 2, 29), InstrumentType: "FUT", Exchange: "NFO"},
		&interfaces.Contract{InstrumentToken: 200, Name: "TCS", Expiry: day(2024, 2, 29), Strike: 3900, InstrumentType: "CE", Exchange: "NFO"},
		&interfaces.Contract{InstrumentToken: 201, Name: "TCS", Expiry: day(2024, 2, 29), Strike: 3900, InstrumentType: "PE", Exchange: "NFO"},
	)
	quotes := &fakeQuotes{
		instruments: master,
		quotes: map[string]*interfaces.Quote{
			"1":   {LastPrice: 2960, PrevClose: 2950},
			"102": {LastPrice: 50},
			"3":   {LastPrice: 3905, PrevClose: 3900},
			"200": {LastPrice: 60},
			"201": {LastPrice: 50},
		},
	}
	analytics := newTestAnalytics(store, quotes)

	table, err := analytics.StraddleTables(context.Background(), true, []string{"TCS", "RELIANCE"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table.Stocks) != 2 {
		t.Fatalf("expected both stock rows, got %+v", table.Stocks)
	}

	rel, tcs := table.Stocks[0], table.Stocks[1]
	if rel.Symbol != "RELIANCE" || rel.Live || *rel.Straddle != 95 {
		t.Errorf("unresolved symbol should keep its stored row, got %+v", rel)
	}
	if tcs.Symbol != "TCS" || !tcs.Live || *tcs.Straddle != 110 {
		t.Errorf("resolved symbol should carry the live straddle, got %+v", tcs)
	}
	if len(table.Warnings) != 1 || table.Warnings[0].Symbol != "RELIANCE" {
		t.Errorf("expected one RELIANCE warning, got %+v", table.Warnings)
	}
}

func TestAnalyticsStockExplorerUsesPrevExpiry(t *testing.T) {
	analytics := newTestAnalytics(fixtureStore(), nil)

	ex, err := analytics.StockExplorer(context.Background(), "reliance", 60, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ex.PrevExpiry == nil || !ex.PrevExpiry.Equal(day(2024, 1, 25)) {
		t.Errorf("prev expiry = %v", ex.PrevExpiry)
	}
	if ex.PrevExpiryClose == nil || *ex.PrevExpiryClose != 100 {
		t.Errorf("prev expiry close = %v, want 100", ex.PrevExpiryClose)
	}
	if len(ex.Points) != 4 {
		t.Errorf("expected 4 sessions, got %d", len(ex.Points))
	}
}
