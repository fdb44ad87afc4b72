package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fno-signals/interfaces"
	"fno-signals/models"
	"fno-signals/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var ist = time.FixedZone("IST", 19800)

type memoryStore struct {
	cash         []*interfaces.Bar
	index        []*interfaces.Bar
	stockSnaps   []*interfaces.DerivSnapshot
	intraday     []*interfaces.IntradayBar
	constituents []*interfaces.Constituent
	signals      []*models.DBSignal
}

func (m *memoryStore) GetCashBars(ctx context.Context) ([]*interfaces.Bar, error) {
	return m.cash, nil
}

func (m *memoryStore) GetIndexBars(ctx context.Context) ([]*interfaces.Bar, error) {
	return m.index, nil
}

func (m *memoryStore) GetStockDerivSnapshots(ctx context.Context) ([]*interfaces.DerivSnapshot, error) {
	return m.stockSnaps, nil
}

func (m *memoryStore) GetIndexDerivSnapshots(ctx context.Context) ([]*interfaces.DerivSnapshot, error) {
	return nil, nil
}

func (m *memoryStore) GetIntradayBars(ctx context.Context, symbols []string, days int) ([]*interfaces.IntradayBar, error) {
	return m.intraday, nil
}

func (m *memoryStore) GetConstituents(ctx context.Context) ([]*interfaces.Constituent, error) {
	return m.constituents, nil
}

func (m *memoryStore) SaveSignals(ctx context.Context, signals []*models.DBSignal) error {
	m.signals = append(m.signals, signals...)
	return nil
}

func (m *memoryStore) GetSignals(ctx context.Context, symbol string, limit int) ([]*models.DBSignal, error) {
	var out []*models.DBSignal
	for _, s := range m.signals {
		if symbol == "" || s.Symbol == symbol {
			out = append(out, s)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr(v float64) *float64 {
	return &v
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// referenceStore holds two expiry cycles of RELIANCE
func referenceStore() *memoryStore {
	jan25 := day(2024, 1, 25)
	feb29 := day(2024, 2, 29)
	return &memoryStore{
		stockSnaps: []*interfaces.DerivSnapshot{
			{Symbol: "RELIANCE", Date: day(2024, 1, 10), FrontExpiry: jan25, CombinedOI: ptr(950)},
			{Symbol: "RELIANCE", Date: day(2024, 1, 25), FrontExpiry: jan25, CombinedOI: ptr(1000)},
			{Symbol: "RELIANCE", Date: day(2024, 2, 5), FrontExpiry: feb29, CombinedOI: ptr(900)},
		},
		cash: []*interfaces.Bar{
			{Symbol: "RELIANCE", Date: day(2024, 1, 10), Close: 105},
			{Symbol: "RELIANCE", Date: day(2024, 1, 25), Close: 100},
			{Symbol: "RELIANCE", Date: day(2024, 2, 5), Close: 110},
		},
		constituents: []*interfaces.Constituent{{Symbol: "RELIANCE", Sector: "ENERGY"}},
	}
}

func newTestService(store services.MarketStore) *services.AnalyticsService {
	analytics := services.NewAnalyticsService(store, nil, services.NewTTLCache(), services.AnalyticsConfig{
		SQLTTL:      time.Hour,
		LiveTTL:     time.Minute,
		IntradayTTL: time.Minute,
		Location:    ist,
	}, time.Second)
	analytics.SetLogger(quietLogger())
	analytics.SetClock(func() time.Time { return time.Date(2024, 2, 6, 11, 0, 0, 0, ist) })
	return analytics
}

func newTestRouter(analytics *services.AnalyticsService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewAnalyticsController(analytics).RegisterRoutes(router.Group("/api/v1"))
	return router
}

func perform(t *testing.T, router http.Handler, method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("%s %s: invalid json %q: %v", method, path, rec.Body.String(), err)
	}
	return rec, body
}
