package services

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"fno-signals/interfaces"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	kiteQuoteChunk    = 500
	kiteMaxRetries    = 2
	kiteRetryBase     = 250 * time.Millisecond
	kiteTimeLayout    = "2006-01-02 15:04:05"
	kiteExpiryLayout  = "2006-01-02"
	kiteAPIVersion    = "3"
	defaultKiteBase   = "https://api.kite.trade"
	defaultInstrTTL   = 24 * time.Hour
	instrumentTimeout = 30 * time.Second
)

// KiteQuoteService implements QuotePort over the Kite Connect REST API
type KiteQuoteService struct {
	apiKey      string
	accessToken string
	baseURL     string
	logger      *logrus.Logger
	client      *http.Client
	limiter     *rate.Limiter
	loc         *time.Location

	instrumentTTL time.Duration
	mu            sync.Mutex
	instruments   []*interfaces.Contract
	fetchedAt     time.Time
	now           func() time.Time
}

// NewKiteQuoteService creates a new Kite quote service
func NewKiteQuoteService(apiKey, accessToken, baseURL string, ratePerSecond float64, instrumentTTL time.Duration, loc *time.Location) *KiteQuoteService {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if baseURL == "" {
		baseURL = defaultKiteBase
	}
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	if instrumentTTL <= 0 {
		instrumentTTL = defaultInstrTTL
	}
	if loc == nil {
		loc = time.UTC
	}

	return &KiteQuoteService{
		apiKey:        apiKey,
		accessToken:   accessToken,
		baseURL:       strings.TrimRight(baseURL, "/"),
		logger:        logger,
		client:        &http.Client{Timeout: instrumentTimeout},
		limiter:       rate.NewLimiter(rate.Limit(ratePerSecond), 1),
		loc:           loc,
		instrumentTTL: instrumentTTL,
		now:           time.Now,
	}
}

// SetLogger replaces the service logger
func (s *KiteQuoteService) SetLogger(l *logrus.Logger) {
	s.logger = l
}

// kiteQuoteResponse represents Kite's /quote envelope
type kiteQuoteResponse struct {
	Status    string               `json:"status"`
	Data      map[string]kiteQuote `json:"data"`
	Message   string               `json:"message"`
	ErrorType string               `json:"error_type"`
}

// kiteQuote represents one instrument of a /quote response
type kiteQuote struct {
	InstrumentToken int64   `json:"instrument_token"`
	LastPrice       float64 `json:"last_price"`
	LastTradeTime   *string `json:"last_trade_time"`
	Volume          int64   `json:"volume"`
	OHLC            struct {
		Open  float64 `json:"open"`
		High  float64 `json:"high"`
		Low   float64 `json:"low"`
		Close float64 `json:"close"`
	} `json:"ohlc"`
}

// GetQuotes fetches quotes for instrument tokens or "EXCHANGE:TRADINGSYMBOL" tags
func (s *KiteQuoteService) GetQuotes(ctx context.Context, identifiers []string) (map[string]*interfaces.Quote, error) {
	quotes := make(map[string]*interfaces.Quote, len(identifiers))

	for start := 0; start < len(identifiers); start += kiteQuoteChunk {
		end := start + kiteQuoteChunk
		if end > len(identifiers) {
			end = len(identifiers)
		}
		chunk := identifiers[start:end]

		params := url.Values{}
		for _, id := range chunk {
			params.Add("i", id)
		}

		var resp kiteQuoteResponse
		if err := s.getJSON(ctx, s.baseURL+"/quote?"+params.Encode(), &resp); err != nil {
			return nil, fmt.Errorf("failed to fetch quotes: %w", err)
		}
		if resp.Status != "" && resp.Status != "success" {
			return nil, fmt.Errorf("quote API returned %s: %s", resp.ErrorType, resp.Message)
		}

		for key, q := range resp.Data {
			quotes[key] = s.convertQuote(key, q)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"requested": len(identifiers),
		"received":  len(quotes),
	}).Debug("Fetched quotes")

	return quotes, nil
}

func (s *KiteQuoteService) convertQuote(key string, q kiteQuote) *interfaces.Quote {
	quote := &interfaces.Quote{
		Key:             key,
		InstrumentToken: q.InstrumentToken,
		LastPrice:       q.LastPrice,
		Open:            q.OHLC.Open,
		High:            q.OHLC.High,
		Low:             q.OHLC.Low,
		PrevClose:       q.OHLC.Close,
		Volume:          q.Volume,
	}
	if q.LastTradeTime != nil && *q.LastTradeTime != "" {
		if ts, err := time.ParseInLocation(kiteTimeLayout, *q.LastTradeTime, s.loc); err == nil {
			quote.LastTradeTime = ts
		}
	}
	return quote
}

// getJSON performs a throttled GET, retrying rate limit and server errors until ctx ends
func (s *KiteQuoteService) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	body, err := s.get(ctx, endpoint)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (s *KiteQuoteService) get(ctx context.Context, endpoint string) (io.ReadCloser, error) {
	var body io.ReadCloser

	backoff := retry.WithMaxRetries(kiteMaxRetries, retry.NewExponential(kiteRetryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
		if err != nil {
			return err
		}
		req.Header.Set("X-Kite-Version", kiteAPIVersion)
		if s.apiKey != "" || s.accessToken != "" {
			req.Header.Set("Authorization", fmt.Sprintf("token %s:%s", s.apiKey, s.accessToken))
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("request failed: %w", err))
		}

		if resp.StatusCode != http.StatusOK {
			data, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			apiErr := fmt.Errorf("API error %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return retry.RetryableError(apiErr)
			}
			return apiErr
		}

		body = resp.Body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// GetInstruments returns the instrument master, downloading it at most once per TTL
func (s *KiteQuoteService) GetInstruments(ctx context.Context) ([]*interfaces.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.instruments != nil && s.now().Sub(s.fetchedAt) < s.instrumentTTL {
		return s.instruments, nil
	}

	body, err := s.get(ctx, s.baseURL+"/instruments")
	if err != nil {
		if s.instruments != nil {
			s.logger.WithError(err).Warn("Instrument refresh failed, serving previous master")
			return s.instruments, nil
		}
		return nil, fmt.Errorf("failed to download instruments: %w", err)
	}
	defer body.Close()

	contracts, err := ParseInstruments(body)
	if err != nil {
		return nil, err
	}

	s.instruments = contracts
	s.fetchedAt = s.now()
	s.logger.WithField("count", len(contracts)).Info("Instrument master refreshed")
	return contracts, nil
}

// ParseInstruments reads the instrument dump CSV
func ParseInstruments(r io.Reader) ([]*interfaces.Contract, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read instruments header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"instrument_token", "tradingsymbol", "instrument_type", "exchange"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("instruments file missing column %q", required)
		}
	}

	field := func(record []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var contracts []*interfaces.Contract
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read instruments row: %w", err)
		}

		token, err := strconv.ParseInt(field(record, "instrument_token"), 10, 64)
		if err != nil {
			continue
		}

		c := &interfaces.Contract{
			InstrumentToken: token,
			Tradingsymbol:   field(record, "tradingsymbol"),
			Name:            field(record, "name"),
			InstrumentType:  field(record, "instrument_type"),
			Segment:         field(record, "segment"),
			Exchange:        field(record, "exchange"),
		}
		if v := field(record, "expiry"); v != "" {
			if exp, err := time.Parse(kiteExpiryLayout, v); err == nil {
				c.Expiry = exp
			}
		}
		c.Strike, _ = strconv.ParseFloat(field(record, "strike"), 64)
		c.LotSize, _ = strconv.ParseFloat(field(record, "lot_size"), 64)
		c.LastPrice, _ = strconv.ParseFloat(field(record, "last_price"), 64)

		contracts = append(contracts, c)
	}

	return contracts, nil
}
